package devicefsm

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Sentinel errors for configuration and addressing failures. Callers match
// with errors.Is.
var (
	// ErrConfig reports an invalid state machine configuration: a regex
	// that does not compile, a duplicate state name, or an edge referencing
	// an unknown state.
	ErrConfig = errors.New("invalid device configuration")

	// ErrTargetStateNotExist reports a transition target that is not part
	// of the configured graph.
	ErrTargetStateNotExist = errors.New("target state does not exist")

	// ErrUnreachableState reports that no transition path leads from the
	// current state to the requested one, or that the current state is
	// still unknown.
	ErrUnreachableState = errors.New("unreachable state")

	// ErrClosed reports an operation on a handler whose session has been
	// torn down.
	ErrClosed = errors.New("device handler closed")
)

// DynamicInput answers an interactive sub-prompt observed while a command or
// transition is in flight, e.g. a password or confirmation question.
type DynamicInput struct {
	// Trigger is a regex matched against streamed lines (including the
	// trailing partial line, which interactive prompts rarely terminate
	// with a newline).
	Trigger string
	// Response is written to the shell, newline appended, when Trigger
	// matches.
	Response string
	// Sensitive marks the response for redaction in recordings.
	Sensitive bool
}

// StateConfig declares a named device mode and its prompt patterns.
type StateConfig struct {
	Name    string
	Prompts []string
	// SysScoped marks states that exist per sys context (e.g. one per
	// virtual site). The planner exits such states before entering them
	// again under a different context.
	SysScoped bool
}

// EdgeConfig declares a transition edge: running Command while in From moves
// the device to To, possibly answering the listed interactive inputs on the
// way.
type EdgeConfig struct {
	From    string
	To      string
	Command string
	Inputs  []DynamicInput
	// Exit marks the edge that leaves From toward the login side of the
	// graph; these edges are walked first when leaving a sys context.
	Exit bool
}

// Config is the full state machine description for one device type. It is
// what a template catalog entry produces.
type Config struct {
	States []StateConfig
	Edges  []EdgeConfig

	// ErrorPatterns mark a command as failed when any output line matches.
	ErrorPatterns []string
	// IgnoreErrorPatterns take precedence over ErrorPatterns for lines
	// that look like errors but are benign (e.g. deleting an object that
	// is already gone).
	IgnoreErrorPatterns []string
	// GlobalInputs are dynamic inputs consulted in every state, such as
	// pagination continuation ("--More--") or save confirmations.
	GlobalInputs []DynamicInput
}

// Edge is a planned transition step returned by PlanPath.
type Edge struct {
	From    string
	To      string
	Command string
	Inputs  []DynamicInput
}

type compiledInput struct {
	trigger   *regexp.Regexp
	response  string
	sensitive bool
}

type state struct {
	display   string
	name      string
	prompts   []*regexp.Regexp
	sysScoped bool
}

type edge struct {
	from    int
	to      int
	command string
	inputs  []compiledInput
	config  EdgeConfig
}

// Handler tracks the current mode of a single device session and plans
// transitions between modes. It is mutated only by its owning session actor
// and carries no internal locking.
type Handler struct {
	states   []state
	index    map[string]int
	edges    []edge
	outgoing [][]int // per-state edge indices, sorted by command for deterministic planning

	matcher        *PromptMatcher
	errorPatterns  []*regexp.Regexp
	ignorePatterns []*regexp.Regexp
	globalInputs   []compiledInput

	current int // -1 until the first prompt is observed
	closed  bool
	// sys is the requested sys context; activeSys is the context under
	// which the current sys-scoped state was entered.
	sys       string
	activeSys string
}

// normalizeState lowercases a state name for matching while the original
// spelling is kept for display.
func normalizeState(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func compilePatterns(kind string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s pattern %q: %v", ErrConfig, kind, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func compileInputs(inputs []DynamicInput) ([]compiledInput, error) {
	out := make([]compiledInput, 0, len(inputs))
	for _, in := range inputs {
		re, err := regexp.Compile(in.Trigger)
		if err != nil {
			return nil, fmt.Errorf("%w: input trigger %q: %v", ErrConfig, in.Trigger, err)
		}
		out = append(out, compiledInput{trigger: re, response: in.Response, sensitive: in.Sensitive})
	}
	return out, nil
}

// New builds a Handler from a Config. All regexes are compiled up front;
// duplicate state names and edges referencing unknown states are rejected.
func New(cfg Config) (*Handler, error) {
	if len(cfg.States) == 0 {
		return nil, fmt.Errorf("%w: no states configured", ErrConfig)
	}

	h := &Handler{
		index:   make(map[string]int, len(cfg.States)),
		current: -1,
		matcher: &PromptMatcher{},
	}

	for i, sc := range cfg.States {
		name := normalizeState(sc.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: state %d has an empty name", ErrConfig, i)
		}
		if _, dup := h.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate state %q", ErrConfig, sc.Name)
		}
		if len(sc.Prompts) == 0 {
			return nil, fmt.Errorf("%w: state %q has no prompt patterns", ErrConfig, sc.Name)
		}
		prompts, err := compilePatterns("prompt", sc.Prompts)
		if err != nil {
			return nil, err
		}
		h.index[name] = len(h.states)
		h.states = append(h.states, state{
			display:   strings.TrimSpace(sc.Name),
			name:      name,
			prompts:   prompts,
			sysScoped: sc.SysScoped,
		})
		for _, re := range prompts {
			h.matcher.entries = append(h.matcher.entries, promptEntry{state: len(h.states) - 1, re: re})
		}
	}

	h.outgoing = make([][]int, len(h.states))
	for _, ec := range cfg.Edges {
		from, ok := h.index[normalizeState(ec.From)]
		if !ok {
			return nil, fmt.Errorf("%w: edge %q -> %q references unknown state %q", ErrConfig, ec.From, ec.To, ec.From)
		}
		to, ok := h.index[normalizeState(ec.To)]
		if !ok {
			return nil, fmt.Errorf("%w: edge %q -> %q references unknown state %q", ErrConfig, ec.From, ec.To, ec.To)
		}
		inputs, err := compileInputs(ec.Inputs)
		if err != nil {
			return nil, err
		}
		h.edges = append(h.edges, edge{from: from, to: to, command: ec.Command, inputs: inputs, config: ec})
		h.outgoing[from] = append(h.outgoing[from], len(h.edges)-1)
	}

	// Sort adjacency lists by command so equal-length paths resolve
	// lexicographically and planning stays deterministic.
	for _, adj := range h.outgoing {
		sort.Slice(adj, func(a, b int) bool {
			ea, eb := h.edges[adj[a]], h.edges[adj[b]]
			if ea.command != eb.command {
				return ea.command < eb.command
			}
			return h.states[ea.to].name < h.states[eb.to].name
		})
	}

	var err error
	if h.errorPatterns, err = compilePatterns("error", cfg.ErrorPatterns); err != nil {
		return nil, err
	}
	if h.ignorePatterns, err = compilePatterns("ignore-error", cfg.IgnoreErrorPatterns); err != nil {
		return nil, err
	}
	if h.globalInputs, err = compileInputs(cfg.GlobalInputs); err != nil {
		return nil, err
	}

	return h, nil
}

// ReadPrompt reports the state whose prompt patterns match line, without
// mutating the handler. Ties break by state declaration order.
func (h *Handler) ReadPrompt(line string) (int, bool) {
	if h.closed {
		return 0, false
	}
	return h.matcher.Match(line)
}

// Read feeds one complete output line into the handler. If the line matches a
// prompt pattern the current state is updated. Read reports whether the
// current state changed; repeated identical prompts are idempotent.
func (h *Handler) Read(line string) bool {
	if h.closed {
		return false
	}
	idx, ok := h.matcher.Match(line)
	if !ok {
		return false
	}
	if idx == h.current {
		return false
	}
	h.current = idx
	// Entering a sys-scoped state binds it to the requested context; the
	// only way in is the rendered switch command. Leaving clears it.
	if h.states[idx].sysScoped {
		h.activeSys = h.sys
	} else {
		h.activeSys = ""
	}
	return true
}

// ReadNeedWrite checks whether line is an interactive sub-prompt that must be
// answered mid-command. Inputs attached to edges leaving the current state are
// scanned first, in edge declaration order, then the global inputs. Returns
// the response to write and whether it is sensitive.
func (h *Handler) ReadNeedWrite(line string) (response string, sensitive bool, ok bool) {
	if h.closed {
		return "", false, false
	}
	if h.current >= 0 {
		for i := range h.edges {
			if h.edges[i].from != h.current {
				continue
			}
			for _, in := range h.edges[i].inputs {
				if in.trigger.MatchString(line) {
					return in.response, in.sensitive, true
				}
			}
		}
	}
	for _, in := range h.globalInputs {
		if in.trigger.MatchString(line) {
			return in.response, in.sensitive, true
		}
	}
	return "", false, false
}

// IsErrorLine reports whether line matches a configured error pattern and is
// not covered by an ignore pattern.
func (h *Handler) IsErrorLine(line string) bool {
	if len(h.errorPatterns) == 0 {
		return false
	}
	matched := false
	for _, re := range h.errorPatterns {
		if re.MatchString(line) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, re := range h.ignorePatterns {
		if re.MatchString(line) {
			return false
		}
	}
	return true
}

// CurrentState returns the display name of the current state. ok is false
// while the state is still unknown.
func (h *Handler) CurrentState() (name string, ok bool) {
	if h.closed || h.current < 0 {
		return "", false
	}
	return h.states[h.current].display, true
}

// StateName returns the display name of the state at index i.
func (h *Handler) StateName(i int) string {
	if i < 0 || i >= len(h.states) {
		return ""
	}
	return h.states[i].display
}

// AtState reports whether the current state is the named one.
func (h *Handler) AtState(name string) bool {
	if h.closed || h.current < 0 {
		return false
	}
	return h.states[h.current].name == normalizeState(name)
}

// SetSysContext sets the sys context used to render parameterized edge
// commands ("switch {}" style).
func (h *Handler) SetSysContext(sys string) { h.sys = sys }

// SysContext returns the current sys context.
func (h *Handler) SysContext() string { return h.sys }

// Reset forgets the current state, forcing the next prompt read to
// re-establish it. Used after a timeout drain.
func (h *Handler) Reset() {
	h.current = -1
	h.activeSys = ""
}

// Close marks the handler terminal. Further operations fail or become no-ops.
func (h *Handler) Close() { h.closed = true }

// Closed reports whether the handler has been closed.
func (h *Handler) Closed() bool { return h.closed }

// renderCommand substitutes the sys context into parameterized edge commands.
func (h *Handler) renderCommand(cmd string) string {
	if h.sys == "" || !strings.Contains(cmd, "{}") {
		return cmd
	}
	return strings.ReplaceAll(cmd, "{}", h.sys)
}
