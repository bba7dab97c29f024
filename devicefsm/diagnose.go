package devicefsm

// PromptConflict reports a sample prompt that matched more than one state.
type PromptConflict struct {
	Sample string
	States []string
}

// Diagnostics summarizes structural problems in a handler's configuration.
type Diagnostics struct {
	// GraphStates lists every configured state in declaration order.
	GraphStates []string
	// DeadEndStates have no outgoing edges.
	DeadEndStates []string
	// UnreachableStates cannot be reached from any entry state. Entry
	// states are those named login, user or initial; if none exist the
	// first declared state is the entry.
	UnreachableStates []string
	// PromptConflicts lists sample prompts matched by two or more states.
	PromptConflicts []PromptConflict
}

// Diagnose inspects the transition graph and, for each provided sample
// prompt, checks whether the prompt patterns of different states overlap.
func (h *Handler) Diagnose(samplePrompts ...string) Diagnostics {
	d := Diagnostics{}
	for i := range h.states {
		d.GraphStates = append(d.GraphStates, h.states[i].display)
		if len(h.outgoing[i]) == 0 {
			d.DeadEndStates = append(d.DeadEndStates, h.states[i].display)
		}
	}

	var entries []int
	for i := range h.states {
		switch h.states[i].name {
		case "login", "user", "initial":
			entries = append(entries, i)
		}
	}
	if len(entries) == 0 {
		entries = []int{0}
	}

	visited := make([]bool, len(h.states))
	queue := append([]int(nil), entries...)
	for _, e := range entries {
		visited[e] = true
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, ei := range h.outgoing[node] {
			next := h.edges[ei].to
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	for i := range h.states {
		if !visited[i] {
			d.UnreachableStates = append(d.UnreachableStates, h.states[i].display)
		}
	}

	for _, sample := range samplePrompts {
		matches := h.matcher.MatchAll(sample)
		if len(matches) < 2 {
			continue
		}
		conflict := PromptConflict{Sample: sample}
		for _, idx := range matches {
			conflict.States = append(conflict.States, h.states[idx].display)
		}
		d.PromptConflicts = append(d.PromptConflicts, conflict)
	}

	return d
}
