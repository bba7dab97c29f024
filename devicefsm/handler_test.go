package devicefsm

import (
	"errors"
	"testing"
)

// ciscoConfig returns a Cisco-style three-mode configuration used across the
// FSM tests.
func ciscoConfig() Config {
	return Config{
		// Config is declared first: its prompt is the most specific and
		// the broader enable pattern would otherwise shadow it.
		States: []StateConfig{
			{Name: "Config", Prompts: []string{`^\S+\(\S+\)#\s*$`}},
			{Name: "Enable", Prompts: []string{`^[^\s#]+#\s*$`}},
			{Name: "Login", Prompts: []string{`^[^\s<#]+>\s*$`}},
		},
		Edges: []EdgeConfig{
			{From: "Login", To: "Enable", Command: "enable", Inputs: []DynamicInput{
				{Trigger: `Password:`, Response: "secret", Sensitive: true},
			}},
			{From: "Enable", To: "Config", Command: "configure terminal"},
			{From: "Config", To: "Enable", Command: "exit"},
			{From: "Enable", To: "Login", Command: "exit"},
		},
		ErrorPatterns:       []string{`^%.+`, `ERROR:.+`},
		IgnoreErrorPatterns: []string{`ERROR: object \(.+\) does not exist.`},
	}
}

func mustHandler(t *testing.T, cfg Config) *Handler {
	t.Helper()
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func TestNew_RejectsDuplicateState(t *testing.T) {
	cfg := ciscoConfig()
	cfg.States = append(cfg.States, StateConfig{Name: "LOGIN", Prompts: []string{`>`}})
	if _, err := New(cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for duplicate state, got %v", err)
	}
}

func TestNew_RejectsDanglingEdge(t *testing.T) {
	cfg := ciscoConfig()
	cfg.Edges = append(cfg.Edges, EdgeConfig{From: "Enable", To: "rommon", Command: "reload"})
	if _, err := New(cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for dangling edge, got %v", err)
	}
}

func TestNew_RejectsBadRegex(t *testing.T) {
	cfg := ciscoConfig()
	cfg.States[0].Prompts = []string{`([`}
	if _, err := New(cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for invalid regex, got %v", err)
	}
}

func TestNew_RejectsEmptyStates(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for empty config, got %v", err)
	}
}

func TestRead_TracksPrompts(t *testing.T) {
	h := mustHandler(t, ciscoConfig())

	if _, ok := h.CurrentState(); ok {
		t.Fatal("state should be unknown before any prompt is read")
	}

	if !h.Read("router>") {
		t.Fatal("expected state change on login prompt")
	}
	if name, _ := h.CurrentState(); name != "Login" {
		t.Fatalf("expected Login, got %s", name)
	}

	// Repeated identical prompt is idempotent.
	if h.Read("router>") {
		t.Fatal("repeated prompt should not report a change")
	}

	if !h.Read("router#") {
		t.Fatal("expected state change on enable prompt")
	}
	if name, _ := h.CurrentState(); name != "Enable" {
		t.Fatalf("expected Enable, got %s", name)
	}

	// Plain output lines do not change state.
	if h.Read("Cisco IOS Software, Version 15.2") {
		t.Fatal("output line should not change state")
	}
}

func TestReadPrompt_IsPureAndIdempotent(t *testing.T) {
	h := mustHandler(t, ciscoConfig())
	for i := 0; i < 3; i++ {
		idx, ok := h.ReadPrompt("router(config)#")
		if !ok || h.StateName(idx) != "Config" {
			t.Fatalf("iteration %d: expected Config match, got idx=%d ok=%v", i, idx, ok)
		}
	}
	if _, ok := h.CurrentState(); ok {
		t.Fatal("ReadPrompt must not mutate current state")
	}
}

func TestReadPrompt_TieBreaksByDeclarationOrder(t *testing.T) {
	h := mustHandler(t, Config{
		States: []StateConfig{
			{Name: "first", Prompts: []string{`^router#$`}},
			{Name: "second", Prompts: []string{`#$`}},
		},
	})
	idx, ok := h.ReadPrompt("router#")
	if !ok || h.StateName(idx) != "first" {
		t.Fatalf("expected first declared state to win, got %q", h.StateName(idx))
	}
}

func TestReadNeedWrite_EdgeInputs(t *testing.T) {
	h := mustHandler(t, ciscoConfig())
	h.Read("router>")

	resp, sensitive, ok := h.ReadNeedWrite("Password: ")
	if !ok {
		t.Fatal("expected password trigger to match from Login")
	}
	if resp != "secret" || !sensitive {
		t.Fatalf("unexpected response %q sensitive=%v", resp, sensitive)
	}

	// The same trigger does not apply from Enable: no edge out of Enable
	// declares it.
	h.Read("router#")
	if _, _, ok := h.ReadNeedWrite("Password: "); ok {
		t.Fatal("password trigger should not match from Enable")
	}
}

func TestReadNeedWrite_GlobalInputs(t *testing.T) {
	cfg := ciscoConfig()
	cfg.GlobalInputs = []DynamicInput{{Trigger: `--More--`, Response: " "}}
	h := mustHandler(t, cfg)
	h.Read("router#")

	resp, _, ok := h.ReadNeedWrite(" --More-- ")
	if !ok || resp != " " {
		t.Fatalf("expected pagination continuation, got %q ok=%v", resp, ok)
	}
}

func TestIsErrorLine(t *testing.T) {
	h := mustHandler(t, ciscoConfig())
	tests := []struct {
		line string
		want bool
	}{
		{"% Invalid input detected at '^' marker.", true},
		{"ERROR: VLAN 10 is not a primary vlan", true},
		{"ERROR: object (WEB01) does not exist.", false}, // ignore pattern wins
		{"GigabitEthernet0/0 is up", false},
	}
	for _, tt := range tests {
		if got := h.IsErrorLine(tt.line); got != tt.want {
			t.Errorf("IsErrorLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestClose_MakesHandlerTerminal(t *testing.T) {
	h := mustHandler(t, ciscoConfig())
	h.Read("router#")
	h.Close()

	if h.Read("router(config)#") {
		t.Error("Read after Close should be a no-op")
	}
	if _, ok := h.CurrentState(); ok {
		t.Error("CurrentState after Close should report unknown")
	}
	if _, err := h.PlanPath("config"); !errors.Is(err, ErrClosed) {
		t.Errorf("PlanPath after Close: expected ErrClosed, got %v", err)
	}
}

func TestReset_ForgetsCurrentState(t *testing.T) {
	h := mustHandler(t, ciscoConfig())
	h.Read("router#")
	h.Reset()
	if _, ok := h.CurrentState(); ok {
		t.Fatal("expected unknown state after Reset")
	}
}

func TestRenderCommand_SysContext(t *testing.T) {
	h := mustHandler(t, Config{
		States: []StateConfig{
			{Name: "Enable", Prompts: []string{`^[^\s#]+#\s*$`}},
			{Name: "VSiteEnable", Prompts: []string{`^\S+\$\s*$`}},
		},
		Edges: []EdgeConfig{
			{From: "Enable", To: "VSiteEnable", Command: "switch {}"},
		},
	})
	h.SetSysContext("vs1")
	h.Read("array#")

	plan, err := h.PlanPath("vsiteenable")
	if err != nil {
		t.Fatalf("PlanPath: %v", err)
	}
	if len(plan) != 1 || plan[0].Command != "switch vs1" {
		t.Fatalf("expected rendered sys command, got %+v", plan)
	}
}
