package devicefsm

import (
	"errors"
	"testing"
)

func planCommands(plan []Edge) []string {
	out := make([]string, len(plan))
	for i, e := range plan {
		out[i] = e.Command
	}
	return out
}

func TestPlanPath_TwoHops(t *testing.T) {
	h := mustHandler(t, ciscoConfig())
	h.Read("router>")

	plan, err := h.PlanPath("config")
	if err != nil {
		t.Fatalf("PlanPath: %v", err)
	}
	got := planCommands(plan)
	want := []string{"enable", "configure terminal"}
	if len(got) != len(want) {
		t.Fatalf("plan length %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("plan[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if plan[0].From != "Login" || plan[0].To != "Enable" {
		t.Errorf("plan[0] endpoints = %s -> %s", plan[0].From, plan[0].To)
	}
}

func TestPlanPath_AlreadyAtTarget(t *testing.T) {
	h := mustHandler(t, ciscoConfig())
	h.Read("router(config)#")

	plan, err := h.PlanPath("Config")
	if err != nil {
		t.Fatalf("PlanPath: %v", err)
	}
	if len(plan) != 0 {
		t.Fatalf("expected empty plan at target, got %v", planCommands(plan))
	}
}

func TestPlanPath_TargetCaseInsensitive(t *testing.T) {
	h := mustHandler(t, ciscoConfig())
	h.Read("router#")

	for _, target := range []string{"config", "Config", "CONFIG"} {
		plan, err := h.PlanPath(target)
		if err != nil {
			t.Fatalf("PlanPath(%q): %v", target, err)
		}
		if len(plan) != 1 || plan[0].Command != "configure terminal" {
			t.Fatalf("PlanPath(%q) = %v", target, planCommands(plan))
		}
	}
}

func TestPlanPath_UnknownTarget(t *testing.T) {
	h := mustHandler(t, ciscoConfig())
	h.Read("router#")
	if _, err := h.PlanPath("rommon"); !errors.Is(err, ErrTargetStateNotExist) {
		t.Fatalf("expected ErrTargetStateNotExist, got %v", err)
	}
}

func TestPlanPath_UnknownCurrentState(t *testing.T) {
	h := mustHandler(t, ciscoConfig())
	if _, err := h.PlanPath("config"); !errors.Is(err, ErrUnreachableState) {
		t.Fatalf("expected ErrUnreachableState, got %v", err)
	}
}

func TestPlanPath_NoRoute(t *testing.T) {
	cfg := ciscoConfig()
	cfg.States = append(cfg.States, StateConfig{Name: "Rommon", Prompts: []string{`^rommon \d+ >`}})
	h := mustHandler(t, cfg)
	h.Read("router#")
	if _, err := h.PlanPath("rommon"); !errors.Is(err, ErrUnreachableState) {
		t.Fatalf("expected ErrUnreachableState, got %v", err)
	}
}

func TestPlanPath_ShortestDistance(t *testing.T) {
	// a -> b -> c plus a direct a -> c shortcut: BFS must take the shortcut.
	h := mustHandler(t, Config{
		States: []StateConfig{
			{Name: "a", Prompts: []string{`^a>$`}},
			{Name: "b", Prompts: []string{`^b>$`}},
			{Name: "c", Prompts: []string{`^c>$`}},
		},
		Edges: []EdgeConfig{
			{From: "a", To: "b", Command: "go-b"},
			{From: "b", To: "c", Command: "go-c"},
			{From: "a", To: "c", Command: "jump-c"},
		},
	})
	h.Read("a>")
	plan, err := h.PlanPath("c")
	if err != nil {
		t.Fatalf("PlanPath: %v", err)
	}
	if len(plan) != 1 || plan[0].Command != "jump-c" {
		t.Fatalf("expected direct shortcut, got %v", planCommands(plan))
	}
}

func TestPlanPath_EqualLengthTieBreaksLexicographically(t *testing.T) {
	// Two single-hop routes to the same state through differently named
	// commands; the lexicographically smaller command must win every time.
	h := mustHandler(t, Config{
		States: []StateConfig{
			{Name: "a", Prompts: []string{`^a>$`}},
			{Name: "mid1", Prompts: []string{`^m1>$`}},
			{Name: "mid2", Prompts: []string{`^m2>$`}},
			{Name: "z", Prompts: []string{`^z>$`}},
		},
		Edges: []EdgeConfig{
			{From: "a", To: "mid2", Command: "zeta"},
			{From: "a", To: "mid1", Command: "alpha"},
			{From: "mid1", To: "z", Command: "finish"},
			{From: "mid2", To: "z", Command: "finish"},
		},
	})
	h.Read("a>")
	for i := 0; i < 5; i++ {
		plan, err := h.PlanPath("z")
		if err != nil {
			t.Fatalf("PlanPath: %v", err)
		}
		got := planCommands(plan)
		if len(got) != 2 || got[0] != "alpha" {
			t.Fatalf("iteration %d: expected path via alpha, got %v", i, got)
		}
	}
}

func TestPlanPath_CyclicGraph(t *testing.T) {
	h := mustHandler(t, ciscoConfig())
	h.Read("router(config)#")

	// Config -> Enable -> Login walks exit edges through the cycle.
	plan, err := h.PlanPath("login")
	if err != nil {
		t.Fatalf("PlanPath: %v", err)
	}
	got := planCommands(plan)
	if len(got) != 2 || got[0] != "exit" || got[1] != "exit" {
		t.Fatalf("expected two exits, got %v", got)
	}
}

// vsiteConfig models an Array-style graph with per-site states entered via a
// rendered switch command.
func vsiteConfig() Config {
	return Config{
		States: []StateConfig{
			{Name: "VSiteConfig", Prompts: []string{`^\S+\(\S+\)\$\s*$`}, SysScoped: true},
			{Name: "Enable", Prompts: []string{`^[^\s#$]+#\s*$`}},
			{Name: "VSiteEnable", Prompts: []string{`^\S+\$\s*$`}, SysScoped: true},
		},
		Edges: []EdgeConfig{
			{From: "Enable", To: "VSiteEnable", Command: "switch {}"},
			{From: "VSiteEnable", To: "VSiteConfig", Command: "configure terminal"},
			{From: "VSiteConfig", To: "VSiteEnable", Command: "exit", Exit: true},
			{From: "VSiteEnable", To: "Enable", Command: "exit", Exit: true},
		},
	}
}

func TestPlanPath_SysContextSwitchExitsFirst(t *testing.T) {
	h := mustHandler(t, vsiteConfig())
	h.SetSysContext("shop1")
	h.Read("array#")

	plan, err := h.PlanPath("vsiteconfig")
	if err != nil {
		t.Fatalf("PlanPath: %v", err)
	}
	want := []string{"switch shop1", "configure terminal"}
	if got := planCommands(plan); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("entry plan = %v, want %v", got, want)
	}

	// Walk into the site the way the actor would.
	h.Read("shop1$")
	h.Read("shop1(config)$")

	// Same site, same mode: nothing to do.
	plan, err = h.PlanPath("vsiteconfig")
	if err != nil {
		t.Fatalf("PlanPath same site: %v", err)
	}
	if len(plan) != 0 {
		t.Fatalf("expected empty plan for the active site, got %v", planCommands(plan))
	}

	// Different site: exit edges first, then re-enter with the new name.
	h.SetSysContext("shop2")
	plan, err = h.PlanPath("vsiteconfig")
	if err != nil {
		t.Fatalf("PlanPath other site: %v", err)
	}
	want = []string{"exit", "exit", "switch shop2", "configure terminal"}
	got := planCommands(plan)
	if len(got) != len(want) {
		t.Fatalf("switch plan = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("switch plan[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPlanPath_SysContextExitLandsOnTarget(t *testing.T) {
	h := mustHandler(t, vsiteConfig())
	h.SetSysContext("shop1")
	h.Read("array#")
	h.Read("shop1$")

	// Leaving for a plain state under a different context still walks the
	// exit edges and stops there.
	h.SetSysContext("shop2")
	plan, err := h.PlanPath("enable")
	if err != nil {
		t.Fatalf("PlanPath: %v", err)
	}
	got := planCommands(plan)
	if len(got) != 1 || got[0] != "exit" {
		t.Fatalf("plan = %v, want [exit]", got)
	}
}

func TestPlanPath_SysScopeWithoutExitEdge(t *testing.T) {
	cfg := vsiteConfig()
	// Strip the exit flags: the scope becomes a trap for context switches.
	for i := range cfg.Edges {
		cfg.Edges[i].Exit = false
	}
	h := mustHandler(t, cfg)
	h.SetSysContext("shop1")
	h.Read("array#")
	h.Read("shop1$")

	h.SetSysContext("shop2")
	if _, err := h.PlanPath("vsiteconfig"); !errors.Is(err, ErrUnreachableState) {
		t.Fatalf("expected ErrUnreachableState without exit edges, got %v", err)
	}
}

func TestDiagnose(t *testing.T) {
	cfg := ciscoConfig()
	cfg.States = append(cfg.States, StateConfig{Name: "Rommon", Prompts: []string{`^rommon \d+ >`}})
	h := mustHandler(t, cfg)

	d := h.Diagnose("router#", "rommon 1 >")

	if len(d.GraphStates) != 4 {
		t.Fatalf("expected 4 graph states, got %v", d.GraphStates)
	}
	if len(d.DeadEndStates) != 1 || d.DeadEndStates[0] != "Rommon" {
		t.Errorf("dead ends = %v, want [Rommon]", d.DeadEndStates)
	}
	if len(d.UnreachableStates) != 1 || d.UnreachableStates[0] != "Rommon" {
		t.Errorf("unreachable = %v, want [Rommon]", d.UnreachableStates)
	}
	if len(d.PromptConflicts) != 0 {
		t.Errorf("unexpected prompt conflicts: %v", d.PromptConflicts)
	}
}

func TestDiagnose_PromptConflicts(t *testing.T) {
	h := mustHandler(t, Config{
		States: []StateConfig{
			{Name: "login", Prompts: []string{`#$`}},
			{Name: "other", Prompts: []string{`router#$`}},
		},
	})
	d := h.Diagnose("router#")
	if len(d.PromptConflicts) != 1 {
		t.Fatalf("expected one conflict, got %v", d.PromptConflicts)
	}
	c := d.PromptConflicts[0]
	if c.Sample != "router#" || len(c.States) != 2 {
		t.Fatalf("unexpected conflict %+v", c)
	}
}
