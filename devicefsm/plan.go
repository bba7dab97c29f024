package devicefsm

import "fmt"

// PlanPath computes the transition path from the current state to target.
// When the handler sits in a sys-scoped state entered under a different
// context than the one currently requested, the plan first walks exit edges
// out of the sys scope and then routes to the target, so the switch command
// re-renders with the new context. The remainder is a BFS shortest path;
// equal-length paths resolve to the one whose commands sort
// lexicographically, so planning is deterministic. An empty plan means the
// handler is already at the target in the right context.
func (h *Handler) PlanPath(target string) ([]Edge, error) {
	if h.closed {
		return nil, ErrClosed
	}
	goal, ok := h.index[normalizeState(target)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTargetStateNotExist, target)
	}
	if h.current < 0 {
		return nil, fmt.Errorf("%w: current state unknown", ErrUnreachableState)
	}

	start := h.current
	var prefix []Edge
	if h.states[h.current].sysScoped && h.activeSys != h.sys {
		var err error
		prefix, start, err = h.exitSysScope()
		if err != nil {
			return nil, err
		}
	}

	if start == goal {
		return prefix, nil
	}

	path, err := h.shortestPath(start, goal, target)
	if err != nil {
		return nil, err
	}
	return append(prefix, path...), nil
}

// exitSysScope walks Exit-flagged edges from the current state until it
// leaves the sys-scoped states, returning the walked edges and the landing
// state index.
func (h *Handler) exitSysScope() ([]Edge, int, error) {
	cur := h.current
	var path []Edge
	for h.states[cur].sysScoped {
		if len(path) > len(h.states) {
			return nil, 0, fmt.Errorf("%w: exit edges cycle inside sys scope", ErrUnreachableState)
		}
		next := -1
		for i := range h.edges {
			if h.edges[i].from == cur && h.edges[i].config.Exit {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, 0, fmt.Errorf("%w: no exit edge from %q", ErrUnreachableState, h.states[cur].display)
		}
		e := h.edges[next]
		path = append(path, Edge{
			From:    h.states[e.from].display,
			To:      h.states[e.to].display,
			Command: h.renderCommand(e.command),
			Inputs:  e.config.Inputs,
		})
		cur = e.to
	}
	return path, cur, nil
}

// shortestPath is a standard BFS with a predecessor array for path
// reconstruction.
func (h *Handler) shortestPath(start, goal int, target string) ([]Edge, error) {
	prev := make([]int, len(h.states)) // predecessor edge index, -1 = unvisited
	for i := range prev {
		prev[i] = -1
	}
	visited := make([]bool, len(h.states))
	visited[start] = true
	queue := []int{start}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == goal {
			break
		}
		for _, ei := range h.outgoing[node] {
			next := h.edges[ei].to
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = ei
			queue = append(queue, next)
		}
	}

	if !visited[goal] {
		return nil, fmt.Errorf("%w: no path from %q to %q", ErrUnreachableState, h.states[start].display, target)
	}

	var path []Edge
	for node := goal; node != start; {
		e := h.edges[prev[node]]
		path = append(path, Edge{
			From:    h.states[e.from].display,
			To:      h.states[e.to].display,
			Command: h.renderCommand(e.command),
			Inputs:  e.config.Inputs,
		})
		node = e.from
	}
	// Reverse: the path was built goal-first.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}
