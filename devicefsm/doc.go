// Package devicefsm implements the prompt-driven state machine used to track
// and steer the mode of a network device over an interactive shell.
//
// A Handler is configured with a set of named states (device modes), one or
// more prompt regexes per state, and a directed graph of transitions. Streamed
// output lines are fed into the handler one at a time; whenever a line matches
// a prompt pattern the handler updates its notion of the current mode. Given a
// target mode, the handler plans the shortest command sequence to reach it
// using BFS over the transition graph.
//
// The handler is intentionally not safe for concurrent use: it is owned and
// mutated by exactly one session actor.
package devicefsm
