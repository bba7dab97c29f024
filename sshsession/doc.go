// Package sshsession provides the connection-pooled, prompt-aware SSH command
// executor.
//
// Each live connection is owned by a single session actor: one goroutine that
// holds the shell channel and the device state machine, serializes command
// jobs, answers interactive sub-prompts and enforces per-command timeouts.
// The Manager is the process-wide pool keyed by (user, host, port, sys) with
// idle eviction, a concurrency cap and connect coalescing.
package sshsession
