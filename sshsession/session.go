package sshsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/netgrip/netgrip/transaction"
)

// Sentinel errors for runtime transport and execution failures. Configuration
// and addressing failures surface the devicefsm sentinels unchanged.
var (
	// ErrChannelDisconnect reports a torn-down SSH channel. In-flight and
	// queued jobs of a poisoned session all fail with it.
	ErrChannelDisconnect = errors.New("ssh channel disconnected")
	// ErrExecTimeout reports a job that exceeded its timeout.
	ErrExecTimeout = errors.New("command execution timed out")
	// ErrUnknownInitialState reports that no configured prompt was
	// observed while establishing the device's initial mode.
	ErrUnknownInitialState = errors.New("unknown initial device state")
	// ErrManagerClosed reports a Get on a shut-down manager.
	ErrManagerClosed = errors.New("connection manager closed")
)

// DefaultTimeout bounds a job whose command does not set its own timeout.
const DefaultTimeout = 60 * time.Second

// Timeout wraps a duration for the optional timeout fields.
func Timeout(d time.Duration) *time.Duration { return &d }

// Command is one command to execute in a target device mode.
type Command struct {
	// Mode is the target state name; the actor transitions to it first.
	Mode string
	// Command is the text written to the shell.
	Command string
	// Timeout bounds the whole job. Nil means DefaultTimeout; an explicit
	// zero or negative timeout is rejected as a configuration error.
	Timeout *time.Duration
}

// Output is the result of one executed command.
type Output struct {
	// Success is false when any output line matched the template's error
	// patterns.
	Success bool
	// Content is the command output with the echo and trailing prompt
	// stripped.
	Content string
	// All is the raw captured text including echo and prompt.
	All string
	// Prompt is the prompt line the device returned to afterwards.
	Prompt string
}

// JobResult is delivered on a job's responder channel.
type JobResult struct {
	Output Output
	Err    error
}

// CmdJob is a queued command execution request.
type CmdJob struct {
	Data Command
	// Sys optionally overrides the session's sys context for this job.
	Sys string
	// Responder receives the result. It should be buffered; a dropped or
	// full responder discards the output (the command still runs and is
	// recorded).
	Responder chan<- JobResult
}

// ConnectionKey identifies one pooled connection. The password is
// deliberately not part of the key.
type ConnectionKey struct {
	User string
	Host string
	Port int
	Sys  string
}

// Addr returns the user@host:port form of the key.
func (k ConnectionKey) Addr() string {
	return fmt.Sprintf("%s@%s:%d", k.User, k.Host, k.Port)
}

// String returns the full key including the sys context.
func (k ConnectionKey) String() string {
	if k.Sys == "" {
		return k.Addr()
	}
	return k.Addr() + "/" + k.Sys
}

// Handle submits jobs to one pooled session. Jobs submitted through the same
// handle execute in submission order.
type Handle struct {
	key ConnectionKey
	a   *actor
}

// Key returns the connection key this handle is bound to.
func (h *Handle) Key() ConnectionKey { return h.key }

// Submit enqueues a job. It fails with ErrChannelDisconnect once the session
// is torn down.
func (h *Handle) Submit(job CmdJob) error {
	select {
	case <-h.a.exited:
		return ErrChannelDisconnect
	default:
	}
	select {
	case h.a.jobs <- job:
		// The send may land after the actor's final queue drain; fail
		// whatever is still queued so the job gets its reply.
		select {
		case <-h.a.exited:
			h.a.failQueued()
		default:
		}
		return nil
	case <-h.a.exited:
		return ErrChannelDisconnect
	}
}

// Run submits a command under the session's own sys context and waits for
// its result. Cancelling ctx abandons the wait; the actor still completes the
// command and discards the output.
func (h *Handle) Run(ctx context.Context, cmd Command) (Output, error) {
	return h.RunWithSys(ctx, cmd, h.key.Sys)
}

// RunWithSys is Run with an explicit sys context for this job, overriding the
// session's own.
func (h *Handle) RunWithSys(ctx context.Context, cmd Command, sys string) (Output, error) {
	responder := make(chan JobResult, 1)
	if err := h.Submit(CmdJob{Data: cmd, Sys: sys, Responder: responder}); err != nil {
		return Output{}, err
	}
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	case res := <-responder:
		return res.Output, res.Err
	}
}

// Execute implements transaction.Executor over this session.
func (h *Handle) Execute(ctx context.Context, mode, command string, timeout *time.Duration) (transaction.ExecResult, error) {
	out, err := h.Run(ctx, Command{Mode: mode, Command: command, Timeout: timeout})
	return transaction.ExecResult{
		Success: out.Success,
		Content: out.Content,
		All:     out.All,
		Prompt:  out.Prompt,
	}, err
}
