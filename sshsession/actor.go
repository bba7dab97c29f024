package sshsession

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netgrip/netgrip/devicefsm"
	"github.com/netgrip/netgrip/internal/logutil"
	"github.com/netgrip/netgrip/recording"
	"github.com/netgrip/netgrip/sshtransport"
)

const (
	// defaultBootstrapTimeout bounds the wait for the initial prompt after
	// the shell opens.
	defaultBootstrapTimeout = 10 * time.Second
	// defaultDrainGrace bounds the post-timeout drain to a fresh prompt
	// before the session is declared poisoned.
	defaultDrainGrace = 5 * time.Second

	jobQueueSize   = 32
	chunkQueueSize = 64
)

// actor owns exactly one shell channel and one device handler. A single
// goroutine serializes jobs, so the handler needs no locking.
type actor struct {
	key     ConnectionKey
	shell   sshtransport.Shell
	handler *devicefsm.Handler

	jobs   chan CmdJob
	stop   chan struct{} // closed by shutdown()
	exited chan struct{} // closed when the run loop (or abort) finishes

	chunks  chan string
	readErr chan error

	recMu sync.Mutex
	rec   *recording.Recorder

	// pending buffers the trailing partial line between stream reads;
	// prompts often arrive without a newline.
	pending string
	// prompt is the last prompt line observed on the wire.
	prompt string

	poisoned   atomic.Bool
	stopOnce   sync.Once
	exitOnce   sync.Once
	closeOnce  sync.Once
	onFatal    func(cause string)
	onActivity func()

	bootstrapTimeout time.Duration
	drainGrace       time.Duration
}

func newActor(key ConnectionKey, shell sshtransport.Shell, handler *devicefsm.Handler, rec *recording.Recorder, onFatal func(string), onActivity func()) *actor {
	return &actor{
		key:              key,
		shell:            shell,
		handler:          handler,
		jobs:             make(chan CmdJob, jobQueueSize),
		stop:             make(chan struct{}),
		exited:           make(chan struct{}),
		chunks:           make(chan string, chunkQueueSize),
		readErr:          make(chan error, 1),
		rec:              rec,
		onFatal:          onFatal,
		onActivity:       onActivity,
		bootstrapTimeout: defaultBootstrapTimeout,
		drainGrace:       defaultDrainGrace,
	}
}

func (a *actor) recorder() *recording.Recorder {
	a.recMu.Lock()
	defer a.recMu.Unlock()
	return a.rec
}

func (a *actor) setRecorder(rec *recording.Recorder) {
	a.recMu.Lock()
	a.rec = rec
	a.recMu.Unlock()
}

func (a *actor) healthy() bool {
	if a.poisoned.Load() {
		return false
	}
	select {
	case <-a.exited:
		return false
	default:
		return true
	}
}

// shutdown asks the actor to exit. A job still waiting on device output is
// aborted with ErrChannelDisconnect, and queued jobs are failed with
// ErrChannelDisconnect.
func (a *actor) shutdown() {
	a.stopOnce.Do(func() { close(a.stop) })
}

func (a *actor) markExited() {
	a.exitOnce.Do(func() { close(a.exited) })
}

func (a *actor) closeShell() {
	a.closeOnce.Do(func() { a.shell.Close() })
}

// abort tears down a half-constructed actor whose run loop never started.
func (a *actor) abort() {
	a.markExited()
	a.closeShell()
	a.handler.Close()
}

// startPump begins relaying shell output into the chunk queue.
func (a *actor) startPump() {
	go a.readPump()
}

func (a *actor) readPump() {
	buf := make([]byte, 4096)
	for {
		n, err := a.shell.Read(buf)
		if n > 0 {
			select {
			case a.chunks <- string(buf[:n]):
			case <-a.exited:
				return
			}
		}
		if err != nil {
			select {
			case a.readErr <- err:
			default:
			}
			return
		}
	}
}

// run is the actor's single-writer loop.
func (a *actor) run() {
	for {
		select {
		case <-a.stop:
			a.exit("shutdown")
			return
		case job := <-a.jobs:
			start := time.Now()
			res := a.handle(job)
			a.deliver(job, res)
			observeJob(res.Err, time.Since(start))
			if res.Err == nil && a.onActivity != nil {
				a.onActivity()
			}
			if a.poisoned.Load() {
				a.exit("poisoned")
				return
			}
		}
	}
}

// exit tears the session down and fails queued jobs. The queue is drained
// again after exited closes, so a submit racing the shutdown still gets its
// ChannelDisconnect reply.
func (a *actor) exit(reason string) {
	a.teardown(reason)
	a.failQueued()
	a.markExited()
	a.failQueued()
}

func (a *actor) teardown(reason string) {
	a.closeShell()
	a.handler.Close()
	log.Printf("[actor] %s session closed (%s)", logutil.SanitizeForLog(a.key.String()), reason)
}

// failQueued replies ChannelDisconnect to every job still in the queue.
func (a *actor) failQueued() {
	for {
		select {
		case job := <-a.jobs:
			a.deliver(job, JobResult{Err: ErrChannelDisconnect})
		default:
			return
		}
	}
}

// deliver sends the result without blocking: a dropped responder discards the
// output, which was still recorded.
func (a *actor) deliver(job CmdJob, res JobResult) {
	if job.Responder == nil {
		return
	}
	select {
	case job.Responder <- res:
	default:
	}
}

// handle runs one job through its full lifecycle: establish the current
// state, walk the transition plan, execute the target command and assemble
// the output.
func (a *actor) handle(job CmdJob) JobResult {
	cmd := job.Data
	timeout := DefaultTimeout
	if cmd.Timeout != nil {
		if *cmd.Timeout <= 0 {
			return JobResult{Err: fmt.Errorf("%w: timeout must be positive, got %v", devicefsm.ErrConfig, *cmd.Timeout)}
		}
		timeout = *cmd.Timeout
	}
	deadline := time.Now().Add(timeout)

	if job.Sys != "" {
		a.handler.SetSysContext(job.Sys)
	}

	a.consumeResidual()

	if _, ok := a.handler.CurrentState(); !ok {
		if err := a.bootstrap(deadline); err != nil {
			return JobResult{Err: err}
		}
	}

	promptBefore := a.prompt
	fsmBefore, _ := a.handler.CurrentState()

	if err := a.transition(cmd.Mode, deadline); err != nil {
		a.recordError(err, cmd)
		return JobResult{Err: err}
	}

	out, err := a.execute(cmd.Command, deadline)
	if err != nil {
		a.recordError(err, cmd)
		return JobResult{Err: err}
	}

	fsmAfter, _ := a.handler.CurrentState()
	a.recorder().Record(recording.Event{
		Kind:            recording.KindCommandOutput,
		Command:         cmd.Command,
		Mode:            cmd.Mode,
		PromptBefore:    promptBefore,
		PromptAfter:     a.prompt,
		FSMPromptBefore: fsmBefore,
		FSMPromptAfter:  fsmAfter,
		Success:         recording.Bool(out.Success),
		Content:         out.Content,
		All:             out.All,
	})
	return JobResult{Output: out}
}

func (a *actor) recordError(err error, cmd Command) {
	a.recorder().Record(recording.Event{
		Kind:    recording.KindError,
		Command: cmd.Command,
		Mode:    cmd.Mode,
		Reason:  err.Error(),
	})
}

// consumeResidual feeds output that arrived between jobs (asynchronous
// notifications, idle-timeout prompt changes) through the state machine and
// drops the stale trailing partial line.
func (a *actor) consumeResidual() {
	for {
		select {
		case data := <-a.chunks:
			a.recorder().RecordRawChunk(data)
			a.pending += data
		default:
			var sawError bool
			for {
				idx := strings.IndexByte(a.pending, '\n')
				if idx < 0 {
					break
				}
				line := trimLineControls(a.pending[:idx])
				a.pending = a.pending[idx+1:]
				a.feedLine(line, &sawError)
			}
			a.pending = ""
			return
		}
	}
}

// bootstrap waits for the first prompt so the handler leaves the unknown
// state.
func (a *actor) bootstrap(deadline time.Time) error {
	bd := time.Now().Add(a.bootstrapTimeout)
	if bd.After(deadline) {
		bd = deadline
	}
	if _, _, err := a.readUntilPrompt(bd, nil, false); err != nil {
		if errors.Is(err, ErrExecTimeout) {
			return fmt.Errorf("%w: no configured prompt observed", ErrUnknownInitialState)
		}
		return err
	}
	return nil
}

// bootstrapConnect establishes the initial prompt right after connecting,
// before the run loop starts.
func (a *actor) bootstrapConnect() error {
	return a.bootstrap(time.Now().Add(a.bootstrapTimeout))
}

// transition walks the planned edges toward mode. Any prompt is accepted
// after each edge command; when the observed state diverges from the edge's
// declared target the remaining plan is recomputed from wherever the device
// landed. The walk is bounded: it fails with UnreachableState when it has not
// converged within plan-length x 4 extra steps.
func (a *actor) transition(mode string, deadline time.Time) error {
	plan, err := a.handler.PlanPath(mode)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return nil
	}

	maxSteps := len(plan) * 5 // initial plan plus 4x extra reads
	steps := 0
	for len(plan) > 0 {
		if steps >= maxSteps {
			return fmt.Errorf("%w: transition to %q did not converge", devicefsm.ErrUnreachableState, mode)
		}
		steps++

		edge := plan[0]
		plan = plan[1:]
		if err := a.writeLine(edge.Command); err != nil {
			return err
		}
		if _, _, err := a.readUntilPrompt(deadline, nil, true); err != nil {
			if errors.Is(err, ErrExecTimeout) {
				return a.recoverFromTimeout("transition " + edge.Command)
			}
			return err
		}
		if !a.handler.AtState(edge.To) {
			// Landed elsewhere; replan from the observed state. An empty
			// replan means the device is already at the target in the
			// right context.
			plan, err = a.handler.PlanPath(mode)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// execute writes the target command and captures everything up to the next
// prompt.
func (a *actor) execute(command string, deadline time.Time) (Output, error) {
	var capture strings.Builder
	if err := a.writeLine(command); err != nil {
		return Output{}, err
	}
	promptLine, sawError, err := a.readUntilPrompt(deadline, &capture, true)
	if err != nil {
		if errors.Is(err, ErrExecTimeout) {
			return Output{}, a.recoverFromTimeout("command " + command)
		}
		return Output{}, err
	}

	all := capture.String()
	return Output{
		Success: !sawError,
		Content: extractContent(all, command, promptLine),
		All:     all,
		Prompt:  strings.TrimSpace(promptLine),
	}, nil
}

// recoverFromTimeout tries to drain the channel back to a fresh prompt within
// the grace period. Success keeps the session alive; failure poisons it.
func (a *actor) recoverFromTimeout(stage string) error {
	if err := a.writeLine(""); err != nil {
		return fmt.Errorf("%w: %s", ErrExecTimeout, stage)
	}
	a.handler.Reset()
	if _, _, err := a.readUntilPrompt(time.Now().Add(a.drainGrace), nil, false); err != nil {
		a.poison(fmt.Sprintf("drain after timeout failed: %v", err))
		return fmt.Errorf("%w: %s (session poisoned)", ErrExecTimeout, stage)
	}
	return fmt.Errorf("%w: %s", ErrExecTimeout, stage)
}

// readUntilPrompt accumulates stream data, feeds complete lines through the
// state machine and answers interactive sub-prompts. It returns when a prompt
// is observed, either as a complete line or on the trailing partial line.
// With requireEcho, at least one line (the command echo) must be consumed
// before a prompt terminates the read.
func (a *actor) readUntilPrompt(deadline time.Time, capture *strings.Builder, requireEcho bool) (string, bool, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	sawError := false
	echoSeen := !requireEcho

	for {
		// Complete lines first.
		for {
			idx := strings.IndexByte(a.pending, '\n')
			if idx < 0 {
				break
			}
			line := trimLineControls(a.pending[:idx])
			a.pending = a.pending[idx+1:]

			isPrompt := false
			if _, ok := a.handler.ReadPrompt(line); ok && echoSeen && line != "" {
				isPrompt = true
			}
			echoSeen = true

			if capture != nil {
				capture.WriteString(line)
				if !isPrompt {
					capture.WriteByte('\n')
				}
			}
			a.feedLine(line, &sawError)
			if isPrompt {
				a.observePrompt(line)
				return line, sawError, nil
			}
		}

		// The trailing partial line may be a prompt without a newline.
		if a.pending != "" {
			partial := trimLineControls(a.pending)
			if _, ok := a.handler.ReadPrompt(partial); ok && echoSeen {
				a.pending = ""
				if capture != nil {
					capture.WriteString(partial)
				}
				var ignored bool
				a.feedLine(partial, &ignored)
				a.observePrompt(partial)
				return partial, sawError, nil
			}
			if resp, _, ok := a.handler.ReadNeedWrite(partial); ok {
				a.pending = ""
				if capture != nil {
					capture.WriteString(partial)
					capture.WriteByte('\n')
				}
				a.handler.Read(partial)
				if err := a.writeLine(resp); err != nil {
					return "", sawError, err
				}
			}
		}

		select {
		case data := <-a.chunks:
			a.recorder().RecordRawChunk(data)
			a.pending += data
		case err := <-a.readErr:
			return "", sawError, a.fatal(fmt.Errorf("stream read: %v", err))
		case <-timer.C:
			return "", sawError, ErrExecTimeout
		case <-a.stop:
			return "", sawError, a.fatal(errors.New("actor stopped mid-read"))
		}
	}
}

// feedLine pushes one complete line through the state machine, flags error
// output and answers interactive sub-prompts.
func (a *actor) feedLine(line string, sawError *bool) {
	changed := a.handler.Read(line)
	if changed {
		if name, ok := a.handler.CurrentState(); ok {
			a.recorder().Record(recording.Event{Kind: recording.KindStateTransition, State: name})
		}
	}
	if a.handler.IsErrorLine(line) {
		*sawError = true
	}
	if resp, _, ok := a.handler.ReadNeedWrite(line); ok {
		_ = a.writeLine(resp)
	}
}

func (a *actor) observePrompt(line string) {
	a.prompt = line
	a.recorder().Record(recording.Event{Kind: recording.KindPromptRead, Prompt: line})
}

func (a *actor) writeLine(s string) error {
	if _, err := a.shell.Write([]byte(s + "\n")); err != nil {
		return a.fatal(fmt.Errorf("stream write: %v", err))
	}
	return nil
}

// fatal poisons the session and wraps the cause as a ChannelDisconnect.
func (a *actor) fatal(cause error) error {
	a.poison(cause.Error())
	return fmt.Errorf("%w: %v", ErrChannelDisconnect, cause)
}

func (a *actor) poison(cause string) {
	if a.poisoned.Swap(true) {
		return
	}
	log.Printf("[actor] %s poisoned: %s", logutil.SanitizeForLog(a.key.String()), logutil.SanitizeForLog(logutil.Truncate(cause, 200)))
	a.recorder().Record(recording.Event{Kind: recording.KindError, Reason: cause})
	a.closeShell()
	if a.onFatal != nil {
		a.onFatal(cause)
	}
}

// trimLineControls strips the carriage returns, backspaces and NULs devices
// prepend to lines, plus the trailing carriage return.
func trimLineControls(line string) string {
	line = strings.TrimRight(line, "\r")
	return strings.TrimLeft(line, "\x00\b\r")
}

// extractContent strips the echoed command line and the trailing prompt from
// the raw capture.
func extractContent(all, command, promptLine string) string {
	lines := strings.Split(all, "\n")
	if len(lines) > 0 && command != "" && strings.Contains(lines[0], command) {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && lines[n-1] == promptLine {
		lines = lines[:n-1]
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\r\n")
}
