package recording

import (
	"errors"
	"fmt"
	"strings"
)

// Replay errors.
var (
	// ErrReplayMismatch reports that the next recorded command output does
	// not match the requested command (or mode).
	ErrReplayMismatch = errors.New("replay mismatch")
	// ErrReplayExhausted reports that the recording holds no further
	// command outputs.
	ErrReplayExhausted = errors.New("replay exhausted")
)

// Output mirrors a live command result as stored in a recording.
type Output struct {
	Success bool
	Content string
	All     string
	Prompt  string
}

// Context is the connection context captured at recording time.
type Context struct {
	DeviceAddr string
	Prompt     string
	FSMPrompt  string
}

// Replayer walks a recording's command_output events in order and derives
// outputs from them without a live device. The cursor must match the next
// recorded command; intervening non-matching outputs are not skipped.
type Replayer struct {
	events []Event
	cursor int
}

// NewReplayer builds a replayer from a recorder snapshot.
func NewReplayer(r *Recorder) *Replayer {
	return &Replayer{events: r.Events()}
}

// ReplayerFromJSONL builds a replayer directly from JSONL recording data.
func ReplayerFromJSONL(s string) (*Replayer, error) {
	r, err := FromJSONL(s)
	if err != nil {
		return nil, err
	}
	return NewReplayer(r), nil
}

// InitialContext returns the connection context from the recording's
// connection_established event, if present.
func (p *Replayer) InitialContext() (Context, bool) {
	for i := range p.events {
		if p.events[i].Kind == KindConnectionEstablished {
			return Context{
				DeviceAddr: p.events[i].DeviceAddr,
				Prompt:     p.events[i].PromptAfter,
				FSMPrompt:  p.events[i].FSMPromptAfter,
			}, true
		}
	}
	return Context{}, false
}

// ReplayNext returns the output of the next recorded command, which must
// equal command.
func (p *Replayer) ReplayNext(command string) (Output, error) {
	return p.replayNext(command, "")
}

// ReplayNextInMode additionally requires the recorded mode to match
// (case-insensitively).
func (p *Replayer) ReplayNextInMode(command, mode string) (Output, error) {
	return p.replayNext(command, mode)
}

// ReplayScript replays each command in order.
func (p *Replayer) ReplayScript(commands []string) ([]Output, error) {
	outputs := make([]Output, 0, len(commands))
	for _, cmd := range commands {
		out, err := p.ReplayNext(cmd)
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (p *Replayer) replayNext(command, mode string) (Output, error) {
	for p.cursor < len(p.events) {
		e := &p.events[p.cursor]
		if e.Kind != KindCommandOutput {
			p.cursor++
			continue
		}
		if e.Command != command {
			return Output{}, fmt.Errorf("%w: next recorded command is %q, requested %q", ErrReplayMismatch, e.Command, command)
		}
		if mode != "" && !strings.EqualFold(e.Mode, mode) {
			return Output{}, fmt.Errorf("%w: command %q was recorded in mode %q, requested %q", ErrReplayMismatch, command, e.Mode, mode)
		}
		p.cursor++
		out := Output{
			Content: e.Content,
			All:     e.All,
			Prompt:  e.PromptAfter,
		}
		if e.Success != nil {
			out.Success = *e.Success
		}
		return out, nil
	}
	return Output{}, fmt.Errorf("%w: no recorded output for command %q", ErrReplayExhausted, command)
}
