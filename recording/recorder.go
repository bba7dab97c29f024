package recording

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrJSONLParse reports a recording line that is not valid JSON.
var ErrJSONLParse = errors.New("jsonl parse error")

// Level controls recording verbosity.
type Level int

const (
	// LevelOff records nothing.
	LevelOff Level = iota
	// LevelKeyEvents records lifecycle, command outputs and errors but no
	// raw shell chunks.
	LevelKeyEvents
	// LevelFull additionally records every raw shell chunk.
	LevelFull
)

// String returns the level name used in configuration.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelKeyEvents:
		return "key_events"
	case LevelFull:
		return "full"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses a level name. Accepted values: off, key_events, full.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff, nil
	case "key_events", "keyevents", "key-events":
		return LevelKeyEvents, nil
	case "full":
		return LevelFull, nil
	default:
		return LevelOff, fmt.Errorf("unknown recording level %q", s)
	}
}

// Recorder is an append-only, thread-safe session event log. All methods are
// safe on a nil receiver, so recording call sites need no guards.
type Recorder struct {
	mu        sync.Mutex
	level     Level
	seq       uint64
	events    []Event
	sessionID string
}

// NewRecorder creates a recorder with the given verbosity level.
func NewRecorder(level Level) *Recorder {
	return &Recorder{level: level, sessionID: uuid.NewString()}
}

// Level returns the recorder's verbosity level.
func (r *Recorder) Level() Level {
	if r == nil {
		return LevelOff
	}
	return r.level
}

// SessionID returns the unique ID stamped on this recording.
func (r *Recorder) SessionID() string {
	if r == nil {
		return ""
	}
	return r.sessionID
}

// Record appends an event, stamping its sequence number and timestamp.
// Raw shell chunks are dropped below LevelFull; everything else is dropped
// only at LevelOff.
func (r *Recorder) Record(e Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.level == LevelOff {
		return
	}
	if e.Kind == KindRawShellChunk && r.level != LevelFull {
		return
	}
	r.seq++
	e.Seq = r.seq
	if e.TS.IsZero() {
		e.TS = time.Now().UTC()
	}
	r.events = append(r.events, e)
}

// RecordRawChunk records one raw shell data chunk (LevelFull only).
func (r *Recorder) RecordRawChunk(data string) {
	r.Record(Event{Kind: KindRawShellChunk, Data: data})
}

// Events returns a copy of all recorded events in sequence order.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Clear removes all recorded events. The sequence counter keeps counting so
// numbers stay monotonic across a clear.
func (r *Recorder) Clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// ToJSONL serializes the recording, one event per line in sequence order.
// Opaque events from a newer format are emitted verbatim.
func (r *Recorder) ToJSONL() (string, error) {
	if r == nil {
		return "", nil
	}
	events := r.Events()
	var b strings.Builder
	for i := range events {
		if events[i].raw != nil {
			b.Write(events[i].raw)
			b.WriteByte('\n')
			continue
		}
		line, err := json.Marshal(&events[i])
		if err != nil {
			return "", fmt.Errorf("encode event %d: %w", events[i].Seq, err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// FromJSONL parses a recording. Unknown fields are ignored and unknown event
// kinds are preserved as opaque entries. The legacy `prompt`/`state` field
// names on connection_established are accepted and mapped to their current
// names.
func FromJSONL(s string) (*Recorder, error) {
	r := NewRecorder(LevelFull)
	lineNo := 0
	for _, line := range strings.Split(s, "\n") {
		lineNo++
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(trimmed), &e); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrJSONLParse, lineNo, err)
		}
		if e.Kind == KindConnectionEstablished {
			// Legacy recordings used `prompt` and `state` here.
			if e.PromptAfter == "" && e.Prompt != "" {
				e.PromptAfter = e.Prompt
				e.Prompt = ""
			}
			if e.FSMPromptAfter == "" && e.State != "" {
				e.FSMPromptAfter = e.State
				e.State = ""
			}
		}
		if !e.Known() {
			e.raw = []byte(trimmed)
		}
		r.events = append(r.events, e)
		if e.Seq > r.seq {
			r.seq = e.Seq
		}
	}
	return r, nil
}
