package recording

import (
	"strings"
	"time"
)

// defaultRedactPlaceholder replaces sensitive responses in normalized
// fixtures.
const defaultRedactPlaceholder = "*****"

// NormalizeOptions controls fixture normalization.
type NormalizeOptions struct {
	// KeepRawChunks keeps raw_shell_chunk events instead of collapsing
	// them into their resulting command_output.
	KeepRawChunks bool
	// KeepPromptReads keeps prompt_read events.
	KeepPromptReads bool
	// KeepStateTransitions keeps state_transition events.
	KeepStateTransitions bool
	// RedactResponses lists sensitive response strings (dynamic inputs
	// flagged sensitive) to be replaced wherever they appear in captured
	// text.
	RedactResponses []string
	// RedactPlaceholder overrides the default "*****" replacement.
	RedactPlaceholder string
}

// Normalize rewrites a raw JSONL recording into a deterministic fixture:
// timestamps are stripped, sequence numbers renumbered, raw shell chunk runs
// collapsed into their resulting command_output, and sensitive response text
// redacted. Opaque events from newer formats are dropped, since their
// timestamps cannot be stripped.
func Normalize(jsonl string, opts NormalizeOptions) (string, error) {
	r, err := FromJSONL(jsonl)
	if err != nil {
		return "", err
	}

	placeholder := opts.RedactPlaceholder
	if placeholder == "" {
		placeholder = defaultRedactPlaceholder
	}

	out := NewRecorder(LevelFull)
	var seq uint64
	for _, e := range r.Events() {
		if !e.Known() {
			continue
		}
		switch e.Kind {
		case KindRawShellChunk:
			if !opts.KeepRawChunks {
				continue
			}
		case KindPromptRead:
			if !opts.KeepPromptReads {
				continue
			}
		case KindStateTransition:
			if !opts.KeepStateTransitions {
				continue
			}
		}

		for _, secret := range opts.RedactResponses {
			if secret == "" {
				continue
			}
			e.Data = strings.ReplaceAll(e.Data, secret, placeholder)
			e.Content = strings.ReplaceAll(e.Content, secret, placeholder)
			e.All = strings.ReplaceAll(e.All, secret, placeholder)
			e.Reason = strings.ReplaceAll(e.Reason, secret, placeholder)
		}

		seq++
		e.Seq = seq
		e.TS = time.Time{}
		out.events = append(out.events, e)
	}
	out.seq = seq

	return out.ToJSONL()
}
