package recording

import "time"

// Event kinds. Unknown kinds encountered on read are preserved as opaque
// entries rather than rejected, so newer recordings stay loadable.
const (
	KindConnectionEstablished   = "connection_established"
	KindConnectionClosed        = "connection_closed"
	KindCommandOutput           = "command_output"
	KindPromptRead              = "prompt_read"
	KindStateTransition         = "state_transition"
	KindRawShellChunk           = "raw_shell_chunk"
	KindTxBlockStarted          = "tx_block_started"
	KindTxBlockFinished         = "tx_block_finished"
	KindTxStepSucceeded         = "tx_step_succeeded"
	KindTxStepFailed            = "tx_step_failed"
	KindTxRollbackStarted       = "tx_rollback_started"
	KindTxRollbackStepSucceeded = "tx_rollback_step_succeeded"
	KindTxRollbackStepFailed    = "tx_rollback_step_failed"
	KindTxWorkflowStarted       = "tx_workflow_started"
	KindTxWorkflowFinished      = "tx_workflow_finished"
	KindError                   = "error"
)

// Event is one recorded session event. Kind decides which of the optional
// fields are meaningful; every event carries a monotonic sequence number and
// a wall-clock timestamp.
type Event struct {
	Kind string    `json:"kind"`
	Seq  uint64    `json:"seq"`
	TS   time.Time `json:"ts"`

	// Connection events.
	DeviceAddr string `json:"device_addr,omitempty"`
	Reason     string `json:"reason,omitempty"`

	// Prompt and state observations.
	Prompt string `json:"prompt,omitempty"`
	State  string `json:"state,omitempty"`

	// Raw shell data (LevelFull only).
	Data string `json:"data,omitempty"`

	// Command execution.
	Command         string `json:"command,omitempty"`
	Mode            string `json:"mode,omitempty"`
	PromptBefore    string `json:"prompt_before,omitempty"`
	PromptAfter     string `json:"prompt_after,omitempty"`
	FSMPromptBefore string `json:"fsm_prompt_before,omitempty"`
	FSMPromptAfter  string `json:"fsm_prompt_after,omitempty"`
	Success         *bool  `json:"success,omitempty"`
	Content         string `json:"content,omitempty"`
	All             string `json:"all,omitempty"`

	// Transaction lifecycle.
	BlockName         string `json:"block_name,omitempty"`
	BlockKind         string `json:"block_kind,omitempty"`
	WorkflowName      string `json:"workflow_name,omitempty"`
	StepIndex         *int   `json:"step_index,omitempty"`
	StepCount         *int   `json:"step_count,omitempty"`
	BlockCount        *int   `json:"block_count,omitempty"`
	Policy            string `json:"policy,omitempty"`
	Committed         *bool  `json:"committed,omitempty"`
	RollbackAttempted *bool  `json:"rollback_attempted,omitempty"`
	RollbackSucceeded *bool  `json:"rollback_succeeded,omitempty"`

	// raw holds the original line for events whose kind this version does
	// not know. They round-trip through ToJSONL untouched.
	raw []byte
}

// Known reports whether this version understands the event's kind.
func (e *Event) Known() bool {
	switch e.Kind {
	case KindConnectionEstablished, KindConnectionClosed, KindCommandOutput,
		KindPromptRead, KindStateTransition, KindRawShellChunk,
		KindTxBlockStarted, KindTxBlockFinished,
		KindTxStepSucceeded, KindTxStepFailed,
		KindTxRollbackStarted, KindTxRollbackStepSucceeded, KindTxRollbackStepFailed,
		KindTxWorkflowStarted, KindTxWorkflowFinished,
		KindError:
		return true
	}
	return false
}

// Bool returns a pointer to v, for optional event fields.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v, for optional event fields.
func Int(v int) *int { return &v }
