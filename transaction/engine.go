package transaction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/netgrip/netgrip/internal/logutil"
	"github.com/netgrip/netgrip/recording"
)

// ErrCommandFailed reports a step whose prompt was reached but whose output
// matched the device's configured error patterns.
var ErrCommandFailed = errors.New("command failed")

// Engine executes blocks and workflows against an Executor, emitting
// lifecycle events to an optional recorder.
type Engine struct {
	exec Executor
	rec  *recording.Recorder
}

// NewEngine builds an engine. rec may be nil to disable event emission.
func NewEngine(exec Executor, rec *recording.Recorder) *Engine {
	return &Engine{exec: exec, rec: rec}
}

func (e *Engine) runStep(ctx context.Context, mode, command string, timeout *time.Duration) (ExecResult, error) {
	out, err := e.exec.Execute(ctx, mode, command, timeout)
	if err != nil {
		return out, err
	}
	if !out.Success {
		return out, fmt.Errorf("%w: %q: %s", ErrCommandFailed, command, logutil.SanitizeForLog(out.Content))
	}
	return out, nil
}

// RunBlock executes the block's steps in order and compensates on failure
// according to the rollback policy. Step failures (including transport
// errors) are captured in the Result; the returned error reports only
// validation problems.
func (e *Engine) RunBlock(ctx context.Context, b Block) (Result, error) {
	if err := b.Validate(); err != nil {
		return Result{BlockName: b.Name}, err
	}

	e.rec.Record(recording.Event{
		Kind:      recording.KindTxBlockStarted,
		BlockName: b.Name,
		BlockKind: string(b.Kind),
		StepCount: recording.Int(len(b.Steps)),
	})

	res := Result{BlockName: b.Name}
	for i := range b.Steps {
		step := b.Steps[i]
		out, err := e.runStep(ctx, step.Mode, step.Command, step.Timeout)
		if err != nil {
			if res.Failure == nil {
				res.Failure = &StepFailure{Index: i, Err: err}
			}
			e.rec.Record(recording.Event{
				Kind:      recording.KindTxStepFailed,
				BlockName: b.Name,
				StepIndex: recording.Int(i),
				Command:   step.Command,
				Mode:      step.Mode,
				Reason:    err.Error(),
			})
			if b.FailFast {
				break
			}
			continue
		}
		res.ExecutedSteps = append(res.ExecutedSteps, StepResult{Index: i, Output: out})
		e.rec.Record(recording.Event{
			Kind:      recording.KindTxStepSucceeded,
			BlockName: b.Name,
			StepIndex: recording.Int(i),
			Command:   step.Command,
			Mode:      step.Mode,
		})
	}

	if res.Failure == nil {
		res.Committed = true
		e.recordBlockFinished(b.Name, &res)
		return res, nil
	}

	log.Printf("[tx] block %s failed at step %d: %v", logutil.SanitizeForLog(b.Name), res.Failure.Index, res.Failure.Err)

	if b.Rollback.Kind != PolicyNone {
		e.rollbackBlock(ctx, b, &res)
	}

	e.recordBlockFinished(b.Name, &res)
	return res, nil
}

// rollbackBlock runs the compensation plan for a failed block. Rollback is
// best-effort: failures are recorded and the plan continues.
func (e *Engine) rollbackBlock(ctx context.Context, b Block, res *Result) {
	plan := b.planRollback(res.ExecutedSteps)
	if len(plan) == 0 {
		return
	}
	res.RollbackAttempted = true
	res.RollbackSucceeded = true
	e.rec.Record(recording.Event{
		Kind:      recording.KindTxRollbackStarted,
		BlockName: b.Name,
		Policy:    string(b.Rollback.Kind),
	})
	for i, rb := range plan {
		out, err := e.runStep(ctx, rb.mode, rb.command, rb.timeout)
		res.RollbackOutputs = append(res.RollbackOutputs, out)
		if err != nil {
			res.RollbackSucceeded = false
			reason := fmt.Sprintf("rollback command %q: %v", rb.command, err)
			res.RollbackErrors = append(res.RollbackErrors, reason)
			e.rec.Record(recording.Event{
				Kind:      recording.KindTxRollbackStepFailed,
				BlockName: b.Name,
				StepIndex: recording.Int(i),
				Command:   rb.command,
				Mode:      rb.mode,
				Reason:    reason,
			})
			continue
		}
		e.rec.Record(recording.Event{
			Kind:      recording.KindTxRollbackStepSucceeded,
			BlockName: b.Name,
			StepIndex: recording.Int(i),
			Command:   rb.command,
			Mode:      rb.mode,
		})
	}
}

func (e *Engine) recordBlockFinished(name string, res *Result) {
	e.rec.Record(recording.Event{
		Kind:              recording.KindTxBlockFinished,
		BlockName:         name,
		Committed:         recording.Bool(res.Committed),
		RollbackAttempted: recording.Bool(res.RollbackAttempted),
		RollbackSucceeded: recording.Bool(res.RollbackSucceeded),
	})
}

// RunWorkflow executes the workflow's blocks in order. When a block fails,
// previously committed blocks are compensated in reverse commit order using
// their whole-resource policies, which Validate requires up front.
func (e *Engine) RunWorkflow(ctx context.Context, w Workflow) (WorkflowResult, error) {
	res := WorkflowResult{WorkflowName: w.Name, FailedBlock: -1}
	if err := w.Validate(); err != nil {
		return res, err
	}

	e.rec.Record(recording.Event{
		Kind:         recording.KindTxWorkflowStarted,
		WorkflowName: w.Name,
		BlockCount:   recording.Int(len(w.Blocks)),
	})

	// Show blocks commit but carry no effects to compensate, so they stay
	// out of the rollback candidate list.
	var committed []int
	failed := -1
	for i := range w.Blocks {
		br, err := e.RunBlock(ctx, w.Blocks[i])
		if err != nil {
			return res, err
		}
		res.BlockResults = append(res.BlockResults, br)
		if br.Committed {
			if w.Blocks[i].Kind != Show {
				committed = append(committed, i)
			}
			continue
		}
		if res.FailedBlock == -1 {
			res.FailedBlock = i
		}
		failed = i
		if w.FailFast {
			break
		}
	}

	if failed == -1 {
		res.Committed = true
		e.recordWorkflowFinished(w.Name, &res)
		return res, nil
	}

	// The failed block may already have compensated itself; its outcome
	// seeds the workflow-level rollback summary.
	fb := &res.BlockResults[len(res.BlockResults)-1]
	for i := range res.BlockResults {
		if res.BlockResults[i].Failure != nil {
			fb = &res.BlockResults[i]
			break
		}
	}
	res.RollbackAttempted = fb.RollbackAttempted
	res.RollbackSucceeded = !fb.RollbackAttempted || fb.RollbackSucceeded
	res.RollbackErrors = append(res.RollbackErrors, fb.RollbackErrors...)

	order := RollbackOrder(committed, failed)
	res.RolledBackBlocks = order
	for _, bi := range order {
		b := w.Blocks[bi]
		res.RollbackAttempted = true
		e.rec.Record(recording.Event{
			Kind:      recording.KindTxRollbackStarted,
			BlockName: b.Name,
			Policy:    string(b.Rollback.Kind),
		})
		_, err := e.runStep(ctx, b.Rollback.Mode, b.Rollback.UndoCommand, b.Rollback.Timeout)
		if err != nil {
			res.RollbackSucceeded = false
			reason := fmt.Sprintf("workflow rollback of block %q: %v", b.Name, err)
			res.RollbackErrors = append(res.RollbackErrors, reason)
			e.rec.Record(recording.Event{
				Kind:      recording.KindTxRollbackStepFailed,
				BlockName: b.Name,
				Command:   b.Rollback.UndoCommand,
				Mode:      b.Rollback.Mode,
				Reason:    reason,
			})
			continue
		}
		e.rec.Record(recording.Event{
			Kind:      recording.KindTxRollbackStepSucceeded,
			BlockName: b.Name,
			Command:   b.Rollback.UndoCommand,
			Mode:      b.Rollback.Mode,
		})
	}

	e.recordWorkflowFinished(w.Name, &res)
	return res, nil
}

func (e *Engine) recordWorkflowFinished(name string, res *WorkflowResult) {
	e.rec.Record(recording.Event{
		Kind:              recording.KindTxWorkflowFinished,
		WorkflowName:      name,
		Committed:         recording.Bool(res.Committed),
		RollbackAttempted: recording.Bool(res.RollbackAttempted),
		RollbackSucceeded: recording.Bool(res.RollbackSucceeded),
	})
}
