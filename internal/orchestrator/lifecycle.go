package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noetl/noetl/internal/model"
)

// maybeFinalize emits the execution's terminal lifecycle event once the
// queue has gone quiet for it (spec §4.3.5): no leased or due-to-run queue
// rows remain. It is idempotent — a workflow_state already out of
// "running" is left untouched, so calling this after every advance is safe
// even though several advances in a row may all observe quiescence.
func (o *Orchestrator) maybeFinalize(ctx context.Context, entry *CatalogEntry, executionID int64) error {
	active, err := o.queue.CountActive(ctx, executionID)
	if err != nil {
		return fmt.Errorf("maybe finalize: count active: %w", err)
	}
	if active > 0 {
		return nil
	}

	ws, err := o.events.GetWorkflowState(ctx, executionID)
	if err != nil {
		return fmt.Errorf("maybe finalize: workflow state: %w", err)
	}
	if ws.Status != model.StatusRunning {
		return nil
	}

	failedSteps, err := o.events.ListFailedSteps(ctx, executionID)
	if err != nil {
		return fmt.Errorf("maybe finalize: list failed steps: %w", err)
	}

	evType := model.EventExecutionCompleted
	status := model.StatusDone
	var firstErrorKind string
	if len(failedSteps) > 0 {
		evType = model.EventExecutionFailed
		status = model.StatusFailed
		firstErrorKind = "step_failed"
	}

	meta := map[string]any{
		"total_steps":       len(entry.Playbook.Workflow),
		"failed_steps":      len(failedSteps),
		"failed_step_names": failedSteps,
	}
	if firstErrorKind != "" {
		meta["first_error_kind"] = firstErrorKind
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal terminal meta: %w", err)
	}

	ev := &model.Event{
		ExecutionID: executionID,
		EventType:   evType,
		Status:      status,
		Meta:        metaJSON,
	}
	if _, err := o.events.Emit(ctx, ev); err != nil {
		return fmt.Errorf("emit %s: %w", evType, err)
	}
	return nil
}

// Cancel cooperatively cancels a running execution: every outstanding
// queue row is marked dead so no worker picks up further work, and
// execution.cancelled is emitted. Cascading cancellation to sub-workflow
// executions is not implemented: the event schema does not yet carry a
// persisted execution-level parent/child relationship (only
// parent_event_id within one execution), so there is nothing to cascade
// to until that is wired.
func (o *Orchestrator) Cancel(ctx context.Context, executionID int64) error {
	ws, err := o.events.GetWorkflowState(ctx, executionID)
	if err != nil {
		return fmt.Errorf("cancel: workflow state: %w", err)
	}
	if ws.Status != model.StatusRunning {
		return nil
	}

	if _, err := o.queue.CancelExecution(ctx, executionID); err != nil {
		return fmt.Errorf("cancel: cancel queue rows: %w", err)
	}

	ev := &model.Event{
		ExecutionID: executionID,
		EventType:   model.EventExecutionCancelled,
		Status:      model.StatusCancelled,
	}
	if _, err := o.events.Emit(ctx, ev); err != nil {
		return fmt.Errorf("cancel: emit execution.cancelled: %w", err)
	}
	return nil
}
