package orchestrator

import (
	"context"
	"fmt"
)

// ReconsiderPending re-evaluates admission for every step parked in
// pending for an execution. A denied admission never gets discarded or
// retried on a timer; it is only ever reconsidered when the bound scopes
// might have changed, i.e. after a ctx.patched event lands. Callers that
// apply a ctx.patched event (the worker runtime, via the task policy
// engine's set_ctx) must call this afterward.
func (o *Orchestrator) ReconsiderPending(ctx context.Context, executionID int64) error {
	return o.withExecutionLock(executionID, func() error {
		return o.reconsiderPendingLocked(ctx, executionID)
	})
}

// reconsiderPendingLocked is ReconsiderPending's body, run with
// withExecutionLock already held for executionID.
func (o *Orchestrator) reconsiderPendingLocked(ctx context.Context, executionID int64) error {
	pending, err := o.events.ListPendingSteps(ctx, executionID)
	if err != nil {
		return fmt.Errorf("reconsider pending: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	ws, err := o.events.GetWorkflowState(ctx, executionID)
	if err != nil {
		return fmt.Errorf("reconsider pending: workflow state: %w", err)
	}
	entry, err := o.catalog.Resolve(ctx, ws.CatalogID)
	if err != nil {
		return err
	}
	idx := BuildNodeIndex(entry)
	bundle, err := o.bundleFor(ctx, executionID, nil, nil)
	if err != nil {
		return err
	}

	for _, nodeID := range pending {
		step, ok := idx.Step(nodeID)
		if !ok {
			continue
		}
		st, err := o.events.GetStepState(ctx, executionID, nodeID)
		if err != nil {
			return fmt.Errorf("reconsider pending: step state: %w", err)
		}
		trigger := int64(0)
		if st != nil {
			trigger = st.LastEventID
		}
		stepBundle := bundle
		if trigger != 0 {
			if triggerEvent, err := o.events.GetByID(ctx, trigger); err == nil && triggerEvent != nil {
				b := *bundle
				b.Event = triggerEvent.AsScope()
				stepBundle = &b
			}
		}
		if err := o.admitAndStart(ctx, entry, idx, executionID, step, stepBundle, trigger, nil, 1); err != nil {
			return fmt.Errorf("reconsider pending: re-admit %q: %w", step.Step, err)
		}
	}
	return nil
}
