package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noetl/noetl/internal/model"
)

// startLoop expands a loop step's iteration sequence and dispatches as many
// iterations as its in-flight cap allows. An empty sequence completes the
// loop immediately with a loop.done emitted and routed in place, since no
// iteration will ever reach the queue to drive advanceLoop for this node.
func (o *Orchestrator) startLoop(ctx context.Context, entry *CatalogEntry, idx *NodeIndex, executionID, baseNodeID int64, step *model.Step, bundle *model.ScopeBundle, triggerEventID int64) error {
	iterations, err := ExpandLoop(o.eng, step.Loop, bundle)
	if err != nil {
		return o.failStep(ctx, executionID, baseNodeID, step.Step, triggerEventID, err)
	}

	if len(iterations) == 0 {
		doneEvent := &model.Event{
			ExecutionID:   executionID,
			ParentEventID: &triggerEventID,
			NodeID:        &baseNodeID,
			NodeName:      &step.Step,
			EventType:     model.EventLoopDone,
			Status:        model.StatusDone,
			Result:        json.RawMessage(`[]`),
		}
		doneEventID, err := o.events.Emit(ctx, doneEvent)
		if err != nil {
			return fmt.Errorf("emit loop.done (empty loop): %w", err)
		}
		doneEvent.EventID = doneEventID
		loopBundle := *bundle
		loopBundle.Event = doneEvent.AsScope()
		return o.routeFrom(ctx, entry, idx, executionID, step, &loopBundle, doneEventID)
	}

	capN := InFlightCap(step.Loop)
	if capN > len(iterations) {
		capN = len(iterations)
	}
	for i := 0; i < capN; i++ {
		if err := o.dispatchLoopIteration(ctx, executionID, baseNodeID, step, iterations[i], bundle, triggerEventID); err != nil {
			return err
		}
	}
	return nil
}

// dispatchLoopIteration emits the loop.iteration marker for index i (deduped
// on execution_id/node_name/current_index so a replayed dispatch is a
// no-op) and enqueues that iteration's pipeline against its synthetic
// node_id.
func (o *Orchestrator) dispatchLoopIteration(ctx context.Context, executionID, baseNodeID int64, step *model.Step, it Iteration, bundle *model.ScopeBundle, triggerEventID int64) error {
	idx := it.Index
	iterEvent := &model.Event{
		ExecutionID:   executionID,
		ParentEventID: &triggerEventID,
		NodeID:        &baseNodeID,
		NodeName:      &step.Step,
		EventType:     model.EventLoopIteration,
		Status:        model.StatusRunning,
		CurrentIndex:  &idx,
	}
	iterEventID, err := o.events.Emit(ctx, iterEvent)
	if err != nil {
		return fmt.Errorf("emit loop.iteration %d: %w", it.Index, err)
	}

	iterNodeID := baseNodeID*loopSpan + 1 + int64(it.Index)
	nodeName := fmt.Sprintf("%s[%d]", step.Step, it.Index)
	iterBundle := &model.ScopeBundle{
		Workload: bundle.Workload,
		Keychain: bundle.Keychain,
		Ctx:      bundle.Ctx,
		Args:     bundle.Args,
		Iter:     it.Iter,
	}
	return o.enqueueStepRun(ctx, executionID, iterNodeID, nodeName, step.Tool, iterBundle, 1, iterEventID, &triggerEventID)
}

// advanceLoop folds one iteration's terminal outcome into the loop's
// progress: if every iteration has reached a terminal status the loop
// itself completes (loop.done, routed like any other boundary); otherwise
// it tops up in-flight dispatch up to the loop's concurrency cap.
//
// loop.in is re-evaluated against the current bundle on every call rather
// than cached from loop start: it assumes the iteration sequence is stable
// for the lifetime of the loop, which holds for every loop.in expression a
// playbook author would reasonably write (iterating a workload list, not a
// value later steps mutate).
func (o *Orchestrator) advanceLoop(ctx context.Context, entry *CatalogEntry, idx *NodeIndex, executionID, baseNodeID int64, step *model.Step, bundle *model.ScopeBundle, triggerEventID int64) error {
	iterations, err := ExpandLoop(o.eng, step.Loop, bundle)
	if err != nil {
		return o.failStep(ctx, executionID, baseNodeID, step.Step, triggerEventID, err)
	}
	total := len(iterations)

	states := make([]*model.StepState, total)
	terminal, inFlight, failedAny := 0, 0, false
	results := make([]json.RawMessage, 0, total)
	nextPending := -1
	for i := 0; i < total; i++ {
		st, err := o.events.GetStepState(ctx, executionID, baseNodeID*loopSpan+1+int64(i))
		if err != nil {
			return fmt.Errorf("advance loop: read iteration %d state: %w", i, err)
		}
		states[i] = st
		switch {
		case st == nil:
			if nextPending < 0 {
				nextPending = i
			}
		case st.Status == model.StatusRunning || st.Status == model.StatusPending:
			inFlight++
		case st.Status == model.StatusFailed:
			terminal++
			failedAny = true
			results = append(results, st.LastError)
		default:
			terminal++
			results = append(results, st.LastResult)
		}
	}

	if terminal == total {
		aggregated, _ := json.Marshal(results)
		status := model.StatusDone
		if failedAny {
			status = model.StatusFailed
		}
		doneEvent := &model.Event{
			ExecutionID:   executionID,
			ParentEventID: &triggerEventID,
			NodeID:        &baseNodeID,
			NodeName:      &step.Step,
			EventType:     model.EventLoopDone,
			Status:        status,
			Result:        aggregated,
		}
		doneEventID, err := o.events.Emit(ctx, doneEvent)
		if err != nil {
			return fmt.Errorf("emit loop.done: %w", err)
		}
		doneEvent.EventID = doneEventID
		loopBundle := *bundle
		loopBundle.Event = doneEvent.AsScope()
		return o.routeFrom(ctx, entry, idx, executionID, step, &loopBundle, doneEventID)
	}

	room := InFlightCap(step.Loop) - inFlight
	for i := nextPending; i >= 0 && i < total && room > 0; i++ {
		if states[i] != nil {
			continue
		}
		if err := o.dispatchLoopIteration(ctx, executionID, baseNodeID, step, iterations[i], bundle, triggerEventID); err != nil {
			return err
		}
		room--
	}
	return nil
}
