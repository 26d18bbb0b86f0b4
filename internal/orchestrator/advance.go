package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/playbook"
)

// Advance folds a worker-reported step outcome into the event log and
// drives the control loop forward from it: normal steps route on
// step.done/step.failed, loop iterations fold into their loop's progress
// and the loop itself routes once every iteration is terminal (spec
// §4.3.4-5). nodeID may name either a declared step or a loop iteration's
// synthetic node_id; callers (the worker-facing API) never need to know
// which.
// extracted carries the reporting pipeline's select-derived fields (spec
// §4.4, §4.7): when non-empty it is attached to the boundary event's Meta
// and bound into the bundle's `extracted` scope before routing, so a
// router arc can branch on a ResultRef's extracted.* fields without
// resolving the full payload.
func (o *Orchestrator) Advance(ctx context.Context, executionID, nodeID int64, status model.Status, result json.RawMessage, extracted map[string]any) error {
	return o.withExecutionLock(executionID, func() error {
		return o.advanceLocked(ctx, executionID, nodeID, status, result, extracted)
	})
}

// advanceLocked is Advance's body, run with withExecutionLock already held
// for executionID.
func (o *Orchestrator) advanceLocked(ctx context.Context, executionID, nodeID int64, status model.Status, result json.RawMessage, extracted map[string]any) error {
	entry, idx, step, baseNodeID, iterIndex, isIteration, err := o.resolveNode(ctx, executionID, nodeID)
	if err != nil {
		return err
	}
	bundle, err := o.bundleFor(ctx, executionID, nil, nil)
	if err != nil {
		return err
	}

	evType := model.EventStepDone
	if status == model.StatusFailed {
		evType = model.EventStepFailed
	}

	var metaJSON json.RawMessage
	if len(extracted) > 0 {
		metaJSON, _ = json.Marshal(map[string]any{"extracted": extracted})
	}

	if !isIteration {
		ev := &model.Event{
			ExecutionID: executionID,
			NodeID:      &nodeID,
			NodeName:    &step.Step,
			EventType:   evType,
			Status:      status,
			Result:      result,
			Meta:        metaJSON,
		}
		eventID, err := o.events.Emit(ctx, ev)
		if err != nil {
			return fmt.Errorf("orchestrator: emit %s: %w", evType, err)
		}
		ev.EventID = eventID
		bundle.Event = ev.AsScope()
		bundle.Extracted = extracted
		if err := o.routeFrom(ctx, entry, idx, executionID, step, bundle, eventID); err != nil {
			return err
		}
		return o.maybeFinalize(ctx, entry, executionID)
	}

	iterNodeName := fmt.Sprintf("%s[%d]", step.Step, iterIndex)
	ev := &model.Event{
		ExecutionID: executionID,
		NodeID:      &nodeID,
		NodeName:    &iterNodeName,
		EventType:   evType,
		Status:      status,
		Result:      result,
		Meta:        metaJSON,
	}
	eventID, err := o.events.Emit(ctx, ev)
	if err != nil {
		return fmt.Errorf("orchestrator: emit iteration %s: %w", evType, err)
	}
	ev.EventID = eventID
	bundle.Event = ev.AsScope()
	bundle.Extracted = extracted
	if err := o.advanceLoop(ctx, entry, idx, executionID, baseNodeID, step, bundle, eventID); err != nil {
		return err
	}
	return o.maybeFinalize(ctx, entry, executionID)
}

// resolveNode maps a node_id back to its playbook step, distinguishing a
// declared step's own node_id from one of its loop iterations' synthetic
// node_ids (baseNodeID*loopSpan + 1 + index).
func (o *Orchestrator) resolveNode(ctx context.Context, executionID, nodeID int64) (entry *CatalogEntry, idx *NodeIndex, step *model.Step, baseNodeID int64, iterIndex int, isIteration bool, err error) {
	ws, err := o.events.GetWorkflowState(ctx, executionID)
	if err != nil {
		return nil, nil, nil, 0, 0, false, fmt.Errorf("resolve node: %w", err)
	}
	entry, err = o.catalog.Resolve(ctx, ws.CatalogID)
	if err != nil {
		return nil, nil, nil, 0, 0, false, err
	}
	idx = BuildNodeIndex(entry)

	if s, ok := idx.Step(nodeID); ok {
		return entry, idx, s, nodeID, 0, false, nil
	}

	baseNodeID = nodeID / loopSpan
	s, ok := idx.Step(baseNodeID)
	if !ok || s.Loop == nil {
		return nil, nil, nil, 0, 0, false, fmt.Errorf("%w: node_id %d", ErrStepNotFound, nodeID)
	}
	iterIndex = int(nodeID - baseNodeID*loopSpan - 1)
	return entry, idx, s, baseNodeID, iterIndex, true, nil
}

// routeFrom evaluates a completed step's next.arcs and admits every
// matched target. A step with no `next` block at all implicitly routes to
// `end` unless it is `end` itself, in which case completing it triggers
// the final quiescence check (spec §4.3.5). A step that does declare
// `next` but whose arcs all fail to match terminates its branch in place
// (spec §4.3.4/§8's "exclusive router with zero matching arcs terminates
// the branch") rather than being routed anywhere — unless the playbook's
// executor spec sets no_next_is_error, in which case a dead-end branch is
// itself a step failure.
func (o *Orchestrator) routeFrom(ctx context.Context, entry *CatalogEntry, idx *NodeIndex, executionID int64, step *model.Step, bundle *model.ScopeBundle, triggerEventID int64) error {
	if step.Next == nil {
		if step.Step == playbook.EndStepName {
			return nil
		}
		endStep := playbook.StepByName(entry.Playbook, playbook.EndStepName)
		return o.admitAndStart(ctx, entry, idx, executionID, endStep, bundle, triggerEventID, nil, 1)
	}

	matches, err := Route(o.eng, step.Next, bundle)
	if err != nil {
		return o.failStep(ctx, executionID, mustNodeID(idx, step.Step), step.Step, triggerEventID, err)
	}

	if len(matches) == 0 {
		if entry.Playbook.Executor.NoNextIsError {
			err := fmt.Errorf("step %q: next.arcs matched nothing and executor.no_next_is_error is set", step.Step)
			return o.failStep(ctx, executionID, mustNodeID(idx, step.Step), step.Step, triggerEventID, err)
		}
		deadEndNodeID := mustNodeID(idx, step.Step)
		if _, err := o.events.Emit(ctx, &model.Event{
			ExecutionID:   executionID,
			ParentEventID: &triggerEventID,
			NodeID:        &deadEndNodeID,
			NodeName:      &step.Step,
			EventType:     model.EventRouterEvaluated,
			Status:        model.StatusDone,
			Meta:          json.RawMessage(`{"arcs":[]}`),
		}); err != nil {
			return fmt.Errorf("emit router.evaluated (branch terminated): %w", err)
		}
		return nil
	}

	nodeID := mustNodeID(idx, step.Step)
	meta := routerMeta(matches, step.Next.Spec.Mode)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal router.evaluated meta: %w", err)
	}
	routerEvent := &model.Event{
		ExecutionID:   executionID,
		ParentEventID: &triggerEventID,
		NodeID:        &nodeID,
		NodeName:      &step.Step,
		EventType:     model.EventRouterEvaluated,
		Status:        model.StatusDone,
		Meta:          metaJSON,
	}
	routerEventID, err := o.events.Emit(ctx, routerEvent)
	if err != nil {
		return fmt.Errorf("emit router.evaluated: %w", err)
	}

	for _, m := range matches {
		target := playbook.StepByName(entry.Playbook, m.Arc.Step)
		if target == nil {
			return fmt.Errorf("orchestrator: arc target %q not found in playbook", m.Arc.Step)
		}
		argBundle := *bundle
		if len(m.Arc.Args) > 0 {
			rendered, err := o.eng.RenderValue(m.Arc.Args, bundle)
			if err != nil {
				return fmt.Errorf("render arc args to %q: %w", m.Arc.Step, err)
			}
			if renderedMap, ok := rendered.(map[string]any); ok {
				argBundle.Args = renderedMap
			}
		}
		if err := o.admitAndStart(ctx, entry, idx, executionID, target, &argBundle, routerEventID, &routerEventID, 1); err != nil {
			return err
		}
	}
	return nil
}

func mustNodeID(idx *NodeIndex, stepName string) int64 {
	id, _ := idx.NodeID(stepName)
	return id
}

type routerMetaArc struct {
	ToNodeName  string  `json:"to_node_name"`
	MatchedWhen *string `json:"matched_when,omitempty"`
	Mode        string  `json:"mode"`
}

func routerMeta(matches []MatchedArc, mode model.RouterMode) map[string]any {
	arcs := make([]routerMetaArc, 0, len(matches))
	for _, m := range matches {
		arcs = append(arcs, routerMetaArc{ToNodeName: m.Arc.Step, MatchedWhen: m.MatchedWhen, Mode: string(mode)})
	}
	return map[string]any{"arcs": arcs}
}
