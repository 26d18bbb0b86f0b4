// Package orchestrator is the control loop that admits steps, renders and
// enqueues their pipelines, expands loops, and routes execution along
// next.arcs after each boundary event (spec §4.3). It never executes a
// task itself — that is the worker runtime's job — it only ever reads and
// writes events, projections and queue rows.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/noetl/noetl/common/db"
	"github.com/noetl/noetl/common/logger"
	"github.com/noetl/noetl/internal/eventstore"
	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/playbook"
	"github.com/noetl/noetl/internal/queue"
	"github.com/noetl/noetl/internal/scope"
)

// loopSpan reserves this many synthetic node_ids per loop step for its
// iterations, so each iteration gets its own node_id (baseNodeID*loopSpan +
// 1 + index) and can reuse step_state/queue_items machinery unmodified —
// iteration completion is just another step_state row reaching a terminal
// status, counted the same way a non-loop step's is.
const loopSpan = 10000

// Orchestrator wires the event store, queue and expression engine into
// the admission/render/route control loop.
type Orchestrator struct {
	db      *db.DB
	events  *eventstore.Store
	queue   *queue.Queue
	eng     *scope.Engine
	catalog CatalogResolver
	log     *logger.Logger
	sf      singleflight.Group
}

// New constructs an Orchestrator.
func New(database *db.DB, events *eventstore.Store, q *queue.Queue, eng *scope.Engine, catalog CatalogResolver, log *logger.Logger) *Orchestrator {
	return &Orchestrator{db: database, events: events, queue: q, eng: eng, catalog: catalog, log: log}
}

// withExecutionLock serializes concurrent callers advancing or
// reconsidering the same execution_id: every caller's fn runs, one at a
// time per execution, and a caller that arrives while another evaluation
// is in flight waits for it and then runs its own. Two queue completions
// landing in the same instant for one execution would otherwise both read
// workflow_state/workload_state, route independently and risk a duplicate
// admission race. Distinct executions never block each other.
func (o *Orchestrator) withExecutionLock(executionID int64, fn func() error) error {
	key := strconv.FormatInt(executionID, 10)
	for {
		ran := false
		_, err, _ := o.sf.Do(key, func() (interface{}, error) {
			ran = true
			return nil, fn()
		})
		if ran {
			return err
		}
	}
}

// Start begins a new execution: allocates an execution_id, emits
// execution.started, and admits the playbook's entry step.
func (o *Orchestrator) Start(ctx context.Context, catalogID int64, workload json.RawMessage) (int64, error) {
	entry, err := o.catalog.Resolve(ctx, catalogID)
	if err != nil {
		return 0, err
	}
	idx := BuildNodeIndex(entry)

	var executionID int64
	if err := o.db.QueryRow(ctx, `SELECT nextval('execution_id_seq')`).Scan(&executionID); err != nil {
		return 0, fmt.Errorf("orchestrator: allocate execution_id: %w", err)
	}

	startEvent := &model.Event{
		ExecutionID: executionID,
		CatalogID:   catalogID,
		EventType:   model.EventExecutionStarted,
		Status:      model.StatusRunning,
		Context:     workload,
	}
	eventID, err := o.events.Emit(ctx, startEvent)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: emit execution.started: %w", err)
	}

	entryName := entry.Playbook.Executor.EntryStep
	if entryName == "" {
		entryName = entry.Playbook.Workflow[0].Step
	}
	entryStep := playbook.StepByName(entry.Playbook, entryName)
	if entryStep == nil {
		return 0, fmt.Errorf("%w: entry step %q", ErrStepNotFound, entryName)
	}

	bundle, err := o.bundleFor(ctx, executionID, nil, nil)
	if err != nil {
		return 0, err
	}

	if err := o.admitAndStart(ctx, entry, idx, executionID, entryStep, bundle, eventID, nil, 1); err != nil {
		return 0, fmt.Errorf("orchestrator: admit entry step: %w", err)
	}
	return executionID, nil
}

// bundleFor assembles the scope bundle used for admission/routing/loop
// evaluation: workload and ctx from the workload_state projection, plus
// any caller-supplied args/iter.
func (o *Orchestrator) bundleFor(ctx context.Context, executionID int64, args, iter map[string]any) (*model.ScopeBundle, error) {
	bundle := &model.ScopeBundle{Args: args, Iter: iter}

	ws, err := o.events.GetWorkloadState(ctx, executionID)
	if err != nil {
		// No workload_state row yet (first admission before execution.started's
		// projection lands in the same tx) — fall back to an empty workload.
		bundle.Workload = map[string]any{}
		bundle.Ctx = map[string]any{}
		return bundle, nil
	}
	if len(ws.Workload) > 0 {
		if err := json.Unmarshal(ws.Workload, &bundle.Workload); err != nil {
			return nil, fmt.Errorf("orchestrator: decode workload: %w", err)
		}
	}
	if len(ws.Ctx) > 0 {
		if err := json.Unmarshal(ws.Ctx, &bundle.Ctx); err != nil {
			return nil, fmt.Errorf("orchestrator: decode ctx: %w", err)
		}
	}
	return bundle, nil
}

// admitAndStart evaluates a step's admission policy and, if allowed,
// either expands its loop or renders and enqueues a single pipeline run.
func (o *Orchestrator) admitAndStart(ctx context.Context, entry *CatalogEntry, idx *NodeIndex, executionID int64, step *model.Step, bundle *model.ScopeBundle, triggerEventID int64, parentEventID *int64, attempt int) error {
	nodeID, ok := idx.NodeID(step.Step)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStepNotFound, step.Step)
	}

	allowed, err := Admit(o.eng, step.Spec.Policy.Admit, bundle)
	if err != nil {
		return fmt.Errorf("admission for %q: %w", step.Step, err)
	}

	admitEvent := &model.Event{
		ExecutionID:   executionID,
		ParentEventID: &triggerEventID,
		NodeID:        &nodeID,
		NodeName:      &step.Step,
		EventType:     model.EventStepAdmitted,
		Status:        model.StatusPending,
	}
	admitEventID, err := o.events.Emit(ctx, admitEvent)
	if err != nil {
		return fmt.Errorf("emit step.admitted: %w", err)
	}
	if !allowed {
		o.log.Debug("step not admitted", "step", step.Step, "execution_id", executionID)
		return nil
	}

	if step.Loop != nil {
		return o.startLoop(ctx, entry, idx, executionID, nodeID, step, bundle, admitEventID)
	}
	return o.enqueueStepRun(ctx, executionID, nodeID, step.Step, step.Tool, bundle, attempt, admitEventID, parentEventID)
}

// enqueueStepRun renders a pipeline and enqueues one queue row, emitting
// step.started with parent_event_id set to the trigger. nodeName/nodeID are
// passed separately from the originating step so loop iterations can reuse
// this against their synthetic per-iteration node_id.
func (o *Orchestrator) enqueueStepRun(ctx context.Context, executionID, nodeID int64, nodeName string, tasks []model.Task, bundle *model.ScopeBundle, attempt int, triggerEventID int64, parentEventID *int64) error {
	rendered, err := RenderPipeline(o.eng, tasks, bundle)
	if err != nil {
		// Template rendering errors cause step.failed for the affected step
		// (spec §7 Propagation).
		return o.failStep(ctx, executionID, nodeID, nodeName, triggerEventID, err)
	}

	payload := model.StepRunPayload{
		StepName:         nodeName,
		RenderedPipeline: rendered,
		Args:             bundle.Args,
		Iter:             bundle.Iter,
		Attempt:          attempt,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal step-run payload: %w", err)
	}

	if _, err := o.queue.Enqueue(ctx, executionID, nodeID, nodeName, attempt, payloadJSON, triggerEventID, parentEventID, time.Time{}); err != nil {
		return fmt.Errorf("enqueue step run: %w", err)
	}

	startEvent := &model.Event{
		ExecutionID:   executionID,
		ParentEventID: &triggerEventID,
		NodeID:        &nodeID,
		NodeName:      &nodeName,
		EventType:     model.EventStepStarted,
		Status:        model.StatusRunning,
		Attempt:       &attempt,
	}
	if _, err := o.events.Emit(ctx, startEvent); err != nil {
		return fmt.Errorf("emit step.started: %w", err)
	}
	return nil
}

func (o *Orchestrator) failStep(ctx context.Context, executionID, nodeID int64, stepName string, triggerEventID int64, cause error) error {
	errPayload, _ := json.Marshal(map[string]string{"kind": "template_unresolved", "message": cause.Error()})
	ev := &model.Event{
		ExecutionID:   executionID,
		ParentEventID: &triggerEventID,
		NodeID:        &nodeID,
		NodeName:      &stepName,
		EventType:     model.EventStepFailed,
		Status:        model.StatusFailed,
		Result:        errPayload,
	}
	if _, err := o.events.Emit(ctx, ev); err != nil {
		return fmt.Errorf("emit step.failed after render error: %w", err)
	}
	return nil
}

