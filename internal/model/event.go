// Package model holds the core data-model types shared by the event store,
// queue, orchestrator and worker runtime: events, queue items, projections,
// tokens and the keychain/result-ref envelopes.
package model

import (
	"encoding/json"
	"time"
)

// EventType partitions the append-only event log into lifecycle, step,
// task-attempt, loop, context-patch and router marker events.
type EventType string

const (
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"
	EventExecutionCancelled EventType = "execution.cancelled"

	EventStepAdmitted EventType = "step.admitted"
	EventStepStarted  EventType = "step.started"
	EventStepDone     EventType = "step.done"
	EventStepFailed   EventType = "step.failed"
	EventStepCancelled EventType = "step.cancelled"

	EventTaskAttemptStarted  EventType = "task.attempt.started"
	EventTaskAttemptDone     EventType = "task.attempt.done"
	EventTaskAttemptFailed   EventType = "task.attempt.failed"
	EventTaskPolicyEvaluated EventType = "task.policy.evaluated"

	EventLoopIteration EventType = "loop.iteration"
	EventLoopDone       EventType = "loop.done"

	EventCtxPatched EventType = "ctx.patched"

	EventRouterEvaluated EventType = "router.evaluated"
)

// Status is the status carried on an event record. Its meaning depends on
// the event type (e.g. "running"/"done"/"failed" for steps,
// "done"/"failed"/"cancelled" for executions).
type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPending   Status = "pending"
)

// Event is the append-only unit of truth for an execution. Nothing updates
// or deletes an Event once persisted.
type Event struct {
	EventID       int64           `json:"event_id"`
	ExecutionID   int64           `json:"execution_id"`
	CatalogID     int64           `json:"catalog_id"`
	ParentEventID *int64          `json:"parent_event_id,omitempty"`
	NodeID        *int64          `json:"node_id,omitempty"`
	NodeName      *string         `json:"node_name,omitempty"`
	EventType     EventType       `json:"event_type"`
	Status        Status          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	CurrentIndex  *int            `json:"current_index,omitempty"`
	Attempt       *int            `json:"attempt,omitempty"`
	Context       json.RawMessage `json:"context,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Meta          json.RawMessage `json:"meta,omitempty"`
}

// IsLifecycle reports whether the event is an execution-level lifecycle event.
func (e *Event) IsLifecycle() bool {
	switch e.EventType {
	case EventExecutionStarted, EventExecutionCompleted, EventExecutionFailed, EventExecutionCancelled:
		return true
	default:
		return false
	}
}

// IsBoundary reports whether the event type is one of the boundary events
// that trigger router evaluation per spec §4.3.4: step.done, step.failed,
// loop.done.
func (e *Event) IsBoundary() bool {
	switch e.EventType {
	case EventStepDone, EventStepFailed, EventLoopDone:
		return true
	default:
		return false
	}
}

// AsScope flattens the event into the `event` scope router arcs evaluate
// against (spec §4.4), e.g. `event.status == 'failed'`.
func (e *Event) AsScope() map[string]any {
	m := map[string]any{
		"event_type": string(e.EventType),
		"status":     string(e.Status),
	}
	if e.NodeName != nil {
		m["node_name"] = *e.NodeName
	}
	if e.NodeID != nil {
		m["node_id"] = *e.NodeID
	}
	if e.CurrentIndex != nil {
		m["current_index"] = *e.CurrentIndex
	}
	if e.Attempt != nil {
		m["attempt"] = *e.Attempt
	}
	var result any
	if len(e.Result) > 0 {
		_ = json.Unmarshal(e.Result, &result)
	}
	m["result"] = result
	var meta any
	if len(e.Meta) > 0 {
		_ = json.Unmarshal(e.Meta, &meta)
	}
	m["meta"] = meta
	return m
}
