package model

import (
	"encoding/json"
	"time"
)

// QueueStatus is the lifecycle state of a QueueItem.
type QueueStatus string

const (
	QueueQueued QueueStatus = "queued"
	QueueLeased QueueStatus = "leased"
	QueueDone   QueueStatus = "done"
	QueueDead   QueueStatus = "dead"
)

// QueueItem is the unit of work a worker leases: a step-run command bound
// with a server-rendered pipeline snapshot. unique(execution_id, node_id,
// attempt) collapses racing enqueue calls.
type QueueItem struct {
	QueueID         int64           `json:"queue_id"`
	ExecutionID     int64           `json:"execution_id"`
	NodeID          int64           `json:"node_id"`
	NodeName        string          `json:"node_name"`
	Attempt         int             `json:"attempt"`
	Status          QueueStatus     `json:"status"`
	WorkerID        *string         `json:"worker_id,omitempty"`
	LeaseUntil      *time.Time      `json:"lease_until,omitempty"`
	AvailableAt     time.Time       `json:"available_at"`
	Payload         json.RawMessage `json:"payload"`
	TriggerEventID  int64           `json:"trigger_event_id"`
	ParentEventID   *int64          `json:"parent_event_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// StepRunPayload is the JSON shape stored in QueueItem.Payload and handed to
// a worker on lease: the rendered pipeline, immutable token args, and the
// iteration context when the step is a loop iteration.
type StepRunPayload struct {
	StepName         string                 `json:"step_name"`
	RenderedPipeline []RenderedTask         `json:"rendered_pipeline"`
	Args             map[string]interface{} `json:"args,omitempty"`
	Iter             map[string]interface{} `json:"iter,omitempty"`
	Attempt          int                    `json:"attempt"`
	PolicyLimits     map[string]interface{} `json:"policy_limits,omitempty"`
}

// RenderedTask is one task label in a step's tool pipeline, with all
// templates already resolved by the orchestrator. Workers consume this
// snapshot verbatim; they never re-render.
type RenderedTask struct {
	Label  string                 `json:"label"`
	Kind   string                 `json:"kind"`
	Config map[string]interface{} `json:"config"`
	Policy *TaskPolicy            `json:"policy,omitempty"`
	Result *ResultSpec            `json:"result,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
}
