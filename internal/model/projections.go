package model

import (
	"encoding/json"
	"time"
)

// StepState is the derived per-step-instance projection, rebuilt by folding
// step/task/loop events for a node_id. It answers "what is this step doing
// right now" without replaying the whole log.
type StepState struct {
	ExecutionID  int64           `json:"execution_id"`
	NodeID       int64           `json:"node_id"`
	NodeName     string          `json:"node_name"`
	Status       Status          `json:"status"`
	CurrentIndex *int            `json:"current_index,omitempty"`
	Attempt      int             `json:"attempt"`
	LastResult   json.RawMessage `json:"last_result,omitempty"`
	LastError    json.RawMessage `json:"last_error,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
	LastEventID  int64           `json:"last_event_id"`
}

// WorkflowState is the derived execution-level projection: the execution's
// catalog entry, overall status and timing. Per-node state lives in
// step_state, not here.
type WorkflowState struct {
	ExecutionID int64     `json:"execution_id"`
	CatalogID   int64     `json:"catalog_id"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Quiesced    bool      `json:"quiesced"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastEventID int64     `json:"last_event_id"`
}

// WorkloadState is the derived projection of an execution's workload
// values: the immutable workload block plus any ctx.patched accumulation.
type WorkloadState struct {
	ExecutionID int64           `json:"execution_id"`
	Workload    json.RawMessage `json:"workload"`
	Ctx         json.RawMessage `json:"ctx"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Transition is the derived projection of one router evaluation: which arc
// fired, from which node to which, and why (the matched `when`).
type Transition struct {
	ExecutionID  int64     `json:"execution_id"`
	FromNodeID   int64     `json:"from_node_id"`
	ToNodeName   string    `json:"to_node_name"`
	MatchedWhen  *string   `json:"matched_when,omitempty"`
	Mode         RouterMode `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
	TriggerEventID int64   `json:"trigger_event_id"`
}
