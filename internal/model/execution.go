package model

import (
	"encoding/json"
	"time"
)

// Execution is the top-level run of a playbook: an immutable workload
// snapshot and keychain snapshot bound to a catalog_id, optionally nested
// under a parent execution (sub-workflow invocation).
type Execution struct {
	ExecutionID       int64           `json:"execution_id"`
	CatalogID         int64           `json:"catalog_id"`
	ParentExecutionID *int64          `json:"parent_execution_id,omitempty"`
	RootExecutionID   int64           `json:"root_execution_id"`
	Workload          json.RawMessage `json:"workload"`
	Status            Status          `json:"status"`
	StartedAt         time.Time       `json:"started_at"`
	EndedAt           *time.Time      `json:"ended_at,omitempty"`
}
