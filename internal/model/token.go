package model

import "time"

// Token is the control-flow marker the orchestrator carries across the step
// graph: one token per runnable step instance, including loop iterations.
// It is derived state, rebuildable from the event log; it is never itself
// the source of truth.
type Token struct {
	ExecutionID    int64          `json:"execution_id"`
	NodeID         int64          `json:"node_id"`
	NodeName       string         `json:"node_name"`
	ParentNodeID   *int64         `json:"parent_node_id,omitempty"`
	Args           map[string]any `json:"args,omitempty"`
	Iter           map[string]any `json:"iter,omitempty"`
	LoopIndex      *int           `json:"loop_index,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	TriggerEventID int64          `json:"trigger_event_id"`
}

// ScopeBundle is the full set of named scopes the template/CEL engine
// resolves an expression against (spec §4.4). Not every evaluation site
// populates every field: admission rules see ctx/workload/keychain/args,
// task attempts additionally see _prev/_task/_attempt, policy rules
// additionally see outcome.
type ScopeBundle struct {
	Workload map[string]any `json:"workload,omitempty"`
	Keychain map[string]any `json:"keychain,omitempty"`
	Ctx      map[string]any `json:"ctx,omitempty"`
	Iter     map[string]any `json:"iter,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Event    map[string]any `json:"event,omitempty"`
	Prev     map[string]any `json:"_prev,omitempty"`
	Task     map[string]any `json:"_task,omitempty"`
	Attempt  map[string]any `json:"_attempt,omitempty"`
	Outcome  map[string]any `json:"outcome,omitempty"`
	// Extracted carries the select-derived fields of the most recently
	// externalized ResultRef, keyed by their JSONPath-like selector (spec
	// §4.4 "extracted.* fields for routing without full payload
	// materialization").
	Extracted map[string]any `json:"extracted,omitempty"`
}

// AsActivation flattens the bundle into the top-level variable map a CEL
// program evaluates against; absent scopes are bound to empty maps so
// expressions referencing them never fail with "no such attribute".
func (s *ScopeBundle) AsActivation() map[string]any {
	nonNil := func(m map[string]any) map[string]any {
		if m == nil {
			return map[string]any{}
		}
		return m
	}
	return map[string]any{
		"workload":  nonNil(s.Workload),
		"keychain":  nonNil(s.Keychain),
		"ctx":       nonNil(s.Ctx),
		"iter":      nonNil(s.Iter),
		"args":      nonNil(s.Args),
		"event":     nonNil(s.Event),
		"_prev":     nonNil(s.Prev),
		"_task":     nonNil(s.Task),
		"_attempt":  nonNil(s.Attempt),
		"outcome":   nonNil(s.Outcome),
		"extracted": nonNil(s.Extracted),
	}
}
