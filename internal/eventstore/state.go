package eventstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noetl/noetl/internal/model"
)

// GetWorkflowState reads the execution-level projection, serving from the
// Redis accelerant cache when one is attached and warm. A cache miss or
// decode error is silent: it just falls back to Postgres, the source of
// truth for this projection.
func (s *Store) GetWorkflowState(ctx context.Context, executionID int64) (*model.WorkflowState, error) {
	if s.cache != nil {
		if cached, ok := s.getWorkflowStateFromCache(ctx, executionID); ok {
			return cached, nil
		}
	}

	ws := &model.WorkflowState{}
	err := s.db.QueryRow(ctx, `
		SELECT execution_id, catalog_id, status, started_at, ended_at, quiesced, updated_at, last_event_id
		FROM workflow_state WHERE execution_id = $1`, executionID).Scan(
		&ws.ExecutionID, &ws.CatalogID, &ws.Status, &ws.StartedAt, &ws.EndedAt, &ws.Quiesced, &ws.UpdatedAt, &ws.LastEventID)
	if err != nil {
		return nil, fmt.Errorf("eventstore: get workflow_state: %w", err)
	}

	if s.cache != nil {
		s.putWorkflowStateInCache(ctx, executionID, ws)
	}
	return ws, nil
}

func (s *Store) getWorkflowStateFromCache(ctx context.Context, executionID int64) (*model.WorkflowState, bool) {
	raw, err := s.cache.Get(ctx, workflowStateCacheKey(executionID))
	if err != nil {
		return nil, false
	}
	var ws model.WorkflowState
	if err := json.Unmarshal([]byte(raw), &ws); err != nil {
		return nil, false
	}
	return &ws, true
}

func (s *Store) putWorkflowStateInCache(ctx context.Context, executionID int64, ws *model.WorkflowState) {
	encoded, err := json.Marshal(ws)
	if err != nil {
		return
	}
	if err := s.cache.SetWithExpiry(ctx, workflowStateCacheKey(executionID), string(encoded), workflowStateCacheTTL); err != nil {
		s.log.Debug("workflow_state cache write failed", "execution_id", executionID, "error", err)
	}
}

// GetWorkloadState reads the execution's workload+ctx projection.
func (s *Store) GetWorkloadState(ctx context.Context, executionID int64) (*model.WorkloadState, error) {
	w := &model.WorkloadState{}
	err := s.db.QueryRow(ctx, `
		SELECT execution_id, workload, ctx, updated_at FROM workload_state WHERE execution_id = $1`, executionID).Scan(
		&w.ExecutionID, &w.Workload, &w.Ctx, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("eventstore: get workload_state: %w", err)
	}
	return w, nil
}

// GetStepState reads the per-step projection for one node.
func (s *Store) GetStepState(ctx context.Context, executionID, nodeID int64) (*model.StepState, error) {
	st := &model.StepState{}
	err := s.db.QueryRow(ctx, `
		SELECT execution_id, node_id, node_name, status, current_index, attempt, last_result, last_error, updated_at, last_event_id
		FROM step_state WHERE execution_id = $1 AND node_id = $2`, executionID, nodeID).Scan(
		&st.ExecutionID, &st.NodeID, &st.NodeName, &st.Status, &st.CurrentIndex, &st.Attempt, &st.LastResult, &st.LastError, &st.UpdatedAt, &st.LastEventID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("eventstore: get step_state: %w", err)
	}
	return st, nil
}

// ListPendingSteps returns the node_ids of every step currently parked in
// pending (admission denied, awaiting a ctx.patched event to reconsider),
// for the execution.
func (s *Store) ListPendingSteps(ctx context.Context, executionID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT node_id FROM step_state WHERE execution_id = $1 AND status = $2`, executionID, model.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("eventstore: list pending steps: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("eventstore: scan pending step: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListFailedSteps returns the node names of every step in failed state,
// for the execution.failed aggregation metadata (spec §4.3.5).
func (s *Store) ListFailedSteps(ctx context.Context, executionID int64) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT node_name FROM step_state WHERE execution_id = $1 AND status = $2`, executionID, model.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("eventstore: list failed steps: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("eventstore: scan failed step: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
