package eventstore

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/jackc/pgx/v5"

	"github.com/noetl/noetl/internal/model"
)

// applyProjections folds one event into the derived projections it
// affects, in the same transaction as the event insert. A projection
// update failure aborts the whole insert.
func applyProjections(ctx context.Context, tx pgx.Tx, ev *model.Event) error {
	switch {
	case ev.IsLifecycle():
		return applyWorkflowProjection(ctx, tx, ev)
	case ev.EventType == model.EventStepAdmitted:
		return upsertStepState(ctx, tx, ev, model.StatusPending)
	case ev.EventType == model.EventStepStarted:
		return upsertStepState(ctx, tx, ev, model.StatusRunning)
	case ev.EventType == model.EventStepDone:
		return upsertStepState(ctx, tx, ev, model.StatusDone)
	case ev.EventType == model.EventStepFailed:
		return upsertStepState(ctx, tx, ev, model.StatusFailed)
	case ev.EventType == model.EventStepCancelled:
		return upsertStepState(ctx, tx, ev, model.StatusCancelled)
	case ev.EventType == model.EventLoopDone:
		return upsertStepState(ctx, tx, ev, model.StatusDone)
	case ev.EventType == model.EventTaskAttemptStarted, ev.EventType == model.EventTaskAttemptDone, ev.EventType == model.EventTaskAttemptFailed:
		return bumpStepAttempt(ctx, tx, ev)
	case ev.EventType == model.EventCtxPatched:
		return applyCtxPatch(ctx, tx, ev)
	case ev.EventType == model.EventRouterEvaluated:
		return applyTransition(ctx, tx, ev)
	default:
		return nil
	}
}

func applyWorkflowProjection(ctx context.Context, tx pgx.Tx, ev *model.Event) error {
	switch ev.EventType {
	case model.EventExecutionStarted:
		_, err := tx.Exec(ctx, `
			INSERT INTO workflow_state (execution_id, catalog_id, status, started_at, quiesced, updated_at, last_event_id)
			VALUES ($1, $2, $3, now(), false, now(), $4)
			ON CONFLICT (execution_id) DO UPDATE SET
				status = EXCLUDED.status, updated_at = now(), last_event_id = EXCLUDED.last_event_id`,
			ev.ExecutionID, ev.CatalogID, model.StatusRunning, ev.EventID)
		if err != nil {
			return fmt.Errorf("upsert workflow_state on start: %w", err)
		}
		if ev.Context != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO workload_state (execution_id, workload, ctx, updated_at)
				VALUES ($1, $2, '{}'::jsonb, now())
				ON CONFLICT (execution_id) DO UPDATE SET workload = EXCLUDED.workload, updated_at = now()`,
				ev.ExecutionID, ev.Context)
			if err != nil {
				return fmt.Errorf("seed workload_state: %w", err)
			}
		}
		return nil

	case model.EventExecutionCompleted, model.EventExecutionFailed, model.EventExecutionCancelled:
		status := model.StatusDone
		if ev.EventType == model.EventExecutionFailed {
			status = model.StatusFailed
		} else if ev.EventType == model.EventExecutionCancelled {
			status = model.StatusCancelled
		}
		_, err := tx.Exec(ctx, `
			UPDATE workflow_state
			SET status = $2, ended_at = now(), updated_at = now(), last_event_id = $3
			WHERE execution_id = $1`,
			ev.ExecutionID, status, ev.EventID)
		if err != nil {
			return fmt.Errorf("update workflow_state on terminal: %w", err)
		}
		return nil

	default:
		return nil
	}
}

func upsertStepState(ctx context.Context, tx pgx.Tx, ev *model.Event, status model.Status) error {
	if ev.NodeID == nil {
		return fmt.Errorf("eventstore: %s event missing node_id", ev.EventType)
	}
	nodeName := ""
	if ev.NodeName != nil {
		nodeName = *ev.NodeName
	}
	attempt := 0
	if ev.Attempt != nil {
		attempt = *ev.Attempt
	}

	var lastResult, lastError any
	switch ev.EventType {
	case model.EventStepDone, model.EventLoopDone:
		lastResult = ev.Result
	case model.EventStepFailed:
		lastError = ev.Result
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO step_state (execution_id, node_id, node_name, status, current_index, attempt, last_result, last_error, updated_at, last_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), $9)
		ON CONFLICT (execution_id, node_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_index = COALESCE(EXCLUDED.current_index, step_state.current_index),
			attempt = GREATEST(step_state.attempt, EXCLUDED.attempt),
			last_result = COALESCE(EXCLUDED.last_result, step_state.last_result),
			last_error = COALESCE(EXCLUDED.last_error, step_state.last_error),
			updated_at = now(),
			last_event_id = EXCLUDED.last_event_id`,
		ev.ExecutionID, *ev.NodeID, nodeName, status, ev.CurrentIndex, attempt, lastResult, lastError, ev.EventID)
	if err != nil {
		return fmt.Errorf("upsert step_state: %w", err)
	}
	return nil
}

func bumpStepAttempt(ctx context.Context, tx pgx.Tx, ev *model.Event) error {
	if ev.NodeID == nil || ev.Attempt == nil {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE step_state SET attempt = GREATEST(attempt, $3), updated_at = now(), last_event_id = $4
		WHERE execution_id = $1 AND node_id = $2`,
		ev.ExecutionID, *ev.NodeID, *ev.Attempt, ev.EventID)
	if err != nil {
		return fmt.Errorf("bump step_state attempt: %w", err)
	}
	return nil
}

// applyCtxPatch merges a ctx.patched event's JSON Patch document into the
// execution's accumulated ctx, matching the run-patch materialization the
// orchestrator's patch_set artifacts used: decode the operations, apply
// them to the current document, store the result.
func applyCtxPatch(ctx context.Context, tx pgx.Tx, ev *model.Event) error {
	if ev.Context == nil {
		return nil
	}
	var current json.RawMessage
	err := tx.QueryRow(ctx, `SELECT ctx FROM workload_state WHERE execution_id = $1 FOR UPDATE`, ev.ExecutionID).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			current = json.RawMessage(`{}`)
		} else {
			return fmt.Errorf("read ctx for patch: %w", err)
		}
	}
	if len(current) == 0 {
		current = json.RawMessage(`{}`)
	}

	patch, err := jsonpatch.DecodePatch(ev.Context)
	if err != nil {
		return fmt.Errorf("decode ctx patch: %w", err)
	}
	patched, err := patch.Apply(current)
	if err != nil {
		return fmt.Errorf("apply ctx patch: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO workload_state (execution_id, workload, ctx, updated_at)
		VALUES ($1, '{}'::jsonb, $2, now())
		ON CONFLICT (execution_id) DO UPDATE SET ctx = EXCLUDED.ctx, updated_at = now()`,
		ev.ExecutionID, patched)
	if err != nil {
		return fmt.Errorf("persist patched ctx: %w", err)
	}
	return nil
}

func applyTransition(ctx context.Context, tx pgx.Tx, ev *model.Event) error {
	if ev.NodeID == nil || ev.Meta == nil {
		return nil
	}
	var meta struct {
		Arcs []struct {
			ToNodeName  string  `json:"to_node_name"`
			MatchedWhen *string `json:"matched_when,omitempty"`
			Mode        string  `json:"mode"`
		} `json:"arcs"`
	}
	if err := json.Unmarshal(ev.Meta, &meta); err != nil {
		return fmt.Errorf("decode router.evaluated meta: %w", err)
	}
	for _, arc := range meta.Arcs {
		_, err := tx.Exec(ctx, `
			INSERT INTO transitions (execution_id, from_node_id, to_node_name, matched_when, mode, created_at, trigger_event_id)
			VALUES ($1, $2, $3, $4, $5, now(), $6)`,
			ev.ExecutionID, *ev.NodeID, arc.ToNodeName, arc.MatchedWhen, arc.Mode, ev.EventID)
		if err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
	}
	return nil
}
