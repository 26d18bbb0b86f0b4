// Package eventstore is the append-only source of truth for an execution:
// every step, task-attempt, loop and lifecycle transition is an Event row.
// Emit persists an event and its projection updates in one transaction;
// nothing else in the system writes events directly.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noetl/noetl/common/db"
	"github.com/noetl/noetl/common/logger"
	"github.com/noetl/noetl/common/redis"
	"github.com/noetl/noetl/internal/model"
)

// workflowStateCacheTTL bounds how stale a cached workflow_state read may
// be: short enough that a reconsideration or routing decision a few
// seconds behind Postgres is never the difference between correct and
// incorrect control flow, long enough to absorb the repeated
// GetWorkflowState calls every Advance/ReconsiderPending makes against the
// same hot execution_id.
const workflowStateCacheTTL = 2 * time.Second

// Store is the event log plus its derived projections, all backed by the
// same Postgres database so emit and projection-update are atomic. cache
// is an optional read-through accelerant over workflow_state reads; a nil
// cache just means every read goes straight to Postgres.
type Store struct {
	db    *db.DB
	log   *logger.Logger
	cache *redis.Client
}

// New constructs a Store over an existing connection pool, with no
// workflow_state cache.
func New(database *db.DB, log *logger.Logger) *Store {
	return &Store{db: database, log: log}
}

// WithCache attaches a Redis-backed read-through cache for
// GetWorkflowState. Passing a nil client is a no-op (keeps the store
// Postgres-only).
func (s *Store) WithCache(cache *redis.Client) *Store {
	if cache != nil {
		s.cache = cache
	}
	return s
}

// dedupedEventType reports whether an event type carries a partial unique
// constraint the store must treat as an idempotency marker, and the
// columns that constraint is scoped by.
func dedupedEventType(t model.EventType) (scoped bool, byIndex bool) {
	switch t {
	case model.EventStepStarted:
		return true, false
	case model.EventLoopIteration:
		return true, true
	case model.EventExecutionCompleted:
		return true, false
	default:
		return false, false
	}
}

// Emit appends an event, resolving catalog_id when the caller omitted it,
// applies the event's projection updates, and returns the assigned
// event_id. A duplicate step.started/loop.iteration/execution.completed
// insert is not an error: it returns the event_id of the row already on
// disk (spec idempotency-marker semantics).
func (s *Store) Emit(ctx context.Context, ev *model.Event) (int64, error) {
	if !validEventType(ev.EventType) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidEventType, ev.EventType)
	}
	if !validStatus(ev.Status) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStatus, ev.Status)
	}

	catalogID, err := s.resolveCatalogID(ctx, ev)
	if err != nil {
		return 0, err
	}
	ev.CatalogID = catalogID

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("eventstore: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	eventID, deduped, err := insertEvent(ctx, tx, ev)
	if err != nil {
		return 0, fmt.Errorf("eventstore: insert event: %w", err)
	}
	ev.EventID = eventID

	if !deduped {
		if err := applyProjections(ctx, tx, ev); err != nil {
			return 0, fmt.Errorf("eventstore: apply projections: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("eventstore: commit: %w", err)
	}

	if deduped {
		s.log.Debug("event deduped", "event_type", ev.EventType, "execution_id", ev.ExecutionID, "event_id", eventID)
	} else {
		s.invalidateWorkflowStateCache(ctx, ev.ExecutionID)
	}
	return eventID, nil
}

// invalidateWorkflowStateCache drops the cached workflow_state row for
// executionID after a write that may have changed it. Best-effort: a
// failed delete just means the next read serves a stale value for up to
// workflowStateCacheTTL, not a correctness break.
func (s *Store) invalidateWorkflowStateCache(ctx context.Context, executionID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, workflowStateCacheKey(executionID)); err != nil {
		s.log.Debug("workflow_state cache invalidation failed", "execution_id", executionID, "error", err)
	}
}

func workflowStateCacheKey(executionID int64) string {
	return fmt.Sprintf("noetl:workflow_state:%d", executionID)
}

// insertEvent performs the actual INSERT, returning (event_id, deduped).
// For marker event types it first attempts a conflict-free insert via
// ON CONFLICT DO NOTHING against the relevant partial unique index; if no
// row was inserted, it falls back to reading the existing row's event_id.
func insertEvent(ctx context.Context, tx pgx.Tx, ev *model.Event) (int64, bool, error) {
	const insertCols = `
		INSERT INTO events (
			execution_id, catalog_id, parent_event_id, node_id, node_name,
			event_type, status, timestamp, current_index, attempt, context, result, meta
		) VALUES ($1,$2,$3,$4,$5,$6,$7,now(),$8,$9,$10,$11,$12)`

	scoped, byIndex := dedupedEventType(ev.EventType)
	if !scoped {
		var eventID int64
		err := tx.QueryRow(ctx, insertCols+" RETURNING event_id",
			ev.ExecutionID, ev.CatalogID, ev.ParentEventID, ev.NodeID, ev.NodeName,
			ev.EventType, ev.Status, ev.CurrentIndex, ev.Attempt, ev.Context, ev.Result, ev.Meta,
		).Scan(&eventID)
		if err != nil {
			return 0, false, err
		}
		return eventID, false, nil
	}

	var eventID int64
	err := tx.QueryRow(ctx, insertCols+" ON CONFLICT DO NOTHING RETURNING event_id",
		ev.ExecutionID, ev.CatalogID, ev.ParentEventID, ev.NodeID, ev.NodeName,
		ev.EventType, ev.Status, ev.CurrentIndex, ev.Attempt, ev.Context, ev.Result, ev.Meta,
	).Scan(&eventID)
	switch {
	case err == nil:
		return eventID, false, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, findErr := findDedupedEventID(ctx, tx, ev, byIndex)
		if findErr != nil {
			return 0, false, findErr
		}
		return existing, true, nil
	case isUniqueViolation(err):
		existing, findErr := findDedupedEventID(ctx, tx, ev, byIndex)
		if findErr != nil {
			return 0, false, findErr
		}
		return existing, true, nil
	default:
		return 0, false, err
	}
}

func findDedupedEventID(ctx context.Context, tx pgx.Tx, ev *model.Event, byIndex bool) (int64, error) {
	var eventID int64
	var err error
	switch {
	case ev.EventType == model.EventStepStarted:
		err = tx.QueryRow(ctx,
			`SELECT event_id FROM events WHERE execution_id=$1 AND node_name=$2 AND event_type=$3`,
			ev.ExecutionID, ev.NodeName, ev.EventType).Scan(&eventID)
	case byIndex: // loop.iteration
		err = tx.QueryRow(ctx,
			`SELECT event_id FROM events WHERE execution_id=$1 AND node_name=$2 AND current_index=$3 AND event_type=$4`,
			ev.ExecutionID, ev.NodeName, ev.CurrentIndex, ev.EventType).Scan(&eventID)
	default: // execution.completed
		err = tx.QueryRow(ctx,
			`SELECT event_id FROM events WHERE execution_id=$1 AND event_type=$2`,
			ev.ExecutionID, ev.EventType).Scan(&eventID)
	}
	return eventID, err
}

// resolveCatalogID fills in ev.CatalogID when the caller left it zero:
// falling back to the execution's earliest event's catalog_id. Fails with
// ErrCatalogUnresolved if neither source yields a value.
func (s *Store) resolveCatalogID(ctx context.Context, ev *model.Event) (int64, error) {
	if ev.CatalogID != 0 {
		return ev.CatalogID, nil
	}
	var catalogID int64
	err := s.db.QueryRow(ctx,
		`SELECT catalog_id FROM events WHERE execution_id=$1 ORDER BY event_id ASC LIMIT 1`,
		ev.ExecutionID).Scan(&catalogID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrCatalogUnresolved
	}
	if err != nil {
		return 0, fmt.Errorf("resolve catalog_id: %w", err)
	}
	return catalogID, nil
}

func validEventType(t model.EventType) bool {
	switch t {
	case model.EventExecutionStarted, model.EventExecutionCompleted, model.EventExecutionFailed, model.EventExecutionCancelled,
		model.EventStepAdmitted, model.EventStepStarted, model.EventStepDone, model.EventStepFailed, model.EventStepCancelled,
		model.EventTaskAttemptStarted, model.EventTaskAttemptDone, model.EventTaskAttemptFailed, model.EventTaskPolicyEvaluated,
		model.EventLoopIteration, model.EventLoopDone, model.EventCtxPatched, model.EventRouterEvaluated:
		return true
	default:
		return false
	}
}

func validStatus(s model.Status) bool {
	switch s {
	case model.StatusRunning, model.StatusDone, model.StatusFailed, model.StatusCancelled, model.StatusPending:
		return true
	default:
		return false
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
