// Package queue is the durable, Postgres-backed work queue a worker leases
// from: one row per step-run attempt, claimed with row-level locking so
// concurrent workers never double-lease the same row.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noetl/noetl/common/db"
	"github.com/noetl/noetl/common/logger"
	"github.com/noetl/noetl/internal/model"
)

// Queue leases queue_item rows to workers and reclaims expired leases.
type Queue struct {
	db           *db.DB
	log          *logger.Logger
	leaseFor     time.Duration
	maxAttempts  int
	retryBase    time.Duration
}

// Config configures lease duration, retry backoff and attempt ceiling.
type Config struct {
	LeaseDuration time.Duration
	MaxAttempts   int
	RetryBaseDelay time.Duration
}

// New constructs a Queue.
func New(database *db.DB, log *logger.Logger, cfg Config) *Queue {
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	return &Queue{db: database, log: log, leaseFor: cfg.LeaseDuration, maxAttempts: cfg.MaxAttempts, retryBase: cfg.RetryBaseDelay}
}

// Enqueue inserts a queue row. unique(execution_id, node_id, attempt)
// collapses racing inserts from duplicate admission; the duplicate insert
// is a silent no-op returning the existing queue_id.
func (q *Queue) Enqueue(ctx context.Context, executionID, nodeID int64, nodeName string, attempt int, payload []byte, triggerEventID int64, parentEventID *int64, availableAt time.Time) (int64, error) {
	if availableAt.IsZero() {
		availableAt = time.Now()
	}
	var queueID int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO queue_items (execution_id, node_id, node_name, attempt, status, available_at, payload, trigger_event_id, parent_event_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING queue_id`,
		executionID, nodeID, nodeName, attempt, model.QueueQueued, availableAt, payload, triggerEventID, parentEventID,
	).Scan(&queueID)
	if err == nil {
		return queueID, nil
	}
	if isUniqueViolation(err) {
		err = q.db.QueryRow(ctx, `
			SELECT queue_id FROM queue_items WHERE execution_id = $1 AND node_id = $2 AND attempt = $3`,
			executionID, nodeID, attempt).Scan(&queueID)
		if err != nil {
			return 0, fmt.Errorf("queue: read deduped enqueue: %w", err)
		}
		return queueID, nil
	}
	return 0, fmt.Errorf("queue: enqueue: %w", err)
}

// Lease claims the oldest available queued row for workerID, locking it
// with FOR UPDATE SKIP LOCKED so concurrent lease calls never contend on
// the same row.
func (q *Queue) Lease(ctx context.Context, workerID string) (*model.QueueItem, error) {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: begin lease tx: %w", err)
	}
	item, err := q.lease(ctx, tx, workerID)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("queue: commit lease: %w", err)
	}
	return item, nil
}

func (q *Queue) lease(ctx context.Context, tx pgx.Tx, workerID string) (*model.QueueItem, error) {
	leaseUntil := time.Now().Add(q.leaseFor)
	item := &model.QueueItem{}
	err := tx.QueryRow(ctx, `
		UPDATE queue_items SET status = $1, worker_id = $2, lease_until = $3, updated_at = now()
		WHERE queue_id = (
			SELECT queue_id FROM queue_items
			WHERE status = $4 AND available_at <= now()
			ORDER BY available_at ASC, queue_id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING queue_id, execution_id, node_id, node_name, attempt, status, worker_id, lease_until, available_at, payload, trigger_event_id, parent_event_id, created_at, updated_at`,
		model.QueueLeased, workerID, leaseUntil, model.QueueQueued,
	).Scan(&item.QueueID, &item.ExecutionID, &item.NodeID, &item.NodeName, &item.Attempt, &item.Status,
		&item.WorkerID, &item.LeaseUntil, &item.AvailableAt, &item.Payload, &item.TriggerEventID, &item.ParentEventID,
		&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoItem
	}
	if err != nil {
		return nil, fmt.Errorf("queue: lease: %w", err)
	}
	return item, nil
}

// Heartbeat extends a held lease. Returns ErrLeaseConflict if workerID no
// longer owns the row (expired and reaped, or never leased by it).
func (q *Queue) Heartbeat(ctx context.Context, queueID int64, workerID string) error {
	leaseUntil := time.Now().Add(q.leaseFor)
	cmd, err := q.db.Exec(ctx, `
		UPDATE queue_items SET lease_until = $3, updated_at = now()
		WHERE queue_id = $1 AND worker_id = $2 AND status = $4`,
		queueID, workerID, leaseUntil, model.QueueLeased)
	if err != nil {
		return fmt.Errorf("queue: heartbeat: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrLeaseConflict
	}
	return nil
}

// Complete marks a leased row done. Returns ErrLeaseConflict if workerID
// no longer owns the row (the orchestrator may already have reaped and
// re-queued it; see spec's lease_expired advisory failure kind).
func (q *Queue) Complete(ctx context.Context, queueID int64, workerID string) error {
	cmd, err := q.db.Exec(ctx, `
		UPDATE queue_items SET status = $3, updated_at = now()
		WHERE queue_id = $1 AND worker_id = $2 AND status = $4`,
		queueID, workerID, model.QueueDone, model.QueueLeased)
	if err != nil {
		return fmt.Errorf("queue: complete: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrLeaseConflict
	}
	return nil
}

// Fail records a failed attempt. If attempts remain, the row is re-queued
// with a backoff delay; otherwise it is marked dead.
func (q *Queue) Fail(ctx context.Context, queueID int64, workerID string) error {
	tx, err := q.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("queue: begin fail tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var attempt int
	err = tx.QueryRow(ctx, `
		SELECT attempt FROM queue_items WHERE queue_id = $1 AND worker_id = $2 AND status = $3 FOR UPDATE`,
		queueID, workerID, model.QueueLeased).Scan(&attempt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLeaseConflict
	}
	if err != nil {
		return fmt.Errorf("queue: read for fail: %w", err)
	}

	if attempt >= q.maxAttempts {
		_, err = tx.Exec(ctx, `UPDATE queue_items SET status = $2, updated_at = now() WHERE queue_id = $1`, queueID, model.QueueDead)
	} else {
		delay := backoffDelay(q.retryBase, attempt)
		_, err = tx.Exec(ctx, `
			UPDATE queue_items SET status = $2, worker_id = NULL, lease_until = NULL, attempt = attempt + 1, available_at = now() + $3, updated_at = now()
			WHERE queue_id = $1`, queueID, model.QueueQueued, delay)
	}
	if err != nil {
		return fmt.Errorf("queue: apply fail: %w", err)
	}
	return tx.Commit(ctx)
}

// Reap reclaims leases past their lease_until: expired leases are
// requeued with backoff (or marked dead past max attempts), per spec's
// reaper semantics. Returns the number of rows reclaimed.
func (q *Queue) Reap(ctx context.Context) (int, error) {
	rows, err := q.db.Query(ctx, `SELECT queue_id, attempt FROM queue_items WHERE status = $1 AND lease_until < now()`, model.QueueLeased)
	if err != nil {
		return 0, fmt.Errorf("queue: select expired leases: %w", err)
	}
	type expired struct {
		queueID int64
		attempt int
	}
	var items []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.queueID, &e.attempt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("queue: scan expired lease: %w", err)
		}
		items = append(items, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("queue: iterate expired leases: %w", err)
	}

	reclaimed := 0
	for _, e := range items {
		var err error
		if e.attempt >= q.maxAttempts {
			_, err = q.db.Exec(ctx, `UPDATE queue_items SET status = $2, worker_id = NULL, lease_until = NULL, updated_at = now() WHERE queue_id = $1 AND status = $3`,
				e.queueID, model.QueueDead, model.QueueLeased)
		} else {
			delay := backoffDelay(q.retryBase, e.attempt)
			_, err = q.db.Exec(ctx, `
				UPDATE queue_items SET status = $2, worker_id = NULL, lease_until = NULL, attempt = attempt + 1, available_at = now() + $3, updated_at = now()
				WHERE queue_id = $1 AND status = $4`,
				e.queueID, model.QueueQueued, delay, model.QueueLeased)
		}
		if err != nil {
			q.log.Error("reap: failed to reclaim queue item", "queue_id", e.queueID, "error", err)
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

// CountActive returns the number of queued (with available_at <= now) or
// leased rows for an execution — used by the orchestrator's quiescence
// check (spec §4.3.5).
func (q *Queue) CountActive(ctx context.Context, executionID int64) (int, error) {
	var count int
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM queue_items
		WHERE execution_id = $1
		AND (
			(status = $2 AND available_at <= now())
			OR status = $3
		)`,
		executionID, model.QueueQueued, model.QueueLeased).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("queue: count active: %w", err)
	}
	return count, nil
}

// CancelExecution marks every outstanding (queued or leased) row for an
// execution dead, used by cooperative cancellation (spec §4.3.6).
func (q *Queue) CancelExecution(ctx context.Context, executionID int64) (int64, error) {
	cmd, err := q.db.Exec(ctx, `
		UPDATE queue_items SET status = $2, updated_at = now()
		WHERE execution_id = $1 AND status IN ($3, $4)`,
		executionID, model.QueueDead, model.QueueQueued, model.QueueLeased)
	if err != nil {
		return 0, fmt.Errorf("queue: cancel execution: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	const maxDelay = 5 * time.Minute
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
