package workerruntime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/noetl/noetl/common/logger"
	"github.com/noetl/noetl/internal/eventstore"
	"github.com/noetl/noetl/internal/keychain"
	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/orchestrator"
	"github.com/noetl/noetl/internal/queue"
	"github.com/noetl/noetl/internal/resultref"
	"github.com/noetl/noetl/internal/scope"
	"github.com/noetl/noetl/internal/tools"
)

// Config controls a Runner's polling and lease-renewal cadence.
type Config struct {
	WorkerID       string
	PollInterval   time.Duration
	HeartbeatEvery time.Duration
}

// Runner is a pool slot: it leases one step-run at a time from the queue,
// runs its pipeline, and reports the outcome back through the
// orchestrator. Grounded on the ambient worker's poll-loop/backoff-on-error
// shape, substituting a Postgres lease claim for a stream consumer-group
// read.
type Runner struct {
	cfg           Config
	queue         *queue.Queue
	events        *eventstore.Store
	orch          *orchestrator.Orchestrator
	tools         *tools.Registry
	keychainStore *keychain.Store
	results       *resultref.Store
	eng           *scope.Engine
	log           *logger.Logger
}

// New constructs a Runner.
func New(cfg Config, q *queue.Queue, events *eventstore.Store, orch *orchestrator.Orchestrator, toolRegistry *tools.Registry, keychainStore *keychain.Store, results *resultref.Store, eng *scope.Engine, log *logger.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = 10 * time.Second
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = fmt.Sprintf("worker-%d", time.Now().UnixNano())
	}
	return &Runner{cfg: cfg, queue: q, events: events, orch: orch, tools: toolRegistry, keychainStore: keychainStore, results: results, eng: eng, log: log}
}

// Start runs the lease/execute/report loop until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("starting worker runtime", "worker_id", r.cfg.WorkerID)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("worker runtime stopping", "worker_id", r.cfg.WorkerID)
			return nil
		default:
			if err := r.pollOnce(ctx); err != nil {
				r.log.Error("worker poll failed", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

// pollOnce leases at most one queue row and executes it; an empty queue is
// not an error, it just backs the loop off by PollInterval.
func (r *Runner) pollOnce(ctx context.Context) error {
	item, err := r.queue.Lease(ctx, r.cfg.WorkerID)
	if errors.Is(err, queue.ErrNoItem) {
		time.Sleep(r.cfg.PollInterval)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lease: %w", err)
	}
	return r.runStep(ctx, item)
}

// runStep executes one leased queue row end to end: decode payload, run
// the pipeline under a heartbeat, report completion or failure to the
// queue, and advance the orchestrator's control loop from the result.
func (r *Runner) runStep(ctx context.Context, item *model.QueueItem) error {
	var payload model.StepRunPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return fmt.Errorf("decode step-run payload: %w", err)
	}

	bundle, err := r.bundleFor(ctx, item.ExecutionID, payload.Args, payload.Iter)
	if err != nil {
		return fmt.Errorf("build scope bundle: %w", err)
	}

	var lost atomic.Bool
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go r.heartbeatLoop(hbCtx, item.QueueID, &lost)

	result, err := r.runPipeline(ctx, item.ExecutionID, item.NodeID, item.NodeName, &payload, bundle, lost.Load)
	stopHeartbeat()

	if errors.Is(err, ErrLeaseLost) {
		r.log.Warn("lease lost mid-pipeline, abandoning step", "queue_id", item.QueueID, "execution_id", item.ExecutionID)
		return nil
	}
	if err != nil {
		if failErr := r.queue.Fail(ctx, item.QueueID, r.cfg.WorkerID); failErr != nil && !errors.Is(failErr, queue.ErrLeaseConflict) {
			r.log.Error("queue fail after pipeline error failed", "queue_id", item.QueueID, "error", failErr)
		}
		return fmt.Errorf("run pipeline for %q: %w", item.NodeName, err)
	}

	if result.Status == model.StatusFailed {
		if failErr := r.queue.Fail(ctx, item.QueueID, r.cfg.WorkerID); failErr != nil && !errors.Is(failErr, queue.ErrLeaseConflict) {
			r.log.Error("queue fail failed", "queue_id", item.QueueID, "error", failErr)
		}
	} else {
		compErr := r.queue.Complete(ctx, item.QueueID, r.cfg.WorkerID)
		if errors.Is(compErr, queue.ErrLeaseConflict) {
			r.log.Warn("lease expired before completion", "queue_id", item.QueueID, "execution_id", item.ExecutionID)
			leaseErr, _ := json.Marshal(model.OutcomeError{Kind: model.ErrLeaseExpired, Message: "queue lease no longer held at completion"})
			ev := &model.Event{
				ExecutionID: item.ExecutionID, NodeID: &item.NodeID, NodeName: &item.NodeName,
				EventType: model.EventTaskAttemptFailed, Status: model.StatusFailed, Result: leaseErr,
			}
			if _, emitErr := r.events.Emit(ctx, ev); emitErr != nil {
				r.log.Error("emit lease_expired failed", "queue_id", item.QueueID, "error", emitErr)
			}
		} else if compErr != nil {
			r.log.Error("queue complete failed", "queue_id", item.QueueID, "error", compErr)
		}
	}

	if err := r.orch.Advance(ctx, item.ExecutionID, item.NodeID, result.Status, result.Result, result.Extracted); err != nil {
		return fmt.Errorf("advance orchestrator for %q: %w", item.NodeName, err)
	}
	return nil
}

// heartbeatLoop extends the lease on item.QueueID every HeartbeatEvery
// until ctx is cancelled; a failed heartbeat sets lost and stops, letting
// the in-flight pipeline observe it at its next check point.
func (r *Runner) heartbeatLoop(ctx context.Context, queueID int64, lost *atomic.Bool) {
	ticker := time.NewTicker(r.cfg.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.queue.Heartbeat(ctx, queueID, r.cfg.WorkerID); err != nil {
				r.log.Warn("heartbeat failed", "queue_id", queueID, "error", err)
				lost.Store(true)
				return
			}
		}
	}
}

// bundleFor assembles the scope bundle a leased step-run's pipeline
// evaluates templates and policy against: immutable args from the token,
// iter seed for loop iterations, and the execution's current
// workload/ctx snapshot.
func (r *Runner) bundleFor(ctx context.Context, executionID int64, args, iter map[string]any) (*model.ScopeBundle, error) {
	bundle := &model.ScopeBundle{Args: args, Iter: iter}
	ws, err := r.events.GetWorkloadState(ctx, executionID)
	if err != nil {
		bundle.Workload = map[string]any{}
		bundle.Ctx = map[string]any{}
		return bundle, nil
	}
	if len(ws.Workload) > 0 {
		if err := json.Unmarshal(ws.Workload, &bundle.Workload); err != nil {
			return nil, fmt.Errorf("decode workload: %w", err)
		}
	}
	if len(ws.Ctx) > 0 {
		if err := json.Unmarshal(ws.Ctx, &bundle.Ctx); err != nil {
			return nil, fmt.Errorf("decode ctx: %w", err)
		}
	}
	return bundle, nil
}
