package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/noetl/noetl/internal/queue"
)

// QueueHandler serves the server-to-worker queue endpoints (spec §6):
// lease/heartbeat/complete/fail. Most workers talk to the queue in
// process via internal/queue.Queue directly (see internal/workerruntime);
// this HTTP surface exists for out-of-process or non-Go workers.
type QueueHandler struct {
	c *Container
}

// NewQueueHandler constructs a QueueHandler.
func NewQueueHandler(c *Container) *QueueHandler {
	return &QueueHandler{c: c}
}

type leaseRequest struct {
	WorkerID string `json:"worker_id"`
}

// Lease leases at most one queued step-run for the requesting worker.
func (h *QueueHandler) Lease(c echo.Context) error {
	var req leaseRequest
	if err := c.Bind(&req); err != nil || req.WorkerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "worker_id is required")
	}

	item, err := h.c.Queue.Lease(c.Request().Context(), req.WorkerID)
	if errors.Is(err, queue.ErrNoItem) {
		return c.NoContent(http.StatusNoContent)
	}
	if err != nil {
		h.c.Components.Logger.Error("queue lease failed", "worker_id", req.WorkerID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to lease queue item")
	}
	return c.JSON(http.StatusOK, item)
}

type queueAckRequest struct {
	QueueID  int64  `json:"queue_id"`
	WorkerID string `json:"worker_id"`
}

// Heartbeat extends the lease a worker holds on a queue row.
func (h *QueueHandler) Heartbeat(c echo.Context) error {
	var req queueAckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.c.Queue.Heartbeat(c.Request().Context(), req.QueueID, req.WorkerID); err != nil {
		return queueAckError(c, err, "heartbeat")
	}
	return c.NoContent(http.StatusOK)
}

// Complete marks a queue row done.
func (h *QueueHandler) Complete(c echo.Context) error {
	var req queueAckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.c.Queue.Complete(c.Request().Context(), req.QueueID, req.WorkerID); err != nil {
		return queueAckError(c, err, "complete")
	}
	return c.NoContent(http.StatusOK)
}

// Fail marks a queue row dead (or available for retry, per the queue
// package's own backoff scheduling).
func (h *QueueHandler) Fail(c echo.Context) error {
	var req queueAckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.c.Queue.Fail(c.Request().Context(), req.QueueID, req.WorkerID); err != nil {
		return queueAckError(c, err, "fail")
	}
	return c.NoContent(http.StatusOK)
}

func queueAckError(c echo.Context, err error, op string) error {
	if errors.Is(err, queue.ErrLeaseConflict) {
		return echo.NewHTTPError(http.StatusConflict, "lease no longer held")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "failed to "+op+" queue item")
}
