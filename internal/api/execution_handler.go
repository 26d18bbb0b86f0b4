package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/noetl/noetl/internal/model"
)

// ExecutionHandler serves GET /api/execution/{id} and
// POST /api/cancel/{id} (spec §6).
type ExecutionHandler struct {
	c *Container
}

// NewExecutionHandler constructs an ExecutionHandler.
func NewExecutionHandler(c *Container) *ExecutionHandler {
	return &ExecutionHandler{c: c}
}

type executionSnapshot struct {
	Workflow    *model.WorkflowState `json:"workflow"`
	Workload    *model.WorkloadState `json:"workload"`
	FailedSteps []string             `json:"failed_steps"`
}

// GetExecution returns the derived status snapshot for one execution:
// its workflow_state and workload_state projections plus the names of
// any steps currently in a failed state.
func (h *ExecutionHandler) GetExecution(c echo.Context) error {
	executionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution id")
	}

	ws, err := h.c.Events.GetWorkflowState(c.Request().Context(), executionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "execution not found")
		}
		h.c.Components.Logger.Error("get execution: workflow state", "execution_id", executionID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load execution state")
	}

	wl, err := h.c.Events.GetWorkloadState(c.Request().Context(), executionID)
	if err != nil {
		h.c.Components.Logger.Warn("get execution: workload state unavailable", "execution_id", executionID, "error", err)
		wl = &model.WorkloadState{ExecutionID: executionID}
	}

	failed, err := h.c.Events.ListFailedSteps(c.Request().Context(), executionID)
	if err != nil {
		h.c.Components.Logger.Error("get execution: list failed steps", "execution_id", executionID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load failed steps")
	}

	return c.JSON(http.StatusOK, executionSnapshot{Workflow: ws, Workload: wl, FailedSteps: failed})
}

type cancelRequest struct {
	Reason  string `json:"reason"`
	Cascade bool   `json:"cascade,omitempty"`
}

type cancelResponse struct {
	Cancelled int64 `json:"cancelled"`
}

// CancelExecution cooperatively cancels a running execution. Cascading to
// sub-workflow executions is not implemented (see
// Orchestrator.Cancel's doc comment); req.Cascade is accepted but
// currently has no effect beyond being recorded in the log line.
func (h *ExecutionHandler) CancelExecution(c echo.Context) error {
	executionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution id")
	}

	var req cancelRequest
	_ = c.Bind(&req)

	h.c.Components.Logger.Info("cancel execution requested", "execution_id", executionID, "reason", req.Reason, "cascade", req.Cascade)

	if err := h.c.Orchestrator.Cancel(c.Request().Context(), executionID); err != nil {
		h.c.Components.Logger.Error("cancel execution failed", "execution_id", executionID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to cancel execution")
	}

	return c.JSON(http.StatusOK, cancelResponse{Cancelled: 1})
}
