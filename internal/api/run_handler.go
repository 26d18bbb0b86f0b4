package api

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/noetl/noetl/internal/model"
)

// RunHandler serves POST /api/run/playbook (spec §6).
type RunHandler struct {
	c *Container
}

// NewRunHandler constructs a RunHandler.
func NewRunHandler(c *Container) *RunHandler {
	return &RunHandler{c: c}
}

type runPlaybookRequest struct {
	Path    string          `json:"path"`
	Payload json.RawMessage `json:"payload"`
}

type runPlaybookResponse struct {
	ExecutionID int64        `json:"execution_id"`
	Status      model.Status `json:"status"`
}

// RunPlaybook loads the playbook at req.Path (via the in-process
// FileCatalog, since catalog storage and packaging are out of scope),
// starts a new execution against it, and returns the allocated
// execution_id.
func (h *RunHandler) RunPlaybook(c echo.Context) error {
	var req runPlaybookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}

	catalogID, err := h.c.Catalog.RegisterPath(req.Path)
	if err != nil {
		h.c.Components.Logger.Warn("run playbook: resolve path failed", "path", req.Path, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "failed to load playbook: "+err.Error())
	}

	workload := req.Payload
	if len(workload) == 0 {
		workload = json.RawMessage(`{}`)
	}

	executionID, err := h.c.Orchestrator.Start(c.Request().Context(), catalogID, workload)
	if err != nil {
		h.c.Components.Logger.Error("run playbook: start failed", "path", req.Path, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start execution")
	}

	return c.JSON(http.StatusCreated, runPlaybookResponse{ExecutionID: executionID, Status: model.StatusRunning})
}
