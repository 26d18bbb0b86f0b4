package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/noetl/noetl/internal/model"
)

// EventHandler serves POST /api/events (spec §6), the ingestion point for
// events a component outside the control plane needs to append directly
// rather than through Orchestrator.Advance — e.g. a human-in-the-loop
// callback resolving a step that was parked waiting on external input.
type EventHandler struct {
	c *Container
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(c *Container) *EventHandler {
	return &EventHandler{c: c}
}

type postEventResponse struct {
	EventID int64 `json:"event_id"`
}

// PostEvent validates and appends a caller-supplied event. Store.Emit does
// the actual type/status validation and idempotency-marker dedup; once
// appended, a step-boundary event may have unblocked previously-pending
// admissions elsewhere in the execution, so ReconsiderPending is run
// afterward the same way the worker runtime's ctx.patched path does.
func (h *EventHandler) PostEvent(c echo.Context) error {
	var ev model.Event
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event body")
	}
	if ev.ExecutionID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "execution_id is required")
	}

	eventID, err := h.c.Events.Emit(c.Request().Context(), &ev)
	if err != nil {
		h.c.Components.Logger.Warn("post event: emit failed", "execution_id", ev.ExecutionID, "event_type", ev.EventType, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "failed to record event: "+err.Error())
	}

	if err := h.c.Orchestrator.ReconsiderPending(c.Request().Context(), ev.ExecutionID); err != nil {
		h.c.Components.Logger.Error("post event: reconsider pending failed", "execution_id", ev.ExecutionID, "error", err)
	}

	return c.JSON(http.StatusCreated, postEventResponse{EventID: eventID})
}
