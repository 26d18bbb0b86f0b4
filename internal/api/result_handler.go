package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/resultref"
)

// ResultHandler serves GET /api/result/resolve (spec §6).
type ResultHandler struct {
	c *Container
}

// NewResultHandler constructs a ResultHandler.
func NewResultHandler(c *Container) *ResultHandler {
	return &ResultHandler{c: c}
}

// Resolve fetches the payload an externalized result points to. The
// `ref` query parameter carries the opaque noetl://result/... pointer
// (model.ResultRef.RefID); `store` names the backend it was written to
// (model.ResultRef.Store), since that is not encoded in the ref_id
// string itself and Store.Resolve needs both.
func (h *ResultHandler) Resolve(c echo.Context) error {
	refID := c.QueryParam("ref")
	store := c.QueryParam("store")
	if refID == "" || store == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ref and store query parameters are required")
	}

	ref := &model.ResultRef{RefID: refID, Store: store}
	resolved, err := h.c.ResultRef.Resolve(c.Request().Context(), ref)
	if errors.Is(err, resultref.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "result reference not found")
	}
	if err != nil {
		h.c.Components.Logger.Error("result resolve failed", "ref_id", refID, "store", store, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve result")
	}

	return c.JSON(http.StatusOK, resolved)
}
