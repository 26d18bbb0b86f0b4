package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/noetl/noetl/internal/keychain"
	"github.com/noetl/noetl/internal/model"
)

// KeychainHandler serves GET/POST /api/keychain/{catalog_id}/{name} (spec
// §6), the credential cache's HTTP surface.
type KeychainHandler struct {
	c *Container
}

// NewKeychainHandler constructs a KeychainHandler.
func NewKeychainHandler(c *Container) *KeychainHandler {
	return &KeychainHandler{c: c}
}

func scopeParams(c echo.Context) (catalogID int64, name string, scope model.KeychainScope, executionID int64, err error) {
	catalogID, err = strconv.ParseInt(c.Param("catalog_id"), 10, 64)
	if err != nil {
		return 0, "", "", 0, errors.New("invalid catalog_id")
	}
	name = c.Param("name")
	if name == "" {
		return 0, "", "", 0, errors.New("name is required")
	}
	scope = model.KeychainScope(c.QueryParam("scope_type"))
	if scope == "" {
		scope = model.ScopeLocal
	}
	if raw := c.QueryParam("execution_id"); raw != "" {
		executionID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, "", "", 0, errors.New("invalid execution_id")
		}
	}
	return catalogID, name, scope, executionID, nil
}

type keychainResponse struct {
	Status      string            `json:"status"`
	Fields      map[string]string `json:"fields,omitempty"`
	AutoRenew   bool              `json:"auto_renew"`
	RenewConfig map[string]any    `json:"renew_config,omitempty"`
}

// Get resolves a cached credential, decrypting it on a live hit. A miss
// returns 404; an expired-but-renewable entry returns 200 with
// status="expired" so the caller can drive the renewal itself.
func (h *KeychainHandler) Get(c echo.Context) error {
	catalogID, name, scope, executionID, err := scopeParams(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cacheKey := model.CacheKeyFor(name, catalogID, scope, executionID, executionID)
	res, err := h.c.Keychain.Resolve(c.Request().Context(), cacheKey)
	if errors.Is(err, keychain.ErrMiss) {
		return echo.NewHTTPError(http.StatusNotFound, "no cached credential for this key")
	}
	if err != nil {
		h.c.Components.Logger.Error("keychain get failed", "cache_key", cacheKey, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to resolve credential")
	}

	return c.JSON(http.StatusOK, keychainResponse{
		Status:      res.Status,
		Fields:      res.Fields,
		AutoRenew:   res.AutoRenew,
		RenewConfig: res.RenewConfig,
	})
}

type keychainUpsertRequest struct {
	Fields         map[string]string `json:"fields"`
	CredentialType string            `json:"credential_type"`
	CacheType      model.CacheType   `json:"cache_type"`
	TTLSeconds     int               `json:"ttl_seconds"`
	AutoRenew      bool              `json:"auto_renew"`
	RenewConfig    map[string]any    `json:"renew_config,omitempty"`
}

// Upsert seals and stores (or refreshes) a credential's cache row.
func (h *KeychainHandler) Upsert(c echo.Context) error {
	catalogID, name, scope, executionID, err := scopeParams(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var req keychainUpsertRequest
	if err := c.Bind(&req); err != nil || len(req.Fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "fields is required")
	}
	if req.CacheType == "" {
		req.CacheType = model.CacheSecret
	}
	if req.TTLSeconds <= 0 {
		req.TTLSeconds = 3600
	}

	cacheKey := model.CacheKeyFor(name, catalogID, scope, executionID, executionID)
	entry := &model.KeychainEntry{
		CacheKey:       cacheKey,
		Name:           name,
		CatalogID:      catalogID,
		Scope:          scope,
		CredentialType: req.CredentialType,
		CacheType:      req.CacheType,
		ExpiresAt:      time.Now().Add(time.Duration(req.TTLSeconds) * time.Second),
		AutoRenew:      req.AutoRenew,
		RenewConfig:    req.RenewConfig,
	}
	if executionID != 0 {
		entry.ExecutionID = &executionID
	}

	if err := h.c.Keychain.Upsert(c.Request().Context(), entry, req.Fields); err != nil {
		h.c.Components.Logger.Error("keychain upsert failed", "cache_key", cacheKey, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store credential")
	}

	return c.JSON(http.StatusOK, map[string]string{"cache_key": cacheKey})
}
