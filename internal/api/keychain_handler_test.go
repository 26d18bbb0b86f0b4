package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/model"
)

func newTestContext(target string, paramNames, paramValues []string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames(paramNames...)
	c.SetParamValues(paramValues...)
	return c
}

func TestScopeParamsDefaultsToLocalScope(t *testing.T) {
	c := newTestContext("/api/keychain/1/db_password", []string{"catalog_id", "name"}, []string{"1", "db_password"})

	catalogID, name, scope, executionID, err := scopeParams(c)
	require.NoError(t, err)
	assert.Equal(t, int64(1), catalogID)
	assert.Equal(t, "db_password", name)
	assert.Equal(t, model.ScopeLocal, scope)
	assert.Equal(t, int64(0), executionID)
}

func TestScopeParamsReadsExecutionIDAndScopeType(t *testing.T) {
	c := newTestContext("/api/keychain/1/db_password?execution_id=42&scope_type=shared", []string{"catalog_id", "name"}, []string{"1", "db_password"})

	_, _, scope, executionID, err := scopeParams(c)
	require.NoError(t, err)
	assert.Equal(t, model.ScopeShared, scope)
	assert.Equal(t, int64(42), executionID)
}

func TestScopeParamsRejectsInvalidCatalogID(t *testing.T) {
	c := newTestContext("/api/keychain/notanumber/db_password", []string{"catalog_id", "name"}, []string{"notanumber", "db_password"})

	_, _, _, _, err := scopeParams(c)
	assert.Error(t, err)
}

func TestScopeParamsRejectsMissingName(t *testing.T) {
	c := newTestContext("/api/keychain/1/", []string{"catalog_id", "name"}, []string{"1", ""})

	_, _, _, _, err := scopeParams(c)
	assert.Error(t, err)
}
