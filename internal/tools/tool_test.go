package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/model"
)

type stubAdapter struct{}

func (stubAdapter) Execute(ctx context.Context, config map[string]any, auth Auth, tc TaskContext) (*model.Outcome, error) {
	return &model.Outcome{Status: model.OutcomeOK}, nil
}

func TestRegistryResolveKnownKind(t *testing.T) {
	r := NewRegistry()
	r.Register("http", stubAdapter{})

	a, err := r.Resolve("http")
	require.NoError(t, err)
	outcome, err := a.Execute(context.Background(), nil, Auth{}, TaskContext{})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeOK, outcome.Status)
}

func TestRegistryResolveUnknownKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("postgres")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestHTTPAdapterMissingURL(t *testing.T) {
	a := NewHTTPAdapter(0)
	outcome, err := a.Execute(context.Background(), map[string]any{}, Auth{}, TaskContext{Attempt: 1})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeError, outcome.Status)
	assert.Equal(t, model.ErrValidation, outcome.Error.Kind)
	assert.False(t, outcome.Error.Retryable)
}

func TestHTTPErrorKindClassification(t *testing.T) {
	assert.Equal(t, model.ErrAuth, httpErrorKind(401))
	assert.Equal(t, model.ErrNotFound, httpErrorKind(404))
	assert.Equal(t, model.ErrRateLimit, httpErrorKind(429))
	assert.Equal(t, model.ErrInternal, httpErrorKind(503))
	assert.Equal(t, model.ErrValidation, httpErrorKind(400))
}

func TestAuthHeadersBearer(t *testing.T) {
	h := authHeaders(Auth{CredentialType: "bearer", Fields: map[string]string{"token": "secret"}})
	assert.Equal(t, "Bearer secret", h["Authorization"])

	assert.Nil(t, authHeaders(Auth{CredentialType: "basic"}))
}
