package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/model"
)

func TestEvalBool(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	bundle := &model.ScopeBundle{
		Workload: map[string]any{"env": "prod"},
		Outcome:  map[string]any{"status": "ok"},
	}

	ok, err := e.EvalBool(`workload.env == "prod" && outcome.status == "ok"`, bundle)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvalBool(`workload.env == "staging"`, bundle)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalBoolTypeMismatch(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	_, err = e.EvalBool(`1 + 1`, &model.ScopeBundle{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestEvalUnresolved(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	_, err = e.EvalBool(`this is not valid cel (((`, &model.ScopeBundle{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTemplateUnresolved)
}

func TestRenderValueWholeExpression(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	bundle := &model.ScopeBundle{Iter: map[string]any{"id": int64(42)}}
	rendered, err := e.RenderValue(map[string]any{"id": "{{ iter.id }}"}, bundle)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rendered.(map[string]any)["id"])
}

func TestRenderValueInterpolated(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	bundle := &model.ScopeBundle{Workload: map[string]any{"base_url": "https://api.example.com"}}
	rendered, err := e.RenderValue("{{ workload.base_url }}/widgets", bundle)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/widgets", rendered)
}

func TestRenderValuePassthrough(t *testing.T) {
	e, err := New()
	require.NoError(t, err)

	rendered, err := e.RenderValue("no templates here", &model.ScopeBundle{})
	require.NoError(t, err)
	assert.Equal(t, "no templates here", rendered)
}
