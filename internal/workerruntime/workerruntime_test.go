package workerruntime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/scope"
)

func strptr(s string) *string { return &s }

func TestEvalPolicyDefaultsOkToContinue(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	then, err := evalPolicy(eng, nil, &model.Outcome{Status: model.OutcomeOK}, &model.ScopeBundle{})
	require.NoError(t, err)
	assert.Equal(t, model.ActionContinue, then.Do)
}

func TestEvalPolicyDefaultsErrorToFail(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	then, err := evalPolicy(eng, nil, &model.Outcome{Status: model.OutcomeError}, &model.ScopeBundle{})
	require.NoError(t, err)
	assert.Equal(t, model.ActionFail, then.Do)
}

func TestEvalPolicyFirstMatchingRuleWins(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	policy := &model.TaskPolicy{Rules: []model.TaskPolicyRule{
		{When: strptr("outcome.error.kind == 'rate_limit'"), Then: model.TaskPolicyThen{Do: model.ActionRetry, Attempts: 3, Backoff: model.BackoffExponential, Delay: 1}},
		{When: nil, Then: model.TaskPolicyThen{Do: model.ActionFail}},
	}}
	outcome := &model.Outcome{Status: model.OutcomeError, Error: &model.OutcomeError{Kind: model.ErrRateLimit, Retryable: true}}
	bundle := &model.ScopeBundle{Outcome: outcome.AsScope()}

	then, err := evalPolicy(eng, policy, outcome, bundle)
	require.NoError(t, err)
	assert.Equal(t, model.ActionRetry, then.Do)
	assert.Equal(t, 3, then.Attempts)
}

func TestEvalPolicyFallsThroughToElseRule(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	policy := &model.TaskPolicy{Rules: []model.TaskPolicyRule{
		{When: strptr("outcome.error.kind == 'rate_limit'"), Then: model.TaskPolicyThen{Do: model.ActionRetry}},
		{When: nil, Then: model.TaskPolicyThen{Do: model.ActionBreak}},
	}}
	outcome := &model.Outcome{Status: model.OutcomeError, Error: &model.OutcomeError{Kind: model.ErrValidation}}
	bundle := &model.ScopeBundle{Outcome: outcome.AsScope()}

	then, err := evalPolicy(eng, policy, outcome, bundle)
	require.NoError(t, err)
	assert.Equal(t, model.ActionBreak, then.Do)
}

func TestEvalPolicyFromResumesAfterExhaustedRetryRule(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	policy := &model.TaskPolicy{Rules: []model.TaskPolicyRule{
		{When: strptr("outcome.error.kind == 'rate_limit'"), Then: model.TaskPolicyThen{Do: model.ActionRetry, Attempts: 3}},
		{When: nil, Then: model.TaskPolicyThen{Do: model.ActionFail}},
	}}
	outcome := &model.Outcome{Status: model.OutcomeError, Error: &model.OutcomeError{Kind: model.ErrRateLimit, Retryable: true}}
	bundle := &model.ScopeBundle{Outcome: outcome.AsScope()}

	then, idx, err := evalPolicyFrom(eng, policy, outcome, bundle, 0)
	require.NoError(t, err)
	assert.Equal(t, model.ActionRetry, then.Do)
	assert.Equal(t, 0, idx)

	// Attempts exhausted against the matched retry rule: resuming from
	// idx+1 must fall through to the default rule instead of matching the
	// same retry rule again on the unchanged outcome.
	then, _, err = evalPolicyFrom(eng, policy, outcome, bundle, idx+1)
	require.NoError(t, err)
	assert.Equal(t, model.ActionFail, then.Do)
}

func TestEvalPolicyFromResumesToDefaultFailWithNoRemainingRules(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	policy := &model.TaskPolicy{Rules: []model.TaskPolicyRule{
		{When: nil, Then: model.TaskPolicyThen{Do: model.ActionRetry, Attempts: 1}},
	}}
	outcome := &model.Outcome{Status: model.OutcomeError, Error: &model.OutcomeError{Kind: model.ErrValidation}}
	bundle := &model.ScopeBundle{Outcome: outcome.AsScope()}

	then, idx, err := evalPolicyFrom(eng, policy, outcome, bundle, 0)
	require.NoError(t, err)
	assert.Equal(t, model.ActionRetry, then.Do)

	then, _, err = evalPolicyFrom(eng, policy, outcome, bundle, idx+1)
	require.NoError(t, err)
	assert.Equal(t, model.ActionFail, then.Do)
}

func TestBackoffDelaySecondsNone(t *testing.T) {
	assert.Equal(t, 2.0, backoffDelaySeconds(model.BackoffNone, 2, 5))
}

func TestBackoffDelaySecondsLinear(t *testing.T) {
	assert.Equal(t, 6.0, backoffDelaySeconds(model.BackoffLinear, 2, 3))
}

func TestBackoffDelaySecondsExponential(t *testing.T) {
	assert.Equal(t, 8.0, backoffDelaySeconds(model.BackoffExponential, 1, 4))
}

func TestBuildCtxPatchProducesAddOps(t *testing.T) {
	patch, err := buildCtxPatch(map[string]any{"stage": "done"})
	require.NoError(t, err)

	var ops []ctxPatchOp
	require.NoError(t, json.Unmarshal(patch, &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "add", ops[0].Op)
	assert.Equal(t, "/stage", ops[0].Path)
	assert.Equal(t, "done", ops[0].Value)
}

func TestCopyMapIsIndependentOfSource(t *testing.T) {
	src := map[string]any{"a": 1}
	dup := copyMap(src)
	dup["a"] = 2
	assert.Equal(t, 1, src["a"])
}
