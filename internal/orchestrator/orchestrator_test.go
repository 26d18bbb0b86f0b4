package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/model"
	"github.com/noetl/noetl/internal/scope"
)

func strptr(s string) *string { return &s }

func TestAdmitDefaultsToAllowWithNoRules(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	allowed, err := Admit(eng, model.AdmitPolicy{}, &model.ScopeBundle{})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAdmitFirstMatchingRuleWins(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	policy := model.AdmitPolicy{Rules: []model.AdmitRule{
		{When: strptr("workload.region == 'eu'"), Allow: false},
		{When: nil, Allow: true},
	}}
	bundle := &model.ScopeBundle{Workload: map[string]any{"region": "eu"}}

	allowed, err := Admit(eng, policy, bundle)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAdmitElseBranch(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	policy := model.AdmitPolicy{Rules: []model.AdmitRule{
		{When: strptr("workload.region == 'eu'"), Allow: false},
		{When: nil, Allow: true},
	}}
	bundle := &model.ScopeBundle{Workload: map[string]any{"region": "us"}}

	allowed, err := Admit(eng, policy, bundle)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRouteExclusiveStopsAtFirstMatch(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	next := &model.NextSpec{
		Spec: model.RouterModeSpec{Mode: model.RouterExclusive},
		Arcs: []model.Arc{
			{Step: "a", When: strptr("ctx.ok == true")},
			{Step: "b", When: strptr("ctx.ok == true")},
			{Step: "c", When: nil},
		},
	}
	bundle := &model.ScopeBundle{Ctx: map[string]any{"ok": true}}

	matched, err := Route(eng, next, bundle)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "a", matched[0].Arc.Step)
}

func TestRouteInclusiveFansOut(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	next := &model.NextSpec{
		Spec: model.RouterModeSpec{Mode: model.RouterInclusive},
		Arcs: []model.Arc{
			{Step: "a", When: strptr("ctx.ok == true")},
			{Step: "b", When: strptr("ctx.ok == true")},
			{Step: "c", When: strptr("ctx.ok == false")},
		},
	}
	bundle := &model.ScopeBundle{Ctx: map[string]any{"ok": true}}

	matched, err := Route(eng, next, bundle)
	require.NoError(t, err)
	require.Len(t, matched, 2)
	assert.Equal(t, "a", matched[0].Arc.Step)
	assert.Equal(t, "b", matched[1].Arc.Step)
}

func TestRouteNilNextReturnsNoMatches(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	matched, err := Route(eng, nil, &model.ScopeBundle{})
	require.NoError(t, err)
	assert.Nil(t, matched)
}

func TestExpandLoopBindsIterator(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	loop := &model.LoopSpec{In: "workload.items", Iterator: "item"}
	bundle := &model.ScopeBundle{Workload: map[string]any{"items": []any{"a", "b", "c"}}}

	iterations, err := ExpandLoop(eng, loop, bundle)
	require.NoError(t, err)
	require.Len(t, iterations, 3)
	assert.Equal(t, "a", iterations[0].Iter["item"])
	assert.Equal(t, 2, iterations[2].Index)
}

func TestExpandLoopRejectsNonList(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	loop := &model.LoopSpec{In: "workload.items", Iterator: "item"}
	bundle := &model.ScopeBundle{Workload: map[string]any{"items": "not a list"}}

	_, err = ExpandLoop(eng, loop, bundle)
	assert.Error(t, err)
}

func TestInFlightCapSequentialIsOne(t *testing.T) {
	loop := &model.LoopSpec{Spec: model.LoopModeSpec{Mode: model.LoopSequential, MaxInFlight: 5}}
	assert.Equal(t, 1, InFlightCap(loop))
}

func TestInFlightCapParallelUsesMaxInFlight(t *testing.T) {
	loop := &model.LoopSpec{Spec: model.LoopModeSpec{Mode: model.LoopParallel, MaxInFlight: 4}}
	assert.Equal(t, 4, InFlightCap(loop))
}

func TestInFlightCapParallelDefaultsToOne(t *testing.T) {
	loop := &model.LoopSpec{Spec: model.LoopModeSpec{Mode: model.LoopParallel}}
	assert.Equal(t, 1, InFlightCap(loop))
}

func TestRenderPipelineResolvesTemplates(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	tasks := []model.Task{
		{
			Label: "fetch",
			Kind:  "http",
			Config: map[string]interface{}{
				"url": "{{ workload.base_url }}/items/{{ iter.id }}",
			},
			Spec: model.TaskSpec{Timeout: 30},
		},
	}
	bundle := &model.ScopeBundle{
		Workload: map[string]any{"base_url": "https://api.example.com"},
		Iter:     map[string]any{"id": 42},
	}

	rendered, err := RenderPipeline(eng, tasks, bundle)
	require.NoError(t, err)
	require.Len(t, rendered, 1)
	assert.Equal(t, "https://api.example.com/items/42", rendered[0].Config["url"])
	assert.Equal(t, 30, rendered[0].TimeoutSeconds)
}

func TestRenderPipelineFailsOnUnresolvedExpression(t *testing.T) {
	eng, err := scope.New()
	require.NoError(t, err)

	tasks := []model.Task{
		{Label: "fetch", Kind: "http", Config: map[string]interface{}{"url": "{{ workload.missing.field }}"}},
	}
	_, err = RenderPipeline(eng, tasks, &model.ScopeBundle{})
	assert.Error(t, err)
}

func TestBuildNodeIndexIsDeterministic(t *testing.T) {
	pb := &model.Playbook{Workflow: []model.Step{
		{Step: "start"},
		{Step: "process"},
		{Step: "end"},
	}}
	entry := &CatalogEntry{CatalogID: 7, Playbook: pb}

	idx := BuildNodeIndex(entry)

	startID, ok := idx.NodeID("start")
	require.True(t, ok)
	assert.Equal(t, int64(700000), startID)

	step, ok := idx.Step(700001)
	require.True(t, ok)
	assert.Equal(t, "process", step.Step)

	_, ok = idx.NodeID("nonexistent")
	assert.False(t, ok)
}

func TestStaticCatalogResolve(t *testing.T) {
	pb := &model.Playbook{Workflow: []model.Step{{Step: "start"}}}
	entry := &CatalogEntry{CatalogID: 3, Playbook: pb}
	cat := NewStaticCatalog(entry)

	resolved, err := cat.Resolve(nil, 3)
	require.NoError(t, err)
	assert.Same(t, entry, resolved)

	_, err = cat.Resolve(nil, 99)
	assert.ErrorIs(t, err, ErrCatalogNotFound)
}
