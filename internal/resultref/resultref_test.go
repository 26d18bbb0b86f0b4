package resultref

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/model"
)

func TestShouldExternalizeRespectsThreshold(t *testing.T) {
	spec := &model.ResultSpec{InlineMaxBytes: 10}
	assert.False(t, ShouldExternalize([]byte("short"), spec))
	assert.True(t, ShouldExternalize([]byte("this is way too long"), spec))
	assert.False(t, ShouldExternalize([]byte("anything"), nil))
}

func TestExtractSelectsFields(t *testing.T) {
	payload := []byte(`{"items":[{"id":1},{"id":2}],"total":2}`)
	extracted := Extract(payload, []string{"total", "items.0.id"})
	assert.Equal(t, float64(2), extracted["total"])
	assert.Equal(t, float64(1), extracted["items.0.id"])
}

func TestExtractNilWithoutSelectors(t *testing.T) {
	assert.Nil(t, Extract([]byte(`{"a":1}`), nil))
}

func TestComposeManifestAppend(t *testing.T) {
	m := ComposeManifest(nil, model.ManifestAppend, model.ManifestPart{Index: 0, SizeBytes: 10, WrittenAt: time.Now()})
	m = ComposeManifest(m, model.ManifestAppend, model.ManifestPart{Index: 1, SizeBytes: 20, WrittenAt: time.Now()})
	require.Len(t, m.Parts, 2)
	assert.Equal(t, 0, m.Parts[0].Index)
	assert.Equal(t, 1, m.Parts[1].Index)
}

func TestComposeManifestReplace(t *testing.T) {
	m := ComposeManifest(nil, model.ManifestAppend, model.ManifestPart{Index: 0})
	m = ComposeManifest(m, model.ManifestReplace, model.ManifestPart{Index: 5})
	require.Len(t, m.Parts, 1)
	assert.Equal(t, 5, m.Parts[0].Index)
}

func TestComposeManifestMergeReplacesSameIndex(t *testing.T) {
	m := &model.Manifest{Mode: model.ManifestMerge, Parts: []model.ManifestPart{{Index: 0, SizeBytes: 1}, {Index: 1, SizeBytes: 2}}}
	m = ComposeManifest(m, model.ManifestMerge, model.ManifestPart{Index: 0, SizeBytes: 99})
	require.Len(t, m.Parts, 2)
	for _, p := range m.Parts {
		if p.Index == 0 {
			assert.EqualValues(t, 99, p.SizeBytes)
		}
	}
}

func TestStoreExternalizeAndResolveMemoryRoundTrip(t *testing.T) {
	store := NewStore("memory", map[string]Backend{"memory": NewMemoryBackend()})
	ref, err := store.Externalize(context.Background(), 1, 100, []byte(`{"ok":true}`), &model.ResultSpec{Store: "memory", Scope: "execution"})
	require.NoError(t, err)
	assert.Equal(t, "memory", ref.Store)

	resolved, err := store.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(resolved.Payload))
}

func TestStoreExternalizeExtractsSelectFields(t *testing.T) {
	store := NewStore("memory", map[string]Backend{"memory": NewMemoryBackend()})
	ref, err := store.Externalize(context.Background(), 1, 100, []byte(`{"total":2,"status":"ok"}`), &model.ResultSpec{
		Store:  "memory",
		Scope:  "execution",
		Select: []string{"total", "status"},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(2), ref.Extracted["total"])
	assert.Equal(t, "ok", ref.Extracted["status"])
}

func TestStoreFinalizeScopeSkipsPermanent(t *testing.T) {
	store := NewStore("memory", map[string]Backend{"memory": NewMemoryBackend()})
	n, err := store.FinalizeScope(context.Background(), model.ResultScopePermanent, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestStoreFinalizeScopeDeletesMatching(t *testing.T) {
	backend := NewMemoryBackend()
	store := NewStore("memory", map[string]Backend{"memory": backend})
	_, err := store.Externalize(context.Background(), 7, 1, []byte(`{}`), &model.ResultSpec{Store: "memory", Scope: "execution"})
	require.NoError(t, err)

	n, err := store.FinalizeScope(context.Background(), model.ResultScopeExecution, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
