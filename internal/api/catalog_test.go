package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlaybookYAML = `
metadata:
  name: test-playbook
  path: test.yaml
workflow:
  - step: start
  - step: end
`

func writeTestPlaybook(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "playbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPlaybookYAML), 0o644))
	return path
}

func TestFileCatalogRegisterPathAssignsStableID(t *testing.T) {
	cat := NewFileCatalog()
	path := writeTestPlaybook(t)

	id1, err := cat.RegisterPath(path)
	require.NoError(t, err)
	id2, err := cat.RegisterPath(path)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestFileCatalogRegisterPathDistinctPathsGetDistinctIDs(t *testing.T) {
	cat := NewFileCatalog()
	pathA := writeTestPlaybook(t)
	pathB := writeTestPlaybook(t)

	idA, err := cat.RegisterPath(pathA)
	require.NoError(t, err)
	idB, err := cat.RegisterPath(pathB)
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
}

func TestFileCatalogResolveReturnsRegisteredEntry(t *testing.T) {
	cat := NewFileCatalog()
	path := writeTestPlaybook(t)
	id, err := cat.RegisterPath(path)
	require.NoError(t, err)

	entry, err := cat.Resolve(nil, id)
	require.NoError(t, err)
	assert.Equal(t, id, entry.CatalogID)
	assert.Equal(t, "test-playbook", entry.Playbook.Metadata.Name)
}

func TestFileCatalogResolveUnknownIDFails(t *testing.T) {
	cat := NewFileCatalog()
	_, err := cat.Resolve(nil, 999)
	assert.Error(t, err)
}

func TestFileCatalogRegisterPathMissingFileFails(t *testing.T) {
	cat := NewFileCatalog()
	_, err := cat.RegisterPath("/nonexistent/path/does-not-exist.yaml")
	assert.Error(t, err)
}
