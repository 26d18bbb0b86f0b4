// Package api is the REST surface over the control plane (spec §6): a
// thin Echo layer that decodes/validates requests and delegates to the
// orchestrator, event store, queue, keychain and result-ref packages. It
// holds no business logic of its own beyond request shaping.
package api

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/noetl/noetl/internal/orchestrator"
	"github.com/noetl/noetl/internal/playbook"
)

// FileCatalog resolves a playbook by reading it straight off the
// filesystem: a catalog_id is derived deterministically from a playbook's
// absolute path (an FNV-1a hash, masked to a positive int64), so every
// process pointed at the same playbook file computes the same id without
// any shared registry. Catalog storage and packaging are explicitly out
// of scope; this is just enough glue to let the orchestrator's
// CatalogResolver interface be satisfied, and to let an API process and a
// separately-running worker process agree on catalog_id for the same
// playbook without coordinating over the network.
type FileCatalog struct {
	mu      sync.RWMutex
	entries map[int64]*orchestrator.CatalogEntry
	paths   map[int64]string
}

// NewFileCatalog constructs an empty FileCatalog.
func NewFileCatalog() *FileCatalog {
	return &FileCatalog{
		entries: make(map[int64]*orchestrator.CatalogEntry),
		paths:   make(map[int64]string),
	}
}

// catalogIDForPath derives a stable catalog_id from an absolute path.
func catalogIDForPath(absPath string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(absPath))
	return int64(h.Sum64() &^ (1 << 63))
}

// RegisterPath loads and validates the playbook at path, computing its
// catalog_id from the path alone. Re-registering the same path is
// idempotent and always re-reads the file, so edits on disk take effect
// on the next run without a restart.
func (c *FileCatalog) RegisterPath(path string) (int64, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("catalog: resolve path %q: %w", path, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return 0, fmt.Errorf("catalog: read %q: %w", absPath, err)
	}
	pb, err := playbook.Load(data)
	if err != nil {
		return 0, fmt.Errorf("catalog: load %q: %w", absPath, err)
	}
	if err := playbook.Validate(pb); err != nil {
		return 0, fmt.Errorf("catalog: validate %q: %w", absPath, err)
	}

	id := catalogIDForPath(absPath)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[id] = absPath
	c.entries[id] = &orchestrator.CatalogEntry{CatalogID: id, Playbook: pb}
	return id, nil
}

// RegisterDir registers every .yaml/.yml file directly under dir, the
// convention a worker process uses at startup to pre-populate the same
// catalog_id space an API process serving the same playbook directory
// would compute, without either process telling the other anything.
func (c *FileCatalog) RegisterDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("catalog: read dir %q: %w", dir, err)
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		if _, err := c.RegisterPath(filepath.Join(dir, name)); err != nil {
			return count, fmt.Errorf("catalog: register %q: %w", name, err)
		}
		count++
	}
	return count, nil
}

// Resolve implements orchestrator.CatalogResolver. It only answers for a
// catalog_id this process has itself registered via RegisterPath or
// RegisterDir; a worker process must point at the same playbook
// directory as the API process at startup so both compute identical ids
// for identical paths.
func (c *FileCatalog) Resolve(_ context.Context, catalogID int64) (*orchestrator.CatalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[catalogID]
	if !ok {
		return nil, orchestrator.ErrCatalogNotFound
	}
	return e, nil
}
