package orchestrator

import (
	"context"

	"github.com/noetl/noetl/internal/model"
)

// CatalogEntry pairs a resolved playbook with the catalog_id that
// identifies its version, the unit catalog storage would otherwise manage
// (catalog storage itself is out of scope; see spec §1 Non-goals).
type CatalogEntry struct {
	CatalogID int64
	Playbook  *model.Playbook
}

// CatalogResolver loads a playbook by catalog_id. Production wiring backs
// this with whatever catalog storage the deployment uses; tests back it
// with an in-memory map.
type CatalogResolver interface {
	Resolve(ctx context.Context, catalogID int64) (*CatalogEntry, error)
}

// StaticCatalog is a CatalogResolver over a fixed, in-memory set of
// entries, useful for tests and single-playbook deployments.
type StaticCatalog struct {
	entries map[int64]*CatalogEntry
}

// NewStaticCatalog builds a StaticCatalog from the given entries.
func NewStaticCatalog(entries ...*CatalogEntry) *StaticCatalog {
	m := make(map[int64]*CatalogEntry, len(entries))
	for _, e := range entries {
		m[e.CatalogID] = e
	}
	return &StaticCatalog{entries: m}
}

// Resolve implements CatalogResolver.
func (c *StaticCatalog) Resolve(_ context.Context, catalogID int64) (*CatalogEntry, error) {
	e, ok := c.entries[catalogID]
	if !ok {
		return nil, ErrCatalogNotFound
	}
	return e, nil
}

// NodeIndex assigns stable, deterministic node_id values to a playbook's
// steps (node_id = catalog_id*100000 + step index) and provides lookups in
// both directions. Keeping the scheme deterministic means the orchestrator
// never needs a separate node-registration round trip.
type NodeIndex struct {
	catalogID int64
	byName    map[string]int64
	byID      map[int64]*model.Step
}

// BuildNodeIndex derives a NodeIndex from a catalog entry's playbook.
func BuildNodeIndex(entry *CatalogEntry) *NodeIndex {
	idx := &NodeIndex{
		catalogID: entry.CatalogID,
		byName:    make(map[string]int64, len(entry.Playbook.Workflow)),
		byID:      make(map[int64]*model.Step, len(entry.Playbook.Workflow)),
	}
	for i := range entry.Playbook.Workflow {
		step := &entry.Playbook.Workflow[i]
		id := entry.CatalogID*100000 + int64(i)
		idx.byName[step.Step] = id
		idx.byID[id] = step
	}
	return idx
}

// NodeID returns the node_id assigned to a step name.
func (n *NodeIndex) NodeID(stepName string) (int64, bool) {
	id, ok := n.byName[stepName]
	return id, ok
}

// Step returns the step a node_id was assigned to.
func (n *NodeIndex) Step(nodeID int64) (*model.Step, bool) {
	s, ok := n.byID[nodeID]
	return s, ok
}
