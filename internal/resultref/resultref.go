// Package resultref is the externalized-result store a worker's result
// handler writes to when a task's output is too large to keep inline in
// its event (spec §4.7). A ResultRef envelope (a ref_id of the form
// noetl://result/<execution_id>/<node_id>/<suffix> plus the store name)
// replaces the payload in the event log; any scope holder resolves it back
// through this package.
package resultref

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/noetl/noetl/internal/model"
)

// ErrNotFound is returned when a ref_id has no backing row (already
// finalized/deleted, or never written).
var ErrNotFound = errors.New("resultref: not found")

// Backend is a ResultRef storage backend (spec lists
// nats_kv|nats_object|gcs|postgres|memory; this module implements
// memory and postgres, the two addressable without an external broker).
type Backend interface {
	Write(ctx context.Context, ref *model.ResultRef, payload []byte) error
	Read(ctx context.Context, refID string) ([]byte, error)
	Delete(ctx context.Context, refID string) error
	DeleteByScope(ctx context.Context, scope model.ResultRefScope, executionID int64) (int64, error)
}

// Store decides inline-vs-externalize per task, and extracts `select`
// fields into the `extracted.*` scope the orchestrator's templates see
// without ever materializing the full payload there.
type Store struct {
	backends map[string]Backend
	fallback string
}

// NewStore builds a Store over the given named backends ("memory",
// "postgres", ...); fallback names the backend used when a task's
// spec.result.store is unset.
func NewStore(fallback string, backends map[string]Backend) *Store {
	return &Store{backends: backends, fallback: fallback}
}

func (s *Store) backend(name string) (Backend, error) {
	if name == "" {
		name = s.fallback
	}
	b, ok := s.backends[name]
	if !ok {
		return nil, fmt.Errorf("resultref: unknown store %q", name)
	}
	return b, nil
}

// ShouldExternalize reports whether a result payload exceeds a task's
// inline_max_bytes threshold and must be written through a backend rather
// than kept in the event's Result column.
func ShouldExternalize(payload []byte, spec *model.ResultSpec) bool {
	if spec == nil || spec.InlineMaxBytes <= 0 {
		return false
	}
	return len(payload) > spec.InlineMaxBytes
}

// Externalize writes payload to the backend named by spec.Store (or the
// store's fallback), applies spec.Select extraction, and returns the
// ResultRef envelope to leave in the event's Result field in place of the
// payload.
func (s *Store) Externalize(ctx context.Context, executionID, nodeID int64, payload []byte, spec *model.ResultSpec) (*model.ResultRef, error) {
	storeName := s.fallback
	scope := model.ResultScopeExecution
	var selectors []string
	if spec != nil {
		if spec.Store != "" {
			storeName = spec.Store
		}
		if spec.Scope != "" {
			scope = model.ResultRefScope(spec.Scope)
		}
		selectors = spec.Select
	}
	b, err := s.backend(storeName)
	if err != nil {
		return nil, err
	}

	ref := &model.ResultRef{
		RefID:       newRefID(executionID, nodeID),
		Store:       storeName,
		Scope:       scope,
		ExecutionID: executionID,
		NodeID:      nodeID,
		SizeBytes:   int64(len(payload)),
		ContentType: "application/json",
	}
	if err := b.Write(ctx, ref, payload); err != nil {
		return nil, err
	}
	ref.Extracted = Extract(payload, selectors)
	return ref, nil
}

// Extract pulls spec.Select fields out of a raw JSON payload into the
// `extracted.*` map a router or admission `when` can reference without
// resolving the full ResultRef (spec §4.4 "TempRefs/ResultRefs expose
// extracted.* fields for routing without full payload materialization").
func Extract(payload []byte, selectors []string) map[string]any {
	if len(selectors) == 0 {
		return nil
	}
	extracted := make(map[string]any, len(selectors))
	for _, path := range selectors {
		res := gjson.GetBytes(payload, path)
		if res.Exists() {
			extracted[path] = res.Value()
		}
	}
	return extracted
}

// Resolve fetches the payload a ResultRef points to.
func (s *Store) Resolve(ctx context.Context, ref *model.ResultRef) (*model.Resolved, error) {
	b, err := s.backend(ref.Store)
	if err != nil {
		return nil, err
	}
	payload, err := b.Read(ctx, ref.RefID)
	if err != nil {
		return nil, err
	}
	return &model.Resolved{RefID: ref.RefID, Payload: payload}, nil
}

// ComposeManifest folds a new part into an existing manifest per its merge
// mode (spec §4.7: append|concat|merge|replace), used when a paginated
// tool result writes successive parts to the same ref.
func ComposeManifest(existing *model.Manifest, mode model.ManifestMergeMode, part model.ManifestPart) *model.Manifest {
	if existing == nil {
		return &model.Manifest{Mode: mode, Parts: []model.ManifestPart{part}}
	}
	switch mode {
	case model.ManifestReplace:
		return &model.Manifest{Mode: mode, Parts: []model.ManifestPart{part}}
	case model.ManifestMerge:
		parts := make([]model.ManifestPart, 0, len(existing.Parts)+1)
		for _, p := range existing.Parts {
			if p.Index != part.Index {
				parts = append(parts, p)
			}
		}
		parts = append(parts, part)
		return &model.Manifest{Mode: mode, Parts: parts}
	default: // append, concat
		parts := append(append([]model.ManifestPart{}, existing.Parts...), part)
		return &model.Manifest{Mode: mode, Parts: parts}
	}
}

// FinalizeScope deletes every ref whose Scope matches scope for executionID
// across every configured backend and returns how many were deleted;
// "permanent" refs are never deleted. Nothing in this repository calls it,
// so refs are not removed automatically at step or execution boundaries.
func (s *Store) FinalizeScope(ctx context.Context, scope model.ResultRefScope, executionID int64) (int64, error) {
	if scope == model.ResultScopePermanent {
		return 0, nil
	}
	var total int64
	for name, b := range s.backends {
		n, err := b.DeleteByScope(ctx, scope, executionID)
		if err != nil {
			return total, fmt.Errorf("resultref: finalize scope %s on backend %q: %w", scope, name, err)
		}
		total += n
	}
	return total, nil
}

func newRefID(executionID, nodeID int64) string {
	var suffix [8]byte
	_, _ = rand.Read(suffix[:])
	return fmt.Sprintf("noetl://result/%d/%d/%s", executionID, nodeID, hex.EncodeToString(suffix[:]))
}
