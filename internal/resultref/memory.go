package resultref

import (
	"context"
	"sync"

	"github.com/noetl/noetl/internal/model"
)

// MemoryBackend is an in-process Backend, useful for tests and for
// scopes that only need to outlive a single step (spec's "memory" store).
// It holds no durability guarantee across process restarts.
type MemoryBackend struct {
	mu    sync.Mutex
	refs  map[string]*model.ResultRef
	blobs map[string][]byte
}

// NewMemoryBackend builds an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{refs: make(map[string]*model.ResultRef), blobs: make(map[string][]byte)}
}

// Write implements Backend.
func (m *MemoryBackend) Write(_ context.Context, ref *model.ResultRef, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[ref.RefID] = ref
	m.blobs[ref.RefID] = append([]byte(nil), payload...)
	return nil
}

// Read implements Backend.
func (m *MemoryBackend) Read(_ context.Context, refID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.blobs[refID]
	if !ok {
		return nil, ErrNotFound
	}
	return payload, nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, refID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refs, refID)
	delete(m.blobs, refID)
	return nil
}

// DeleteByScope implements Backend.
func (m *MemoryBackend) DeleteByScope(_ context.Context, scope model.ResultRefScope, executionID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, ref := range m.refs {
		if ref.Scope == scope && ref.ExecutionID == executionID {
			delete(m.refs, id)
			delete(m.blobs, id)
			n++
		}
	}
	return n, nil
}
