// Package tools is the adapter contract a task's `kind` dispatches into:
// execute(config, auth, context) -> outcome (spec §4.8). Concrete adapter
// bodies for non-http kinds (postgres, duckdb, snowflake, python, ...) are
// out of scope; the registry and the http adapter are the reference
// implementation every other adapter plugs into the same way.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/noetl/noetl/internal/model"
)

// ErrUnknownKind is returned when a rendered task names a kind with no
// registered adapter.
var ErrUnknownKind = errors.New("tools: unknown kind")

// TaskContext carries the ambient values an adapter needs beyond its own
// config: the execution, node and attempt the call belongs to.
type TaskContext struct {
	ExecutionID int64
	NodeName    string
	Attempt     int
}

// Auth is the resolved credential material an adapter receives for one
// call. It is never logged and never echoed into outcome.result; the
// worker runtime emits an adapter's error message as returned, without
// scrubbing credential values from it.
type Auth struct {
	CredentialType string
	Fields         map[string]string
}

// Adapter executes one task kind. Implementations must be deterministic
// under identical inputs (modulo the external side effects they perform),
// populate error.kind/retryable on failure, and never return secret bytes
// in outcome.result (spec §4.8).
type Adapter interface {
	Execute(ctx context.Context, config map[string]any, auth Auth, tc TaskContext) (*model.Outcome, error)
}

// Registry resolves a rendered task's `kind` to its Adapter.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds kind to adapter, overwriting any prior binding.
func (r *Registry) Register(kind string, adapter Adapter) {
	r.adapters[kind] = adapter
}

// Resolve looks up the adapter bound to kind.
func (r *Registry) Resolve(kind string) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return a, nil
}
