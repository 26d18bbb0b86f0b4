package api

import (
	"github.com/noetl/noetl/common/bootstrap"
	"github.com/noetl/noetl/common/ratelimit"
	"github.com/noetl/noetl/internal/eventstore"
	"github.com/noetl/noetl/internal/keychain"
	"github.com/noetl/noetl/internal/orchestrator"
	"github.com/noetl/noetl/internal/queue"
	"github.com/noetl/noetl/internal/resultref"
)

// Container bundles the control-plane singletons every handler needs.
// Built once in cmd/server/main.go and threaded through route
// registration, mirroring the teacher's per-service container pattern
// without its CAS/IR-specific members.
type Container struct {
	Components *bootstrap.Components
	Orchestrator *orchestrator.Orchestrator
	Events       *eventstore.Store
	Queue        *queue.Queue
	Keychain     *keychain.Store
	ResultRef    *resultref.Store
	Catalog      *FileCatalog
	RateLimiter  *ratelimit.RateLimiter
	CatalogLimit ratelimit.CatalogConfig
	GlobalLimit  ratelimit.GlobalConfig
}
