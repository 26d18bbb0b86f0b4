// Command server runs the control plane: the REST API, event store,
// queue and orchestrator control loop in one process. Workers run
// separately (cmd/worker) and talk to this process's database directly.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/noetl/noetl/common/bootstrap"
	commonserver "github.com/noetl/noetl/common/server"
	"github.com/noetl/noetl/internal/api"
	"github.com/noetl/noetl/internal/eventstore"
	"github.com/noetl/noetl/internal/keychain"
	"github.com/noetl/noetl/internal/orchestrator"
	"github.com/noetl/noetl/internal/queue"
	"github.com/noetl/noetl/internal/resultref"
	"github.com/noetl/noetl/internal/scope"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "noetl-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap server: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	events := eventstore.New(components.DB, components.Logger).WithCache(components.Redis)
	q := queue.New(components.DB, components.Logger, queue.Config{
		LeaseDuration:  components.Config.Queue.DefaultLeaseDuration,
		MaxAttempts:    components.Config.Queue.MaxAttempts,
		RetryBaseDelay: components.Config.Queue.RetryBaseDelay,
	})
	eng, err := scope.New()
	if err != nil {
		components.Logger.Error("failed to build expression engine", "error", err)
		os.Exit(1)
	}

	cipher, err := keychain.NewCipher(components.Config.Keychain.EncryptionKeyHex)
	if err != nil {
		components.Logger.Error("failed to init keychain cipher", "error", err)
		os.Exit(1)
	}
	renewAhead := time.Duration(components.Config.Keychain.RenewAheadSeconds) * time.Second
	keychainStore := keychain.New(components.DB, cipher, components.Logger, renewAhead)

	resultStore := resultref.NewStore(components.Config.ResultRef.Store, map[string]resultref.Backend{
		"memory":   resultref.NewMemoryBackend(),
		"postgres": resultref.NewPostgresBackend(components.DB),
	})

	catalog := api.NewFileCatalog()
	orch := orchestrator.New(components.DB, events, q, eng, catalog, components.Logger)

	rateLimiter, limiterErr := buildRateLimiter(components)
	if limiterErr != nil {
		components.Logger.Warn("rate limiting disabled", "error", limiterErr)
	}

	container := &api.Container{
		Components:   components,
		Orchestrator: orch,
		Events:       events,
		Queue:        q,
		Keychain:     keychainStore,
		ResultRef:    resultStore,
		Catalog:      catalog,
		RateLimiter:  rateLimiter,
		CatalogLimit: catalogLimitFromConfig(),
		GlobalLimit:  globalLimitFromConfig(),
	}

	go runBackgroundSweeps(ctx, components, q, keychainStore)

	router := api.NewRouter(container)
	srv := commonserver.New("noetl-server", components.Config.Service.Port, router, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// runBackgroundSweeps reclaims expired queue leases and sweeps expired
// keychain rows on a fixed interval, the housekeeping spec §4.2/§4.6
// require of the owning process.
func runBackgroundSweeps(ctx context.Context, components *bootstrap.Components, q *queue.Queue, ks *keychain.Store) {
	reapInterval := components.Config.Queue.ReapInterval
	if reapInterval <= 0 {
		reapInterval = 15 * time.Second
	}
	sweepInterval := components.Config.Keychain.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	reapTicker := time.NewTicker(reapInterval)
	sweepTicker := time.NewTicker(sweepInterval)
	defer reapTicker.Stop()
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reapTicker.C:
			if n, err := q.Reap(ctx); err != nil {
				components.Logger.Error("queue reap failed", "error", err)
			} else if n > 0 {
				components.Logger.Info("reaped expired leases", "count", n)
			}
		case <-sweepTicker.C:
			if n, err := ks.Sweep(ctx); err != nil {
				components.Logger.Error("keychain sweep failed", "error", err)
			} else if n > 0 {
				components.Logger.Info("swept expired keychain entries", "count", n)
			}
		}
	}
}
