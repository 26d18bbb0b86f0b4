// Command worker runs a pool of worker-runtime goroutines that lease
// step-runs from the queue, execute their pipelines, and report outcomes
// back through the orchestrator's control loop. It is horizontally
// scalable: run as many worker processes against the same database as
// needed, each pointed at the same playbook directory as the API process
// so catalog_id resolution agrees across all of them.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noetl/noetl/common/bootstrap"
	"github.com/noetl/noetl/internal/api"
	"github.com/noetl/noetl/internal/eventstore"
	"github.com/noetl/noetl/internal/keychain"
	"github.com/noetl/noetl/internal/orchestrator"
	"github.com/noetl/noetl/internal/queue"
	"github.com/noetl/noetl/internal/resultref"
	"github.com/noetl/noetl/internal/scope"
	"github.com/noetl/noetl/internal/tools"
	"github.com/noetl/noetl/internal/workerruntime"
)

func main() {
	ctx := context.Background()

	components, err := bootstrap.Setup(ctx, "noetl-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to bootstrap worker: %v\n", err)
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
	if dir := os.Getenv("NOETL_PLAYBOOK_DIR"); dir != "" {
		n, err := catalog.RegisterDir(dir)
		if err != nil {
			components.Logger.Error("failed to register playbook directory", "dir", dir, "error", err)
			os.Exit(1)
		}
		components.Logger.Info("registered playbooks", "dir", dir, "count", n)
	}

	orch := orchestrator.New(components.DB, events, q, eng, catalog, components.Logger)

	toolRegistry := tools.NewRegistry()
	toolRegistry.Register("http", tools.NewHTTPAdapter(30*time.Second))

	concurrency := envInt("NOETL_WORKER_CONCURRENCY", 4)
	components.Logger.Info("starting worker pool", "concurrency", concurrency)

	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		slot := i
		group.Go(func() error {
			runner := workerruntime.New(
				workerruntime.Config{WorkerID: fmt.Sprintf("%s-%d", components.Config.Service.Name, slot)},
				q, events, orch, toolRegistry, keychainStore, resultStore, eng, components.Logger,
			)
			return runner.Start(gctx)
		})
	}

	if err := group.Wait(); err != nil {
		components.Logger.Error("worker pool stopped with error", "error", err)
		os.Exit(1)
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
