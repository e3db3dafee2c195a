// matrixd is the Matrix Client/Daemon process: durable outbound delivery
// from a single workspace to the hub, task/mission sweeping, and a local
// HTTP/SSE surface (spec §4.4, §4.6).
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jarkius/agent-orchestra/pkg/boundary"
	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/matrixclient"
	"github.com/jarkius/agent-orchestra/pkg/retrieval"
	"github.com/jarkius/agent-orchestra/pkg/store"
	"github.com/jarkius/agent-orchestra/pkg/taskengine"
	"github.com/jarkius/agent-orchestra/pkg/vectoradapter"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	workspaceDir := flag.String("workspace-dir",
		getEnv("MEMORY_WORKSPACE_DIR", "."),
		"Path to the workspace directory (holds .env, matrixfabric.yaml, the store file)")
	flag.Parse()

	cfg, err := config.Load(*workspaceDir)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatalf("failed to open store %s: %v", cfg.StorePath, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing store", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	taskEngine := taskengine.New(st, cfg.TaskEngine)
	if err := taskEngine.Start(ctx); err != nil {
		log.Fatalf("failed to start task engine: %v", err)
	}
	defer taskEngine.Stop()

	if err := retrieval.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		slog.Warn("prometheus metrics registration failed", "error", err)
	}
	vector := vectoradapter.New(boundary.NewStubEmbedder(), cfg.Indexer.BatchSize, cfg.Indexer.FlushInterval)
	defer vector.Close()
	retrievalEngine := retrieval.NewEngine(st, vector,
		retrieval.Weights{Vector: cfg.Retrieval.VectorWeight, Keyword: cfg.Retrieval.KeywordWeight},
		cfg.Retrieval.CacheTTL, cfg.Retrieval.CacheCapacity, cfg.Retrieval.MMRLambda, cfg.Retrieval.ExpansionMax)

	daemon := matrixclient.New(st, cfg.Daemon).WithEngine(retrievalEngine)

	slog.Info("matrixd starting",
		"matrix_id", cfg.Daemon.MatrixID,
		"hub_url", cfg.Daemon.HubURL,
		"http_port", cfg.Daemon.Port,
	)

	httpAddr := ":" + strconv.Itoa(cfg.Daemon.Port)
	if err := daemon.Run(ctx, httpAddr); err != nil {
		log.Fatalf("daemon exited with error: %v", err)
	}

	slog.Info("matrixd shut down cleanly")
}
