// indexerd is the vector-adapter batch-embedding daemon: it keeps the
// embedding index synced with the Store's learnings table and exposes a
// health/reindex HTTP surface (spec §4.2).
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/jarkius/agent-orchestra/pkg/boundary"
	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/indexerd"
	"github.com/jarkius/agent-orchestra/pkg/store"
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

	embedder := newEmbedder(cfg.Indexer)
	adapter := vectoradapter.New(embedder, cfg.Indexer.BatchSize, cfg.Indexer.FlushInterval)
	defer adapter.Close()

	daemon := indexerd.New(st, adapter, cfg.Indexer)

	if n, err := daemon.ReindexAll(context.Background()); err != nil {
		log.Fatalf("initial reindex failed: %v", err)
	} else {
		slog.Info("initial reindex complete", "learnings", n)
	}

	addr := ":" + strconv.Itoa(cfg.Indexer.Port)
	slog.Info("indexerd starting", "addr", addr, "provider", cfg.Indexer.Provider, "model", cfg.Indexer.Model)

	if err := daemon.Run(addr); err != nil {
		log.Fatalf("indexer server exited with error: %v", err)
	}
}

// newEmbedder selects the embedder implementation named by
// cfg.Provider — "stub" backs offline/dev use, anything else is treated
// as a real HTTP-backed provider endpoint (spec §1: the embedding model
// itself is out of scope, only the adapter wiring is ours to build).
func newEmbedder(cfg config.IndexerConfig) vectoradapter.Embedder {
	if cfg.Provider == "" || cfg.Provider == "stub" {
		return boundary.NewStubEmbedder()
	}
	return boundary.NewHTTPEmbedder(cfg.Provider, os.Getenv("EMBEDDING_API_KEY"))
}
