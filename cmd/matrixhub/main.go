// matrixhub is the Matrix Hub WebSocket server: a single always-on
// rendezvous point brokering presence and messages between connected
// matrices (spec §4.5).
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/matrixhub"
	"github.com/jarkius/agent-orchestra/pkg/store"
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

	if cfg.Hub.Secret == "" {
		log.Fatal("MATRIX_HUB_SECRET must be set")
	}

	if err := matrixhub.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		slog.Warn("prometheus metrics registration failed", "error", err)
	}

	server := matrixhub.NewServer(st, cfg.Hub)

	addr := cfg.Hub.Host + ":" + strconv.Itoa(cfg.Hub.Port)
	slog.Info("matrixhub starting", "addr", addr, "pin_gated", !cfg.Hub.IsPINDisabled(), "pin", cfg.Hub.PIN)

	if err := server.Run(addr); err != nil {
		log.Fatalf("hub server exited with error: %v", err)
	}
}
