// Package config loads environment-driven configuration for the hub,
// daemon, and retrieval engine processes, following spec.md §6.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// HubConfig configures the Matrix Hub WebSocket server (spec §4.5, §6).
type HubConfig struct {
	Port                int           `yaml:"port"`
	Host                string        `yaml:"host"`
	PIN                 string        `yaml:"pin"` // "disabled" turns off PIN gating
	Secret              string        `yaml:"secret"`
	TokenExpiry         time.Duration `yaml:"token_expiry"`
	ReconnectGrace      time.Duration `yaml:"reconnect_grace"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	ReplaceDrainDelay   time.Duration `yaml:"replace_drain_delay"`
	TLSCertPath         string        `yaml:"tls_cert_path"`
	TLSKeyPath          string        `yaml:"tls_key_path"`
	TLSKeyPassphrase    string        `yaml:"tls_key_passphrase"`
	StaleSweepInterval  time.Duration `yaml:"stale_sweep_interval"`
	InboundRateLimitPS  float64       `yaml:"inbound_rate_limit_per_sec"`
	InboundRateBurst    int           `yaml:"inbound_rate_burst"`
}

// DaemonConfig configures the Matrix Client/Daemon (spec §4.6, §6).
type DaemonConfig struct {
	Port             int           `yaml:"port"`
	MatrixID         string        `yaml:"matrix_id"`
	DisplayName      string        `yaml:"display_name"`
	HubURL           string        `yaml:"hub_url"`
	PIN              string        `yaml:"pin"`
	MaxRetries       int           `yaml:"max_retries"`
	BaseBackoff      time.Duration `yaml:"base_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	RetrySweepPeriod time.Duration `yaml:"retry_sweep_period"`
	ReconnectBase    time.Duration `yaml:"reconnect_base"`
	ReconnectMax     time.Duration `yaml:"reconnect_max"`
	SSEHeartbeat     time.Duration `yaml:"sse_heartbeat"`
}

// IndexerConfig configures the vector-adapter batching daemon (spec §4.2, §6).
type IndexerConfig struct {
	Port              int           `yaml:"port"`
	Provider          string        `yaml:"embedding_provider"`
	Model             string        `yaml:"embedding_model"`
	BatchSize         int           `yaml:"embedding_batch_size"`
	FlushInterval     time.Duration `yaml:"flush_interval"`
	LearningsCollection string      `yaml:"learnings_collection"`
}

// RetrievalConfig configures the hybrid search engine (spec §4.3, §6).
type RetrievalConfig struct {
	VectorWeight  float64       `yaml:"vector_weight"`
	KeywordWeight float64       `yaml:"keyword_weight"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	CacheCapacity int           `yaml:"cache_capacity"`
	MMRLambda     float64       `yaml:"mmr_lambda"`
	ExpansionMax  int           `yaml:"expansion_max"`
}

// TaskEngineConfig configures retry/backoff and sweep cadence for the
// Task & Mission state machine (spec §4.4).
type TaskEngineConfig struct {
	BaseBackoff       time.Duration `yaml:"base_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	MaxRetries        int           `yaml:"max_retries"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	AgentTaskTimeout  time.Duration `yaml:"agent_task_timeout"`
	MissionTimeout    time.Duration `yaml:"mission_timeout"`
}

// Config is the merged, validated configuration for a single workspace.
type Config struct {
	AgentID     string `yaml:"agent_id"`
	ProjectPath string `yaml:"project_path"`
	StorePath   string `yaml:"store_path"`

	Hub        HubConfig        `yaml:"hub"`
	Daemon     DaemonConfig     `yaml:"daemon"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	TaskEngine TaskEngineConfig `yaml:"task_engine"`
}

// getEnv mirrors the teacher's cmd/tarsy/main.go getEnv helper.
func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// Load builds configuration from defaults, an optional YAML overlay file
// found at <workspaceDir>/matrixfabric.yaml, and environment variables, in
// that order of increasing precedence — matching the teacher's
// defaults → YAML → env-expand layering in pkg/config/loader.go.
func Load(workspaceDir string) (*Config, error) {
	envPath := filepath.Join(workspaceDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("no .env file loaded", "path", envPath, "error", err)
	}

	cfg := Defaults()

	overlayPath := filepath.Join(workspaceDir, "matrixfabric.yaml")
	if data, err := os.ReadFile(overlayPath); err == nil {
		var overlay Config
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			return nil, fmt.Errorf("parse %s: %w", overlayPath, err)
		}
		if err := MergeInto(cfg, &overlay); err != nil {
			return nil, fmt.Errorf("merge overlay: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", overlayPath, err)
	}

	ApplyEnv(cfg, workspaceDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
