package config

import (
	"crypto/rand"
	"os"
	"time"
)

const pinAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// randomPIN generates a 6-character human-typeable registration PIN, used
// when MATRIX_HUB_PIN is unset (spec.md §6: "default random").
func randomPIN() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "000000"
	}
	out := make([]byte, 6)
	for i, b := range buf {
		out[i] = pinAlphabet[int(b)%len(pinAlphabet)]
	}
	return string(out)
}

// ApplyEnv overlays environment variables onto cfg, matching spec.md §6's
// exact variable names. Unknown env vars are ignored. Applied last, after
// defaults and the YAML overlay, so env always wins — the teacher's
// cmd/tarsy/main.go getEnv precedence.
func ApplyEnv(cfg *Config, workspaceDir string) {
	cfg.Hub.Port = getEnvInt("MATRIX_HUB_PORT", cfg.Hub.Port)
	cfg.Hub.Host = getEnv("MATRIX_HUB_HOST", cfg.Hub.Host)
	if v, ok := os.LookupEnv("MATRIX_HUB_PIN"); ok {
		cfg.Hub.PIN = v
	} else if cfg.Hub.PIN == "" {
		cfg.Hub.PIN = randomPIN()
	}
	cfg.Hub.Secret = getEnv("MATRIX_HUB_SECRET", cfg.Hub.Secret)
	if hours := getEnvInt("MATRIX_TOKEN_EXPIRY_HOURS", 0); hours > 0 {
		cfg.Hub.TokenExpiry = time.Duration(hours) * time.Hour
	}
	cfg.Hub.TLSCertPath = getEnv("MATRIX_HUB_TLS_CERT", cfg.Hub.TLSCertPath)
	cfg.Hub.TLSKeyPath = getEnv("MATRIX_HUB_TLS_KEY", cfg.Hub.TLSKeyPath)
	cfg.Hub.TLSKeyPassphrase = getEnv("MATRIX_HUB_TLS_PASSPHRASE", cfg.Hub.TLSKeyPassphrase)

	cfg.Daemon.Port = getEnvInt("MATRIX_DAEMON_PORT", cfg.Daemon.Port)
	cfg.Indexer.Port = getEnvInt("INDEXER_DAEMON_PORT", cfg.Indexer.Port)

	cfg.Retrieval.VectorWeight = getEnvFloat("VECTOR_WEIGHT", cfg.Retrieval.VectorWeight)
	cfg.Retrieval.KeywordWeight = getEnvFloat("KEYWORD_WEIGHT", cfg.Retrieval.KeywordWeight)
	cfg.Indexer.Provider = getEnv("EMBEDDING_PROVIDER", cfg.Indexer.Provider)
	cfg.Indexer.Model = getEnv("EMBEDDING_MODEL", cfg.Indexer.Model)
	cfg.Indexer.BatchSize = getEnvInt("EMBEDDING_BATCH_SIZE", cfg.Indexer.BatchSize)

	cfg.AgentID = getEnv("MEMORY_AGENT_ID", cfg.AgentID)
	cfg.ProjectPath = getEnv("MEMORY_PROJECT_PATH", orWorkspace(cfg.ProjectPath, workspaceDir))
}

func orWorkspace(v, workspaceDir string) string {
	if v != "" {
		return v
	}
	return workspaceDir
}

