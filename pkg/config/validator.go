package config

import (
	"fmt"
	"strings"
)

// Validate checks cross-field invariants that defaults/env/YAML layering
// cannot enforce on their own.
func Validate(cfg *Config) error {
	if cfg.Hub.Port <= 0 || cfg.Hub.Port > 65535 {
		return fmt.Errorf("hub.port out of range: %d", cfg.Hub.Port)
	}
	if cfg.Daemon.Port <= 0 || cfg.Daemon.Port > 65535 {
		return fmt.Errorf("daemon.port out of range: %d", cfg.Daemon.Port)
	}
	if cfg.Indexer.Port <= 0 || cfg.Indexer.Port > 65535 {
		return fmt.Errorf("indexer.port out of range: %d", cfg.Indexer.Port)
	}
	if (cfg.Hub.TLSCertPath == "") != (cfg.Hub.TLSKeyPath == "") {
		return fmt.Errorf("hub TLS requires both a cert and a key path")
	}
	if cfg.Retrieval.VectorWeight < 0 || cfg.Retrieval.KeywordWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative")
	}
	if cfg.Retrieval.VectorWeight+cfg.Retrieval.KeywordWeight == 0 {
		return fmt.Errorf("retrieval weights cannot both be zero")
	}
	if cfg.Retrieval.MMRLambda < 0 || cfg.Retrieval.MMRLambda > 1 {
		return fmt.Errorf("retrieval.mmr_lambda must be in [0,1]: %v", cfg.Retrieval.MMRLambda)
	}
	if strings.TrimSpace(cfg.StorePath) == "" {
		return fmt.Errorf("store_path cannot be empty")
	}
	return nil
}

// IsPINDisabled reports whether PIN-gated registration is turned off.
func (c HubConfig) IsPINDisabled() bool {
	return strings.EqualFold(c.PIN, "disabled")
}
