package config

import "time"

// Defaults returns the built-in configuration, matching the teacher's
// DefaultQueueConfig pattern of one function returning a fully populated
// struct that env/YAML layers are merged over.
func Defaults() *Config {
	return &Config{
		StorePath: "./matrixfabric.db",

		Hub: HubConfig{
			Port:               8081,
			Host:               "localhost",
			PIN:                "",
			TokenExpiry:        2 * time.Hour,
			ReconnectGrace:     30 * time.Second,
			HeartbeatInterval:  10 * time.Second,
			IdleTimeout:        30 * time.Second,
			ReplaceDrainDelay:  2 * time.Second,
			StaleSweepInterval: 60 * time.Second,
			InboundRateLimitPS: 20,
			InboundRateBurst:   40,
		},

		Daemon: DaemonConfig{
			Port:             37888,
			MaxRetries:       10,
			BaseBackoff:      10 * time.Second,
			MaxBackoff:       5 * time.Minute,
			RetrySweepPeriod: 5 * time.Second,
			ReconnectBase:    1 * time.Second,
			ReconnectMax:     60 * time.Second,
			SSEHeartbeat:     15 * time.Second,
		},

		Indexer: IndexerConfig{
			Port:                37889,
			Provider:            "stub",
			Model:               "stub-hash-v1",
			BatchSize:           32,
			FlushInterval:       1 * time.Second,
			LearningsCollection: "learnings",
		},

		Retrieval: RetrievalConfig{
			VectorWeight:  0.36,
			KeywordWeight: 0.64,
			CacheTTL:      5 * time.Minute,
			CacheCapacity: 100,
			MMRLambda:     0.7,
			ExpansionMax:  4,
		},

		TaskEngine: TaskEngineConfig{
			BaseBackoff:      10 * time.Second,
			MaxBackoff:       5 * time.Minute,
			MaxRetries:       5,
			SweepInterval:    5 * time.Second,
			AgentTaskTimeout: 2 * time.Minute,
			MissionTimeout:   5 * time.Minute,
		},
	}
}
