package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearMatrixFabricEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"MATRIX_HUB_PORT", "MATRIX_HUB_HOST", "MATRIX_HUB_PIN", "MATRIX_HUB_SECRET",
		"MATRIX_TOKEN_EXPIRY_HOURS", "MATRIX_HUB_TLS_CERT", "MATRIX_HUB_TLS_KEY",
		"MATRIX_HUB_TLS_PASSPHRASE", "MATRIX_DAEMON_PORT", "INDEXER_DAEMON_PORT",
		"VECTOR_WEIGHT", "KEYWORD_WEIGHT", "EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"EMBEDDING_BATCH_SIZE", "MEMORY_AGENT_ID", "MEMORY_PROJECT_PATH",
	}
	for _, v := range vars {
		require.NoError(t, os.Unsetenv(v))
	}
}

func TestLoadAppliesDefaultsWithNoOverlayOrEnv(t *testing.T) {
	clearMatrixFabricEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 8081, cfg.Hub.Port)
	require.Equal(t, 0.36, cfg.Retrieval.VectorWeight)
	require.NotEmpty(t, cfg.Hub.PIN, "an unset PIN must be filled with a random one")
}

func TestLoadYAMLOverlayWinsOverDefaults(t *testing.T) {
	clearMatrixFabricEnv(t)
	dir := t.TempDir()
	overlay := "hub:\n  port: 9999\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "matrixfabric.yaml"), []byte(overlay), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Hub.Port)
}

func TestLoadEnvWinsOverYAMLOverlay(t *testing.T) {
	clearMatrixFabricEnv(t)
	dir := t.TempDir()
	overlay := "hub:\n  port: 9999\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "matrixfabric.yaml"), []byte(overlay), 0o644))
	t.Setenv("MATRIX_HUB_PORT", "7000")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Hub.Port, "env must win over the YAML overlay")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	clearMatrixFabricEnv(t)
	dir := t.TempDir()
	t.Setenv("MATRIX_HUB_PORT", "0")

	_, err := Load(dir)
	require.Error(t, err)
}

func TestApplyEnvPreservesExplicitPINOverRandom(t *testing.T) {
	clearMatrixFabricEnv(t)
	t.Setenv("MATRIX_HUB_PIN", "disabled")

	cfg := Defaults()
	ApplyEnv(cfg, t.TempDir())
	require.Equal(t, "disabled", cfg.Hub.PIN)
	require.True(t, cfg.Hub.IsPINDisabled())
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := Defaults()
	cfg.Hub.Port = 70000
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsZeroRetrievalWeights(t *testing.T) {
	cfg := Defaults()
	cfg.Retrieval.VectorWeight = 0
	cfg.Retrieval.KeywordWeight = 0
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsMismatchedTLSPaths(t *testing.T) {
	cfg := Defaults()
	cfg.Hub.TLSCertPath = "/cert.pem"
	require.Error(t, Validate(cfg))
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}
