package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermem/evermem/internal/config"
)

// clearEnv unsets every EVERMEM_ variable a test might inherit so the
// defaults layer is actually what gets exercised.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"EVERMEM_CONFIG_FILE", "EVERMEM_STORAGE_ENGINE", "EVERMEM_DATA_PATH",
		"EVERMEM_POSTGRES_DSN", "EVERMEM_LLM_PROVIDER", "EVERMEM_OLLAMA_URL",
		"EVERMEM_OLLAMA_MODEL", "EVERMEM_OPENAI_API_KEY", "EVERMEM_OPENAI_MODEL",
		"EVERMEM_ANTHROPIC_API_KEY", "EVERMEM_ANTHROPIC_MODEL",
		"EVERMEM_SUMMARIZER_TIMEOUT", "EVERMEM_SUMMARIZER_RPM", "EVERMEM_SUMMARIZER_BURST",
		"EVERMEM_HALF_LIFE_DAYS", "EVERMEM_EVICTION_FLOOR",
		"EVERMEM_CONSOLIDATION_THRESHOLD", "EVERMEM_BATCH_SIZE",
		"EVERMEM_MIN_SESSION_MESSAGES", "EVERMEM_MAX_STORED_MESSAGES",
		"EVERMEM_SWEEP_INTERVAL",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.OllamaURL)
	assert.Equal(t, 60*time.Second, cfg.Summarizer.Timeout)
	assert.Equal(t, 30, cfg.Summarizer.RequestsPerMinute)
	assert.Equal(t, 14.0, cfg.Memory.HalfLifeDays)
	assert.Equal(t, 1.0, cfg.Memory.EvictionFloor)
	assert.Equal(t, 10, cfg.Memory.ConsolidationThreshold)
	assert.Equal(t, 10, cfg.Memory.BatchSize)
	assert.Equal(t, 2, cfg.Memory.MinSessionMessages)
	assert.Equal(t, 6*time.Hour, cfg.Sweeper.Interval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("EVERMEM_STORAGE_ENGINE", "postgres")
	t.Setenv("EVERMEM_POSTGRES_DSN", "postgres://localhost/evermem")
	t.Setenv("EVERMEM_LLM_PROVIDER", "anthropic")
	t.Setenv("EVERMEM_HALF_LIFE_DAYS", "7.5")
	t.Setenv("EVERMEM_CONSOLIDATION_THRESHOLD", "20")
	t.Setenv("EVERMEM_BATCH_SIZE", "20")
	t.Setenv("EVERMEM_SUMMARIZER_TIMEOUT", "90s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "postgres://localhost/evermem", cfg.Storage.PostgresDSN)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 7.5, cfg.Memory.HalfLifeDays)
	assert.Equal(t, 20, cfg.Memory.ConsolidationThreshold)
	assert.Equal(t, 90*time.Second, cfg.Summarizer.Timeout)
}

func TestLoad_UnparseableEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("EVERMEM_HALF_LIFE_DAYS", "not-a-number")
	t.Setenv("EVERMEM_BATCH_SIZE", "eleven")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 14.0, cfg.Memory.HalfLifeDays)
	assert.Equal(t, 10, cfg.Memory.BatchSize)
}

func TestLoadFile_YAMLOverlay(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "evermem.yaml")
	body := `
storage:
  engine: postgres
  postgres_dsn: postgres://db.internal/evermem
memory:
  half_life_days: 21
  eviction_floor: 0.5
sweeper:
  interval: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, 21.0, cfg.Memory.HalfLifeDays)
	assert.Equal(t, 0.5, cfg.Memory.EvictionFloor)
	assert.Equal(t, time.Hour, cfg.Sweeper.Interval)
	// Sections the file omits keep their defaults.
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 10, cfg.Memory.ConsolidationThreshold)
}

func TestLoadFile_EnvWinsOverFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "evermem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memory:\n  half_life_days: 21\n"), 0o600))

	t.Setenv("EVERMEM_HALF_LIFE_DAYS", "3")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, cfg.Memory.HalfLifeDays)
}

func TestLoadFile_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown engine", "EVERMEM_STORAGE_ENGINE", "etcd"},
		{"unknown provider", "EVERMEM_LLM_PROVIDER", "bard"},
		{"negative floor", "EVERMEM_EVICTION_FLOOR", "-1"},
		{"batch above threshold", "EVERMEM_BATCH_SIZE", "11"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("EVERMEM_STORAGE_ENGINE", "postgres")
	_, err := config.Load()
	assert.Error(t, err)
}
