// Package config provides configuration management for evermem.
// Settings come from three layers, lowest precedence first: built-in
// defaults, an optional YAML file, and environment variables with the
// EVERMEM_ prefix. Environment variables always win, so a deployment
// can ship a config file and still override single knobs per process.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the evermem service.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	LLM        LLMConfig        `yaml:"llm"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Memory     MemoryConfig     `yaml:"memory"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Engine is the storage engine: sqlite or postgres (default: sqlite).
	Engine string `yaml:"engine"`
	// DataPath is the directory holding the sqlite database (default: ./data).
	DataPath string `yaml:"data_path"`
	// PostgresDSN is the connection string used when Engine is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LLMConfig selects and configures the summarization provider.
type LLMConfig struct {
	Provider        string `yaml:"provider"`         // ollama, openai, anthropic (default: ollama)
	OllamaURL       string `yaml:"ollama_url"`       // default: http://localhost:11434
	OllamaModel     string `yaml:"ollama_model"`     // default: qwen2.5:7b
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIModel     string `yaml:"openai_model"`     // default: gpt-4o-mini
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"` // default: claude-haiku-4-5-20251001
}

// SummarizerConfig bounds how the engine calls the provider.
type SummarizerConfig struct {
	// Timeout caps a single summarization call (default: 60s).
	Timeout time.Duration `yaml:"timeout"`
	// RequestsPerMinute is the sustained provider call rate (default: 30).
	RequestsPerMinute int `yaml:"requests_per_minute"`
	// Burst is the rate limiter burst size (default: 5).
	Burst int `yaml:"burst"`
}

// MemoryConfig tunes the memory engine.
type MemoryConfig struct {
	HalfLifeDays           float64 `yaml:"half_life_days"`          // default: 14
	EvictionFloor          float64 `yaml:"eviction_floor"`          // default: 1.0
	ConsolidationThreshold int     `yaml:"consolidation_threshold"` // default: 10
	BatchSize              int     `yaml:"batch_size"`              // default: 10
	MinSessionMessages     int     `yaml:"min_session_messages"`    // default: 2
	MaxStoredMessages      int     `yaml:"max_stored_messages"`     // default: 10
}

// SweeperConfig configures the decay sweeper.
type SweeperConfig struct {
	// Interval between sweeps when running as a daemon (default: 6h).
	Interval time.Duration `yaml:"interval"`
}

// Load builds a Config from defaults, then the YAML file named by
// EVERMEM_CONFIG_FILE (if set), then EVERMEM_* environment variables.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("EVERMEM_CONFIG_FILE"))
}

// LoadFile is Load with an explicit config file path. An empty path
// skips the file layer; a path that does not exist is an error.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return errors.New("config: postgres engine requires a DSN")
	}
	switch c.LLM.Provider {
	case "ollama", "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	if c.Memory.HalfLifeDays <= 0 {
		return errors.New("config: half_life_days must be positive")
	}
	if c.Memory.EvictionFloor < 0 {
		return errors.New("config: eviction_floor must not be negative")
	}
	if c.Memory.ConsolidationThreshold < 1 {
		return errors.New("config: consolidation_threshold must be at least 1")
	}
	if c.Memory.BatchSize < 1 || c.Memory.BatchSize > c.Memory.ConsolidationThreshold {
		return errors.New("config: batch_size must be in [1, consolidation_threshold]")
	}
	if c.Summarizer.Timeout <= 0 {
		return errors.New("config: summarizer timeout must be positive")
	}
	if c.Sweeper.Interval <= 0 {
		return errors.New("config: sweeper interval must be positive")
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "qwen2.5:7b",
			OpenAIModel:    "gpt-4o-mini",
			AnthropicModel: "claude-haiku-4-5-20251001",
		},
		Summarizer: SummarizerConfig{
			Timeout:           60 * time.Second,
			RequestsPerMinute: 30,
			Burst:             5,
		},
		Memory: MemoryConfig{
			HalfLifeDays:           14,
			EvictionFloor:          1.0,
			ConsolidationThreshold: 10,
			BatchSize:              10,
			MinSessionMessages:     2,
			MaxStoredMessages:      10,
		},
		Sweeper: SweeperConfig{
			Interval: 6 * time.Hour,
		},
	}
}

// applyEnv overrides cfg fields from EVERMEM_* environment variables.
// Only variables that are set and parseable take effect.
func applyEnv(cfg *Config) {
	setString(&cfg.Storage.Engine, "EVERMEM_STORAGE_ENGINE")
	setString(&cfg.Storage.DataPath, "EVERMEM_DATA_PATH")
	setString(&cfg.Storage.PostgresDSN, "EVERMEM_POSTGRES_DSN")

	setString(&cfg.LLM.Provider, "EVERMEM_LLM_PROVIDER")
	setString(&cfg.LLM.OllamaURL, "EVERMEM_OLLAMA_URL")
	setString(&cfg.LLM.OllamaModel, "EVERMEM_OLLAMA_MODEL")
	setString(&cfg.LLM.OpenAIAPIKey, "EVERMEM_OPENAI_API_KEY")
	setString(&cfg.LLM.OpenAIModel, "EVERMEM_OPENAI_MODEL")
	setString(&cfg.LLM.AnthropicAPIKey, "EVERMEM_ANTHROPIC_API_KEY")
	setString(&cfg.LLM.AnthropicModel, "EVERMEM_ANTHROPIC_MODEL")

	setDuration(&cfg.Summarizer.Timeout, "EVERMEM_SUMMARIZER_TIMEOUT")
	setInt(&cfg.Summarizer.RequestsPerMinute, "EVERMEM_SUMMARIZER_RPM")
	setInt(&cfg.Summarizer.Burst, "EVERMEM_SUMMARIZER_BURST")

	setFloat(&cfg.Memory.HalfLifeDays, "EVERMEM_HALF_LIFE_DAYS")
	setFloat(&cfg.Memory.EvictionFloor, "EVERMEM_EVICTION_FLOOR")
	setInt(&cfg.Memory.ConsolidationThreshold, "EVERMEM_CONSOLIDATION_THRESHOLD")
	setInt(&cfg.Memory.BatchSize, "EVERMEM_BATCH_SIZE")
	setInt(&cfg.Memory.MinSessionMessages, "EVERMEM_MIN_SESSION_MESSAGES")
	setInt(&cfg.Memory.MaxStoredMessages, "EVERMEM_MAX_STORED_MESSAGES")

	setDuration(&cfg.Sweeper.Interval, "EVERMEM_SWEEP_INTERVAL")
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			*dst = parsed
		}
	}
}
