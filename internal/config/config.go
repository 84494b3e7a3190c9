package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Model      ModelConfig      `toml:"model"`
	Generation GenerationConfig `toml:"generation"`
	Store      StoreConfig      `toml:"store"`
	Retry      RetryConfig      `toml:"retry"`
	Observer   ObserverConfig   `toml:"observer"`
}

type ModelConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type GenerationConfig struct {
	MaxTurns        int      `toml:"max_turns"`
	Temperature     *float64 `toml:"temperature"`
	TopP            *float64 `toml:"top_p"`
	MaxOutputTokens int      `toml:"max_output_tokens"`
}

type StoreConfig struct {
	Backend     string `toml:"backend"` // memory, sqlite, postgres
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	RPM         int `toml:"rpm"`
	TPM         int `toml:"tpm"`
}

type ObserverConfig struct {
	Enabled     bool                       `toml:"enabled"`
	Endpoint    string                     `toml:"endpoint"`
	ServiceName string                     `toml:"service_name"`
	Pricing     map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Model:      ModelConfig{Provider: "xai", Model: "grok-4-fast-non-reasoning"},
		Generation: GenerationConfig{MaxTurns: 5},
		Store:      StoreConfig{Backend: "sqlite", Path: "strand.db"},
		Retry:      RetryConfig{MaxAttempts: 3},
		Observer:   ObserverConfig{ServiceName: "strand"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "strand.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("STRAND_PROVIDER"); v != "" {
		cfg.Model.Provider = v
	}
	if v := os.Getenv("STRAND_MODEL"); v != "" {
		cfg.Model.Model = v
	}
	if v := os.Getenv("STRAND_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("STRAND_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("STRAND_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("STRAND_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("STRAND_POSTGRES_URL"); v != "" {
		cfg.Store.PostgresURL = v
	}
	if v := os.Getenv("STRAND_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Generation.MaxTurns = n
		}
	}
	if v := os.Getenv("STRAND_OTLP_ENDPOINT"); v != "" {
		cfg.Observer.Endpoint = v
	}
	if os.Getenv("STRAND_OBSERVER_ENABLED") == "true" || os.Getenv("STRAND_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Store.Backend == "postgres" && cfg.Store.PostgresURL == "" {
		cfg.Store.Backend = "sqlite"
	}

	return cfg
}
