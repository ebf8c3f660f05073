// Package config loads the engine configuration from YAML with environment
// overrides for deployment-sensitive values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	Safety  SafetyConfig  `yaml:"safety"`
	Storage StorageConfig `yaml:"storage"`
	Session SessionConfig `yaml:"session"`
	Round   RoundConfig   `yaml:"round"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP/websocket listener.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metricsAddr"`
}

// ModelConfig selects and tunes the model provider.
type ModelConfig struct {
	Provider     string  `yaml:"provider"` // "openai", "anthropic" or "mock"
	Name         string  `yaml:"name"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int64   `yaml:"maxTokens"`
	APIKey       string  `yaml:"apiKey"`
	Instructions string  `yaml:"instructions"`
}

// SafetyConfig extends the builtin screening patterns.
type SafetyConfig struct {
	ExtraDenyPatterns []string `yaml:"extraDenyPatterns"`
}

// StorageConfig points at the SQLite database.
type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

// SessionConfig tunes the session registry.
type SessionConfig struct {
	IdleTimeout time.Duration `yaml:"idleTimeout"`
	QueueSize   int           `yaml:"queueSize"`
}

// RoundConfig tunes the orchestrator's round limits.
type RoundConfig struct {
	HistoryCap        int           `yaml:"historyCap"`
	MaxToolIterations int           `yaml:"maxToolIterations"`
	Budget            time.Duration `yaml:"budget"`
	ModelTimeout      time.Duration `yaml:"modelTimeout"`
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // "json" or "text"
	Sanitize *bool  `yaml:"sanitize"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	sanitize := true
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsAddr: ":9090",
		},
		Model: ModelConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Storage: StorageConfig{
			DSN: "concierge.db",
		},
		Session: SessionConfig{
			IdleTimeout: 5 * time.Minute,
			QueueSize:   16,
		},
		Round: RoundConfig{
			HistoryCap:        20,
			MaxToolIterations: 4,
			Budget:            30 * time.Second,
			ModelTimeout:      15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Sanitize: &sanitize,
		},
	}
}

// Load reads the configuration at path, merged over defaults, then applies
// environment overrides. A missing file is not an error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides pulls deployment-sensitive values from the environment;
// secrets in particular should never live in the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CONCIERGE_ADDR")); v != "" {
		cfg.Server.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("CONCIERGE_MODEL_PROVIDER")); v != "" {
		cfg.Model.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("CONCIERGE_MODEL_API_KEY")); v != "" {
		cfg.Model.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("CONCIERGE_DB_DSN")); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("CONCIERGE_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("config: unknown model provider %q", c.Model.Provider)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr must not be empty")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn must not be empty")
	}
	if c.Round.MaxToolIterations < 1 {
		return fmt.Errorf("config: round.maxToolIterations must be at least 1")
	}
	if c.Round.Budget <= 0 || c.Round.ModelTimeout <= 0 {
		return fmt.Errorf("config: round budget and model timeout must be positive")
	}
	if c.Round.ModelTimeout > c.Round.Budget {
		return fmt.Errorf("config: round.modelTimeout must not exceed round.budget")
	}
	return nil
}

// SanitizeLogs reports whether log sanitization is enabled (default true).
func (c Config) SanitizeLogs() bool {
	if c.Logging.Sanitize == nil {
		return true
	}
	return *c.Logging.Sanitize
}
