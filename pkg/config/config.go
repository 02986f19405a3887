package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pario-ai/lens/pkg/logging"
	"github.com/pario-ai/lens/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all lens configuration.
type Config struct {
	Listen   string             `yaml:"listen"`
	Store    StoreConfig        `yaml:"store"`
	Cache    CacheConfig        `yaml:"cache"`
	Analyzer AnalyzerConfig     `yaml:"analyzer"`
	Video    VideoConfig        `yaml:"video"`
	Audit    models.AuditConfig `yaml:"audit"`
	Log      logging.Config     `yaml:"log"`
}

// StoreConfig selects the persistent key-value substrate.
// Backend is "sqlite" (default), "badger" or "memory".
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// CacheConfig controls analysis freshness and retention.
type CacheConfig struct {
	TTL       time.Duration `yaml:"ttl"`
	Retention time.Duration `yaml:"retention"`
}

// AnalyzerConfig defines the OpenAI-compatible analysis endpoint.
type AnalyzerConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker in front of the analyzer.
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// VideoConfig defines the long-running video synthesis endpoint.
type VideoConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: "127.0.0.1:8787",
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "lens.db",
		},
		Cache: CacheConfig{
			TTL:       24 * time.Hour,
			Retention: 30 * 24 * time.Hour,
		},
		Analyzer: AnalyzerConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
			},
		},
		Video: VideoConfig{
			BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
			Model:        "veo-3.0-fast-generate-001",
			PollInterval: 10 * time.Second,
			MaxAttempts:  30,
		},
		Audit: models.AuditConfig{
			DBPath:        "lens-audit.db",
			RetentionDays: 90,
			Targets:       true,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite", "badger", "memory":
	default:
		return fmt.Errorf("unknown store backend: %q (valid: sqlite, badger, memory)", c.Store.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Cache.Retention < c.Cache.TTL {
		return fmt.Errorf("cache retention (%s) must not be shorter than ttl (%s)", c.Cache.Retention, c.Cache.TTL)
	}
	if c.Video.PollInterval <= 0 || c.Video.MaxAttempts <= 0 {
		return fmt.Errorf("video poll_interval and max_attempts must be positive")
	}
	if c.Audit.Enabled && c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention_days must be positive")
	}
	return nil
}
