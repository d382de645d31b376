// Package config loads modguard's runtime settings: defaults, then a TOML
// file, then environment variable overrides.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Batcher   BatcherConfig   `toml:"batcher"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Adapter   AdapterConfig   `toml:"adapter"`
	Database  DatabaseConfig  `toml:"database"`
}

type BatcherConfig struct {
	MaxBatchSize int     `toml:"max_batch_size"`
	MaxDelay     float64 `toml:"max_delay_seconds"`
}

type SchedulerConfig struct {
	MaxConcurrentBatches  int `toml:"max_concurrent_batches"`
	RegexWorkers          int `toml:"regex_workers"`
	CategoryConcurrency   int `toml:"category_concurrency"`
	ContextualConcurrency int `toml:"contextual_concurrency"`
}

type AdapterConfig struct {
	BaseURL string  `toml:"base_url"`
	APIKey  string  `toml:"api_key"`
	Timeout float64 `toml:"timeout_seconds"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// MaxDelayDuration converts MaxDelay seconds to a time.Duration.
func (b BatcherConfig) MaxDelayDuration() time.Duration {
	return time.Duration(b.MaxDelay * float64(time.Second))
}

// TimeoutDuration converts Timeout seconds to a time.Duration.
func (a AdapterConfig) TimeoutDuration() time.Duration {
	return time.Duration(a.Timeout * float64(time.Second))
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Batcher:   BatcherConfig{MaxBatchSize: 50, MaxDelay: 0.5},
		Scheduler: SchedulerConfig{
			MaxConcurrentBatches:  4,
			RegexWorkers:          6,
			CategoryConcurrency:   8,
			ContextualConcurrency: 2,
		},
		Adapter:   AdapterConfig{Timeout: 10.0},
		Database:  DatabaseConfig{Path: "modguard.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "modguard.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("MODGUARD_ADAPTER_API_KEY"); v != "" {
		cfg.Adapter.APIKey = v
	}
	if v := os.Getenv("MODGUARD_ADAPTER_BASE_URL"); v != "" {
		cfg.Adapter.BaseURL = v
	}
	if v := os.Getenv("MODGUARD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	return cfg
}
