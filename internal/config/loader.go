package config

import (
	"context"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "RISKGATE_"
	envFile   = "RISKGATE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if RISKGATE_CONFIG is set
//  3. env (prefix RISKGATE_, "__" separates nested keys)
//
// A table supplied by any layer replaces the default table instead of being
// merged into it.
func Load(ctx context.Context) (*Config, error) {
	cfg := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(envFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, loadFailed(path, err)
		}
	}

	// RISKGATE_TREND__MIN_HISTORY -> trend.min_history
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, loadFailed("env", err)
	}

	if k.Exists("weights") {
		cfg.Weights = nil
	}
	if k.Exists("interactions") {
		cfg.Interactions = nil
	}
	if k.Exists("tiers") {
		cfg.Tiers = nil
	}
	if k.Exists("recommendations") {
		cfg.Recommendations = nil
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, loadFailed("decode", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the loader owns. Domain tables are validated
// by the packages that consume them.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.DedupeSize <= 0:
		return invalid("dedupe_size must be positive")
	case c.Publish.QueueSize <= 0:
		return invalid("publish.queue_size must be positive")
	case c.Publish.WorkerCount <= 0:
		return invalid("publish.worker_count must be positive")
	case c.BatchConcurrency <= 0:
		return invalid("batch_concurrency must be positive")
	case c.BatchMaxItems <= 0:
		return invalid("batch_max_items must be positive")
	case c.History.ShardCount <= 0:
		return invalid("history.shard_count must be positive")
	case c.History.LockTimeoutMS <= 0:
		return invalid("history.lock_timeout_ms must be positive")
	case c.History.RetryAttempts <= 0:
		return invalid("history.retry_attempts must be positive")
	case c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0:
		return invalid("rate_limit.burst must be positive when rps is set")
	}
	return nil
}
