// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Tables (weights, interactions, tiers, recommendations) are data here;
//   the domain packages validate them when the engine is built.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
	"time"

	"github.com/okian/riskgate/internal/domain/advice"
	"github.com/okian/riskgate/internal/domain/ensemble"
	"github.com/okian/riskgate/internal/domain/model"
	"github.com/okian/riskgate/internal/domain/trend"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFile, when set, mirrors logs into a size-rotated file.
	LogFile       string `koanf:"log_file"`
	LogMaxSizeMB  int    `koanf:"log_max_size_mb"`
	LogMaxBackups int    `koanf:"log_max_backups"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Weights maps expert ids to their ensemble weights. Must sum to 1.
	Weights map[string]float64 `koanf:"weights"`

	// Interactions lists the compounding-risk pairs.
	Interactions []Interaction `koanf:"interactions"`

	// Tiers lists the risk tiers in ascending order of lower bound.
	Tiers []Tier `koanf:"tiers"`

	Trend   Trend   `koanf:"trend"`
	History History `koanf:"history"`

	// DedupeSize bounds the driver/trip idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	Publish   Publish   `koanf:"publish"`
	RateLimit RateLimit `koanf:"rate_limit"`

	// BatchConcurrency bounds parallel evaluations in one batch request.
	BatchConcurrency int `koanf:"batch_concurrency"`

	// BatchMaxItems caps the size of one batch request.
	BatchMaxItems int `koanf:"batch_max_items"`

	// GatherTimeoutMS bounds expert score production for a trip.
	GatherTimeoutMS int `koanf:"gather_timeout_ms"`

	// Recommendations are CEL rules evaluated over each result.
	Recommendations []Recommendation `koanf:"recommendations"`
}

// Interaction is one configured expert pair.
type Interaction struct {
	A           string  `koanf:"a"`
	B           string  `koanf:"b"`
	Coefficient float64 `koanf:"coefficient"`
}

// Tier is one configured risk tier.
type Tier struct {
	Name          string  `koanf:"name"`
	Lower         float64 `koanf:"lower"`
	Upper         float64 `koanf:"upper"`
	AdjustmentPct float64 `koanf:"adjustment_pct"`
}

// Trend configures drift classification.
type Trend struct {
	WindowSize     int     `koanf:"window_size"`
	MinHistory     int     `koanf:"min_history"`
	SlopeThreshold float64 `koanf:"slope_threshold"`
	HalfLifeHours  float64 `koanf:"half_life_hours"`
}

// History configures the per-driver history store.
type History struct {
	ShardCount     int `koanf:"shard_count"`
	LockTimeoutMS  int `koanf:"lock_timeout_ms"`
	RetryAttempts  int `koanf:"retry_attempts"`
	RetryBackoffMS int `koanf:"retry_backoff_ms"`
}

// Publish configures result delivery.
type Publish struct {
	QueueSize        int    `koanf:"queue_size"`
	WorkerCount      int    `koanf:"worker_count"`
	AuditLog         string `koanf:"audit_log"`
	AuditMaxSizeMB   int    `koanf:"audit_max_size_mb"`
	AuditMaxBackups  int    `koanf:"audit_max_backups"`
	WebhookURL       string `koanf:"webhook_url"`
	WebhookTimeoutMS int    `koanf:"webhook_timeout_ms"`
}

// RateLimit configures the HTTP token bucket. RPS <= 0 disables it.
type RateLimit struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

// Recommendation is one configured CEL rule.
type Recommendation struct {
	ID      string `koanf:"id"`
	When    string `koanf:"when"`
	Message string `koanf:"message"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	ens := ensemble.DefaultConfig()
	tc := trend.DefaultConfig()

	c := &Config{
		LogLevel:      "info",
		LogMaxSizeMB:  100,
		LogMaxBackups: 3,
		Addr:          ":9080",
		Weights:       make(map[string]float64, len(ens.Weights)),
		Trend: Trend{
			WindowSize:     tc.WindowSize,
			MinHistory:     tc.MinHistory,
			SlopeThreshold: tc.SlopeThreshold,
			HalfLifeHours:  tc.HalfLife.Hours(),
		},
		History: History{
			ShardCount:     64,
			LockTimeoutMS:  int(trend.DefaultLockWait / time.Millisecond),
			RetryAttempts:  trend.DefaultRetryAttempts,
			RetryBackoffMS: int(trend.DefaultRetryBackoff / time.Millisecond),
		},
		DedupeSize: 500_000,
		Publish: Publish{
			QueueSize:        10_000,
			WorkerCount:      runtime.NumCPU(),
			AuditMaxSizeMB:   100,
			AuditMaxBackups:  5,
			WebhookTimeoutMS: 5_000,
		},
		RateLimit:        RateLimit{RPS: 0, Burst: 100},
		BatchConcurrency: runtime.NumCPU() * 2,
		BatchMaxItems:    500,
		GatherTimeoutMS:  250,
	}

	for id, w := range ens.Weights {
		c.Weights[string(id)] = w
	}
	for _, p := range ens.Interactions {
		c.Interactions = append(c.Interactions, Interaction{A: string(p.A), B: string(p.B), Coefficient: p.Coefficient})
	}
	for _, t := range ens.Tiers {
		c.Tiers = append(c.Tiers, Tier{Name: t.Name, Lower: t.Lower, Upper: t.Upper, AdjustmentPct: t.AdjustmentPct})
	}
	for _, r := range advice.DefaultRules() {
		c.Recommendations = append(c.Recommendations, Recommendation{ID: r.ID, When: r.When, Message: r.Message})
	}
	return c
}

// Ensemble converts the tables into the engine's configuration.
func (c *Config) Ensemble() ensemble.Config {
	out := ensemble.Config{Weights: make(map[model.ExpertID]float64, len(c.Weights))}
	for id, w := range c.Weights {
		out.Weights[model.ExpertID(id)] = w
	}
	for _, p := range c.Interactions {
		out.Interactions = append(out.Interactions, ensemble.Pair{
			A:           model.ExpertID(p.A),
			B:           model.ExpertID(p.B),
			Coefficient: p.Coefficient,
		})
	}
	for _, t := range c.Tiers {
		out.Tiers = append(out.Tiers, ensemble.Tier{Name: t.Name, Lower: t.Lower, Upper: t.Upper, AdjustmentPct: t.AdjustmentPct})
	}
	return out
}

// TrendConfig converts the trend section.
func (c *Config) TrendConfig() trend.Config {
	return trend.Config{
		WindowSize:     c.Trend.WindowSize,
		MinHistory:     c.Trend.MinHistory,
		SlopeThreshold: c.Trend.SlopeThreshold,
		HalfLife:       time.Duration(c.Trend.HalfLifeHours * float64(time.Hour)),
	}
}

// Rules converts the recommendation section.
func (c *Config) Rules() []advice.Rule {
	out := make([]advice.Rule, 0, len(c.Recommendations))
	for _, r := range c.Recommendations {
		out = append(out, advice.Rule{ID: r.ID, When: r.When, Message: r.Message})
	}
	return out
}

// LockTimeout is the per-driver lock acquisition bound.
func (h History) LockTimeout() time.Duration { return ms(h.LockTimeoutMS) }

// RetryBackoff is the initial delay between conflicting attempts.
func (h History) RetryBackoff() time.Duration { return ms(h.RetryBackoffMS) }

// WebhookTimeout bounds one webhook delivery.
func (p Publish) WebhookTimeout() time.Duration { return ms(p.WebhookTimeoutMS) }

// GatherTimeout bounds expert gathering for one trip.
func (c *Config) GatherTimeout() time.Duration { return ms(c.GatherTimeoutMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
