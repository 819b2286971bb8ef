package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/riskgate/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New(ctx))
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("RISKGATE_ADDR", ":8080")
			_ = os.Setenv("RISKGATE_DEDUPE_SIZE", "250000")
			_ = os.Setenv("RISKGATE_TREND__MIN_HISTORY", "5")
			_ = os.Setenv("RISKGATE_PUBLISH__WORKER_COUNT", "7")
			_ = os.Setenv("RISKGATE_RATE_LIMIT__RPS", "12.5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 250000)
				convey.So(cfg.Trend.MinHistory, convey.ShouldEqual, 5)
				convey.So(cfg.Trend.WindowSize, convey.ShouldEqual, 20)
				convey.So(cfg.Publish.WorkerCount, convey.ShouldEqual, 7)
				convey.So(cfg.RateLimit.RPS, convey.ShouldEqual, 12.5)
			})
		})

		convey.Convey("When loading config with a YAML file that supplies tables", func() {
			yamlContent := `
addr: ":9090"
weights:
  behavior: 0.5
  geographic: 0.5
interactions:
  - a: behavior
    b: geographic
    coefficient: 0.2
tiers:
  - {name: Low, lower: 0, upper: 50, adjustment_pct: -5}
  - {name: High, lower: 50, upper: 100, adjustment_pct: 25}
history:
  lock_timeout_ms: 80
`
			_ = os.Setenv("RISKGATE_CONFIG", createTempConfigFile(t, yamlContent))

			cfg, err := config.Load(ctx)

			convey.Convey("Then the tables replace the defaults wholesale", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Weights, convey.ShouldResemble, map[string]float64{"behavior": 0.5, "geographic": 0.5})
				convey.So(cfg.Interactions, convey.ShouldResemble, []config.Interaction{{A: "behavior", B: "geographic", Coefficient: 0.2}})
				convey.So(cfg.Tiers, convey.ShouldHaveLength, 2)
				convey.So(cfg.Tiers[1], convey.ShouldResemble, config.Tier{Name: "High", Lower: 50, Upper: 100, AdjustmentPct: 25})
				convey.So(cfg.History.LockTimeoutMS, convey.ShouldEqual, 80)
				convey.So(cfg.History.ShardCount, convey.ShouldEqual, 64)
			})

			convey.Convey("Then untouched tables keep their defaults", func() {
				convey.So(cfg.Recommendations, convey.ShouldResemble, config.New(ctx).Recommendations)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
dedupe_size: 600000
`
			_ = os.Setenv("RISKGATE_CONFIG", createTempConfigFile(t, yamlContent))
			_ = os.Setenv("RISKGATE_ADDR", ":8080")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 600000)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			_ = os.Setenv("RISKGATE_CONFIG", createTempConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("RISKGATE_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("RISKGATE_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a rate limit is set without a burst", func() {
			_ = os.Setenv("RISKGATE_RATE_LIMIT__RPS", "10")
			_ = os.Setenv("RISKGATE_RATE_LIMIT__BURST", "0")

			_, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, "RISKGATE_") {
			_ = os.Unsetenv(key)
		}
	}
}
