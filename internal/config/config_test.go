package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/riskgate/internal/config"
	"github.com/okian/riskgate/internal/domain/ensemble"
	"github.com/okian/riskgate/internal/domain/model"
	"github.com/okian/riskgate/internal/domain/trend"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 500_000)
			convey.So(cfg.History.ShardCount, convey.ShouldEqual, 64)
			convey.So(cfg.History.LockTimeout(), convey.ShouldEqual, 50*time.Millisecond)
			convey.So(cfg.History.RetryAttempts, convey.ShouldEqual, 3)
			convey.So(cfg.History.RetryBackoff(), convey.ShouldEqual, 5*time.Millisecond)
			convey.So(cfg.Trend.WindowSize, convey.ShouldEqual, 20)
			convey.So(cfg.Trend.HalfLifeHours, convey.ShouldEqual, 720)
			convey.So(cfg.Tiers, convey.ShouldHaveLength, 4)
			convey.So(cfg.Interactions, convey.ShouldHaveLength, 3)
			convey.So(cfg.Recommendations, convey.ShouldNotBeEmpty)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then its tables build a valid engine", func() {
			_, err := ensemble.NewEngine(cfg.Ensemble())
			convey.So(err, convey.ShouldBeNil)
		})

		convey.Convey("Then the trend section round-trips to the domain defaults", func() {
			convey.So(cfg.TrendConfig(), convey.ShouldResemble, trend.DefaultConfig())
		})

		convey.Convey("Then the weights keep the domain ids", func() {
			ens := cfg.Ensemble()
			convey.So(ens.Weights[model.ExpertBehavior], convey.ShouldEqual, ensemble.DefaultWeights()[model.ExpertBehavior])
		})
	})
}
