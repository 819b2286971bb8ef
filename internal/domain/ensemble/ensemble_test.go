package ensemble_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/riskgate/internal/domain/ensemble"
	"github.com/okian/riskgate/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const eps = 1e-9

func scores(kv map[model.ExpertID]float64) map[model.ExpertID]model.ExpertScore {
	out := make(map[model.ExpertID]model.ExpertScore, len(kv))
	for id, v := range kv {
		out[id] = model.ExpertScore{ExpertID: id, Score: v}
	}
	return out
}

func input(kv map[model.ExpertID]float64) model.EnsembleInput {
	return model.EnsembleInput{DriverID: "d1", TripID: "t1", Scores: scores(kv)}
}

func linearEngine() *ensemble.Engine {
	cfg := ensemble.DefaultConfig()
	cfg.Interactions = nil
	e, err := ensemble.NewEngine(cfg)
	So(err, ShouldBeNil)
	return e
}

func defaultEngine() *ensemble.Engine {
	e, err := ensemble.NewEngine(ensemble.DefaultConfig())
	So(err, ShouldBeNil)
	return e
}

func TestEngine_Scenarios(t *testing.T) {
	Convey("Given the default weights and no interactions", t, func() {
		e := linearEngine()

		Convey("When all three experts report", func() {
			r, err := e.Evaluate(input(map[model.ExpertID]float64{
				model.ExpertBehavior: 20, model.ExpertGeographic: 80, model.ExpertContextual: 50,
			}))

			Convey("Then the base is the weighted sum", func() {
				So(err, ShouldBeNil)
				So(r.FinalScore, ShouldAlmostEqual, 47, eps)
				So(r.BaseScore, ShouldAlmostEqual, 47, eps)
				So(r.SafetyScore, ShouldAlmostEqual, 53, eps)
				So(r.Tier, ShouldEqual, ensemble.TierStandardPlus)
				So(r.PremiumAdjustmentPct, ShouldEqual, -10)
			})

			Convey("And the factors rank by magnitude", func() {
				So(len(r.ContributingFactors), ShouldEqual, 3)
				So(r.ContributingFactors[0].Source, ShouldEqual, "geographic")
				So(r.ContributingFactors[0].Magnitude, ShouldAlmostEqual, 24, eps)
				So(r.ContributingFactors[1].Source, ShouldEqual, "contextual")
				So(r.ContributingFactors[2].Source, ShouldEqual, "behavior")
			})

			Convey("And the trend defaults to insufficient data", func() {
				So(r.Trend.Direction, ShouldEqual, model.TrendInsufficientData)
			})
		})

		Convey("When geographic is missing", func() {
			r, err := e.Evaluate(input(map[model.ExpertID]float64{
				model.ExpertBehavior: 20, model.ExpertContextual: 50,
			}))

			Convey("Then its weight is redistributed over the rest", func() {
				So(err, ShouldBeNil)
				So(r.ActiveWeights[model.ExpertBehavior], ShouldAlmostEqual, 0.4/0.7, eps)
				So(r.ActiveWeights[model.ExpertContextual], ShouldAlmostEqual, 0.3/0.7, eps)
				So(r.FinalScore, ShouldAlmostEqual, 23/0.7, eps)
				So(r.Tier, ShouldEqual, ensemble.TierStandardPlus)
			})
		})
	})

	Convey("Given the default configuration", t, func() {
		e := defaultEngine()

		Convey("When every expert reports zero", func() {
			r, err := e.Evaluate(input(map[model.ExpertID]float64{
				model.ExpertBehavior: 0, model.ExpertGeographic: 0, model.ExpertContextual: 0,
			}))

			Convey("Then the driver is Preferred", func() {
				So(err, ShouldBeNil)
				So(r.FinalScore, ShouldEqual, 0)
				So(r.Tier, ShouldEqual, ensemble.TierPreferred)
				So(r.PremiumAdjustmentPct, ShouldEqual, -20)
				So(r.Improvement, ShouldBeNil)
			})
		})

		Convey("When no expert reports", func() {
			_, err := e.Evaluate(input(nil))

			Convey("Then the request fails as data insufficient", func() {
				So(errors.Is(err, ensemble.ErrDataInsufficient), ShouldBeTrue)
			})
		})

		Convey("When only unknown experts report", func() {
			_, err := e.Evaluate(input(map[model.ExpertID]float64{"weather": 30}))

			Convey("Then the request fails as data insufficient", func() {
				So(errors.Is(err, model.ErrDataInsufficient), ShouldBeTrue)
			})
		})

		Convey("When all three experts report", func() {
			r, err := e.Evaluate(input(map[model.ExpertID]float64{
				model.ExpertBehavior: 20, model.ExpertGeographic: 80, model.ExpertContextual: 50,
			}))

			Convey("Then interaction terms are added to the base", func() {
				So(err, ShouldBeNil)
				So(len(r.Interactions), ShouldEqual, 3)
				So(r.InteractionTotal, ShouldAlmostEqual, 1.6+0.8+2.0, eps)
				So(r.FinalScore, ShouldAlmostEqual, 51.4, eps)
			})

			Convey("And the factor magnitudes sum to the final score", func() {
				sum := 0.0
				for _, f := range r.ContributingFactors {
					sum += f.Magnitude
				}
				So(sum, ShouldAlmostEqual, r.FinalScore, 1e-9)
			})

			Convey("And the next better tier is reported", func() {
				So(r.Improvement, ShouldNotBeNil)
				So(r.Improvement.NextTier, ShouldEqual, ensemble.TierPreferred)
				So(r.Improvement.PointsNeeded, ShouldAlmostEqual, 21.4, eps)
			})
		})

		Convey("When a pair member is missing", func() {
			r, err := e.Evaluate(input(map[model.ExpertID]float64{
				model.ExpertBehavior: 90, model.ExpertContextual: 90,
			}))

			Convey("Then only the pair with both experts fires", func() {
				So(err, ShouldBeNil)
				So(len(r.Interactions), ShouldEqual, 1)
				So(r.Interactions[0].A, ShouldEqual, model.ExpertBehavior)
				So(r.Interactions[0].B, ShouldEqual, model.ExpertContextual)
			})
		})
	})
}

func TestEngine_Normalisation(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		e := defaultEngine()
		conf := 0.5
		bad := math.NaN()
		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

		Convey("When scores are out of range or malformed", func() {
			in := model.EnsembleInput{DriverID: "d", TripID: "t", Scores: map[model.ExpertID]model.ExpertScore{
				model.ExpertBehavior:   {Score: 140, Confidence: &conf, ComputedAt: at},
				model.ExpertGeographic: {Score: -3},
				model.ExpertContextual: {Score: bad},
				"weather":              {Score: 10},
			}}
			r, err := e.Evaluate(in)

			Convey("Then the request proceeds with diagnostics", func() {
				So(err, ShouldBeNil)
				So(r.FinalScore, ShouldBeBetweenOrEqual, 0, 100)
				kinds := map[model.ExpertID]string{}
				for _, d := range r.Diagnostics {
					kinds[d.Expert] = d.Kind
				}
				So(kinds[model.ExpertBehavior], ShouldEqual, model.DiagnosticInvalidScore)
				So(kinds[model.ExpertGeographic], ShouldEqual, model.DiagnosticInvalidScore)
				So(kinds[model.ExpertContextual], ShouldEqual, model.DiagnosticInvalidScore)
				So(kinds["weather"], ShouldEqual, model.DiagnosticUnknownExpert)
			})

			Convey("And the NaN expert is treated as missing", func() {
				_, ok := r.ActiveWeights[model.ExpertContextual]
				So(ok, ShouldBeFalse)
				So(r.FinalScore, ShouldBeGreaterThan, 0)
			})

			Convey("And the latest expert timestamp dates the result", func() {
				So(r.AssessedAt.Equal(at), ShouldBeTrue)
			})

			Convey("And confidence only counts reporting experts", func() {
				So(r.Confidence, ShouldNotBeNil)
				So(*r.Confidence, ShouldAlmostEqual, 0.5, eps)
			})
		})

		Convey("When confidence is out of range", func() {
			high := 3.0
			in := model.EnsembleInput{Scores: map[model.ExpertID]model.ExpertScore{
				model.ExpertBehavior: {Score: 10, Confidence: &high},
			}}
			r, err := e.Evaluate(in)

			Convey("Then it is clamped and the caller's value is untouched", func() {
				So(err, ShouldBeNil)
				So(*r.Confidence, ShouldEqual, 1)
				So(high, ShouldEqual, 3.0)
				So(r.Diagnostics[0].Kind, ShouldEqual, model.DiagnosticInvalidConfidence)
			})
		})

		Convey("When a base premium is supplied", func() {
			in := input(map[model.ExpertID]float64{model.ExpertBehavior: 90, model.ExpertGeographic: 90, model.ExpertContextual: 90})
			in.BasePremium = 100
			r, err := e.Evaluate(in)

			Convey("Then the quote reflects the tier adjustment", func() {
				So(err, ShouldBeNil)
				So(r.Tier, ShouldEqual, ensemble.TierHighRisk)
				So(r.Premium.AdjustedPremium, ShouldAlmostEqual, 130, eps)
				So(r.Premium.AdditionalAnnualCost, ShouldAlmostEqual, 360, eps)
				So(r.Premium.AnnualSavings, ShouldEqual, 0)
			})
		})
	})
}

func TestEngine_Properties(t *testing.T) {
	Convey("Given a configuration with the maximum coefficient mass", t, func() {
		cfg := ensemble.DefaultConfig()
		cfg.Interactions = []ensemble.Pair{
			{A: model.ExpertBehavior, B: model.ExpertGeographic, Coefficient: 0.5},
			{A: model.ExpertBehavior, B: model.ExpertContextual, Coefficient: -0.3},
			{A: model.ExpertContextual, B: model.ExpertGeographic, Coefficient: 0.2},
		}
		e, err := ensemble.NewEngine(cfg)
		So(err, ShouldBeNil)

		grid := []float64{0, 12.5, 50, 87.5, 100}
		experts := []model.ExpertID{model.ExpertBehavior, model.ExpertGeographic, model.ExpertContextual}

		Convey("Then every subset and score stays bounded with weights summing to one", func() {
			for mask := 1; mask < 1<<len(experts); mask++ {
				for _, a := range grid {
					for _, b := range grid {
						for _, c := range grid {
							vals := []float64{a, b, c}
							kv := map[model.ExpertID]float64{}
							for i, id := range experts {
								if mask&(1<<i) != 0 {
									kv[id] = vals[i]
								}
							}
							r, err := e.Evaluate(input(kv))
							So(err, ShouldBeNil)
							So(r.FinalScore, ShouldBeBetweenOrEqual, 0, 100)

							sum := 0.0
							for _, w := range r.ActiveWeights {
								sum += w
							}
							So(sum, ShouldAlmostEqual, 1, 1e-12)

							total := 0.0
							for _, f := range r.ContributingFactors {
								total += f.Magnitude
							}
							So(total, ShouldAlmostEqual, r.FinalScore, 1e-9)
						}
					}
				}
			}
		})

		Convey("When every expert reports 100", func() {
			r, err := e.Evaluate(input(map[model.ExpertID]float64{
				model.ExpertBehavior: 100, model.ExpertGeographic: 100, model.ExpertContextual: 100,
			}))

			Convey("Then the overflow is explained by the clamp", func() {
				So(err, ShouldBeNil)
				So(r.FinalScore, ShouldEqual, 100)
				var clamp *model.Factor
				for i := range r.ContributingFactors {
					if r.ContributingFactors[i].Source == "gating:clamp" {
						clamp = &r.ContributingFactors[i]
					}
				}
				So(clamp, ShouldNotBeNil)
				So(clamp.Magnitude, ShouldAlmostEqual, -40, eps)
			})
		})

		Convey("When the same input is evaluated twice", func() {
			in := input(map[model.ExpertID]float64{model.ExpertBehavior: 33.3, model.ExpertGeographic: 66.6, model.ExpertContextual: 12.1})
			r1, err1 := e.Evaluate(in)
			r2, err2 := e.Evaluate(in)

			Convey("Then the results are identical", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(r1, ShouldResemble, r2)
			})
		})
	})
}

func TestExplain_Ties(t *testing.T) {
	Convey("Given contributions with equal magnitudes", t, func() {
		contributions := map[model.ExpertID]float64{
			"weather":              5,
			model.ExpertContextual: -5,
			model.ExpertBehavior:   5,
			"alpha":                5,
		}
		terms := []model.InteractionTerm{{A: model.ExpertBehavior, B: model.ExpertContextual, Contribution: 5}}

		Convey("When explained", func() {
			f := ensemble.Explain(contributions, terms, 5)

			Convey("Then ties follow the fixed source order", func() {
				sources := make([]string, len(f))
				for i := range f {
					sources[i] = f[i].Source
				}
				So(sources, ShouldResemble, []string{
					"behavior", "contextual", "alpha", "weather",
					"interaction:behavior+contextual", "gating:clamp",
				})
			})
		})
	})

	Convey("Given no clamp adjustment", t, func() {
		f := ensemble.Explain(map[model.ExpertID]float64{model.ExpertBehavior: 1}, nil, 0)

		Convey("Then no gating factor is listed", func() {
			So(len(f), ShouldEqual, 1)
		})
	})
}

func TestNewEngine_ConfigErrors(t *testing.T) {
	Convey("Given malformed configuration tables", t, func() {
		cases := map[string]func(*ensemble.Config){
			"weights not summing to one": func(c *ensemble.Config) {
				c.Weights[model.ExpertBehavior] = 0.5
			},
			"empty weights": func(c *ensemble.Config) { c.Weights = nil },
			"negative weight": func(c *ensemble.Config) {
				c.Weights = map[model.ExpertID]float64{model.ExpertBehavior: 1.5, model.ExpertGeographic: -0.5}
			},
			"reserved gating expert": func(c *ensemble.Config) {
				c.Weights = map[model.ExpertID]float64{model.ExpertBehavior: 0.5, model.ExpertGating: 0.5}
			},
			"interaction with unknown expert": func(c *ensemble.Config) {
				c.Interactions = []ensemble.Pair{{A: model.ExpertBehavior, B: "weather", Coefficient: 0.1}}
			},
			"self interaction": func(c *ensemble.Config) {
				c.Interactions = []ensemble.Pair{{A: model.ExpertBehavior, B: model.ExpertBehavior, Coefficient: 0.1}}
			},
			"duplicate pair in reverse orientation": func(c *ensemble.Config) {
				c.Interactions = []ensemble.Pair{
					{A: model.ExpertBehavior, B: model.ExpertGeographic, Coefficient: 0.1},
					{A: model.ExpertGeographic, B: model.ExpertBehavior, Coefficient: 0.1},
				}
			},
			"unbounded coefficients": func(c *ensemble.Config) {
				c.Interactions = []ensemble.Pair{
					{A: model.ExpertBehavior, B: model.ExpertGeographic, Coefficient: 0.9},
					{A: model.ExpertBehavior, B: model.ExpertContextual, Coefficient: -0.2},
				}
			},
			"tier gap": func(c *ensemble.Config) { c.Tiers[1].Upper = 55 },
			"tier overlap": func(c *ensemble.Config) { c.Tiers[2].Lower = 50 },
			"tiers not covering zero": func(c *ensemble.Config) { c.Tiers[0].Lower = 5 },
			"tiers not covering hundred": func(c *ensemble.Config) { c.Tiers[3].Upper = 99 },
			"duplicate tier name": func(c *ensemble.Config) { c.Tiers[3].Name = c.Tiers[0].Name },
			"adjustment zeroing premium": func(c *ensemble.Config) { c.Tiers[0].AdjustmentPct = -100 },
		}

		for name, mutate := range cases {
			Convey("When the table has "+name, func() {
				cfg := ensemble.DefaultConfig()
				mutate(&cfg)
				e, err := ensemble.NewEngine(cfg)

				Convey("Then construction fails with a config error", func() {
					So(e, ShouldBeNil)
					So(errors.Is(err, ensemble.ErrConfig), ShouldBeTrue)
				})
			})
		}
	})

	Convey("Given tiers listed out of order", t, func() {
		cfg := ensemble.DefaultConfig()
		cfg.Tiers[0], cfg.Tiers[3] = cfg.Tiers[3], cfg.Tiers[0]
		e, err := ensemble.NewEngine(cfg)

		Convey("Then they are sorted and classification is lower-bound inclusive", func() {
			So(err, ShouldBeNil)
			tiers := e.Tiers()
			So(tiers.Tiers()[0].Name, ShouldEqual, ensemble.TierPreferred)
			for score, want := range map[float64]string{
				0: ensemble.TierPreferred, 29.999: ensemble.TierPreferred, 30: ensemble.TierStandardPlus,
				60: ensemble.TierStandard, 80: ensemble.TierHighRisk, 100: ensemble.TierHighRisk,
			} {
				got, _ := tiers.Classify(score)
				So(got.Name, ShouldEqual, want)
			}
		})
	})
}

type stubTrend struct {
	calls int
	ctxOK bool
}

func (s *stubTrend) Observe(ctx context.Context, _ string, p model.HistoryPoint) (model.TrendSnapshot, error) {
	s.calls++
	s.ctxOK = ctx.Err() == nil
	return model.TrendSnapshot{Direction: model.TrendStable, Current: p.Score, WindowSize: 1}, nil
}

type stubAdvisor struct{}

func (stubAdvisor) Advise(r *model.EnsembleResult) []string {
	return []string{"tier " + r.Tier}
}

func TestEngine_Assess(t *testing.T) {
	Convey("Given an engine with trend tracking and advice", t, func() {
		tr := &stubTrend{}
		e, err := ensemble.NewEngine(ensemble.DefaultConfig(),
			ensemble.WithTrendObserver(tr), ensemble.WithAdvisor(stubAdvisor{}))
		So(err, ShouldBeNil)
		in := input(map[model.ExpertID]float64{model.ExpertBehavior: 10})

		Convey("When assessing", func() {
			r, err := e.Assess(context.Background(), in)

			Convey("Then the trend and recommendations are attached", func() {
				So(err, ShouldBeNil)
				So(tr.calls, ShouldEqual, 1)
				So(r.Trend.Direction, ShouldEqual, model.TrendStable)
				So(r.Trend.Current, ShouldEqual, r.FinalScore)
				So(r.Recommendations, ShouldResemble, []string{"tier Preferred"})
			})
		})

		Convey("When the context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := e.Assess(ctx, in)

			Convey("Then nothing is evaluated or recorded", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(tr.calls, ShouldEqual, 0)
			})
		})

		Convey("When the driver id is empty", func() {
			in.DriverID = ""
			_, err := e.Assess(context.Background(), in)

			Convey("Then the input is rejected before history is touched", func() {
				So(errors.Is(err, ensemble.ErrInvalidInput), ShouldBeTrue)
				So(tr.calls, ShouldEqual, 0)
			})
		})
	})
}
