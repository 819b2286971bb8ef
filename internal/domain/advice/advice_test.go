package advice_test

import (
	"errors"
	"testing"

	"github.com/okian/riskgate/internal/domain/advice"
	"github.com/okian/riskgate/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func result(scores map[model.ExpertID]float64, direction model.TrendDirection) *model.EnsembleResult {
	return &model.EnsembleResult{
		ExpertScores: scores,
		FinalScore:   50,
		SafetyScore:  50,
		Tier:         "StandardPlus",
		Trend:        model.TrendSnapshot{Direction: direction},
	}
}

func TestDefaultRules(t *testing.T) {
	Convey("Given the default rules", t, func() {
		a, err := advice.New(advice.DefaultRules())
		So(err, ShouldBeNil)

		Convey("When every expert reports high risk", func() {
			got := a.Advise(result(map[model.ExpertID]float64{
				model.ExpertBehavior: 85, model.ExpertGeographic: 80, model.ExpertContextual: 75,
			}, model.TrendStable))

			Convey("Then all risk rules fire in order", func() {
				So(got, ShouldResemble, []string{
					"High-risk driver in high-risk location - consider advanced driver training",
					"Avoid driving in high-risk conditions when possible",
					"Consider usage-based insurance monitoring",
					"Implement comprehensive risk mitigation strategies",
				})
			})
		})

		Convey("When only contextual risk is high", func() {
			got := a.Advise(result(map[model.ExpertID]float64{
				model.ExpertBehavior: 10, model.ExpertContextual: 90,
			}, model.TrendStable))

			Convey("Then the missing geographic expert does not fire its rules", func() {
				So(got, ShouldResemble, []string{"Avoid driving in high-risk conditions when possible"})
			})
		})

		Convey("When the trend is degrading", func() {
			got := a.Advise(result(map[model.ExpertID]float64{model.ExpertBehavior: 10}, model.TrendDegrading))

			Convey("Then the rising risk rule fires", func() {
				So(len(got), ShouldEqual, 1)
				So(got[0], ShouldContainSubstring, "rising")
			})
		})

		Convey("When the driver is low risk", func() {
			got := a.Advise(result(map[model.ExpertID]float64{
				model.ExpertBehavior: 10, model.ExpertGeographic: 10, model.ExpertContextual: 10,
			}, model.TrendImproving))

			Convey("Then nothing is recommended", func() {
				So(got, ShouldBeEmpty)
			})
		})
	})
}

func TestCustomRules(t *testing.T) {
	Convey("Given rules over the score and tier", t, func() {
		a, err := advice.New([]advice.Rule{
			{ID: "tier", When: `tier == "StandardPlus" && final_score >= 50.0`, Message: "close to Standard"},
			{ID: "safety", When: `safety_score > 90.0`, Message: "excellent"},
		})
		So(err, ShouldBeNil)

		Convey("Then only the matching rule fires", func() {
			So(a.Advise(result(nil, model.TrendStable)), ShouldResemble, []string{"close to Standard"})
			So(len(a.Rules()), ShouldEqual, 2)
		})
	})

	Convey("Given malformed rules", t, func() {
		cases := map[string][]advice.Rule{
			"syntax error":     {{ID: "a", When: `scores.behavior >`, Message: "m"}},
			"non-boolean":      {{ID: "a", When: `final_score + 1.0`, Message: "m"}},
			"unknown variable": {{ID: "a", When: `speed > 3.0`, Message: "m"}},
			"empty condition":  {{ID: "a", When: ` `, Message: "m"}},
			"missing id":       {{When: `true`, Message: "m"}},
			"missing message":  {{ID: "a", When: `true`}},
			"duplicate id":     {{ID: "a", When: `true`, Message: "m"}, {ID: "a", When: `false`, Message: "n"}},
		}

		for name, rules := range cases {
			Convey("When a rule has "+name, func() {
				a, err := advice.New(rules)

				Convey("Then compilation fails as a config error", func() {
					So(a, ShouldBeNil)
					So(errors.Is(err, advice.ErrRuleCompile), ShouldBeTrue)
					So(errors.Is(err, model.ErrConfig), ShouldBeTrue)
				})
			})
		}
	})

	Convey("Given no rules", t, func() {
		a, err := advice.New(nil)
		So(err, ShouldBeNil)
		So(a.Advise(result(nil, model.TrendStable)), ShouldBeNil)
	})
}
