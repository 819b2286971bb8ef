package ensemble

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/okian/riskgate/internal/domain/model"
)

// Tier is one premium band. Lower is inclusive; Upper is exclusive except
// for the last tier, which also covers MaxScore.
type Tier struct {
	Name          string
	Lower         float64
	Upper         float64
	AdjustmentPct float64
}

// Default tier names.
const (
	TierPreferred    = "Preferred"
	TierStandardPlus = "StandardPlus"
	TierStandard     = "Standard"
	TierHighRisk     = "HighRisk"
)

// DefaultTiers returns the built-in premium bands.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: TierPreferred, Lower: 0, Upper: 30, AdjustmentPct: -20},
		{Name: TierStandardPlus, Lower: 30, Upper: 60, AdjustmentPct: -10},
		{Name: TierStandard, Lower: 60, Upper: 80, AdjustmentPct: 0},
		{Name: TierHighRisk, Lower: 80, Upper: 100, AdjustmentPct: 30},
	}
}

// TierTable is a validated partition of [0,100] into tiers.
type TierTable struct {
	tiers []Tier
}

// NewTierTable sorts tiers by lower bound and checks that they partition
// [0,100] with no gaps or overlaps.
func NewTierTable(tiers []Tier) (TierTable, error) {
	if len(tiers) == 0 {
		return TierTable{}, fmt.Errorf("%w: tier table is empty", model.ErrConfig)
	}
	sorted := append([]Tier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Lower < sorted[j].Lower })

	names := make(map[string]struct{}, len(sorted))
	for i, t := range sorted {
		if strings.TrimSpace(t.Name) == "" {
			return TierTable{}, fmt.Errorf("%w: tier %d has no name", model.ErrConfig, i)
		}
		if _, dup := names[t.Name]; dup {
			return TierTable{}, fmt.Errorf("%w: duplicate tier %q", model.ErrConfig, t.Name)
		}
		names[t.Name] = struct{}{}

		for _, v := range []float64{t.Lower, t.Upper, t.AdjustmentPct} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return TierTable{}, fmt.Errorf("%w: tier %q has a non-finite value", model.ErrConfig, t.Name)
			}
		}
		if t.Lower >= t.Upper {
			return TierTable{}, fmt.Errorf("%w: tier %q has empty range [%g,%g)", model.ErrConfig, t.Name, t.Lower, t.Upper)
		}
		if t.AdjustmentPct <= -100 {
			return TierTable{}, fmt.Errorf("%w: tier %q adjustment %g%% would zero the premium", model.ErrConfig, t.Name, t.AdjustmentPct)
		}
		if i > 0 {
			prev := sorted[i-1]
			switch {
			case t.Lower > prev.Upper:
				return TierTable{}, fmt.Errorf("%w: gap between tier %q and %q at [%g,%g)", model.ErrConfig, prev.Name, t.Name, prev.Upper, t.Lower)
			case t.Lower < prev.Upper:
				return TierTable{}, fmt.Errorf("%w: tier %q overlaps tier %q", model.ErrConfig, t.Name, prev.Name)
			}
		}
	}
	if sorted[0].Lower != MinScore {
		return TierTable{}, fmt.Errorf("%w: tiers start at %g, must start at %g", model.ErrConfig, sorted[0].Lower, MinScore)
	}
	if last := sorted[len(sorted)-1]; last.Upper != MaxScore {
		return TierTable{}, fmt.Errorf("%w: tiers end at %g, must end at %g", model.ErrConfig, last.Upper, MaxScore)
	}
	return TierTable{tiers: sorted}, nil
}

// Tiers returns a copy of the table, best tier first.
func (t TierTable) Tiers() []Tier {
	return append([]Tier(nil), t.tiers...)
}

// Classify returns the tier containing score and its index in the table.
// Scores outside [0,100] are clamped first.
func (t TierTable) Classify(score float64) (Tier, int) {
	score = Clamp(score)
	last := len(t.tiers) - 1
	for i, tier := range t.tiers {
		if score < tier.Upper || i == last {
			return tier, i
		}
	}
	return t.tiers[last], last
}

// Improvement names the next better tier and the score reduction needed to
// reach it. It returns nil for the best tier.
func (t TierTable) Improvement(score float64) *model.TierImprovement {
	tier, idx := t.Classify(score)
	if idx == 0 {
		return nil
	}
	return &model.TierImprovement{
		NextTier:     t.tiers[idx-1].Name,
		PointsNeeded: Clamp(score) - tier.Lower,
	}
}

// monthsPerYear converts monthly premium deltas to annual figures.
const monthsPerYear = 12

// Quote prices tier against a monthly base premium. It returns nil when
// base is not positive.
func Quote(base float64, tier Tier) *model.PremiumQuote {
	if !(base > 0) || math.IsInf(base, 0) {
		return nil
	}
	adjusted := base * (1 + tier.AdjustmentPct/100)
	delta := base - adjusted
	q := &model.PremiumQuote{
		BasePremium:     base,
		AdjustedPremium: adjusted,
		MonthlyDelta:    delta,
	}
	if delta > 0 {
		q.AnnualSavings = delta * monthsPerYear
	} else if delta < 0 {
		q.AdditionalAnnualCost = -delta * monthsPerYear
	}
	return q
}
