package ensemble

import (
	"math"
	"sort"

	"github.com/okian/riskgate/internal/domain/model"
)

// Factor source groups, in tie-break order.
const (
	groupExpert = iota
	groupInteraction
	groupGating
)

// interactionPrefix and clampSource name the non-expert factor sources.
const (
	interactionPrefix = "interaction:"
	clampSource       = string(model.ExpertGating) + ":clamp"
)

// InteractionSource returns the factor source name of an interaction term.
func InteractionSource(a, b model.ExpertID) string {
	return interactionPrefix + string(a) + "+" + string(b)
}

type rankedFactor struct {
	factor model.Factor
	group  int
	// Expert factors tie-break on canonical expert order, interactions on
	// their canonical pair order.
	first, second model.ExpertID
}

// Explain ranks the contributing factors of a result by descending absolute
// magnitude. Sources are the per-expert weighted contributions, every
// interaction term, and a "gating:clamp" entry when clamping moved the
// score, so magnitudes always sum to the final score.
//
// Ties are broken by a fixed source ordering that does not depend on the
// scores: expert contributions first (behavior, geographic, contextual, then
// other experts by name), interaction terms next in canonical pair order,
// and the gating clamp last.
func Explain(contributions map[model.ExpertID]float64, terms []model.InteractionTerm, clampAdjustment float64) []model.Factor {
	ranked := make([]rankedFactor, 0, len(contributions)+len(terms)+1)
	for id, v := range contributions {
		ranked = append(ranked, rankedFactor{
			factor: model.Factor{Source: string(id), Magnitude: v},
			group:  groupExpert,
			first:  id,
		})
	}
	for _, t := range terms {
		ranked = append(ranked, rankedFactor{
			factor: model.Factor{Source: InteractionSource(t.A, t.B), Magnitude: t.Contribution},
			group:  groupInteraction,
			first:  t.A,
			second: t.B,
		})
	}
	if clampAdjustment != 0 {
		ranked = append(ranked, rankedFactor{
			factor: model.Factor{Source: clampSource, Magnitude: clampAdjustment},
			group:  groupGating,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		ma, mb := math.Abs(a.factor.Magnitude), math.Abs(b.factor.Magnitude)
		if ma != mb {
			return ma > mb
		}
		if a.group != b.group {
			return a.group < b.group
		}
		if a.first != b.first {
			return model.ExpertLess(a.first, b.first)
		}
		return model.ExpertLess(a.second, b.second)
	})

	out := make([]model.Factor, len(ranked))
	for i, r := range ranked {
		out[i] = r.factor
	}
	return out
}
