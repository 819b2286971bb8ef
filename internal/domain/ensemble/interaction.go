package ensemble

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/riskgate/internal/domain/model"
)

// maxCoefficientMass bounds Σ|cᵢⱼ|. With every score at 100 each term
// equals cᵢⱼ × 100, so this keeps the total adjustment within [-100,100].
const maxCoefficientMass = 1.0

// coefficientTolerance absorbs float noise in the mass check.
const coefficientTolerance = 1e-9

// Pair configures the interaction coefficient between two experts.
type Pair struct {
	A           model.ExpertID
	B           model.ExpertID
	Coefficient float64
}

// DefaultInteractions returns the built-in compounding-risk coefficients.
func DefaultInteractions() []Pair {
	return []Pair{
		{A: model.ExpertBehavior, B: model.ExpertGeographic, Coefficient: 0.10},
		{A: model.ExpertBehavior, B: model.ExpertContextual, Coefficient: 0.08},
		{A: model.ExpertGeographic, B: model.ExpertContextual, Coefficient: 0.05},
	}
}

// InteractionMatrix is a validated, immutable set of expert pair coefficients.
type InteractionMatrix struct {
	pairs []Pair
}

// NewInteractionMatrix validates pairs against the configured experts.
// Each pair must join two distinct configured experts, appear once
// regardless of orientation, carry a finite coefficient, and the sum of
// absolute coefficients must not exceed 1.
func NewInteractionMatrix(pairs []Pair, weights WeightConfig) (InteractionMatrix, error) {
	m := InteractionMatrix{pairs: make([]Pair, 0, len(pairs))}
	seen := make(map[[2]model.ExpertID]struct{}, len(pairs))
	mass := 0.0

	for _, p := range pairs {
		if p.A == p.B {
			return InteractionMatrix{}, fmt.Errorf("%w: interaction pair %q×%q joins an expert with itself", model.ErrConfig, p.A, p.B)
		}
		for _, id := range []model.ExpertID{p.A, p.B} {
			if _, ok := weights.Weight(id); !ok {
				return InteractionMatrix{}, fmt.Errorf("%w: interaction references unconfigured expert %q", model.ErrConfig, id)
			}
		}
		if math.IsNaN(p.Coefficient) || math.IsInf(p.Coefficient, 0) {
			return InteractionMatrix{}, fmt.Errorf("%w: coefficient for %q×%q is not finite", model.ErrConfig, p.A, p.B)
		}
		if model.ExpertLess(p.B, p.A) {
			p.A, p.B = p.B, p.A
		}
		key := [2]model.ExpertID{p.A, p.B}
		if _, dup := seen[key]; dup {
			return InteractionMatrix{}, fmt.Errorf("%w: duplicate interaction pair %q×%q", model.ErrConfig, p.A, p.B)
		}
		seen[key] = struct{}{}
		mass += math.Abs(p.Coefficient)
		m.pairs = append(m.pairs, p)
	}

	if mass > maxCoefficientMass+coefficientTolerance {
		return InteractionMatrix{}, fmt.Errorf("%w: interaction coefficients have total magnitude %.4f, limit is %.1f", model.ErrConfig, mass, maxCoefficientMass)
	}

	sort.Slice(m.pairs, func(i, j int) bool {
		a, b := m.pairs[i], m.pairs[j]
		if a.A != b.A {
			return model.ExpertLess(a.A, b.A)
		}
		return model.ExpertLess(a.B, b.B)
	})
	return m, nil
}

// Pairs returns a copy of the configured pairs in canonical order.
func (m InteractionMatrix) Pairs() []Pair {
	return append([]Pair(nil), m.pairs...)
}

// Analyze computes cᵢⱼ × (scoreᵢ/100) × (scoreⱼ/100) × 100 for every
// configured pair whose experts are both present. Missing experts
// contribute no term. Zero coefficients are skipped.
func (m InteractionMatrix) Analyze(scores map[model.ExpertID]float64) ([]model.InteractionTerm, float64) {
	var (
		terms []model.InteractionTerm
		total float64
	)
	for _, p := range m.pairs {
		if p.Coefficient == 0 {
			continue
		}
		a, okA := scores[p.A]
		b, okB := scores[p.B]
		if !okA || !okB {
			continue
		}
		contribution := p.Coefficient * (a / MaxScore) * (b / MaxScore) * MaxScore
		terms = append(terms, model.InteractionTerm{
			A:            p.A,
			B:            p.B,
			Coefficient:  p.Coefficient,
			Contribution: contribution,
		})
		total += contribution
	}
	return terms, total
}
