package ensemble

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/riskgate/internal/domain/model"
)

// weightSumTolerance bounds how far a weight table may drift from 1.
const weightSumTolerance = 1e-6

// DefaultWeights returns the headline expert weights.
func DefaultWeights() map[model.ExpertID]float64 {
	return map[model.ExpertID]float64{
		model.ExpertBehavior:   0.4,
		model.ExpertGeographic: 0.3,
		model.ExpertContextual: 0.3,
	}
}

// WeightConfig is a validated, immutable expert weight table.
type WeightConfig struct {
	weights map[model.ExpertID]float64
	order   []model.ExpertID
}

// NewWeightConfig validates w and returns an immutable copy. Every weight
// must be finite and positive, the gating identity is reserved, and the
// weights must sum to 1.
func NewWeightConfig(w map[model.ExpertID]float64) (WeightConfig, error) {
	if len(w) == 0 {
		return WeightConfig{}, fmt.Errorf("%w: weight table is empty", model.ErrConfig)
	}
	c := WeightConfig{weights: make(map[model.ExpertID]float64, len(w))}
	for id, v := range w {
		switch {
		case strings.TrimSpace(string(id)) == "":
			return WeightConfig{}, fmt.Errorf("%w: empty expert id in weight table", model.ErrConfig)
		case id == model.ExpertGating:
			return WeightConfig{}, fmt.Errorf("%w: %q is reserved for the engine", model.ErrConfig, id)
		case math.IsNaN(v) || math.IsInf(v, 0) || v <= 0:
			return WeightConfig{}, fmt.Errorf("%w: weight for %q must be positive and finite, got %g", model.ErrConfig, id, v)
		}
		c.weights[id] = v
		c.order = append(c.order, id)
	}
	model.SortExperts(c.order)

	sum := 0.0
	for _, id := range c.order {
		sum += c.weights[id]
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return WeightConfig{}, fmt.Errorf("%w: weights sum to %.6f, must sum to 1", model.ErrConfig, sum)
	}
	return c, nil
}

// Weight returns the configured weight for id.
func (c WeightConfig) Weight(id model.ExpertID) (float64, bool) {
	v, ok := c.weights[id]
	return v, ok
}

// Experts lists the configured experts canonically.
func (c WeightConfig) Experts() []model.ExpertID {
	return append([]model.ExpertID(nil), c.order...)
}

// Table returns a copy of the configured weights.
func (c WeightConfig) Table() map[model.ExpertID]float64 {
	out := make(map[model.ExpertID]float64, len(c.weights))
	for id, v := range c.weights {
		out[id] = v
	}
	return out
}

// Active redistributes the weights of missing experts proportionally over
// the present ones, so the returned weights sum to 1. Experts in present
// that are not configured are ignored. The result is empty when no
// configured expert is present.
func (c WeightConfig) Active(present []model.ExpertID) map[model.ExpertID]float64 {
	ids := make([]model.ExpertID, 0, len(present))
	for _, id := range present {
		if _, ok := c.weights[id]; ok {
			ids = append(ids, id)
		}
	}
	model.SortExperts(ids)

	total := 0.0
	for _, id := range ids {
		total += c.weights[id]
	}
	active := make(map[model.ExpertID]float64, len(ids))
	if total == 0 {
		return active
	}
	for _, id := range ids {
		active[id] = c.weights[id] / total
	}
	return active
}

// Combination is the outcome of the weighted combination step.
type Combination struct {
	// Base is the clamped weighted sum.
	Base float64
	// Active holds the redistributed weights actually applied.
	Active map[model.ExpertID]float64
	// Contributions holds weight × score per expert.
	Contributions map[model.ExpertID]float64
}

// Combine computes the base score Σ(wᵢ × scoreᵢ) over the present experts
// using redistributed weights, clamped to [0,100]. Summation follows the
// canonical expert order so identical inputs give bit-identical output.
func Combine(scores map[model.ExpertID]float64, cfg WeightConfig) (Combination, error) {
	present := make([]model.ExpertID, 0, len(scores))
	for id := range scores {
		present = append(present, id)
	}
	active := cfg.Active(present)
	if len(active) == 0 {
		return Combination{}, fmt.Errorf("%w: no configured expert present", model.ErrDataInsufficient)
	}

	ids := make([]model.ExpertID, 0, len(active))
	for id := range active {
		ids = append(ids, id)
	}
	model.SortExperts(ids)

	comb := Combination{
		Active:        active,
		Contributions: make(map[model.ExpertID]float64, len(ids)),
	}
	sum := 0.0
	for _, id := range ids {
		contribution := active[id] * scores[id]
		comb.Contributions[id] = contribution
		sum += contribution
	}
	comb.Base = Clamp(sum)
	return comb, nil
}
