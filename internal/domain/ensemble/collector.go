// Package ensemble combines expert risk scores into a single explainable
// decision. Every function in this package is pure and safe for concurrent
// use; the only state an Engine holds is its validated configuration.
package ensemble

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/riskgate/internal/domain/model"
)

// Score bounds.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// Collected is the normalized view of one assessment's expert scores.
type Collected struct {
	// Scores holds the usable, clamped scores keyed by expert.
	Scores map[model.ExpertID]model.ExpertScore
	// Order lists the present experts canonically.
	Order []model.ExpertID
	// Diagnostics records every clamp or drop performed.
	Diagnostics []model.Diagnostic
	// AssessedAt is the latest ComputedAt among present experts.
	AssessedAt time.Time
}

// Values returns the clamped scores as plain numbers.
func (c *Collected) Values() map[model.ExpertID]float64 {
	out := make(map[model.ExpertID]float64, len(c.Scores))
	for id, s := range c.Scores {
		out[id] = s.Score
	}
	return out
}

// Collect validates and normalizes the scores of one input against the
// configured experts. Out-of-range scores are clamped and flagged, unknown
// experts and NaN scores are dropped and flagged. It fails with
// model.ErrDataInsufficient when nothing usable remains.
func Collect(in model.EnsembleInput, weights WeightConfig) (Collected, error) {
	c := Collected{Scores: make(map[model.ExpertID]model.ExpertScore, len(in.Scores))}

	ids := make([]model.ExpertID, 0, len(in.Scores))
	for id := range in.Scores {
		ids = append(ids, id)
	}
	model.SortExperts(ids)

	for _, id := range ids {
		s := in.Scores[id]
		s.ExpertID = id

		if _, ok := weights.Weight(id); !ok {
			c.Diagnostics = append(c.Diagnostics, model.Diagnostic{
				Kind:    model.DiagnosticUnknownExpert,
				Expert:  id,
				Message: "expert is not configured; score ignored",
			})
			continue
		}

		if math.IsNaN(s.Score) {
			c.Diagnostics = append(c.Diagnostics, model.Diagnostic{
				Kind:    model.DiagnosticInvalidScore,
				Expert:  id,
				Message: fmt.Errorf("%w: NaN; expert treated as missing", model.ErrInvalidScore).Error(),
			})
			continue
		}
		if s.Score < MinScore || s.Score > MaxScore {
			clamped := Clamp(s.Score)
			c.Diagnostics = append(c.Diagnostics, model.Diagnostic{
				Kind:    model.DiagnosticInvalidScore,
				Expert:  id,
				Message: fmt.Errorf("%w: %g clamped to %g", model.ErrInvalidScore, s.Score, clamped).Error(),
			})
			s.Score = clamped
		}

		if s.Confidence != nil {
			conf := *s.Confidence
			switch {
			case math.IsNaN(conf):
				c.Diagnostics = append(c.Diagnostics, model.Diagnostic{
					Kind:    model.DiagnosticInvalidConfidence,
					Expert:  id,
					Message: "confidence is NaN; ignored",
				})
				s.Confidence = nil
			case conf < 0 || conf > 1:
				clamped := math.Max(0, math.Min(1, conf))
				c.Diagnostics = append(c.Diagnostics, model.Diagnostic{
					Kind:    model.DiagnosticInvalidConfidence,
					Expert:  id,
					Message: fmt.Sprintf("confidence %g clamped to %g", conf, clamped),
				})
				s.Confidence = &clamped
			default:
				// Copy so the result never aliases caller memory.
				s.Confidence = &conf
			}
		}

		if s.ComputedAt.After(c.AssessedAt) {
			c.AssessedAt = s.ComputedAt
		}
		c.Scores[id] = s
		c.Order = append(c.Order, id)
	}

	if len(c.Order) == 0 {
		return Collected{}, fmt.Errorf("%w: no expert produced a usable score", model.ErrDataInsufficient)
	}
	return c, nil
}

// Clamp bounds x to [MinScore, MaxScore]. Infinities clamp to the nearest bound.
func Clamp(x float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, x))
}
