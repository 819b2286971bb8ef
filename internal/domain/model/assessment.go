// Package model contains domain models passed between layers.
package model

import (
	"sort"
	"time"
)

// ExpertID names a risk-scoring expert.
type ExpertID string

// Expert identities known to the engine.
const (
	ExpertBehavior   ExpertID = "behavior"
	ExpertGeographic ExpertID = "geographic"
	ExpertContextual ExpertID = "contextual"
	// ExpertGating denotes the engine itself. It is never accepted as input.
	ExpertGating ExpertID = "gating"
)

// canonicalRank fixes the position of the well-known experts in every
// ordered listing. Unknown identifiers follow in lexicographic order.
var canonicalRank = map[ExpertID]int{ //nolint:gochecknoglobals // read-only lookup table
	ExpertBehavior:   0,
	ExpertGeographic: 1,
	ExpertContextual: 2,
}

// Rank returns the canonical position of id. Identifiers outside the
// well-known set share the same rank and are ordered by name.
func Rank(id ExpertID) int {
	if r, ok := canonicalRank[id]; ok {
		return r
	}
	return len(canonicalRank)
}

// ExpertLess reports whether a sorts before b in canonical order.
func ExpertLess(a, b ExpertID) bool {
	ra, rb := Rank(a), Rank(b)
	if ra != rb {
		return ra < rb
	}
	return a < b
}

// SortExperts orders ids canonically in place.
func SortExperts(ids []ExpertID) {
	sort.Slice(ids, func(i, j int) bool { return ExpertLess(ids[i], ids[j]) })
}

// ExpertScore is a single expert's verdict for one trip. Scores are risk
// oriented: 0 is safest, 100 is riskiest.
type ExpertScore struct {
	ExpertID   ExpertID  `json:"expert_id"`
	Score      float64   `json:"score"`
	Confidence *float64  `json:"confidence,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}

// EnsembleInput is the per-assessment bundle delivered by the expert boundary.
type EnsembleInput struct {
	DriverID string
	TripID   string
	Scores   map[ExpertID]ExpertScore
	// BasePremium is the monthly premium before adjustment. Zero skips quoting.
	BasePremium float64
}

// InteractionTerm is the compounding-risk adjustment for one expert pair.
type InteractionTerm struct {
	A            ExpertID `json:"a"`
	B            ExpertID `json:"b"`
	Coefficient  float64  `json:"coefficient"`
	Contribution float64  `json:"contribution"`
}

// Factor is one ranked entry of a result explanation.
type Factor struct {
	Source    string  `json:"source"`
	Magnitude float64 `json:"magnitude"`
}

// Diagnostic kinds recorded on a result.
const (
	DiagnosticInvalidScore      = "InvalidScore"
	DiagnosticInvalidConfidence = "InvalidConfidence"
	DiagnosticUnknownExpert     = "UnknownExpert"
)

// Diagnostic records a recoverable condition met while assessing.
type Diagnostic struct {
	Kind    string   `json:"kind"`
	Expert  ExpertID `json:"expert"`
	Message string   `json:"message"`
}

// PremiumQuote prices a tier against a monthly base premium.
type PremiumQuote struct {
	BasePremium          float64 `json:"base_premium"`
	AdjustedPremium      float64 `json:"adjusted_premium"`
	MonthlyDelta         float64 `json:"monthly_delta"`
	AnnualSavings        float64 `json:"annual_savings"`
	AdditionalAnnualCost float64 `json:"additional_annual_cost"`
}

// TierImprovement tells a driver how far the next better tier is.
type TierImprovement struct {
	NextTier string `json:"next_tier"`
	// PointsNeeded is how far the score must fall; the score has to end up
	// strictly below the current tier's lower bound.
	PointsNeeded float64 `json:"points_needed"`
}

// EnsembleResult is the explainable decision for one assessment. It is
// immutable once returned and owned by the caller.
type EnsembleResult struct {
	DriverID             string               `json:"driver_id"`
	TripID               string               `json:"trip_id"`
	AssessedAt           time.Time            `json:"assessed_at"`
	FinalScore           float64              `json:"final_score"`
	SafetyScore          float64              `json:"safety_score"`
	BaseScore            float64              `json:"base_score"`
	ExpertScores         map[ExpertID]float64 `json:"expert_scores"`
	InteractionTotal     float64              `json:"interaction_total"`
	Tier                 string               `json:"tier"`
	PremiumAdjustmentPct float64              `json:"premium_adjustment_pct"`
	ContributingFactors  []Factor             `json:"contributing_factors"`
	ActiveWeights        map[ExpertID]float64 `json:"active_weights"`
	Interactions         []InteractionTerm    `json:"interactions,omitempty"`
	Confidence           *float64             `json:"confidence,omitempty"`
	Premium              *PremiumQuote        `json:"premium,omitempty"`
	Improvement          *TierImprovement     `json:"improvement,omitempty"`
	Recommendations      []string             `json:"recommendations,omitempty"`
	Diagnostics          []Diagnostic         `json:"diagnostics,omitempty"`
	Trend                TrendSnapshot        `json:"trend"`
}

// Summary condenses the result into the point kept in driver history.
func (r *EnsembleResult) Summary() HistoryPoint {
	return HistoryPoint{
		TripID: r.TripID,
		Score:  r.FinalScore,
		Tier:   r.Tier,
		At:     r.AssessedAt,
	}
}

// Publication wraps a result for delivery to downstream consumers.
type Publication struct {
	ID          string         `json:"id"`
	PublishedAt time.Time      `json:"published_at"`
	Result      EnsembleResult `json:"result"`
}
