package ensemble

import (
	"context"
	"fmt"

	"github.com/okian/riskgate/internal/domain/model"
)

// Config holds the raw configuration tables. It is validated once by NewEngine.
type Config struct {
	Weights      map[model.ExpertID]float64
	Interactions []Pair
	Tiers        []Tier
}

// DefaultConfig returns the built-in tables.
func DefaultConfig() Config {
	return Config{
		Weights:      DefaultWeights(),
		Interactions: DefaultInteractions(),
		Tiers:        DefaultTiers(),
	}
}

// TrendObserver records a result summary in driver history and returns the
// trend that includes it.
type TrendObserver interface {
	Observe(ctx context.Context, driverID string, point model.HistoryPoint) (model.TrendSnapshot, error)
}

// Advisor derives recommendations from a finished result.
type Advisor interface {
	Advise(r *model.EnsembleResult) []string
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithTrendObserver attaches per-driver trend tracking.
func WithTrendObserver(t TrendObserver) Option {
	return func(e *Engine) {
		if t != nil {
			e.trend = t
		}
	}
}

// WithAdvisor attaches recommendation rules.
func WithAdvisor(a Advisor) Option {
	return func(e *Engine) {
		if a != nil {
			e.advisor = a
		}
	}
}

// Engine runs the full gating pipeline: collect, combine, interact,
// classify, track and explain.
type Engine struct {
	weights WeightConfig
	matrix  InteractionMatrix
	tiers   TierTable

	trend   TrendObserver
	advisor Advisor
}

// NewEngine validates cfg once and returns an engine ready to serve. Any
// validation failure wraps model.ErrConfig.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	weights, err := NewWeightConfig(cfg.Weights)
	if err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}
	matrix, err := NewInteractionMatrix(cfg.Interactions, weights)
	if err != nil {
		return nil, fmt.Errorf("interactions: %w", err)
	}
	tiers, err := NewTierTable(cfg.Tiers)
	if err != nil {
		return nil, fmt.Errorf("tiers: %w", err)
	}

	e := &Engine{weights: weights, matrix: matrix, tiers: tiers}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Weights returns the validated weight table.
func (e *Engine) Weights() WeightConfig { return e.weights }

// Interactions returns the validated interaction matrix.
func (e *Engine) Interactions() InteractionMatrix { return e.matrix }

// Tiers returns the validated tier table.
func (e *Engine) Tiers() TierTable { return e.tiers }

// Evaluate computes the decision for in without touching driver history.
// It is a pure function of in and the engine configuration.
func (e *Engine) Evaluate(in model.EnsembleInput) (model.EnsembleResult, error) {
	collected, err := Collect(in, e.weights)
	if err != nil {
		return model.EnsembleResult{}, err
	}
	values := collected.Values()

	comb, err := Combine(values, e.weights)
	if err != nil {
		return model.EnsembleResult{}, err
	}
	terms, interaction := e.matrix.Analyze(values)

	// Combine clamps the base; the clamp factor covers both clamping steps
	// relative to the raw weighted sum.
	raw := 0.0
	for _, id := range collected.Order {
		raw += comb.Contributions[id]
	}
	final := Clamp(comb.Base + interaction)
	clampAdjustment := final - (raw + interaction)

	tier, _ := e.tiers.Classify(final)

	return model.EnsembleResult{
		DriverID:             in.DriverID,
		TripID:               in.TripID,
		AssessedAt:           collected.AssessedAt,
		FinalScore:           final,
		SafetyScore:          MaxScore - final,
		BaseScore:            comb.Base,
		ExpertScores:         values,
		InteractionTotal:     interaction,
		Tier:                 tier.Name,
		PremiumAdjustmentPct: tier.AdjustmentPct,
		ContributingFactors:  Explain(comb.Contributions, terms, clampAdjustment),
		ActiveWeights:        comb.Active,
		Interactions:         terms,
		Confidence:           AggregateConfidence(&collected, comb.Active),
		Premium:              Quote(in.BasePremium, tier),
		Improvement:          e.tiers.Improvement(final),
		Diagnostics:          collected.Diagnostics,
		Trend:                model.TrendSnapshot{Direction: model.TrendInsufficientData},
	}, nil
}

// Assess evaluates in, records it in the driver's history and attaches the
// resulting trend and recommendations. Cancellation is honoured only before
// evaluation starts; once started the assessment runs to completion.
func (e *Engine) Assess(ctx context.Context, in model.EnsembleInput) (model.EnsembleResult, error) {
	if err := ctx.Err(); err != nil {
		return model.EnsembleResult{}, fmt.Errorf("assessment not started: %w", err)
	}
	if in.DriverID == "" {
		return model.EnsembleResult{}, fmt.Errorf("%w: driver id is required", ErrInvalidInput)
	}

	result, err := e.Evaluate(in)
	if err != nil {
		return model.EnsembleResult{}, err
	}

	if e.trend != nil {
		snap, err := e.trend.Observe(context.WithoutCancel(ctx), in.DriverID, result.Summary())
		if err != nil {
			return model.EnsembleResult{}, err
		}
		result.Trend = snap
	}
	if e.advisor != nil {
		result.Recommendations = e.advisor.Advise(&result)
	}
	return result, nil
}
