package trend

import (
	"math"
	"time"

	"github.com/okian/riskgate/internal/domain/model"
)

// fullConfidenceSamples is the history length at which trend confidence
// saturates at 1.
const fullConfidenceSamples = 10

// recencyWeights returns 2^(-age/halfLife) per point, with age measured from
// the newest point's timestamp. Points dated after the newest count as age 0.
func recencyWeights(points []model.HistoryPoint, halfLife time.Duration) []float64 {
	w := make([]float64, len(points))
	if len(points) == 0 {
		return w
	}
	newest := points[len(points)-1].At
	for i, p := range points {
		age := newest.Sub(p.At)
		if age < 0 {
			age = 0
		}
		w[i] = math.Exp2(-float64(age) / float64(halfLife))
	}
	return w
}

// Slope fits score against assessment index by weighted least squares,
// weighting recent points more. It returns 0 for fewer than two points or
// a degenerate fit.
func Slope(points []model.HistoryPoint, halfLife time.Duration) float64 {
	if len(points) < 2 {
		return 0
	}
	w := recencyWeights(points, halfLife)

	var sw, sx, sy float64
	for i, p := range points {
		sw += w[i]
		sx += w[i] * float64(i)
		sy += w[i] * p.Score
	}
	if sw == 0 {
		return 0
	}
	mx, my := sx/sw, sy/sw

	var num, den float64
	for i, p := range points {
		dx := float64(i) - mx
		num += w[i] * dx * (p.Score - my)
		den += w[i] * dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Classify computes the trend snapshot of points, oldest first. It is a pure
// function of its arguments.
func Classify(points []model.HistoryPoint, cfg Config) model.TrendSnapshot {
	n := len(points)
	snap := model.TrendSnapshot{
		Direction:  model.TrendInsufficientData,
		WindowSize: n,
		Confidence: math.Min(1, float64(n)/fullConfidenceSamples),
	}
	if n == 0 {
		return snap
	}

	snap.Current = points[n-1].Score
	for _, p := range points {
		snap.Mean += p.Score
	}
	snap.Mean /= float64(n)
	for _, p := range points {
		d := p.Score - snap.Mean
		snap.Variance += d * d
	}
	snap.Variance /= float64(n)

	if n < cfg.MinHistory {
		return snap
	}

	// Risk-oriented scores: a rising slope is a degrading driver.
	snap.Slope = Slope(points, cfg.HalfLife)
	switch {
	case snap.Slope > cfg.SlopeThreshold:
		snap.Direction = model.TrendDegrading
	case snap.Slope < -cfg.SlopeThreshold:
		snap.Direction = model.TrendImproving
	default:
		snap.Direction = model.TrendStable
	}
	return snap
}
