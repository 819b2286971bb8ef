// Package experts defines the scoring capability the engine consumes and
// gathers expert verdicts at the request boundary.
package experts

import (
	"context"
	"time"

	"github.com/okian/riskgate/internal/domain/model"
)

// Trip is the material experts score. Signals carries pre-extracted
// features keyed by name; experts read the ones they understand.
type Trip struct {
	DriverID  string
	TripID    string
	StartedAt time.Time
	Signals   map[string]float64
}

// Expert produces one risk verdict for a trip.
type Expert interface {
	ID() model.ExpertID
	ProduceScore(ctx context.Context, trip Trip) (model.ExpertScore, error)
}

// ScoreFunc computes a risk score in [0,100] and an optional confidence.
type ScoreFunc func(ctx context.Context, trip Trip) (score float64, confidence *float64, err error)

type funcExpert struct {
	id    model.ExpertID
	score ScoreFunc
	now   func() time.Time
}

func (e *funcExpert) ID() model.ExpertID { return e.id }

func (e *funcExpert) ProduceScore(ctx context.Context, trip Trip) (model.ExpertScore, error) {
	score, conf, err := e.score(ctx, trip)
	if err != nil {
		return model.ExpertScore{}, err
	}
	return model.ExpertScore{
		ExpertID:   e.id,
		Score:      score,
		Confidence: conf,
		ComputedAt: e.now(),
	}, nil
}

// New builds an expert with identity id over fn.
func New(id model.ExpertID, fn ScoreFunc) Expert {
	return &funcExpert{id: id, score: fn, now: time.Now}
}

// Behavior builds the driving-behavior expert over fn.
func Behavior(fn ScoreFunc) Expert { return New(model.ExpertBehavior, fn) }

// Geographic builds the location-risk expert over fn.
func Geographic(fn ScoreFunc) Expert { return New(model.ExpertGeographic, fn) }

// Contextual builds the weather and traffic expert over fn.
func Contextual(fn ScoreFunc) Expert { return New(model.ExpertContextual, fn) }

// Signal returns a ScoreFunc reading one pre-computed risk signal from the
// trip. Trips without the signal fail with ErrMissingSignal.
func Signal(name string) ScoreFunc {
	return func(_ context.Context, trip Trip) (float64, *float64, error) {
		v, ok := trip.Signals[name]
		if !ok {
			return 0, nil, &MissingSignalError{Name: name}
		}
		return v, nil, nil
	}
}
