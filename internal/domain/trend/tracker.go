// Package trend maintains bounded per-driver score history and classifies
// its trajectory. It is the only stateful part of the assessment pipeline;
// state lives in an injected Store keyed by driver.
package trend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/riskgate/internal/domain/model"
	"github.com/okian/riskgate/pkg/logger"
)

// Default lock acquisition budget.
const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 5 * time.Millisecond
	DefaultLockWait      = 50 * time.Millisecond
)

// Store owns per-driver history. Implementations serialise calls per driver
// and let different drivers proceed in parallel. Errors wrapping ErrBusy
// are retried; any other error is returned to the caller unchanged.
type Store interface {
	// Update runs fn with exclusive access to driverID's series, creating an
	// empty series of the given capacity when none exists.
	Update(ctx context.Context, driverID string, capacity int, wait time.Duration, fn func(*model.HistorySeries)) error
	// View runs fn with exclusive access to driverID's series. fn receives
	// nil when the driver has no history.
	View(ctx context.Context, driverID string, wait time.Duration, fn func(*model.HistorySeries)) error
}

// Deduper remembers recorded driver/trip pairs.
type Deduper interface {
	SeenAndRecord(ctx context.Context, id string) bool
	Unrecord(ctx context.Context, id string)
}

// Tracker records assessment summaries and classifies driver trends.
type Tracker struct {
	cfg    Config
	store  Store
	dedupe Deduper
	log    logger.Logger

	attempts int
	backoff  time.Duration
	lockWait time.Duration
}

// New validates cfg and returns a tracker over store.
func New(store Store, cfg Config, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Tracker{
		cfg:      cfg,
		store:    store,
		log:      logger.Get().Named("trend"),
		attempts: DefaultRetryAttempts,
		backoff:  DefaultRetryBackoff,
		lockWait: DefaultLockWait,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Config returns the tracker parameters.
func (t *Tracker) Config() Config { return t.cfg }

// Record appends p to the driver's history, evicting the oldest point once
// the window is full.
func (t *Tracker) Record(ctx context.Context, driverID string, p model.HistoryPoint) error {
	return t.withRetry(ctx, driverID, func(ctx context.Context) error {
		return t.store.Update(ctx, driverID, t.cfg.WindowSize, t.lockWait, func(s *model.HistorySeries) {
			s.Append(p)
		})
	})
}

// Classify returns the current trend of driverID. Unknown drivers are
// INSUFFICIENT_DATA.
func (t *Tracker) Classify(ctx context.Context, driverID string) (model.TrendSnapshot, error) {
	var snap model.TrendSnapshot
	err := t.withRetry(ctx, driverID, func(ctx context.Context) error {
		return t.store.View(ctx, driverID, t.lockWait, func(s *model.HistorySeries) {
			snap = Classify(s.Points(), t.cfg)
		})
	})
	if err != nil {
		return model.TrendSnapshot{}, err
	}
	return snap, nil
}

// Observe records p and classifies the resulting history under a single
// acquisition of the driver's series, so the snapshot always includes p.
// With a deduper attached, a trip already recorded for the driver is only
// classified.
func (t *Tracker) Observe(ctx context.Context, driverID string, p model.HistoryPoint) (model.TrendSnapshot, error) {
	if t.dedupe != nil && p.TripID != "" {
		key := tripKey(driverID, p.TripID)
		if t.dedupe.SeenAndRecord(ctx, key) {
			t.log.Debug(ctx, "trip already recorded; classifying only",
				logger.String("driver_id", driverID),
				logger.String("trip_id", p.TripID))
			return t.Classify(ctx, driverID)
		}
		snap, err := t.observe(ctx, driverID, p)
		if err != nil {
			t.dedupe.Unrecord(ctx, key)
		}
		return snap, err
	}
	return t.observe(ctx, driverID, p)
}

// tripKey is unambiguous for ids containing the separator.
func tripKey(driverID, tripID string) string {
	return strconv.Itoa(len(driverID)) + ":" + driverID + "/" + tripID
}

func (t *Tracker) observe(ctx context.Context, driverID string, p model.HistoryPoint) (model.TrendSnapshot, error) {
	var snap model.TrendSnapshot
	err := t.withRetry(ctx, driverID, func(ctx context.Context) error {
		return t.store.Update(ctx, driverID, t.cfg.WindowSize, t.lockWait, func(s *model.HistorySeries) {
			s.Append(p)
			snap = Classify(s.Points(), t.cfg)
		})
	})
	if err != nil {
		return model.TrendSnapshot{}, err
	}
	return snap, nil
}

// withRetry runs op until it succeeds or the attempt budget is spent,
// sleeping an exponentially growing backoff between attempts. Only ErrBusy
// failures are retried. The caller's
// cancellation is ignored once started; the lock wait bounds every attempt.
func (t *Tracker) withRetry(ctx context.Context, driverID string, op func(context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	delay := t.backoff

	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrBusy) {
			return lastErr
		}
		if attempt == t.attempts {
			break
		}
		t.log.Warn(ctx, "driver history busy; retrying",
			logger.String("driver_id", driverID),
			logger.Int("attempt", attempt),
			logger.Error(lastErr))
		time.Sleep(delay)
		delay *= 2
	}
	return fmt.Errorf("%w: driver %q after %d attempts: %w", ErrConcurrencyConflict, driverID, t.attempts, lastErr)
}
