package trend

import (
	"time"

	"github.com/okian/riskgate/pkg/logger"
)

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithLogger sets a custom logger for the tracker.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// WithDeduper makes Observe skip history appends for driver/trip pairs
// already recorded.
func WithDeduper(d Deduper) Option {
	return func(t *Tracker) {
		t.dedupe = d
	}
}

// WithRetry sets the lock acquisition budget: attempts tries, each waiting at
// most lockWait for the driver's lock, sleeping backoff (doubling) between
// tries. Non-positive values keep the defaults.
func WithRetry(attempts int, backoff, lockWait time.Duration) Option {
	return func(t *Tracker) {
		if attempts > 0 {
			t.attempts = attempts
		}
		if backoff > 0 {
			t.backoff = backoff
		}
		if lockWait > 0 {
			t.lockWait = lockWait
		}
	}
}
