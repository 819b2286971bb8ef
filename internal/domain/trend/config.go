package trend

import (
	"fmt"
	"math"
	"time"
)

// Config holds the trend classification parameters.
type Config struct {
	// WindowSize is the maximum number of points kept per driver.
	WindowSize int
	// MinHistory is the number of points required before classifying.
	MinHistory int
	// SlopeThreshold is the symmetric dead band, in score points per
	// assessment, inside which a trend is STABLE.
	SlopeThreshold float64
	// HalfLife is the age at which a point weighs half as much as the newest.
	HalfLife time.Duration
}

// DefaultConfig returns the built-in trend parameters. With a threshold of
// 2.0 a history that rises or falls by less than two points per assessment
// is STABLE even when strictly monotone; set SlopeThreshold to 0 to classify
// every monotone series.
func DefaultConfig() Config {
	return Config{
		WindowSize:     20,
		MinHistory:     3,
		SlopeThreshold: 2.0,
		HalfLife:       720 * time.Hour,
	}
}

// Validate checks the parameters. Failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.WindowSize < 1:
		return fmt.Errorf("%w: window size must be at least 1, got %d", ErrInvalidConfig, c.WindowSize)
	case c.MinHistory < 2:
		return fmt.Errorf("%w: minimum history must be at least 2, got %d", ErrInvalidConfig, c.MinHistory)
	case c.MinHistory > c.WindowSize:
		return fmt.Errorf("%w: minimum history %d exceeds window size %d", ErrInvalidConfig, c.MinHistory, c.WindowSize)
	case math.IsNaN(c.SlopeThreshold) || math.IsInf(c.SlopeThreshold, 0) || c.SlopeThreshold < 0:
		return fmt.Errorf("%w: slope threshold must be finite and non-negative, got %g", ErrInvalidConfig, c.SlopeThreshold)
	case c.HalfLife <= 0:
		return fmt.Errorf("%w: half-life must be positive, got %s", ErrInvalidConfig, c.HalfLife)
	}
	return nil
}
