package trend

import (
	"errors"
	"fmt"

	"github.com/okian/riskgate/internal/domain/model"
)

var (
	// ErrConcurrencyConflict means the driver's history could not be acquired
	// within the retry budget.
	ErrConcurrencyConflict = model.ErrConcurrencyConflict
	// ErrInvalidConfig wraps model.ErrConfig for trend parameter failures.
	ErrInvalidConfig = fmt.Errorf("%w: invalid trend parameters", model.ErrConfig)
	// ErrBusy marks a store error that may clear on retry. Stores wrap it
	// when a driver's series could not be acquired in time.
	ErrBusy = errors.New("driver history busy")
	// ErrNilStore is returned when the tracker is built without a store.
	ErrNilStore = errors.New("trend: history store is nil")
)
