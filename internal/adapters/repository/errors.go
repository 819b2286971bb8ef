package repository

import (
	"errors"
	"fmt"

	"github.com/okian/riskgate/internal/domain/trend"
)

// Sentinel kinds for history store errors. ErrLockTimeout wraps trend.ErrBusy
// so the tracker retries it.
var (
	ErrLockTimeout   = fmt.Errorf("%w: lock timeout", trend.ErrBusy)
	ErrEmptyDriverID = errors.New("driver id is empty")
)
