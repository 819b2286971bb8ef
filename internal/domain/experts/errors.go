package experts

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSignal is matched by every MissingSignalError.
	ErrMissingSignal = errors.New("trip signal missing")
	// ErrDuplicateExpert marks an expert whose identity was already gathered.
	ErrDuplicateExpert = errors.New("duplicate expert")
)

// MissingSignalError names the signal a trip lacked.
type MissingSignalError struct {
	Name string
}

func (e *MissingSignalError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingSignal, e.Name)
}

// Is matches ErrMissingSignal.
func (e *MissingSignalError) Is(target error) bool { return target == ErrMissingSignal }
