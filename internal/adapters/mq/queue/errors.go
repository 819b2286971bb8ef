package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrClosed = errors.New("publication queue closed")
	ErrFull   = errors.New("publication queue full")
)
