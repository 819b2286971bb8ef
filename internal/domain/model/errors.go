package model

import "errors"

// Sentinel error kinds shared by the domain packages. These allow errors.Is
// from callers regardless of which component raised them.
var (
	// ErrDataInsufficient means no expert produced a usable score.
	ErrDataInsufficient = errors.New("data insufficient")
	// ErrInvalidInput means a required identifier is missing.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidScore marks a score outside [0,100]. It is recorded, never returned.
	ErrInvalidScore = errors.New("invalid score")
	// ErrConfig means a configuration table failed validation.
	ErrConfig = errors.New("config error")
	// ErrConcurrencyConflict means a driver's history could not be acquired
	// within the retry budget.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
