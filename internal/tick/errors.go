package tick

import (
	"errors"
	"fmt"
)

// RoutineError reports a routine entry that could not run or be scheduled.
//
// Routine errors are fatal to one entry only: the scheduler logs them and
// skips the entry for the current step.
type RoutineError struct {
	// Code identifies the error category.
	Code RoutineErrorCode

	// Message is a human-readable description.
	Message string

	// Effect identifies the owning effect.
	Effect string

	// Ticker identifies the ticker within the effect.
	Ticker string
}

// RoutineErrorCode categorizes routine errors.
type RoutineErrorCode string

const (
	// ErrCodeUnknownTicker indicates a scheduled entry whose ticker cannot be resolved.
	ErrCodeUnknownTicker RoutineErrorCode = "UNKNOWN_TICKER"

	// ErrCodeInvalidInterval indicates a non-positive interval.
	ErrCodeInvalidInterval RoutineErrorCode = "INVALID_INTERVAL"
)

// Error implements the error interface.
func (e *RoutineError) Error() string {
	return fmt.Sprintf("%s: %s (effect=%s, ticker=%s)", e.Code, e.Message, e.Effect, e.Ticker)
}

// IsUnknownTicker returns true if the error reports an unresolvable ticker.
// Uses errors.As to handle wrapped errors.
func IsUnknownTicker(err error) bool {
	var re *RoutineError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownTicker
	}
	return false
}

// IsInvalidInterval returns true if the error reports a non-positive interval.
// Uses errors.As to handle wrapped errors.
func IsInvalidInterval(err error) bool {
	var re *RoutineError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidInterval
	}
	return false
}
