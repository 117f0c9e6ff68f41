package dispatch

import (
	"errors"
	"fmt"
)

// RegistrationError reports a listener that could not be registered.
type RegistrationError struct {
	// Code identifies the error category.
	Code RegistrationErrorCode

	// Message is a human-readable description.
	Message string

	// Listener names the listener being registered.
	Listener string

	// Event names the declared external event type.
	Event string
}

// RegistrationErrorCode categorizes registration errors.
type RegistrationErrorCode string

const (
	// ErrCodeUnknownEvent indicates no resolver exists for the event type.
	ErrCodeUnknownEvent RegistrationErrorCode = "UNKNOWN_EVENT"

	// ErrCodeInvalidListener indicates a listener without a name or handler.
	ErrCodeInvalidListener RegistrationErrorCode = "INVALID_LISTENER"
)

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("%s: %s (listener=%s, event=%s)", e.Code, e.Message, e.Listener, e.Event)
	}
	return fmt.Sprintf("%s: %s (listener=%s)", e.Code, e.Message, e.Listener)
}

// IsUnknownEvent returns true if the error reports an unknown event type.
// Uses errors.As to handle wrapped errors.
func IsUnknownEvent(err error) bool {
	var re *RegistrationError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownEvent
	}
	return false
}

func newUnknownEventError(listener, event string) *RegistrationError {
	return &RegistrationError{
		Code:     ErrCodeUnknownEvent,
		Message:  "no resolver registered for event type",
		Listener: listener,
		Event:    event,
	}
}

func newInvalidListenerError(listener, message string) *RegistrationError {
	return &RegistrationError{
		Code:     ErrCodeInvalidListener,
		Message:  message,
		Listener: listener,
	}
}
