package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the booking core. Callers match with errors.Is.
var (
	// ErrSeatUnavailable means the reservation race was lost or the
	// selection is stale. The user should pick different seats.
	ErrSeatUnavailable = errors.New("one or more selected seats are no longer available")

	// ErrNotAuthenticated means no user identity was supplied
	ErrNotAuthenticated = errors.New("user not authenticated")

	// ErrStoreUnavailable means the backing store could not be reached.
	// Soft-degradable only for the payments table.
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// ErrBookingNotFound means the booking id does not exist or is not
	// visible to the caller
	ErrBookingNotFound = errors.New("booking not found")

	// ErrRouteNotFound means the route id is unknown
	ErrRouteNotFound = errors.New("route not found")

	// ErrBookingCancelled means the booking was already cancelled;
	// cancellation is terminal
	ErrBookingCancelled = errors.New("booking is already cancelled")
)

// ValidationError reports a malformed request field, surfaced before
// any write happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransactionError wraps an error that triggered a saga rollback,
// recording the step that failed. Compensation has already run by the
// time the caller sees it.
type TransactionError struct {
	Step string
	Err  error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("booking transaction failed at %s: %v", e.Step, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
