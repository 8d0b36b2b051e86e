package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the lifecycle service.
var (
	ErrNotFound             = errors.New("booking not found")
	ErrGuardViolation       = errors.New("guard violation")
	ErrStaleState           = errors.New("stale booking state")
	ErrInvalidBookingID     = errors.New("invalid booking id")
	ErrInvalidCustomerID    = errors.New("invalid customer id")
	ErrInvalidDriverID      = errors.New("invalid driver id")
	ErrInvalidBookingType   = errors.New("invalid booking type")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
	ErrInvalidPaymentStatus = errors.New("invalid payment status")
	ErrInvalidRideType      = errors.New("invalid ride type")
	ErrInvalidAmountCents   = errors.New("invalid amount cents")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// GuardError reports a transition precondition that was not met. It is never
// retried automatically; the caller surfaces the named precondition.
type GuardError struct {
	Precondition string
	Detail       string
}

// Error returns the formatted guard message.
func (guardError GuardError) Error() string {
	if guardError.Detail == "" {
		return fmt.Sprintf("guard violation: %s", guardError.Precondition)
	}
	return fmt.Sprintf("guard violation: %s: %s", guardError.Precondition, guardError.Detail)
}

// Is matches GuardError against ErrGuardViolation.
func (guardError GuardError) Is(target error) bool {
	return target == ErrGuardViolation
}

// RaceError reports a conditional update that affected zero rows. CurrentStatus
// carries the re-read status so the caller can retry against the new state.
type RaceError struct {
	CurrentStatus BookingStatus
}

// Error returns the formatted race message.
func (raceError RaceError) Error() string {
	return fmt.Sprintf("stale booking state: booking is now %s", raceError.CurrentStatus)
}

// Is matches RaceError against ErrStaleState.
func (raceError RaceError) Is(target error) bool {
	return target == ErrStaleState
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
