package engine

import (
	"errors"
	"fmt"
)

// EvalErrorCode categorizes evaluation failures.
type EvalErrorCode string

const (
	// ErrCodeInitFailed indicates the binder could not be constructed or the
	// affinity looper refused to start the receivers.
	ErrCodeInitFailed EvalErrorCode = "INIT_FAILED"

	// ErrCodeBindFailed indicates a dynamic field could not be bound.
	ErrCodeBindFailed EvalErrorCode = "BIND_FAILED"
)

// ErrLooperClosed is returned when work is submitted to a closed Looper.
var ErrLooperClosed = errors.New("looper closed")

// EvalError is a terminal failure of a subscription. Invalid data is not an
// error; it flows as ir.InvalidRecord.
type EvalError struct {
	Code EvalErrorCode

	Message string

	// SessionID identifies the failing subscription, if known.
	SessionID string

	// Field names the dynamic field that failed to bind.
	Field string

	Err error
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field=%s)", e.Field)
	}
	if e.SessionID != "" {
		msg += fmt.Sprintf(" (session=%s)", e.SessionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *EvalError) Unwrap() error {
	return e.Err
}

// IsInitError reports whether err is an initialization or binding failure.
// Uses errors.As to handle wrapped errors.
func IsInitError(err error) bool {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeInitFailed || ee.Code == ErrCodeBindFailed
	}
	return false
}
