package utils

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument marks programmer errors: malformed parameters that must
// surface immediately instead of degrading to empty results.
var ErrInvalidArgument = errors.New("invalid argument")

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// InvalidArgument reports a programmer error for op.
func InvalidArgument(op, msg string) error {
	return &AppError{Op: op, Msg: msg, Err: ErrInvalidArgument}
}

// IsInvalidArgument reports whether err is (or wraps) a programmer error.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// ErrNotConfigured marks a collaborator that was never wired, such as a store
// without an endpoint. Callers surface it as "unavailable".
var ErrNotConfigured = errors.New("not configured")

// NotConfigured reports that component is missing for op.
func NotConfigured(op, component string) error {
	return &AppError{Op: op, Msg: component + " not configured", Err: ErrNotConfigured}
}

// IsNotConfigured reports whether err is (or wraps) ErrNotConfigured.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
