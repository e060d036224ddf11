// Package errors provides the closed error-kind taxonomy used across the
// anomaly detection engine. Only Kind Fatal ever unwinds a goroutine; every
// other kind is a local, silently-tolerated outcome reported to the caller.
package errors

import (
	"errors"
	"fmt"
)

// Kind is one of the outcome categories the engine's train/predict/query
// paths can return.
type Kind int

const (
	Success Kind = iota
	TryLockFailed
	ShouldNotTrainNow
	MissingData
	NoData
	NoModel
	StorageError
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case TryLockFailed:
		return "try_lock_failed"
	case ShouldNotTrainNow:
		return "should_not_train_now"
	case MissingData:
		return "missing_data"
	case NoData:
		return "no_data"
	case NoModel:
		return "no_model"
	case StorageError:
		return "storage_error"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and the operation that
// produced it, mirroring the category/op/err shape of a structured error
// type without needing a string category.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given Kind without an underlying cause.
func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a Kind and operation to an existing error. Returns nil if
// err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf wraps err with a formatted message.
func Wrapf(kind Kind, op string, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind extracts the Kind from err, returning Success if err is nil and
// Fatal if err is non-nil but not an *Error (an unrecognized failure is
// treated as unreachable-state territory, not silently downgraded).
func GetKind(err error) Kind {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Fatal
}
