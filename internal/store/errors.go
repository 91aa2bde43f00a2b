package store

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// Error wraps a backend failure. Temporary marks failures worth retrying,
// such as a dropped connection or a serialization conflict.
type Error struct {
	Op        string
	Err       error
	Temporary bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Retryable() bool {
	return e.Temporary
}

// Wrap turns a backend error into *Error. ErrNotFound and nil pass through.
func Wrap(op string, err error, temporary bool) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var sErr *Error
	if errors.As(err, &sErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		temporary = true
	}
	return &Error{Op: op, Err: err, Temporary: temporary}
}

// IsRetryable reports whether err is a store failure that may succeed if
// the operation is repeated.
func IsRetryable(err error) bool {
	var sErr *Error
	return errors.As(err, &sErr) && sErr.Retryable()
}
