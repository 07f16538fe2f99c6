// Package errs holds the user-facing error wrapper and the error taxonomy
// shared by providers, the registry, the bridge, sessions and runs.
package errs

import (
	"errors"
	"fmt"
)

// UserErrorf formats a hint shown to the user under a reason. Hints are
// sentences, so they may start with a capital letter.
func UserErrorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

// Error pairs an underlying error with a short, actionable reason for the
// user. Error() reports Err, or Reason when Err is nil.
type Error struct {
	Err    error
	Reason string
}

// Wrap attaches reason to err.
func Wrap(err error, reason string) Error {
	return Error{Err: err, Reason: reason}
}

// Wrapf attaches a formatted reason to err.
func Wrapf(err error, format string, a ...any) Error {
	return Wrap(err, fmt.Sprintf(format, a...))
}

func (e Error) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Err.Error()
}

func (e Error) Unwrap() error { return e.Err }

// ReasonText returns the user-facing reason.
func (e Error) ReasonText() string { return e.Reason }

// Reason returns the outermost user-facing reason in err's chain, falling
// back to the error text.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var e Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return err.Error()
}
