package ferrors

import (
	"errors"
	"fmt"
)

// ExpectedError is an error caused by user input or by a missing remote
// resource. It is printed without details or stack information.
type ExpectedError struct {
	Message string
	Cause   error
}

func (e *ExpectedError) Error() string {
	return e.Message
}

func (e *ExpectedError) Unwrap() error {
	return e.Cause
}

// Expected creates a new user-facing error
func Expected(format string, args ...any) error {
	return &ExpectedError{Message: fmt.Sprintf(format, args...)}
}

// ExpectedFrom wraps cause in a user-facing error with its own message
func ExpectedFrom(cause error, format string, args ...any) error {
	return &ExpectedError{Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsExpected reports whether err carries an ExpectedError anywhere in its chain
func IsExpected(err error) bool {
	var expected *ExpectedError
	return errors.As(err, &expected)
}

// Wrap wraps an error with a message
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is checks if an error matches a target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As extracts an error of a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Chain returns the messages of err and every error it wraps, outermost first
func Chain(err error) []string {
	var msgs []string
	for err != nil {
		msgs = append(msgs, err.Error())
		err = errors.Unwrap(err)
	}
	return msgs
}
