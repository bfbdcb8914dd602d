package sdk

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fleetcloud.sh/internal/ferrors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrTokenExpired     = errors.New("authentication token expired")
)

// Error represents an API error response
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}
	return nil
}

// NotFoundError is returned when a lookup matches nothing
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AmbiguousError is returned when a lookup matches more than one record
type AmbiguousError struct {
	Resource string
	Key      string
	Matches  []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s %q is ambiguous, it matches: %s", e.Resource, e.Key, strings.Join(e.Matches, ", "))
}

// IsNotFound reports whether err means the requested record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// LookupError turns a lookup miss into an expected error carrying the given
// message, and an ambiguous match into one listing the matches. Other errors
// are returned unchanged.
func LookupError(err error, format string, args ...any) error {
	var amb *AmbiguousError
	switch {
	case IsNotFound(err):
		return ferrors.ExpectedFrom(err, format, args...)
	case errors.As(err, &amb):
		return ferrors.ExpectedFrom(err, "%s", amb.Error())
	}
	return err
}
