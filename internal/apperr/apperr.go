package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP boundary. Every domain failure is
// raised with a Kind and a stable machine-readable code at the point of
// detection; the HTTP layer owns the mapping to status codes.
type Kind int

const (
	Internal Kind = iota
	Validation
	Authentication
	Authorization
	NotFound
	Conflict
	RateLimit
	Delivery
)

type Error struct {
	Kind    Kind
	Code    string
	Message string

	// RetryAfter carries the wait in whole seconds for RateLimit errors.
	RetryAfter int

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf extracts the Kind from err, or Internal when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
