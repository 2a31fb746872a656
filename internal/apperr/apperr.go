// Package apperr defines the error taxonomy shared by services, middleware
// and the HTTP layer. Callers should use errors.As / apperr.KindOf to match
// against a Kind rather than comparing messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure. Every user-visible failure carries exactly one
// Kind and a human-readable message.
type Kind int

const (
	// KindInternal is a misconfiguration or unexpected failure.
	KindInternal Kind = iota
	// KindBadRequest is malformed, oversized or misclassified input.
	KindBadRequest
	// KindUnauthorized is a missing, invalid or expired credential.
	KindUnauthorized
	// KindForbidden is a valid credential with insufficient privilege or an
	// inactive account.
	KindForbidden
	// KindNotFound is a referenced entity that does not exist.
	KindNotFound
	// KindConflict is a uniqueness violation.
	KindConflict
)

// Error is the taxonomy-carrying error type.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes two taxonomy errors with the same Kind match under errors.Is,
// regardless of message. Used by tests and by callers that only care about
// the class of failure.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Message == "" || t.Message == e.Message)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// BadRequest builds a client-fixable input error.
func BadRequest(format string, args ...any) *Error {
	return newError(KindBadRequest, format, args...)
}

// Unauthorized builds a credential error.
func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

// Forbidden builds an insufficient-privilege error.
func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

// NotFound builds a missing-entity error.
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// Conflict builds a uniqueness-violation error.
func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// Internal builds an unexpected-failure error.
func Internal(format string, args ...any) *Error {
	return newError(KindInternal, format, args...)
}

// Wrap attaches an underlying cause to an internal error without exposing it
// in the user-visible message.
func Wrap(err error, format string, args ...any) *Error {
	e := newError(KindInternal, format, args...)
	e.Err = err
	return e
}

// KindOf extracts the Kind from err, or KindInternal when err does not carry
// one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps the Kind carried by err onto its HTTP status code. Errors
// without a Kind map to 500.
func Status(err error) int {
	switch KindOf(err) {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// MessageOf extracts the safe, user-visible message from err. Non-taxonomy
// errors yield an empty string so internals never leak to clients.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
