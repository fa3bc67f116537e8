// Package common defines shared constants and sentinel errors used across
// the server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorBadRequest   = errors.New("bad request")
	ErrRateLimited    = errors.New("too many requests")

	// Credential hashing failed or the stored hash is malformed.
	ErrHashing = errors.New("hashing error")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Error is a domain error carrying a message that is safe to show to the
// caller. Kind is one of the sentinels above and is what errors.Is matches.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func NotFound(msg string) error     { return newError(ErrorNotFound, msg) }
func Conflict(msg string) error     { return newError(ErrorConflict, msg) }
func Unauthorized(msg string) error { return newError(ErrorUnauthorized, msg) }
func Forbidden(msg string) error    { return newError(ErrorForbidden, msg) }
func BadRequest(msg string) error   { return newError(ErrorBadRequest, msg) }

// Message returns the user-facing message of err. Errors that are not
// domain errors yield fallback, so internal details never leak.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return fallback
}
