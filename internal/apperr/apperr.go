// Package apperr implements the error taxonomy from spec §7: Transient,
// Data, Configuration, User, and Not-found, each mapped to a stable HTTP
// status and a {"detail": "..."} body.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindTransient
	KindData
	KindConfiguration
	KindUser
	KindNotFound
)

// Error is a classified, user-facing error.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps a Kind to its stable HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindUser:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConfiguration:
		return http.StatusInternalServerError
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindData:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// User builds a 4xx error with a precise field-level reason.
func User(detail string) *Error { return &Error{Kind: KindUser, Detail: detail} }

// NotFound builds a 404 with a structured reason.
func NotFound(detail string) *Error { return &Error{Kind: KindNotFound, Detail: detail} }

// Transient wraps a retryable infrastructure error.
func Transient(detail string, err error) *Error {
	return &Error{Kind: KindTransient, Detail: detail, Err: err}
}

// Data wraps a per-row rejection (malformed payload, constraint violation).
func Data(detail string, err error) *Error {
	return &Error{Kind: KindData, Detail: detail, Err: err}
}

// Configuration wraps a fatal startup error (unreachable store, bad kit
// file) — never a partial start.
func Configuration(detail string, err error) *Error {
	return &Error{Kind: KindConfiguration, Detail: detail, Err: err}
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
