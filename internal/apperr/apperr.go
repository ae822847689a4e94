// Package apperr defines the service-wide error taxonomy and its mapping
// to HTTP status codes at the transport boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation policy decisions.
type Kind int

const (
	// KindUnknown is the zero value; treated as an internal error.
	KindUnknown Kind = iota
	// KindAuth covers missing, malformed, or rejected credentials.
	KindAuth
	// KindRate indicates a full rate-limit window.
	KindRate
	// KindInput covers malformed or missing request fields.
	KindInput
	// KindNotFound indicates an unknown resource id.
	KindNotFound
	// KindUpstream covers LLM, embedding, redaction, and vector store failures.
	KindUpstream
	// KindPersistence covers relational constraint or I/O errors.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindRate:
		return "rate_limit"
	case KindInput:
		return "input"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error is a classified error. Field names a specific offending input
// field where that is meaningful (KindInput).
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a classified error.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Ef constructs a classified error with a formatted message.
func Ef(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Field constructs an error naming the offending input field.
func Field(kind Kind, field, msg string) *Error {
	return &Error{Kind: kind, Field: field, Msg: msg}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from an error chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps a Kind to the HTTP status used at the boundary.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindRate:
		return http.StatusTooManyRequests
	case KindInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	case KindPersistence:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
