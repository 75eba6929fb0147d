// Package apperr is the error taxonomy shared by services and handlers: every
// failure surfaced to a client carries a Kind and a human readable message.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindIntegration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindIntegration:
		return "integration"
	default:
		return "unexpected"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error { return New(KindValidation, msg) }

func Auth(msg string) *Error { return New(KindAuth, msg) }

func Forbidden(msg string) *Error { return New(KindForbidden, msg) }

func NotFound(msg string) *Error { return New(KindNotFound, msg) }

func Conflict(msg string) *Error { return New(KindConflict, msg) }

func Integration(msg string, err error) *Error { return Wrap(KindIntegration, msg, err) }

func Unexpected(msg string, err error) *Error { return Wrap(KindUnexpected, msg, err) }

// KindOf returns the Kind of the first *Error in the chain, or KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message is the client-safe text for err. Causes of unexpected errors stay in logs.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindUnexpected {
		return e.Message
	}
	return "internal server error"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindIntegration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
