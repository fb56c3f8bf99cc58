// Package apierr defines the typed error every service operation returns.
// The HTTP layer renders it as the standard error envelope with a matching status.
package apierr

import (
	"context"
	"errors"
	"net/http"
)

// Error carries an HTTP status, a client-facing message and an optional list
// of field errors. Err is the internal cause and is never shown to clients.
type Error struct {
	Status  int
	Message string
	Errors  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(status int, msg string, cause error, details []string) *Error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Status: status, Message: msg, Errors: details, Err: cause}
}

func BadRequest(msg string, details ...string) *Error {
	return newError(http.StatusBadRequest, msg, nil, details)
}

// BadRequestCause keeps the underlying failure (e.g. a storage error) for logs.
func BadRequestCause(msg string, cause error) *Error {
	return newError(http.StatusBadRequest, msg, cause, nil)
}

func Unauthorized(msg string) *Error {
	return newError(http.StatusUnauthorized, msg, nil, nil)
}

// UnauthorizedCause keeps the verification failure for logs.
func UnauthorizedCause(msg string, cause error) *Error {
	return newError(http.StatusUnauthorized, msg, cause, nil)
}

func NotFound(msg string) *Error {
	return newError(http.StatusNotFound, msg, nil, nil)
}

func Conflict(msg string) *Error {
	return newError(http.StatusConflict, msg, nil, nil)
}

func Internal(msg string, cause error) *Error {
	return newError(http.StatusInternalServerError, msg, cause, nil)
}

func Unavailable(msg string, cause error) *Error {
	return newError(http.StatusServiceUnavailable, msg, cause, nil)
}

// From normalises any error into an *Error. Timeouts and cancellations map
// to Unavailable, anything unknown to Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Unavailable("service temporarily unavailable", err)
	}
	return Internal("something went wrong", err)
}

// Status returns the HTTP status From(err) would carry, 200 for nil.
func Status(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return From(err).Status
}
