// Package errs defines the error kinds shared by the proxy components and the
// WebSocket close codes each kind maps to.
package errs

import (
	"errors"
	"fmt"
)

// Kinds
var (
	// ErrConfig a required secret or endpoint is missing or invalid
	ErrConfig = errors.New("configuration error")
	// ErrUnauthenticated no usable upstream credential could be resolved
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUpstreamDial the upstream socket could not be opened
	ErrUpstreamDial = errors.New("upstream dial failed")
	// ErrProtocolViolation the client broke message ordering rules
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrTooManyInitialisationRequests the client sent connection_init twice
	ErrTooManyInitialisationRequests = fmt.Errorf("%w: too many initialisation requests", ErrProtocolViolation)
	// ErrMalformedMessage a single frame could not be understood
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUpstream the upstream engine reported an error
	ErrUpstream = errors.New("upstream error")
)

// Close codes
const (
	CloseNormalClosure                 = 1000
	CloseGoingAway                     = 1001
	CloseInternalError                 = 1011
	CloseUnauthorized                  = 4401
	CloseTooManyInitialisationRequests = 4429
)

// Error is an error of a known kind raised by an operation
type Error struct {
	Kind error
	Op   string
	Err  error
}

// New creates a new error of the given kind
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a new error of the given kind with a formatted cause
func Newf(kind error, op string, format string, v ...interface{}) *Error {
	return New(kind, op, fmt.Errorf(format, v...))
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
}

// Is matches the kind of the error
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CloseCode returns the websocket close code for the error and a reason
// suitable for a close frame
func CloseCode(err error) (int, string) {
	switch {
	case err == nil:
		return CloseNormalClosure, ""
	case errors.Is(err, ErrTooManyInitialisationRequests):
		return CloseTooManyInitialisationRequests, "Too many initialisation requests"
	case errors.Is(err, ErrProtocolViolation):
		return CloseUnauthorized, "Unauthorized"
	case errors.Is(err, ErrUnauthenticated):
		return CloseUnauthorized, "Unauthorized"
	case errors.Is(err, ErrUpstreamDial):
		return CloseInternalError, "upstream unavailable"
	}
	return CloseInternalError, "internal error"
}
