// Package coreerrors defines the project-wide error taxonomy and maps it
// onto HTTP status codes at the edge.
package coreerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport-agnostic handling.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindAuth       Kind = "auth_error"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindCapacity   Kind = "capacity_error"
	KindTransport  Kind = "transport_error"
	KindTimeout    Kind = "timeout_error"
	KindFatal      Kind = "fatal_error"
)

// Error is the typed error carried through the coordinator's internal
// call chains. Handlers at the HTTP/WS edge map Kind to a status code.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newErr(KindValidation, format, args...) }
func Auth(format string, args ...any) *Error        { return newErr(KindAuth, format, args...) }
func NotFound(format string, args ...any) *Error    { return newErr(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error     { return newErr(KindConflict, format, args...) }
func Capacity(format string, args ...any) *Error     { return newErr(KindCapacity, format, args...) }
func Timeout(format string, args ...any) *Error      { return newErr(KindTimeout, format, args...) }

// Transport wraps a lower-level transport failure (Docker daemon call,
// reverse-RPC call, Redis call) with a caller-facing message.
func Transport(err error, format string, args ...any) *Error {
	return &Error{Kind: KindTransport, Message: fmt.Sprintf(format, args...), Err: err}
}

// Fatal wraps an unrecoverable startup/config error.
func Fatal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindFatal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind of err, defaulting to KindFatal when err is
// not one of our typed errors (an unexpected error should not be
// mistaken for a validation failure at the HTTP edge).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}
