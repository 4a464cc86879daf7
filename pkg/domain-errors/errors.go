// Package domainerrors provides coded errors for the registry's error
// taxonomy. Services attach a Code so transports and callers can distinguish
// which invariant was violated (not found vs. conflict vs. bad input) without
// string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation covers malformed input: empty required strings, scores
	// out of range, insufficient fees, zero principals.
	CodeValidation Code = "validation_error"
	// CodeInvalidInput covers parse failures at trust boundaries.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest covers structurally broken requests (bad JSON, missing body).
	CodeBadRequest Code = "bad_request"
	// CodeNotFound: referenced identity, resume, or job record does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict: the operation would violate a one-way invariant (already
	// registered, job already resolved, feedback already revoked).
	CodeConflict Code = "conflict"
	// CodeUnauthorized: the caller is not authenticated.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden: the caller is authenticated but lacks the required role.
	CodeForbidden Code = "forbidden"
	// CodeUnavailable: the protocol is paused or a dependency is down.
	CodeUnavailable Code = "unavailable"
	// CodeTimeout: the operation's transaction boundary expired.
	CodeTimeout Code = "timeout"
	// CodeInvariantViolation: a domain aggregate rejected a state transition.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal: unexpected infrastructure failure; details stay server-side.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is / errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for ; err != nil; err = errors.Unwrap(err) {
		if errors.As(err, &de) && de.Code == code {
			return true
		}
	}
	return false
}

// Is is an alias for HasCode, kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the outermost code, defaulting to CodeInternal for uncoded
// errors so nothing leaks as a 200.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the outermost coded message, or empty for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
