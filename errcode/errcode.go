// Package errcode provides a toolkit for defining and assigning the error
// kinds used throughout the engine (see spec §7: IO, Network, ParseError,
// SignatureError, DigestMismatch, NotSupported, NotFound, SolverError,
// Canceled). Each Kind is identified globally by a string value; an Error
// wraps a Kind with a message, an optional detail payload, and an optional
// cause, and implements the standard error interfaces so callers can use
// errors.Is/errors.As against a Kind.
package errcode

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from spec §7. Kinds are
// comparable and may be used directly with errors.Is.
type Kind string

// Error makes a Kind usable as an errors.Is target.
func (k Kind) Error() string { return string(k) }

const (
	// IO covers disk, permission, and path-length failures.
	IO Kind = "IO"
	// Network covers DNS, connect, and HTTP status failures; callers use
	// IsNetwork to decide whether a mirror retry is worthwhile.
	Network Kind = "NETWORK"
	// ParseError covers malformed XML or manifest lines.
	ParseError Kind = "PARSE_ERROR"
	// SignatureError covers malformed signature blocks, signatures that
	// don't validate, or validate but aren't trusted.
	SignatureError Kind = "SIGNATURE_ERROR"
	// DigestMismatch is raised when a computed digest disagrees with an
	// expected one; fatal for the current retrieval method, not for the
	// Fetcher as a whole.
	DigestMismatch Kind = "DIGEST_MISMATCH"
	// NotSupported covers unknown archive MIME types, unknown digest
	// algorithms, or unimplemented OS features.
	NotSupported Kind = "NOT_SUPPORTED"
	// NotFound covers feeds absent both online and in cache, and
	// implementations absent from every store in the search path.
	NotFound Kind = "NOT_FOUND"
	// SolverError wraps a conflict trace from a failed solve.
	SolverError Kind = "SOLVER_ERROR"
	// Canceled marks a user-initiated cancellation.
	Canceled Kind = "CANCELED"
)

// Error is the concrete error type returned by engine components. It
// carries the Kind, a human message, optional structured Detail, and an
// optional wrapped cause so %w-style unwrapping keeps working.
type Error struct {
	Kind    Kind
	Message string
	Detail  interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, errcode.IO) (etc.) work by comparing against a
// Kind, or against a sentinel *Error carrying only a Kind.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return k == e.Kind
	}
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind && other.Message == ""
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(message, args...)}
}

// Wrap constructs an *Error of the given kind around a cause.
func Wrap(kind Kind, cause error, message string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(message, args...), Cause: cause}
}

// WithDetail returns a copy of e carrying the given structured detail
// payload (e.g. a conflict trace for SolverError, or a rejection map).
func (e *Error) WithDetail(detail interface{}) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// Of reports the Kind of err, walking Unwrap chains, or "" if err is nil or
// not one of ours.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err (or something it wraps) is of the given kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}

// IsNetwork reports whether err is a Network-kind error, the signal the
// Fetcher uses to decide whether a mirror retry is worthwhile.
func IsNetwork(err error) bool {
	return Is(err, Network)
}
