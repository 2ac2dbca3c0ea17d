// Package toolerr defines the error taxonomy shared by tools, the dispatcher,
// and the orchestrator. It replaces exception-for-control-flow with a typed
// error carrying a Kind the dispatcher can map to a JSON-RPC error code.
package toolerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and transport purposes.
type Kind string

const (
	// BadRequest indicates a schema violation, mutually exclusive fields, or
	// an unknown method. Never retried.
	BadRequest Kind = "BadRequest"
	// Transient indicates a classified-retryable upstream failure (HTTP 429,
	// 500, 502, 503, 504). Retried by internal/retry. Named BackendTransient
	// to match the error taxonomy in spec.md §7.
	Transient Kind = "BackendTransient"
	// Permanent indicates a non-retryable upstream failure (BackendPermanent
	// in spec.md §7).
	Permanent Kind = "BackendPermanent"
	// InvalidOutput indicates upstream data that fails schema validation after
	// retries are exhausted.
	InvalidOutput Kind = "InvalidOutput"
	// ResourceMissing indicates a referenced dataset or file does not exist.
	ResourceMissing Kind = "ResourceMissing"
	// Deadline indicates a request-level timeout elapsed.
	Deadline Kind = "Deadline"
)

// Error is the canonical tool error. It implements error and Unwrap so
// callers can use errors.Is/As against Cause while the dispatcher only needs
// Kind and Message to build a JSON-RPC error envelope.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around cause, using cause's message
// when message is empty.
func Wrap(kind Kind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface. The format matches spec.md's JSON-RPC
// tool-error convention: "<ErrorKind>: <message>".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Retryable reports whether an error of this kind should be retried by the
// generic retry primitive. Only Transient errors are retryable; everything
// else bubbles immediately.
func (e *Error) Retryable() bool {
	return e != nil && e.Kind == Transient
}

// KindOf extracts the Kind from err, defaulting to Permanent when err is not
// a *Error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return Permanent
}
