// Package errs defines the shared error taxonomy used across fleetd's
// components. Every component-level error is a *Error carrying a Kind so
// callers can branch on failure category with errors.As, while the wrapped
// cause is preserved for logging.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the categories components agree on.
type Kind string

const (
	InvalidInput  Kind = "invalid_input"
	AccessDenied  Kind = "access_denied"
	NotFound      Kind = "not_found"
	Conflict      Kind = "conflict"
	ClusterError  Kind = "cluster_error"
	ConnectorErr  Kind = "connector_error"
	CAError       Kind = "ca_error"
	VaultError    Kind = "vault_error"
	StoreError    Kind = "store_error"
	Unsupported   Kind = "unsupported"
)

// Error is the concrete error type returned by fleetd components.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error wrapping cause. If cause is nil, Wrap returns nil.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
