package common

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping and retry decisions.
// Validation failures are returned as data at the service boundary and never
// raised; every other kind travels as an *Error.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not-found"
	KindConflict        Kind = "conflict"
	KindRestrict        Kind = "restrict"
	KindAuth            Kind = "auth"
	KindStorage         Kind = "storage"
	KindPlugin          Kind = "plugin"
	KindMigration       Kind = "migration"
	KindHook            Kind = "hook"
	KindWebhookTerminal Kind = "webhook-terminal"
)

// Error is the classified error type used across service boundaries.
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

// NewError creates a classified error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a classified error wrapping a cause.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors report
// KindStorage, which maps to a 5xx at the transport layer.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindStorage
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldError is a single per-field validation failure. Validation results are
// data, not errors: services return them in result structs.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}
