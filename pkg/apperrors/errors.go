// Package apperrors provides the typed error taxonomy shared by every
// layer of the engine: store, sandbox, tool surface, intervention engine,
// and the HTTP control plane all return errors wrapping one of these kinds,
// letting callers translate on `errors.As`/`errors.Is` without string
// matching.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is a stable, comparable error category. It is surfaced verbatim in
// tool-surface error frames (spec §6) and mapped to HTTP status codes by
// pkg/api.
type Kind string

const (
	Validation        Kind = "validation"
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	QualityViolation  Kind = "quality_violation"
	BlockedCommand    Kind = "blocked_command"
	SandboxError      Kind = "sandbox_error"
	StorageError      Kind = "storage_error"
	TransientExternal Kind = "transient_external"
	Internal          Kind = "internal"
)

// Error is the concrete error type every package in this module returns
// for expected failure modes. It always carries a Kind so callers can
// branch on category without parsing messages.
type Error struct {
	Kind    Kind
	Message string
	Err     error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, apperrors.New(Kind, "")) match on Kind alone,
// ignoring Message/Err — convenient for sentinel-style comparisons in
// tests and handlers.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal for errors
// that were never tagged (bugs, not expected failure modes).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Sentinel helpers for the most common not-found/conflict checks, mirroring
// the plain sentinel-error style used alongside typed errors in the
// store package.
var (
	ErrNotFound  = New(NotFound, "entity not found")
	ErrConflict  = New(Conflict, "conflict")
	ErrNotActive = New(Conflict, "no active session")
)
