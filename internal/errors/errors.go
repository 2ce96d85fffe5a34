// Package errors provides centralized error definitions and error handling
// utilities for the hive codebase. It defines the store's error taxonomy as
// sentinel errors, a wrapping error type that carries severity and retry
// classification, and helpers for mapping errors to CLI exit codes.
//
// # Taxonomy
//
// Every public operation on the document store and lifecycle manager fails
// with exactly one of the sentinel kinds below, so callers can branch:
//
//   - ErrNotFound: document or session does not exist
//   - ErrCorruptDocument: file exists but cannot be decoded
//   - ErrLockTimeout: per-document lock not acquired within the deadline
//   - ErrInvalidMode: unknown session mode
//   - ErrAlreadyActive: recover called on a live session
//   - ErrInvalidPath: malformed path expression
//   - ErrTypeMismatch: operation applied to a value of the wrong type
//   - ErrIO: disk or permission failure
//
// # Usage
//
// Creating errors:
//
//	err := errors.Wrap(errors.ErrNotFound, "session %s", id)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrLockTimeout) { ... retry ... }
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Sentinel errors forming the store's error taxonomy.
var (
	// ErrNotFound indicates that a document or session could not be found.
	ErrNotFound = New("not found")
	// ErrCorruptDocument indicates that a document file exists but could not
	// be decoded. Never conflated with ErrNotFound.
	ErrCorruptDocument = New("corrupt document")
	// ErrLockTimeout indicates that the per-document lock could not be
	// acquired before the deadline. Retryable.
	ErrLockTimeout = New("lock acquisition timed out")
	// ErrInvalidMode indicates an unknown session mode.
	ErrInvalidMode = New("invalid session mode")
	// ErrAlreadyActive indicates that recovery was requested for a session
	// that is active and not expired.
	ErrAlreadyActive = New("session already active")
	// ErrInvalidTransition indicates a lifecycle change requested from a
	// state that does not permit it, such as suspending a completed session.
	ErrInvalidTransition = New("invalid state transition")
	// ErrInvalidPath indicates a malformed path expression.
	ErrInvalidPath = New("invalid path expression")
	// ErrTypeMismatch indicates an operation applied to a value of the wrong
	// type, such as merging an object into a string.
	ErrTypeMismatch = New("type mismatch")
	// ErrIO indicates a disk or permission failure.
	ErrIO = New("i/o failure")
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo Severity = iota
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// StoreError wraps a sentinel kind with operation context. It satisfies
// errors.Is for its kind and unwraps to the underlying cause.
type StoreError struct {
	kind    error
	message string
	cause   error
}

// Wrap creates a StoreError of the given kind with a formatted message.
func Wrap(kind error, format string, args ...any) *StoreError {
	return &StoreError{kind: kind, message: fmt.Sprintf(format, args...)}
}

// WrapCause creates a StoreError of the given kind wrapping an underlying error.
func WrapCause(kind error, cause error, format string, args ...any) *StoreError {
	return &StoreError{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

// Error returns the error message.
func (e *StoreError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Unwrap returns the underlying cause, if any.
func (e *StoreError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return e.kind
}

// Is reports whether this error matches the target error.
func (e *StoreError) Is(target error) bool {
	if target == e.kind {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Kind returns the sentinel this error was created from.
func (e *StoreError) Kind() error { return e.kind }

// Severity returns the severity level for this error's kind.
func (e *StoreError) Severity() Severity {
	return severityOf(e.kind)
}

func severityOf(kind error) Severity {
	switch kind {
	case ErrNotFound, ErrAlreadyActive, ErrInvalidTransition:
		return SeverityInfo
	case ErrLockTimeout:
		return SeverityWarning
	case ErrCorruptDocument, ErrIO:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// IsRetryable returns true if the error is transient and the operation may
// succeed on retry. Lock timeouts are the canonical retryable failure;
// corruption and type mismatches never are.
func IsRetryable(err error) bool {
	return Is(err, ErrLockTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end
// users without further translation.
func IsUserFacing(err error) bool {
	for _, kind := range []error{
		ErrNotFound, ErrInvalidMode, ErrAlreadyActive, ErrInvalidTransition, ErrInvalidPath, ErrTypeMismatch,
	} {
		if Is(err, kind) {
			return true
		}
	}
	return false
}

// Exit codes reported by the CLI layer. Each taxonomy kind maps to a distinct
// status so scripted callers can branch without parsing messages.
const (
	ExitOK              = 0
	ExitFailure         = 1
	ExitNotFound        = 2
	ExitLockTimeout     = 3
	ExitCorruptDocument = 4
	ExitInvalidMode     = 5
	ExitAlreadyActive   = 6
	ExitInvalidPath     = 7
	ExitTypeMismatch    = 8
	ExitIO              = 9

	ExitInvalidTransition = 10
)

// ExitCode maps an error to its CLI exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case Is(err, ErrNotFound):
		return ExitNotFound
	case Is(err, ErrLockTimeout):
		return ExitLockTimeout
	case Is(err, ErrCorruptDocument):
		return ExitCorruptDocument
	case Is(err, ErrInvalidMode):
		return ExitInvalidMode
	case Is(err, ErrAlreadyActive):
		return ExitAlreadyActive
	case Is(err, ErrInvalidTransition):
		return ExitInvalidTransition
	case Is(err, ErrInvalidPath):
		return ExitInvalidPath
	case Is(err, ErrTypeMismatch):
		return ExitTypeMismatch
	case Is(err, ErrIO):
		return ExitIO
	default:
		return ExitFailure
	}
}
