// Package errors provides error handling for rpawatch.
//
// It re-exports github.com/cockroachdb/errors so every package gets stack
// traces, wrapping and safe details from a single import, and defines the
// sentinels the pipeline uses to classify failures.
//
// Usage:
//
//	if err := store.UpsertLog(rec); err != nil {
//	    return errors.Wrap(err, "failed to store log")
//	}
//
//	if errors.Is(err, errors.ErrMissingPrerequisite) {
//	    // skip this cycle, the next poll will retry
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// Details and hints
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllDetails  = crdb.GetAllDetails
	GetAllHints    = crdb.GetAllHints
	FlattenDetails = crdb.FlattenDetails
)

// Inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Join      = crdb.Join
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// Sentinels. Wrap them to add context; match with errors.Is.
var (
	// ErrNotFound indicates the requested entity does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates a malformed request to the REST or MCP surface
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a uniqueness conflict
	ErrConflict = New("resource conflict")

	// ErrMissingPrerequisite means an operation cannot run yet (no identity,
	// no logs, process or robot missing). Callers skip and let the next
	// cycle retry.
	ErrMissingPrerequisite = New("missing prerequisite")

	// ErrMalformedInput marks frames or replies that cannot be decoded
	ErrMalformedInput = New("malformed input")

	// ErrInvalidTransition is returned when a job status change would move
	// the state machine backwards or out of a terminal state
	ErrInvalidTransition = New("invalid status transition")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsMissingPrerequisite reports whether err is or wraps ErrMissingPrerequisite.
func IsMissingPrerequisite(err error) bool {
	return err != nil && Is(err, ErrMissingPrerequisite)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrapf(ErrNotFound, format, args...)
}

// NewMissingPrerequisite creates a missing-prerequisite error with a formatted message
func NewMissingPrerequisite(format string, args ...interface{}) error {
	return Wrapf(ErrMissingPrerequisite, format, args...)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrapf(ErrInvalidRequest, format, args...)
}
