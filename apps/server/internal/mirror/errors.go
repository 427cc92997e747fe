package mirror

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a reconciliation failure.
type ErrorKind string

// Run-fatal kinds abort a run before any per-file work; per-record kinds are
// collected into Outcome.Failed.
const (
	KindEmptyChangeSet           ErrorKind = "EmptyChangeSet"
	KindUnrecognizedChangeStatus ErrorKind = "UnrecognizedChangeStatus"
	KindCredentialUnavailable    ErrorKind = "CredentialUnavailable"
	KindChangeSetUnavailable     ErrorKind = "ChangeSetUnavailable"
	KindMalformedEvent           ErrorKind = "MalformedEvent"

	KindFetchFailed ErrorKind = "FetchFailed"
	KindStoreFailed ErrorKind = "StoreFailed"
	KindCancelled   ErrorKind = "Cancelled"
)

// RecordError is a per-file failure. Path names the file whose operation failed,
// which for a rename may be the previous path.
type RecordError struct {
	Kind ErrorKind
	Path string
	Err  error
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RecordError) Unwrap() error { return e.Err }

// RunError is a failure that aborts a whole run.
type RunError struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error { return e.Err }

// RunNotFoundError is returned by a RunStore when no run has the given ID.
type RunNotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e RunNotFoundError) Error() string {
	return fmt.Sprintf("run %q not found", e.ID)
}

// KindOf returns the ErrorKind carried by err, or "" when err is not a mirror error.
func KindOf(err error) ErrorKind {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Kind
	}
	var recErr *RecordError
	if errors.As(err, &recErr) {
		return recErr.Kind
	}
	return ""
}
