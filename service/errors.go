package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransport reports that a remote endpoint could not be reached or
	// answered with a failure status.
	ErrTransport = errors.New("transport failure")
	// ErrMalformedPayload reports a response body that is not tabular data.
	ErrMalformedPayload = errors.New("malformed response payload")
	// ErrUpload reports a failed attachment upload; no row update was sent.
	ErrUpload = errors.New("upload failed")
	// ErrNotFound reports an unknown stage, option set or record.
	ErrNotFound = errors.New("not found")
	// ErrForbidden reports an operation the session's role may not perform.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials reports a login that matched no Login sheet row.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// ValidationError lists business-rule failures detected before any
// network call was made.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// BatchError reports that at least one update of a bulk operation failed.
// Updates that succeeded are not rolled back and the failing records are
// not identified.
type BatchError struct {
	Total  int
	Failed int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch update failed: %d of %d updates failed", e.Failed, e.Total)
}

// SchemaError lists stage fields whose declared header does not match the
// sheet's header row.
type SchemaError struct {
	Stage      string
	Mismatches []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("stage %s: header mismatch: %s", e.Stage, strings.Join(e.Mismatches, "; "))
}
