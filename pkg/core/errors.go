// Package core provides the main CareLedger client and patient memory functionality.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates that a connection to the storage backend failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrEmbeddingFailed indicates that embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrDimensionMismatch indicates that an embedding vector did not match
	// its slot's fixed dimension. This is a dependency failure, never
	// silently padded or truncated.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPatientScopeRequired indicates that an operation was attempted
	// without a patient scope.
	ErrPatientScopeRequired = errors.New("patient scope required")

	// ErrStorageOperation indicates that a storage operation failed.
	ErrStorageOperation = errors.New("storage operation failed")
)

// RecordError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &RecordError{
//	    Op:  "Ingest",
//	    Err: ErrEmbeddingFailed,
//	}
//	// Error() returns: "careledger: Ingest: embedding generation failed"
type RecordError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "careledger: <Op>: <Err>"
func (e *RecordError) Error() string {
	return fmt.Sprintf("careledger: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with RecordError.
func (e *RecordError) Unwrap() error {
	return e.Err
}

// NewRecordError creates a new RecordError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewRecordError("Ingest", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "Ingest", "FindSimilarCases")
//   - err: The underlying error to wrap
//
// Returns a RecordError, or nil if err is nil.
func NewRecordError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RecordError{
		Op:  op,
		Err: err,
	}
}
