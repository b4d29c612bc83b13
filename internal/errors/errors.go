// Package errors provides structured error handling for docq.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: State and storage errors (manifest, vector index)
//   - 3XX: Embedding gateway / network errors
//   - 4XX: Query-time errors
//   - 5XX: Internal errors
package errors

import (
	"fmt"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"

	// State and storage errors (200-299)
	ErrCodeIndexCorrupt      = "ERR_201_INDEX_CORRUPT"
	ErrCodeStateInconsistent = "ERR_202_STATE_INCONSISTENT"
	ErrCodeManifestCorrupt   = "ERR_203_MANIFEST_CORRUPT"

	// Embedding gateway errors (300-399)
	ErrCodeEmbeddingUnavailable = "ERR_301_EMBEDDING_UNAVAILABLE"

	// Query errors (400-499)
	ErrCodeIndexEmpty            = "ERR_401_INDEX_EMPTY"
	ErrCodeRetrievalUnavailable  = "ERR_402_RETRIEVAL_UNAVAILABLE"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// Error is the structured error type for docq.
type Error struct {
	// Code is the unique error code (e.g., "ERR_201_INDEX_CORRUPT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors for the engine's failure taxonomy. Compare with
// errors.Is; construct rich instances with New or Wrap using the
// matching code.
var (
	// ErrConfigInvalid indicates configuration that fails validation
	// before any indexing work begins.
	ErrConfigInvalid = &Error{Code: ErrCodeConfigInvalid}

	// ErrIndexCorrupt indicates a vector index store that cannot be
	// loaded. The caller should rebuild from scratch.
	ErrIndexCorrupt = &Error{Code: ErrCodeIndexCorrupt}

	// ErrStateInconsistent indicates a mismatch between the manifest and
	// the vector index (orphaned or missing entries).
	ErrStateInconsistent = &Error{Code: ErrCodeStateInconsistent}

	// ErrEmbeddingUnavailable indicates a transient embedding gateway
	// failure. Retryable.
	ErrEmbeddingUnavailable = &Error{Code: ErrCodeEmbeddingUnavailable, Retryable: true}

	// ErrIndexEmpty indicates a search against an index with zero entries
	// where the caller requires a non-empty result.
	ErrIndexEmpty = &Error{Code: ErrCodeIndexEmpty}

	// ErrRetrievalUnavailable indicates an irrecoverable failure while
	// serving a query. Distinct from "no match", which is an empty result.
	ErrRetrievalUnavailable = &Error{Code: ErrCodeRetrievalUnavailable}
)

// New creates a new Error with the given code and message.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: code == ErrCodeEmbeddingUnavailable,
	}
}

// Wrap creates an Error from an existing error. Returns nil for a nil
// cause, so call sites can wrap unconditionally.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Wrapf creates an Error with a formatted message around a cause.
func Wrapf(code string, err error, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), err)
}

// IsRetryable reports whether err (or any error in its chain) is a
// retryable Error.
func IsRetryable(err error) bool {
	for err != nil {
		if de, ok := err.(*Error); ok {
			return de.Retryable
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// GetCode extracts the error code from an Error.
// Returns empty string if not an Error.
func GetCode(err error) string {
	if de, ok := err.(*Error); ok {
		return de.Code
	}
	return ""
}
