// Package errs collects the semantic error kinds this adapter raises,
// as distinguished error values/types rather than ad hoc strings, so
// callers can classify failures with errors.As/errors.Is.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// DuplicateKey is raised when a uniqueness check observes an existing
// row for a unique index.
type DuplicateKey struct {
	IndexName string
	Row       string
}

func (e *DuplicateKey) Error() string {
	return fmt.Sprintf("duplicate key in index %q: %s", e.IndexName, e.Row)
}

// NewDuplicateKey builds a DuplicateKey error.
func NewDuplicateKey(indexName, formattedRow string) error {
	return &DuplicateKey{IndexName: indexName, Row: formattedRow}
}

// CorruptKey is raised when unpack fails to decode a key: the prefix
// didn't match, or the tuple-encoded remainder was malformed.
type CorruptKey struct {
	Reason string
}

func (e *CorruptKey) Error() string { return "corrupt key: " + e.Reason }

// NewCorruptKey builds a CorruptKey error.
func NewCorruptKey(reason string) error { return &CorruptKey{Reason: reason} }

// CorruptValue is raised when a value (an hkey embedded in an index row,
// a sequence cell, a count cell) fails to decode.
type CorruptValue struct {
	Reason string
}

func (e *CorruptValue) Error() string { return "corrupt value: " + e.Reason }

// NewCorruptValue builds a CorruptValue error.
func NewCorruptValue(reason string) error { return &CorruptValue{Reason: reason} }

// RetryableStoreConflict wraps a KV-store failure the caller's retry
// loop should re-run the statement for: not_committed or
// commit_unknown_result.
type RetryableStoreConflict struct {
	cause error
}

func (e *RetryableStoreConflict) Error() string { return "retryable store conflict: " + e.cause.Error() }
func (e *RetryableStoreConflict) Unwrap() error { return e.cause }

// NewRetryableStoreConflict wraps cause as a RetryableStoreConflict.
func NewRetryableStoreConflict(cause error) error {
	return &RetryableStoreConflict{cause: errors.WithStack(cause)}
}

// NonRetryableStoreError wraps any other KV-store failure. The
// statement aborts and the session's transaction is marked
// rollback-pending.
type NonRetryableStoreError struct {
	cause error
}

func (e *NonRetryableStoreError) Error() string {
	return "non-retryable store error: " + e.cause.Error()
}
func (e *NonRetryableStoreError) Unwrap() error { return e.cause }

// NewNonRetryableStoreError wraps cause as a NonRetryableStoreError.
func NewNonRetryableStoreError(cause error) error {
	return &NonRetryableStoreError{cause: errors.WithStack(cause)}
}

// QueryCanceled is raised when session cancellation or a sleep
// interruption unwinds a long-running traversal.
var QueryCanceled = errors.New("query canceled")

// InternalInvariantViolation marks a programming error that should
// never surface in practice (e.g. an unknown ChangeLevel).
type InternalInvariantViolation struct {
	Reason string
}

func (e *InternalInvariantViolation) Error() string { return "internal invariant violation: " + e.Reason }

// NewInternalInvariantViolation builds an InternalInvariantViolation.
func NewInternalInvariantViolation(reason string) error {
	return &InternalInvariantViolation{Reason: reason}
}

// storeErrorCode is the minimal classification the KV-store's real
// errors are expected to carry. A fake/local store (kvtest) implements
// this directly; a real client-side binding would adapt its own error
// type to it.
type storeErrorCode interface {
	StoreErrorCode() int
}

const (
	codeNotCommitted       = 1020
	codeCommitUnknownResult = 1021
)

// IsRetryable reports whether err originates from a KV-store failure
// that a caller's transaction-retry loop may safely re-run: the store's
// own not_committed (1020) or commit_unknown_result (1021) codes. All
// other failures are not retryable here.
func IsRetryable(err error) bool {
	var coded storeErrorCode
	if errors.As(err, &coded) {
		switch coded.StoreErrorCode() {
		case codeNotCommitted, codeCommitUnknownResult:
			return true
		}
	}
	return false
}

// Classify wraps a raw KV-store error as Retryable or NonRetryable based
// on IsRetryable, translating it the way a caller-facing adapter method
// should before returning.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if IsRetryable(err) {
		return NewRetryableStoreConflict(err)
	}
	return NewNonRetryableStoreError(err)
}
