// Package kvapi defines the interface this adapter consumes from the
// transactional, ordered key-value store it sits on top of. Nothing in
// this package implements a real store: the SQL parser, planner and the
// physical KV engine live outside this module, and kvapi is the seam
// between them. kvtest provides a test double satisfying this interface.
package kvapi

import (
	"context"
	"time"
)

// MutateOp names an atomic, commutative mutation the store can apply
// without a read-modify-write round trip.
type MutateOp int

const (
	// OpAddLittleEndian adds a signed little-endian delta to the
	// existing value, treating a missing key as zero.
	OpAddLittleEndian MutateOp = iota + 1
)

// KV is a single key-value pair returned from a range scan.
type KV struct {
	Key   []byte
	Value []byte
}

// RangeIterator yields KV pairs in the order requested by the range call
// that produced it. Next returns (KV{}, false, nil) once exhausted.
type RangeIterator interface {
	Next(ctx context.Context) (KV, bool, error)
}

// Directory resolves, creates, lists, moves and removes named paths,
// handing back opaque packed prefix bytes for each resolved path. Paths
// are slices of path components, e.g. []string{"data", "schema", "t1"}.
type Directory interface {
	// CreateOrOpen resolves path to a prefix, creating every missing
	// component along the way.
	CreateOrOpen(ctx context.Context, path []string) ([]byte, error)
	// Open resolves path to a prefix without creating it. ok is false
	// if no such path exists.
	Open(ctx context.Context, path []string) (prefix []byte, ok bool, err error)
	// List returns the immediate child names under path.
	List(ctx context.Context, path []string) ([]string, error)
	// Move relocates everything under oldPath to newPath atomically
	// within the caller's transaction.
	Move(ctx context.Context, oldPath, newPath []string) error
	// RemoveIfExists deletes path and everything below it. removed is
	// false if path did not exist.
	RemoveIfExists(ctx context.Context, path []string) (removed bool, err error)
}

// Snapshot is a read-only, non-conflicting view of the store as of some
// point in time. Reads through a Snapshot never add the read to the
// owning transaction's conflict range.
type Snapshot interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	GetRange(ctx context.Context, begin, end []byte, limit int, reverse bool) (RangeIterator, error)
}

// Tx is a single-session, snapshot-isolated transaction against the
// store. A Session owns exactly one live Tx at a time.
type Tx interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Clear(ctx context.Context, key []byte) error
	GetRange(ctx context.Context, begin, end []byte, limit int, reverse bool) (RangeIterator, error)
	// Mutate applies an atomic op to key with the given operand bytes,
	// without introducing a read-conflict range.
	Mutate(ctx context.Context, op MutateOp, key []byte, operand []byte) error
	// Snapshot returns a non-conflicting read view bound to this
	// transaction's read version.
	Snapshot() Snapshot
	// Commit commits the transaction. The store classifies failures so
	// callers can distinguish retryable conflicts from hard errors.
	Commit(ctx context.Context) error
	// Reset discards all reads/writes so far and rebinds the
	// transaction to a fresh read version, without creating a new Tx
	// object. Used by long traversals to stay under txn-size limits.
	Reset()
	// StartTime is when this Tx (or its most recent Reset) began.
	StartTime() time.Time
	// Directory is this store's directory layer.
	Directory() Directory
	// MarkRollbackPending flags the transaction as unusable for
	// anything but Reset/discard, following a non-retryable failure.
	MarkRollbackPending()
}

// Store opens transactions against the underlying engine.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}
