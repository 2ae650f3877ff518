// Package session defines Session, the handle every adapter operation
// takes as its first argument. A Session owns exactly one live KV
// transaction, the current statement's batched uniqueness-check queue,
// and cancellation/logging context — mirroring how Erigon's readers
// (HistoryReaderV3 et al.) are handed a kv.Tx/kv.TemporalTx to operate
// against rather than opening their own.
package session

import (
	"bytes"
	"context"
	"sync/atomic"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/flatkv/sqladapter/internal/errs"
	"github.com/flatkv/sqladapter/internal/kvapi"
)

// PendingCheck is one uniqueness read queued for deferred resolution in
// batched-check mode, ordered by packed key so resolution can pipeline
// ascending reads instead of resolving in enqueue order. It resolves as
// a point Get at Key, unless RangeEnd is set, in which case it resolves
// as a range-exists scan over [Key, RangeEnd) — used for a
// uniqueAndMayContainNulls index's non-null uniqueness check, whose
// on-disk key always carries a trailing null-separator segment.
type PendingCheck struct {
	IndexName    string
	Key          []byte
	RangeEnd     []byte
	FormattedRow string
}

func pendingLess(a, b PendingCheck) bool { return bytes.Compare(a.Key, b.Key) < 0 }

// Session owns the current transaction for one statement/request.
type Session struct {
	Log *zap.Logger

	store    kvapi.Store
	tx       kvapi.Tx
	canceled atomic.Bool

	batched bool
	pending *btree.BTreeG[PendingCheck]
}

// New begins a fresh transaction against store and returns a Session
// bound to it.
func New(ctx context.Context, store kvapi.Store, log *zap.Logger) (*Session, error) {
	tx, err := store.Begin(ctx)
	if err != nil {
		return nil, errs.Classify(err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		Log:   log,
		store: store,
		tx:    tx,
	}, nil
}

// Tx returns the session's current transaction.
func (s *Session) Tx() kvapi.Tx { return s.tx }

// Cancel marks the session canceled; the next CheckCanceled call (at the
// next suspension point) observes it.
func (s *Session) Cancel() { s.canceled.Store(true) }

// CheckCanceled returns errs.QueryCanceled if the session has been
// canceled.
func (s *Session) CheckCanceled() error {
	if s.canceled.Load() {
		return errs.QueryCanceled
	}
	return nil
}

// EnableBatchedChecks switches the session into batched uniqueness-check
// mode: subsequent EnqueuePending calls queue a point read instead
// of resolving inline. Typical bulk-insert workloads pipeline these
// point reads instead of blocking on each one in turn.
func (s *Session) EnableBatchedChecks() {
	s.batched = true
	if s.pending == nil {
		s.pending = btree.NewG(32, pendingLess)
	}
}

// Batched reports whether the session is in batched-check mode.
func (s *Session) Batched() bool { return s.batched }

// EnqueuePending queues a uniqueness check for deferred resolution. Only
// valid in batched-check mode.
func (s *Session) EnqueuePending(pc PendingCheck) {
	s.pending.ReplaceOrInsert(pc)
}

// ResolvePending runs every queued point read, in ascending key order,
// and returns the first DuplicateKey it observes. Must be called before
// Commit when batched-check mode is in use.
func (s *Session) ResolvePending(ctx context.Context) error {
	if s.pending == nil {
		return nil
	}
	var firstErr error
	s.pending.Ascend(func(pc PendingCheck) bool {
		if pc.RangeEnd != nil {
			it, err := s.tx.GetRange(ctx, pc.Key, pc.RangeEnd, 1, false)
			if err != nil {
				firstErr = errs.Classify(err)
				return false
			}
			_, ok, err := it.Next(ctx)
			if err != nil {
				firstErr = errs.Classify(err)
				return false
			}
			if ok {
				firstErr = errs.NewDuplicateKey(pc.IndexName, pc.FormattedRow)
				return false
			}
			return true
		}
		v, err := s.tx.Get(ctx, pc.Key)
		if err != nil {
			firstErr = errs.Classify(err)
			return false
		}
		if v != nil {
			firstErr = errs.NewDuplicateKey(pc.IndexName, pc.FormattedRow)
			return false
		}
		return true
	})
	s.pending.Clear(false)
	return firstErr
}

// Reset discards the session's pending local transaction state and
// rebinds it to a fresh read version, without creating a new Tx object.
// Used by long traversals to stay under txn-size limits across a
// commit-and-resume boundary.
func (s *Session) Reset() {
	s.tx.Reset()
}

// MarkRollbackPending flags the session's transaction rollback-pending,
// per the error-handling design: any non-retryable failure during a
// write path leaves the transaction unusable for anything but discard.
func (s *Session) MarkRollbackPending() {
	s.tx.MarkRollbackPending()
}

// Commit resolves any pending batched checks and commits the
// transaction, classifying any failure and marking the transaction
// rollback-pending when the failure is non-retryable.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.ResolvePending(ctx); err != nil {
		return err
	}
	if err := s.tx.Commit(ctx); err != nil {
		classified := errs.Classify(err)
		var nonRetryable *errs.NonRetryableStoreError
		if asNonRetryable(classified, &nonRetryable) {
			s.MarkRollbackPending()
		}
		return classified
	}
	return nil
}

func asNonRetryable(err error, target **errs.NonRetryableStoreError) bool {
	nre, ok := err.(*errs.NonRetryableStoreError)
	if ok {
		*target = nre
	}
	return ok
}
