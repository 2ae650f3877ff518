package indexkv

import (
	"context"
	"encoding/binary"

	"github.com/flatkv/sqladapter/internal/errs"
	"github.com/flatkv/sqladapter/internal/kvapi"
	"github.com/flatkv/sqladapter/internal/schema"
	"github.com/flatkv/sqladapter/internal/session"
)

// countKey concatenates the shared indexCount subspace prefix with the
// group index's own prefix; it is never tuple-decoded, only compared and
// mutated as an opaque byte string.
func countKey(countDesc, indexDesc schema.StorageDescription) []byte {
	out := make([]byte, 0, len(countDesc.Prefix)+len(indexDesc.Prefix))
	out = append(out, countDesc.Prefix...)
	out = append(out, indexDesc.Prefix...)
	return out
}

// IncrementCount adds delta to a group index's row count via the store's
// atomic ADD op, never a read-modify-write, so concurrent inserters never
// serialize against each other over the shared cell.
func IncrementCount(ctx context.Context, sess *session.Session, countDesc schema.StorageDescription, index schema.Index, delta int64) error {
	key := countKey(countDesc, index.Desc)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(delta))
	if err := sess.Tx().Mutate(ctx, kvapi.OpAddLittleEndian, key, buf[:]); err != nil {
		return errs.Classify(err)
	}
	return nil
}

// Count reads the exact row count of a group index through the current
// transaction (adding it to the read-conflict range).
func Count(ctx context.Context, sess *session.Session, countDesc schema.StorageDescription, index schema.Index) (int64, error) {
	key := countKey(countDesc, index.Desc)
	raw, err := sess.Tx().Get(ctx, key)
	if err != nil {
		return 0, errs.Classify(err)
	}
	return decodeCount(raw)
}

// ApproximateCount reads the row count through a snapshot, avoiding any
// read-conflict range: appropriate for statistics/EXPLAIN paths that
// should never cause a writer to retry.
func ApproximateCount(ctx context.Context, sess *session.Session, countDesc schema.StorageDescription, index schema.Index) (int64, error) {
	key := countKey(countDesc, index.Desc)
	raw, err := sess.Tx().Snapshot().Get(ctx, key)
	if err != nil {
		return 0, errs.Classify(err)
	}
	return decodeCount(raw)
}

// TruncateCount resets a group index's row count to zero via a plain
// set, since a truncate empties the whole index and there is nothing to
// add or subtract.
func TruncateCount(ctx context.Context, sess *session.Session, countDesc schema.StorageDescription, index schema.Index) error {
	key := countKey(countDesc, index.Desc)
	var zero [8]byte
	if err := sess.Tx().Set(ctx, key, zero[:]); err != nil {
		return errs.Classify(err)
	}
	return nil
}

// RemoveCount deletes a group index's count cell entirely, for use when
// the index itself is dropped.
func RemoveCount(ctx context.Context, sess *session.Session, countDesc schema.StorageDescription, index schema.Index) error {
	key := countKey(countDesc, index.Desc)
	if err := sess.Tx().Clear(ctx, key); err != nil {
		return errs.Classify(err)
	}
	return nil
}

func decodeCount(raw []byte) (int64, error) {
	if raw == nil {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, errs.NewCorruptValue("group index count cell is not 8 bytes")
	}
	return int64(binary.LittleEndian.Uint64(raw)), nil
}
