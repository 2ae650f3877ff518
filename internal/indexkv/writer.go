package indexkv

import (
	"context"
	"sync"

	"github.com/flatkv/sqladapter/internal/errs"
	"github.com/flatkv/sqladapter/internal/kvapi"
	"github.com/flatkv/sqladapter/internal/nullsep"
	"github.com/flatkv/sqladapter/internal/schema"
	"github.com/flatkv/sqladapter/internal/session"
	"github.com/flatkv/sqladapter/internal/tuple"
)

// rowPools is the process-wide, per-index-name registry of IndexRow
// pools used by the nullable-unique delete path, which must decode every
// candidate row's hkey while scanning for the one to remove. Renting
// from a shared pool instead of allocating a fresh Row per candidate
// keeps a bulk delete from this discipline's most garbage-heavy path.
var rowPools sync.Map // map[string]*sync.Pool

func poolFor(indexName string) *sync.Pool {
	if p, ok := rowPools.Load(indexName); ok {
		return p.(*sync.Pool)
	}
	p, _ := rowPools.LoadOrStore(indexName, &sync.Pool{New: func() any { return &Row{} }})
	return p.(*sync.Pool)
}

func rentRow(indexName string) *Row {
	r := poolFor(indexName).Get().(*Row)
	r.Key = tuple.Key{}
	r.HKey = schema.HKey{}
	return r
}

func returnRow(indexName string, r *Row) {
	poolFor(indexName).Put(r)
}

// ConstructIndexRow builds the key columns and back-pointer value for one
// index row from row and hkey. For a uniqueAndMayContainNulls index it
// appends a trailing null-separator segment: 0 when no key column is
// null (uniqueness is then enforced on the key-column prefix alone), or a
// freshly allocated positive long when at least one is null.
func ConstructIndexRow(ctx context.Context, store kvapi.Store, index schema.Index, row schema.RowData, hkey schema.HKey) (Row, error) {
	key := tuple.Key{}
	anyNull := false
	for _, col := range index.Columns {
		seg, ok := col.Field.Extract(row)
		if !ok {
			anyNull = true
			seg = tuple.Null()
		}
		key.Append(seg)
	}
	if index.UniqueAndMayContainNulls {
		if anyNull {
			n, err := nullsep.Next(ctx, store, index)
			if err != nil {
				return Row{}, err
			}
			key.Append(tuple.Int(n))
		} else {
			key.Append(tuple.Int(0))
		}
	}
	return Row{Key: key, HKey: hkey}, nil
}

// CheckUnique enforces index's uniqueness constraint against ir, the
// row just built by ConstructIndexRow. It is a no-op for non-unique
// indexes and for nullable-unique rows whose key columns contain a null
// (uniqueness there is only enforced once a null-separator is assigned,
// which by construction never collides).
//
// For a uniqueAndMayContainNulls index whose key columns are all
// non-null, ConstructIndexRow still appends a trailing zero
// null-separator segment (see its doc comment), so the on-disk key is
// never an exact match for the bare key-column prefix. Uniqueness there
// is enforced on the prefix alone (§4.5), so the check is a range-exists
// scan over [packed, strinc(packed)) rather than a point read.
//
// In batched-check mode the read is queued on the session for deferred
// resolution before commit, pipelining the typical bulk-insert
// workload's reads instead of blocking on each in turn; otherwise the
// read is issued and checked inline.
func CheckUnique(ctx context.Context, sess *session.Session, index schema.Index, ir Row, formattedRow string) error {
	if !index.Unique {
		return nil
	}
	keyColumns := ir.Key.Truncate(index.KeyColumnCount())
	for _, seg := range keyColumns.Segments {
		if seg.IsNull() {
			return nil
		}
	}
	packed := tuple.Pack(index.Desc.Prefix, keyColumns, tuple.NoEdge)

	var rangeEnd []byte
	if index.UniqueAndMayContainNulls {
		rangeEnd = tuple.Strinc(packed)
	}

	if sess.Batched() {
		sess.EnqueuePending(session.PendingCheck{
			IndexName:    index.Name,
			Key:          packed,
			RangeEnd:     rangeEnd,
			FormattedRow: formattedRow,
		})
		return nil
	}

	if rangeEnd != nil {
		it, err := sess.Tx().GetRange(ctx, packed, rangeEnd, 1, false)
		if err != nil {
			return errs.Classify(err)
		}
		_, ok, err := it.Next(ctx)
		if err != nil {
			return errs.Classify(err)
		}
		if ok {
			return errs.NewDuplicateKey(index.Name, formattedRow)
		}
		return nil
	}

	v, err := sess.Tx().Get(ctx, packed)
	if err != nil {
		return errs.Classify(err)
	}
	if v != nil {
		return errs.NewDuplicateKey(index.Name, formattedRow)
	}
	return nil
}

// Write persists ir under index, with the row's hkey as the value.
func Write(ctx context.Context, sess *session.Session, index schema.Index, ir Row) error {
	packed := tuple.Pack(index.Desc.Prefix, ir.Key, tuple.NoEdge)
	value := tuple.Pack(nil, ir.HKey.Key, tuple.NoEdge)
	if err := sess.Tx().Set(ctx, packed, value); err != nil {
		return errs.Classify(err)
	}
	return nil
}

// Delete removes ir from index. For a unique-nonnull or non-unique
// index the on-disk key is fully determined by ir, so this is a direct
// clear. For a uniqueAndMayContainNulls index whose key columns contain
// a null, the on-disk key also carries a null-separator this caller does
// not know, so Delete scans the key-column prefix's range and removes
// the first candidate whose stored hkey matches ir.HKey.
func Delete(ctx context.Context, sess *session.Session, index schema.Index, ir Row) error {
	if !index.UniqueAndMayContainNulls {
		packed := tuple.Pack(index.Desc.Prefix, ir.Key, tuple.NoEdge)
		if err := sess.Tx().Clear(ctx, packed); err != nil {
			return errs.Classify(err)
		}
		return nil
	}

	keyColumns := ir.Key.Truncate(index.KeyColumnCount())
	anyNull := false
	for _, seg := range keyColumns.Segments {
		if seg.IsNull() {
			anyNull = true
			break
		}
	}
	if !anyNull {
		packed := tuple.Pack(index.Desc.Prefix, ir.Key, tuple.NoEdge)
		if err := sess.Tx().Clear(ctx, packed); err != nil {
			return errs.Classify(err)
		}
		return nil
	}

	begin := tuple.Pack(index.Desc.Prefix, keyColumns, tuple.NoEdge)
	end := tuple.Strinc(begin)
	rangeIter, err := sess.Tx().GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return errs.Classify(err)
	}

	candidate := rentRow(index.Name)
	defer returnRow(index.Name, candidate)

	for {
		kv, ok, err := rangeIter.Next(ctx)
		if err != nil {
			return errs.Classify(err)
		}
		if !ok {
			return nil
		}
		hkeyKey, err := tuple.Unpack(nil, kv.Value)
		if err != nil {
			return errs.NewCorruptValue("index row value is not a valid hkey: " + err.Error())
		}
		candidate.HKey = schema.HKey{Key: hkeyKey}
		if candidate.HKey.Key.Equal(ir.HKey.Key) {
			if err := sess.Tx().Clear(ctx, kv.Key); err != nil {
				return errs.Classify(err)
			}
			return nil
		}
	}
}
