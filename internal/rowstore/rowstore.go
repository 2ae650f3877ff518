// Package rowstore implements the single-row storage adapter: store,
// fetch, clear and a descendant iterator over one table/group's packed
// key space. It performs no uniqueness checking — that is the index
// writer's job (package indexkv).
package rowstore

import (
	"context"

	"github.com/flatkv/sqladapter/internal/errs"
	"github.com/flatkv/sqladapter/internal/kvapi"
	"github.com/flatkv/sqladapter/internal/metrics"
	"github.com/flatkv/sqladapter/internal/schema"
	"github.com/flatkv/sqladapter/internal/session"
	"github.com/flatkv/sqladapter/internal/tuple"
)

// Row is a single decoded or to-be-written (key, value) pair.
type Row struct {
	Key   tuple.Key
	Value schema.RowData
}

// Store writes row under desc, unconditionally overwriting any existing
// value at that key, and increments RowsStored.
func Store(ctx context.Context, sess *session.Session, desc schema.StorageDescription, row Row, m *metrics.Counters) error {
	packed := tuple.Pack(desc.Prefix, row.Key, tuple.NoEdge)
	if err := sess.Tx().Set(ctx, packed, row.Value); err != nil {
		return errs.Classify(err)
	}
	if m != nil {
		m.RowsStored.Inc()
	}
	return nil
}

// Fetch reads the value at (desc, key), reporting whether it existed,
// and increments RowsFetched.
func Fetch(ctx context.Context, sess *session.Session, desc schema.StorageDescription, key tuple.Key, m *metrics.Counters) (row Row, existed bool, err error) {
	packed := tuple.Pack(desc.Prefix, key, tuple.NoEdge)
	v, err := sess.Tx().Get(ctx, packed)
	if err != nil {
		return Row{}, false, errs.Classify(err)
	}
	if m != nil {
		m.RowsFetched.Inc()
	}
	if v == nil {
		return Row{}, false, nil
	}
	return Row{Key: key, Value: schema.RowData(v)}, true, nil
}

// Clear deletes the value at (desc, key), reporting whether it existed,
// and increments RowsCleared.
//
// The existed flag costs an extra point Get ahead of the Clear, since
// kvapi.Tx.Clear doesn't report what it removed. Callers that don't need
// the flag pay that read anyway today; giving Clear itself a "previous
// value" return would let us drop it.
func Clear(ctx context.Context, sess *session.Session, desc schema.StorageDescription, key tuple.Key, m *metrics.Counters) (existed bool, err error) {
	packed := tuple.Pack(desc.Prefix, key, tuple.NoEdge)
	v, err := sess.Tx().Get(ctx, packed)
	if err != nil {
		return false, errs.Classify(err)
	}
	if err := sess.Tx().Clear(ctx, packed); err != nil {
		return false, errs.Classify(err)
	}
	if m != nil {
		m.RowsCleared.Inc()
	}
	return v != nil, nil
}

// DescendantIterator returns every row whose packed key starts with
// pack(desc, key), including the row at key itself: the half-open range
// [pack(desc,key), pack(desc,key,AFTER)). It is read-only.
func DescendantIterator(ctx context.Context, sess *session.Session, desc schema.StorageDescription, key tuple.Key) (*Iterator, error) {
	begin := tuple.Pack(desc.Prefix, key, tuple.NoEdge)
	end := tuple.Pack(desc.Prefix, key, tuple.After)
	rangeIter, err := sess.Tx().GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return nil, errs.Classify(err)
	}
	return &Iterator{ctx: ctx, desc: desc, inner: rangeIter}, nil
}

// Iterator decodes raw KV pairs from a descendant scan back into Rows.
type Iterator struct {
	ctx   context.Context
	desc  schema.StorageDescription
	inner kvapi.RangeIterator
}

// Next decodes the next row, or returns ok=false once exhausted.
func (it *Iterator) Next() (Row, bool, error) {
	kv, ok, err := it.inner.Next(it.ctx)
	if err != nil || !ok {
		return Row{}, false, err
	}
	key, err := tuple.Unpack(it.desc.Prefix, kv.Key)
	if err != nil {
		return Row{}, false, err
	}
	return Row{Key: key, Value: schema.RowData(kv.Value)}, true, nil
}
