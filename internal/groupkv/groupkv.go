// Package groupkv implements range scans over a group's hkey-ordered
// rows: the full group, a single hkey's subtree, and a resumable paged
// scan used by long traversals.
package groupkv

import (
	"context"

	"github.com/flatkv/sqladapter/internal/errs"
	"github.com/flatkv/sqladapter/internal/kvapi"
	"github.com/flatkv/sqladapter/internal/schema"
	"github.com/flatkv/sqladapter/internal/session"
	"github.com/flatkv/sqladapter/internal/tuple"
)

// Iterator yields (hkey, RowData) pairs in strictly ascending packed-key
// order.
type Iterator struct {
	ctx    context.Context
	prefix []byte
	inner  kvapi.RangeIterator

	last    tuple.Key
	hasLast bool
}

// Row is one decoded group row.
type Row struct {
	HKey  schema.HKey
	Value schema.RowData
}

func newIterator(ctx context.Context, prefix []byte, inner kvapi.RangeIterator) *Iterator {
	return &Iterator{ctx: ctx, prefix: prefix, inner: inner}
}

// Next decodes the next row, or returns ok=false once exhausted.
func (it *Iterator) Next() (Row, bool, error) {
	kv, ok, err := it.inner.Next(it.ctx)
	if err != nil || !ok {
		return Row{}, false, err
	}
	key, err := tuple.Unpack(it.prefix, kv.Key)
	if err != nil {
		return Row{}, false, err
	}
	it.last = key
	it.hasLast = true
	return Row{HKey: schema.HKey{Key: key}, Value: schema.RowData(kv.Value)}, true, nil
}

// Last returns the hkey of the most recently returned row, for use as the
// restart point of a resumable scan. ok is false if Next has not yet
// returned a row.
func (it *Iterator) Last() (schema.HKey, bool) {
	if !it.hasLast {
		return schema.HKey{}, false
	}
	return schema.HKey{Key: it.last}, true
}

// Iter returns every row of group, in ascending hkey order.
func Iter(ctx context.Context, sess *session.Session, group schema.Group) (*Iterator, error) {
	prefix := group.Desc.Prefix
	begin := tuple.PackPrefix(prefix)
	end := tuple.Strinc(prefix)
	rangeIter, err := sess.Tx().GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return nil, errs.Classify(err)
	}
	return newIterator(ctx, prefix, rangeIter), nil
}

// IterSubtree returns every row whose hkey starts with hKey: the
// half-open range [pack(group,hKey), pack(group,hKey,AFTER)).
func IterSubtree(ctx context.Context, sess *session.Session, group schema.Group, hKey schema.HKey) (*Iterator, error) {
	prefix := group.Desc.Prefix
	begin := tuple.Pack(prefix, hKey.Key, tuple.NoEdge)
	end := tuple.Pack(prefix, hKey.Key, tuple.After)
	rangeIter, err := sess.Tx().GetRange(ctx, begin, end, 0, false)
	if err != nil {
		return nil, errs.Classify(err)
	}
	return newIterator(ctx, prefix, rangeIter), nil
}

// IterPage returns up to limit rows starting strictly after restart (or
// from the start of the group when restart is not ok), for a resumable
// paged scan. A zero limit means unbounded.
func IterPage(ctx context.Context, sess *session.Session, group schema.Group, limit int, restart schema.HKey, restartOK bool) (*Iterator, error) {
	prefix := group.Desc.Prefix
	var begin []byte
	if restartOK {
		begin = tuple.Pack(prefix, restart.Key, tuple.Before)
	} else {
		begin = tuple.PackPrefix(prefix)
	}
	end := tuple.Strinc(prefix)
	rangeIter, err := sess.Tx().GetRange(ctx, begin, end, limit, false)
	if err != nil {
		return nil, errs.Classify(err)
	}
	return newIterator(ctx, prefix, rangeIter), nil
}
