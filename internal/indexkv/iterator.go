// Package indexkv implements range scans over a table or group index
// (forward/reverse, inclusive/exclusive, optionally bounded), the index
// writer (build, uniqueness check, write, delete), and the group-index
// row counter.
package indexkv

import (
	"context"

	"github.com/flatkv/sqladapter/internal/errs"
	"github.com/flatkv/sqladapter/internal/kvapi"
	"github.com/flatkv/sqladapter/internal/schema"
	"github.com/flatkv/sqladapter/internal/session"
	"github.com/flatkv/sqladapter/internal/tuple"
)

// Row is one decoded index row: its key columns plus the hkey of the
// table/group row it points at.
type Row struct {
	Key  tuple.Key
	HKey schema.HKey
}

// Iterator yields index Rows in the direction the scan that produced it
// was opened with.
type Iterator struct {
	ctx    context.Context
	prefix []byte
	inner  kvapi.RangeIterator
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
	hkeySegs, err := tuple.Unpack(nil, kv.Value)
	if err != nil {
		return Row{}, false, errs.NewCorruptValue("index row value is not a valid hkey: " + err.Error())
	}
	return Row{Key: key, HKey: schema.HKey{Key: hkeySegs}}, true, nil
}

// Iter opens a scan over index, optionally bounded at key.
//
// When key is absent (hasKey is false) the scan covers the whole index:
// forward from firstGE(E) to firstGT(strinc(E)), or reverse from
// firstGT(E) to firstGT(strinc(E)), per the same boundary rule with K
// taken as the unbounded end of the index.
func Iter(ctx context.Context, sess *session.Session, index schema.Index, key tuple.Key, hasKey bool, inclusive bool, reverse bool) (*Iterator, error) {
	prefix := index.Desc.Prefix
	e := tuple.PackPrefix(prefix)
	strincE := tuple.Strinc(prefix)

	var begin, end []byte
	switch {
	case !reverse && hasKey && inclusive:
		// firstGE(K) .. firstGT(strinc(E))
		begin = tuple.Pack(prefix, key, tuple.NoEdge)
		end = strincE
	case !reverse && hasKey && !inclusive:
		// firstGT(K) .. firstGT(strinc(E))
		begin = tuple.Pack(prefix, key, tuple.Before)
		end = strincE
	case !reverse && !hasKey:
		begin = e
		end = strincE
	case reverse && hasKey && inclusive:
		// firstGT(E) .. firstGT(K)
		begin = e
		end = tuple.Pack(prefix, key, tuple.Before)
	case reverse && hasKey && !inclusive:
		// firstGT(E) .. firstGE(K)
		begin = e
		end = tuple.Pack(prefix, key, tuple.NoEdge)
	case reverse && !hasKey:
		begin = e
		end = strincE
	}

	rangeIter, err := sess.Tx().GetRange(ctx, begin, end, 0, reverse)
	if err != nil {
		return nil, errs.Classify(err)
	}
	return &Iterator{ctx: ctx, prefix: prefix, inner: rangeIter}, nil
}
