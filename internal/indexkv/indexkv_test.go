package indexkv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flatkv/sqladapter/internal/errs"
	"github.com/flatkv/sqladapter/internal/indexkv"
	"github.com/flatkv/sqladapter/internal/kvtest"
	"github.com/flatkv/sqladapter/internal/schema"
	"github.com/flatkv/sqladapter/internal/session"
	"github.com/flatkv/sqladapter/internal/tuple"
)

// fieldFunc adapts a plain func into a schema.FieldDef: row is a single
// byte, 0xff meaning SQL NULL and any other value its own int64.
type fieldFunc func(row schema.RowData) (tuple.Segment, bool)

func (f fieldFunc) Extract(row schema.RowData) (tuple.Segment, bool) { return f(row) }

var columnA fieldFunc = func(row schema.RowData) (tuple.Segment, bool) {
	if len(row) == 0 || row[0] == 0xff {
		return tuple.Segment{}, false
	}
	return tuple.Int(int64(row[0])), true
}

func newIndexSession(t *testing.T) *session.Session {
	t.Helper()
	store := kvtest.New()
	sess, err := session.New(context.Background(), store, nil)
	require.NoError(t, err)
	return sess
}

func uniqueIndex() schema.Index {
	return schema.Index{
		Name:   "idx_a",
		Desc:   schema.StorageDescription{Prefix: []byte{0x60}},
		Unique: true,
		Columns: []schema.IndexColumn{
			{Field: columnA},
		},
	}
}

func nullableUniqueIndex() schema.Index {
	return schema.Index{
		Name:                     "idx_a_nullable",
		Desc:                     schema.StorageDescription{Prefix: []byte{0x61}},
		Unique:                   true,
		UniqueAndMayContainNulls: true,
		Columns: []schema.IndexColumn{
			{Field: columnA},
		},
		NullDesc: schema.StorageDescription{Prefix: []byte{0x62}},
	}
}

func TestWriteIndexRowDetectsDuplicate(t *testing.T) {
	ctx := context.Background()
	sess := newIndexSession(t)
	index := uniqueIndex()

	hkey1 := schema.NewHKey(tuple.Int(1))
	ir1, err := indexkv.ConstructIndexRow(ctx, nil, index, schema.RowData{10}, hkey1)
	require.NoError(t, err)
	require.NoError(t, indexkv.CheckUnique(ctx, sess, index, ir1, "row1"))
	require.NoError(t, indexkv.Write(ctx, sess, index, ir1))

	hkey2 := schema.NewHKey(tuple.Int(2))
	ir2, err := indexkv.ConstructIndexRow(ctx, nil, index, schema.RowData{10}, hkey2)
	require.NoError(t, err)
	err = indexkv.CheckUnique(ctx, sess, index, ir2, "row2")
	var dup *errs.DuplicateKey
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "idx_a", dup.IndexName)
}

func TestWriteIndexRowAllowsDistinctValues(t *testing.T) {
	ctx := context.Background()
	sess := newIndexSession(t)
	index := uniqueIndex()

	ir1, err := indexkv.ConstructIndexRow(ctx, nil, index, schema.RowData{10}, schema.NewHKey(tuple.Int(1)))
	require.NoError(t, err)
	require.NoError(t, indexkv.CheckUnique(ctx, sess, index, ir1, "row1"))
	require.NoError(t, indexkv.Write(ctx, sess, index, ir1))

	ir2, err := indexkv.ConstructIndexRow(ctx, nil, index, schema.RowData{11}, schema.NewHKey(tuple.Int(2)))
	require.NoError(t, err)
	require.NoError(t, indexkv.CheckUnique(ctx, sess, index, ir2, "row2"))
	require.NoError(t, indexkv.Write(ctx, sess, index, ir2))
}

func TestNullableUniqueDetectsDuplicateNonNullValues(t *testing.T) {
	ctx := context.Background()
	sess := newIndexSession(t)
	index := nullableUniqueIndex()

	ir1, err := indexkv.ConstructIndexRow(ctx, nil, index, schema.RowData{10}, schema.NewHKey(tuple.Int(1)))
	require.NoError(t, err)
	require.NoError(t, indexkv.CheckUnique(ctx, sess, index, ir1, "row1"))
	require.NoError(t, indexkv.Write(ctx, sess, index, ir1))

	ir2, err := indexkv.ConstructIndexRow(ctx, nil, index, schema.RowData{10}, schema.NewHKey(tuple.Int(2)))
	require.NoError(t, err)
	err = indexkv.CheckUnique(ctx, sess, index, ir2, "row2")
	var dup *errs.DuplicateKey
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "idx_a_nullable", dup.IndexName)
}

func TestNullableUniqueAllowsTwoNullsWithDistinctSeparators(t *testing.T) {
	ctx := context.Background()
	sess := newIndexSession(t)
	store := kvtest.New()
	index := nullableUniqueIndex()

	ir1, err := indexkv.ConstructIndexRow(ctx, store, index, schema.RowData{0xff}, schema.NewHKey(tuple.Int(1)))
	require.NoError(t, err)
	require.NoError(t, indexkv.CheckUnique(ctx, sess, index, ir1, "row1"))
	require.NoError(t, indexkv.Write(ctx, sess, index, ir1))

	ir2, err := indexkv.ConstructIndexRow(ctx, store, index, schema.RowData{0xff}, schema.NewHKey(tuple.Int(2)))
	require.NoError(t, err)
	require.NoError(t, indexkv.CheckUnique(ctx, sess, index, ir2, "row2"))
	require.NoError(t, indexkv.Write(ctx, sess, index, ir2))

	// Null separators are 1 and 2, appended after the null key column.
	require.Equal(t, int64(1), ir1.Key.Segments[1].Int)
	require.Equal(t, int64(2), ir2.Key.Segments[1].Int)

	require.NoError(t, indexkv.Delete(ctx, sess, index, ir1))

	it, err := indexkv.Iter(ctx, sess, index, tuple.Key{}, false, true, false)
	require.NoError(t, err)
	var remaining []schema.HKey
	for {
		row, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		remaining = append(remaining, row.HKey)
	}
	require.Len(t, remaining, 1)
	require.True(t, remaining[0].Key.Equal(ir2.HKey.Key))
}

func TestIterBoundaryTable(t *testing.T) {
	ctx := context.Background()
	sess := newIndexSession(t)
	index := schema.Index{
		Name: "ix",
		Desc: schema.StorageDescription{Prefix: []byte{0x63}},
		Columns: []schema.IndexColumn{{Field: columnA}},
	}

	for i, hk := range []int64{10, 20, 30} {
		ir, err := indexkv.ConstructIndexRow(ctx, nil, index, schema.RowData{byte(hk)}, schema.NewHKey(tuple.Int(int64(i))))
		require.NoError(t, err)
		require.NoError(t, indexkv.Write(ctx, sess, index, ir))
	}

	key20 := tuple.New(tuple.Int(20))

	fwdInclusive, err := indexkv.Iter(ctx, sess, index, key20, true, true, false)
	require.NoError(t, err)
	require.Equal(t, []int64{20, 30}, drainKeyInts(t, fwdInclusive))

	fwdExclusive, err := indexkv.Iter(ctx, sess, index, key20, true, false, false)
	require.NoError(t, err)
	require.Equal(t, []int64{30}, drainKeyInts(t, fwdExclusive))

	revInclusive, err := indexkv.Iter(ctx, sess, index, key20, true, true, true)
	require.NoError(t, err)
	require.Equal(t, []int64{20, 10}, drainKeyInts(t, revInclusive))

	revExclusive, err := indexkv.Iter(ctx, sess, index, key20, true, false, true)
	require.NoError(t, err)
	require.Equal(t, []int64{10}, drainKeyInts(t, revExclusive))
}

func drainKeyInts(t *testing.T, it *indexkv.Iterator) []int64 {
	t.Helper()
	var out []int64
	for {
		row, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, row.Key.Segments[0].Int)
	}
	return out
}

func TestGroupIndexCounter(t *testing.T) {
	ctx := context.Background()
	store := kvtest.New()
	countDesc := schema.StorageDescription{Prefix: []byte{0x70}}
	index := schema.Index{Name: "gi", Desc: schema.StorageDescription{Prefix: []byte{0x71}}, IsGroupIndex: true}

	writeSess, err := session.New(ctx, store, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, indexkv.IncrementCount(ctx, writeSess, countDesc, index, 1))
	}
	require.NoError(t, indexkv.IncrementCount(ctx, writeSess, countDesc, index, -1))
	require.NoError(t, writeSess.Commit(ctx))

	readSess, err := session.New(ctx, store, nil)
	require.NoError(t, err)
	n, err := indexkv.Count(ctx, readSess, countDesc, index)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	approx, err := indexkv.ApproximateCount(ctx, readSess, countDesc, index)
	require.NoError(t, err)
	require.Equal(t, int64(2), approx)

	require.NoError(t, indexkv.TruncateCount(ctx, readSess, countDesc, index))
	require.NoError(t, readSess.Commit(ctx))

	finalSess, err := session.New(ctx, store, nil)
	require.NoError(t, err)
	n, err = indexkv.Count(ctx, finalSess, countDesc, index)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	require.NoError(t, indexkv.RemoveCount(ctx, finalSess, countDesc, index))
}
