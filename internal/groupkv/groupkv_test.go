package groupkv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flatkv/sqladapter/internal/groupkv"
	"github.com/flatkv/sqladapter/internal/kvtest"
	"github.com/flatkv/sqladapter/internal/rowstore"
	"github.com/flatkv/sqladapter/internal/schema"
	"github.com/flatkv/sqladapter/internal/session"
	"github.com/flatkv/sqladapter/internal/tuple"
)

func newGroupSession(t *testing.T) *session.Session {
	t.Helper()
	store := kvtest.New()
	sess, err := session.New(context.Background(), store, nil)
	require.NoError(t, err)
	return sess
}

func seedGroup(t *testing.T, sess *session.Session, group schema.Group, hkeys []tuple.Key) {
	t.Helper()
	for i, hk := range hkeys {
		row := rowstore.Row{Key: hk, Value: schema.RowData([]byte{byte(i)})}
		require.NoError(t, rowstore.Store(context.Background(), sess, group.Desc, row, nil))
	}
}

func TestIterFullGroupAscending(t *testing.T) {
	sess := newGroupSession(t)
	group := schema.Group{Desc: schema.StorageDescription{Prefix: []byte{0x30}}}
	hkeys := []tuple.Key{
		tuple.New(tuple.Int(1), tuple.Int(2)),
		tuple.New(tuple.Int(1), tuple.Int(1)),
		tuple.New(tuple.Int(2), tuple.Int(1)),
	}
	seedGroup(t, sess, group, hkeys)

	it, err := groupkv.Iter(context.Background(), sess, group)
	require.NoError(t, err)

	var got []tuple.Key
	for {
		row, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, row.HKey.Key)
	}
	require.Len(t, got, 3)
	require.True(t, got[0].Equal(tuple.New(tuple.Int(1), tuple.Int(1))))
	require.True(t, got[1].Equal(tuple.New(tuple.Int(1), tuple.Int(2))))
	require.True(t, got[2].Equal(tuple.New(tuple.Int(2), tuple.Int(1))))
}

func TestIterSubtreeScopesToHKeyPrefix(t *testing.T) {
	sess := newGroupSession(t)
	group := schema.Group{Desc: schema.StorageDescription{Prefix: []byte{0x31}}}
	hkeys := []tuple.Key{
		tuple.New(tuple.Int(1), tuple.Int(1)),
		tuple.New(tuple.Int(1), tuple.Int(2)),
		tuple.New(tuple.Int(2), tuple.Int(1)),
	}
	seedGroup(t, sess, group, hkeys)

	it, err := groupkv.IterSubtree(context.Background(), sess, group, schema.NewHKey(tuple.Int(1)))
	require.NoError(t, err)

	var count int
	for {
		_, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 2, count)
}

func TestIterPageResumesStrictlyAfterRestart(t *testing.T) {
	sess := newGroupSession(t)
	group := schema.Group{Desc: schema.StorageDescription{Prefix: []byte{0x32}}}
	hkeys := []tuple.Key{
		tuple.New(tuple.Int(1)),
		tuple.New(tuple.Int(2)),
		tuple.New(tuple.Int(3)),
		tuple.New(tuple.Int(4)),
	}
	seedGroup(t, sess, group, hkeys)

	firstPage, err := groupkv.IterPage(context.Background(), sess, group, 2, schema.HKey{}, false)
	require.NoError(t, err)

	var pageOne []tuple.Key
	for {
		row, ok, err := firstPage.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		pageOne = append(pageOne, row.HKey.Key)
	}
	require.Len(t, pageOne, 2)
	require.True(t, pageOne[0].Equal(tuple.New(tuple.Int(1))))
	require.True(t, pageOne[1].Equal(tuple.New(tuple.Int(2))))

	last, ok := firstPage.Last()
	require.True(t, ok)

	secondPage, err := groupkv.IterPage(context.Background(), sess, group, 0, last, true)
	require.NoError(t, err)

	var pageTwo []tuple.Key
	for {
		row, ok, err := secondPage.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		pageTwo = append(pageTwo, row.HKey.Key)
	}
	require.Len(t, pageTwo, 2)
	require.True(t, pageTwo[0].Equal(tuple.New(tuple.Int(3))))
	require.True(t, pageTwo[1].Equal(tuple.New(tuple.Int(4))))
}

func TestIterEmptyGroup(t *testing.T) {
	sess := newGroupSession(t)
	group := schema.Group{Desc: schema.StorageDescription{Prefix: []byte{0x33}}}

	it, err := groupkv.Iter(context.Background(), sess, group)
	require.NoError(t, err)
	_, ok, err := it.Next()
	require.NoError(t, err)
	require.False(t, ok)
}
