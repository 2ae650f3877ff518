package tuple_test

import (
	"sort"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/flatkv/sqladapter/internal/tuple"
)

var samplePrefix = []byte{0xab, 0xcd}

func TestPackUnpackRoundTrip(t *testing.T) {
	keys := []tuple.Key{
		tuple.New(),
		tuple.New(tuple.Int(0)),
		tuple.New(tuple.Int(-1)),
		tuple.New(tuple.Int(1 << 40)),
		tuple.New(tuple.String("hello")),
		tuple.New(tuple.String("")),
		tuple.New(tuple.String("a\x00b")),
		tuple.New(tuple.BytesSeg([]byte{0x00, 0x01, 0xff})),
		tuple.New(tuple.Null()),
		tuple.New(tuple.Int(7), tuple.String("x"), tuple.Null(), tuple.BytesSeg([]byte{1, 2, 3})),
	}
	for _, k := range keys {
		packed := tuple.Pack(samplePrefix, k, tuple.NoEdge)
		got, err := tuple.Unpack(samplePrefix, packed)
		require.NoError(t, err, "spew dump of packed bytes: %s", spew.Sdump(packed))
		if diff := cmp.Diff(k, got, cmp.Comparer(func(a, b tuple.Key) bool { return a.Equal(b) })); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestUnpackRejectsPrefixMismatch(t *testing.T) {
	packed := tuple.Pack(samplePrefix, tuple.New(tuple.Int(1)), tuple.NoEdge)
	_, err := tuple.Unpack([]byte{0xff, 0xff}, packed)
	require.Error(t, err)
}

func TestIntOrderingMatchesByteOrdering(t *testing.T) {
	values := []int64{-1 << 40, -1000, -1, 0, 1, 1000, 1 << 40}
	packed := make([][]byte, len(values))
	for i, v := range values {
		packed[i] = tuple.Pack(samplePrefix, tuple.New(tuple.Int(v)), tuple.NoEdge)
	}
	require.True(t, sort.SliceIsSorted(packed, func(i, j int) bool {
		return string(packed[i]) < string(packed[j])
	}), "packed ints are not in ascending byte order: %s", spew.Sdump(packed))
}

func TestStringOrderingMatchesByteOrdering(t *testing.T) {
	values := []string{"", "a", "aa", "ab", "b"}
	packed := make([][]byte, len(values))
	for i, v := range values {
		packed[i] = tuple.Pack(samplePrefix, tuple.New(tuple.String(v)), tuple.NoEdge)
	}
	require.True(t, sort.SliceIsSorted(packed, func(i, j int) bool {
		return string(packed[i]) < string(packed[j])
	}))
}

func TestEdgeKeysBoundDescendantsOfTheSameKey(t *testing.T) {
	key := tuple.New(tuple.Int(5))
	real := tuple.Pack(samplePrefix, key, tuple.NoEdge)
	before := tuple.Pack(samplePrefix, key, tuple.Before)
	after := tuple.Pack(samplePrefix, key, tuple.After)

	// The exact key always sorts below any edge-augmented form of itself:
	// it is a strict byte-prefix of both, and any extension of a byte
	// string sorts above the string itself.
	require.True(t, string(real) < string(before))
	require.True(t, string(before) < string(after))

	// A child key (one more segment appended under the same prefix) falls
	// strictly inside (before, after) for any non-null child segment type,
	// bounding the whole subtree rooted at key. (A null child segment's tag
	// is the same 0x00 byte as the Before edge, so it packs equal to before.)
	children := []tuple.Key{
		tuple.New(tuple.Int(5), tuple.String("child")),
		tuple.New(tuple.Int(5), tuple.Int(-1)),
		tuple.New(tuple.Int(5), tuple.BytesSeg([]byte{0x9})),
	}
	for _, c := range children {
		packed := tuple.Pack(samplePrefix, c, tuple.NoEdge)
		require.True(t, string(before) < string(packed), "child %v not above before-edge", c)
		require.True(t, string(packed) < string(after), "child %v not below after-edge", c)
	}
}

func TestStrincStripsTrailingFFAndIncrements(t *testing.T) {
	require.Equal(t, []byte{0x01}, tuple.Strinc([]byte{0x00}))
	require.Equal(t, []byte{0x02}, tuple.Strinc([]byte{0x01}))
	require.Equal(t, []byte{0x01, 0x01}, tuple.Strinc([]byte{0x01, 0x00}))
	require.Equal(t, []byte{0x01}, tuple.Strinc([]byte{0x00, 0xff}))
}

func TestStrincWidensWhenAllFF(t *testing.T) {
	got := tuple.Strinc([]byte{0xff, 0xff})
	require.Equal(t, []byte{0xff, 0xff, 0xff}, got)
}

func TestStrincIsExclusiveUpperBoundOfWholeObjectKeyspace(t *testing.T) {
	prefix := []byte{0x10, 0x20}
	end := tuple.Strinc(prefix)
	keys := []tuple.Key{
		tuple.New(tuple.Int(-1 << 62)),
		tuple.New(tuple.Int(0)),
		tuple.New(tuple.Int(1 << 62)),
		tuple.New(tuple.String("zzzzzzzzzz")),
	}
	for _, k := range keys {
		packed := tuple.Pack(prefix, k, tuple.After)
		require.True(t, string(packed) < string(end), "key %v not below strinc(prefix)", k)
	}
}

func TestKeyTruncate(t *testing.T) {
	k := tuple.New(tuple.Int(1), tuple.Int(2), tuple.Int(3))
	truncated := k.Truncate(2)
	require.Equal(t, 2, truncated.Depth())
	require.True(t, truncated.Equal(tuple.New(tuple.Int(1), tuple.Int(2))))

	// Truncate beyond depth is a no-op.
	require.True(t, k.Truncate(10).Equal(k))
}
