package btree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orindb/orindb/internal/page"
)

func newTestLeafEntries(t *testing.T, pairs ...leafEntry) []byte {
	t.Helper()
	buf := page.New(page.Leaf)
	require.NoError(t, writeLeafEntries(buf, pairs))
	return buf
}

func TestWriteAndReadLeafEntriesRoundTrip(t *testing.T) {
	buf := newTestLeafEntries(t,
		leafEntry{key: 3, value: []byte("c")},
		leafEntry{key: 1, value: []byte("a")},
		leafEntry{key: 2, value: []byte("b")},
	)

	got := readLeafEntries(buf)
	require.Len(t, got, 3)
	require.Equal(t, int64(3), got[0].key)
	require.Equal(t, int64(1), got[1].key)
	require.Equal(t, int64(2), got[2].key)
}

func TestSortLeafEntriesOrdersByKey(t *testing.T) {
	entries := []leafEntry{
		{key: 5, value: []byte("e")},
		{key: 1, value: []byte("a")},
		{key: 3, value: []byte("c")},
	}
	sortLeafEntries(entries)
	require.Equal(t, []int64{1, 3, 5}, []int64{entries[0].key, entries[1].key, entries[2].key})
}

func TestLowerBoundLeaf(t *testing.T) {
	entries := []leafEntry{{key: 1}, {key: 3}, {key: 5}, {key: 7}}

	require.Equal(t, 0, lowerBoundLeaf(entries, 0))
	require.Equal(t, 1, lowerBoundLeaf(entries, 3))
	require.Equal(t, 2, lowerBoundLeaf(entries, 4))
	require.Equal(t, 4, lowerBoundLeaf(entries, 8))
}

func TestFindEqualLeaf(t *testing.T) {
	entries := []leafEntry{
		{key: 1, value: []byte("a")},
		{key: 3, value: []byte("c")},
		{key: 5, value: []byte("e")},
	}

	val, found := findEqualLeaf(entries, 3)
	require.True(t, found)
	require.Equal(t, []byte("c"), val)

	_, found = findEqualLeaf(entries, 4)
	require.False(t, found)
}

func TestRangeLeafBoundsInclusive(t *testing.T) {
	entries := []leafEntry{
		{key: 1, value: []byte("a")},
		{key: 2, value: []byte("b")},
		{key: 3, value: []byte("c")},
		{key: 4, value: []byte("d")},
	}

	got := rangeLeaf(entries, 2, 3)
	require.Equal(t, []KVPair{{Key: 2, Value: []byte("b")}, {Key: 3, Value: []byte("c")}}, got)
}

func TestRangeLeafEmptyWhenMinAboveMax(t *testing.T) {
	entries := []leafEntry{{key: 1, value: []byte("a")}}
	require.Empty(t, rangeLeaf(entries, 5, 1))
}

func TestWriteLeafEntriesRejectsTooMany(t *testing.T) {
	buf := page.New(page.Leaf)
	entries := make([]leafEntry, maxLeafEntries()+1)
	for i := range entries {
		entries[i] = leafEntry{key: int64(i), value: []byte("x")}
	}
	require.ErrorIs(t, writeLeafEntries(buf, entries), errLeafFull)
}

func TestWriteLeafEntriesRejectsOversizedValue(t *testing.T) {
	buf := page.New(page.Leaf)
	big := make([]byte, maxValueLen+1)
	require.ErrorIs(t, writeLeafEntries(buf, []leafEntry{{key: 1, value: big}}), ErrValueTooLarge)
}
