package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplacerEvictPicksLargestLastUsedAmongEvictable(t *testing.T) {
	r := newReplacer(4)
	r.Touch(0, 10)
	r.Touch(1, 30)
	r.Touch(2, 20)
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	id, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 1, id, "frame 1 has the largest last-used tick")
}

func TestReplacerSkipsNonEvictable(t *testing.T) {
	r := newReplacer(3)
	r.Touch(0, 5)
	r.Touch(1, 100)
	r.SetEvictable(0, true)
	// frame 1 never marked evictable: still pinned.

	id, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 0, id)
}

func TestReplacerTieBreakKeepsFirstEncountered(t *testing.T) {
	r := newReplacer(3)
	r.Touch(0, 7)
	r.Touch(1, 7)
	r.Touch(2, 7)
	r.SetEvictable(0, true)
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	id, ok := r.Evict()
	require.True(t, ok)
	require.Equal(t, 0, id)
}

func TestReplacerNoEvictableReturnsFalse(t *testing.T) {
	r := newReplacer(2)
	r.Touch(0, 1)
	r.Touch(1, 2)

	_, ok := r.Evict()
	require.False(t, ok)
}

func TestReplacerSetEvictableIgnoredForAbsentFrame(t *testing.T) {
	r := newReplacer(2)
	r.SetEvictable(0, true)

	_, ok := r.Evict()
	require.False(t, ok, "frame never Touch-ed should not become a victim")
}

func TestReplacerRemoveDropsFrame(t *testing.T) {
	r := newReplacer(2)
	r.Touch(0, 1)
	r.SetEvictable(0, true)
	r.Remove(0)

	_, ok := r.Evict()
	require.False(t, ok)
}
