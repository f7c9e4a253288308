package bufferpool

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/orindb/orindb/internal/fileio"
	"github.com/orindb/orindb/internal/page"
)

func newTestManager(t *testing.T, capacity int) (*Manager, fileio.TableID) {
	t.Helper()

	fl := fileio.New(afero.NewMemMapFs())
	id, err := fl.OpenTable("/data/t1")
	require.NoError(t, err)

	m, err := New(fl, capacity)
	require.NoError(t, err)
	return m, id
}

func TestGetBlockHitDoesNotRescan(t *testing.T) {
	m, id := newTestManager(t, 4)

	h1, err := m.GetBlock(id, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 1, m.Size())

	h2, err := m.GetBlock(id, 0, nil)
	require.NoError(t, err)
	require.Equal(t, 1, m.Size(), "a hit must not allocate a second frame")
	require.Equal(t, int32(2), m.frames[0].PinCount())

	require.NoError(t, h1.Close())
	require.NoError(t, h2.Close())
}

func TestEvictsLeastRecentlyUsedUnpinnedFrame(t *testing.T) {
	m, id := newTestManager(t, 2)

	h0, err := m.GetBlock(id, 0, nil)
	require.NoError(t, err)
	h1, err := m.GetBlock(id, 1, nil)
	require.NoError(t, err)

	// Release page 0 first, then page 1. The release tick counts down, so
	// page 0 gets the larger tick and becomes the victim next time: the
	// replacer picks the larger last-used tick among evictable frames, and
	// both are now evictable.
	require.NoError(t, h0.Close())
	require.NoError(t, h1.Close())

	idx0 := m.index[pageKey{id, 0}]
	idx1 := m.index[pageKey{id, 1}]
	require.Greater(t, m.frames[idx0].lastUsed, m.frames[idx1].lastUsed,
		"page 0 was released first, so under the decreasing tick it ends up with the larger (more-evictable) value")

	h2, err := m.GetBlock(id, 2, nil)
	require.NoError(t, err)
	defer h2.Close()

	_, stillResident := m.index[pageKey{id, 1}]
	require.True(t, stillResident, "the more recently released frame is not the victim")
	_, zeroResident := m.index[pageKey{id, 0}]
	require.False(t, zeroResident, "the less recently released frame should have been evicted")
}

func TestPinnedFramesAreNeverEvicted(t *testing.T) {
	m, id := newTestManager(t, 1)

	h0, err := m.GetBlock(id, 0, nil)
	require.NoError(t, err)
	defer h0.Close()

	_, err = m.GetBlock(id, 1, nil)
	require.ErrorIs(t, err, ErrNoSpace)
}

func TestDirtyFrameIsFlushedBeforeEviction(t *testing.T) {
	m, id := newTestManager(t, 1)

	h0, err := m.GetNewBlock(id, page.Leaf)
	require.NoError(t, err)
	img := page.New(page.Leaf)
	img[50] = 0x7A
	require.NoError(t, h0.WritePage(img))
	require.NoError(t, h0.Close())

	_, err = m.GetNewBlock(id, page.Leaf)
	require.NoError(t, err)

	out := make([]byte, page.Size)
	require.NoError(t, m.fl.ReadPage(id, 0, out))
	require.Equal(t, byte(0x7A), out[50], "victim's dirty image must be written back before reuse")
}

func TestDeferredDeleteFreesOnLastUnpin(t *testing.T) {
	m, id := newTestManager(t, 2)

	h, err := m.GetNewBlock(id, page.Leaf)
	require.NoError(t, err)
	h2, err := h.Clone()
	require.NoError(t, err)

	require.NoError(t, h.SetDeleteWaited())

	key := pageKey{id, h.PageNum()}
	require.NoError(t, h.Close())
	_, stillThere := m.index[key]
	require.True(t, stillThere, "page must stay resident while another pin remains")

	require.NoError(t, h2.Close())
	_, stillResident := m.index[key]
	require.False(t, stillResident, "page must be freed once the last pin is released")
}

func TestShutdownFlushesDirtyFramesAndClosesTables(t *testing.T) {
	m, id := newTestManager(t, 2)

	h, err := m.GetNewBlock(id, page.Leaf)
	require.NoError(t, err)
	img := page.New(page.Leaf)
	img[0] = byte(page.Leaf)
	img[10] = 9
	require.NoError(t, h.WritePage(img))
	pageNum := h.PageNum()
	require.NoError(t, h.Close())

	require.NoError(t, m.Shutdown())

	fl2 := m.fl
	id2, err := fl2.OpenTable("/data/t1")
	require.NoError(t, err)
	out := make([]byte, page.Size)
	require.NoError(t, fl2.ReadPage(id2, pageNum, out))
	require.Equal(t, byte(9), out[10])
}

func TestGetNewBlockAllocatesAcrossCapacity(t *testing.T) {
	m, id := newTestManager(t, 3)

	h0, err := m.GetNewBlock(id, page.Leaf)
	require.NoError(t, err)
	h1, err := m.GetNewBlock(id, page.Internal)
	require.NoError(t, err)
	h2, err := m.GetNewBlock(id, page.Header)
	require.NoError(t, err)

	require.Equal(t, uint64(0), h0.PageNum())
	require.Equal(t, uint64(1), h1.PageNum())
	require.Equal(t, uint64(2), h2.PageNum())
	require.Equal(t, 3, m.Size())

	require.NoError(t, h0.Close())
	require.NoError(t, h1.Close())
	require.NoError(t, h2.Close())
}

func TestFreePageRejectsPinnedFrame(t *testing.T) {
	m, id := newTestManager(t, 1)

	h, err := m.GetNewBlock(id, page.Leaf)
	require.NoError(t, err)
	defer h.Close()

	err = m.FreePage(id, h.PageNum())
	require.ErrorIs(t, err, ErrPagePinned)
}

func TestSnapshotReportsOnlyOccupiedFrames(t *testing.T) {
	m, id := newTestManager(t, 4)

	h0, err := m.GetNewBlock(id, page.Leaf)
	require.NoError(t, err)
	h1, err := m.GetNewBlock(id, page.Leaf)
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	for _, s := range snap {
		require.Equal(t, id, s.Table)
		require.EqualValues(t, 1, s.PinCount)
	}

	require.NoError(t, h0.Close())
	require.NoError(t, h1.Close())
}
