package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orindb/orindb/internal/page"
)

func TestHandleCloneIncrementsPinAndSurvivesOriginalClose(t *testing.T) {
	m, id := newTestManager(t, 2)

	h, err := m.GetBlock(id, 0, nil)
	require.NoError(t, err)

	clone, err := h.Clone()
	require.NoError(t, err)
	require.Equal(t, int32(2), m.frames[0].PinCount())

	require.NoError(t, h.Close())
	require.Equal(t, int32(1), m.frames[0].PinCount(), "clone's pin must keep the frame alive")

	require.NoError(t, clone.Close())
	require.Equal(t, int32(0), m.frames[0].PinCount())
}

func TestHandleMoveTransfersOwnershipWithoutPinTraffic(t *testing.T) {
	m, id := newTestManager(t, 1)

	h, err := m.GetBlock(id, 0, nil)
	require.NoError(t, err)
	require.Equal(t, int32(1), m.frames[0].PinCount())

	moved := h.Move()
	require.False(t, h.Valid(), "source handle must be invalidated by Move")
	require.True(t, moved.Valid())
	require.Equal(t, int32(1), m.frames[0].PinCount(), "move must not change the pin count")

	require.NoError(t, h.Close(), "closing an already-moved-from handle is a no-op")
	require.Equal(t, int32(1), m.frames[0].PinCount())

	require.NoError(t, moved.Close())
	require.Equal(t, int32(0), m.frames[0].PinCount())
}

func TestHandleDoubleCloseIsNoOp(t *testing.T) {
	m, id := newTestManager(t, 1)

	h, err := m.GetBlock(id, 0, nil)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
}

func TestHandleOperationsFailAfterClose(t *testing.T) {
	m, id := newTestManager(t, 1)

	h, err := m.GetBlock(id, 0, nil)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	buf := make([]byte, page.Size)
	require.ErrorIs(t, h.GetPage(buf), ErrClosed)
	require.ErrorIs(t, h.WritePage(buf), ErrClosed)
	require.ErrorIs(t, h.SetDeleteWaited(), ErrClosed)

	_, err = h.Clone()
	require.ErrorIs(t, err, ErrClosed)
}

func TestHandleGetAndWritePageRoundTrip(t *testing.T) {
	m, id := newTestManager(t, 1)

	h, err := m.GetNewBlock(id, page.Leaf)
	require.NoError(t, err)
	defer h.Close()

	img := page.New(page.Leaf)
	img[200] = 0xAB
	require.NoError(t, h.WritePage(img))

	out := make([]byte, page.Size)
	require.NoError(t, h.GetPage(out))
	require.Equal(t, byte(0xAB), out[200])
}
