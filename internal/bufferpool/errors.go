package bufferpool

import "errors"

var (
	// ErrNoSpace is returned by GetBlock/GetNewBlock when every frame is
	// pinned and none can be evicted.
	ErrNoSpace = errors.New("bufferpool: no space (all frames pinned)")

	// ErrPageNotResident is returned by operations that require an already
	// resident frame (GetPage, WritePage, SetDeleteWaited, typed accessors)
	// when the frame is no longer there. Under correct handle discipline
	// this should never happen: a valid Handle implies pin_count >= 1.
	ErrPageNotResident = errors.New("bufferpool: page not resident")

	// ErrPagePinned is returned by the direct (handle-independent) FreePage
	// when the target frame is still pinned. A pinned page must go through
	// SetDeleteWaited instead, so its release can finish the free safely.
	ErrPagePinned = errors.New("bufferpool: page is pinned")

	// ErrClosed is returned by Handle operations (GetPage, WritePage,
	// SetDeleteWaited, Clone) after the handle has been closed or moved
	// from. Closing an already closed handle is a no-op, not an error.
	ErrClosed = errors.New("bufferpool: handle already closed")
)
