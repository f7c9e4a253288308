package bufferpool

import "github.com/orindb/orindb/internal/fileio"

// Handle is a pinned reference to a resident page. Constructing one (via
// Manager.GetBlock/GetNewBlock) pins the page; Close unpins it. Clone
// takes out an additional pin on the same page (the copy case); Move
// transfers the single pin this Handle holds to a new Handle and
// invalidates the receiver (the move case), so exactly one Close call per
// pin acquired is still required.
//
// The zero Handle is not valid; only Handles returned by the Manager or by
// Clone/Move are.
//
// Never copy a Handle directly (h2 := h1, returning one by value into a
// second variable, or storing it in a slice/map/field someone else also
// holds) — Go has no copy-constructor hook to catch this. A bare copy
// duplicates valid=true without taking out a second pin, so both copies'
// Close will each call release once for what the buffer pool only counted
// as a single pin. Always go through Clone when a second, independent
// owner is needed.
type Handle struct {
	mgr     *Manager
	table   fileio.TableID
	pageNum uint64
	valid   bool
}

// Table returns the table the handle's page belongs to.
func (h Handle) Table() fileio.TableID { return h.table }

// PageNum returns the handle's page number within its table.
func (h Handle) PageNum() uint64 { return h.pageNum }

// Valid reports whether the handle still holds a pin.
func (h Handle) Valid() bool { return h.valid }

// Clone takes out an additional pin on the same page and returns a new,
// independent Handle to it. The receiver keeps its own pin and remains
// valid.
func (h *Handle) Clone() (Handle, error) {
	if !h.valid {
		return Handle{}, ErrClosed
	}
	h.mgr.mu.Lock()
	idx, ok := h.mgr.index[pageKey{h.table, h.pageNum}]
	if !ok {
		h.mgr.mu.Unlock()
		return Handle{}, ErrPageNotResident
	}
	h.mgr.pinLocked(idx)
	h.mgr.mu.Unlock()
	return Handle{mgr: h.mgr, table: h.table, pageNum: h.pageNum, valid: true}, nil
}

// Move transfers ownership of the receiver's pin to the returned Handle
// and invalidates the receiver. No pin/unpin traffic occurs; this is a
// pure ownership transfer, matching a C++ move constructor.
func (h *Handle) Move() Handle {
	out := Handle{mgr: h.mgr, table: h.table, pageNum: h.pageNum, valid: h.valid}
	h.mgr = nil
	h.valid = false
	return out
}

// Close releases the handle's pin. It is idempotent: closing an already
// closed or zero Handle is a no-op. Callers should defer Close immediately
// after acquiring a Handle.
func (h *Handle) Close() error {
	if !h.valid {
		return nil
	}
	mgr, table, pageNum := h.mgr, h.table, h.pageNum
	h.mgr = nil
	h.valid = false
	return mgr.release(table, pageNum)
}

// GetPage copies this handle's resident page image into out.
func (h Handle) GetPage(out []byte) error {
	if !h.valid {
		return ErrClosed
	}
	return h.mgr.GetPage(h, out)
}

// WritePage overwrites this handle's resident page image and marks it
// dirty.
func (h Handle) WritePage(img []byte) error {
	if !h.valid {
		return ErrClosed
	}
	return h.mgr.WritePage(h, img)
}

// SetDeleteWaited marks this handle's page to be freed once its pin count
// next reaches zero.
func (h Handle) SetDeleteWaited() error {
	if !h.valid {
		return ErrClosed
	}
	return h.mgr.SetDeleteWaited(h)
}
