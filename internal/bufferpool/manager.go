// Package bufferpool is the buffer pool manager: a bounded-capacity cache
// of fixed-size page frames, an approximate-LRU replacement policy, a
// pin-lifetime Handle protocol, a deferred-delete-on-last-unpin scheme, and
// write-back of dirty frames at eviction and shutdown. See SPEC_FULL.md
// for the full contract.
package bufferpool

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/orindb/orindb/internal/fileio"
	"github.com/orindb/orindb/internal/page"
)

const logPrefix = "bufferpool: "

// startTick is the initial value of the release counter. It counts DOWN on
// every release, so the frame released *earliest* ends up with the
// *largest* last_used value: the victim rule (replacer.Evict, largest
// wins) then picks the true least-recently-used unpinned frame. freedTick
// is reserved above startTick so a directly freed frame always outranks
// any naturally-issued tick and becomes the next victim.
const (
	startTick = math.MaxUint64 - 1
	freedTick = math.MaxUint64
)

// pageKey uniquely identifies a resident frame.
type pageKey struct {
	table   fileio.TableID
	pageNum uint64
}

// Frame is a cached page slot and its metadata. A frame whose tableID is 0
// holds no page (the Empty state in SPEC_FULL.md's per-frame state
// machine); 0 is never a valid fileio.TableID since table ids are
// allocated from 1.
type Frame struct {
	tableID      fileio.TableID
	pageNum      uint64
	image        []byte
	dirty        bool
	pinCount     int32
	deleteWaited bool
	lastUsed     uint64
}

// PinCount reports the frame's current pin count (for introspection/tests).
func (f *Frame) PinCount() int32 { return f.pinCount }

// Dirty reports whether the frame has unflushed writes.
func (f *Frame) Dirty() bool { return f.dirty }

func (f *Frame) empty() bool { return f.tableID == 0 }

// Manager is the process-wide buffer pool. One Manager should be created
// via New and shared by every table opened through OpenTable.
type Manager struct {
	fl       fileio.Layer
	capacity int

	mu     sync.Mutex
	frames []*Frame
	index  map[pageKey]int
	repl   *replacer
	tick   atomic.Uint64
}

// New creates a buffer pool manager with the given frame capacity, backed
// by fl for all page I/O. capacity must be at least 1.
func New(fl fileio.Layer, capacity int) (*Manager, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("bufferpool: capacity must be >= 1, got %d", capacity)
	}
	m := &Manager{
		fl:       fl,
		capacity: capacity,
		frames:   make([]*Frame, capacity),
		index:    make(map[pageKey]int),
		repl:     newReplacer(capacity),
	}
	m.tick.Store(startTick)
	return m, nil
}

// Capacity returns the manager's fixed frame capacity.
func (m *Manager) Capacity() int { return m.capacity }

// Size returns the number of frame slots currently allocated (<= Capacity).
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.frames {
		if f != nil {
			n++
		}
	}
	return n
}

// OpenTable delegates to the file layer. Calling it twice with the same
// path returns the same TableID.
func (m *Manager) OpenTable(path string) (fileio.TableID, error) {
	return m.fl.OpenTable(path)
}

// FrameSnapshot is a point-in-time, read-only view of one resident frame,
// for debug-shell introspection (cmd/orindb-cli's frames command).
type FrameSnapshot struct {
	Slot     int
	Table    fileio.TableID
	PageNum  uint64
	Dirty    bool
	PinCount int32
	LastUsed uint64
}

// Snapshot returns a FrameSnapshot for every occupied frame slot, in slot
// order.
func (m *Manager) Snapshot() []FrameSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []FrameSnapshot
	for i, f := range m.frames {
		if f == nil || f.empty() {
			continue
		}
		out = append(out, FrameSnapshot{
			Slot:     i,
			Table:    f.tableID,
			PageNum:  f.pageNum,
			Dirty:    f.dirty,
			PinCount: f.pinCount,
			LastUsed: f.lastUsed,
		})
	}
	return out
}

// GetBlock loads and pins table/pageNum, populating outImage (if non-nil)
// with the resulting page bytes. See SPEC_FULL.md §4.2.
func (m *Manager) GetBlock(table fileio.TableID, pageNum uint64, outImage []byte) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pageKey{table, pageNum}

	// 1) Resident hit short-circuits before any free-slot/victim scan.
	if idx, ok := m.index[key]; ok {
		f := m.frames[idx]
		if outImage != nil {
			copy(outImage, f.image)
		}
		m.pinLocked(idx)
		slog.Debug(logPrefix+"GetBlock hit", "table", table, "page", pageNum, "pin", f.pinCount)
		return Handle{mgr: m, table: table, pageNum: pageNum, valid: true}, nil
	}

	idx, err := m.acquireSlotLocked()
	if err != nil {
		return Handle{}, err
	}

	f := m.frames[idx]
	if f.image == nil {
		f.image = make([]byte, page.Size)
	}
	if err := m.fl.ReadPage(table, pageNum, f.image); err != nil {
		return Handle{}, fmt.Errorf("bufferpool: read page %d of table %d: %w", pageNum, table, err)
	}
	f.tableID = table
	f.pageNum = pageNum
	f.dirty = false
	f.pinCount = 0
	f.deleteWaited = false
	tick := m.tick.Load()
	f.lastUsed = tick
	m.repl.Touch(idx, tick)
	m.index[key] = idx

	if outImage != nil {
		copy(outImage, f.image)
	}
	m.pinLocked(idx)

	slog.Debug(logPrefix+"GetBlock loaded", "table", table, "page", pageNum, "frame", idx)
	return Handle{mgr: m, table: table, pageNum: pageNum, valid: true}, nil
}

// GetNewBlock allocates a fresh page of the given type in table and
// returns a pinned Handle to it. See SPEC_FULL.md §4.3.
func (m *Manager) GetNewBlock(table fileio.TableID, typ page.Type) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.acquireSlotLocked()
	if err != nil {
		return Handle{}, err
	}

	pageNum, err := m.fl.AllocPage(table)
	if err != nil {
		return Handle{}, fmt.Errorf("bufferpool: alloc page in table %d: %w", table, err)
	}

	f := m.frames[idx]
	f.image = page.New(typ)
	f.tableID = table
	f.pageNum = pageNum
	f.dirty = true
	f.pinCount = 0
	f.deleteWaited = false
	tick := m.tick.Load()
	f.lastUsed = tick
	m.repl.Touch(idx, tick)
	m.index[pageKey{table, pageNum}] = idx

	m.pinLocked(idx)

	slog.Debug(logPrefix+"GetNewBlock", "table", table, "page", pageNum, "frame", idx, "type", typ)
	return Handle{mgr: m, table: table, pageNum: pageNum, valid: true}, nil
}

// acquireSlotLocked returns a frame index ready to hold a new page: either
// a never-before-allocated slot, or a flushed, unpinned victim. Callers
// must hold m.mu.
func (m *Manager) acquireSlotLocked() (int, error) {
	for i, f := range m.frames {
		if f == nil {
			m.frames[i] = &Frame{}
			return i, nil
		}
	}

	victim, ok := m.repl.Evict()
	if !ok {
		return 0, ErrNoSpace
	}
	vf := m.frames[victim]
	if vf.dirty {
		if err := m.fl.WritePage(vf.tableID, vf.pageNum, vf.image); err != nil {
			return 0, fmt.Errorf("bufferpool: flush victim page %d of table %d: %w", vf.pageNum, vf.tableID, err)
		}
		vf.dirty = false
	}
	if !vf.empty() {
		delete(m.index, pageKey{vf.tableID, vf.pageNum})
	}
	return victim, nil
}

// pinLocked increments a frame's pin count and marks it non-evictable.
// Callers must hold m.mu.
func (m *Manager) pinLocked(idx int) {
	m.frames[idx].pinCount++
	m.repl.SetEvictable(idx, false)
}

// release decrements a frame's pin count, advances its release tick
// (last_used), and — if the pin count reaches zero and the page is
// delete-waited — frees the page. Every release advances the tick,
// regardless of the resulting pin count, matching SPEC_FULL.md §4.1.
func (m *Manager) release(table fileio.TableID, pageNum uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.index[pageKey{table, pageNum}]
	if !ok {
		return ErrPageNotResident
	}
	f := m.frames[idx]

	tick := m.tick.Dec()
	f.lastUsed = tick
	m.repl.Touch(idx, tick)

	if f.pinCount > 0 {
		f.pinCount--
	}
	if f.pinCount == 0 {
		m.repl.SetEvictable(idx, true)
		if f.deleteWaited {
			return m.freeResidentLocked(idx, false)
		}
	}
	return nil
}

// GetPage copies the resident frame's image into outImage. h must be a
// valid Handle (its pin guarantees residency).
func (m *Manager) GetPage(h Handle, outImage []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.index[pageKey{h.table, h.pageNum}]
	if !ok {
		return ErrPageNotResident
	}
	copy(outImage, m.frames[idx].image)
	return nil
}

// WritePage overwrites the resident frame's image and marks it dirty.
func (m *Manager) WritePage(h Handle, newImage []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.index[pageKey{h.table, h.pageNum}]
	if !ok {
		return ErrPageNotResident
	}
	f := m.frames[idx]
	copy(f.image, newImage)
	f.dirty = true
	return nil
}

// SetDeleteWaited marks h's page to be freed when its pin count next
// reaches zero. See SPEC_FULL.md §4.5.
func (m *Manager) SetDeleteWaited(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.index[pageKey{h.table, h.pageNum}]
	if !ok {
		return ErrPageNotResident
	}
	m.frames[idx].deleteWaited = true
	return nil
}

// FreePage frees table/pageNum directly, independent of any Handle. The
// frame must be resident and unpinned — a page someone still holds a
// Handle to should go through SetDeleteWaited instead. See SPEC_FULL.md
// §4.5 and §9 (open question: identity is invalidated here, closing the
// stale-hit window the original left open).
func (m *Manager) FreePage(table fileio.TableID, pageNum uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.index[pageKey{table, pageNum}]
	if !ok {
		return ErrPageNotResident
	}
	if m.frames[idx].pinCount > 0 {
		return ErrPagePinned
	}
	return m.freeResidentLocked(idx, true)
}

// freeResidentLocked invokes the file layer's free and invalidates the
// frame's identity. When reTick is true (the direct FreePage path, which
// did not just go through release) the frame's tick is set to freedTick
// so it outranks every naturally-issued tick and becomes the next
// victim — §4.5's "immediate eviction candidate" intent, adapted to this
// implementation's largest-wins/decreasing-tick rule (the original's
// literal last_used=0 would make it the *least* preferred victim here).
// When reTick is false, release already just assigned a fresh tick.
func (m *Manager) freeResidentLocked(idx int, reTick bool) error {
	f := m.frames[idx]
	key := pageKey{f.tableID, f.pageNum}

	if err := m.fl.FreePage(f.tableID, f.pageNum); err != nil {
		return fmt.Errorf("bufferpool: free page %d of table %d: %w", f.pageNum, f.tableID, err)
	}

	delete(m.index, key)
	f.tableID = 0
	f.pageNum = 0
	f.deleteWaited = false
	f.dirty = false

	tick := f.lastUsed
	if reTick {
		tick = freedTick
		f.lastUsed = tick
	}
	m.repl.Touch(idx, tick)
	m.repl.SetEvictable(idx, true)
	return nil
}

// Shutdown flushes every dirty frame and closes all tables. Per
// SPEC_FULL.md §9, Shutdown itself performs the flush (the original left
// that to a separate destructor-only path) rather than requiring callers
// to call ClearPages first.
func (m *Manager) Shutdown() error {
	flushErr := m.ClearPages()
	closeErr := m.fl.CloseTables()
	return multierr.Append(flushErr, closeErr)
}

// ClearPages writes back every dirty resident frame. It does not release
// the frame slots themselves; neither does Shutdown. Slots live as long
// as the Manager.
func (m *Manager) ClearPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs error
	for _, f := range m.frames {
		if f == nil || f.empty() || !f.dirty {
			continue
		}
		if err := m.fl.WritePage(f.tableID, f.pageNum, f.image); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("bufferpool: flush page %d of table %d: %w", f.pageNum, f.tableID, err))
			continue
		}
		f.dirty = false
	}
	return errs
}
