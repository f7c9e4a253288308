// Package btree is a B+Tree index over int64 keys and []byte values,
// built entirely on top of bufferpool.Handle: every page this package
// touches is read and written through the buffer pool, never directly
// against a file. It is a consumer of the buffer pool, not part of its
// hard core.
package btree

import (
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/atomic"

	"github.com/orindb/orindb/internal/bufferpool"
	"github.com/orindb/orindb/internal/fileio"
	"github.com/orindb/orindb/internal/page"
)

// heightOffset holds the tree height (uint64) on the header page,
// alongside the root pointer at page.RootOffset.
const heightOffset = 16

// KVPair is a single (key, value) result from RangeScan.
type KVPair struct {
	Key   int64
	Value []byte
}

// Tree is a B+Tree with arbitrary height, backed by one table's pages
// through a shared bufferpool.Manager. Page 0 of the table is always the
// header page, holding the root page number and tree height.
//
// Invariants:
//   - Height >= 1.
//   - Height == 1 -> root is a leaf page.
//   - Height > 1  -> root is an internal page.
type Tree struct {
	bp    *bufferpool.Manager
	table fileio.TableID

	mu     sync.Mutex
	root   uint64
	height int

	closed atomic.Bool
}

// Open loads or initializes the B+Tree stored in table. A freshly created
// (empty) table is recognized by its header page not yet carrying the
// Header type tag, and is initialized with a single empty leaf root.
func Open(bp *bufferpool.Manager, table fileio.TableID) (*Tree, error) {
	buf := make([]byte, page.Size)
	h, err := bp.GetBlock(table, 0, buf)
	if err != nil {
		return nil, fmt.Errorf("btree: open header page: %w", err)
	}
	defer h.Close()

	t := &Tree{bp: bp, table: table}

	if page.TypeOf(buf) == page.Header {
		t.root = page.RootPageNum(buf)
		t.height = int(page.GetU64(buf, heightOffset))
		if t.height < 1 {
			t.height = 1
		}
		slog.Debug("btree.Open", "table", table, "root", t.root, "height", t.height)
		return t, nil
	}

	// Persist a Header-tagged page 0 before allocating the root: the file
	// layer hands out the page past its current end of file, so an empty
	// file would otherwise give the root leaf page number 0.
	header := page.New(page.Header)
	if err := h.WritePage(header); err != nil {
		return nil, fmt.Errorf("btree: write header page: %w", err)
	}
	if err := bp.ClearPages(); err != nil {
		return nil, fmt.Errorf("btree: flush header page: %w", err)
	}

	rootHandle, err := bp.GetNewBlock(table, page.Leaf)
	if err != nil {
		return nil, fmt.Errorf("btree: allocate root leaf: %w", err)
	}
	t.root = rootHandle.PageNum()
	t.height = 1
	if err := rootHandle.Close(); err != nil {
		return nil, err
	}

	page.SetRootPageNum(header, t.root)
	page.PutU64(header, heightOffset, uint64(t.height))
	if err := h.WritePage(header); err != nil {
		return nil, fmt.Errorf("btree: write header page: %w", err)
	}

	slog.Debug("btree.Open.initialized", "table", table, "root", t.root)
	return t, nil
}

func (t *Tree) ensureOpen() error {
	if t.closed.Load() {
		return ErrTreeClosed
	}
	return nil
}

// Close flushes every dirty page belonging to this tree's table back to
// disk. It does not close the underlying table file — the engine owns
// that lifecycle.
func (t *Tree) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.bp.ClearPages()
}

func (t *Tree) syncHeader() error {
	buf := make([]byte, page.Size)
	h, err := t.bp.GetBlock(t.table, 0, buf)
	if err != nil {
		return err
	}
	defer h.Close()
	page.SetRootPageNum(buf, t.root)
	page.PutU64(buf, heightOffset, uint64(t.height))
	return h.WritePage(buf)
}

// Insert adds (key, value) to the tree. It returns ErrKeyExists if key is
// already present — this index enforces unique keys.
func (t *Tree) Insert(key int64, value []byte) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, found, err := t.searchEqualLocked(key); err != nil {
		return err
	} else if found {
		return ErrKeyExists
	}

	newRoot, split, rightMin, rightPage, err := t.insertAt(t.root, t.height, key, value)
	if err != nil {
		return err
	}

	if !split {
		t.root = newRoot
		return t.syncHeader()
	}

	rootHandle, err := t.bp.GetNewBlock(t.table, page.Internal)
	if err != nil {
		return err
	}
	defer rootHandle.Close()

	leftMin, err := t.findMinKeyInSubtree(newRoot, t.height)
	if err != nil {
		return err
	}

	rootBuf := make([]byte, page.Size)
	if err := rootHandle.GetPage(rootBuf); err != nil {
		return err
	}
	if err := writeInternalEntries(rootBuf, []internalEntry{
		{key: leftMin, child: newRoot},
		{key: rightMin, child: rightPage},
	}); err != nil {
		return err
	}
	if err := rootHandle.WritePage(rootBuf); err != nil {
		return err
	}

	t.root = rootHandle.PageNum()
	t.height++
	return t.syncHeader()
}

// insertAt inserts (key, value) into the subtree rooted at pageNum, level
// levels tall (1 = leaf). It returns the (possibly unchanged) root of this
// subtree, whether it split, and the right sibling's min key/page number
// if it did.
func (t *Tree) insertAt(pageNum uint64, level int, key int64, value []byte) (uint64, bool, int64, uint64, error) {
	if level == 1 {
		return t.insertIntoLeaf(pageNum, key, value)
	}
	return t.insertIntoInternal(pageNum, level, key, value)
}

func (t *Tree) insertIntoLeaf(pageNum uint64, key int64, value []byte) (uint64, bool, int64, uint64, error) {
	buf := make([]byte, page.Size)
	h, err := t.bp.GetBlock(t.table, pageNum, buf)
	if err != nil {
		return 0, false, 0, 0, err
	}
	defer h.Close()

	entries := readLeafEntries(buf)
	entries = append(entries, leafEntry{key: key, value: value})
	sortLeafEntries(entries)

	maxPer := maxLeafEntries()
	if len(entries) <= maxPer {
		if err := writeLeafEntries(buf, entries); err != nil {
			return 0, false, 0, 0, err
		}
		if err := h.WritePage(buf); err != nil {
			return 0, false, 0, 0, err
		}
		return pageNum, false, 0, 0, nil
	}

	mid := len(entries) / 2
	left, right := entries[:mid], entries[mid:]

	if err := writeLeafEntries(buf, left); err != nil {
		return 0, false, 0, 0, err
	}
	if err := h.WritePage(buf); err != nil {
		return 0, false, 0, 0, err
	}

	rightHandle, err := t.bp.GetNewBlock(t.table, page.Leaf)
	if err != nil {
		return 0, false, 0, 0, err
	}
	defer rightHandle.Close()

	rightBuf := page.New(page.Leaf)
	if err := writeLeafEntries(rightBuf, right); err != nil {
		return 0, false, 0, 0, err
	}
	if err := rightHandle.WritePage(rightBuf); err != nil {
		return 0, false, 0, 0, err
	}

	return pageNum, true, right[0].key, rightHandle.PageNum(), nil
}

func (t *Tree) insertIntoInternal(pageNum uint64, level int, key int64, value []byte) (uint64, bool, int64, uint64, error) {
	buf := make([]byte, page.Size)
	h, err := t.bp.GetBlock(t.table, pageNum, buf)
	if err != nil {
		return 0, false, 0, 0, err
	}
	defer h.Close()

	entries := readInternalEntries(buf)
	idx, childPage, err := findChildIndex(entries, key)
	if err != nil {
		return 0, false, 0, 0, err
	}

	childNew, childSplit, childRightMin, childRightPage, err := t.insertAt(childPage, level-1, key, value)
	if err != nil {
		return 0, false, 0, 0, err
	}
	entries[idx].child = childNew
	if childSplit {
		entries = append(entries, internalEntry{key: childRightMin, child: childRightPage})
	}
	sortInternalEntries(entries)

	maxPer := maxInternalEntries()
	if len(entries) <= maxPer {
		if err := writeInternalEntries(buf, entries); err != nil {
			return 0, false, 0, 0, err
		}
		if err := h.WritePage(buf); err != nil {
			return 0, false, 0, 0, err
		}
		return pageNum, false, 0, 0, nil
	}

	leftCount := len(entries) / 2
	left, right := entries[:leftCount], entries[leftCount:]

	if err := writeInternalEntries(buf, left); err != nil {
		return 0, false, 0, 0, err
	}
	if err := h.WritePage(buf); err != nil {
		return 0, false, 0, 0, err
	}

	rightHandle, err := t.bp.GetNewBlock(t.table, page.Internal)
	if err != nil {
		return 0, false, 0, 0, err
	}
	defer rightHandle.Close()

	rightBuf := page.New(page.Internal)
	if err := writeInternalEntries(rightBuf, right); err != nil {
		return 0, false, 0, 0, err
	}
	if err := rightHandle.WritePage(rightBuf); err != nil {
		return 0, false, 0, 0, err
	}

	return pageNum, true, right[0].key, rightHandle.PageNum(), nil
}

// SearchEqual returns the value stored for key, if any.
func (t *Tree) SearchEqual(key int64) ([]byte, bool, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.searchEqualLocked(key)
}

func (t *Tree) searchEqualLocked(key int64) ([]byte, bool, error) {
	pageNum, level := t.root, t.height
	for level > 1 {
		buf := make([]byte, page.Size)
		h, err := t.bp.GetBlock(t.table, pageNum, buf)
		if err != nil {
			return nil, false, err
		}
		entries := readInternalEntries(buf)
		_, child, err := findChildIndex(entries, key)
		_ = h.Close()
		if err != nil {
			return nil, false, err
		}
		pageNum = child
		level--
	}

	buf := make([]byte, page.Size)
	h, err := t.bp.GetBlock(t.table, pageNum, buf)
	if err != nil {
		return nil, false, err
	}
	defer h.Close()

	entries := readLeafEntries(buf)
	sortLeafEntries(entries)
	val, found := findEqualLeaf(entries, key)
	return val, found, nil
}

// Delete removes key from the tree. It returns ErrNotFound if key is
// absent. This implementation only rewrites the owning leaf; it does not
// rebalance or merge underflowed nodes across levels (see DESIGN.md).
func (t *Tree) Delete(key int64) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	pageNum, level := t.root, t.height
	for level > 1 {
		buf := make([]byte, page.Size)
		h, err := t.bp.GetBlock(t.table, pageNum, buf)
		if err != nil {
			return err
		}
		entries := readInternalEntries(buf)
		_, child, err := findChildIndex(entries, key)
		_ = h.Close()
		if err != nil {
			return err
		}
		pageNum = child
		level--
	}

	buf := make([]byte, page.Size)
	h, err := t.bp.GetBlock(t.table, pageNum, buf)
	if err != nil {
		return err
	}
	defer h.Close()

	entries := readLeafEntries(buf)
	sortLeafEntries(entries)
	idx := lowerBoundLeaf(entries, key)
	if idx >= len(entries) || entries[idx].key != key {
		return ErrNotFound
	}
	entries = append(entries[:idx], entries[idx+1:]...)

	if err := writeLeafEntries(buf, entries); err != nil {
		return err
	}
	return h.WritePage(buf)
}

// RangeScan returns every (key, value) with minKey <= key <= maxKey. There
// is no leaf sibling chain, so this walks the whole tree rather than
// seeking to minKey and scanning forward; see rangeScanAt for why subtrees
// are not pruned by separator key.
func (t *Tree) RangeScan(minKey, maxKey int64) ([]KVPair, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []KVPair
	if err := t.rangeScanAt(t.root, t.height, minKey, maxKey, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree) rangeScanAt(pageNum uint64, level int, minKey, maxKey int64, out *[]KVPair) error {
	buf := make([]byte, page.Size)
	h, err := t.bp.GetBlock(t.table, pageNum, buf)
	if err != nil {
		return err
	}

	if level == 1 {
		entries := readLeafEntries(buf)
		sortLeafEntries(entries)
		*out = append(*out, rangeLeaf(entries, minKey, maxKey)...)
		return h.Close()
	}

	entries := readInternalEntries(buf)
	if err := h.Close(); err != nil {
		return err
	}

	// Separator keys mark a child's min key only as of its last split or
	// creation; a later insert can land a smaller key in that child
	// without updating the separator (same as the teacher). So every
	// child is visited unconditionally rather than pruned by key range.
	for _, e := range entries {
		if err := t.rangeScanAt(e.child, level-1, minKey, maxKey, out); err != nil {
			return err
		}
	}
	return nil
}

// findMinKeyInSubtree returns the smallest key stored in the subtree
// rooted at pageNum, level levels tall.
func (t *Tree) findMinKeyInSubtree(pageNum uint64, level int) (int64, error) {
	buf := make([]byte, page.Size)
	h, err := t.bp.GetBlock(t.table, pageNum, buf)
	if err != nil {
		return 0, err
	}
	defer h.Close()

	if level == 1 {
		entries := readLeafEntries(buf)
		sortLeafEntries(entries)
		if len(entries) == 0 {
			return 0, fmt.Errorf("btree: leaf %d has no keys", pageNum)
		}
		return entries[0].key, nil
	}

	entries := readInternalEntries(buf)
	sortInternalEntries(entries)
	if len(entries) == 0 {
		return 0, errInternalHasNoEntries
	}
	return t.findMinKeyInSubtree(entries[0].child, level-1)
}
