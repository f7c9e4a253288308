// Package fileio is the file-layer adapter consumed (not defined) by the
// buffer pool manager: file_open_table, file_read_page, file_write_page,
// file_alloc_page, file_free_page, file_close_tables. It is the only
// component in this repo that reads or writes table files.
package fileio

import (
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"go.uber.org/atomic"

	"github.com/orindb/orindb/internal/page"
)

// TableID identifies an open table/file.
type TableID int64

// Layer is the narrow surface the buffer pool depends on.
type Layer interface {
	OpenTable(path string) (TableID, error)
	ReadPage(id TableID, pageNum uint64, buf []byte) error
	WritePage(id TableID, pageNum uint64, buf []byte) error
	AllocPage(id TableID) (uint64, error)
	FreePage(id TableID, pageNum uint64) error
	CloseTables() error
}

// table tracks the per-table on-disk file and its allocation state.
type table struct {
	path string
	f    afero.File

	mu        sync.Mutex
	pageCount uint64
	freeList  []uint64
}

// FileLayer implements Layer on top of an afero.Fs, so production code runs
// against the real filesystem (afero.NewOsFs()) while tests run against an
// in-memory one (afero.NewMemMapFs()) with identical code paths.
type FileLayer struct {
	fs afero.Fs

	mu       sync.Mutex
	byPath   map[string]TableID
	tables   map[TableID]*table
	nextID   atomic.Int64
}

// New creates a file layer rooted at fs. Every path passed to OpenTable is
// resolved against fs directly (callers are expected to pass paths already
// scoped under a data directory).
func New(fs afero.Fs) *FileLayer {
	return &FileLayer{
		fs:     fs,
		byPath: make(map[string]TableID),
		tables: make(map[TableID]*table),
	}
}

var _ Layer = (*FileLayer)(nil)

// OpenTable opens (creating if absent) the file at path and returns a stable
// TableID. Calling OpenTable twice with the same path returns the same ID.
func (l *FileLayer) OpenTable(path string) (TableID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := l.byPath[path]; ok {
		return id, nil
	}

	f, err := l.fs.OpenFile(path, openFlags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("fileio: open table %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, fmt.Errorf("fileio: stat table %q: %w", path, err)
	}

	id := TableID(l.nextID.Inc())
	l.byPath[path] = id
	l.tables[id] = &table{
		path:      path,
		f:         f,
		pageCount: uint64(info.Size()) / page.Size,
	}
	return id, nil
}

// ReadPage fills buf (must be exactly page.Size bytes) with the contents of
// pageNum. Reading a page beyond the current end of file yields a
// zero-filled buffer rather than an error: a freshly allocated but never
// written page reads as zero.
func (l *FileLayer) ReadPage(id TableID, pageNum uint64, buf []byte) error {
	if len(buf) != page.Size {
		return fmt.Errorf("fileio: read buffer must be %d bytes, got %d", page.Size, len(buf))
	}
	t, err := l.table(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	off := int64(pageNum) * page.Size
	n, err := t.f.ReadAt(buf, off)
	if err != nil && n == 0 {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return nil
}

// WritePage writes buf (must be exactly page.Size bytes) at pageNum.
func (l *FileLayer) WritePage(id TableID, pageNum uint64, buf []byte) error {
	if len(buf) != page.Size {
		return fmt.Errorf("fileio: write buffer must be %d bytes, got %d", page.Size, len(buf))
	}
	t, err := l.table(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	off := int64(pageNum) * page.Size
	if _, err := t.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("fileio: write page %d of table %q: %w", pageNum, t.path, err)
	}
	if pageNum+1 > t.pageCount {
		t.pageCount = pageNum + 1
	}
	return nil
}

// AllocPage returns a fresh page number for id: a recycled one from the
// free list if FreePage ever returned one, otherwise the next page past the
// current end of file.
func (l *FileLayer) AllocPage(id TableID) (uint64, error) {
	t, err := l.table(id)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.freeList); n > 0 {
		pn := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		return pn, nil
	}

	pn := t.pageCount
	t.pageCount++
	return pn, nil
}

// FreePage returns pageNum to id's free list for reuse by a later
// AllocPage. It does not truncate the file or zero the page image.
func (l *FileLayer) FreePage(id TableID, pageNum uint64) error {
	t, err := l.table(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.freeList = append(t.freeList, pageNum)
	return nil
}

// CloseTables closes every open table file. It does not flush — callers
// must ensure dirty frames were written back (the buffer manager's
// Shutdown does this) before calling CloseTables.
func (l *FileLayer) CloseTables() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs error
	for _, t := range l.tables {
		if err := t.f.Close(); err != nil {
			errs = appendErr(errs, fmt.Errorf("fileio: close table %q: %w", t.path, err))
		}
	}
	l.tables = make(map[TableID]*table)
	l.byPath = make(map[string]TableID)
	return errs
}

func (l *FileLayer) table(id TableID) (*table, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tables[id]
	if !ok {
		return nil, fmt.Errorf("fileio: unknown table id %d", id)
	}
	return t, nil
}
