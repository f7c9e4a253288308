package bufferpool

import "github.com/orindb/orindb/internal/page"

// Fine-grained field accessors let callers read or write a single
// fixed-width field at a byte offset within a resident page without
// copying the whole image out and back in (the header page's root
// pointer, a leaf slot's key, an internal node's child pointer, ...).

func (m *Manager) frameFor(h Handle) (*Frame, error) {
	idx, ok := m.index[pageKey{h.table, h.pageNum}]
	if !ok {
		return nil, ErrPageNotResident
	}
	return m.frames[idx], nil
}

// GetU16 reads a little-endian uint16 at offset within h's page.
func (m *Manager) GetU16(h Handle, offset int) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.frameFor(h)
	if err != nil {
		return 0, err
	}
	return page.GetU16(f.image, offset), nil
}

// SetU16 writes a little-endian uint16 at offset within h's page and marks
// the frame dirty.
func (m *Manager) SetU16(h Handle, offset int, v uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.frameFor(h)
	if err != nil {
		return err
	}
	page.PutU16(f.image, offset, v)
	f.dirty = true
	return nil
}

// GetU32 reads a little-endian uint32 at offset within h's page.
func (m *Manager) GetU32(h Handle, offset int) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.frameFor(h)
	if err != nil {
		return 0, err
	}
	return page.GetU32(f.image, offset), nil
}

// SetU32 writes a little-endian uint32 at offset within h's page and marks
// the frame dirty.
func (m *Manager) SetU32(h Handle, offset int, v uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.frameFor(h)
	if err != nil {
		return err
	}
	page.PutU32(f.image, offset, v)
	f.dirty = true
	return nil
}

// GetU64 reads a little-endian uint64 at offset within h's page.
func (m *Manager) GetU64(h Handle, offset int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.frameFor(h)
	if err != nil {
		return 0, err
	}
	return page.GetU64(f.image, offset), nil
}

// SetU64 writes a little-endian uint64 at offset within h's page and marks
// the frame dirty.
func (m *Manager) SetU64(h Handle, offset int, v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.frameFor(h)
	if err != nil {
		return err
	}
	page.PutU64(f.image, offset, v)
	f.dirty = true
	return nil
}
