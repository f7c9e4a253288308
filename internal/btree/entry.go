package btree

import "github.com/orindb/orindb/internal/page"

// Every node page (leaf or internal) shares the same small header: the
// page.Type tag at offset 0 (written by page.New/GetNewBlock) and an
// entry count at countOffset. Entries themselves start at entriesOffset
// and are fixed width, so capacity is a simple division — there is no
// slotted directory, unlike a general-purpose heap page.
const (
	countOffset   = 2
	entriesOffset = 8

	// maxValueLen bounds a leaf entry's value to what fits inline in a
	// single page alongside its siblings. Values larger than this need an
	// overflow mechanism this index does not implement.
	maxValueLen = 200

	leafEntrySize     = 8 + 2 + maxValueLen // key + value length + value
	internalEntrySize = 8 + 8               // key + child page number
)

func maxLeafEntries() int     { return (page.Size - entriesOffset) / leafEntrySize }
func maxInternalEntries() int { return (page.Size - entriesOffset) / internalEntrySize }

func entryCount(buf []byte) int      { return int(page.GetU16(buf, countOffset)) }
func setEntryCount(buf []byte, n int) { page.PutU16(buf, countOffset, uint16(n)) }

type leafEntry struct {
	key   int64
	value []byte
}

func encodeLeafEntry(buf []byte, idx int, e leafEntry) error {
	if len(e.value) > maxValueLen {
		return ErrValueTooLarge
	}
	off := entriesOffset + idx*leafEntrySize
	page.PutU64(buf, off, uint64(e.key))
	page.PutU16(buf, off+8, uint16(len(e.value)))
	n := copy(buf[off+10:off+10+maxValueLen], e.value)
	for i := off + 10 + n; i < off+10+maxValueLen; i++ {
		buf[i] = 0
	}
	return nil
}

func decodeLeafEntry(buf []byte, idx int) leafEntry {
	off := entriesOffset + idx*leafEntrySize
	key := int64(page.GetU64(buf, off))
	vlen := int(page.GetU16(buf, off+8))
	val := make([]byte, vlen)
	copy(val, buf[off+10:off+10+vlen])
	return leafEntry{key: key, value: val}
}

type internalEntry struct {
	key   int64
	child uint64
}

func encodeInternalEntry(buf []byte, idx int, e internalEntry) {
	off := entriesOffset + idx*internalEntrySize
	page.PutU64(buf, off, uint64(e.key))
	page.PutU64(buf, off+8, e.child)
}

func decodeInternalEntry(buf []byte, idx int) internalEntry {
	off := entriesOffset + idx*internalEntrySize
	key := int64(page.GetU64(buf, off))
	child := page.GetU64(buf, off+8)
	return internalEntry{key: key, child: child}
}
