package btree

import "sort"

// readInternalEntries decodes every (minKey, childPageNum) pair physically
// stored on the page, in slot order.
func readInternalEntries(buf []byte) []internalEntry {
	n := entryCount(buf)
	out := make([]internalEntry, n)
	for i := 0; i < n; i++ {
		out[i] = decodeInternalEntry(buf, i)
	}
	return out
}

func writeInternalEntries(buf []byte, entries []internalEntry) error {
	if len(entries) > maxInternalEntries() {
		return errInternalFull
	}
	for i, e := range entries {
		encodeInternalEntry(buf, i, e)
	}
	setEntryCount(buf, len(entries))
	return nil
}

func sortInternalEntries(entries []internalEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].key != entries[j].key {
			return entries[i].key < entries[j].key
		}
		return entries[i].child < entries[j].child
	})
}

// findChildIndex chooses which child to descend into for key, given
// entries sorted ascending by minKey: each entry's key is the minimum key
// stored in its child subtree (except the first, the leftmost). The last
// entry whose key <= the search key wins; ties with the loop bound break
// toward the final entry.
func findChildIndex(entries []internalEntry, key int64) (int, uint64, error) {
	if len(entries) == 0 {
		return 0, 0, errInternalHasNoEntries
	}
	for i := 0; i < len(entries)-1; i++ {
		if key < entries[i+1].key {
			return i, entries[i].child, nil
		}
	}
	last := len(entries) - 1
	return last, entries[last].child, nil
}
