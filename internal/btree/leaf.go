package btree

import "sort"

// readLeafEntries decodes every entry physically stored on the page, in
// slot order (not necessarily sorted by key).
func readLeafEntries(buf []byte) []leafEntry {
	n := entryCount(buf)
	out := make([]leafEntry, n)
	for i := 0; i < n; i++ {
		out[i] = decodeLeafEntry(buf, i)
	}
	return out
}

// writeLeafEntries rewrites the page's entry region and count from
// entries, in the given order. Callers sort first when order matters.
func writeLeafEntries(buf []byte, entries []leafEntry) error {
	if len(entries) > maxLeafEntries() {
		return errLeafFull
	}
	for i, e := range entries {
		if err := encodeLeafEntry(buf, i, e); err != nil {
			return err
		}
	}
	setEntryCount(buf, len(entries))
	return nil
}

func sortLeafEntries(entries []leafEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
}

// lowerBoundLeaf returns the first index i such that entries[i].key >= target,
// or len(entries) if no such index exists. entries must be sorted.
func lowerBoundLeaf(entries []leafEntry, target int64) int {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if entries[mid].key < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// findEqualLeaf returns the value stored for key, if present, in a sorted
// entry slice.
func findEqualLeaf(entries []leafEntry, key int64) ([]byte, bool) {
	i := lowerBoundLeaf(entries, key)
	if i < len(entries) && entries[i].key == key {
		return entries[i].value, true
	}
	return nil, false
}

// rangeLeaf returns every value with minKey <= key <= maxKey from a sorted
// entry slice.
func rangeLeaf(entries []leafEntry, minKey, maxKey int64) []KVPair {
	var out []KVPair
	if minKey > maxKey {
		return out
	}
	for i := lowerBoundLeaf(entries, minKey); i < len(entries) && entries[i].key <= maxKey; i++ {
		out = append(out, KVPair{Key: entries[i].key, Value: entries[i].value})
	}
	return out
}
