package strata

import "sort"

// tupleMap is the ordered key→value mapping backing one epoch snapshot:
// a sorted slice with binary-search lookup. Epoch snapshots are transient,
// in-memory and bounded by one rule's output, so a flat sorted slice beats
// a tree for scan-heavy access (the finalize pass and every epoch scan
// walk the whole snapshot in order).
type tupleMap struct {
	entries []tupleEntry
}

type tupleEntry struct {
	key Tuple
	val Tuple
}

// search returns the insertion index for k and whether an entry with that
// exact key exists there.
func (m *tupleMap) search(k Tuple) (int, bool) {
	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].key.Compare(k) >= 0
	})
	if i < len(m.entries) && m.entries[i].key.Compare(k) == 0 {
		return i, true
	}
	return i, false
}

// get returns the value stored for k.
func (m *tupleMap) get(k Tuple) (Tuple, bool) {
	if i, ok := m.search(k); ok {
		return m.entries[i].val, true
	}
	return nil, false
}

// getRef returns a pointer to the stored value tuple for in-place merge
// updates, or nil when absent. The pointer is invalidated by the next put.
func (m *tupleMap) getRef(k Tuple) *Tuple {
	if i, ok := m.search(k); ok {
		return &m.entries[i].val
	}
	return nil
}

// put inserts or overwrites k → v, reporting whether the key existed.
func (m *tupleMap) put(k, v Tuple) bool {
	i, ok := m.search(k)
	if ok {
		m.entries[i].val = v
		return true
	}
	m.entries = append(m.entries, tupleEntry{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = tupleEntry{key: k, val: v}
	return false
}

// contains reports whether k is present.
func (m *tupleMap) contains(k Tuple) bool {
	_, ok := m.search(k)
	return ok
}

// size returns the number of entries.
func (m *tupleMap) size() int { return len(m.entries) }

// ascend visits every entry in key order until fn returns false.
func (m *tupleMap) ascend(fn func(k, v Tuple) bool) {
	for i := range m.entries {
		if !fn(m.entries[i].key, m.entries[i].val) {
			return
		}
	}
}

// ascendRange visits entries with lo <= key <= hi in key order.
func (m *tupleMap) ascendRange(lo, hi Tuple, fn func(k, v Tuple) bool) {
	start := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].key.Compare(lo) >= 0
	})
	for i := start; i < len(m.entries); i++ {
		if m.entries[i].key.Compare(hi) > 0 {
			return
		}
		if !fn(m.entries[i].key, m.entries[i].val) {
			return
		}
	}
}
