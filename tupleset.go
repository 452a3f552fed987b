package strata

import "fmt"

// TupleSetIdx is a compiled positional reference into a TupleSet: which
// slot, whether the key or the value region, and which column. Binding
// resolution produces these once per operator; per-row evaluation is then
// a pair of slice indexes.
type TupleSetIdx struct {
	IsKey  bool
	TSet   int
	ColIdx int
}

// BindingMap maps a binding name (the scope label an operator introduces)
// to its column-name → position table. Built once at operator construction,
// never recomputed per row.
type BindingMap map[string]map[string]TupleSetIdx

// TupleSet is one row produced by an algebra operator. Slot 0 holds the
// primary table's key and value tuples; slots 1..N hold one value tuple per
// associated side table, in declaration order. Association slots may have
// an empty key part (they share the primary key).
type TupleSet struct {
	keys []Tuple
	vals []Tuple
}

// PushKey appends a key tuple as the next slot's key part.
func (ts *TupleSet) PushKey(t Tuple) { ts.keys = append(ts.keys, t) }

// PushVal appends a value tuple as the next slot's value part.
func (ts *TupleSet) PushVal(t Tuple) { ts.vals = append(ts.vals, t) }

// Slots returns the number of value slots.
func (ts *TupleSet) Slots() int { return len(ts.vals) }

// KeyAt returns the key tuple of the given slot, or nil when the slot has
// no key part.
func (ts *TupleSet) KeyAt(slot int) Tuple {
	if slot < 0 || slot >= len(ts.keys) {
		return nil
	}
	return ts.keys[slot]
}

// ValAt returns the value tuple of the given slot, or nil.
func (ts *TupleSet) ValAt(slot int) Tuple {
	if slot < 0 || slot >= len(ts.vals) {
		return nil
	}
	return ts.vals[slot]
}

// ValueAt resolves a compiled position to the scalar it references.
// Out-of-range positions fail loudly: a bad index means binding resolution
// and the producing operator disagree about the row shape.
func (ts *TupleSet) ValueAt(idx TupleSetIdx) (DataValue, error) {
	var region []Tuple
	if idx.IsKey {
		region = ts.keys
	} else {
		region = ts.vals
	}
	if idx.TSet < 0 || idx.TSet >= len(region) {
		return Null, fmt.Errorf("strata: tuple set slot %d out of range (have %d)", idx.TSet, len(region))
	}
	t := region[idx.TSet]
	if idx.ColIdx < 0 || idx.ColIdx >= len(t) {
		return Null, fmt.Errorf("strata: column %d out of range in slot %d (arity %d)", idx.ColIdx, idx.TSet, len(t))
	}
	return t[idx.ColIdx], nil
}
