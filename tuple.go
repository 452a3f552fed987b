package strata

import "strings"

// Tuple is an ordered sequence of DataValues. Two tuples compare
// lexicographically by position; a prefix sorts before any extension of it.
type Tuple []DataValue

// Compare returns -1, 0 or 1 comparing t and o lexicographically.
func (t Tuple) Compare(o Tuple) int {
	n := len(t)
	if len(o) < n {
		n = len(o)
	}
	for i := 0; i < n; i++ {
		if c := t[i].Compare(o[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(t) < len(o):
		return -1
	case len(t) > len(o):
		return 1
	default:
		return 0
	}
}

// Clone returns a copy of the tuple. DataValues are immutable, so a
// shallow element copy is a full copy.
func (t Tuple) Clone() Tuple {
	if t == nil {
		return nil
	}
	out := make(Tuple, len(t))
	copy(out, t)
	return out
}

// String renders the tuple for debugging and error messages.
func (t Tuple) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range t {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// reassembleTuple substitutes every Guard position of key with the
// corresponding element of val, in order. This is the inverse of the split
// performed by the aggregation write paths: the key holds the grouping
// columns with Guard at aggregated positions, the value holds the
// aggregated accumulators with Guard at grouping positions.
//
// An empty value tuple means pure set semantics; the key already is the
// whole row.
func reassembleTuple(key, val Tuple) Tuple {
	if len(val) == 0 {
		return key
	}
	out := make(Tuple, len(key))
	for i, kv := range key {
		if kv.IsGuard() && i < len(val) {
			out[i] = val[i]
		} else {
			out[i] = kv
		}
	}
	return out
}
