package strata

import "fmt"

// RelationalAlgebra is the capability contract every row-producing
// operator implements: a name for diagnostics, a compiled binding map
// describing the rows it emits, a lazy pull iterator, and an optional
// schema identity for planner passthrough. No implementation inheritance;
// each operator is an independent struct.
type RelationalAlgebra interface {
	// Name returns the operator's display name.
	Name() string
	// BindingMap describes column positions for the rows this operator
	// emits. It must be stable across plan rewrites and independent of
	// runtime data.
	BindingMap() (BindingMap, error)
	// Iter starts lazy row production. The caller must drain or Close
	// the iterator.
	Iter() (TupleIterator, error)
	// Identity returns the target table schema when this operator is a
	// transparent view of one table, nil otherwise.
	Identity() TableInfo
}

// TupleIterator is a lazy, pull-based iterator over operator output rows.
//
// Usage:
//
//	it, err := op.Iter()
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//	    row := it.Row()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type TupleIterator interface {
	// Next advances the iterator. Returns false when exhausted or on
	// error.
	Next() bool
	// Row returns the current row. Only valid after Next returns true.
	Row() *TupleSet
	// Err returns the first error encountered during iteration.
	Err() error
	// Close releases underlying resources.
	Close()
}

// ---------------------------------------------------------------------------
// sliceIterator — wraps materialized rows as a TupleIterator.
// ---------------------------------------------------------------------------

type sliceIterator struct {
	rows []*TupleSet
	idx  int
}

func newSliceIterator(rows []*TupleSet) *sliceIterator {
	return &sliceIterator{rows: rows, idx: -1}
}

func (it *sliceIterator) Next() bool {
	it.idx++
	return it.idx < len(it.rows)
}

func (it *sliceIterator) Row() *TupleSet {
	if it.idx < 0 || it.idx >= len(it.rows) {
		return nil
	}
	return it.rows[it.idx]
}

func (it *sliceIterator) Err() error { return nil }
func (it *sliceIterator) Close()     {}

// ---------------------------------------------------------------------------
// ValuesRel — a leaf operator producing literal rows.
// ---------------------------------------------------------------------------

// ValuesRel is a leaf algebra node emitting a fixed list of rows under one
// binding. The evaluator uses it for literal fact lists; it is also the
// natural upstream source when exercising sink operators in isolation.
type ValuesRel struct {
	binding string
	columns []string
	rows    []Tuple
}

// NewValuesRel builds a literal source. Every row must have one value per
// column.
func NewValuesRel(binding string, columns []string, rows []Tuple) (*ValuesRel, error) {
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has arity %d, want %d", ErrParse, i, len(r), len(columns))
		}
	}
	return &ValuesRel{binding: binding, columns: columns, rows: rows}, nil
}

func (v *ValuesRel) Name() string { return "Values" }

func (v *ValuesRel) BindingMap() (BindingMap, error) {
	inner := make(map[string]TupleSetIdx, len(v.columns))
	for i, col := range v.columns {
		inner[col] = TupleSetIdx{IsKey: false, TSet: 0, ColIdx: i}
	}
	return BindingMap{v.binding: inner}, nil
}

func (v *ValuesRel) Iter() (TupleIterator, error) {
	rows := make([]*TupleSet, len(v.rows))
	for i, r := range v.rows {
		ts := &TupleSet{}
		ts.PushKey(nil)
		ts.PushVal(r)
		rows[i] = ts
	}
	return newSliceIterator(rows), nil
}

func (v *ValuesRel) Identity() TableInfo { return nil }
