package strata

import "fmt"

// The extraction expressions the execution core understands. Full
// expression evaluation lives in the grammar/evaluator layer; the operators
// here only need column references and constants, resolved once against a
// BindingMap into positional extractors.

// Extractor produces one scalar from a resolved row. A chain of extractors
// is a key or value builder.
type Extractor interface {
	Extract(ts *TupleSet) (DataValue, error)
}

// Expr is an unresolved extraction expression: a column reference or a
// constant. Resolve compiles it against a binding map; resolution failures
// are build-time errors, never silent coercions.
type Expr interface {
	Resolve(bm BindingMap) (Extractor, error)
}

// ColumnRef references a named column of a named binding.
type ColumnRef struct {
	Binding string
	Column  string
}

// Resolve looks the reference up in the binding map and compiles it to a
// positional extractor.
func (c ColumnRef) Resolve(bm BindingMap) (Extractor, error) {
	inner, ok := bm[c.Binding]
	if !ok {
		return nil, fmt.Errorf("%w: unknown binding %q", ErrParse, c.Binding)
	}
	idx, ok := inner[c.Column]
	if !ok {
		return nil, fmt.Errorf("%w: binding %q has no column %q", ErrParse, c.Binding, c.Column)
	}
	return colExtractor{idx: idx, binding: c.Binding, column: c.Column}, nil
}

// Const is a literal extraction expression.
type Const struct {
	Value DataValue
}

// Resolve returns an extractor that always yields the constant.
func (c Const) Resolve(BindingMap) (Extractor, error) {
	return constExtractor{v: c.Value}, nil
}

type colExtractor struct {
	idx     TupleSetIdx
	binding string
	column  string
}

func (e colExtractor) Extract(ts *TupleSet) (DataValue, error) {
	v, err := ts.ValueAt(e.idx)
	if err != nil {
		return Null, fmt.Errorf("strata: extracting %s.%s: %w", e.binding, e.column, err)
	}
	return v, nil
}

type constExtractor struct {
	v DataValue
}

func (e constExtractor) Extract(*TupleSet) (DataValue, error) { return e.v, nil }

// resolveExtractMap compiles a column-name → expression dictionary against
// the upstream operator's binding map. This is the per-operator "partial
// evaluation" step: after it, per-row work is pure position lookups.
func resolveExtractMap(m map[string]Expr, bm BindingMap) (map[string]Extractor, error) {
	out := make(map[string]Extractor, len(m))
	for name, expr := range m {
		ex, err := expr.Resolve(bm)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		out[name] = ex
	}
	return out, nil
}

// evalTuple runs an extractor chain against one row.
func evalTuple(builders []Extractor, ts *TupleSet) (Tuple, error) {
	out := make(Tuple, len(builders))
	for i, b := range builders {
		v, err := b.Extract(ts)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
