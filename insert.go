package strata

import "fmt"

// Operator display names.
const (
	NameInsertion = "Insert"
	NameUpsert    = "Upsert"
)

// ScopedDict is the parsed form of an operator's output-column dictionary:
// the binding name that becomes the operator's output scope, an optional
// keyed part, and the column-name → extraction-expression entries. The
// grammar layer produces these; the operators only consume them.
type ScopedDict struct {
	Binding string
	Keys    map[string]Expr
	Extract map[string]Expr
}

// Insertion is the relational-algebra node that commits derived rows into
// persistent graph storage. It pulls rows from an upstream source, builds
// storage keys and values for the target table, performs conflict
// detection (insert) or blind overwrite (upsert), writes through to the
// root transaction or the session temp store, and re-emits a row
// describing what was written.
//
// Writes are applied per row; if a row fails partway through its multiple
// table writes (primary, inverse, associations), prior writes for that
// row are not undone here. Atomicity, where required, is the enclosing
// transaction scope's responsibility.
type Insertion struct {
	ctx        *DBContext
	source     RelationalAlgebra
	binding    string
	targetInfo TableInfo
	assocInfos []AssocInfo
	extract    map[string]Expr
	upsert     bool
}

// NewInsertion builds an insertion (or upsert) operator.
//
// The target spec is "table" or "table:assoc1,assoc2". The scoped dict
// must not be keyed: insert writes brand-new rows, it does not address
// existing ones by key.
func NewInsertion(ctx *DBContext, source RelationalAlgebra, tableSpec string, dict ScopedDict, upsert bool) (*Insertion, error) {
	name := NameInsertion
	if upsert {
		name = NameUpsert
	}
	if source == nil {
		return nil, fmt.Errorf("%w: %s requires an upstream source", ErrNotEnoughArguments, name)
	}
	if tableSpec == "" {
		return nil, fmt.Errorf("%w: %s requires a target table", ErrNotEnoughArguments, name)
	}
	if len(dict.Keys) != 0 {
		return nil, fmt.Errorf("%w: cannot have keyed map in %s", ErrParse, name)
	}
	if dict.Binding == "" {
		return nil, fmt.Errorf("%w: %s requires a binding name", ErrParse, name)
	}

	tableName, assocNames, err := parseTableWithAssocs(tableSpec)
	if err != nil {
		return nil, err
	}
	targetInfo, ok := ctx.Catalog.Resolve(tableName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTableNotFound, tableName)
	}

	declared := ctx.Catalog.Assocs(targetInfo.TableID())
	assocInfos := make([]AssocInfo, 0, len(assocNames))
	for _, want := range assocNames {
		found := false
		for _, a := range declared {
			if a.Name == want {
				assocInfos = append(assocInfos, a)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q on table %q", ErrAssocNotFound, want, tableName)
		}
	}

	ctx.Log.Debug("insert operator built",
		"op", name, "table", tableName, "assocs", len(assocInfos))

	return &Insertion{
		ctx:        ctx,
		source:     source,
		binding:    dict.Binding,
		targetInfo: targetInfo,
		assocInfos: assocInfos,
		extract:    dict.Extract,
		upsert:     upsert,
	}, nil
}

func (ins *Insertion) Name() string {
	if ins.upsert {
		return NameUpsert
	}
	return NameInsertion
}

// Identity exposes the target schema for planner passthrough.
func (ins *Insertion) Identity() TableInfo { return ins.targetInfo }

// BindingMap exposes the target schema's columns under the operator's
// binding so downstream operators can reference freshly inserted columns
// by name. It is computed from the schema alone, never from the runtime
// extraction dict, so it survives upstream plan rewriting.
//
// Node: key columns at their key positions, value columns at theirs.
// Edge: the emitted key tuple is [src-tid][src keys][marker][dst keys]
// [edge keys], so source keys start at offset 1, destination keys after
// the marker, edge keys after those; values are the edge's own value
// columns. Each association's value columns live at slot = position + 1.
func (ins *Insertion) BindingMap() (BindingMap, error) {
	inner := make(map[string]TupleSetIdx)
	switch info := ins.targetInfo.(type) {
	case *NodeInfo:
		for i, k := range info.Keys {
			inner[k.Name] = TupleSetIdx{IsKey: true, TSet: 0, ColIdx: i}
		}
		for i, v := range info.Vals {
			inner[v.Name] = TupleSetIdx{IsKey: false, TSet: 0, ColIdx: i}
		}
	case *EdgeInfo:
		src, err := ins.ctx.Catalog.NodeByID(info.SrcID)
		if err != nil {
			return nil, err
		}
		dst, err := ins.ctx.Catalog.NodeByID(info.DstID)
		if err != nil {
			return nil, err
		}
		for i, k := range src.Keys {
			inner[k.Name] = TupleSetIdx{IsKey: true, TSet: 0, ColIdx: i + 1}
		}
		for i, k := range dst.Keys {
			inner[k.Name] = TupleSetIdx{IsKey: true, TSet: 0, ColIdx: i + 2 + len(src.Keys)}
		}
		for i, k := range info.Keys {
			inner[k.Name] = TupleSetIdx{IsKey: true, TSet: 0, ColIdx: i + 2 + len(src.Keys) + len(dst.Keys)}
		}
		for i, v := range info.Vals {
			inner[v.Name] = TupleSetIdx{IsKey: false, TSet: 0, ColIdx: i}
		}
	default:
		return nil, fmt.Errorf("strata: cannot build binding map for table %q", ins.targetInfo.TableName())
	}
	for slot, assoc := range ins.assocInfos {
		for i, v := range assoc.Vals {
			inner[v.Name] = TupleSetIdx{IsKey: false, TSet: slot + 1, ColIdx: i}
		}
	}
	return BindingMap{ins.binding: inner}, nil
}

// assocBuilder pairs an association's table id with its value extractors.
type assocBuilder struct {
	tid      TableID
	builders []Extractor
}

// Iter resolves the extraction dict against the upstream binding map,
// compiles the key/value builder set, and returns the lazy per-row
// iterator.
func (ins *Insertion) Iter() (TupleIterator, error) {
	sourceMap, err := ins.source.BindingMap()
	if err != nil {
		return nil, err
	}
	extract, err := resolveExtractMap(ins.extract, sourceMap)
	if err != nil {
		return nil, err
	}
	kb, err := makeKeyBuilderSet(ins.ctx.Catalog, ins.targetInfo, extract)
	if err != nil {
		return nil, err
	}

	assocBuilders := make([]assocBuilder, len(ins.assocInfos))
	for i, info := range ins.assocInfos {
		builders, err := columnExtractors(info.Vals, extract, info.Name)
		if err != nil {
			return nil, err
		}
		assocBuilders[i] = assocBuilder{tid: info.TID, builders: builders}
	}

	upstream, err := ins.source.Iter()
	if err != nil {
		return nil, err
	}

	return &insertIterator{
		ins:           ins,
		upstream:      upstream,
		kb:            kb,
		assocBuilders: assocBuilders,
	}, nil
}

// insertIterator performs the per-row write sequence lazily: all writes
// for one row complete before the next row is pulled from upstream.
type insertIterator struct {
	ins           *Insertion
	upstream      TupleIterator
	kb            *KeyBuilderSet
	assocBuilders []assocBuilder

	row    *TupleSet
	err    error
	closed bool
}

func (it *insertIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	if !it.upstream.Next() {
		it.err = it.upstream.Err()
		return false
	}
	row, err := it.writeRow(it.upstream.Row())
	if err != nil {
		it.err = err
		return false
	}
	it.row = row
	return true
}

func (it *insertIterator) writeRow(src *TupleSet) (*TupleSet, error) {
	ins := it.ins
	target := ins.targetInfo.TableID()
	store := ins.ctx.storeFor(target)

	keyTuple, err := evalTuple(it.kb.Key, src)
	if err != nil {
		return nil, err
	}
	valTuple, err := evalTuple(it.kb.Val, src)
	if err != nil {
		return nil, err
	}
	key := encodeKey(target.ID, keyTuple)
	val, err := encodeValueTuple(valTuple)
	if err != nil {
		return nil, err
	}

	if !ins.upsert {
		existing, err := store.Get(ins.ctx.ReadOpts, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			ins.ctx.Metrics.KeyConflicts.Add(1)
			return nil, &KeyConflictError{Key: keyTuple}
		}
	}
	if err := store.Put(ins.ctx.WriteOpts, key, val); err != nil {
		return nil, err
	}

	// Edge tables also store inverse-key → primary-key for reverse
	// lookup.
	if it.kb.Inv != nil {
		invTuple, err := evalTuple(it.kb.Inv, src)
		if err != nil {
			return nil, err
		}
		invKey := encodeKey(target.ID, invTuple)
		if err := store.Put(ins.ctx.WriteOpts, invKey, key); err != nil {
			return nil, err
		}
	}

	assocVals := make([]Tuple, len(it.assocBuilders))
	for i, ab := range it.assocBuilders {
		ret, err := evalTuple(ab.builders, src)
		if err != nil {
			return nil, err
		}
		encoded, err := encodeValueTuple(ret)
		if err != nil {
			return nil, err
		}
		overwriteKeyPrefix(key, ab.tid.ID)
		assocStore := ins.ctx.storeFor(ab.tid)
		if err := assocStore.Put(ins.ctx.WriteOpts, key, encoded); err != nil {
			return nil, err
		}
		ins.ctx.Metrics.AssocWrites.Add(1)
		assocVals[i] = ret
	}
	overwriteKeyPrefix(key, target.ID)

	if ins.upsert {
		ins.ctx.Metrics.RowsUpserted.Add(1)
	} else {
		ins.ctx.Metrics.RowsInserted.Add(1)
	}

	out := &TupleSet{}
	out.PushKey(keyTuple)
	out.PushVal(valTuple)
	for _, av := range assocVals {
		out.PushVal(av)
	}
	return out, nil
}

func (it *insertIterator) Row() *TupleSet { return it.row }
func (it *insertIterator) Err() error     { return it.err }

func (it *insertIterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.upstream.Close()
}
