package strata

import "fmt"

// Aggregation wires a declared aggregate function into the two write
// disciplines of the derived relation store:
//
//   - meet: an idempotent, commutative, associative merge used for
//     incremental epoch accumulation. Update reports whether the stored
//     accumulator changed, which is what drives semi-naive convergence.
//   - normal: a stateful accumulate-then-finalize pass applied once per
//     group over the complete epoch-0 relation.
//
// The two modes are mutually exclusive per call site: the evaluator picks
// meet for recursive rules and normal for the final grouping pass.

// MeetOp merges a new row value into a stored accumulator in place.
type MeetOp interface {
	// Update merges cur into *acc and reports whether *acc changed.
	Update(acc *DataValue, cur DataValue) (bool, error)
}

// NormalOp is a stateful accumulator: Set folds in one value, Get
// finalizes.
type NormalOp interface {
	Set(v DataValue) error
	Get() (DataValue, error)
}

// Aggregation is a declared aggregate plus its static construction
// arguments.
type Aggregation struct {
	Name string
	Args []DataValue

	meet          MeetOp
	normal        NormalOp
	normalFactory func(args []DataValue) (NormalOp, error)
}

// NewAggregation resolves an aggregate by name. Unknown names are
// build-time errors.
func NewAggregation(name string, args ...DataValue) (*Aggregation, error) {
	factory, ok := aggrRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown aggregate %q", ErrParse, name)
	}
	return factory(args)
}

// HasMeet reports whether the aggregate supports incremental meet merging.
func (a *Aggregation) HasMeet() bool { return a.meet != nil }

// MeetUpdate merges cur into *acc, reporting change.
func (a *Aggregation) MeetUpdate(acc *DataValue, cur DataValue) (bool, error) {
	if a.meet == nil {
		return false, fmt.Errorf("strata: aggregate %q has no meet mode", a.Name)
	}
	return a.meet.Update(acc, cur)
}

// NormalInit resets the stateful accumulator for a new group.
func (a *Aggregation) NormalInit() error {
	if a.normalFactory == nil {
		return fmt.Errorf("strata: aggregate %q has no normal mode", a.Name)
	}
	op, err := a.normalFactory(a.Args)
	if err != nil {
		return err
	}
	a.normal = op
	return nil
}

// NormalSet folds one value into the current group's accumulator.
func (a *Aggregation) NormalSet(v DataValue) error {
	if a.normal == nil {
		return fmt.Errorf("strata: aggregate %q not initialized", a.Name)
	}
	return a.normal.Set(v)
}

// NormalGet finalizes the current group's accumulator.
func (a *Aggregation) NormalGet() (DataValue, error) {
	if a.normal == nil {
		return Null, fmt.Errorf("strata: aggregate %q not initialized", a.Name)
	}
	return a.normal.Get()
}

// Clone returns an Aggregation with fresh accumulator state, sharing the
// immutable definition. The grouped finalize pass clones its spec list so
// a scan never mutates the caller's declarations.
func (a *Aggregation) Clone() *Aggregation {
	return &Aggregation{
		Name:          a.Name,
		Args:          a.Args,
		meet:          a.meet,
		normalFactory: a.normalFactory,
	}
}

// cloneAggrSpecs deep-copies an aggregate spec list (nil entries stay nil:
// nil means "no aggregate declared at this position").
func cloneAggrSpecs(aggrs []*Aggregation) []*Aggregation {
	out := make([]*Aggregation, len(aggrs))
	for i, a := range aggrs {
		if a != nil {
			out[i] = a.Clone()
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Built-in aggregates
// ---------------------------------------------------------------------------

var aggrRegistry = map[string]func(args []DataValue) (*Aggregation, error){
	"min":            newMinAggr,
	"max":            newMaxAggr,
	"sum":            newSumAggr,
	"count":          newCountAggr,
	"mean":           newMeanAggr,
	"count_distinct": newCountDistinctAggr,
	"choice":         newChoiceAggr,
}

// --- min / max -------------------------------------------------------------

type minMeet struct{}

func (minMeet) Update(acc *DataValue, cur DataValue) (bool, error) {
	if cur.Compare(*acc) < 0 {
		*acc = cur
		return true, nil
	}
	return false, nil
}

type maxMeet struct{}

func (maxMeet) Update(acc *DataValue, cur DataValue) (bool, error) {
	if cur.Compare(*acc) > 0 {
		*acc = cur
		return true, nil
	}
	return false, nil
}

type extremeNormal struct {
	want    int // -1 for min, 1 for max
	started bool
	best    DataValue
}

func (o *extremeNormal) Set(v DataValue) error {
	if !o.started || v.Compare(o.best) == o.want {
		o.best = v
		o.started = true
	}
	return nil
}

func (o *extremeNormal) Get() (DataValue, error) {
	if !o.started {
		return Null, nil
	}
	return o.best, nil
}

func newMinAggr(args []DataValue) (*Aggregation, error) {
	return &Aggregation{
		Name: "min",
		Args: args,
		meet: minMeet{},
		normalFactory: func([]DataValue) (NormalOp, error) {
			return &extremeNormal{want: -1}, nil
		},
	}, nil
}

func newMaxAggr(args []DataValue) (*Aggregation, error) {
	return &Aggregation{
		Name: "max",
		Args: args,
		meet: maxMeet{},
		normalFactory: func([]DataValue) (NormalOp, error) {
			return &extremeNormal{want: 1}, nil
		},
	}, nil
}

// --- sum -------------------------------------------------------------------

type sumMeet struct{}

func (sumMeet) Update(acc *DataValue, cur DataValue) (bool, error) {
	if f, ok := numericValue(cur); ok && f == 0 {
		return false, nil
	}
	next, err := addValues(*acc, cur)
	if err != nil {
		return false, err
	}
	changed := next.Compare(*acc) != 0
	*acc = next
	return changed, nil
}

type sumNormal struct {
	started bool
	total   DataValue
}

func (o *sumNormal) Set(v DataValue) error {
	if !o.started {
		o.total = v
		o.started = true
		return nil
	}
	next, err := addValues(o.total, v)
	if err != nil {
		return err
	}
	o.total = next
	return nil
}

func (o *sumNormal) Get() (DataValue, error) {
	if !o.started {
		return Int(0), nil
	}
	return o.total, nil
}

func newSumAggr(args []DataValue) (*Aggregation, error) {
	return &Aggregation{
		Name: "sum",
		Args: args,
		meet: sumMeet{},
		normalFactory: func([]DataValue) (NormalOp, error) {
			return &sumNormal{}, nil
		},
	}, nil
}

// --- count -----------------------------------------------------------------

type countNormal struct {
	n int64
}

func (o *countNormal) Set(DataValue) error { o.n++; return nil }

func (o *countNormal) Get() (DataValue, error) { return Int(o.n), nil }

func newCountAggr(args []DataValue) (*Aggregation, error) {
	return &Aggregation{
		Name: "count",
		Args: args,
		normalFactory: func([]DataValue) (NormalOp, error) {
			return &countNormal{}, nil
		},
	}, nil
}

// --- mean ------------------------------------------------------------------

type meanNormal struct {
	sum float64
	n   int64
}

func (o *meanNormal) Set(v DataValue) error {
	f, ok := numericValue(v)
	if !ok {
		return fmt.Errorf("strata: mean requires a numeric value, got %s", v)
	}
	o.sum += f
	o.n++
	return nil
}

func (o *meanNormal) Get() (DataValue, error) {
	if o.n == 0 {
		return Null, nil
	}
	return Float(o.sum / float64(o.n)), nil
}

func newMeanAggr(args []DataValue) (*Aggregation, error) {
	return &Aggregation{
		Name: "mean",
		Args: args,
		normalFactory: func([]DataValue) (NormalOp, error) {
			return &meanNormal{}, nil
		},
	}, nil
}

// --- count_distinct --------------------------------------------------------

type countDistinctNormal struct {
	seen map[string]struct{}
}

func (o *countDistinctNormal) Set(v DataValue) error {
	// The byte-sortable encoding doubles as a canonical hash key.
	o.seen[string(encodeValue(nil, v))] = struct{}{}
	return nil
}

func (o *countDistinctNormal) Get() (DataValue, error) {
	return Int(int64(len(o.seen))), nil
}

func newCountDistinctAggr(args []DataValue) (*Aggregation, error) {
	return &Aggregation{
		Name: "count_distinct",
		Args: args,
		normalFactory: func([]DataValue) (NormalOp, error) {
			return &countDistinctNormal{seen: make(map[string]struct{})}, nil
		},
	}, nil
}

// --- choice ----------------------------------------------------------------

// choiceMeet keeps the first value seen. Trivially idempotent, commutative
// only up to which value "wins", which is what choice promises.
type choiceMeet struct{}

func (choiceMeet) Update(acc *DataValue, cur DataValue) (bool, error) {
	if acc.IsNull() && !cur.IsNull() {
		*acc = cur
		return true, nil
	}
	return false, nil
}

type choiceNormal struct {
	picked DataValue
	done   bool
}

func (o *choiceNormal) Set(v DataValue) error {
	if !o.done {
		o.picked = v
		o.done = true
	}
	return nil
}

func (o *choiceNormal) Get() (DataValue, error) { return o.picked, nil }

func newChoiceAggr(args []DataValue) (*Aggregation, error) {
	return &Aggregation{
		Name: "choice",
		Args: args,
		meet: choiceMeet{},
		normalFactory: func([]DataValue) (NormalOp, error) {
			return &choiceNormal{}, nil
		},
	}, nil
}
