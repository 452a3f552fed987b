package strata

import (
	"fmt"
	"sync"
)

// DerivedRelStoreID names one materialized rule relation within one query
// execution.
type DerivedRelStoreID uint32

func (id DerivedRelStoreID) String() string { return fmt.Sprintf("t%d", uint32(id)) }

// DerivedRelStore is the in-memory, epoch-partitioned relation that
// accumulates one recursive rule's results across fixpoint iterations.
//
// Epoch 0 always holds the converged total; epochs >= 1 hold only the
// delta discovered in that round of semi-naive evaluation. The evaluator
// reads a round's delta to decide whether to keep iterating and what to
// feed the next round.
//
// All handles produced by Clone share the same underlying epoch vector,
// so multiple algebra nodes referencing the same rule observe each
// other's writes within a stratum.
//
// Locking is non-blocking by contract: within one logical evaluation
// phase a snapshot has either readers or one writer, never both. An
// overlap is a planner bug, not a race to tolerate, and panics.
type DerivedRelStore struct {
	ID       DerivedRelStoreID
	RuleName string
	Arity    int

	shared *derivedShared
}

type derivedShared struct {
	mu      sync.RWMutex // guards the epochs slice itself
	epochs  []*epochSnapshot
	metrics *Metrics // optional, shared by all clones
}

type epochSnapshot struct {
	mu sync.RWMutex
	m  tupleMap
}

// NewDerivedRelStore creates an empty store for one rule.
func NewDerivedRelStore(id DerivedRelStoreID, ruleName string, arity int) *DerivedRelStore {
	return &DerivedRelStore{
		ID:       id,
		RuleName: ruleName,
		Arity:    arity,
		shared:   &derivedShared{},
	}
}

// Clone returns a handle sharing the same epoch vector.
func (s *DerivedRelStore) Clone() *DerivedRelStore {
	out := *s
	return &out
}

// SetMetrics attaches a counter sink. Visible through every clone.
func (s *DerivedRelStore) SetMetrics(m *Metrics) { s.shared.metrics = m }

func (s *DerivedRelStore) countMeetMerge() {
	if m := s.shared.metrics; m != nil {
		m.MeetMerges.Add(1)
	}
}

func (s *DerivedRelStore) countGroupEmitted() {
	if m := s.shared.metrics; m != nil {
		m.GroupsEmitted.Add(1)
	}
}

func contentionPanic(store *DerivedRelStore, what string) {
	panic(fmt.Sprintf("strata: concurrent access contract violated on derived store %s (%s): %s",
		store.ID, store.RuleName, what))
}

func (s *DerivedRelStore) lockEpochs() {
	if !s.shared.mu.TryLock() {
		contentionPanic(s, "epoch vector write while in use")
	}
}

func (s *DerivedRelStore) rlockEpochs() {
	if !s.shared.mu.TryRLock() {
		contentionPanic(s, "epoch vector read during resize")
	}
}

func (s *DerivedRelStore) wlock(e *epochSnapshot) {
	if !e.mu.TryLock() {
		contentionPanic(s, "snapshot write overlapping another access")
	}
}

func (s *DerivedRelStore) rlock(e *epochSnapshot) {
	if !e.mu.TryRLock() {
		contentionPanic(s, "snapshot read overlapping a write")
	}
}

// EnsureEpoch grows the epoch vector with fresh empty snapshots until
// index epoch exists. Idempotent; calling it with an already-covered
// epoch is a no-op.
func (s *DerivedRelStore) EnsureEpoch(epoch int) {
	s.rlockEpochs()
	have := len(s.shared.epochs)
	s.shared.mu.RUnlock()
	if have > epoch {
		return
	}

	s.lockEpochs()
	for len(s.shared.epochs) <= epoch {
		s.shared.epochs = append(s.shared.epochs, &epochSnapshot{})
	}
	s.shared.mu.Unlock()
}

// Epochs returns the current number of epoch snapshots.
func (s *DerivedRelStore) Epochs() int {
	s.rlockEpochs()
	defer s.shared.mu.RUnlock()
	return len(s.shared.epochs)
}

// snapshot returns the epoch's snapshot, growing the vector if needed.
func (s *DerivedRelStore) snapshot(epoch int) *epochSnapshot {
	s.EnsureEpoch(epoch)
	s.rlockEpochs()
	defer s.shared.mu.RUnlock()
	return s.shared.epochs[epoch]
}

// ---------------------------------------------------------------------------
// Write paths
// ---------------------------------------------------------------------------

// Put inserts a row with set semantics (empty value tuple) into the given
// epoch, overwriting any prior entry for the exact key.
func (s *DerivedRelStore) Put(tuple Tuple, epoch int) {
	snap := s.snapshot(epoch)
	s.wlock(snap)
	defer snap.mu.Unlock()
	snap.m.put(tuple, nil)
}

// PutKV inserts an explicit key/value pair, used when the value payload is
// meaningful (e.g. serial-numbered grouped output).
func (s *DerivedRelStore) PutKV(key, val Tuple, epoch int) {
	snap := s.snapshot(epoch)
	s.wlock(snap)
	defer snap.mu.Unlock()
	snap.m.put(key, val)
}

// Exists reports whether the exact key is present in the given epoch.
func (s *DerivedRelStore) Exists(tuple Tuple, epoch int) bool {
	snap := s.snapshot(epoch)
	s.rlock(snap)
	defer snap.mu.RUnlock()
	return snap.m.contains(tuple)
}

// AggrMeetPut merges one candidate row into epoch 0 under the declared
// meet aggregates and records the delta in the requested epoch.
//
// The row is partitioned into a key (positions without a declared
// aggregate keep their value, aggregated positions become Guard) and a
// stored value (the mirror image). A first-seen key stores the row's raw
// aggregated values as the accumulator seed. A known key merges each
// aggregated position via the aggregate's meet op.
//
// Returns whether anything changed, which is exactly the semi-naive
// convergence signal: epoch 0 holds the running total, the non-zero epoch
// receives only rows that changed this round.
func (s *DerivedRelStore) AggrMeetPut(tuple Tuple, aggrs []*Aggregation, epoch int) (bool, error) {
	if len(aggrs) != len(tuple) {
		return false, fmt.Errorf("strata: aggregate spec arity %d does not match tuple arity %d",
			len(aggrs), len(tuple))
	}
	s.EnsureEpoch(epoch)
	zero := s.snapshot(0)

	key := make(Tuple, len(tuple))
	for i, a := range aggrs {
		if a == nil {
			key[i] = tuple[i]
		} else {
			key[i] = Guard
		}
	}

	s.wlock(zero)
	defer zero.mu.Unlock()

	if prev := zero.m.getRef(key); prev != nil {
		changed := false
		for i, a := range aggrs {
			if a == nil {
				continue
			}
			ch, err := a.MeetUpdate(&(*prev)[i], tuple[i])
			if err != nil {
				return false, err
			}
			changed = changed || ch
		}
		if changed {
			s.countMeetMerge()
			if epoch != 0 {
				delta := s.snapshot(epoch)
				s.wlock(delta)
				delta.m.put(key, (*prev).Clone())
				delta.mu.Unlock()
			}
		}
		return changed, nil
	}

	stored := make(Tuple, len(tuple))
	for i, a := range aggrs {
		if a != nil {
			stored[i] = tuple[i]
		} else {
			stored[i] = Guard
		}
	}
	zero.m.put(key.Clone(), stored)
	if epoch != 0 {
		delta := s.snapshot(epoch)
		s.wlock(delta)
		delta.m.put(key, stored.Clone())
		delta.mu.Unlock()
	}
	return true, nil
}

// NormalAggrPut stages one row for the non-incremental grouping pass,
// always into epoch 0. Non-aggregated columns come first so rows of the
// same group are adjacent in key order; the strictly-increasing serial is
// appended so groups with identical non-aggregated output cannot collide
// before aggregation is applied.
func (s *DerivedRelStore) NormalAggrPut(tuple Tuple, aggrs []*Aggregation, serial int) error {
	if len(aggrs) != len(tuple) {
		return fmt.Errorf("strata: aggregate spec arity %d does not match tuple arity %d",
			len(aggrs), len(tuple))
	}
	vals := make(Tuple, 0, len(tuple)+1)
	for i, a := range aggrs {
		if a == nil {
			vals = append(vals, tuple[i])
		}
	}
	for i, a := range aggrs {
		if a != nil {
			vals = append(vals, tuple[i])
		}
	}
	vals = append(vals, Int(int64(serial)))

	snap := s.snapshot(0)
	s.wlock(snap)
	defer snap.mu.Unlock()
	snap.m.put(vals, nil)
	return nil
}

// ---------------------------------------------------------------------------
// Finalize / grouping pass
// ---------------------------------------------------------------------------

// NormalAggrScanAndPut runs the stateful aggregation finalize over this
// store's epoch 0 and materializes one result row per group into the
// destination store's epoch 0.
//
// Rows were staged by NormalAggrPut with non-aggregated columns first, so
// groups are contiguous in key order. The reorder mapping is computed once
// from the spec list and inverted to restore original column order in the
// output. The poison flag is polled once per folded row; the limiter, if
// supplied, is checked only when a group's result is novel in dest.
//
// Returns true when the limiter stopped the scan early, so the evaluator
// can skip further strata work.
func (s *DerivedRelStore) NormalAggrScanAndPut(
	aggrs []*Aggregation,
	dest *DerivedRelStore,
	limiter *QueryLimiter,
	poison Poison,
) (bool, error) {
	rows := s.ScanAll()

	aggrs = cloneAggrSpecs(aggrs)
	nKeys := 0
	for _, a := range aggrs {
		if a == nil {
			nKeys++
		}
	}

	// reorder[j] = original column index of reordered position j
	// (non-aggregated first, aggregated last); invert is its inverse, so
	// invert[origIdx] locates a column inside a staged row.
	reorder := make([]int, 0, len(aggrs))
	for i, a := range aggrs {
		if a == nil {
			reorder = append(reorder, i)
		}
	}
	for i, a := range aggrs {
		if a != nil {
			reorder = append(reorder, i)
		}
	}
	invert := make([]int, len(aggrs))
	for j, orig := range reorder {
		invert[orig] = j
	}

	var (
		groupKey   Tuple // first nKeys columns of the current group
		groupFirst Tuple
		inGroup    bool
	)

	seed := func(first Tuple) error {
		for idx, a := range aggrs {
			if a == nil {
				continue
			}
			if err := a.NormalInit(); err != nil {
				return err
			}
			if err := a.NormalSet(first[invert[idx]]); err != nil {
				return err
			}
		}
		return nil
	}

	fold := func(row Tuple) error {
		for idx, a := range aggrs {
			if a == nil {
				continue
			}
			if err := a.NormalSet(row[invert[idx]]); err != nil {
				return err
			}
		}
		return nil
	}

	// flush finalizes the current group into dest. Returns true when the
	// limiter says the scan should stop.
	flush := func() (bool, error) {
		res := make(Tuple, len(aggrs))
		for idx, a := range aggrs {
			if a == nil {
				res[idx] = groupFirst[invert[idx]]
				continue
			}
			v, err := a.NormalGet()
			if err != nil {
				return false, err
			}
			res[idx] = v
		}
		if limiter != nil {
			if !dest.Exists(res, 0) {
				dest.Put(res, 0)
				s.countGroupEmitted()
				if limiter.Incr() {
					return true, nil
				}
			}
			return false, nil
		}
		dest.Put(res, 0)
		s.countGroupEmitted()
		return false, nil
	}

	for _, row := range rows {
		key := row[:min(nKeys, len(row))]
		if inGroup && groupKey.Compare(key) == 0 {
			if err := fold(row); err != nil {
				return false, err
			}
			if err := poison.Check(); err != nil {
				return false, err
			}
			continue
		}
		if inGroup {
			stop, err := flush()
			if err != nil {
				return false, err
			}
			if stop {
				return true, nil
			}
		}
		groupKey = key.Clone()
		groupFirst = row
		inGroup = true
		if err := seed(row); err != nil {
			return false, err
		}
	}
	if inGroup {
		stop, err := flush()
		if err != nil {
			return false, err
		}
		if stop {
			return true, nil
		}
	}
	return false, nil
}

// ---------------------------------------------------------------------------
// Scans — read-only; never mutate beyond lazily growing the epoch vector.
// ---------------------------------------------------------------------------

// ScanAllForEpoch returns every row of the given epoch in key order, with
// Guard positions reassembled from the paired value tuples.
func (s *DerivedRelStore) ScanAllForEpoch(epoch int) []Tuple {
	snap := s.snapshot(epoch)
	s.rlock(snap)
	defer snap.mu.RUnlock()
	out := make([]Tuple, 0, snap.m.size())
	snap.m.ascend(func(k, v Tuple) bool {
		out = append(out, reassembleTuple(k, v))
		return true
	})
	return out
}

// ScanAll scans epoch 0.
func (s *DerivedRelStore) ScanAll() []Tuple {
	return s.ScanAllForEpoch(0)
}

// ScanSorted emits epoch 0's value tuples in key order. Rows staged for a
// sorted output carry their sort key as the map key and the output row as
// the value, so this is "ordered by value tuples" from the caller's view.
func (s *DerivedRelStore) ScanSorted() []Tuple {
	snap := s.snapshot(0)
	s.rlock(snap)
	defer snap.mu.RUnlock()
	out := make([]Tuple, 0, snap.m.size())
	snap.m.ascend(func(_, v Tuple) bool {
		out = append(out, v)
		return true
	})
	return out
}

// ScanPrefix scans epoch 0 for rows whose key starts with prefix.
func (s *DerivedRelStore) ScanPrefix(prefix Tuple) []Tuple {
	return s.ScanPrefixForEpoch(prefix, 0)
}

// ScanPrefixForEpoch returns all rows of the epoch whose key extends
// prefix. The closed upper bound is the prefix with the Bot sentinel
// appended: every key sharing the prefix sorts at or below it, and no key
// from a different prefix does, regardless of trailing column count.
func (s *DerivedRelStore) ScanPrefixForEpoch(prefix Tuple, epoch int) []Tuple {
	upper := make(Tuple, len(prefix)+1)
	copy(upper, prefix)
	upper[len(prefix)] = Bot

	snap := s.snapshot(epoch)
	s.rlock(snap)
	defer snap.mu.RUnlock()
	var out []Tuple
	snap.m.ascendRange(prefix, upper, func(k, v Tuple) bool {
		out = append(out, reassembleTuple(k, v))
		return true
	})
	return out
}

// ScanBoundedPrefixForEpoch returns keys between prefix+lower and
// prefix+upper inclusive, for operators emulating inequality joins over a
// shared key prefix.
func (s *DerivedRelStore) ScanBoundedPrefixForEpoch(prefix Tuple, lower, upper []DataValue, epoch int) []Tuple {
	lo := make(Tuple, 0, len(prefix)+len(lower))
	lo = append(lo, prefix...)
	lo = append(lo, lower...)
	hi := make(Tuple, 0, len(prefix)+len(upper))
	hi = append(hi, prefix...)
	hi = append(hi, upper...)

	snap := s.snapshot(epoch)
	s.rlock(snap)
	defer snap.mu.RUnlock()
	var out []Tuple
	snap.m.ascendRange(lo, hi, func(k, _ Tuple) bool {
		out = append(out, k.Clone())
		return true
	})
	return out
}
