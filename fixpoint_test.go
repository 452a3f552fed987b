package strata

import (
	"errors"
	"fmt"
	"testing"
)

// transitiveClosureRule derives reach(a, c) from edge(a, b) and
// reach(b, c), reading only the previous round's delta of reach. This is
// the canonical recursive rule the semi-naive loop exists for.
func transitiveClosureRule(edges map[int64][]int64, reach *DerivedRelStore) Rule {
	dedup := []*Aggregation{nil, nil}
	return func(epoch int) (bool, error) {
		changed := false
		for _, prev := range reach.ScanAllForEpoch(epoch - 1) {
			b, _ := prev[1].AsInt()
			for _, c := range edges[b] {
				ch, err := reach.AggrMeetPut(Tuple{prev[0], Int(c)}, dedup, epoch)
				if err != nil {
					return false, err
				}
				changed = changed || ch
			}
		}
		return changed, nil
	}
}

func TestFixpointTransitiveClosure(t *testing.T) {
	edges := map[int64][]int64{1: {2}, 2: {3}, 3: {4}}
	dedup := []*Aggregation{nil, nil}

	reach := NewDerivedRelStore(1, "reach", 2)
	// Seed epoch 0 with the base facts.
	for a, dsts := range edges {
		for _, b := range dsts {
			if _, err := reach.AggrMeetPut(Tuple{Int(a), Int(b)}, dedup, 0); err != nil {
				t.Fatalf("seed failed: %v", err)
			}
		}
	}

	m := &Metrics{}
	rounds, err := RunToFixpoint([]Rule{transitiveClosureRule(edges, reach)}, NewPoison(), m, nil)
	if err != nil {
		t.Fatalf("fixpoint failed: %v", err)
	}

	want := []Tuple{
		{Int(1), Int(2)}, {Int(1), Int(3)}, {Int(1), Int(4)},
		{Int(2), Int(3)}, {Int(2), Int(4)},
		{Int(3), Int(4)},
	}
	got := reach.ScanAll()
	if len(got) != len(want) {
		t.Fatalf("closure has %d rows, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Compare(want[i]) != 0 {
			t.Errorf("row %d = %s, want %s", i, got[i], want[i])
		}
	}

	// 1->4 needs two derivation rounds plus one empty round to observe
	// convergence.
	if rounds != 3 {
		t.Errorf("converged in %d rounds, want 3", rounds)
	}
	if got := m.FixpointRounds.Load(); got != 3 {
		t.Errorf("FixpointRounds = %d, want 3", got)
	}
}

func TestFixpointNoChangeTerminatesImmediately(t *testing.T) {
	calls := 0
	rule := Rule(func(epoch int) (bool, error) {
		calls++
		return false, nil
	})
	rounds, err := RunToFixpoint([]Rule{rule}, NewPoison(), nil, nil)
	if err != nil {
		t.Fatalf("fixpoint failed: %v", err)
	}
	if rounds != 1 || calls != 1 {
		t.Errorf("rounds=%d calls=%d, want 1 and 1", rounds, calls)
	}
}

func TestFixpointPropagatesRuleError(t *testing.T) {
	boom := fmt.Errorf("rule exploded")
	rule := Rule(func(epoch int) (bool, error) {
		return false, boom
	})
	_, err := RunToFixpoint([]Rule{rule}, NewPoison(), nil, nil)
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want the rule's error", err)
	}
}

func TestFixpointPoisonCancels(t *testing.T) {
	poison := NewPoison()
	rule := Rule(func(epoch int) (bool, error) {
		// Keep deriving forever; only the poison flag can stop us.
		poison.Set()
		return true, nil
	})
	m := &Metrics{}
	rounds, err := RunToFixpoint([]Rule{rule}, poison, m, nil)
	if !errors.Is(err, ErrQueryCancelled) {
		t.Fatalf("got %v, want ErrQueryCancelled", err)
	}
	if rounds != 1 {
		t.Errorf("completed %d rounds before cancellation, want 1", rounds)
	}
	if got := m.CancelledScans.Load(); got != 1 {
		t.Errorf("CancelledScans = %d, want 1", got)
	}
}

func TestFixpointMultipleRules(t *testing.T) {
	// Two rules feeding each other: even(n) -> odd(n+1) for n < 5, and
	// odd(n) -> even(n+1) for n < 5. Both must run each round and the
	// loop must not stop while either still derives rows.
	dedup := []*Aggregation{nil}
	even := NewDerivedRelStore(1, "even", 1)
	odd := NewDerivedRelStore(2, "odd", 1)
	if _, err := even.AggrMeetPut(Tuple{Int(0)}, dedup, 0); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	step := func(from, to *DerivedRelStore) Rule {
		return func(epoch int) (bool, error) {
			changed := false
			for _, row := range from.ScanAllForEpoch(epoch - 1) {
				n, _ := row[0].AsInt()
				if n >= 5 {
					continue
				}
				ch, err := to.AggrMeetPut(Tuple{Int(n + 1)}, dedup, epoch)
				if err != nil {
					return false, err
				}
				changed = changed || ch
			}
			return changed, nil
		}
	}

	_, err := RunToFixpoint([]Rule{step(even, odd), step(odd, even)}, NewPoison(), nil, nil)
	if err != nil {
		t.Fatalf("fixpoint failed: %v", err)
	}

	wantEven := []Tuple{{Int(0)}, {Int(2)}, {Int(4)}, {Int(6)}}
	gotEven := even.ScanAll()
	if len(gotEven) != len(wantEven) {
		t.Fatalf("even = %v, want %v", gotEven, wantEven)
	}
	for i := range wantEven {
		if gotEven[i].Compare(wantEven[i]) != 0 {
			t.Errorf("even[%d] = %s, want %s", i, gotEven[i], wantEven[i])
		}
	}
	wantOdd := []Tuple{{Int(1)}, {Int(3)}, {Int(5)}}
	gotOdd := odd.ScanAll()
	if len(gotOdd) != len(wantOdd) {
		t.Fatalf("odd = %v, want %v", gotOdd, wantOdd)
	}
}
