package strata

import (
	"errors"
	"testing"
)

func TestNewAggregationUnknownName(t *testing.T) {
	_, err := NewAggregation("median")
	if !errors.Is(err, ErrParse) {
		t.Errorf("unknown aggregate: got %v, want ErrParse", err)
	}
}

func TestMeetModeAvailability(t *testing.T) {
	cases := map[string]bool{
		"min":            true,
		"max":            true,
		"sum":            true,
		"choice":         true,
		"count":          false,
		"mean":           false,
		"count_distinct": false,
	}
	for name, want := range cases {
		a := mustAggr(t, name)
		if a.HasMeet() != want {
			t.Errorf("%s: HasMeet = %v, want %v", name, a.HasMeet(), want)
		}
	}
}

func TestMeetUpdateWithoutMeetModeFails(t *testing.T) {
	a := mustAggr(t, "count")
	acc := Int(0)
	if _, err := a.MeetUpdate(&acc, Int(1)); err == nil {
		t.Error("expected error merging through an aggregate without meet mode")
	}
}

func TestSumMeetRejectsNonNumeric(t *testing.T) {
	a := mustAggr(t, "sum")
	acc := Int(1)
	if _, err := a.MeetUpdate(&acc, String("oops")); err == nil {
		t.Error("expected error summing a string")
	}
}

func TestSumMeetMixedNumeric(t *testing.T) {
	a := mustAggr(t, "sum")
	acc := Int(1)
	changed, err := a.MeetUpdate(&acc, Float(0.5))
	if err != nil {
		t.Fatalf("MeetUpdate failed: %v", err)
	}
	if !changed {
		t.Error("expected change")
	}
	f, ok := acc.AsFloat()
	if !ok || f != 1.5 {
		t.Errorf("acc = %s, want 1.5", acc)
	}
}

func TestChoiceMeetKeepsFirst(t *testing.T) {
	a := mustAggr(t, "choice")
	acc := String("first")
	changed, err := a.MeetUpdate(&acc, String("second"))
	if err != nil {
		t.Fatalf("MeetUpdate failed: %v", err)
	}
	if changed {
		t.Error("choice must not replace a non-null accumulator")
	}
	if v, _ := acc.AsString(); v != "first" {
		t.Errorf("acc = %s, want first", acc)
	}

	acc = Null
	changed, err = a.MeetUpdate(&acc, String("x"))
	if err != nil {
		t.Fatalf("MeetUpdate failed: %v", err)
	}
	if !changed || acc.Compare(String("x")) != 0 {
		t.Errorf("null accumulator should take the first value, got %s", acc)
	}
}

func TestNormalAccumulators(t *testing.T) {
	fold := func(name string, vals ...DataValue) DataValue {
		t.Helper()
		a := mustAggr(t, name)
		if err := a.NormalInit(); err != nil {
			t.Fatalf("%s: NormalInit failed: %v", name, err)
		}
		for _, v := range vals {
			if err := a.NormalSet(v); err != nil {
				t.Fatalf("%s: NormalSet failed: %v", name, err)
			}
		}
		out, err := a.NormalGet()
		if err != nil {
			t.Fatalf("%s: NormalGet failed: %v", name, err)
		}
		return out
	}

	cases := []struct {
		name string
		in   []DataValue
		want DataValue
	}{
		{"count", []DataValue{Int(1), Int(1), String("x")}, Int(3)},
		{"count_distinct", []DataValue{Int(1), Int(1), Int(2), String("x")}, Int(3)},
		{"sum", []DataValue{Int(1), Int(2), Int(3)}, Int(6)},
		{"min", []DataValue{Int(3), Int(1), Int(2)}, Int(1)},
		{"max", []DataValue{Int(3), Int(1), Int(2)}, Int(3)},
		{"choice", []DataValue{String("a"), String("b")}, String("a")},
	}
	for _, tc := range cases {
		got := fold(tc.name, tc.in...)
		if got.Compare(tc.want) != 0 {
			t.Errorf("%s(%v) = %s, want %s", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestNormalSetBeforeInitFails(t *testing.T) {
	a := mustAggr(t, "sum")
	if err := a.NormalSet(Int(1)); err == nil {
		t.Error("NormalSet before NormalInit must fail")
	}
	if _, err := a.NormalGet(); err == nil {
		t.Error("NormalGet before NormalInit must fail")
	}
}

func TestNormalInitResetsState(t *testing.T) {
	a := mustAggr(t, "sum")
	if err := a.NormalInit(); err != nil {
		t.Fatalf("NormalInit failed: %v", err)
	}
	if err := a.NormalSet(Int(10)); err != nil {
		t.Fatalf("NormalSet failed: %v", err)
	}
	if err := a.NormalInit(); err != nil {
		t.Fatalf("re-init failed: %v", err)
	}
	if err := a.NormalSet(Int(2)); err != nil {
		t.Fatalf("NormalSet failed: %v", err)
	}
	got, err := a.NormalGet()
	if err != nil {
		t.Fatalf("NormalGet failed: %v", err)
	}
	if got.Compare(Int(2)) != 0 {
		t.Errorf("re-initialized sum = %s, want 2 (state leaked across groups)", got)
	}
}

func TestCloneSharesDefinitionNotState(t *testing.T) {
	a := mustAggr(t, "sum")
	if err := a.NormalInit(); err != nil {
		t.Fatalf("NormalInit failed: %v", err)
	}
	if err := a.NormalSet(Int(5)); err != nil {
		t.Fatalf("NormalSet failed: %v", err)
	}

	c := a.Clone()
	if c.Name != a.Name || !c.HasMeet() {
		t.Error("clone lost the aggregate definition")
	}
	if err := c.NormalSet(Int(1)); err == nil {
		t.Error("clone must start uninitialized")
	}

	specs := []*Aggregation{nil, a}
	cloned := cloneAggrSpecs(specs)
	if cloned[0] != nil {
		t.Error("nil spec entries must stay nil")
	}
	if cloned[1] == a {
		t.Error("cloneAggrSpecs must not alias the input")
	}
}
