package strata

import (
	"bytes"
	"testing"
)

// orderedSamples is sorted ascending under DataValue.Compare.
func orderedSamples() []DataValue {
	return []DataValue{
		Null,
		Bool(false),
		Bool(true),
		Int(-1 << 40),
		Int(-5),
		Int(0),
		Int(7),
		Int(1 << 40),
		Float(-2.5),
		Float(0),
		Float(3.25),
		String(""),
		String("a"),
		String("a\x00b"),
		String("ab"),
		String("b"),
		Bytes([]byte{0x00}),
		Bytes([]byte{0x01, 0x02}),
		Guard,
		Bot,
	}
}

func TestValueCompareTotalOrder(t *testing.T) {
	samples := orderedSamples()
	for i := range samples {
		for j := range samples {
			got := samples[i].Compare(samples[j])
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Errorf("Compare(%s, %s) = %d, want %d", samples[i], samples[j], got, want)
			}
		}
	}
}

func TestEncodingAgreesWithCompare(t *testing.T) {
	samples := orderedSamples()
	encoded := make([][]byte, len(samples))
	for i, v := range samples {
		encoded[i] = encodeValue(nil, v)
	}
	for i := range samples {
		for j := range samples {
			cmp := samples[i].Compare(samples[j])
			bc := bytes.Compare(encoded[i], encoded[j])
			if cmp != bc {
				t.Errorf("byte order disagrees with Compare for %s vs %s: compare=%d bytes=%d",
					samples[i], samples[j], cmp, bc)
			}
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, v := range orderedSamples() {
		enc := encodeValue(nil, v)
		got, rest, err := decodeValue(enc)
		if err != nil {
			t.Fatalf("decodeValue(%s) failed: %v", v, err)
		}
		if len(rest) != 0 {
			t.Errorf("decodeValue(%s) left %d trailing bytes", v, len(rest))
		}
		if got.Compare(v) != 0 {
			t.Errorf("round trip changed %s into %s", v, got)
		}
	}
}

func TestKeyEncodeDecode(t *testing.T) {
	in := Tuple{Int(42), String("alice"), Bool(true), Float(1.5)}
	key := encodeKey(7, in)

	tid, out, err := decodeKey(key)
	if err != nil {
		t.Fatalf("decodeKey failed: %v", err)
	}
	if tid != 7 {
		t.Errorf("expected table id 7, got %d", tid)
	}
	if out.Compare(in) != 0 {
		t.Errorf("key round trip changed %s into %s", in, out)
	}

	overwriteKeyPrefix(key, 9)
	tid, out, err = decodeKey(key)
	if err != nil {
		t.Fatalf("decodeKey after prefix overwrite failed: %v", err)
	}
	if tid != 9 {
		t.Errorf("expected overwritten table id 9, got %d", tid)
	}
	if out.Compare(in) != 0 {
		t.Errorf("prefix overwrite corrupted elements: %s", out)
	}
}

func TestKeyPrefixOrdering(t *testing.T) {
	// All keys sharing a tuple prefix must sort inside
	// [prefix, prefix+Bot] regardless of trailing columns.
	prefix := Tuple{String("a")}
	lo := encodeKey(1, prefix)
	hi := encodeKey(1, append(prefix.Clone(), Bot))

	inside := [][]byte{
		encodeKey(1, Tuple{String("a")}),
		encodeKey(1, Tuple{String("a"), Int(-100)}),
		encodeKey(1, Tuple{String("a"), String("zzz"), Int(5)}),
	}
	outside := [][]byte{
		encodeKey(1, Tuple{String("ab")}),
		encodeKey(1, Tuple{String("b")}),
		encodeKey(2, Tuple{String("a")}),
	}
	for _, k := range inside {
		if bytes.Compare(k, lo) < 0 || bytes.Compare(k, hi) > 0 {
			t.Errorf("key %x should fall inside the prefix range", k)
		}
	}
	for _, k := range outside {
		if bytes.Compare(k, lo) >= 0 && bytes.Compare(k, hi) <= 0 {
			t.Errorf("key %x should fall outside the prefix range", k)
		}
	}
}

func TestValueTupleMsgpackRoundTrip(t *testing.T) {
	in := Tuple{Null, Bool(true), Int(-9), Float(2.75), String("hi"), Bytes([]byte{1, 2, 3})}
	data, err := encodeValueTuple(in)
	if err != nil {
		t.Fatalf("encodeValueTuple failed: %v", err)
	}
	out, err := decodeValueTuple(data)
	if err != nil {
		t.Fatalf("decodeValueTuple failed: %v", err)
	}
	if out.Compare(in) != 0 {
		t.Errorf("msgpack round trip changed %s into %s", in, out)
	}
}

func TestValueTupleRejectsSentinels(t *testing.T) {
	if _, err := encodeValueTuple(Tuple{Int(1), Guard}); err == nil {
		t.Error("expected error persisting a Guard sentinel")
	}
	if _, err := encodeValueTuple(Tuple{Bot}); err == nil {
		t.Error("expected error persisting a Bot sentinel")
	}
}

func TestTupleCompare(t *testing.T) {
	cases := []struct {
		a, b Tuple
		want int
	}{
		{Tuple{}, Tuple{}, 0},
		{Tuple{Int(1)}, Tuple{Int(1)}, 0},
		{Tuple{Int(1)}, Tuple{Int(2)}, -1},
		{Tuple{Int(1)}, Tuple{Int(1), Int(0)}, -1}, // prefix sorts first
		{Tuple{String("b")}, Tuple{String("a"), Int(9)}, 1},
	}
	for _, c := range cases {
		if got := c.a.Compare(c.b); got != c.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestReassembleInverseOfSplit(t *testing.T) {
	// Splitting a row into key (Guard at aggregated positions) and value
	// (Guard at grouping positions) then reassembling must restore it.
	row := Tuple{String("grp"), Int(10), String("x"), Float(0.5)}
	aggregated := []bool{false, true, false, true}

	key := make(Tuple, len(row))
	val := make(Tuple, len(row))
	for i := range row {
		if aggregated[i] {
			key[i] = Guard
			val[i] = row[i]
		} else {
			key[i] = row[i]
			val[i] = Guard
		}
	}

	got := reassembleTuple(key, val)
	if got.Compare(row) != 0 {
		t.Errorf("reassemble(%s, %s) = %s, want %s", key, val, got, row)
	}

	// Empty value tuple means the key is the whole row.
	if got := reassembleTuple(row, nil); got.Compare(row) != 0 {
		t.Errorf("reassemble with empty value changed the row: %s", got)
	}
}
