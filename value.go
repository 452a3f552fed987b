package strata

import (
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// ValueKind tags a DataValue. The numeric ordering of the tags IS the
// cross-kind sort order: a value of a lower kind always sorts before a
// value of a higher kind, so tuple comparison and the byte-sortable key
// encoding agree everywhere keys are compared.
type ValueKind byte

const (
	KindNull   ValueKind = 0x02
	KindBool   ValueKind = 0x04
	KindInt    ValueKind = 0x06
	KindFloat  ValueKind = 0x08
	KindString ValueKind = 0x0a
	KindBytes  ValueKind = 0x0c

	// KindGuard marks a position whose real value is stored in the paired
	// value tuple, not in the key. It must sort above every concrete value
	// kind but below KindBot so that keys containing guards still have a
	// well-defined place in range scans.
	KindGuard ValueKind = 0xfd

	// KindBot is the upper-bound sentinel appended to prefixes for
	// closed-range scans. Nothing sorts above it.
	KindBot ValueKind = 0xff
)

// DataValue is a tagged scalar: one of the concrete kinds or one of the
// two sentinels (Guard, Bot). The zero value is Null.
type DataValue struct {
	kind ValueKind
	b    bool
	n    int64
	f    float64
	s    string // payload for both String and Bytes kinds
}

// Sentinel and unit values.
var (
	Null  = DataValue{kind: KindNull}
	Guard = DataValue{kind: KindGuard}
	Bot   = DataValue{kind: KindBot}
)

// Bool wraps a bool as a DataValue.
func Bool(v bool) DataValue { return DataValue{kind: KindBool, b: v} }

// Int wraps an int64 as a DataValue.
func Int(v int64) DataValue { return DataValue{kind: KindInt, n: v} }

// Float wraps a float64 as a DataValue.
func Float(v float64) DataValue { return DataValue{kind: KindFloat, f: v} }

// String wraps a string as a DataValue.
func String(v string) DataValue { return DataValue{kind: KindString, s: v} }

// Bytes wraps a byte slice as a DataValue. The slice is copied.
func Bytes(v []byte) DataValue { return DataValue{kind: KindBytes, s: string(v)} }

// Kind returns the value's kind tag.
func (v DataValue) Kind() ValueKind { return v.kind }

// IsGuard reports whether the value is the Guard sentinel.
func (v DataValue) IsGuard() bool { return v.kind == KindGuard }

// IsNull reports whether the value is Null.
func (v DataValue) IsNull() bool { return v.kind == KindNull }

// AsBool returns the bool payload, with an ok flag.
func (v DataValue) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the int64 payload, with an ok flag.
func (v DataValue) AsInt() (int64, bool) { return v.n, v.kind == KindInt }

// AsFloat returns the float64 payload, with an ok flag.
func (v DataValue) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the string payload, with an ok flag.
func (v DataValue) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBytes returns the bytes payload, with an ok flag.
func (v DataValue) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return []byte(v.s), true
}

// Compare returns -1, 0 or 1. The order is total: first by kind tag, then
// by payload within the kind. It matches the byte order of Encode output.
func (v DataValue) Compare(o DataValue) int {
	if v.kind != o.kind {
		if v.kind < o.kind {
			return -1
		}
		return 1
	}
	switch v.kind {
	case KindNull, KindGuard, KindBot:
		return 0
	case KindBool:
		switch {
		case v.b == o.b:
			return 0
		case !v.b:
			return -1
		default:
			return 1
		}
	case KindInt:
		switch {
		case v.n < o.n:
			return -1
		case v.n > o.n:
			return 1
		default:
			return 0
		}
	case KindFloat:
		switch {
		case v.f < o.f:
			return -1
		case v.f > o.f:
			return 1
		default:
			return 0
		}
	case KindString, KindBytes:
		switch {
		case v.s < o.s:
			return -1
		case v.s > o.s:
			return 1
		default:
			return 0
		}
	}
	return 0
}

// String implements fmt.Stringer for debugging and error messages.
func (v DataValue) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.n)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindBytes:
		return fmt.Sprintf("b%q", v.s)
	case KindGuard:
		return "<guard>"
	case KindBot:
		return "<bot>"
	}
	return fmt.Sprintf("<kind 0x%02x>", byte(v.kind))
}

// ---------------------------------------------------------------------------
// MessagePack codec — used for persisted value payloads. Keys never go
// through msgpack (they use the byte-sortable encoding in encoding.go).
// ---------------------------------------------------------------------------

var (
	_ msgpack.CustomEncoder = (*DataValue)(nil)
	_ msgpack.CustomDecoder = (*DataValue)(nil)
)

// EncodeMsgpack writes the value as a [kind, payload] pair. Sentinels carry
// no payload; they round-trip but are never expected in persisted data.
func (v *DataValue) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeUint8(uint8(v.kind)); err != nil {
		return err
	}
	switch v.kind {
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindInt:
		return enc.EncodeInt64(v.n)
	case KindFloat:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindBytes:
		return enc.EncodeBytes([]byte(v.s))
	}
	return nil
}

// DecodeMsgpack reads a value written by EncodeMsgpack.
func (v *DataValue) DecodeMsgpack(dec *msgpack.Decoder) error {
	kind, err := dec.DecodeUint8()
	if err != nil {
		return err
	}
	*v = DataValue{kind: ValueKind(kind)}
	switch v.kind {
	case KindNull, KindGuard, KindBot:
		return nil
	case KindBool:
		v.b, err = dec.DecodeBool()
	case KindInt:
		v.n, err = dec.DecodeInt64()
	case KindFloat:
		v.f, err = dec.DecodeFloat64()
	case KindString:
		v.s, err = dec.DecodeString()
	case KindBytes:
		var raw []byte
		raw, err = dec.DecodeBytes()
		v.s = string(raw)
	default:
		return fmt.Errorf("strata: unknown value kind 0x%02x in msgpack data", kind)
	}
	return err
}

// ---------------------------------------------------------------------------
// Numeric helpers shared by the aggregate implementations.
// ---------------------------------------------------------------------------

// numericValue extracts a float64 view of an Int or Float value.
func numericValue(v DataValue) (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.n), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// addValues adds two numeric values, preserving Int when both are Int.
func addValues(a, b DataValue) (DataValue, error) {
	if a.kind == KindInt && b.kind == KindInt {
		return Int(a.n + b.n), nil
	}
	fa, okA := numericValue(a)
	fb, okB := numericValue(b)
	if !okA || !okB {
		return Null, fmt.Errorf("strata: cannot add %s and %s", a, b)
	}
	return Float(fa + fb), nil
}

// orderPreservingFloatBits maps a float64 to a uint64 whose unsigned order
// equals the float's numeric order (negative values flipped entirely,
// non-negative values get the sign bit set).
func orderPreservingFloatBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

// floatFromOrderedBits inverts orderPreservingFloatBits.
func floatFromOrderedBits(bits uint64) float64 {
	if bits&(1<<63) != 0 {
		return math.Float64frombits(bits &^ (1 << 63))
	}
	return math.Float64frombits(^bits)
}
