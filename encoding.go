package strata

import (
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Storage key encoding.
//
// Every persistent key is a 4-byte big-endian table id followed by the
// byte-sortable encoding of each key column value in schema order.
// Big-endian integers keep the B+tree ordering correct; the per-kind tag
// byte keeps cross-kind ordering identical to DataValue.Compare.
//
// Layouts:
//
//	node key:         [tid][key cols...]
//	edge forward key: [tid][src-tid][src key cols][true][dst key cols][edge key cols]
//	edge inverse key: [tid][dst-tid][dst key cols][true][src key cols][edge key cols]
//
// Association rows reuse the primary key with only the leading table id
// overwritten, so an association lookup is a single prefix rewrite away
// from its primary row.

// encodeUint32 encodes a uint32 as 4-byte big-endian.
func encodeUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}

// encodeValue appends the byte-sortable encoding of v to buf.
//
// Int payloads are big-endian with the sign bit flipped so signed order
// equals byte order. Float payloads use the IEEE-754 order-preserving bit
// transform. String/bytes payloads escape 0x00 as 0x00 0xFF and terminate
// with 0x00 0x01, so a shorter string sorts before any extension of it and
// embedded zero bytes cannot break key boundaries.
func encodeValue(buf []byte, v DataValue) []byte {
	buf = append(buf, byte(v.kind))
	switch v.kind {
	case KindNull, KindGuard, KindBot:
		// Tag only.
	case KindBool:
		if v.b {
			buf = append(buf, 0x01)
		} else {
			buf = append(buf, 0x00)
		}
	case KindInt:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(v.n)^(1<<63))
		buf = append(buf, tmp[:]...)
	case KindFloat:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], orderPreservingFloatBits(v.f))
		buf = append(buf, tmp[:]...)
	case KindString, KindBytes:
		for i := 0; i < len(v.s); i++ {
			if v.s[i] == 0x00 {
				buf = append(buf, 0x00, 0xff)
			} else {
				buf = append(buf, v.s[i])
			}
		}
		buf = append(buf, 0x00, 0x01)
	}
	return buf
}

// decodeValue reads one encoded value from b, returning the value and the
// remaining bytes.
func decodeValue(b []byte) (DataValue, []byte, error) {
	if len(b) == 0 {
		return Null, nil, fmt.Errorf("strata: truncated key: empty value")
	}
	kind := ValueKind(b[0])
	b = b[1:]
	switch kind {
	case KindNull, KindGuard, KindBot:
		return DataValue{kind: kind}, b, nil
	case KindBool:
		if len(b) < 1 {
			return Null, nil, fmt.Errorf("strata: truncated bool in key")
		}
		return DataValue{kind: KindBool, b: b[0] != 0}, b[1:], nil
	case KindInt:
		if len(b) < 8 {
			return Null, nil, fmt.Errorf("strata: truncated int in key")
		}
		n := int64(binary.BigEndian.Uint64(b[:8]) ^ (1 << 63))
		return DataValue{kind: KindInt, n: n}, b[8:], nil
	case KindFloat:
		if len(b) < 8 {
			return Null, nil, fmt.Errorf("strata: truncated float in key")
		}
		f := floatFromOrderedBits(binary.BigEndian.Uint64(b[:8]))
		return DataValue{kind: KindFloat, f: f}, b[8:], nil
	case KindString, KindBytes:
		var payload []byte
		for {
			if len(b) < 1 {
				return Null, nil, fmt.Errorf("strata: unterminated string in key")
			}
			if b[0] != 0x00 {
				payload = append(payload, b[0])
				b = b[1:]
				continue
			}
			if len(b) < 2 {
				return Null, nil, fmt.Errorf("strata: truncated escape in key")
			}
			switch b[1] {
			case 0x01:
				return DataValue{kind: kind, s: string(payload)}, b[2:], nil
			case 0xff:
				payload = append(payload, 0x00)
				b = b[2:]
			default:
				return Null, nil, fmt.Errorf("strata: invalid escape 0x%02x in key", b[1])
			}
		}
	}
	return Null, nil, fmt.Errorf("strata: unknown value kind 0x%02x in key", byte(kind))
}

// encodeKey builds a storage key: 4-byte big-endian table id followed by
// the sortable encoding of each tuple element.
func encodeKey(tid uint32, t Tuple) []byte {
	buf := make([]byte, 4, 4+len(t)*9)
	binary.BigEndian.PutUint32(buf, tid)
	for _, v := range t {
		buf = encodeValue(buf, v)
	}
	return buf
}

// decodeKey splits a storage key into its table id and element tuple.
func decodeKey(key []byte) (uint32, Tuple, error) {
	if len(key) < 4 {
		return 0, nil, fmt.Errorf("strata: key too short (%d bytes)", len(key))
	}
	tid := binary.BigEndian.Uint32(key[:4])
	rest := key[4:]
	var t Tuple
	for len(rest) > 0 {
		v, remaining, err := decodeValue(rest)
		if err != nil {
			return 0, nil, err
		}
		t = append(t, v)
		rest = remaining
	}
	return tid, t, nil
}

// overwriteKeyPrefix replaces the leading table id of an encoded key in
// place. Used to derive association keys from primary keys and to restore
// the primary id afterwards.
func overwriteKeyPrefix(key []byte, tid uint32) {
	binary.BigEndian.PutUint32(key[:4], tid)
}

// encodeValueTuple serializes a value tuple to MessagePack for persistent
// storage. Sentinels never appear in persisted values; they are rejected
// here rather than silently written.
func encodeValueTuple(t Tuple) ([]byte, error) {
	for i, v := range t {
		if v.kind == KindGuard || v.kind == KindBot {
			return nil, fmt.Errorf("strata: sentinel %s at position %d cannot be persisted", v, i)
		}
	}
	return msgpack.Marshal([]DataValue(t))
}

// decodeValueTuple deserializes a MessagePack value tuple.
func decodeValueTuple(data []byte) (Tuple, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var vals []DataValue
	if err := msgpack.Unmarshal(data, &vals); err != nil {
		return nil, fmt.Errorf("strata: failed to decode value tuple: %w", err)
	}
	return Tuple(vals), nil
}
