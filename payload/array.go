package payload

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang-io/sparkplug/datatype"
)

// encodeArray packs an array-typed metric value into the bytes_value
// slot per spec.md §4.1: numeric arrays use natural fixed-width
// little-endian elements; BOOLEAN_ARRAY is length-prefixed (uint32 LE
// element count) then bit-packed LSB-first; STRING_ARRAY is a
// NUL-terminated UTF-8 concatenation; DATETIME_ARRAY packs int64
// ms-epoch elements.
func encodeArray(d datatype.Datatype, v any) ([]byte, error) {
	switch d {
	case datatype.Int8Array:
		vals, ok := v.([]int8)
		if !ok {
			return nil, fmt.Errorf("expected []int8 for %s", d)
		}
		out := make([]byte, len(vals))
		for i, e := range vals {
			out[i] = byte(e)
		}
		return out, nil
	case datatype.UInt8Array:
		vals, ok := v.([]uint8)
		if !ok {
			return nil, fmt.Errorf("expected []uint8 for %s", d)
		}
		return append([]byte(nil), vals...), nil
	case datatype.Int16Array:
		vals, ok := v.([]int16)
		if !ok {
			return nil, fmt.Errorf("expected []int16 for %s", d)
		}
		out := make([]byte, len(vals)*2)
		for i, e := range vals {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(e))
		}
		return out, nil
	case datatype.UInt16Array:
		vals, ok := v.([]uint16)
		if !ok {
			return nil, fmt.Errorf("expected []uint16 for %s", d)
		}
		out := make([]byte, len(vals)*2)
		for i, e := range vals {
			binary.LittleEndian.PutUint16(out[i*2:], e)
		}
		return out, nil
	case datatype.Int32Array:
		vals, ok := v.([]int32)
		if !ok {
			return nil, fmt.Errorf("expected []int32 for %s", d)
		}
		out := make([]byte, len(vals)*4)
		for i, e := range vals {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(e))
		}
		return out, nil
	case datatype.UInt32Array:
		vals, ok := v.([]uint32)
		if !ok {
			return nil, fmt.Errorf("expected []uint32 for %s", d)
		}
		out := make([]byte, len(vals)*4)
		for i, e := range vals {
			binary.LittleEndian.PutUint32(out[i*4:], e)
		}
		return out, nil
	case datatype.Int64Array:
		vals, ok := v.([]int64)
		if !ok {
			return nil, fmt.Errorf("expected []int64 for %s", d)
		}
		out := make([]byte, len(vals)*8)
		for i, e := range vals {
			binary.LittleEndian.PutUint64(out[i*8:], uint64(e))
		}
		return out, nil
	case datatype.UInt64Array:
		vals, ok := v.([]uint64)
		if !ok {
			return nil, fmt.Errorf("expected []uint64 for %s", d)
		}
		out := make([]byte, len(vals)*8)
		for i, e := range vals {
			binary.LittleEndian.PutUint64(out[i*8:], e)
		}
		return out, nil
	case datatype.FloatArray:
		vals, ok := v.([]float32)
		if !ok {
			return nil, fmt.Errorf("expected []float32 for %s", d)
		}
		out := make([]byte, len(vals)*4)
		for i, e := range vals {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(e))
		}
		return out, nil
	case datatype.DoubleArray:
		vals, ok := v.([]float64)
		if !ok {
			return nil, fmt.Errorf("expected []float64 for %s", d)
		}
		out := make([]byte, len(vals)*8)
		for i, e := range vals {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(e))
		}
		return out, nil
	case datatype.DateTimeArray:
		vals, ok := v.([]int64)
		if !ok {
			return nil, fmt.Errorf("expected []int64 (ms epoch) for %s", d)
		}
		out := make([]byte, len(vals)*8)
		for i, e := range vals {
			binary.LittleEndian.PutUint64(out[i*8:], uint64(e))
		}
		return out, nil
	case datatype.BooleanArray:
		vals, ok := v.([]bool)
		if !ok {
			return nil, fmt.Errorf("expected []bool for %s", d)
		}
		return encodeBoolArray(vals), nil
	case datatype.StringArray:
		vals, ok := v.([]string)
		if !ok {
			return nil, fmt.Errorf("expected []string for %s", d)
		}
		var out []byte
		for _, s := range vals {
			out = append(out, []byte(s)...)
			out = append(out, 0)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s is not an array datatype", d)
	}
}

// encodeBoolArray packs booleans LSB-first within each byte, prefixed
// by a uint32 little-endian element count. Per the seed scenario in
// spec.md §8 item 6: [t,f,t,t,f,f,f,f,t] -> length=9 (`09 00 00 00`),
// bits `0x0D 0x01` (first byte holds elements 0-7 LSB-first, second
// byte holds the 9th element in its bit 0).
func encodeBoolArray(vals []bool) []byte {
	out := make([]byte, 4+(len(vals)+7)/8)
	binary.LittleEndian.PutUint32(out[:4], uint32(len(vals)))
	for i, b := range vals {
		if b {
			out[4+i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func decodeBoolArray(raw []byte) ([]bool, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("boolean array: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(raw[:4])
	body := raw[4:]
	need := (int(n) + 7) / 8
	if len(body) < need {
		return nil, fmt.Errorf("boolean array: truncated body, want %d bytes have %d", need, len(body))
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = body[i/8]&(1<<uint(i%8)) != 0
	}
	return out, nil
}

func decodeArray(d datatype.Datatype, raw []byte) (any, error) {
	switch d {
	case datatype.Int8Array:
		out := make([]int8, len(raw))
		for i, b := range raw {
			out[i] = int8(b)
		}
		return out, nil
	case datatype.UInt8Array:
		return append([]byte(nil), raw...), nil
	case datatype.Int16Array:
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("int16 array: odd length %d", len(raw))
		}
		out := make([]int16, len(raw)/2)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		return out, nil
	case datatype.UInt16Array:
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("uint16 array: odd length %d", len(raw))
		}
		out := make([]uint16, len(raw)/2)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(raw[i*2:])
		}
		return out, nil
	case datatype.Int32Array:
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("int32 array: bad length %d", len(raw))
		}
		out := make([]int32, len(raw)/4)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case datatype.UInt32Array:
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("uint32 array: bad length %d", len(raw))
		}
		out := make([]uint32, len(raw)/4)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(raw[i*4:])
		}
		return out, nil
	case datatype.Int64Array:
		if len(raw)%8 != 0 {
			return nil, fmt.Errorf("int64 array: bad length %d", len(raw))
		}
		out := make([]int64, len(raw)/8)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out, nil
	case datatype.UInt64Array:
		if len(raw)%8 != 0 {
			return nil, fmt.Errorf("uint64 array: bad length %d", len(raw))
		}
		out := make([]uint64, len(raw)/8)
		for i := range out {
			out[i] = binary.LittleEndian.Uint64(raw[i*8:])
		}
		return out, nil
	case datatype.FloatArray:
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("float array: bad length %d", len(raw))
		}
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case datatype.DoubleArray:
		if len(raw)%8 != 0 {
			return nil, fmt.Errorf("double array: bad length %d", len(raw))
		}
		out := make([]float64, len(raw)/8)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out, nil
	case datatype.DateTimeArray:
		if len(raw)%8 != 0 {
			return nil, fmt.Errorf("datetime array: bad length %d", len(raw))
		}
		out := make([]int64, len(raw)/8)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out, nil
	case datatype.BooleanArray:
		return decodeBoolArray(raw)
	case datatype.StringArray:
		var out []string
		start := 0
		for i, b := range raw {
			if b == 0 {
				out = append(out, string(raw[start:i]))
				start = i + 1
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s is not an array datatype", d)
	}
}
