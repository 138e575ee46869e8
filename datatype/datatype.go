// Package datatype defines the closed enumeration of Sparkplug B metric
// datatypes: their wire tag, value shape, and the predicate a runtime
// value must satisfy to be encodable.
package datatype

import (
	"fmt"
	"math"
)

// Datatype is the numeric tag carried on the wire for a Metric, matching
// the Sparkplug B / Tahu reference enumeration.
type Datatype uint32

// Scalar and array datatypes. Tag numbers match org.eclipse.tahu's
// DataType enum exactly; gaps (Template=19, Dataset=16, PropertySet=20,
// PropertySetList=21, Unknown=0) are intentional.
const (
	Unknown Datatype = 0

	Int8   Datatype = 1
	Int16  Datatype = 2
	Int32  Datatype = 3
	Int64  Datatype = 4
	UInt8  Datatype = 5
	UInt16 Datatype = 6
	UInt32 Datatype = 7
	UInt64 Datatype = 8
	Float  Datatype = 9
	Double Datatype = 10
	Bool   Datatype = 11
	String Datatype = 12
	DateTime Datatype = 13
	Text     Datatype = 14
	UUID     Datatype = 15
	Dataset  Datatype = 16 // not implemented
	Bytes    Datatype = 17
	File     Datatype = 18
	Template Datatype = 19 // not implemented

	Int8Array      Datatype = 22
	Int16Array     Datatype = 23
	Int32Array     Datatype = 24
	Int64Array     Datatype = 25
	UInt8Array     Datatype = 26
	UInt16Array    Datatype = 27
	UInt32Array    Datatype = 28
	UInt64Array    Datatype = 29
	FloatArray     Datatype = 30
	DoubleArray    Datatype = 31
	BooleanArray   Datatype = 32
	StringArray    Datatype = 33
	DateTimeArray  Datatype = 34

	PropertySet     Datatype = 20 // not implemented
	PropertySetList Datatype = 21 // not implemented
)

// Kind classifies the shape of the value a Datatype carries.
type Kind uint8

const (
	KindScalar Kind = iota
	KindArray
	KindOpaque // bytes/file: length-delimited blob, no element structure
)

// WireSlot names the field of the Metric protobuf message a Datatype's
// value occupies.
type WireSlot uint8

const (
	SlotNone WireSlot = iota
	SlotUint   // uint_value (uint32 on the wire, widened in Go to uint64 for 64-bit types via uint_value/long_value split below)
	SlotLong   // long_value (uint64 wire slot; also holds zigzagged signed 64-bit values)
	SlotFloat
	SlotDouble
	SlotBoolean
	SlotString
	SlotBytes
)

type entry struct {
	name          string
	kind          Kind
	slot          WireSlot
	signed        bool
	bits          int // element width in bits for scalar/array numeric types
	notImplemented bool
}

var table = map[Datatype]entry{
	Unknown: {name: "Unknown", notImplemented: true},

	Int8:   {name: "Int8", kind: KindScalar, slot: SlotUint, signed: true, bits: 8},
	Int16:  {name: "Int16", kind: KindScalar, slot: SlotUint, signed: true, bits: 16},
	Int32:  {name: "Int32", kind: KindScalar, slot: SlotUint, signed: true, bits: 32},
	Int64:  {name: "Int64", kind: KindScalar, slot: SlotLong, signed: true, bits: 64},
	UInt8:  {name: "UInt8", kind: KindScalar, slot: SlotUint, bits: 8},
	UInt16: {name: "UInt16", kind: KindScalar, slot: SlotUint, bits: 16},
	UInt32: {name: "UInt32", kind: KindScalar, slot: SlotUint, bits: 32},
	UInt64: {name: "UInt64", kind: KindScalar, slot: SlotLong, bits: 64},
	Float:  {name: "Float", kind: KindScalar, slot: SlotFloat, bits: 32},
	Double: {name: "Double", kind: KindScalar, slot: SlotDouble, bits: 64},
	Bool:   {name: "Boolean", kind: KindScalar, slot: SlotBoolean},
	String: {name: "String", kind: KindScalar, slot: SlotString},
	DateTime: {name: "DateTime", kind: KindScalar, slot: SlotLong, bits: 64},
	Text:     {name: "Text", kind: KindScalar, slot: SlotString},
	UUID:     {name: "UUID", kind: KindScalar, slot: SlotString},
	Bytes:    {name: "Bytes", kind: KindOpaque, slot: SlotBytes},
	File:     {name: "File", kind: KindOpaque, slot: SlotBytes},

	Dataset:  {name: "DataSet", notImplemented: true},
	Template: {name: "Template", notImplemented: true},
	PropertySet:     {name: "PropertySet", notImplemented: true},
	PropertySetList: {name: "PropertySetList", notImplemented: true},

	Int8Array:    {name: "Int8Array", kind: KindArray, slot: SlotBytes, signed: true, bits: 8},
	Int16Array:   {name: "Int16Array", kind: KindArray, slot: SlotBytes, signed: true, bits: 16},
	Int32Array:   {name: "Int32Array", kind: KindArray, slot: SlotBytes, signed: true, bits: 32},
	Int64Array:   {name: "Int64Array", kind: KindArray, slot: SlotBytes, signed: true, bits: 64},
	UInt8Array:   {name: "UInt8Array", kind: KindArray, slot: SlotBytes, bits: 8},
	UInt16Array:  {name: "UInt16Array", kind: KindArray, slot: SlotBytes, bits: 16},
	UInt32Array:  {name: "UInt32Array", kind: KindArray, slot: SlotBytes, bits: 32},
	UInt64Array:  {name: "UInt64Array", kind: KindArray, slot: SlotBytes, bits: 64},
	FloatArray:   {name: "FloatArray", kind: KindArray, slot: SlotBytes, bits: 32},
	DoubleArray:  {name: "DoubleArray", kind: KindArray, slot: SlotBytes, bits: 64},
	BooleanArray: {name: "BooleanArray", kind: KindArray, slot: SlotBytes, bits: 1},
	StringArray:  {name: "StringArray", kind: KindArray, slot: SlotBytes},
	DateTimeArray: {name: "DateTimeArray", kind: KindArray, slot: SlotBytes, signed: true, bits: 64},
}

func (d Datatype) String() string {
	if e, ok := table[d]; ok {
		return e.name
	}
	return fmt.Sprintf("Datatype(%d)", uint32(d))
}

// Known reports whether d is a datatype this table recognizes at all
// (including the deliberately-unimplemented ones).
func (d Datatype) Known() bool {
	_, ok := table[d]
	return ok
}

// NotImplemented reports whether d is unsupported by this codec: either
// recognized by the Sparkplug enumeration but deliberately unimplemented
// (Template, DataSet, PropertySet, PropertySetList, and the zero value
// Unknown), or a tag this table does not recognize at all.
func (d Datatype) NotImplemented() bool {
	e, ok := table[d]
	return !ok || e.notImplemented
}

// Kind reports the wire shape of d's value.
func (d Datatype) Kind() Kind {
	return table[d].kind
}

// Slot reports which Metric wire field carries d's value.
func (d Datatype) Slot() WireSlot {
	return table[d].slot
}

// Signed reports whether d's scalar/array element is a signed integer
// (zigzag-encoded before it occupies its wire slot).
func (d Datatype) Signed() bool {
	return table[d].signed
}

// Bits reports the element width in bits for numeric scalar/array
// datatypes (0 for string/bool/bytes/opaque kinds).
func (d Datatype) Bits() int {
	return table[d].bits
}

// ValidateInt checks v against d's signed/unsigned N-bit range. It only
// applies to the integer scalar datatypes; callers must check Kind/Slot
// first.
func ValidateInt(d Datatype, v int64) error {
	e, ok := table[d]
	if !ok || e.kind != KindScalar || e.bits == 0 || e.slot == SlotFloat || e.slot == SlotDouble {
		return fmt.Errorf("datatype %s is not an integer scalar", d)
	}
	if e.signed {
		lo := -(int64(1) << (e.bits - 1))
		hi := int64(1)<<(e.bits-1) - 1
		if v < lo || v > hi {
			return fmt.Errorf("value %d out of range for %s [%d,%d]", v, d, lo, hi)
		}
		return nil
	}
	if e.bits == 64 {
		// uint64 range checked by the caller's unsigned type; nothing
		// representable as int64 can overflow uint64's upper half here.
		if v < 0 {
			return fmt.Errorf("value %d out of range for %s [0,2^64-1]", v, d)
		}
		return nil
	}
	hi := int64(1)<<e.bits - 1
	if v < 0 || v > hi {
		return fmt.Errorf("value %d out of range for %s [0,%d]", v, d, hi)
	}
	return nil
}

// ValidateUint64 range-checks an unsigned 64-bit scalar (UInt64, or the
// uint64 form of DateTime's millisecond timestamp).
func ValidateUint64(d Datatype, v uint64) error {
	e, ok := table[d]
	if !ok || e.kind != KindScalar || e.signed {
		return fmt.Errorf("datatype %s is not an unsigned scalar", d)
	}
	if e.bits < 64 && v > uint64(1)<<e.bits-1 {
		return fmt.Errorf("value %d out of range for %s [0,%d]", v, d, uint64(1)<<e.bits-1)
	}
	return nil
}

// ValidateFloat32 checks v is finite (Sparkplug metric values must be
// finite; NaN/Inf are rejected as invalid).
func ValidateFloat32(v float32) error {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return fmt.Errorf("float value %v is not finite", v)
	}
	return nil
}

// ValidateFloat64 is ValidateFloat32 for the double slot.
func ValidateFloat64(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("double value %v is not finite", v)
	}
	return nil
}

// ArrayElement returns the scalar Datatype corresponding to an array
// Datatype's element, used by the array codec to reuse the scalar
// encode/decode/validate helpers per element.
func ArrayElement(d Datatype) (Datatype, bool) {
	switch d {
	case Int8Array:
		return Int8, true
	case Int16Array:
		return Int16, true
	case Int32Array:
		return Int32, true
	case Int64Array:
		return Int64, true
	case UInt8Array:
		return UInt8, true
	case UInt16Array:
		return UInt16, true
	case UInt32Array:
		return UInt32, true
	case UInt64Array:
		return UInt64, true
	case FloatArray:
		return Float, true
	case DoubleArray:
		return Double, true
	case BooleanArray:
		return Bool, true
	case StringArray:
		return String, true
	case DateTimeArray:
		return DateTime, true
	default:
		return Unknown, false
	}
}

// IsArray reports whether d is one of the *_ARRAY datatypes.
func IsArray(d Datatype) bool {
	return table[d].kind == KindArray
}
