package payload

import (
	"bytes"
	"math"
	"unicode/utf8"

	"github.com/golang-io/sparkplug/datatype"
)

// Field numbers match org.eclipse.tahu's Payload.proto exactly, so the
// bytes this package produces are decodable by the Tahu reference
// decoder per spec.md §6.
const (
	fieldMetricName         = 1
	fieldMetricAlias        = 2
	fieldMetricTimestamp    = 3
	fieldMetricDatatype     = 4
	fieldMetricIsHistorical = 5
	fieldMetricIsTransient  = 6
	fieldMetricIsNull       = 7
	fieldMetricMetaData     = 8
	fieldMetricIntValue     = 10
	fieldMetricLongValue    = 11
	fieldMetricFloatValue   = 12
	fieldMetricDoubleValue  = 13
	fieldMetricBooleanValue = 14
	fieldMetricStringValue  = 15
	fieldMetricBytesValue   = 16

	fieldMetaIsMultiPart = 1
	fieldMetaContentType = 2
	fieldMetaSize        = 3
	fieldMetaSeq         = 4
	fieldMetaFileName    = 5
	fieldMetaFileType    = 6
	fieldMetaMD5         = 7
	fieldMetaDescription = 8
)

// MetaData is the optional per-metric descriptor used primarily for
// chunked BYTES/FILE uploads, per spec.md §3.
type MetaData struct {
	IsMultiPart bool
	ContentType string
	Size        uint64
	Seq         uint64
	FileName    string
	FileType    string
	MD5         string
	Description string
}

func (m *MetaData) encode() []byte {
	buf := GetBuffer()
	defer PutBuffer(buf)
	if m.IsMultiPart {
		buf.Write(encodeTag(fieldMetaIsMultiPart, wireVarint))
		buf.WriteByte(1)
	}
	if m.ContentType != "" {
		writeLengthDelimited(buf, fieldMetaContentType, []byte(m.ContentType))
	}
	if m.Size != 0 {
		buf.Write(encodeTag(fieldMetaSize, wireVarint))
		buf.Write(encodeVarint(m.Size))
	}
	if m.Seq != 0 {
		buf.Write(encodeTag(fieldMetaSeq, wireVarint))
		buf.Write(encodeVarint(m.Seq))
	}
	if m.FileName != "" {
		writeLengthDelimited(buf, fieldMetaFileName, []byte(m.FileName))
	}
	if m.FileType != "" {
		writeLengthDelimited(buf, fieldMetaFileType, []byte(m.FileType))
	}
	if m.MD5 != "" {
		writeLengthDelimited(buf, fieldMetaMD5, []byte(m.MD5))
	}
	if m.Description != "" {
		writeLengthDelimited(buf, fieldMetaDescription, []byte(m.Description))
	}
	return bytes.Clone(buf.Bytes())
}

func decodeMetaData(raw []byte) (*MetaData, error) {
	buf := bytes.NewBuffer(raw)
	md := &MetaData{}
	offset := 0
	for buf.Len() > 0 {
		tagVal, err := decodeVarint(buf, offset)
		if err != nil {
			return nil, err
		}
		field, wt := uint32(tagVal>>3), uint8(tagVal&0x7)
		switch field {
		case fieldMetaIsMultiPart:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			md.IsMultiPart = v != 0
		case fieldMetaContentType:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			md.ContentType = string(b)
		case fieldMetaSize:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			md.Size = v
		case fieldMetaSeq:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			md.Seq = v
		case fieldMetaFileName:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			md.FileName = string(b)
		case fieldMetaFileType:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			md.FileType = string(b)
		case fieldMetaMD5:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			md.MD5 = string(b)
		case fieldMetaDescription:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			md.Description = string(b)
		default:
			if err := skipField(buf, wt, offset); err != nil {
				return nil, err
			}
		}
	}
	return md, nil
}

// Metric is a single named, timestamped, typed value within a Payload,
// per spec.md §3. Value holds the Go-native representation appropriate
// to Datatype (see datatype.Datatype and the payload/array.go element
// types); it is nil when IsNull is true.
type Metric struct {
	Name         string
	Alias        uint64
	Timestamp    int64 // ms since Unix epoch, UTC
	Datatype     datatype.Datatype
	Value        any
	IsHistorical bool
	IsTransient  bool
	IsNull       bool
	MetaData     *MetaData
}

// encode serializes m as a length-delimited Metric sub-message body
// (the caller wraps it with a field-2 tag on the containing Payload).
func (m *Metric) encode() ([]byte, error) {
	if m.Datatype.NotImplemented() {
		return nil, &NotImplementedDatatype{Name: m.Datatype.String()}
	}
	buf := GetBuffer()
	defer PutBuffer(buf)

	if m.Name != "" {
		writeLengthDelimited(buf, fieldMetricName, []byte(m.Name))
	}
	if m.Alias != 0 {
		return nil, &NotImplementedDatatype{Name: "alias"}
	}
	if m.Timestamp < 0 {
		return nil, &InvalidMetric{Name: m.Name, Reason: "timestamp must be non-negative"}
	}
	buf.Write(encodeTag(fieldMetricTimestamp, wireVarint))
	buf.Write(encodeVarint(uint64(m.Timestamp)))

	buf.Write(encodeTag(fieldMetricDatatype, wireVarint))
	buf.Write(encodeVarint(uint64(m.Datatype)))

	if m.IsHistorical {
		buf.Write(encodeTag(fieldMetricIsHistorical, wireVarint))
		buf.WriteByte(1)
	}
	if m.IsTransient {
		buf.Write(encodeTag(fieldMetricIsTransient, wireVarint))
		buf.WriteByte(1)
	}

	isNull := m.IsNull || m.Value == nil
	if isNull {
		buf.Write(encodeTag(fieldMetricIsNull, wireVarint))
		buf.WriteByte(1)
	}

	if m.MetaData != nil {
		writeLengthDelimited(buf, fieldMetricMetaData, m.MetaData.encode())
	}

	if !isNull {
		if err := encodeValue(buf, m.Datatype, m.Value, m.Name); err != nil {
			return nil, err
		}
	}
	return bytes.Clone(buf.Bytes()), nil
}

// encodeValue appends the (tag, value) pair for the metric's value
// slot, validating (datatype, value) consistency per spec.md §4.1.
func encodeValue(buf *bytes.Buffer, d datatype.Datatype, v any, name string) error {
	if datatype.IsArray(d) {
		raw, err := encodeArray(d, v)
		if err != nil {
			return &InvalidMetric{Name: name, Reason: err.Error()}
		}
		writeLengthDelimited(buf, fieldMetricBytesValue, raw)
		return nil
	}
	switch d.Slot() {
	case datatype.SlotUint:
		iv, err := asInt64(v)
		if err != nil {
			return &InvalidMetric{Name: name, Reason: err.Error()}
		}
		if err := datatype.ValidateInt(d, iv); err != nil {
			return &InvalidMetric{Name: name, Reason: err.Error()}
		}
		var wire uint32
		if d.Signed() {
			wire = zigzagEncode32(int32(iv))
		} else {
			wire = uint32(iv)
		}
		buf.Write(encodeTag(fieldMetricIntValue, wireVarint))
		buf.Write(encodeVarint(uint64(wire)))
		return nil
	case datatype.SlotLong:
		if d == datatype.DateTime {
			iv, err := asInt64(v)
			if err != nil {
				return &InvalidMetric{Name: name, Reason: err.Error()}
			}
			buf.Write(encodeTag(fieldMetricLongValue, wireVarint))
			buf.Write(encodeVarint(uint64(iv)))
			return nil
		}
		if d.Signed() {
			iv, err := asInt64(v)
			if err != nil {
				return &InvalidMetric{Name: name, Reason: err.Error()}
			}
			if err := datatype.ValidateInt(d, iv); err != nil {
				return &InvalidMetric{Name: name, Reason: err.Error()}
			}
			buf.Write(encodeTag(fieldMetricLongValue, wireVarint))
			buf.Write(encodeVarint(zigzagEncode64(iv)))
			return nil
		}
		uv, err := asUint64(v)
		if err != nil {
			return &InvalidMetric{Name: name, Reason: err.Error()}
		}
		if err := datatype.ValidateUint64(d, uv); err != nil {
			return &InvalidMetric{Name: name, Reason: err.Error()}
		}
		buf.Write(encodeTag(fieldMetricLongValue, wireVarint))
		buf.Write(encodeVarint(uv))
		return nil
	case datatype.SlotFloat:
		fv, ok := v.(float32)
		if !ok {
			return &InvalidMetric{Name: name, Reason: "expected float32"}
		}
		if err := datatype.ValidateFloat32(fv); err != nil {
			return &InvalidMetric{Name: name, Reason: err.Error()}
		}
		buf.Write(encodeTag(fieldMetricFloatValue, wireFixed32))
		putFixed32(buf, math.Float32bits(fv))
		return nil
	case datatype.SlotDouble:
		fv, ok := v.(float64)
		if !ok {
			return &InvalidMetric{Name: name, Reason: "expected float64"}
		}
		if err := datatype.ValidateFloat64(fv); err != nil {
			return &InvalidMetric{Name: name, Reason: err.Error()}
		}
		buf.Write(encodeTag(fieldMetricDoubleValue, wireFixed64))
		putFixed64(buf, math.Float64bits(fv))
		return nil
	case datatype.SlotBoolean:
		bv, ok := v.(bool)
		if !ok {
			return &InvalidMetric{Name: name, Reason: "expected bool"}
		}
		buf.Write(encodeTag(fieldMetricBooleanValue, wireVarint))
		if bv {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return nil
	case datatype.SlotString:
		sv, ok := v.(string)
		if !ok {
			return &InvalidMetric{Name: name, Reason: "expected string"}
		}
		if !utf8.ValidString(sv) {
			return &InvalidMetric{Name: name, Reason: "invalid UTF-8"}
		}
		writeLengthDelimited(buf, fieldMetricStringValue, []byte(sv))
		return nil
	case datatype.SlotBytes:
		bv, ok := v.([]byte)
		if !ok {
			return &InvalidMetric{Name: name, Reason: "expected []byte"}
		}
		writeLengthDelimited(buf, fieldMetricBytesValue, bv)
		return nil
	default:
		return &NotImplementedDatatype{Name: d.String()}
	}
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, errNotInt
	}
}

func asUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, errNotUint
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, errNotUint
		}
		return uint64(n), nil
	default:
		return 0, errNotUint
	}
}

var errNotInt = &InvalidMetric{Reason: "value is not an integer"}
var errNotUint = &InvalidMetric{Reason: "value is not a non-negative integer"}

// decodeMetric parses a Metric sub-message body.
func decodeMetric(raw []byte) (*Metric, error) {
	buf := bytes.NewBuffer(raw)
	m := &Metric{}
	offset := 0
	var haveValue bool
	for buf.Len() > 0 {
		tagVal, err := decodeVarint(buf, offset)
		if err != nil {
			return nil, err
		}
		field, wt := uint32(tagVal>>3), uint8(tagVal&0x7)
		switch field {
		case fieldMetricName:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			if !utf8.Valid(b) {
				return nil, newCodecErr(offset, field, "invalid UTF-8 in metric name")
			}
			m.Name = string(b)
		case fieldMetricAlias:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			m.Alias = v
		case fieldMetricTimestamp:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			m.Timestamp = int64(v)
		case fieldMetricDatatype:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			m.Datatype = datatype.Datatype(v)
			if !m.Datatype.Known() {
				return nil, newCodecErr(offset, field, "datatype tag outside known enumeration")
			}
			if m.Datatype.NotImplemented() {
				return nil, &NotImplementedDatatype{Name: m.Datatype.String()}
			}
		case fieldMetricIsHistorical:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			m.IsHistorical = v != 0
		case fieldMetricIsTransient:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			m.IsTransient = v != 0
		case fieldMetricIsNull:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			m.IsNull = v != 0
		case fieldMetricMetaData:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			md, err := decodeMetaData(b)
			if err != nil {
				return nil, err
			}
			m.MetaData = md
		case fieldMetricIntValue:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			haveValue = true
			if err := decodeScalarValue(m, field, uint64(uint32(v))); err != nil {
				return nil, err
			}
		case fieldMetricLongValue:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			haveValue = true
			if err := decodeScalarValue(m, field, v); err != nil {
				return nil, err
			}
		case fieldMetricFloatValue:
			v, err := readFixed32(buf, offset)
			if err != nil {
				return nil, err
			}
			haveValue = true
			m.Value = math.Float32frombits(v)
		case fieldMetricDoubleValue:
			v, err := readFixed64(buf, offset)
			if err != nil {
				return nil, err
			}
			haveValue = true
			m.Value = math.Float64frombits(v)
		case fieldMetricBooleanValue:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			haveValue = true
			m.Value = v != 0
		case fieldMetricStringValue:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			if !utf8.Valid(b) {
				return nil, newCodecErr(offset, field, "invalid UTF-8 in string_value")
			}
			haveValue = true
			m.Value = string(b)
		case fieldMetricBytesValue:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			haveValue = true
			if datatype.IsArray(m.Datatype) {
				av, err := decodeArray(m.Datatype, b)
				if err != nil {
					return nil, newCodecErr(offset, field, err.Error())
				}
				m.Value = av
			} else {
				m.Value = b
			}
		default:
			if err := skipField(buf, wt, offset); err != nil {
				return nil, err
			}
		}
	}
	if m.IsNull || !haveValue {
		m.IsNull = true
		m.Value = nil
	}
	return m, nil
}

// decodeScalarValue resolves the ambiguous int_value/long_value slot
// against the already-known (or not-yet-known) datatype. Since field
// order on the wire is not guaranteed, this assumes datatype precedes
// the value field — true for every encoder in this package and for the
// Tahu reference encoder, which both write fields in ascending tag
// order.
func decodeScalarValue(m *Metric, field uint32, raw uint64) error {
	d := m.Datatype
	if d.Signed() {
		if field == fieldMetricIntValue {
			m.Value = zigzagDecode32(uint32(raw))
		} else {
			m.Value = zigzagDecode64(raw)
		}
		return nil
	}
	switch field {
	case fieldMetricIntValue:
		m.Value = uint32(raw)
	case fieldMetricLongValue:
		m.Value = raw
	}
	return nil
}
