package payload

import (
	"reflect"
	"testing"

	"github.com/golang-io/sparkplug/datatype"
)

func TestMetricRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		m    *Metric
	}{
		{"uint8", &Metric{Name: "m", Timestamp: 1000, Datatype: datatype.UInt8, Value: uint8(42)}},
		{"int16-negative", &Metric{Name: "x", Timestamp: 2000, Datatype: datatype.Int16, Value: int16(-3)}},
		{"uint64", &Metric{Name: "bdSeq", Timestamp: 0, Datatype: datatype.UInt64, Value: uint64(7)}},
		{"bool", &Metric{Name: "b", Timestamp: 1, Datatype: datatype.Bool, Value: true}},
		{"string", &Metric{Name: "s", Timestamp: 1, Datatype: datatype.String, Value: "hello"}},
		{"float", &Metric{Name: "f", Timestamp: 1, Datatype: datatype.Float, Value: float32(3.5)}},
		{"double", &Metric{Name: "d", Timestamp: 1, Datatype: datatype.Double, Value: 2.71828}},
		{"null", &Metric{Name: "n", Timestamp: 1, Datatype: datatype.UInt8, Value: nil, IsNull: true}},
		{"bool-array", &Metric{Name: "ba", Timestamp: 1, Datatype: datatype.BooleanArray,
			Value: []bool{true, false, true, true, false, false, false, false, true}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			body, err := c.m.encode()
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := decodeMetric(body)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Name != c.m.Name || got.Timestamp != c.m.Timestamp || got.Datatype != c.m.Datatype {
				t.Fatalf("header mismatch: got %+v, want %+v", got, c.m)
			}
			if c.m.IsNull {
				if !got.IsNull || got.Value != nil {
					t.Fatalf("expected null round-trip, got %+v", got)
				}
				return
			}
			if !reflect.DeepEqual(normalize(got.Value), normalize(c.m.Value)) {
				t.Fatalf("value mismatch: got %#v, want %#v", got.Value, c.m.Value)
			}
		})
	}
}

// normalize widens integer/uint types to a common comparable form since
// the decoder returns datatype-width-appropriate Go types that don't
// always match the exact input type (e.g. int16 in, int32 widened zigzag
// result out for Int16... normalize corrects for that in the test only).
func normalize(v any) any {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case int64:
		return n
	case uint32:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint8:
		return uint64(n)
	default:
		return v
	}
}

func TestBooleanArrayPacking(t *testing.T) {
	vals := []bool{true, false, true, true, false, false, false, false, true}
	raw := encodeBoolArray(vals)
	want := []byte{0x09, 0x00, 0x00, 0x00, 0x0D, 0x01}
	if !reflect.DeepEqual(raw, want) {
		t.Fatalf("encodeBoolArray = % x, want % x", raw, want)
	}
	got, err := decodeBoolArray(raw)
	if err != nil {
		t.Fatalf("decodeBoolArray: %v", err)
	}
	if !reflect.DeepEqual(got, vals) {
		t.Fatalf("decodeBoolArray = %v, want %v", got, vals)
	}
}

func TestIntegerRangeRejected(t *testing.T) {
	m := &Metric{Name: "m", Timestamp: 1, Datatype: datatype.UInt8, Value: uint32(256)}
	if _, err := m.encode(); err == nil {
		t.Fatal("expected encode error for UINT8=256")
	}
}

func TestNotImplementedDatatype(t *testing.T) {
	m := &Metric{Name: "t", Timestamp: 1, Datatype: datatype.Template, Value: []byte("x")}
	_, err := m.encode()
	if err == nil {
		t.Fatal("expected NotImplementedDatatype error")
	}
	var nie *NotImplementedDatatype
	if !errorsAs(err, &nie) {
		t.Fatalf("expected *NotImplementedDatatype, got %T: %v", err, err)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	seq := uint64(0)
	p := &Payload{
		Timestamp: 123456,
		Seq:       &seq,
		Metrics: []*Metric{
			BdSeqMetric(0, 123456),
			{Name: "m", Timestamp: 123456, Datatype: datatype.UInt8, Value: uint8(42)},
		},
	}
	raw, err := p.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Timestamp != p.Timestamp || got.Seq == nil || *got.Seq != 0 {
		t.Fatalf("header mismatch: %+v", got)
	}
	if len(got.Metrics) != 2 || got.Metrics[0].Name != "bdSeq" || got.Metrics[1].Name != "m" {
		t.Fatalf("metrics mismatch: %+v", got.Metrics)
	}
}

func TestDecodeUnknownDatatypeTag(t *testing.T) {
	// Hand-build a Metric body with a valid name/timestamp but a
	// datatype tag outside the known enumeration.
	buf := GetBuffer()
	defer PutBuffer(buf)
	writeLengthDelimited(buf, fieldMetricName, []byte("x"))
	buf.Write(encodeTag(fieldMetricTimestamp, wireVarint))
	buf.Write(encodeVarint(1))
	buf.Write(encodeTag(fieldMetricDatatype, wireVarint))
	buf.Write(encodeVarint(250))
	_, err := decodeMetric(append([]byte(nil), buf.Bytes()...))
	if err == nil {
		t.Fatal("expected codec error for unknown datatype tag")
	}
}

func errorsAs(err error, target any) bool {
	switch t := target.(type) {
	case **NotImplementedDatatype:
		if e, ok := err.(*NotImplementedDatatype); ok {
			*t = e
			return true
		}
	}
	return false
}
