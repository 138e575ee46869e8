// Package payload implements the Sparkplug B binary wire format: a
// length-delimited, tag-numbered protobuf-compatible encoding of the
// Payload message and its Metric/MetaData sub-messages, hand-rolled
// rather than generated so the wire bytes are bit-exact and the
// datatype validation rules in spec.md §3/§4.1 apply at the point of
// encoding, not after the fact.
package payload

import (
	"bytes"

	"github.com/golang-io/sparkplug/datatype"
)

const (
	fieldPayloadTimestamp = 1
	fieldPayloadMetrics   = 2
	fieldPayloadSeq       = 3
	fieldPayloadUUID      = 4
	fieldPayloadBody      = 5
)

// Payload is the Sparkplug B message body carried by every topic except
// STATE. Seq is written only when non-nil; Encode does not check the
// message type, so an NDEATH, NCMD, or DCMD payload carries no seq only
// when Seq is nil (spec.md §3/§4.6).
type Payload struct {
	Timestamp int64 // ms since Unix epoch, UTC
	Metrics   []*Metric
	Seq       *uint64 // nil omits the field (NDEATH/NCMD/DCMD)
	UUID      string
	Body      []byte
}

// Encode serializes p. Field write order is seq, timestamp, metrics,
// uuid, body, per spec.md §4.1's explicit ordering requirement — unusual
// relative to ascending tag order, but that is what the spec mandates
// for this encoder; decode tolerates any order.
func (p *Payload) Encode() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if p.Seq != nil {
		buf.Write(encodeTag(fieldPayloadSeq, wireVarint))
		buf.Write(encodeVarint(*p.Seq))
	}

	buf.Write(encodeTag(fieldPayloadTimestamp, wireVarint))
	buf.Write(encodeVarint(uint64(p.Timestamp)))

	for _, m := range p.Metrics {
		body, err := m.encode()
		if err != nil {
			return nil, err
		}
		writeLengthDelimited(buf, fieldPayloadMetrics, body)
	}

	if p.UUID != "" {
		writeLengthDelimited(buf, fieldPayloadUUID, []byte(p.UUID))
	}
	if p.Body != nil {
		writeLengthDelimited(buf, fieldPayloadBody, p.Body)
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Decode parses raw into a Payload. Unknown fields are skipped;
// duplicated scalar fields take the last value, repeated fields
// (metrics) append, per spec.md §4.1.
func Decode(raw []byte) (*Payload, error) {
	buf := bytes.NewBuffer(raw)
	p := &Payload{}
	offset := 0
	for buf.Len() > 0 {
		tagVal, err := decodeVarint(buf, offset)
		if err != nil {
			return nil, err
		}
		field, wt := uint32(tagVal>>3), uint8(tagVal&0x7)
		switch field {
		case fieldPayloadTimestamp:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			p.Timestamp = int64(v)
		case fieldPayloadSeq:
			v, err := decodeVarint(buf, offset)
			if err != nil {
				return nil, err
			}
			seq := v
			p.Seq = &seq
		case fieldPayloadMetrics:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			m, err := decodeMetric(b)
			if err != nil {
				return nil, err
			}
			p.Metrics = append(p.Metrics, m)
		case fieldPayloadUUID:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			p.UUID = string(b)
		case fieldPayloadBody:
			b, err := readLengthDelimited(buf, offset)
			if err != nil {
				return nil, err
			}
			p.Body = b
		default:
			if err := skipField(buf, wt, offset); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// MetricByName returns the first metric in p named name.
func (p *Payload) MetricByName(name string) (*Metric, bool) {
	for _, m := range p.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// BdSeqMetric builds the well-known bdSeq metric carried in NBIRTH and
// NDEATH, per spec.md §3/§4.5.
func BdSeqMetric(bdSeq uint64, timestamp int64) *Metric {
	return &Metric{
		Name:      "bdSeq",
		Timestamp: timestamp,
		Datatype:  datatype.UInt64,
		Value:     bdSeq,
	}
}

// RebirthMetric builds the well-known "Node Control/Rebirth" command
// metric an NCMD uses to request a fresh birth, per spec.md §4.5.
func RebirthMetric(value bool, timestamp int64) *Metric {
	return &Metric{
		Name:      "Node Control/Rebirth",
		Timestamp: timestamp,
		Datatype:  datatype.Bool,
		Value:     value,
	}
}
