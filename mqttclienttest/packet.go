// Package mqttclienttest is a minimal in-process MQTT 3.1.1 broker used
// only by mqttclient's integration test. It speaks just enough of the
// wire protocol for a real paho.mqtt.golang client to CONNECT, PUBLISH
// (QoS 0/1), SUBSCRIBE/UNSUBSCRIBE, and have its will delivered on an
// ungraceful disconnect — the handful of MQTT behaviors Sparkplug's
// birth/death/data flow actually exercises (spec.md §4.5/§4.6). QoS 2,
// TLS, WebSockets, MQTT 5 properties/reason codes, and multi-broker
// federation are out of scope; a full broker is not what this package
// is for.
package mqttclienttest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	typeCONNECT     = 1
	typeCONNACK     = 2
	typePUBLISH     = 3
	typePUBACK      = 4
	typeSUBSCRIBE   = 8
	typeSUBACK      = 9
	typeUNSUBSCRIBE = 10
	typeUNSUBACK    = 11
	typePINGREQ     = 12
	typePINGRESP    = 13
	typeDISCONNECT  = 14
)

// rawPacket is an unparsed frame: the fixed-header type/flags byte plus
// the remaining-length-delimited body, before per-type decoding.
type rawPacket struct {
	kind  byte
	flags byte
	body  []byte
}

func readPacket(r io.Reader) (*rawPacket, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return nil, err
	}
	length, err := readRemainingLength(r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
	}
	return &rawPacket{kind: first[0] >> 4, flags: first[0] & 0x0F, body: body}, nil
}

func readRemainingLength(r io.Reader) (int, error) {
	multiplier := 1
	value := 0
	for i := 0; i < 4; i++ {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		value += int(b[0]&0x7F) * multiplier
		if b[0]&0x80 == 0 {
			return value, nil
		}
		multiplier *= 128
	}
	return 0, fmt.Errorf("mqttclienttest: malformed remaining length")
}

func writeFixedHeader(w *bytes.Buffer, kind, flags byte, remaining int) {
	w.WriteByte((kind << 4) | flags)
	for {
		b := byte(remaining % 128)
		remaining /= 128
		if remaining > 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if remaining == 0 {
			return
		}
	}
}

func readString(body []byte, offset int) (string, int, error) {
	if offset+2 > len(body) {
		return "", 0, fmt.Errorf("mqttclienttest: truncated string length")
	}
	n := int(binary.BigEndian.Uint16(body[offset:]))
	offset += 2
	if offset+n > len(body) {
		return "", 0, fmt.Errorf("mqttclienttest: truncated string body")
	}
	return string(body[offset : offset+n]), offset + n, nil
}

func writeString(w *bytes.Buffer, s string) {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(s)))
	w.Write(l[:])
	w.WriteString(s)
}

// connectPacket is CONNECT's decoded payload, trimmed to the fields the
// broker actually consults.
type connectPacket struct {
	clientID    string
	willFlag    bool
	willQoS     byte
	willRetain  bool
	willTopic   string
	willPayload []byte
	keepAlive   uint16
}

func decodeConnect(body []byte) (*connectPacket, error) {
	_, off, err := readString(body, 0) // protocol name, unchecked
	if err != nil {
		return nil, err
	}
	if off+4 > len(body) {
		return nil, fmt.Errorf("mqttclienttest: truncated CONNECT")
	}
	flags := body[off+1]
	keepAlive := binary.BigEndian.Uint16(body[off+2 : off+4])
	off += 4

	clientID, off, err := readString(body, off)
	if err != nil {
		return nil, err
	}

	p := &connectPacket{clientID: clientID, keepAlive: keepAlive}
	p.willFlag = flags&0x04 != 0
	p.willQoS = (flags >> 3) & 0x03
	p.willRetain = flags&0x20 != 0
	if p.willFlag {
		p.willTopic, off, err = readString(body, off)
		if err != nil {
			return nil, err
		}
		var payload string
		payload, off, err = readString(body, off)
		if err != nil {
			return nil, err
		}
		p.willPayload = []byte(payload)
	}
	if flags&0x80 != 0 { // username present
		if _, off, err = readString(body, off); err != nil {
			return nil, err
		}
	}
	if flags&0x40 != 0 { // password present
		if _, off, err = readString(body, off); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func encodeConnack() []byte {
	var buf bytes.Buffer
	writeFixedHeader(&buf, typeCONNACK, 0, 2)
	buf.WriteByte(0) // session present
	buf.WriteByte(0) // return code: accepted
	return buf.Bytes()
}

// publishPacket is PUBLISH's decoded form: enough to forward to
// matching subscribers at the right QoS/retain (spec.md §4.6).
type publishPacket struct {
	topic    string
	qos      byte
	retain   bool
	packetID uint16
	payload  []byte
}

func decodePublish(flags byte, body []byte) (*publishPacket, error) {
	p := &publishPacket{qos: (flags >> 1) & 0x03, retain: flags&0x01 != 0}
	topic, off, err := readString(body, 0)
	if err != nil {
		return nil, err
	}
	p.topic = topic
	if p.qos > 0 {
		if off+2 > len(body) {
			return nil, fmt.Errorf("mqttclienttest: truncated PUBLISH packet id")
		}
		p.packetID = binary.BigEndian.Uint16(body[off:])
		off += 2
	}
	p.payload = body[off:]
	return p, nil
}

func encodePublish(topic string, qos byte, retain bool, packetID uint16, payload []byte) []byte {
	var vhAndPayload bytes.Buffer
	writeString(&vhAndPayload, topic)
	if qos > 0 {
		var id [2]byte
		binary.BigEndian.PutUint16(id[:], packetID)
		vhAndPayload.Write(id[:])
	}
	vhAndPayload.Write(payload)

	var flags byte
	flags |= (qos << 1) & 0x06
	if retain {
		flags |= 0x01
	}
	var buf bytes.Buffer
	writeFixedHeader(&buf, typePUBLISH, flags, vhAndPayload.Len())
	buf.Write(vhAndPayload.Bytes())
	return buf.Bytes()
}

func encodePuback(packetID uint16) []byte {
	var buf bytes.Buffer
	writeFixedHeader(&buf, typePUBACK, 0, 2)
	var id [2]byte
	binary.BigEndian.PutUint16(id[:], packetID)
	buf.Write(id[:])
	return buf.Bytes()
}

func decodeSubscribe(body []byte) (packetID uint16, filters []string, qoses []byte, err error) {
	if len(body) < 2 {
		return 0, nil, nil, fmt.Errorf("mqttclienttest: truncated SUBSCRIBE")
	}
	packetID = binary.BigEndian.Uint16(body)
	off := 2
	for off < len(body) {
		var filter string
		filter, off, err = readString(body, off)
		if err != nil {
			return 0, nil, nil, err
		}
		if off >= len(body) {
			return 0, nil, nil, fmt.Errorf("mqttclienttest: truncated SUBSCRIBE qos")
		}
		filters = append(filters, filter)
		qoses = append(qoses, body[off])
		off++
	}
	return packetID, filters, qoses, nil
}

func encodeSuback(packetID uint16, qoses []byte) []byte {
	var buf bytes.Buffer
	writeFixedHeader(&buf, typeSUBACK, 0, 2+len(qoses))
	var id [2]byte
	binary.BigEndian.PutUint16(id[:], packetID)
	buf.Write(id[:])
	buf.Write(qoses)
	return buf.Bytes()
}

func decodeUnsubscribe(body []byte) (packetID uint16, filters []string, err error) {
	if len(body) < 2 {
		return 0, nil, fmt.Errorf("mqttclienttest: truncated UNSUBSCRIBE")
	}
	packetID = binary.BigEndian.Uint16(body)
	off := 2
	for off < len(body) {
		var filter string
		filter, off, err = readString(body, off)
		if err != nil {
			return 0, nil, err
		}
		filters = append(filters, filter)
	}
	return packetID, filters, nil
}

func encodeUnsuback(packetID uint16) []byte {
	var buf bytes.Buffer
	writeFixedHeader(&buf, typeUNSUBACK, 0, 2)
	var id [2]byte
	binary.BigEndian.PutUint16(id[:], packetID)
	buf.Write(id[:])
	return buf.Bytes()
}

func encodePingresp() []byte {
	var buf bytes.Buffer
	writeFixedHeader(&buf, typePINGRESP, 0, 0)
	return buf.Bytes()
}
