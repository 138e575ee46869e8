package mqttclienttest

import (
	"bytes"
	"testing"
)

func TestSubackRoundTrip(t *testing.T) {
	raw := encodeSuback(42, []byte{1, 0})
	pkt, err := readPacket(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if pkt.kind != typeSUBACK {
		t.Fatalf("kind = %d, want SUBACK", pkt.kind)
	}
}

func TestDecodeConnectWithWill(t *testing.T) {
	var buf bytes.Buffer
	writeString(&buf, "MQTT")
	buf.WriteByte(4)    // protocol level
	buf.WriteByte(0x06) // clean session + will flag
	buf.Write([]byte{0, 30})
	writeString(&buf, "edge-1")
	writeString(&buf, "spBv1.0/g/NDEATH/n")
	writeString(&buf, "will-payload")

	c, err := decodeConnect(buf.Bytes())
	if err != nil {
		t.Fatalf("decodeConnect: %v", err)
	}
	if c.clientID != "edge-1" {
		t.Errorf("clientID = %q", c.clientID)
	}
	if !c.willFlag || c.willTopic != "spBv1.0/g/NDEATH/n" || string(c.willPayload) != "will-payload" {
		t.Errorf("will not decoded: %+v", c)
	}
}

func TestPublishEncodeDecodeRoundTrip(t *testing.T) {
	raw := encodePublish("spBv1.0/g/NDATA/n", 1, false, 7, []byte("payload"))
	pkt, err := readPacket(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	pub, err := decodePublish(pkt.flags, pkt.body)
	if err != nil {
		t.Fatalf("decodePublish: %v", err)
	}
	if pub.topic != "spBv1.0/g/NDATA/n" || pub.qos != 1 || pub.packetID != 7 || string(pub.payload) != "payload" {
		t.Errorf("round trip mismatch: %+v", pub)
	}
}

func TestSessionMatchesWildcardFilter(t *testing.T) {
	s := &session{}
	s.addFilter("spBv1.0/g/+/n")
	if !s.matches("spBv1.0/g/NDATA/n") {
		t.Error("expected single-level wildcard to match NDATA")
	}
	if s.matches("spBv1.0/g/NDATA/n/dev1") {
		t.Error("single-level wildcard must not match a device topic")
	}
	s.removeFilter("spBv1.0/g/+/n")
	if s.matches("spBv1.0/g/NDATA/n") {
		t.Error("expected no match after removeFilter")
	}
}
