package sparkplug

import (
	"testing"

	"github.com/golang-io/sparkplug/datatype"
	"github.com/golang-io/sparkplug/payload"
)

func TestMessageRoundTripNData(t *testing.T) {
	seq := uint64(3)
	p := &payload.Payload{
		Timestamp: 1000,
		Seq:       &seq,
		Metrics: []*payload.Metric{
			{Name: "m", Timestamp: 1000, Datatype: datatype.UInt8, Value: uint8(42)},
		},
	}
	raw, err := p.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := DecodeMessage("spBv1.0/g/NDATA/n", raw)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.Payload == nil || len(msg.Payload.Metrics) != 1 {
		t.Fatalf("unexpected decoded payload: %+v", msg.Payload)
	}
	if msg.Topic.GroupID != "g" || msg.Topic.EdgeNodeID != "n" {
		t.Errorf("unexpected topic: %+v", msg.Topic)
	}
}

func TestMessageStateRoundTrip(t *testing.T) {
	state := &StatePayload{Online: true, Timestamp: 123}
	raw, err := state.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := DecodeMessage("spBv1.0/STATE/host1", raw)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if msg.State == nil || !msg.State.Online || msg.State.Timestamp != 123 {
		t.Errorf("unexpected state: %+v", msg.State)
	}
	if msg.Topic.HostID != "host1" {
		t.Errorf("unexpected host id: %+v", msg.Topic)
	}
}

func TestMessageInvalidTopic(t *testing.T) {
	_, err := DecodeMessage("not-spb/g/NBIRTH/n", nil)
	if _, ok := err.(*InvalidTopic); !ok {
		t.Fatalf("expected *InvalidTopic, got %T: %v", err, err)
	}
}
