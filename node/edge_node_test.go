package node

import (
	"context"
	"testing"
	"time"

	"github.com/golang-io/sparkplug/datatype"
	"github.com/golang-io/sparkplug/mqttclient"
	"github.com/golang-io/sparkplug/payload"
)

func withFake(n *EdgeNode) *fakeTransport {
	fake := newFakeTransport()
	n.newClient = func(broker string, opts ...mqttclient.Option) transport { return fake }
	return fake
}

func lastNBirth(t *testing.T, fake *fakeTransport) (*payload.Payload, publishedMessage) {
	t.Helper()
	pubs := fake.snapshot()
	for i := len(pubs) - 1; i >= 0; i-- {
		if pubs[i].topic == "spBv1.0/g/NBIRTH/n" {
			p, err := payload.Decode(pubs[i].payload)
			if err != nil {
				t.Fatalf("decode NBIRTH: %v", err)
			}
			return p, pubs[i]
		}
	}
	t.Fatal("no NBIRTH publish found")
	return nil, publishedMessage{}
}

// Scenario 1 (spec.md §8): birth+data+death happy path.
func TestBirthDataDeathHappyPath(t *testing.T) {
	n := New("g", "n", []*payload.Metric{
		{Name: "m", Timestamp: 1, Datatype: datatype.UInt8, Value: uint8(42)},
	})
	fake := withFake(n)

	if err := n.Connect(context.Background(), "tcp://broker", time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}
	pubs := fake.snapshot()
	if len(pubs) != 1 {
		t.Fatalf("expected 1 publish after connect, got %d: %+v", len(pubs), pubs)
	}
	if pubs[0].topic != "spBv1.0/g/NBIRTH/n" {
		t.Errorf("topic = %q, want spBv1.0/g/NBIRTH/n", pubs[0].topic)
	}
	if pubs[0].qos != 1 || pubs[0].retain {
		t.Errorf("NBIRTH qos=%d retain=%v, want qos=1 retain=false", pubs[0].qos, pubs[0].retain)
	}
	nbirth, err := payload.Decode(pubs[0].payload)
	if err != nil {
		t.Fatalf("decode NBIRTH: %v", err)
	}
	if nbirth.Seq == nil || *nbirth.Seq != 0 {
		t.Errorf("NBIRTH seq = %v, want 0", nbirth.Seq)
	}
	if len(nbirth.Metrics) != 2 || nbirth.Metrics[0].Name != "bdSeq" || nbirth.Metrics[1].Name != "m" {
		t.Fatalf("unexpected NBIRTH metrics: %+v", nbirth.Metrics)
	}
	if v, ok := nbirth.Metrics[0].Value.(uint64); !ok || v != 0 {
		t.Errorf("bdSeq = %v, want 0", nbirth.Metrics[0].Value)
	}

	if err := n.Update([]*payload.Metric{{Name: "m", Timestamp: 2, Datatype: datatype.UInt8, Value: uint8(7)}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	pubs = fake.snapshot()
	if len(pubs) != 2 {
		t.Fatalf("expected 2 publishes after update, got %d", len(pubs))
	}
	if pubs[1].topic != "spBv1.0/g/NDATA/n" {
		t.Errorf("topic = %q, want spBv1.0/g/NDATA/n", pubs[1].topic)
	}
	ndata, err := payload.Decode(pubs[1].payload)
	if err != nil {
		t.Fatalf("decode NDATA: %v", err)
	}
	if ndata.Seq == nil || *ndata.Seq != 1 {
		t.Errorf("NDATA seq = %v, want 1", ndata.Seq)
	}
	if len(ndata.Metrics) != 1 || ndata.Metrics[0].Name != "m" {
		t.Fatalf("unexpected NDATA metrics: %+v", ndata.Metrics)
	}

	if err := n.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	pubs = fake.snapshot()
	if len(pubs) != 3 {
		t.Fatalf("expected 3 publishes after disconnect, got %d", len(pubs))
	}
	if pubs[2].topic != "spBv1.0/g/NDEATH/n" {
		t.Errorf("topic = %q, want spBv1.0/g/NDEATH/n", pubs[2].topic)
	}
	ndeath, err := payload.Decode(pubs[2].payload)
	if err != nil {
		t.Fatalf("decode NDEATH: %v", err)
	}
	if len(ndeath.Metrics) != 1 || ndeath.Metrics[0].Name != "bdSeq" {
		t.Fatalf("unexpected NDEATH metrics: %+v", ndeath.Metrics)
	}
	if v, ok := ndeath.Metrics[0].Value.(uint64); !ok || v != 0 {
		t.Errorf("NDEATH bdSeq = %v, want 0", ndeath.Metrics[0].Value)
	}
}

// Scenario 2 (spec.md §8): DDATA publishes on the device's own topic,
// never the node's.
func TestDeviceDataUsesDeviceTopic(t *testing.T) {
	n := New("g", "n", nil)
	fake := withFake(n)
	if err := n.Connect(context.Background(), "tcp://broker", time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}

	dev := NewDevice("dev1", []*payload.Metric{{Name: "x", Timestamp: 1, Datatype: datatype.Int16, Value: int16(-3)}})
	if err := n.Register(dev); err != nil {
		t.Fatalf("register: %v", err)
	}
	pubs := fake.snapshot()
	last := pubs[len(pubs)-1]
	if last.topic != "spBv1.0/g/DBIRTH/n/dev1" {
		t.Fatalf("DBIRTH topic = %q, want spBv1.0/g/DBIRTH/n/dev1", last.topic)
	}

	if err := n.UpdateDevice("dev1", []*payload.Metric{{Name: "x", Timestamp: 2, Datatype: datatype.Int16, Value: int16(-4)}}); err != nil {
		t.Fatalf("update_device: %v", err)
	}
	pubs = fake.snapshot()
	last = pubs[len(pubs)-1]
	if last.topic != "spBv1.0/g/DDATA/n/dev1" {
		t.Fatalf("DDATA topic = %q, want spBv1.0/g/DDATA/n/dev1 (not .../n/n)", last.topic)
	}
}

// Scenario 3 (spec.md §8): reconnecting increments bdSeq.
func TestReconnectIncrementsBdSeq(t *testing.T) {
	n := New("g", "n", nil)
	fake := withFake(n)

	if err := n.Connect(context.Background(), "tcp://broker", time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}
	first, _ := lastNBirth(t, fake)
	firstBdSeq := first.Metrics[0].Value.(uint64)

	if err := n.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := n.Connect(context.Background(), "tcp://broker", time.Second); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	second, _ := lastNBirth(t, fake)
	secondBdSeq := second.Metrics[0].Value.(uint64)

	if secondBdSeq != firstBdSeq+1 {
		t.Errorf("bdSeq second=%d first=%d, want second = first+1", secondBdSeq, firstBdSeq)
	}
}

// Scenario 4 (spec.md §8): NCMD Node Control/Rebirth triggers a fresh
// NBIRTH+DBIRTH without touching bdSeq or the MQTT session.
func TestRebirthOnNCMD(t *testing.T) {
	n := New("g", "n", []*payload.Metric{{Name: "m", Timestamp: 1, Datatype: datatype.UInt8, Value: uint8(1)}})
	fake := withFake(n)
	if err := n.Connect(context.Background(), "tcp://broker", time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}
	dev := NewDevice("dev1", []*payload.Metric{{Name: "x", Timestamp: 1, Datatype: datatype.Int16, Value: int16(1)}})
	if err := n.Register(dev); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := n.Update([]*payload.Metric{{Name: "m", Timestamp: 2, Datatype: datatype.UInt8, Value: uint8(2)}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	beforeBdSeq := n.Snapshot().BdSeq

	ncmd := &payload.Payload{Timestamp: 3, Metrics: []*payload.Metric{payload.RebirthMetric(true, 3)}}
	raw, err := ncmd.Encode()
	if err != nil {
		t.Fatalf("encode NCMD: %v", err)
	}
	fake.deliver("spBv1.0/g/NCMD/n", raw)

	pubs := fake.snapshot()
	if len(pubs) < 2 {
		t.Fatalf("expected at least 2 publishes after rebirth, got %d", len(pubs))
	}
	tail := pubs[len(pubs)-2:]
	if tail[0].topic != "spBv1.0/g/NBIRTH/n" || tail[1].topic != "spBv1.0/g/DBIRTH/n/dev1" {
		t.Fatalf("expected fresh NBIRTH then DBIRTH after rebirth, got %+v", tail)
	}
	p, err := payload.Decode(tail[0].payload)
	if err != nil {
		t.Fatalf("decode rebirth NBIRTH: %v", err)
	}
	if p.Seq == nil || *p.Seq != 0 {
		t.Errorf("rebirth NBIRTH seq = %v, want 0", p.Seq)
	}
	if n.Snapshot().BdSeq != beforeBdSeq {
		t.Errorf("bdSeq changed on rebirth: before=%d after=%d", beforeBdSeq, n.Snapshot().BdSeq)
	}
}

// NotInBirthSet and InvalidState error paths (spec.md §7/§8).
func TestUpdateRejectsUnknownMetric(t *testing.T) {
	n := New("g", "n", []*payload.Metric{{Name: "m", Datatype: datatype.UInt8, Value: uint8(1)}})
	_ = withFake(n)
	if err := n.Connect(context.Background(), "tcp://broker", time.Second); err != nil {
		t.Fatalf("connect: %v", err)
	}
	err := n.Update([]*payload.Metric{{Name: "unknown", Datatype: datatype.UInt8, Value: uint8(1)}})
	if _, ok := err.(interface{ Error() string }); !ok || err == nil {
		t.Fatalf("expected an error for unknown metric, got %v", err)
	}
}

func TestUpdateRejectsWhenOffline(t *testing.T) {
	n := New("g", "n", []*payload.Metric{{Name: "m", Datatype: datatype.UInt8, Value: uint8(1)}})
	_ = withFake(n)
	err := n.Update([]*payload.Metric{{Name: "m", Datatype: datatype.UInt8, Value: uint8(2)}})
	if err == nil {
		t.Fatal("expected InvalidState error when updating an offline node")
	}
}
