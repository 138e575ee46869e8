package node

import (
	"context"
	"sync"

	"github.com/golang-io/sparkplug/mqttclient"
	"github.com/golang-io/sparkplug/sptopic"
)

// fakeTransport is the in-process publish recorder the lifecycle
// scenario tests drive the state machine against, adapted from the
// donor's mem_topic.go snapshot-under-lock fake so these tests never
// need a live broker (SPEC_FULL.md's test-tooling expansion).
type fakeTransport struct {
	mu          sync.Mutex
	connected   bool
	published   []publishedMessage
	subs        map[string]mqttclient.Handler
	lostHandler func(error)
	connectErr  error
}

type publishedMessage struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string]mqttclient.Handler)}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect(quiesceMillis uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeTransport) Publish(topic string, qos byte, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), payload...)
	f.published = append(f.published, publishedMessage{topic: topic, qos: qos, retain: retain, payload: cp})
	return nil
}

func (f *fakeTransport) Subscribe(filter string, qos byte, handler mqttclient.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[filter] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(filter string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, filter)
	return nil
}

func (f *fakeTransport) SetConnectionLostHandler(h func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lostHandler = h
}

// snapshot copies the published list under the lock, mirroring the
// snapshot-before-iterate discipline spec.md §9 mandates for real
// subscription maps.
func (f *fakeTransport) snapshot() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.published))
	copy(out, f.published)
	return out
}

// deliver simulates an inbound message arriving on the network thread,
// dispatching to whichever subscribed filter matches topic.
func (f *fakeTransport) deliver(topic string, raw []byte) {
	f.mu.Lock()
	var h mqttclient.Handler
	for filter, handler := range f.subs {
		if sptopic.Matches(filter, topic) {
			h = handler
			break
		}
	}
	f.mu.Unlock()
	if h != nil {
		h(topic, raw, 0, false)
	}
}
