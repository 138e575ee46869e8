package mqttclienttest

import (
	"io"
	"log"
	"net"
	"sync"

	"github.com/golang-io/sparkplug/sptopic"
)

// session is one connected client: its subscription filters and its
// will, armed at CONNECT and fired if the connection drops without a
// DISCONNECT. Guarded by its own mutex so a publish fanout goroutine
// and the session's own read loop never race a single write.
type session struct {
	mu      sync.Mutex
	conn    net.Conn
	closed  bool
	filters []string

	willSet     bool
	willTopic   string
	willPayload []byte
	willQoS     byte
	willRetain  bool
}

func (s *session) write(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	_, err := s.conn.Write(b)
	return err
}

func (s *session) addFilter(filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = append(s.filters, filter)
}

func (s *session) removeFilter(filter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.filters[:0]
	for _, f := range s.filters {
		if f != filter {
			out = append(out, f)
		}
	}
	s.filters = out
}

func (s *session) matches(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.filters {
		if sptopic.Matches(f, topic) {
			return true
		}
	}
	return false
}

// Broker is a minimal MQTT 3.1.1 broker: CONNECT/CONNACK, PUBLISH at
// QoS 0/1, SUBSCRIBE/UNSUBSCRIBE with wildcard filters (reusing
// sptopic.Matches rather than a general-purpose trie, since the only
// topics this broker ever routes are Sparkplug's), and will delivery on
// an ungraceful disconnect. It exists solely so mqttclient's
// integration test can drive a real paho.mqtt.golang client against a
// real (if tiny) wire-protocol server instead of only the in-process
// fake node's tests already use.
type Broker struct {
	mu       sync.Mutex
	sessions map[*session]struct{}
}

// NewBroker constructs an empty Broker.
func NewBroker() *Broker {
	return &Broker{sessions: make(map[*session]struct{})}
}

// Serve accepts connections on ln until it's closed, handling each on
// its own goroutine. It returns the Accept error (typically
// "use of closed network connection" once the caller closes ln).
func (b *Broker) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go b.handle(conn)
	}
}

func (b *Broker) register(s *session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[s] = struct{}{}
}

func (b *Broker) unregister(s *session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, s)
}

// publish fans content out to every session with a matching filter.
// Sessions are snapshotted under the lock before writing, the same
// discipline spec.md §9 requires of a real subscriber-map publish path
// (build/copy under the lock, iterate and do I/O outside it).
func (b *Broker) publish(topic string, qos byte, retain bool, payload []byte) {
	b.mu.Lock()
	snapshot := make([]*session, 0, len(b.sessions))
	for s := range b.sessions {
		snapshot = append(snapshot, s)
	}
	b.mu.Unlock()

	for _, s := range snapshot {
		if !s.matches(topic) {
			continue
		}
		if err := s.write(encodePublish(topic, qos, retain, 1, payload)); err != nil {
			log.Printf("mqttclienttest: publish to subscriber: %v", err)
		}
	}
}

func (b *Broker) handle(conn net.Conn) {
	s := &session{conn: conn}
	defer func() {
		b.unregister(s)
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = conn.Close()
		if s.willSet {
			b.publish(s.willTopic, s.willQoS, s.willRetain, s.willPayload)
		}
	}()

	first, err := readPacket(conn)
	if err != nil || first.kind != typeCONNECT {
		return
	}
	connect, err := decodeConnect(first.body)
	if err != nil {
		return
	}
	if connect.willFlag {
		s.willSet = true
		s.willTopic = connect.willTopic
		s.willPayload = connect.willPayload
		s.willQoS = connect.willQoS
		s.willRetain = connect.willRetain
	}
	b.register(s)
	if err := s.write(encodeConnack()); err != nil {
		return
	}

	for {
		pkt, err := readPacket(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("mqttclienttest: read: %v", err)
			}
			return
		}
		switch pkt.kind {
		case typePUBLISH:
			pub, err := decodePublish(pkt.flags, pkt.body)
			if err != nil {
				return
			}
			b.publish(pub.topic, pub.qos, pub.retain, pub.payload)
			if pub.qos == 1 {
				if err := s.write(encodePuback(pub.packetID)); err != nil {
					return
				}
			}
		case typeSUBSCRIBE:
			packetID, filters, requested, err := decodeSubscribe(pkt.body)
			if err != nil {
				return
			}
			granted := make([]byte, len(filters))
			for i, f := range filters {
				s.addFilter(f)
				granted[i] = requested[i]
			}
			if err := s.write(encodeSuback(packetID, granted)); err != nil {
				return
			}
		case typeUNSUBSCRIBE:
			packetID, filters, err := decodeUnsubscribe(pkt.body)
			if err != nil {
				return
			}
			for _, f := range filters {
				s.removeFilter(f)
			}
			if err := s.write(encodeUnsuback(packetID)); err != nil {
				return
			}
		case typePUBACK:
			// a subscriber acknowledging a QoS 1 delivery; nothing is
			// kept for redelivery, so there is nothing to clear
		case typePINGREQ:
			if err := s.write(encodePingresp()); err != nil {
				return
			}
		case typeDISCONNECT:
			s.willSet = false
			return
		default:
			return
		}
	}
}
