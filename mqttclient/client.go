package mqttclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/golang-io/sparkplug/sparkplug"
)

func timeUntil(deadline time.Time) time.Duration {
	if d := time.Until(deadline); d > 0 {
		return d
	}
	return 0
}

// Handler receives an inbound message for a matched subscription as its
// raw payload bytes; the payload is not decoded here (callers decode it,
// e.g. with sparkplug.DecodeMessage or payload.Decode).
// Invoked from the MQTT library's network thread, per spec.md §4.4/§5;
// the handler owns its own synchronization.
type Handler func(topic string, payload []byte, qos byte, retained bool)

type subscription struct {
	qos     byte
	handler Handler
}

// Client is the typed facade over paho.mqtt.golang's mqtt.Client.
type Client struct {
	opts   Options
	broker string

	mu   sync.RWMutex
	subs map[string]subscription

	cli         paho.Client
	st          *Stat
	lostHandler func(error)
}

// SetConnectionLostHandler registers h to be invoked (from the
// transport's network thread) whenever the session is lost
// ungracefully, i.e. NOT as a result of a Disconnect call. node uses
// this to drive the Offline transition and the bdSeq-incrementing
// reconnect spec.md §4.5 mandates. Must be called before Connect.
func (c *Client) SetConnectionLostHandler(h func(error)) {
	c.lostHandler = h
}

// New constructs a Client for broker (e.g. "tcp://host:1883" or
// "ws://host:1883/mqtt") with opts applied over the defaults.
func New(broker string, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		opts:   o,
		broker: broker,
		subs:   make(map[string]subscription),
		st:     newStat(),
	}
}

// Stat exposes the client's prometheus counters/gauges (spec.md's
// ambient-stack expansion of C5).
func (c *Client) Stat() *Stat { return c.st }

// Connect dials broker and blocks until CONNACK or ctx/ConnectTimeout
// expires. On success the client is ready to Publish/Subscribe; any
// will configured via WithWill has already been armed on the broker as
// part of the CONNECT packet itself, per the MQTT protocol (the will is
// NOT a separate publish — it is carried in the CONNECT flags/payload
// and fires only if the broker later loses this connection
// ungracefully).
func (c *Client) Connect(ctx context.Context) error {
	pahoOpts := paho.NewClientOptions()
	pahoOpts.AddBroker(c.broker)
	pahoOpts.SetClientID(c.opts.ClientID)
	if c.opts.Username != "" {
		pahoOpts.SetUsername(c.opts.Username)
	}
	if c.opts.Password != "" {
		pahoOpts.SetPassword(c.opts.Password)
	}
	pahoOpts.SetKeepAlive(c.opts.KeepAlive)
	pahoOpts.SetConnectTimeout(c.opts.ConnectTimeout)
	pahoOpts.SetAutoReconnect(c.opts.AutoReconnect)
	if c.opts.Protocol == ProtocolV31 {
		pahoOpts.SetProtocolVersion(3)
	} else {
		pahoOpts.SetProtocolVersion(4)
	}
	if c.opts.TLS != nil {
		pahoOpts.SetTLSConfig(buildTLSConfig(c.opts.TLS))
	}
	if c.opts.WS != nil && c.opts.WS.Headers != nil {
		pahoOpts.SetHTTPHeaders(c.opts.WS.Headers)
	}
	if c.opts.Will != nil {
		pahoOpts.SetBinaryWill(c.opts.Will.Topic, c.opts.Will.Payload, c.opts.Will.QoS, c.opts.Will.Retain)
	}
	pahoOpts.SetOnConnectHandler(func(paho.Client) {
		c.st.Reconnects.Inc()
		c.resubscribeAll()
	})
	pahoOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.st.ConnectionsLost.Inc()
		if c.lostHandler != nil {
			c.lostHandler(err)
		}
	})

	c.cli = paho.NewClient(pahoOpts)
	token := c.cli.Connect()
	if deadline, ok := ctx.Deadline(); ok {
		if !token.WaitTimeout(timeUntil(deadline)) {
			return &sparkplug.MQTTError{Code: sparkplug.MQTTErrorTimeout, Cause: fmt.Errorf("connect timed out")}
		}
	} else {
		token.Wait()
	}
	if err := token.Error(); err != nil {
		return &sparkplug.MQTTError{Code: sparkplug.MQTTErrorConnectionRefused, Cause: err}
	}
	c.st.Connects.Inc()
	return nil
}

// Disconnect closes the connection cleanly (no will is fired on a
// graceful disconnect — MQTT only fires the will on an ungraceful
// close). quiesceMillis bounds how long in-flight work is given to
// drain.
func (c *Client) Disconnect(quiesceMillis uint) {
	if c.cli != nil {
		c.cli.Disconnect(quiesceMillis)
	}
}

// IsConnected reports whether the underlying transport session is up.
func (c *Client) IsConnected() bool {
	return c.cli != nil && c.cli.IsConnected()
}

// Publish sends payload on topic at qos/retain. Callers should derive
// qos/retain from sparkplug.PublishQoS/PublishRetain rather than
// hardcoding them, per spec.md §4.6.
func (c *Client) Publish(topic string, qos byte, retain bool, payload []byte) error {
	if c.cli == nil {
		return &sparkplug.MQTTError{Code: sparkplug.MQTTErrorNetwork, Cause: fmt.Errorf("not connected")}
	}
	token := c.cli.Publish(topic, qos, retain, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		c.st.PublishErrors.Inc()
		return &sparkplug.MQTTError{Code: sparkplug.MQTTErrorNetwork, Cause: err}
	}
	c.st.MessagesPublished.Inc()
	c.st.BytesPublished.Add(float64(len(payload)))
	return nil
}

// Subscribe registers handler for filter at qos, dispatching inbound
// messages from the MQTT library's network thread. The subscription is
// recorded under c.mu so a reconnect can replay it (resubscribeAll).
func (c *Client) Subscribe(filter string, qos byte, handler Handler) error {
	c.mu.Lock()
	c.subs[filter] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if c.cli == nil {
		return nil // recorded; will be subscribed on Connect's first OnConnect
	}
	if err := c.subscribeOne(filter, qos, handler); err != nil {
		c.st.SubscribeErrors.Inc()
		return err
	}
	return nil
}

func (c *Client) subscribeOne(filter string, qos byte, handler Handler) error {
	token := c.cli.Subscribe(filter, qos, func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload(), m.Qos(), m.Retained())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return &sparkplug.MQTTError{Code: sparkplug.MQTTErrorNetwork, Cause: err}
	}
	return nil
}

// Unsubscribe removes a previously-registered filter.
func (c *Client) Unsubscribe(filter string) error {
	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	if c.cli == nil {
		return nil
	}
	token := c.cli.Unsubscribe(filter)
	token.Wait()
	if err := token.Error(); err != nil {
		return &sparkplug.MQTTError{Code: sparkplug.MQTTErrorNetwork, Cause: err}
	}
	return nil
}

// resubscribeAll replays every recorded subscription after a reconnect.
// It MUST iterate a snapshot taken under the lock rather than the live
// map, because a user goroutine calling Subscribe/Unsubscribe can race
// this handler — the exact subscription-map iteration bug spec.md §9
// names and the donor's mem_topic.go fix pattern this adapts
// (snapshot-then-iterate, never iterate-while-locked-by-writer).
func (c *Client) resubscribeAll() {
	c.mu.RLock()
	snapshot := make([]struct {
		filter string
		sub    subscription
	}, 0, len(c.subs))
	for filter, sub := range c.subs {
		snapshot = append(snapshot, struct {
			filter string
			sub    subscription
		}{filter, sub})
	}
	c.mu.RUnlock()

	for _, entry := range snapshot {
		if err := c.subscribeOne(entry.filter, entry.sub.qos, entry.sub.handler); err != nil {
			c.st.SubscribeErrors.Inc()
		}
	}
}
