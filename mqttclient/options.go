// Package mqttclient is the thin typed facade over an external MQTT
// client (spec.md §4.4, C5): connect/disconnect/publish/subscribe with
// will-message support and snapshot-under-lock subscription replay on
// reconnect. Publish does not apply the QoS/retain defaults Sparkplug
// mandates; it sends the qos/retain it is given (those defaults live in
// sparkplug.PublishQoS and sparkplug.PublishRetain). The
// transport itself — TLS, WebSockets, reconnect backoff — is a provided
// capability (spec.md §1); this package wraps
// github.com/eclipse/paho.mqtt.golang rather than reimplementing MQTT
// wire framing.
package mqttclient

import (
	"crypto/tls"
	"net/http"
	"time"
)

// Protocol selects the MQTT protocol level, per spec.md §4.4/§6.
type Protocol int

const (
	ProtocolV311 Protocol = iota
	ProtocolV31
)

// Transport selects the underlying connection kind.
type Transport int

const (
	TransportTCP Transport = iota
	TransportWebsocket
)

// CertRequirement mirrors Python ssl's cert_reqs knob named in spec.md §6.
type CertRequirement int

const (
	CertNone CertRequirement = iota
	CertOptional
	CertRequired
)

// TLSConfig configures the TLS transport, per spec.md §6.
type TLSConfig struct {
	CACerts         string // PEM bundle path
	CertFile        string
	KeyFile         string
	KeyFilePassword string
	CertReqs        CertRequirement
	TLSVersion      uint16 // e.g. tls.VersionTLS12; zero means the crypto/tls default
	Ciphers         []uint16
}

// WSConfig configures the websocket transport, per spec.md §6.
type WSConfig struct {
	Path    string
	Headers http.Header
}

// Will is the MQTT LWT: the message the broker publishes if this client
// disconnects ungracefully. Set once per session via the Will option and
// never changed thereafter, per spec.md §4.4.
type Will struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Options configures a Client, per spec.md §4.4/§6. Built via the
// functional-options pattern, matching the donor's client construction
// idiom (its options.go Option/Options shape, with a new field set).
type Options struct {
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	Protocol       Protocol
	Transport      Transport
	TLS            *TLSConfig
	WS             *WSConfig
	Will           *Will
	ConnectTimeout time.Duration
	AutoReconnect  bool
}

// Option mutates Options; see mqttclient.New.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		KeepAlive:      60 * time.Second,
		Protocol:       ProtocolV311,
		Transport:      TransportTCP,
		ConnectTimeout: 30 * time.Second,
		AutoReconnect:  true,
	}
}

// ClientID sets the required MQTT client identifier.
func ClientID(id string) Option {
	return func(o *Options) { o.ClientID = id }
}

// Credentials sets the username/password used on CONNECT.
func Credentials(username, password string) Option {
	return func(o *Options) { o.Username = username; o.Password = password }
}

// KeepAlive sets the MQTT keepalive interval.
func KeepAlive(d time.Duration) Option {
	return func(o *Options) { o.KeepAlive = d }
}

// WithProtocol selects MQTT v3.1 or v3.1.1.
func WithProtocol(p Protocol) Option {
	return func(o *Options) { o.Protocol = p }
}

// WithTLS configures the TCP+TLS transport.
func WithTLS(cfg TLSConfig) Option {
	return func(o *Options) {
		o.Transport = TransportTCP
		o.TLS = &cfg
	}
}

// WithWebsocket records cfg and sets Transport to TransportWebsocket.
// Client.Connect applies only cfg.Headers: it does not consult Transport
// or cfg.Path, so the websocket connection is selected by the broker URL
// itself (e.g. "ws://host:1883/mqtt").
func WithWebsocket(cfg WSConfig) Option {
	return func(o *Options) {
		o.Transport = TransportWebsocket
		o.WS = &cfg
	}
}

// WithWill arms the MQTT LWT published by the broker on an ungraceful
// disconnect. Must be set before Connect; spec.md §4.4 forbids changing
// it thereafter, so Client.Connect treats the will captured in Options
// as immutable for the session's lifetime.
func WithWill(w Will) Option {
	return func(o *Options) { o.Will = &w }
}

// ConnectTimeout bounds how long Connect waits for a CONNACK.
func ConnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectTimeout = d }
}

// AutoReconnect toggles the underlying transport's reconnect behavior.
// The Sparkplug birth/rebirth cycle is the retry strategy on top of
// this (spec.md §7); disable it only for tests that need deterministic
// single-shot connects.
func AutoReconnect(on bool) Option {
	return func(o *Options) { o.AutoReconnect = on }
}

// buildTLSConfig turns a TLSConfig into a *tls.Config for paho's
// ClientOptions.SetTLSConfig. Certificate/key loading is left to the
// caller's crypto/tls and x509 setup in a real deployment; this helper
// only carries the declarative knobs spec.md §6 names (min version,
// cipher suites, verify mode) since loading files synchronously inside
// an Option would make Option construction fallible, which the donor's
// own functional-options pattern avoids.
func buildTLSConfig(cfg *TLSConfig) *tls.Config {
	if cfg == nil {
		return nil
	}
	tc := &tls.Config{
		MinVersion:         cfg.TLSVersion,
		CipherSuites:       cfg.Ciphers,
		InsecureSkipVerify: cfg.CertReqs == CertNone,
	}
	return tc
}
