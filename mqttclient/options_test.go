package mqttclient

import (
	"crypto/tls"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.Protocol != ProtocolV311 {
		t.Errorf("default protocol = %v, want v3.1.1", o.Protocol)
	}
	if o.Transport != TransportTCP {
		t.Errorf("default transport = %v, want TCP", o.Transport)
	}
	if o.KeepAlive != 60*time.Second {
		t.Errorf("default keepalive = %v", o.KeepAlive)
	}
	if !o.AutoReconnect {
		t.Errorf("default AutoReconnect = false, want true")
	}
}

func TestOptionsApply(t *testing.T) {
	o := defaultOptions()
	for _, opt := range []Option{
		ClientID("edge-1"),
		Credentials("user", "pass"),
		KeepAlive(10 * time.Second),
		WithProtocol(ProtocolV31),
		WithWill(Will{Topic: "spBv1.0/g/NDEATH/n", Payload: []byte{1, 2}, QoS: 1}),
		ConnectTimeout(5 * time.Second),
		AutoReconnect(false),
	} {
		opt(&o)
	}
	if o.ClientID != "edge-1" || o.Username != "user" || o.Password != "pass" {
		t.Errorf("credentials not applied: %+v", o)
	}
	if o.KeepAlive != 10*time.Second {
		t.Errorf("keepalive not applied")
	}
	if o.Protocol != ProtocolV31 {
		t.Errorf("protocol not applied")
	}
	if o.Will == nil || o.Will.Topic != "spBv1.0/g/NDEATH/n" {
		t.Fatalf("will not applied: %+v", o.Will)
	}
	if o.ConnectTimeout != 5*time.Second {
		t.Errorf("connect timeout not applied")
	}
	if o.AutoReconnect {
		t.Errorf("autoreconnect not disabled")
	}
}

func TestWithTLSSetsTransportAndConfig(t *testing.T) {
	o := defaultOptions()
	WithTLS(TLSConfig{CertReqs: CertNone, TLSVersion: tls.VersionTLS12})(&o)
	if o.Transport != TransportTCP {
		t.Errorf("WithTLS should keep TCP transport")
	}
	if o.TLS == nil || o.TLS.TLSVersion != tls.VersionTLS12 {
		t.Fatalf("TLS config not applied: %+v", o.TLS)
	}
	cfg := buildTLSConfig(o.TLS)
	if !cfg.InsecureSkipVerify {
		t.Errorf("CertNone should map to InsecureSkipVerify=true")
	}
}

func TestWithWebsocketSetsTransport(t *testing.T) {
	o := defaultOptions()
	WithWebsocket(WSConfig{Path: "/mqtt"})(&o)
	if o.Transport != TransportWebsocket {
		t.Errorf("transport = %v, want websocket", o.Transport)
	}
	if o.WS == nil || o.WS.Path != "/mqtt" {
		t.Fatalf("ws config not applied: %+v", o.WS)
	}
}
