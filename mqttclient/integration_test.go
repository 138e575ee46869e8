package mqttclient_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/golang-io/sparkplug/mqttclient"
	"github.com/golang-io/sparkplug/mqttclienttest"
)

// TestPublishSubscribeRoundTrip drives mqttclient.Client against
// mqttclienttest's minimal in-process broker instead of a real one,
// confirming the production transport wiring (paho.mqtt.golang)
// actually interoperates end to end with something that speaks the
// real wire protocol.
func TestPublishSubscribeRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	broker := mqttclienttest.NewBroker()
	go broker.Serve(ln)
	defer ln.Close()

	brokerURL := fmt.Sprintf("tcp://%s", ln.Addr().String())
	client := mqttclient.New(brokerURL, mqttclient.ClientID("it-client"), mqttclient.ConnectTimeout(5*time.Second))

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer connectCancel()
	if err := client.Connect(connectCtx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Disconnect(250)

	received := make(chan []byte, 1)
	if err := client.Subscribe("spBv1.0/g/NDATA/n", 1, func(topic string, payload []byte, _ byte, _ bool) {
		if topic != "spBv1.0/g/NDATA/n" {
			t.Errorf("unexpected topic %q", topic)
		}
		received <- payload
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	want := []byte("hello-sparkplug")
	if err := client.Publish("spBv1.0/g/NDATA/n", 1, false, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(want) {
			t.Errorf("payload = %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published message to be delivered back")
	}
}
