// Command sparkplug-monitor is a primary-host-style subscriber: it
// subscribes to every Sparkplug topic matching a filter, decodes and
// logs what it sees, and exposes a debug HTTP surface (/metrics,
// /state, /publish, pprof) grounded on the donor's Httpd/federated.go
// pattern built on github.com/golang-io/requests.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/golang-io/requests"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/golang-io/sparkplug/mqttclient"
	"github.com/golang-io/sparkplug/sparkplug"
	"github.com/golang-io/sparkplug/sptopic"
)

// Config is the monitor's process-level wiring surface, mirroring
// cmd/sparkplug-edge's Config shape (SPEC_FULL.md's ambient config
// expansion).
type Config struct {
	Broker  string `json:"broker"`
	Filter  string `json:"filter"`
	HostID  string `json:"host_id"`
	HTTPURL string `json:"http_url"`
}

func loadConfig(path string) (Config, error) {
	cfg := Config{
		Broker:  "tcp://127.0.0.1:1883",
		Filter:  sptopic.Namespace + "/" + sptopic.MultiLevelWildcard,
		HostID:  "sparkplug-monitor",
		HTTPURL: "127.0.0.1:9333",
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// registry keeps the last decoded message per topic for the debug
// /state endpoint, guarded the same snapshot-under-lock way
// node.fakeTransport records publishes.
type registry struct {
	mu   sync.Mutex
	last map[string]*sparkplug.Message
}

func newRegistry() *registry {
	return &registry{last: make(map[string]*sparkplug.Message)}
}

func (r *registry) record(topic string, m *sparkplug.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[topic] = m
}

func (r *registry) snapshot() map[string]*sparkplug.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*sparkplug.Message, len(r.last))
	for k, v := range r.last {
		out[k] = v
	}
	return out
}

var decodeErrors = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "sparkplug_monitor_decode_errors_total",
	Help: "Inbound messages that failed sparkplug.DecodeMessage",
})
var messagesSeen = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "sparkplug_monitor_messages_total",
	Help: "Inbound messages by message type",
}, []string{"message_type"})

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	configPath := flag.String("config", "./config/monitor.json", "Path to config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	prometheus.MustRegister(decodeErrors, messagesSeen)

	reg := newRegistry()
	client := mqttclient.New(cfg.Broker, mqttclient.ClientID(cfg.HostID))
	client.Stat().Register(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := client.Connect(ctx); err != nil {
			return err
		}
		return client.Subscribe(cfg.Filter, 1, func(topic string, raw []byte, _ byte, _ bool) {
			m, err := sparkplug.DecodeMessage(topic, raw)
			if err != nil {
				decodeErrors.Inc()
				log.Printf("[sparkplug-monitor] decode %s: %v", topic, err)
				return
			}
			messagesSeen.WithLabelValues(string(m.Topic.MessageType)).Inc()
			reg.record(topic, m)
			log.Printf("[sparkplug-monitor] %s", topic)
		})
	})

	group.Go(func() error {
		return serveHTTP(ctx, cfg, client, reg)
	})

	group.Go(func() error {
		defer cancel()
		sign := make(chan os.Signal, 1)
		signal.Notify(sign, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-sign:
			return fmt.Errorf("got signal: %s", sig)
		}
	})

	if err := group.Wait(); err != nil {
		log.Printf("shutting down: %v", err)
	}
	client.Disconnect(250)
}

// publishRequest is the debug /publish endpoint's JSON body: a raw
// topic/payload pair an operator can use to inject NCMD/DCMD traffic
// without a full client, grounded on the donor's federated.go /send
// endpoint shape.
type publishRequest struct {
	Topic      string `json:"topic"`
	PayloadB64 string `json:"payload_base64"`
	QoS        byte   `json:"qos"`
	Retain     bool   `json:"retain"`
}

func serveHTTP(ctx context.Context, cfg Config, client *mqttclient.Client, reg *registry) error {
	mux := requests.NewServeMux(requests.URL(cfg.HTTPURL))
	mux.Route("/metrics", promhttp.Handler())

	mux.Route("/state", func(w http.ResponseWriter, r *http.Request) {
		out := make(map[string]any, 16)
		for topic, m := range reg.snapshot() {
			if m.State != nil {
				out[topic] = m.State
				continue
			}
			out[topic] = m.Payload
		}
		b, err := json.Marshal(out)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(b)
	})

	mux.Route("/publish", func(w http.ResponseWriter, r *http.Request) {
		buf, err := requests.ParseBody(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var req publishRequest
		if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload, err := base64.StdEncoding.DecodeString(req.PayloadB64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := client.Publish(req.Topic, req.QoS, req.Retain, payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("X-Correlation-Id", requests.GenId())
		_, _ = w.Write([]byte(`{"status":"published"}`))
	})

	mux.Pprof()
	s := requests.NewServer(ctx, mux, requests.OnStart(func(s *http.Server) {
		log.Printf("[sparkplug-monitor] http serve: %s", s.Addr)
	}))
	return s.ListenAndServe()
}
