package mqttclient

import "github.com/prometheus/client_golang/prometheus"

// Stat is the Sparkplug-facing counterpart of the donor's package-level
// prometheus Stat (stat.go): Sparkplug traffic counters instead of raw
// MQTT packet counts, scoped per Client rather than one shared global
// so a process running multiple EdgeNodes gets independent series.
type Stat struct {
	Connects          prometheus.Counter
	ConnectionsLost   prometheus.Counter
	Reconnects        prometheus.Counter
	MessagesPublished prometheus.Counter
	BytesPublished    prometheus.Counter
	PublishErrors     prometheus.Counter
	SubscribeErrors   prometheus.Counter
}

func newStat() *Stat {
	return &Stat{
		Connects:          prometheus.NewCounter(prometheus.CounterOpts{Name: "sparkplug_mqtt_connects_total", Help: "CONNECT attempts that received a CONNACK"}),
		ConnectionsLost:   prometheus.NewCounter(prometheus.CounterOpts{Name: "sparkplug_mqtt_connections_lost_total", Help: "Connection-lost callbacks from the transport"}),
		Reconnects:        prometheus.NewCounter(prometheus.CounterOpts{Name: "sparkplug_mqtt_reconnects_total", Help: "OnConnect callback firings, including the first connect"}),
		MessagesPublished: prometheus.NewCounter(prometheus.CounterOpts{Name: "sparkplug_messages_published_total", Help: "Sparkplug messages published successfully"}),
		BytesPublished:    prometheus.NewCounter(prometheus.CounterOpts{Name: "sparkplug_bytes_published_total", Help: "Payload bytes published"}),
		PublishErrors:     prometheus.NewCounter(prometheus.CounterOpts{Name: "sparkplug_publish_errors_total", Help: "Publish calls that returned an MQTTError"}),
		SubscribeErrors:   prometheus.NewCounter(prometheus.CounterOpts{Name: "sparkplug_subscribe_errors_total", Help: "Subscribe calls that returned an MQTTError"}),
	}
}

// Register adds s's collectors to reg (typically prometheus.DefaultRegisterer).
func (s *Stat) Register(reg prometheus.Registerer) {
	reg.MustRegister(s.Connects, s.ConnectionsLost, s.Reconnects, s.MessagesPublished, s.BytesPublished, s.PublishErrors, s.SubscribeErrors)
}
