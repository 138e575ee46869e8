package node

import (
	"sync"

	"github.com/golang-io/sparkplug/payload"
)

// Device is the per-device substate of spec.md §4.5/C7: a device id,
// its immutable birth metric set, and the last-known value for every
// birth metric. The EdgeNode owns the registry of Devices and publishes
// on their behalf using the node's shared sequence counter.
type Device struct {
	id    string
	birth []*payload.Metric

	mu         sync.RWMutex
	lastValues map[string]*payload.Metric
}

// NewDevice constructs a Device with its immutable birth metric set.
// Registering it with an EdgeNode (via EdgeNode.Register) triggers the
// DBIRTH publish if the node is already connected.
func NewDevice(id string, birth []*payload.Metric) *Device {
	d := &Device{id: id, birth: birth, lastValues: make(map[string]*payload.Metric, len(birth))}
	for _, m := range birth {
		d.lastValues[m.Name] = m
	}
	return d
}

// ID returns the device's identifier.
func (d *Device) ID() string { return d.id }

// BirthMetrics returns the device's immutable birth metric set.
func (d *Device) BirthMetrics() []*payload.Metric { return d.birth }

func (d *Device) hasMetric(name string) bool {
	for _, m := range d.birth {
		if m.Name == name {
			return true
		}
	}
	return false
}

func (d *Device) recordValues(metrics []*payload.Metric) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range metrics {
		d.lastValues[m.Name] = m
	}
}

// LastValues returns a snapshot of the device's most recently published
// metric values, keyed by metric name.
func (d *Device) LastValues() map[string]*payload.Metric {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]*payload.Metric, len(d.lastValues))
	for k, v := range d.lastValues {
		out[k] = v
	}
	return out
}
