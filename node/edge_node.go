// Package node implements the Sparkplug edge-node session state machine
// (spec.md §4.5, C6) and the device registry it owns (§4.5, C7):
// Offline/Connecting/Online/Disconnecting transitions, the shared
// bdSeq/seq discipline, will-message arming, and NCMD-driven rebirth.
package node

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/golang-io/sparkplug/mqttclient"
	"github.com/golang-io/sparkplug/payload"
	"github.com/golang-io/sparkplug/sparkplug"
	"github.com/golang-io/sparkplug/sptopic"
)

// transport is the seam EdgeNode drives instead of *mqttclient.Client
// directly, so lifecycle-scenario tests can swap in an in-process
// publish recorder instead of a live broker (SPEC_FULL.md's ambient
// test-tooling expansion, adapted from the donor's mem_topic.go
// snapshot-under-lock fake). *mqttclient.Client satisfies this.
type transport interface {
	Connect(ctx context.Context) error
	Disconnect(quiesceMillis uint)
	Publish(topic string, qos byte, retain bool, payload []byte) error
	Subscribe(filter string, qos byte, handler mqttclient.Handler) error
	Unsubscribe(filter string) error
	SetConnectionLostHandler(h func(error))
}

func newRealClient(broker string, opts ...mqttclient.Option) transport {
	return mqttclient.New(broker, opts...)
}

// EdgeNode is the session-state handle spec.md §6 names:
// EdgeNode(group_id, edge_node_id, birth_metrics, client_options?).
//
// Grounded on the donor's conn.go will-message lifecycle (willTopic/
// willPayload captured at CONNECT, published on every disconnect path)
// and mem_topic.go's build-under-lock/iterate-over-snapshot discipline,
// adapted here to "build the payload under n.mu, publish outside it"
// per spec.md §5.
type EdgeNode struct {
	groupID    string
	edgeNodeID string
	clientOpts []mqttclient.Option
	newClient  func(broker string, opts ...mqttclient.Option) transport

	mu             sync.Mutex
	state          NodeState
	bdSeq          uint64
	connectCount   int
	seq            uint8
	birthMetrics   []*payload.Metric
	lastValues     map[string]*payload.Metric
	devices        map[string]*Device
	client         transport
	broker         string
	connectTimeout time.Duration
}

// New constructs an offline EdgeNode. birthMetrics is the node's
// immutable per-session birth set (spec.md §3); opts configure the
// underlying mqttclient.Client built fresh on every Connect.
func New(groupID, edgeNodeID string, birthMetrics []*payload.Metric, opts ...mqttclient.Option) *EdgeNode {
	n := &EdgeNode{
		groupID:      groupID,
		edgeNodeID:   edgeNodeID,
		clientOpts:   opts,
		newClient:    newRealClient,
		birthMetrics: birthMetrics,
		lastValues:   make(map[string]*payload.Metric, len(birthMetrics)),
		devices:      make(map[string]*Device),
	}
	for _, m := range birthMetrics {
		n.lastValues[m.Name] = m
	}
	return n
}

func (n *EdgeNode) setState(s NodeState) {
	old := n.state
	n.state = s
	log.Printf("[sparkplug] n=%s/%s state %s->%s", n.groupID, n.edgeNodeID, old, s)
}

// State reports the node's current lifecycle state.
func (n *EdgeNode) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Devices returns the currently registered device ids, sorted.
func (n *EdgeNode) Devices() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return deviceIDs(n.devices)
}

func deviceIDs(devices map[string]*Device) []string {
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot is a read-only view of the node's session state, for callers
// that need it without reaching into lock-protected internals, grounded
// on the donor's Stat()-style read-only accessor idiom (its stat.go).
type Snapshot struct {
	GroupID    string
	EdgeNodeID string
	State      NodeState
	BdSeq      uint64
	Seq        uint8
	Devices    []string
}

// Snapshot returns a point-in-time copy of the node's session state.
func (n *EdgeNode) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Snapshot{
		GroupID:    n.groupID,
		EdgeNodeID: n.edgeNodeID,
		State:      n.state,
		BdSeq:      n.bdSeq,
		Seq:        n.seq,
		Devices:    deviceIDs(n.devices),
	}
}

// deviceList returns the registered devices sorted by id. Caller must
// hold n.mu.
func (n *EdgeNode) deviceList() []*Device {
	ids := deviceIDs(n.devices)
	out := make([]*Device, 0, len(ids))
	for _, id := range ids {
		out = append(out, n.devices[id])
	}
	return out
}

// Connect establishes a fresh MQTT session: bdSeq is the current
// session-counter value (incremented on every connect after the
// first), NDEATH carrying only bdSeq is armed as the MQTT will, then
// CONNECT is issued. On CONNACK the node transitions Online and
// publishes NBIRTH followed by DBIRTH for every registered device
// (spec.md §4.5).
func (n *EdgeNode) Connect(ctx context.Context, broker string, timeout time.Duration) error {
	n.mu.Lock()
	if n.state != Offline {
		state := n.state
		n.mu.Unlock()
		return &sparkplug.InvalidState{Operation: "connect", State: state.String()}
	}
	n.setState(Connecting)
	n.broker = broker
	n.connectTimeout = timeout
	if n.connectCount > 0 {
		n.bdSeq++
	}
	n.connectCount++
	bdSeq := n.bdSeq
	ts := sparkplug.GetCurrentTimestamp()
	n.mu.Unlock()

	ndeath := &payload.Payload{Timestamp: ts, Metrics: []*payload.Metric{payload.BdSeqMetric(bdSeq, ts)}}
	willBytes, err := ndeath.Encode()
	if err != nil {
		n.mu.Lock()
		n.setState(Offline)
		n.mu.Unlock()
		return err
	}

	willTopic := sptopic.NodeTopic(n.groupID, sptopic.NDEATH, n.edgeNodeID)
	opts := append(append([]mqttclient.Option{}, n.clientOpts...),
		mqttclient.AutoReconnect(false),
		mqttclient.ConnectTimeout(timeout),
		mqttclient.WithWill(mqttclient.Will{
			Topic:   willTopic,
			Payload: willBytes,
			QoS:     sparkplug.PublishQoS(sptopic.NDEATH),
			Retain:  sparkplug.PublishRetain(sptopic.NDEATH),
		}),
	)
	cli := n.newClient(broker, opts...)
	cli.SetConnectionLostHandler(n.handleConnectionLost)

	connectCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := cli.Connect(connectCtx); err != nil {
		n.mu.Lock()
		n.setState(Offline)
		n.mu.Unlock()
		return err
	}

	n.mu.Lock()
	n.client = cli
	n.setState(Online)
	n.mu.Unlock()

	if err := n.subscribeNCMD(); err != nil {
		log.Printf("[sparkplug] n=%s/%s subscribe NCMD: %v", n.groupID, n.edgeNodeID, err)
	}

	return n.publishBirthSequence()
}

func (n *EdgeNode) subscribeNCMD() error {
	n.mu.Lock()
	client := n.client
	n.mu.Unlock()
	topic := sptopic.NodeTopic(n.groupID, sptopic.NCMD, n.edgeNodeID)
	return client.Subscribe(topic, sparkplug.PublishQoS(sptopic.NCMD), n.handleNCMD)
}

// handleNCMD implements the rebirth transition of spec.md §4.5: an
// NCMD carrying "Node Control/Rebirth"=true restarts the birth
// sequence (seq resets to 0, NBIRTH then DBIRTH for every device
// republish) without touching bdSeq or the MQTT session.
func (n *EdgeNode) handleNCMD(_ string, raw []byte, _ byte, _ bool) {
	p, err := payload.Decode(raw)
	if err != nil {
		log.Printf("[sparkplug] n=%s/%s NCMD decode error: %v", n.groupID, n.edgeNodeID, err)
		return
	}
	m, ok := p.MetricByName("Node Control/Rebirth")
	if !ok {
		return
	}
	rebirth, _ := m.Value.(bool)
	if !rebirth {
		return
	}
	if err := n.publishBirthSequence(); err != nil {
		log.Printf("[sparkplug] n=%s/%s rebirth failed: %v", n.groupID, n.edgeNodeID, err)
	}
}

// handleConnectionLost drives the unexpected-disconnect transition of
// spec.md §4.5: the broker has already fired the armed NDEATH will, so
// the node moves to Offline and reconnects, which (per Connect above)
// increments bdSeq and arms a fresh NDEATH before the Online transition
// republishes NBIRTH + DBIRTH.
func (n *EdgeNode) handleConnectionLost(err error) {
	n.mu.Lock()
	if n.state == Disconnecting || n.state == Offline {
		n.mu.Unlock()
		return
	}
	n.setState(Offline)
	broker, timeout := n.broker, n.connectTimeout
	n.mu.Unlock()

	log.Printf("[sparkplug] n=%s/%s unexpected disconnect: %v; reconnecting", n.groupID, n.edgeNodeID, err)
	go func() {
		if err := n.Connect(context.Background(), broker, timeout); err != nil {
			log.Printf("[sparkplug] n=%s/%s reconnect failed: %v", n.groupID, n.edgeNodeID, err)
		}
	}()
}

// publishBirthSequence publishes NBIRTH (seq=0, bdSeq first) followed
// by DBIRTH for every registered device, sharing the node's single
// increasing sequence counter. Used by both the Connect transition and
// NCMD-triggered rebirth.
func (n *EdgeNode) publishBirthSequence() error {
	n.mu.Lock()
	ts := sparkplug.GetCurrentTimestamp()
	bdSeq := n.bdSeq
	n.seq = 0
	seqVal := uint64(n.seq)
	metrics := make([]*payload.Metric, 0, len(n.birthMetrics)+1)
	metrics = append(metrics, payload.BdSeqMetric(bdSeq, ts))
	metrics = append(metrics, n.birthMetrics...)
	for _, m := range n.birthMetrics {
		n.lastValues[m.Name] = m
	}
	nbirth := &payload.Payload{Timestamp: ts, Seq: &seqVal, Metrics: metrics}
	devices := n.deviceList()
	client := n.client
	n.mu.Unlock()

	raw, err := nbirth.Encode()
	if err != nil {
		return err
	}
	topic := sptopic.NodeTopic(n.groupID, sptopic.NBIRTH, n.edgeNodeID)
	if err := client.Publish(topic, sparkplug.PublishQoS(sptopic.NBIRTH), sparkplug.PublishRetain(sptopic.NBIRTH), raw); err != nil {
		return err
	}

	for _, d := range devices {
		if err := n.publishDBirth(d); err != nil {
			return err
		}
	}
	return nil
}

func (n *EdgeNode) publishDBirth(d *Device) error {
	n.mu.Lock()
	ts := sparkplug.GetCurrentTimestamp()
	n.seq = (n.seq + 1) % 256
	seqVal := uint64(n.seq)
	p := &payload.Payload{Timestamp: ts, Seq: &seqVal, Metrics: d.BirthMetrics()}
	client := n.client
	n.mu.Unlock()

	raw, err := p.Encode()
	if err != nil {
		return err
	}
	topic := sptopic.DeviceTopic(n.groupID, sptopic.DBIRTH, n.edgeNodeID, d.ID())
	return client.Publish(topic, sparkplug.PublishQoS(sptopic.DBIRTH), sparkplug.PublishRetain(sptopic.DBIRTH), raw)
}

func (n *EdgeNode) publishDDeath(d *Device) error {
	n.mu.Lock()
	ts := sparkplug.GetCurrentTimestamp()
	n.seq = (n.seq + 1) % 256
	seqVal := uint64(n.seq)
	p := &payload.Payload{Timestamp: ts, Seq: &seqVal}
	client := n.client
	n.mu.Unlock()

	raw, err := p.Encode()
	if err != nil {
		return err
	}
	topic := sptopic.DeviceTopic(n.groupID, sptopic.DDEATH, n.edgeNodeID, d.ID())
	return client.Publish(topic, sparkplug.PublishQoS(sptopic.DDEATH), sparkplug.PublishRetain(sptopic.DDEATH), raw)
}

// Update publishes NDATA with the next shared seq. Every metric name
// must already appear in the node's birth set (spec.md §4.5's
// birth-set closure invariant); otherwise NotInBirthSet is returned and
// nothing is published.
func (n *EdgeNode) Update(metrics []*payload.Metric) error {
	n.mu.Lock()
	if n.state != Online {
		state := n.state
		n.mu.Unlock()
		return &sparkplug.InvalidState{Operation: "update", State: state.String()}
	}
	for _, m := range metrics {
		if _, ok := n.lastValues[m.Name]; !ok {
			n.mu.Unlock()
			return &sparkplug.NotInBirthSet{MetricName: m.Name}
		}
	}
	ts := sparkplug.GetCurrentTimestamp()
	n.seq = (n.seq + 1) % 256
	seqVal := uint64(n.seq)
	p := &payload.Payload{Timestamp: ts, Seq: &seqVal, Metrics: metrics}
	for _, m := range metrics {
		n.lastValues[m.Name] = m
	}
	client := n.client
	n.mu.Unlock()

	raw, err := p.Encode()
	if err != nil {
		return err
	}
	topic := sptopic.NodeTopic(n.groupID, sptopic.NDATA, n.edgeNodeID)
	return client.Publish(topic, sparkplug.PublishQoS(sptopic.NDATA), sparkplug.PublishRetain(sptopic.NDATA), raw)
}

// Register adds d to the device registry. If the node is already
// Online, DBIRTH is published immediately; otherwise d is added and
// published on the next NBIRTH/rebirth sequence (spec.md §4.5).
func (n *EdgeNode) Register(d *Device) error {
	n.mu.Lock()
	n.devices[d.ID()] = d
	online := n.state == Online
	n.mu.Unlock()
	if online {
		return n.publishDBirth(d)
	}
	return nil
}

// Deregister publishes DDEATH for deviceID (if connected) and removes
// it from the registry.
func (n *EdgeNode) Deregister(deviceID string) error {
	n.mu.Lock()
	d, ok := n.devices[deviceID]
	online := n.state == Online
	n.mu.Unlock()
	if !ok {
		return nil
	}

	var err error
	if online {
		err = n.publishDDeath(d)
	}

	n.mu.Lock()
	delete(n.devices, deviceID)
	n.mu.Unlock()
	return err
}

// UpdateDevice publishes DDATA on deviceID's own topic (never the
// node's topic — an earlier implementation bug placing the node id
// there is forbidden per spec.md §4.5) with the next shared seq. Every
// metric name must appear in the device's birth set.
func (n *EdgeNode) UpdateDevice(deviceID string, metrics []*payload.Metric) error {
	n.mu.Lock()
	if n.state != Online {
		state := n.state
		n.mu.Unlock()
		return &sparkplug.InvalidState{Operation: "update_device", State: state.String()}
	}
	d, ok := n.devices[deviceID]
	if !ok {
		n.mu.Unlock()
		return &sparkplug.NotInBirthSet{DeviceID: deviceID}
	}
	for _, m := range metrics {
		if !d.hasMetric(m.Name) {
			n.mu.Unlock()
			return &sparkplug.NotInBirthSet{MetricName: m.Name, DeviceID: deviceID}
		}
	}
	ts := sparkplug.GetCurrentTimestamp()
	n.seq = (n.seq + 1) % 256
	seqVal := uint64(n.seq)
	p := &payload.Payload{Timestamp: ts, Seq: &seqVal, Metrics: metrics}
	client := n.client
	n.mu.Unlock()

	d.recordValues(metrics)

	raw, err := p.Encode()
	if err != nil {
		return err
	}
	topic := sptopic.DeviceTopic(n.groupID, sptopic.DDATA, n.edgeNodeID, deviceID)
	return client.Publish(topic, sparkplug.PublishQoS(sptopic.DDATA), sparkplug.PublishRetain(sptopic.DDATA), raw)
}

// Disconnect publishes DDEATH for every registered device, then NDEATH
// (carrying the same bdSeq as the armed will), then cleanly closes the
// MQTT session. The will does not fire because this path is graceful —
// the explicit NDEATH publish is what guarantees subscribers see a
// death regardless of path (spec.md §4.5).
func (n *EdgeNode) Disconnect() error {
	n.mu.Lock()
	if n.state != Online {
		state := n.state
		n.mu.Unlock()
		return &sparkplug.InvalidState{Operation: "disconnect", State: state.String()}
	}
	n.setState(Disconnecting)
	devices := n.deviceList()
	client := n.client
	bdSeq := n.bdSeq
	n.mu.Unlock()

	for _, d := range devices {
		if err := n.publishDDeath(d); err != nil {
			log.Printf("[sparkplug] n=%s/%s DDEATH publish for device %s: %v", n.groupID, n.edgeNodeID, d.ID(), err)
		}
	}

	ts := sparkplug.GetCurrentTimestamp()
	ndeath := &payload.Payload{Timestamp: ts, Metrics: []*payload.Metric{payload.BdSeqMetric(bdSeq, ts)}}
	raw, err := ndeath.Encode()
	if err == nil {
		topic := sptopic.NodeTopic(n.groupID, sptopic.NDEATH, n.edgeNodeID)
		err = client.Publish(topic, sparkplug.PublishQoS(sptopic.NDEATH), sparkplug.PublishRetain(sptopic.NDEATH), raw)
	}

	client.Disconnect(250)

	n.mu.Lock()
	n.setState(Offline)
	n.client = nil
	n.mu.Unlock()
	return err
}
