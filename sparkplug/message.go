package sparkplug

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-io/sparkplug/payload"
	"github.com/golang-io/sparkplug/sptopic"
)

// GetCurrentTimestamp returns the current time in ms since the Unix
// epoch, UTC, per spec.md §6's named free function.
func GetCurrentTimestamp() int64 {
	return time.Now().UnixMilli()
}

// StatePayload is the primary-host STATE payload: a small JSON object
// carried outside the sequence-numbered protobuf payload space, per
// spec.md §3/§6.
type StatePayload struct {
	Online    bool  `json:"online"`
	Timestamp int64 `json:"timestamp"`
}

// Encode serializes s as the UTF-8 JSON body spec.md §6 mandates.
func (s *StatePayload) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeState parses a STATE topic's JSON body.
func DecodeState(raw []byte) (*StatePayload, error) {
	var s StatePayload
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("sparkplug: decode STATE payload: %w", err)
	}
	return &s, nil
}

// Message is the typed envelope of spec.md §4.3: a parsed Topic paired
// with the decoded payload of whatever variant its message-type
// dictates. Exactly one of Payload/State is set, depending on whether
// Topic.MessageType is STATE.
//
// Grounded on the donor's packet.Unpack(version byte, r io.Reader)
// dispatch-by-kind-byte shape (golang-io-mqtt's packet/packet.go): read
// the frame, switch on the discriminator, construct the concrete type.
type Message struct {
	Topic   sptopic.Topic
	Payload *payload.Payload
	State   *StatePayload
}

// DecodeMessage parses topicStr into a Topic, then decodes raw as the
// payload variant the topic's message-type dictates. STATE topics
// decode the JSON body instead of the binary codec, per spec.md §4.3.
func DecodeMessage(topicStr string, raw []byte) (*Message, error) {
	t, err := sptopic.Parse(topicStr)
	if err != nil {
		if te, ok := err.(*sptopic.Error); ok {
			return nil, &InvalidTopic{Topic: te.Topic, Reason: te.Reason}
		}
		return nil, &InvalidTopic{Topic: topicStr, Reason: err.Error()}
	}

	if t.MessageType == sptopic.STATE {
		state, err := DecodeState(raw)
		if err != nil {
			return nil, err
		}
		return &Message{Topic: t, State: state}, nil
	}

	p, err := payload.Decode(raw)
	if err != nil {
		return nil, err
	}
	return &Message{Topic: t, Payload: p}, nil
}

// Encode serializes m's payload (binary for N*/D* variants, JSON for
// STATE) for publishing on m.Topic.String().
func (m *Message) Encode() ([]byte, error) {
	if m.Topic.MessageType == sptopic.STATE {
		if m.State == nil {
			return nil, fmt.Errorf("sparkplug: STATE message missing State payload")
		}
		return m.State.Encode()
	}
	if m.Payload == nil {
		return nil, fmt.Errorf("sparkplug: %s message missing Payload", m.Topic.MessageType)
	}
	return m.Payload.Encode()
}
