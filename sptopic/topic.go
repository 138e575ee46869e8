// Package sptopic implements the Sparkplug B topic grammar (spec.md §3/§4.2):
// parsing, validation, and stringification of the namespace/group/message-type/
// edge-node/device 5-tuple, plus the wildcard rules that apply only to
// subscription (never publish) topics.
package sptopic

import (
	"fmt"
	"strings"
)

// Namespace is the literal Sparkplug B topic namespace prefix.
const Namespace = "spBv1.0"

// Well-known MQTT wildcards. They are untyped string constants, so they
// can be used in any component of a filter string; ParseSubscription and
// Matches accept them and Parse rejects them, per spec.md §4.2.
const (
	SingleLevelWildcard = "+"
	MultiLevelWildcard  = "#"
)

// MessageType is the topic's third component, naming the Payload variant
// it carries (spec.md §3's closed sum of eight kinds, plus STATE which
// lives on a separate topic shape).
type MessageType string

const (
	NBIRTH MessageType = "NBIRTH"
	NDATA  MessageType = "NDATA"
	NCMD   MessageType = "NCMD"
	NDEATH MessageType = "NDEATH"
	DBIRTH MessageType = "DBIRTH"
	DDATA  MessageType = "DDATA"
	DCMD   MessageType = "DCMD"
	DDEATH MessageType = "DDEATH"
	STATE  MessageType = "STATE"
)

// IsDeviceType reports whether mt is a D* variant, which requires a
// device id component on the topic.
func (mt MessageType) IsDeviceType() bool {
	switch mt {
	case DBIRTH, DDATA, DCMD, DDEATH:
		return true
	default:
		return false
	}
}

// IsNodeType reports whether mt is an N* variant, which forbids a
// device id component.
func (mt MessageType) IsNodeType() bool {
	switch mt {
	case NBIRTH, NDATA, NCMD, NDEATH:
		return true
	default:
		return false
	}
}

// Topic is the parsed Sparkplug 5-tuple: spBv1.0/group_id/message_type/
// edge_node_id[/device_id]. STATE topics use the 3-component shape
// spBv1.0/STATE/host_id instead; HostID is only set for those, and
// GroupID/EdgeNodeID/DeviceID are empty.
type Topic struct {
	Namespace   string
	GroupID     string
	MessageType MessageType
	EdgeNodeID  string
	DeviceID    string // empty unless MessageType.IsDeviceType()
	HostID      string // only set when MessageType == STATE
}

// Error reports a malformed topic string: wrong arity, an empty
// component, a forbidden character, or a wildcard used where the
// grammar forbids one. Satisfies the InvalidTopic kind of spec.md §7
// (the concrete error type lives in package sparkplug to avoid an
// import cycle; this package returns *Error and callers there wrap it).
type Error struct {
	Topic  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid topic %q: %s", e.Topic, e.Reason)
}

// forbidden reports whether a non-wildcard topic component contains a
// character the grammar reserves (spec.md §3: components are non-empty
// strings forbidden from containing '+', '#', or '/').
func forbidden(s string) bool {
	return strings.ContainsAny(s, "+#/")
}

// parse splits s on '/' and validates it as either the STATE shape
// (namespace/STATE/host_id) or the 4- or 5-component N*/D* shape.
// allowWildcards permits '+' and '#' components for subscription use;
// the exported entry points are Parse (publish topics, no wildcards)
// and ParseSubscription below.
func parse(s string, allowWildcards bool) (Topic, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 3 {
		return Topic{}, &Error{Topic: s, Reason: "too few components"}
	}
	if parts[0] != Namespace {
		return Topic{}, &Error{Topic: s, Reason: fmt.Sprintf("namespace must be %q", Namespace)}
	}
	for i, p := range parts {
		if p == "" {
			return Topic{}, &Error{Topic: s, Reason: "empty component"}
		}
		if p == MultiLevelWildcard && i != len(parts)-1 {
			return Topic{}, &Error{Topic: s, Reason: "'#' only allowed in terminal position"}
		}
		isWildcard := p == SingleLevelWildcard || p == MultiLevelWildcard
		if isWildcard {
			if !allowWildcards {
				return Topic{}, &Error{Topic: s, Reason: "wildcards not allowed in publish topics"}
			}
			continue
		}
		if i > 0 && forbidden(p) {
			return Topic{}, &Error{Topic: s, Reason: fmt.Sprintf("component %q contains a reserved character", p)}
		}
	}

	if parts[1] == string(STATE) {
		if len(parts) != 3 {
			return Topic{}, &Error{Topic: s, Reason: "STATE topic must be spBv1.0/STATE/<host_id>"}
		}
		return Topic{Namespace: Namespace, MessageType: STATE, HostID: parts[2]}, nil
	}

	mt := MessageType(parts[2])
	isWildcardType := isWildcardComponent(parts[2])
	switch len(parts) {
	case 4:
		if mt.IsDeviceType() && !isWildcardType {
			return Topic{}, &Error{Topic: s, Reason: fmt.Sprintf("%s requires a device id", mt)}
		}
		return Topic{Namespace: Namespace, GroupID: parts[1], MessageType: mt, EdgeNodeID: parts[3]}, nil
	case 5:
		if mt.IsNodeType() && !isWildcardType {
			return Topic{}, &Error{Topic: s, Reason: fmt.Sprintf("%s forbids a device id", mt)}
		}
		return Topic{Namespace: Namespace, GroupID: parts[1], MessageType: mt, EdgeNodeID: parts[3], DeviceID: parts[4]}, nil
	default:
		return Topic{}, &Error{Topic: s, Reason: "wrong number of components"}
	}
}

func isWildcardComponent(s string) bool {
	return s == SingleLevelWildcard || s == MultiLevelWildcard
}

// Parse parses a publish topic: no wildcards permitted.
func Parse(s string) (Topic, error) {
	return parse(s, false)
}

// ParseSubscription parses a topic that may contain '+'/'#' wildcards,
// for use when constructing or matching MQTT subscription filters.
func ParseSubscription(s string) (Topic, error) {
	return parse(s, true)
}

// String is the inverse of Parse/ParseSubscription: joins the
// components back with '/'.
func (t Topic) String() string {
	if t.MessageType == STATE {
		return strings.Join([]string{Namespace, string(STATE), t.HostID}, "/")
	}
	parts := []string{Namespace, t.GroupID, string(t.MessageType), t.EdgeNodeID}
	if t.DeviceID != "" {
		parts = append(parts, t.DeviceID)
	}
	return strings.Join(parts, "/")
}

// StateTopic builds the spBv1.0/STATE/<host_id> topic string.
func StateTopic(hostID string) string {
	return Topic{MessageType: STATE, HostID: hostID}.String()
}

// NodeTopic builds a publish topic for an N* message type.
func NodeTopic(groupID string, mt MessageType, edgeNodeID string) string {
	return Topic{GroupID: groupID, MessageType: mt, EdgeNodeID: edgeNodeID}.String()
}

// DeviceTopic builds a publish topic for a D* message type.
func DeviceTopic(groupID string, mt MessageType, edgeNodeID, deviceID string) string {
	return Topic{GroupID: groupID, MessageType: mt, EdgeNodeID: edgeNodeID, DeviceID: deviceID}.String()
}

// Matches reports whether topic (a concrete, non-wildcard topic string)
// satisfies filter (which may contain '+'/'#'), applying the standard
// MQTT wildcard rules. Adapted from the donor's topic.MemoryTrie lookup
// semantics (golang-io-mqtt's topic/trie.go), collapsed from a general
// trie down to direct segment comparison since Sparkplug filters are at
// most 5 levels deep.
func Matches(filter, topic string) bool {
	fParts := strings.Split(filter, "/")
	tParts := strings.Split(topic, "/")
	for i, fp := range fParts {
		if fp == MultiLevelWildcard {
			return true
		}
		if i >= len(tParts) {
			return false
		}
		if fp == SingleLevelWildcard {
			continue
		}
		if fp != tParts[i] {
			return false
		}
	}
	return len(fParts) == len(tParts)
}
