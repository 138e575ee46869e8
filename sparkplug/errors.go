// Package sparkplug ties together the datatype, payload, and sptopic
// packages into the message envelope (spec.md §4.3) and the error
// taxonomy (spec.md §7) shared by the node and mqttclient packages.
package sparkplug

import "fmt"

// Version is the library's compile-time version constant, per spec.md
// §9's note that the donor's global mutable `_version` has no mutable
// state analogue here.
const Version = "1.0.0"

// InvalidTopic wraps a malformed, wrong-arity, forbidden-character, or
// wildcard-in-publish-context topic string (spec.md §7).
type InvalidTopic struct {
	Topic  string
	Reason string
}

func (e *InvalidTopic) Error() string {
	return fmt.Sprintf("invalid topic %q: %s", e.Topic, e.Reason)
}

// NotInBirthSet reports that update/update_device referenced a metric
// name absent from the session's birth set (spec.md §4.5/§8).
type NotInBirthSet struct {
	MetricName string
	DeviceID   string // empty for node-level updates
}

func (e *NotInBirthSet) Error() string {
	if e.DeviceID != "" {
		return fmt.Sprintf("metric %q not in device %q birth set", e.MetricName, e.DeviceID)
	}
	return fmt.Sprintf("metric %q not in node birth set", e.MetricName)
}

// InvalidState reports an operation attempted in a NodeState that
// doesn't support it (e.g. Update while Offline), per spec.md §7.
type InvalidState struct {
	Operation string
	State     string
}

func (e *InvalidState) Error() string {
	return fmt.Sprintf("operation %q invalid in state %s", e.Operation, e.State)
}

// MQTTErrorCode enumerates the closed set of underlying transport error
// codes spec.md §7 requires MQTTError to carry verbatim from the
// adapter.
type MQTTErrorCode int

const (
	MQTTErrorUnknown MQTTErrorCode = iota
	MQTTErrorConnectionRefused
	MQTTErrorNotAuthorized
	MQTTErrorProtocol
	MQTTErrorTimeout
	MQTTErrorNetwork
)

func (c MQTTErrorCode) String() string {
	switch c {
	case MQTTErrorConnectionRefused:
		return "connection refused"
	case MQTTErrorNotAuthorized:
		return "not authorized"
	case MQTTErrorProtocol:
		return "protocol error"
	case MQTTErrorTimeout:
		return "timeout"
	case MQTTErrorNetwork:
		return "network error"
	default:
		return "unknown"
	}
}

// MQTTError surfaces a transport-level failure from the MQTT adapter
// verbatim, per spec.md §7 ("surfaced verbatim from the adapter").
type MQTTError struct {
	Code  MQTTErrorCode
	Cause error
}

func (e *MQTTError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mqtt error (%s): %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("mqtt error (%s)", e.Code)
}

func (e *MQTTError) Unwrap() error { return e.Cause }
