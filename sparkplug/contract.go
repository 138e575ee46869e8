package sparkplug

import "github.com/golang-io/sparkplug/sptopic"

// QoS and retain defaults mandated per message type, per spec.md §4.6's
// publish contract table. node consults this for every publish;
// mqttclient.Client.Publish does not, and sends the qos/retain its
// caller passes.
func PublishQoS(mt sptopic.MessageType) byte {
	switch mt {
	case sptopic.NBIRTH, sptopic.NDEATH, sptopic.DBIRTH, sptopic.DDEATH, sptopic.STATE:
		return 1
	default:
		return 0
	}
}

// PublishRetain reports the mandated retain flag: true only for STATE,
// false for every N*/D* message type.
func PublishRetain(mt sptopic.MessageType) bool {
	return mt == sptopic.STATE
}
