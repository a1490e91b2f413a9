package bridge

import "fmt"

// Topic prefixes for the outbound MQTT hierarchy.
//
// The scheme is flat: tuyatrace/{category}/{id}. Event topics carry one
// device each so subscribers can filter with a single-level wildcard
// (tuyatrace/event/+).
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "tuyatrace"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "tuyatrace/system"
)

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// Event returns the topic for one device's live event feed.
//
// Example: tuyatrace/event/bf1234abcd
func (Topics) Event(deviceID string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the retained topic carrying the bridge's own
// online/offline status.
//
// Example: tuyatrace/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
