package mqtt

import "fmt"

// Topic prefixes for the webthing MQTT bridge.
//
// Per-thing topics use the scheme: webthing/things/{thing_id}/{channel}
const (
	// TopicPrefixThings is the base for all per-thing topics.
	TopicPrefixThings = "webthing/things"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "webthing/system"
)

// Topics provides builders for webthing MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.PropertyStatus("urn:dev:ops:lamp-1")
//	// Returns: "webthing/things/urn:dev:ops:lamp-1/properties"
type Topics struct{}

// =============================================================================
// Thing Topics
// =============================================================================

// PropertyStatus returns the topic for property status updates of a thing.
//
// Example: webthing/things/urn:dev:ops:lamp-1/properties
func (Topics) PropertyStatus(thingID string) string {
	return fmt.Sprintf("%s/%s/properties", TopicPrefixThings, thingID)
}

// ActionStatus returns the topic for action status updates of a thing.
//
// Example: webthing/things/urn:dev:ops:lamp-1/actions
func (Topics) ActionStatus(thingID string) string {
	return fmt.Sprintf("%s/%s/actions", TopicPrefixThings, thingID)
}

// Event returns the topic for a named event emitted by a thing.
//
// Example: webthing/things/urn:dev:ops:lamp-1/events/overheated
func (Topics) Event(thingID, eventName string) string {
	return fmt.Sprintf("%s/%s/events/%s", TopicPrefixThings, thingID, eventName)
}

// Command returns the topic on which a thing accepts inbound commands
// (setProperty, requestAction).
//
// Example: webthing/things/urn:dev:ops:lamp-1/command
func (Topics) Command(thingID string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixThings, thingID)
}

// Description returns the topic carrying the retained thing description.
//
// Example: webthing/things/urn:dev:ops:lamp-1/description
func (Topics) Description(thingID string) string {
	return fmt.Sprintf("%s/%s/description", TopicPrefixThings, thingID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the gateway status topic (online/offline, LWT).
//
// Example: webthing/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllEvents returns a pattern matching every event of a thing.
//
// Pattern: webthing/things/{thing_id}/events/+
func (Topics) AllEvents(thingID string) string {
	return fmt.Sprintf("%s/%s/events/+", TopicPrefixThings, thingID)
}

// AllCommands returns a pattern matching command topics for every thing.
//
// Pattern: webthing/things/+/command
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/+/command", TopicPrefixThings)
}

// AllTopics returns a pattern matching all webthing topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: webthing/#
func (Topics) AllTopics() string {
	return "webthing/#"
}
