package mqtt

import "fmt"

// Topic prefixes for the macropilot topic hierarchy.
//
// Vessel topics use the flat scheme: macropilot/{category}/{vessel_id}
// Macro engine events nest the event name: macropilot/macro/{vessel_id}/{event}
const (
	// TopicPrefix is the base for all macropilot topics.
	TopicPrefix = "macropilot"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "macropilot/system"
)

// Topics provides builders for macropilot MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	t := topics.VesselTelemetry("lander-1")
//	// Returns: "macropilot/telemetry/lander-1"
type Topics struct{}

// =============================================================================
// Vessel Topics
// =============================================================================

// VesselTelemetry returns the topic a vessel reports its state on.
//
// Example: macropilot/telemetry/lander-1
func (Topics) VesselTelemetry(vesselID string) string {
	return fmt.Sprintf("%s/telemetry/%s", TopicPrefix, vesselID)
}

// VesselControl returns the topic controls are sent to a vessel on.
//
// Example: macropilot/control/lander-1
func (Topics) VesselControl(vesselID string) string {
	return fmt.Sprintf("%s/control/%s", TopicPrefix, vesselID)
}

// =============================================================================
// Macro Engine Topics
// =============================================================================

// MacroEvent returns the topic for a macro engine event on a vessel.
//
// Example: macropilot/macro/lander-1/activated
func (Topics) MacroEvent(vesselID, event string) string {
	return fmt.Sprintf("%s/macro/%s/%s", TopicPrefix, vesselID, event)
}

// MacroActivated returns the topic announcing a newly active node.
//
// Example: macropilot/macro/lander-1/activated
func (t Topics) MacroActivated(vesselID string) string {
	return t.MacroEvent(vesselID, "activated")
}

// MacroStatus returns the topic for run state changes.
//
// Example: macropilot/macro/lander-1/status
func (t Topics) MacroStatus(vesselID string) string {
	return t.MacroEvent(vesselID, "status")
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
//
// Example: macropilot/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllVesselTelemetry returns a pattern matching telemetry from every vessel.
//
// Pattern: macropilot/telemetry/+
func (Topics) AllVesselTelemetry() string {
	return fmt.Sprintf("%s/telemetry/+", TopicPrefix)
}

// AllMacroEvents returns a pattern matching every macro engine event.
//
// Pattern: macropilot/macro/+/+
func (Topics) AllMacroEvents() string {
	return fmt.Sprintf("%s/macro/+/+", TopicPrefix)
}

// AllTopics returns a pattern matching all macropilot topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: macropilot/#
func (Topics) AllTopics() string {
	return "macropilot/#"
}
