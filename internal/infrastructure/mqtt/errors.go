package mqtt

import "errors"

// Errors returned by the client; match them with errors.Is. Broker failures
// wrap one of the *Failed errors around paho's own error.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrInvalidTopic rejects empty topics, and wildcards on publish.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrForeignTopic rejects publishes outside the macropilot/ hierarchy.
	// Vessels and engines only ever write their own topics.
	ErrForeignTopic = errors.New("mqtt: topic outside " + TopicPrefix + "/")
)
