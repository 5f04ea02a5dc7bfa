package mqtt

import "errors"

// Sentinel errors, checked with errors.Is.
var (
	// ErrNotConnected is returned by Publish and Subscribe once the client is
	// disconnected. The client never reconnects, so this is permanent.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed means the broker refused the connection or the
	// connect timeout expired.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionLost is passed to the OnDisconnect callback when an
	// established connection drops.
	ErrConnectionLost = errors.New("mqtt: connection lost")

	// ErrPublishFailed covers oversized payloads, broker errors and timeouts.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics and publish topics containing + or #.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
