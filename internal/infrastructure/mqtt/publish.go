package mqtt

import (
	"fmt"
	"strings"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// validatePublish checks the arguments shared by Publish and PublishAsync.
//
// Wildcards are rejected here because publishing to a topic containing
// '+' or '#' is a protocol violation and the broker answers it by dropping
// the connection, which for this client is permanent.
func (c *Client) validatePublish(topic string, payload []byte, qos byte) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Publish sends a message and waits for the broker acknowledgment (QoS 1/2)
// or for the write to complete (QoS 0).
//
// Example:
//
//	err := client.Publish(Topics{}.Whitelist("reader-01", WhitelistUpdate), []byte(`["04A1B2"]`), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := c.validatePublish(topic, payload, qos); err != nil {
		return err
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishAsync hands a message to the client and returns without waiting for delivery.
//
// Only argument and connection-state errors are returned. The outcome of the
// delivery itself is observed in the background and logged on failure.
func (c *Client) PublishAsync(topic string, payload []byte, qos byte, retained bool) error {
	if err := c.validatePublish(topic, payload, qos); err != nil {
		return err
	}

	token := c.client.Publish(topic, qos, retained, payload)
	go func() {
		var err error
		if !token.WaitTimeout(defaultPublishTimeout) {
			err = fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
		} else if tokenErr := token.Error(); tokenErr != nil {
			err = fmt.Errorf("%w: %w", ErrPublishFailed, tokenErr)
		}
		if err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT publish not delivered", "topic", topic, "error", err)
			}
		}
	}()

	return nil
}

// PublishString is a convenience method that publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}
