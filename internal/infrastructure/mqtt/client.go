package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/config"
)

// State is the connection lifecycle state of a Client.
type State string

// Connection states. A client moves Disconnected → Connecting → Connected → Disconnected
// and never leaves the final Disconnected state.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Client wraps paho.mqtt.golang with the bridge's fail-stop connection policy.
//
// Unlike a long-running service client it never reconnects: when the broker
// connection drops, the client closes itself and stays disconnected.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// subscriptions maps each active topic filter to its QoS.
	subscriptions map[string]byte
	subMu         sync.RWMutex

	state   State
	stateMu sync.RWMutex

	// done is closed once the client reaches its final Disconnected state.
	done     chan struct{}
	doneOnce sync.Once

	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked concurrently, one goroutine per message.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a connection to the MQTT broker.
//
// The attempt is bounded by cfg.ConnectTimeout. On timeout or refusal the
// connection is abandoned and ErrConnectionFailed is returned; there is no
// retry loop.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		subscriptions: make(map[string]byte),
		state:         StateConnecting,
		done:          make(chan struct{}),
	}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(opts)
	timeout := connectTimeout(cfg)
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		c.abandon()
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, timeout)
	}
	if err := token.Error(); err != nil {
		c.abandon()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.setState(StateConnected)
	return c, nil
}

// abandon tears down a connection attempt that did not complete.
func (c *Client) abandon() {
	c.client.Disconnect(0)
	c.finish()
}

// handleConnectionLost implements the fail-stop policy: log, close, stay down.
func (c *Client) handleConnectionLost(cause error) {
	err := fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	if logger := c.getLogger(); logger != nil {
		logger.Error("MQTT connection lost, not reconnecting", "error", err)
	}

	c.client.Disconnect(0)
	c.finish()

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// finish moves the client to its final state and releases Done waiters.
func (c *Client) finish() {
	c.setState(StateDisconnected)
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// Close disconnects from the MQTT broker.
//
// Returns:
//   - error: always nil; closing an already closed client is not an error
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.State() == StateConnected {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}
	c.finish()

	return nil
}

// Done returns a channel that is closed when the client becomes permanently disconnected,
// either through Close or a lost connection.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	if c.client == nil {
		return false
	}
	return c.State() == StateConnected && c.client.IsConnectionOpen()
}

// State returns the lifecycle state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.state == "" {
		return StateDisconnected
	}
	return c.state
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// SetOnDisconnect sets a callback invoked once when the broker connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
