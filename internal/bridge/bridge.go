package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prohidna/checkpoint-bridge/internal/command"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/config"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/mqtt"
	"github.com/prohidna/checkpoint-bridge/internal/notify"
	"github.com/prohidna/checkpoint-bridge/internal/subscriber"
)

// Event channels delivered to the EventBroadcaster.
const (
	EventPresenceChanged  = "presence.changed"
	EventBroadcastSent    = "broadcast.sent"
	EventCommandPublished = "command.published"
)

// MQTTClient is the broker connection used by the bridge.
// It is satisfied by *mqtt.Client.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	PublishAsync(topic string, payload []byte, qos byte, retained bool) error
	Done() <-chan struct{}
	Close() error
}

// Dialer opens a broker connection. It must respect the configured connect timeout.
type Dialer func() (MQTTClient, error)

// Registrar records chats that talk to the bot. Satisfied by *subscriber.Registry.
type Registrar interface {
	Register(ctx context.Context, id subscriber.ID) (bool, error)
}

// Presence is the online reader set. Satisfied by *presence.Tracker.
type Presence interface {
	OnOnline(id string) bool
	OnOffline(id string) bool
	Query() []string
	Count() int
}

// Notifier delivers chat messages. Satisfied by *notify.Channel.
type Notifier interface {
	SendToAll(ctx context.Context, text string) (notify.Report, error)
	SendToOne(ctx context.Context, id subscriber.ID, text string) error
}

// EventRecorder stores bridge events as time series. Optional.
type EventRecorder interface {
	RecordPresence(readerID string, online bool)
	RecordBroadcast(topic string, recipients, failed int)
	RecordCommand(kind, topic string)
}

// EventBroadcaster pushes bridge events to live clients. Optional.
type EventBroadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the Bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// MQTT provides the topics and QoS.
	MQTT config.MQTTConfig

	// Dial opens the broker connection during Start.
	Dial Dialer

	Registry Registrar
	Presence Presence
	Notifier Notifier

	// WelcomeMessage is sent once to each newly registered chat.
	WelcomeMessage string

	// Recorder, Broadcaster and Logger are optional.
	Recorder    EventRecorder
	Broadcaster EventBroadcaster
	Logger      Logger
}

// Bridge routes broker messages to chats and chat commands to the broker.
//
// Thread Safety: All methods are safe for concurrent use. Broker handlers and
// chat handlers run concurrently.
type Bridge struct {
	topics   config.MQTTTopicsConfig
	qos      byte
	dial     Dialer
	registry Registrar
	presence Presence
	notifier Notifier
	welcome  string

	dispatcher *command.Dispatcher

	recorder    EventRecorder
	broadcaster EventBroadcaster

	client MQTTClient
	state  mqtt.State
	mu     sync.RWMutex

	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	started   bool
	stopOnce  sync.Once

	received          atomic.Uint64
	presenceEvents    atomic.Uint64
	broadcasts        atomic.Uint64
	deliveryFailures  atomic.Uint64
	commandsPublished atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a bridge. Call Start to connect and subscribe.
func New(opts Options) (*Bridge, error) {
	switch {
	case opts.Dial == nil:
		return nil, fmt.Errorf("MQTT dialer is required")
	case opts.Registry == nil:
		return nil, fmt.Errorf("subscriber registry is required")
	case opts.Presence == nil:
		return nil, fmt.Errorf("presence tracker is required")
	case opts.Notifier == nil:
		return nil, fmt.Errorf("notifier is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		topics:      opts.MQTT.Topics,
		qos:         byte(opts.MQTT.QoS), //nolint:gosec // validated to 0..2 by config
		dial:        opts.Dial,
		registry:    opts.Registry,
		presence:    opts.Presence,
		notifier:    opts.Notifier,
		welcome:     opts.WelcomeMessage,
		recorder:    opts.Recorder,
		broadcaster: opts.Broadcaster,
		state:       mqtt.StateDisconnected,
		ctx:         ctx,
		ctxCancel:   cancel,
		logger:      opts.Logger,
	}

	b.dispatcher = command.NewDispatcher(command.Options{
		Publisher: b,
		Presence:  opts.Presence,
		Replier:   opts.Notifier,
		Observer:  b,
		Logger:    dispatcherLogger{b},
	})

	return b, nil
}

// Start connects to the broker and subscribes to the notification source
// and both presence prefixes. Any failure leaves the bridge Disconnected.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return fmt.Errorf("bridge already started")
	}
	b.started = true
	b.state = mqtt.StateConnecting
	b.mu.Unlock()

	client, err := b.dial()
	if err != nil {
		b.setState(mqtt.StateDisconnected)
		return fmt.Errorf("connecting to broker: %w", err)
	}

	b.mu.Lock()
	b.client = client
	b.state = mqtt.StateConnected
	b.mu.Unlock()
	b.logInfo("connected to MQTT broker")

	topics := mqtt.Topics{}
	filters := []string{
		b.topics.Source,
		topics.PresenceFilter(b.topics.Online),
		topics.PresenceFilter(b.topics.Offline),
	}
	for _, filter := range filters {
		if err := ctx.Err(); err != nil {
			b.shutdownClient()
			return err
		}
		if err := client.Subscribe(filter, b.qos, b.handleMessage); err != nil {
			b.shutdownClient()
			return fmt.Errorf("subscribing to %s: %w", filter, err)
		}
		b.logInfo("subscribed", "topic", filter)
	}

	b.wg.Add(1)
	go b.watchConnection(client)

	return nil
}

// watchConnection moves the bridge to Disconnected when the broker link ends.
// The bridge never reconnects.
func (b *Bridge) watchConnection(client MQTTClient) {
	defer b.wg.Done()

	select {
	case <-client.Done():
		if b.State() == mqtt.StateConnected {
			b.logError("broker connection closed, bridge is now disconnected", errors.New("connection lost"))
		}
		b.setState(mqtt.StateDisconnected)
	case <-b.ctx.Done():
	}
}

// Stop closes the broker connection and waits for background work.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.shutdownClient()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

func (b *Bridge) shutdownClient() {
	b.mu.Lock()
	client := b.client
	b.state = mqtt.StateDisconnected
	b.mu.Unlock()

	if client != nil {
		if err := client.Close(); err != nil {
			b.logError("closing MQTT client", err)
		}
	}
}

// State returns the broker connection lifecycle state.
func (b *Bridge) State() mqtt.State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Bridge) setState(s mqtt.State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Done is closed when Stop has been called.
func (b *Bridge) Done() <-chan struct{} {
	return b.ctx.Done()
}

// Publish hands a message to the broker without waiting for delivery.
// Only validation and connection-state errors are returned.
func (b *Bridge) Publish(topic string, payload []byte) error {
	b.mu.RLock()
	client, state := b.client, b.state
	b.mu.RUnlock()

	if client == nil || state != mqtt.StateConnected {
		return mqtt.ErrNotConnected
	}
	return client.PublishAsync(topic, payload, b.qos, false)
}

// Readers returns the online reader ids.
func (b *Bridge) Readers() []string {
	return b.presence.Query()
}

// =============================================================================
// Broker → chat
// =============================================================================

// handleMessage classifies one broker message. It is invoked concurrently.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	b.received.Add(1)

	switch {
	case mqtt.HasLevelPrefix(topic, b.topics.Online):
		b.handlePresence(topic, payload, true)
	case mqtt.HasLevelPrefix(topic, b.topics.Offline):
		b.handlePresence(topic, payload, false)
	default:
		return b.handleNotification(topic, payload)
	}
	return nil
}

func (b *Bridge) handlePresence(topic string, payload []byte, online bool) {
	id := strings.TrimSpace(payloadText(payload))
	if id == "" {
		id = mqtt.LastLevel(topic)
	}
	if id == "" || id == b.topics.Online || id == b.topics.Offline {
		b.logWarn("presence announcement without reader id", "topic", topic)
		return
	}

	var changed bool
	if online {
		changed = b.presence.OnOnline(id)
	} else {
		changed = b.presence.OnOffline(id)
	}
	if !changed {
		b.logDebug("presence unchanged", "reader_id", id, "online", online)
		return
	}

	b.presenceEvents.Add(1)
	b.logInfo("reader presence changed", "reader_id", id, "online", online)

	if b.recorder != nil {
		b.recorder.RecordPresence(id, online)
	}
	if b.broadcaster != nil {
		b.broadcaster.Broadcast(EventPresenceChanged, PresenceEvent{
			ReaderID: id,
			Online:   online,
			Readers:  b.presence.Query(),
		})
	}
}

func (b *Bridge) handleNotification(topic string, payload []byte) error {
	text := FormatNotification(topic, payload)

	report, err := b.notifier.SendToAll(b.ctx, text)
	if err != nil {
		return fmt.Errorf("broadcasting %s: %w", topic, err)
	}

	b.broadcasts.Add(1)
	b.deliveryFailures.Add(uint64(len(report.Failed)))
	b.logDebug("notification sent",
		"topic", topic,
		"recipients", report.Attempted,
		"failed", len(report.Failed))

	if b.recorder != nil {
		b.recorder.RecordBroadcast(topic, report.Attempted, len(report.Failed))
	}
	if b.broadcaster != nil {
		b.broadcaster.Broadcast(EventBroadcastSent, BroadcastEvent{
			Topic:      topic,
			Payload:    payloadText(payload),
			Recipients: report.Attempted,
			Failed:     len(report.Failed),
		})
	}
	return nil
}

// FormatNotification renders a broker message for chat delivery.
func FormatNotification(topic string, payload []byte) string {
	return fmt.Sprintf(`Received message: "%s" on topic: "%s"`, payloadText(payload), topic)
}

// payloadText decodes a broker payload as UTF-8. Invalid bytes become
// U+FFFD; the Bot API refuses text that is not valid UTF-8.
func payloadText(payload []byte) string {
	return strings.ToValidUTF8(string(payload), "\uFFFD")
}

// =============================================================================
// Chat → broker
// =============================================================================

// HandleText processes one inbound chat message.
//
// The sender is registered first; a newly registered sender gets the welcome
// message exactly once. The text is then dispatched as a command whether or
// not registration succeeded.
func (b *Bridge) HandleText(ctx context.Context, sender subscriber.ID, text string) command.Command {
	added, err := b.registry.Register(ctx, sender)
	switch {
	case err != nil:
		b.logError("registering sender", err)
	case added && b.welcome != "":
		if err := b.notifier.SendToOne(ctx, sender, b.welcome); err != nil {
			b.logWarn("welcome message not delivered", "chat_id", int64(sender), "error", err)
		}
	}

	return b.dispatcher.Dispatch(ctx, sender, text)
}

// CommandPublished implements command.Observer.
func (b *Bridge) CommandPublished(_ context.Context, cmd command.Command, topic string) {
	b.commandsPublished.Add(1)

	if b.recorder != nil {
		b.recorder.RecordCommand(string(cmd.Kind), topic)
	}
	if b.broadcaster != nil {
		b.broadcaster.Broadcast(EventCommandPublished, CommandEvent{
			Kind:  string(cmd.Kind),
			Topic: topic,
		})
	}
}

// =============================================================================
// Logging
// =============================================================================

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// dispatcherLogger forwards dispatcher logs to whatever logger the bridge has now.
type dispatcherLogger struct{ b *Bridge }

func (l dispatcherLogger) Debug(msg string, args ...any) { l.b.logDebug(msg, args...) }
func (l dispatcherLogger) Info(msg string, args ...any)  { l.b.logInfo(msg, args...) }
func (l dispatcherLogger) Warn(msg string, args ...any)  { l.b.logWarn(msg, args...) }
