package command

import (
	"context"

	"github.com/prohidna/checkpoint-bridge/internal/subscriber"
)

// Publisher sends a message to the broker without waiting for delivery.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// PresenceSource lists the readers currently online.
type PresenceSource interface {
	Query() []string
}

// Replier sends a direct reply to one human.
type Replier interface {
	SendToOne(ctx context.Context, id subscriber.ID, text string) error
}

// Observer is told about every command that reached the broker.
type Observer interface {
	CommandPublished(ctx context.Context, cmd Command, topic string)
}

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options holds the collaborators of a Dispatcher.
type Options struct {
	Publisher Publisher
	Presence  PresenceSource
	Replier   Replier

	// Observer is optional.
	Observer Observer
	// Logger is optional.
	Logger Logger
}

// Dispatcher turns inbound text into broker publications and replies.
type Dispatcher struct {
	publisher Publisher
	presence  PresenceSource
	replier   Replier
	observer  Observer
	logger    Logger
}

// NewDispatcher creates a dispatcher. Publisher, Presence and Replier are required.
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		publisher: opts.Publisher,
		presence:  opts.Presence,
		replier:   opts.Replier,
		observer:  opts.Observer,
		logger:    opts.Logger,
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	return d
}

// Dispatch parses text from sender and performs its effect.
//
// Malformed and unknown input does nothing. Publish and reply failures are
// logged and never returned; the parsed command is returned for the caller
// to log or inspect.
func (d *Dispatcher) Dispatch(ctx context.Context, sender subscriber.ID, text string) Command {
	cmd := Parse(text)

	switch cmd.Kind {
	case KindUnknown:
		return cmd
	case KindMalformed:
		d.logger.Debug("ignoring malformed command", "sender", int64(sender), "command", cmd.Name, "args", len(cmd.Args))
		return cmd
	case KindReaders:
		d.reply(ctx, sender, cmd, FormatReaders(d.presence.Query()))
		return cmd
	case KindHelp:
		d.reply(ctx, sender, cmd, Usage)
		return cmd
	}

	topic, payload, ok := cmd.Publication()
	if !ok {
		return cmd
	}
	if err := d.publisher.Publish(topic, []byte(payload)); err != nil {
		d.logger.Warn("command publish failed", "sender", int64(sender), "kind", string(cmd.Kind), "topic", topic, "error", err)
		return cmd
	}

	d.logger.Info("command published", "sender", int64(sender), "kind", string(cmd.Kind), "topic", topic)
	if d.observer != nil {
		d.observer.CommandPublished(ctx, cmd, topic)
	}
	return cmd
}

func (d *Dispatcher) reply(ctx context.Context, to subscriber.ID, cmd Command, text string) {
	if err := d.replier.SendToOne(ctx, to, text); err != nil {
		d.logger.Warn("command reply failed", "sender", int64(to), "kind", string(cmd.Kind), "error", err)
	}
}
