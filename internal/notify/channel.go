package notify

import (
	"context"
	"fmt"

	"github.com/prohidna/checkpoint-bridge/internal/subscriber"
)

// Sender delivers one message to one chat. Implemented by telegram.Bot.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Recipients lists the chats to notify. Implemented by subscriber.Registry.
type Recipients interface {
	List(ctx context.Context) ([]subscriber.ID, error)
}

// Logger defines the logging interface used by the Channel.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Report summarises one SendToAll call.
type Report struct {
	Attempted int
	Delivered int
	Failed    []subscriber.ID
}

// Channel fans messages out to every subscriber.
type Channel struct {
	recipients Recipients
	sender     Sender
	logger     Logger
}

// NewChannel creates a channel delivering through sender to recipients.
func NewChannel(recipients Recipients, sender Sender) *Channel {
	return &Channel{
		recipients: recipients,
		sender:     sender,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the channel.
func (c *Channel) SetLogger(logger Logger) {
	c.logger = logger
}

// SendToAll delivers text to every subscriber, sequentially and in order.
//
// A failure for one recipient is logged and does not stop delivery to the
// rest. The only returned error is a failure to list recipients.
func (c *Channel) SendToAll(ctx context.Context, text string) (Report, error) {
	ids, err := c.recipients.List(ctx)
	if err != nil {
		c.logger.Error("listing subscribers for broadcast failed", "error", err)
		return Report{}, err
	}

	report := Report{Attempted: len(ids)}
	for _, id := range ids {
		if err := c.send(ctx, id, text); err != nil {
			c.logger.Warn("broadcast delivery failed", "chat_id", int64(id), "error", err)
			report.Failed = append(report.Failed, id)
			continue
		}
		report.Delivered++
	}

	c.logger.Debug("broadcast finished",
		"attempted", report.Attempted,
		"delivered", report.Delivered,
		"failed", len(report.Failed))
	return report, nil
}

// SendToOne delivers text to a single chat. Failures are logged and returned.
func (c *Channel) SendToOne(ctx context.Context, id subscriber.ID, text string) error {
	if err := c.send(ctx, id, text); err != nil {
		c.logger.Warn("direct message failed", "chat_id", int64(id), "error", err)
		return err
	}
	return nil
}

func (c *Channel) send(ctx context.Context, id subscriber.ID, text string) error {
	if err := c.sender.Send(ctx, int64(id), text); err != nil {
		return fmt.Errorf("%w: chat %d: %w", ErrDelivery, id, err)
	}
	return nil
}
