package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/config"
)

// defaultPollTimeout is the long-poll timeout used when none is configured (seconds).
const defaultPollTimeout = 60

// httpSlack is added to the poll timeout for the HTTP client deadline,
// so a long poll that returns empty is never cut short.
const httpSlack = 10 * time.Second

// Handler receives one inbound text message.
type Handler func(ctx context.Context, chatID int64, text string)

// Logger defines the logging interface used by the Bot.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// botAPI is the subset of *tgbotapi.BotAPI the Bot uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot sends and receives Telegram messages.
//
// Thread Safety:
//   - Send is safe for concurrent use.
//   - Run must be called at most once.
type Bot struct {
	api         botAPI
	username    string
	pollTimeout int

	logger   Logger
	loggerMu sync.RWMutex

	stopOnce sync.Once
	handlers sync.WaitGroup
}

// New authenticates against the Bot API with the configured token.
func New(cfg config.TelegramConfig) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}

	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	client := &http.Client{Timeout: time.Duration(pollTimeout)*time.Second + httpSlack}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	api.Debug = cfg.Debug

	return newBot(api, api.Self.UserName, pollTimeout), nil
}

func newBot(api botAPI, username string, pollTimeout int) *Bot {
	return &Bot{
		api:         api,
		username:    username,
		pollTimeout: pollTimeout,
		logger:      noopLogger{},
	}
}

// Username returns the bot's Telegram username.
func (b *Bot) Username() string {
	return b.username
}

// Send delivers text to one chat. It implements notify.Sender.
//
// Text over MaxMessageLength is sent as several messages in order. The
// first failed part aborts the rest.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) error {
	parts := splitMessage(text, MaxMessageLength)
	if len(parts) > 1 {
		b.logDebug("splitting long message", "chat_id", chatID, "parts", len(parts))
	}

	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			if len(parts) > 1 {
				return fmt.Errorf("%w: part %d of %d: %w", ErrSendFailed, i+1, len(parts), err)
			}
			return fmt.Errorf("%w: %w", ErrSendFailed, err)
		}
	}
	return nil
}

// Run long-polls for updates and passes every text message to handler.
//
// Each message is handled in its own goroutine. Updates without text
// (stickers, joins, edits) are ignored. Run returns nil once ctx is
// cancelled and in-flight handlers have finished.
func (b *Bot) Run(ctx context.Context, handler Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.logInfo("telegram polling started", "bot", b.username, "poll_timeout", b.pollTimeout)

	// Handlers outlive cancellation so a reply in progress is not cut off.
	handlerCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			b.stop()
			b.handlers.Wait()
			b.logInfo("telegram polling stopped")
			return nil

		case update, ok := <-updates:
			if !ok {
				b.handlers.Wait()
				return ErrUpdatesClosed
			}
			b.dispatch(handlerCtx, update, handler)
		}
	}
}

func (b *Bot) stop() {
	b.stopOnce.Do(b.api.StopReceivingUpdates)
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update, handler Handler) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		b.logDebug("ignoring non-text update", "update_id", update.UpdateID)
		return
	}

	chatID, text := msg.Chat.ID, msg.Text
	b.handlers.Add(1)
	go func() {
		defer b.handlers.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logError("telegram handler panic recovered", "chat_id", chatID, "panic", r)
			}
		}()
		handler(ctx, chatID, text)
	}()
}

// SetLogger sets the logger for the bot and for the Bot API library.
func (b *Bot) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if err := tgbotapi.SetLogger(libraryLogger{logger}); err != nil {
		logger.Warn("installing Bot API logger failed", "error", err)
	}
}

func (b *Bot) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bot) logDebug(msg string, args ...any) { b.getLogger().Debug(msg, args...) }
func (b *Bot) logInfo(msg string, args ...any)  { b.getLogger().Info(msg, args...) }
func (b *Bot) logError(msg string, args ...any) { b.getLogger().Error(msg, args...) }

// libraryLogger adapts Logger to tgbotapi.BotLogger. The library only logs
// polling failures and debug traces, so everything is a warning.
type libraryLogger struct {
	logger Logger
}

func (l libraryLogger) Println(v ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintln(v...)), "component", "tgbotapi")
}

func (l libraryLogger) Printf(format string, v ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "tgbotapi")
}
