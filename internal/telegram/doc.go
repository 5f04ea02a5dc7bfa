// Package telegram is the chat transport of the checkpoint bridge.
//
// A Bot wraps the Telegram Bot API client. It sends plain text messages to
// chats (implementing notify.Sender) and long-polls for incoming messages,
// handing each text message to a Handler in its own goroutine.
//
// Usage:
//
//	bot, err := telegram.New(cfg.Telegram)
//	if err != nil {
//	    return err
//	}
//	bot.SetLogger(logger.With("component", "telegram"))
//
//	go bot.Run(ctx, func(ctx context.Context, chatID int64, text string) {
//	    br.HandleText(ctx, subscriber.ID(chatID), text)
//	})
//
// The Bot API library logs polling errors through a package-level logger;
// SetLogger routes those lines into the structured log as warnings.
package telegram
