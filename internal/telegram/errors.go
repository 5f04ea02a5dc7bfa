package telegram

import "errors"

var (
	// ErrMissingToken is returned when no bot token is configured.
	ErrMissingToken = errors.New("telegram: bot token is required")

	// ErrConnectionFailed is returned when the Bot API rejects the token or is unreachable.
	ErrConnectionFailed = errors.New("telegram: connection failed")

	// ErrSendFailed is returned when a message could not be sent.
	ErrSendFailed = errors.New("telegram: send failed")

	// ErrUpdatesClosed is returned by Run when the update stream ends unexpectedly.
	ErrUpdatesClosed = errors.New("telegram: update channel closed")
)
