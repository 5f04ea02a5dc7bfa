// Package logging builds the bridge's structured logger on log/slog.
//
// Every entry carries service and version. Components receive a child
// tagged with their name:
//
//	log := logging.New(cfg.Logging, version, cfg.Telegram.Token)
//	registry.SetLogger(log.Component("subscriber"))
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Secrets passed to New are replaced with [REDACTED] in messages, string
// attributes and error attributes.
package logging
