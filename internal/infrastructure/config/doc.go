// Package config loads the bridge configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// CHECKPOINT_* environment variables. Validate reports every problem at once.
//
// The bot token and broker password belong in the environment
// (CHECKPOINT_TELEGRAM_TOKEN, CHECKPOINT_MQTT_PASSWORD), not in the file:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return fmt.Errorf("loading config: %w", err)
//	}
//	source := cfg.MQTT.Topics.Source // "notifications/#" by default
package config
