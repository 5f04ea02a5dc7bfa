package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Subscriber store backends.
const (
	// SubscriberBackendFile stores subscribers as a JSON array in a single file.
	SubscriberBackendFile = "file"

	// SubscriberBackendSQLite stores subscribers in the SQLite database.
	SubscriberBackendSQLite = "sqlite"
)

// clientIDPrefix is prepended to a generated MQTT client ID.
const clientIDPrefix = "checkpoint-bridge-"

// Config is the root configuration structure for the checkpoint bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Subscribers SubscribersConfig `yaml:"subscribers"`
	Database    DatabaseConfig    `yaml:"database"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`
	QoS    int              `yaml:"qos"`
	Topics MQTTTopicsConfig `yaml:"topics"`

	// ConnectTimeout bounds the initial connection attempt (seconds).
	// The bridge does not retry after it expires.
	ConnectTimeout int `yaml:"connect_timeout"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTopicsConfig names the topics the bridge listens on.
type MQTTTopicsConfig struct {
	// Source is the notification topic (or pattern) fanned out to subscribers.
	Source string `yaml:"source"`

	// Online is the first topic level of reader online announcements.
	Online string `yaml:"online"`

	// Offline is the first topic level of reader offline announcements.
	Offline string `yaml:"offline"`
}

// TelegramConfig contains Telegram Bot API settings.
type TelegramConfig struct {
	Token          string `yaml:"token"`
	PollTimeout    int    `yaml:"poll_timeout"`
	WelcomeMessage string `yaml:"welcome_message"`
	Debug          bool   `yaml:"debug"`

	// APIEndpoint overrides the Bot API URL format (token, method).
	// Empty means api.telegram.org.
	APIEndpoint string `yaml:"api_endpoint"`
}

// SubscribersConfig selects where the subscriber registry is persisted.
type SubscribersConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the JSON file used by the file backend.
	Path string `yaml:"path"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// Tags are added to every point, e.g. site: "warehouse-a", so several
	// bridges can share one bucket.
	Tags map[string]string `yaml:"tags"`
}

// APIConfig contains the operations HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event feed settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CHECKPOINT_SECTION_KEY
// For example: CHECKPOINT_MQTT_HOST, CHECKPOINT_TELEGRAM_TOKEN
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = GenerateClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// GenerateClientID returns a unique MQTT client ID so several bridge
// instances never kick each other off the broker.
func GenerateClientID() string {
	return clientIDPrefix + uuid.NewString()[:8]
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:            1,
			ConnectTimeout: 4,
			Topics: MQTTTopicsConfig{
				Source:  "notifications/#",
				Online:  "online",
				Offline: "offline",
			},
		},
		Telegram: TelegramConfig{
			PollTimeout:    60,
			WelcomeMessage: "You are subscribed to checkpoint system notifications.",
		},
		Subscribers: SubscribersConfig{
			Backend: SubscriberBackendFile,
			Path:    "./data/users.json",
		},
		Database: DatabaseConfig{
			Path:        "./data/checkpoint.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets (tokens, passwords) are expected to arrive this way rather than via the file.
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("CHECKPOINT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CHECKPOINT_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHECKPOINT_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("CHECKPOINT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CHECKPOINT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("CHECKPOINT_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topics.Source = v
	}

	// Telegram
	if v := os.Getenv("CHECKPOINT_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}

	// Storage
	if v := os.Getenv("CHECKPOINT_SUBSCRIBERS_PATH"); v != "" {
		cfg.Subscribers.Path = v
	}
	if v := os.Getenv("CHECKPOINT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("CHECKPOINT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("CHECKPOINT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}
	errs = append(errs, c.MQTT.Topics.validate()...)

	// Telegram validation
	if c.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required (set CHECKPOINT_TELEGRAM_TOKEN environment variable)")
	}

	// Subscriber store validation
	switch c.Subscribers.Backend {
	case SubscriberBackendFile:
		if c.Subscribers.Path == "" {
			errs = append(errs, "subscribers.path is required for the file backend")
		}
	case SubscriberBackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("subscribers.backend must be %q or %q", SubscriberBackendFile, SubscriberBackendSQLite))
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && (c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0) {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate checks that the presence prefixes are single topic levels and
// do not collide with each other.
func (t MQTTTopicsConfig) validate() []string {
	var errs []string
	if t.Source == "" {
		errs = append(errs, "mqtt.topics.source is required")
	}
	levels := []struct{ name, value string }{
		{"online", t.Online},
		{"offline", t.Offline},
	}
	for _, level := range levels {
		if level.value == "" {
			errs = append(errs, fmt.Sprintf("mqtt.topics.%s is required", level.name))
			continue
		}
		if strings.ContainsAny(level.value, "/+#") {
			errs = append(errs, fmt.Sprintf("mqtt.topics.%s must be a single topic level", level.name))
		}
	}
	if t.Online != "" && t.Online == t.Offline {
		errs = append(errs, "mqtt.topics.online and mqtt.topics.offline must differ")
	}
	return errs
}

// ReadTimeout returns the API read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
