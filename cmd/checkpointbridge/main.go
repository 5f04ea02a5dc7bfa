// Checkpoint Bridge
//
// Relays notifications from checkpoint card readers (published over MQTT) to
// Telegram chats, tracks which readers are online, and lets chat users send
// whitelist, configuration and reset commands back to the readers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prohidna/checkpoint-bridge/internal/api"
	"github.com/prohidna/checkpoint-bridge/internal/bridge"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/config"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/database"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/influxdb"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/logging"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/mqtt"
	"github.com/prohidna/checkpoint-bridge/internal/notify"
	"github.com/prohidna/checkpoint-bridge/internal/presence"
	"github.com/prohidna/checkpoint-bridge/internal/subscriber"
	"github.com/prohidna/checkpoint-bridge/internal/telegram"
	"github.com/prohidna/checkpoint-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the bridge together and blocks until ctx is cancelled.
// Deferred cleanups run in reverse order of startup.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting checkpoint bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version, cfg.Telegram.Token, cfg.MQTT.Auth.Password, cfg.InfluxDB.Token)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"subscriber_backend", cfg.Subscribers.Backend,
	)

	checks := map[string]api.HealthChecker{}

	// Subscriber registry
	store, db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		checks["database"] = db
	}

	registry := subscriber.NewRegistry(store)
	registry.SetLogger(log.Component("subscriber"))
	if n, countErr := registry.Count(ctx); countErr != nil {
		// Not fatal: the file may become readable, and each operation reloads it.
		log.Warn("subscriber registry unreadable at startup", "error", countErr)
	} else {
		log.Info("subscriber registry loaded", "subscribers", n)
	}

	// Telegram
	bot, err := telegram.New(cfg.Telegram)
	if err != nil {
		return fmt.Errorf("connecting to Telegram: %w", err)
	}
	bot.SetLogger(log.Component("telegram"))
	log.Info("Telegram bot authorised", "username", bot.Username())

	channel := notify.NewChannel(registry, bot)
	channel.SetLogger(log.Component("notify"))

	// InfluxDB (optional)
	var recorder bridge.EventRecorder
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorder = influxClient
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Live event feed. The hub exists even with the API disabled so the
	// bridge always has a broadcaster.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	br, err := bridge.New(bridge.Options{
		MQTT:           cfg.MQTT,
		Dial:           dialer(cfg.MQTT, log),
		Registry:       registry,
		Presence:       presence.NewTracker(),
		Notifier:       channel,
		WelcomeMessage: cfg.Telegram.WelcomeMessage,
		Recorder:       recorder,
		Broadcaster:    hub,
		Logger:         log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if err := br.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer br.Stop()
	log.Info("MQTT bridge started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"source", cfg.MQTT.Topics.Source,
	)

	// Ops API (optional)
	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log.Component("api"),
			Bridge:      br,
			Subscribers: registry,
			Checks:      checks,
			Hub:         hub,
			Version:     version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := server.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, polling Telegram")

	// Blocks until shutdown; in-flight chat handlers finish first.
	if err := bot.Run(ctx, func(ctx context.Context, chatID int64, text string) {
		br.HandleText(ctx, subscriber.ID(chatID), text)
	}); err != nil {
		return fmt.Errorf("telegram polling: %w", err)
	}

	log.Info("checkpoint bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CHECKPOINT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CHECKPOINT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openStore builds the configured subscriber store. The sqlite backend also
// returns the open database, which the caller closes.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (subscriber.Store, *database.DB, error) {
	if cfg.Subscribers.Backend != config.SubscriberBackendSQLite {
		log.Info("using subscriber file", "path", cfg.Subscribers.Path)
		return subscriber.NewFileStore(cfg.Subscribers.Path), nil, nil
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	return subscriber.NewSQLiteStore(db.DB), db, nil
}

// dialer connects to the broker and hooks the client's logging. The bridge
// calls it once; a failed or lost connection is not retried.
func dialer(cfg config.MQTTConfig, log *logging.Logger) bridge.Dialer {
	return func() (bridge.MQTTClient, error) {
		client, err := mqtt.Connect(cfg)
		if err != nil {
			return nil, err
		}
		mqttLog := log.Component("mqtt")
		client.SetLogger(mqttLog)
		client.SetOnDisconnect(func(err error) {
			mqttLog.Warn("MQTT disconnected", "error", err)
		})
		return client, nil
	}
}
