package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/config"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/logging"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/mqtt/mqtttest"
	"github.com/prohidna/checkpoint-bridge/internal/subscriber"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("CHECKPOINT_CONFIG", path)
	t.Setenv("CHECKPOINT_TELEGRAM_TOKEN", "")
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("CHECKPOINT_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingToken verifies run refuses to start without a bot token.
func TestRun_MissingToken(t *testing.T) {
	writeConfig(t, `
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
logging:
  level: error
`)

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "telegram.token is required") {
		t.Fatalf("run() error = %v, want missing token", err)
	}
}

// TestRun_BrokerUnreachable verifies a failed broker connection aborts startup.
func TestRun_BrokerUnreachable(t *testing.T) {
	tg := newFakeTelegram(t)
	writeConfig(t, fmt.Sprintf(`
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
  connect_timeout: 1
telegram:
  token: %q
  api_endpoint: %q
subscribers:
  path: %q
logging:
  level: error
`, fakeToken, tg.endpoint(), filepath.Join(t.TempDir(), "users.json")))

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "starting bridge") {
		t.Fatalf("run() error = %v, want bridge start failure", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("CHECKPOINT_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("CHECKPOINT_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestDefaultConfigFileLoads(t *testing.T) {
	t.Setenv("CHECKPOINT_TELEGRAM_TOKEN", "123:abc")

	cfg, err := config.Load(filepath.Join("..", "..", defaultConfigPath))
	if err != nil {
		t.Fatalf("Load(%s) error = %v", defaultConfigPath, err)
	}
	if cfg.MQTT.Topics.Source != "notifications/#" || cfg.Subscribers.Backend != config.SubscriberBackendFile {
		t.Errorf("unexpected defaults: %+v", cfg.MQTT.Topics)
	}
}

// =============================================================================
// Store Wiring Tests
// =============================================================================

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		backend string
		wantDB  bool
	}{
		{"file", config.SubscriberBackendFile, false},
		{"sqlite", config.SubscriberBackendSQLite, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Subscribers: config.SubscribersConfig{Backend: tt.backend, Path: filepath.Join(dir, "users.json")},
				Database:    config.DatabaseConfig{Path: filepath.Join(dir, "checkpoint.db"), BusyTimeout: 5},
			}

			store, db, err := openStore(context.Background(), cfg, logging.Discard())
			if err != nil {
				t.Fatalf("openStore() error = %v", err)
			}
			if (db != nil) != tt.wantDB {
				t.Errorf("db = %v, want db %v", db, tt.wantDB)
			}
			if db != nil {
				defer db.Close()
			}

			reg := subscriber.NewRegistry(store)
			if added, err := reg.Register(context.Background(), 42); err != nil || !added {
				t.Errorf("Register() = %v, %v", added, err)
			}
		})
	}
}

// =============================================================================
// End-to-end
// =============================================================================

const fakeToken = "42:TEST"

// fakeTelegram serves getMe, sendMessage and getUpdates.
type fakeTelegram struct {
	*httptest.Server

	mu      sync.Mutex
	pending []string
	sent    []string
}

func newFakeTelegram(t *testing.T) *fakeTelegram {
	t.Helper()
	f := &fakeTelegram{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeTelegram) endpoint() string { return f.URL + "/bot%s/%s" }

func (f *fakeTelegram) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Checkpoint","username":"checkpoint_bot"}}`)
	case "sendMessage":
		f.mu.Lock()
		f.sent = append(f.sent, r.PostForm.Get("chat_id")+"|"+r.PostForm.Get("text"))
		f.mu.Unlock()
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":%s,"type":"private"}}}`, r.PostForm.Get("chat_id"))
	case "getUpdates":
		f.mu.Lock()
		batch := f.pending
		f.pending = nil
		f.mu.Unlock()
		if len(batch) == 0 {
			time.Sleep(20 * time.Millisecond)
		}
		fmt.Fprintf(w, `{"ok":true,"result":[%s]}`, strings.Join(batch, ","))
	default:
		fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func (f *fakeTelegram) say(updateID int, chatID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, fmt.Sprintf(
		`{"update_id":%d,"message":{"message_id":%d,"date":0,"chat":{"id":%d,"type":"private"},"text":%q}}`,
		updateID, updateID, chatID, text))
}

func (f *fakeTelegram) hasSent(entry string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sent {
		if s == entry {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRun_EndToEnd(t *testing.T) {
	broker := mqtttest.Start(t)
	mq := broker.Config("checkpoint-e2e")
	tg := newFakeTelegram(t)

	writeConfig(t, fmt.Sprintf(`
mqtt:
  broker:
    host: %q
    port: %d
    client_id: "checkpoint-e2e"
  connect_timeout: 2
telegram:
  token: %q
  poll_timeout: 1
  welcome_message: "welcome"
  api_endpoint: %q
subscribers:
  backend: sqlite
database:
  path: %q
logging:
  level: error
`, mq.Broker.Host, mq.Broker.Port, fakeToken, tg.endpoint(), filepath.Join(t.TempDir(), "checkpoint.db")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	commands := broker.Capture(t, "dev1/#")

	// A chat registers by talking to the bot, then asks for a reset.
	tg.say(1, 501, "/reset dev1")
	waitFor(t, "welcome", func() bool { return tg.hasSent("501|welcome") })
	if msg := mqtttest.Expect(t, commands, 5*time.Second); msg.Topic != "dev1/reset" {
		t.Errorf("command topic = %q, want dev1/reset", msg.Topic)
	}

	broker.Publish(t, "online/dev1", "dev1")
	broker.Publish(t, "notifications/gate", "card 04A1B2 accepted")
	waitFor(t, "notification", func() bool {
		return tg.hasSent(`501|Received message: "card 04A1B2 accepted" on topic: "notifications/gate"`)
	})

	tg.say(2, 501, "/readers")
	waitFor(t, "readers reply", func() bool { return tg.hasSent("501|dev1\n-- end --") })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
