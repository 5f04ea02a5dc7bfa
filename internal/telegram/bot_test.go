package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/config"
)

const testToken = "123456:TEST"

// fakeServer is a minimal Bot API. Pending updates are handed out on the
// next getUpdates call; empty polls return after a short delay.
type fakeServer struct {
	*httptest.Server

	mu        sync.Mutex
	sent      []url.Values
	pending   []string
	failSends bool
	rejectMe  bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) config() config.TelegramConfig {
	return config.TelegramConfig{
		Token:       testToken,
		PollTimeout: 1,
		APIEndpoint: fs.URL + "/bot%s/%s",
	}
}

func (fs *fakeServer) queue(updates ...string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.pending = append(fs.pending, updates...)
}

func (fs *fakeServer) sentMessages() []url.Values {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return slices.Clone(fs.sent)
}

func (fs *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(r.URL.Path, "/bot"+testToken+"/") {
		writeError(w, 404, "Not Found")
		return
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	switch strings.TrimPrefix(r.URL.Path, "/bot"+testToken+"/") {
	case "getMe":
		if fs.rejectMe {
			writeError(w, 401, "Unauthorized")
			return
		}
		writeResult(w, `{"id":1,"is_bot":true,"first_name":"Checkpoint","username":"checkpoint_bot"}`)

	case "sendMessage":
		if fs.failSends {
			writeError(w, 403, "Forbidden: bot was blocked by the user")
			return
		}
		fs.sent = append(fs.sent, r.PostForm)
		writeResult(w, fmt.Sprintf(`{"message_id":%d,"date":0,"chat":{"id":%s,"type":"private"},"text":%q}`,
			len(fs.sent), r.PostForm.Get("chat_id"), r.PostForm.Get("text")))

	case "getUpdates":
		if len(fs.pending) == 0 {
			fs.mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			fs.mu.Lock()
			writeResult(w, `[]`)
			return
		}
		batch := "[" + strings.Join(fs.pending, ",") + "]"
		fs.pending = nil
		writeResult(w, batch)

	default:
		writeError(w, 404, "Not Found")
	}
}

func writeResult(w http.ResponseWriter, result string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
}

func writeError(w http.ResponseWriter, code int, description string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"ok":false,"error_code":%d,"description":%q}`, code, description)
}

func textUpdate(updateID int, chatID int64, text string) string {
	return fmt.Sprintf(`{"update_id":%d,"message":{"message_id":%d,"date":0,"chat":{"id":%d,"type":"private"},"text":%q}}`,
		updateID, updateID, chatID, text)
}

type received struct {
	chatID int64
	text   string
}

type recordingHandler struct {
	mu   sync.Mutex
	msgs []received
}

func (h *recordingHandler) handle(_ context.Context, chatID int64, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, received{chatID, text})
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// =============================================================================
// Bot API Tests
// =============================================================================

func TestNewRequiresToken(t *testing.T) {
	for _, token := range []string{"", "   "} {
		if _, err := New(config.TelegramConfig{Token: token}); !errors.Is(err, ErrMissingToken) {
			t.Errorf("New(token=%q) error = %v, want ErrMissingToken", token, err)
		}
	}
}

func TestNewRejectedToken(t *testing.T) {
	fs := newFakeServer(t)
	fs.rejectMe = true

	_, err := New(fs.config())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("New() error = %v, want ErrConnectionFailed", err)
	}
}

func TestNew(t *testing.T) {
	fs := newFakeServer(t)

	bot, err := New(fs.config())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if bot.Username() != "checkpoint_bot" {
		t.Errorf("Username() = %q, want checkpoint_bot", bot.Username())
	}
}

func TestSend(t *testing.T) {
	fs := newFakeServer(t)
	bot, err := New(fs.config())
	if err != nil {
		t.Fatal(err)
	}

	text := `Received message: "card 04A1B2" on topic: "notifications/gate"`
	if err := bot.Send(context.Background(), -1001234567890, text); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sent := fs.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("server saw %d messages, want 1", len(sent))
	}
	if got := sent[0].Get("chat_id"); got != "-1001234567890" {
		t.Errorf("chat_id = %q", got)
	}
	if got := sent[0].Get("text"); got != text {
		t.Errorf("text = %q, want %q", got, text)
	}
	if got := sent[0].Get("parse_mode"); got != "" {
		t.Errorf("parse_mode = %q, want plain text", got)
	}
}

func TestSendSplitsLongText(t *testing.T) {
	fs := newFakeServer(t)
	bot, err := New(fs.config())
	if err != nil {
		t.Fatal(err)
	}

	text := strings.Repeat("a", MaxMessageLength+100)
	if err := bot.Send(context.Background(), 42, text); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sent := fs.sentMessages()
	if len(sent) != 2 {
		t.Fatalf("server saw %d messages, want 2", len(sent))
	}
	if got := len(sent[0].Get("text")); got != MaxMessageLength {
		t.Errorf("first part length = %d, want %d", got, MaxMessageLength)
	}
	if got := len(sent[1].Get("text")); got != 100 {
		t.Errorf("second part length = %d, want 100", got)
	}
}

func TestSendFailure(t *testing.T) {
	fs := newFakeServer(t)
	bot, err := New(fs.config())
	if err != nil {
		t.Fatal(err)
	}
	fs.failSends = true

	if err := bot.Send(context.Background(), 42, "hi"); !errors.Is(err, ErrSendFailed) {
		t.Errorf("Send() error = %v, want ErrSendFailed", err)
	}
}

func TestRunDeliversTextMessages(t *testing.T) {
	fs := newFakeServer(t)
	bot, err := New(fs.config())
	if err != nil {
		t.Fatal(err)
	}

	fs.queue(
		textUpdate(1, 42, "/readers"),
		`{"update_id":2,"edited_message":{"message_id":2,"date":0,"chat":{"id":42,"type":"private"},"text":"edited"}}`,
		textUpdate(3, 43, "hello"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	h := &recordingHandler{}
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx, h.handle) }()

	waitFor(t, "two handled messages", func() bool { return h.count() == 2 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil after cancel", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	slices.SortFunc(h.msgs, func(a, b received) int { return int(a.chatID - b.chatID) })
	want := []received{{42, "/readers"}, {43, "hello"}}
	if !slices.Equal(h.msgs, want) {
		t.Errorf("handled %+v, want %+v", h.msgs, want)
	}
}

// =============================================================================
// Dispatch Tests
// =============================================================================

// fakeAPI feeds updates from a channel.
type fakeAPI struct {
	updates chan tgbotapi.Update
	stops   int
	mu      sync.Mutex
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeAPI) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (m *mockLogger) Debug(string, ...any) {}
func (m *mockLogger) Info(string, ...any)  {}

func (m *mockLogger) Warn(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func (m *mockLogger) Error(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) errorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func message(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text}}
}

func TestRunIgnoresNonTextUpdates(t *testing.T) {
	api := newFakeAPI()
	bot := newBot(api, "checkpoint_bot", 1)

	api.updates <- tgbotapi.Update{UpdateID: 1}
	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}}}
	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{Text: "no chat"}}
	api.updates <- message(7, "/help")
	close(api.updates)

	h := &recordingHandler{}
	if err := bot.Run(context.Background(), h.handle); !errors.Is(err, ErrUpdatesClosed) {
		t.Errorf("Run() error = %v, want ErrUpdatesClosed", err)
	}

	// Run waits for handlers before returning.
	if h.count() != 1 || h.msgs[0] != (received{7, "/help"}) {
		t.Errorf("handled %+v, want only chat 7", h.msgs)
	}
}

func TestRunRecoversHandlerPanic(t *testing.T) {
	api := newFakeAPI()
	bot := newBot(api, "checkpoint_bot", 1)
	logger := &mockLogger{}
	bot.logger = logger

	api.updates <- message(1, "boom")
	api.updates <- message(2, "fine")
	close(api.updates)

	h := &recordingHandler{}
	_ = bot.Run(context.Background(), func(ctx context.Context, chatID int64, text string) {
		if text == "boom" {
			panic("handler exploded")
		}
		h.handle(ctx, chatID, text)
	})

	if h.count() != 1 {
		t.Errorf("handled %d messages, want 1", h.count())
	}
	if logger.errorCount() != 1 {
		t.Errorf("logged %d errors, want 1 for the panic", logger.errorCount())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	api := newFakeAPI()
	bot := newBot(api, "checkpoint_bot", 1)

	ctx, cancel := context.WithCancel(context.Background())
	handlerCtx := make(chan context.Context, 1)
	api.updates <- message(1, "/readers")

	done := make(chan error, 1)
	go func() {
		done <- bot.Run(ctx, func(ctx context.Context, _ int64, _ string) { handlerCtx <- ctx })
	}()

	hctx := <-handlerCtx
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if api.stops != 1 {
		t.Errorf("StopReceivingUpdates called %d times, want 1", api.stops)
	}
	if hctx.Err() != nil {
		t.Error("handler context cancelled with Run; in-flight replies would be dropped")
	}
}

func TestSendCancelledContext(t *testing.T) {
	bot := newBot(newFakeAPI(), "checkpoint_bot", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := bot.Send(ctx, 1, "hi"); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() error = %v, want context.Canceled", err)
	}
}

func TestLibraryLogger(t *testing.T) {
	logger := &mockLogger{}
	l := libraryLogger{logger}

	l.Println("Failed to get updates, retrying in 3 seconds...")
	l.Printf("Endpoint: %s, params: %v\n", "getUpdates", nil)

	want := []string{
		"Failed to get updates, retrying in 3 seconds...",
		"Endpoint: getUpdates, params: <nil>",
	}
	if !slices.Equal(logger.warns, want) {
		t.Errorf("warnings = %q, want %q", logger.warns, want)
	}
}
