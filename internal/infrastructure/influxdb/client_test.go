package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/config"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and collects line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu        sync.Mutex
	lines     []string
	query     string
	failWrite bool
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.failWrite {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"code":"invalid","message":"bucket not found"}`)
				return
			}
			f.query = r.URL.RawQuery
			for line := range strings.SplitSeq(strings.TrimSpace(string(body)), "\n") {
				f.lines = append(f.lines, line)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.URL,
		Token:         "checkpoint-test-token",
		Org:           "checkpoint",
		Bucket:        "events",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// waitLines waits until n lines arrived and returns them without timestamps.
func (f *fakeInflux) waitLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.lines) >= n {
			out := make([]string, len(f.lines))
			for i, line := range f.lines {
				out[i] = line[:strings.LastIndex(line, " ")]
			}
			f.mu.Unlock()
			return out
		}
		f.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines", n)
	return nil
}

func connectFake(t *testing.T) (*influxdb.Client, *fakeInflux) {
	t.Helper()
	f := newFakeInflux(t)
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, f
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client, _ := connectFake(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := config.InfluxDBConfig{URL: "http://127.0.0.1:8086"}

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: true, URL: "http://127.0.0.1:59999"}

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
}

func TestHealthCheck(t *testing.T) {
	client, _ := connectFake(t)

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_AfterClose(t *testing.T) {
	client, _ := connectFake(t)
	_ = client.Close()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}

// =============================================================================
// Recorder Tests
// =============================================================================

func TestRecordEvents(t *testing.T) {
	client, f := connectFake(t)

	client.RecordPresence("reader-01", true)
	client.RecordBroadcast("notifications/gate", 3, 1)
	client.RecordCommand("reset", "reader-01/reset")
	client.Flush()

	got := f.waitLines(t, 3)
	want := []string{
		"presence,device_id=reader-01 online=true",
		"broadcast,topic=notifications/gate failed=1i,recipients=3i",
		"command,kind=reset count=1i",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.Contains(f.query, "bucket=events") || !strings.Contains(f.query, "org=checkpoint") {
		t.Errorf("write query = %q, want org and bucket", f.query)
	}
}

func TestRecordWithDefaultTags(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.Tags = map[string]string{"site": "warehouse-a"}

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.RecordPresence("reader-01", false)
	client.Flush()

	got := f.waitLines(t, 1)
	if want := "presence,device_id=reader-01,site=warehouse-a online=false"; got[0] != want {
		t.Errorf("line = %q, want %q", got[0], want)
	}
}

func TestConnect_CancelledContext(t *testing.T) {
	f := newFakeInflux(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := influxdb.Connect(ctx, f.config())
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestRecordAfterCloseIsDropped(t *testing.T) {
	client, f := connectFake(t)
	_ = client.Close()

	client.RecordPresence("reader-02", false)
	client.Flush()
	time.Sleep(50 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lines) != 0 {
		t.Errorf("points written after Close(): %v", f.lines)
	}
}

func TestWriteErrorCallback(t *testing.T) {
	client, f := connectFake(t)
	f.mu.Lock()
	f.failWrite = true
	f.mu.Unlock()

	errs := make(chan error, 4)
	client.SetOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	client.RecordCommand("readers", "")
	client.Flush()

	select {
	case err := <-errs:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("error callback not invoked")
	}
}
