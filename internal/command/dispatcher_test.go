package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prohidna/checkpoint-bridge/internal/subscriber"
)

type publication struct {
	topic   string
	payload string
}

// MockPublisher records publications.
type MockPublisher struct {
	mu   sync.Mutex
	sent []publication
	err  error
}

func (m *MockPublisher) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, publication{topic, string(payload)})
	return nil
}

type reply struct {
	to   subscriber.ID
	text string
}

// MockReplier records direct replies.
type MockReplier struct {
	mu      sync.Mutex
	replies []reply
	err     error
}

func (m *MockReplier) SendToOne(_ context.Context, id subscriber.ID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, reply{id, text})
	return m.err
}

type staticPresence []string

func (s staticPresence) Query() []string { return s }

type recordingObserver struct {
	topics []string
}

func (o *recordingObserver) CommandPublished(_ context.Context, _ Command, topic string) {
	o.topics = append(o.topics, topic)
}

func newTestDispatcher(presence []string) (*Dispatcher, *MockPublisher, *MockReplier, *recordingObserver) {
	pub := &MockPublisher{}
	rep := &MockReplier{}
	obs := &recordingObserver{}
	d := NewDispatcher(Options{
		Publisher: pub,
		Presence:  staticPresence(presence),
		Replier:   rep,
		Observer:  obs,
	})
	return d, pub, rep, obs
}

func TestDispatchWhitelistUpdate(t *testing.T) {
	d, pub, rep, obs := newTestDispatcher(nil)

	cmd := d.Dispatch(context.Background(), 1, "/whitelist_update dev1 on")

	if cmd.Kind != KindWhitelistUpdate {
		t.Errorf("Kind = %q, want %q", cmd.Kind, KindWhitelistUpdate)
	}
	if len(pub.sent) != 1 || pub.sent[0] != (publication{"dev1/whitelist/update", "on"}) {
		t.Errorf("published %+v, want dev1/whitelist/update ← on", pub.sent)
	}
	if len(rep.replies) != 0 {
		t.Errorf("unexpected replies %+v", rep.replies)
	}
	if len(obs.topics) != 1 || obs.topics[0] != "dev1/whitelist/update" {
		t.Errorf("observer saw %v", obs.topics)
	}
}

func TestDispatchConfigure(t *testing.T) {
	d, pub, _, _ := newTestDispatcher(nil)

	d.Dispatch(context.Background(), 1, "/configure thresh dev1 5")

	if len(pub.sent) != 1 || pub.sent[0] != (publication{"dev1/configure/thresh", "5"}) {
		t.Errorf("published %+v, want dev1/configure/thresh ← 5", pub.sent)
	}
}

func TestDispatchReset(t *testing.T) {
	d, pub, _, _ := newTestDispatcher(nil)

	d.Dispatch(context.Background(), 1, "/reset dev1")

	if len(pub.sent) != 1 || pub.sent[0] != (publication{"dev1/reset", "dev1"}) {
		t.Errorf("published %+v, want dev1/reset ← dev1", pub.sent)
	}
}

func TestDispatchReaders(t *testing.T) {
	d, pub, rep, _ := newTestDispatcher([]string{"r1", "r2"})

	d.Dispatch(context.Background(), 77, "/readers")

	if len(pub.sent) != 0 {
		t.Errorf("unexpected publications %+v", pub.sent)
	}
	if len(rep.replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(rep.replies))
	}
	r := rep.replies[0]
	if r.to != 77 {
		t.Errorf("reply sent to %d, want 77", r.to)
	}
	if r.text != "r1\nr2\n"+ReadersEnd {
		t.Errorf("reply = %q", r.text)
	}
}

func TestDispatchHelp(t *testing.T) {
	d, _, rep, _ := newTestDispatcher(nil)

	d.Dispatch(context.Background(), 5, "/start")

	if len(rep.replies) != 1 || rep.replies[0].text != Usage {
		t.Errorf("replies = %+v, want usage text", rep.replies)
	}
}

func TestDispatchNoEffect(t *testing.T) {
	inputs := []string{
		"/whitelist_update dev1",
		"/configure thresh dev1",
		"/reset",
		"hello",
		"/unknown a b c",
		"",
	}

	for _, text := range inputs {
		t.Run(text, func(t *testing.T) {
			d, pub, rep, obs := newTestDispatcher([]string{"r1"})

			d.Dispatch(context.Background(), 1, text)

			if len(pub.sent) != 0 || len(rep.replies) != 0 || len(obs.topics) != 0 {
				t.Errorf("Dispatch(%q) had side effects: pub=%v replies=%v observed=%v",
					text, pub.sent, rep.replies, obs.topics)
			}
		})
	}
}

func TestDispatchPublishFailureIsSwallowed(t *testing.T) {
	d, pub, _, obs := newTestDispatcher(nil)
	pub.err = errors.New("not connected")

	cmd := d.Dispatch(context.Background(), 1, "/reset dev1")

	if cmd.Kind != KindReset {
		t.Errorf("Kind = %q, want %q", cmd.Kind, KindReset)
	}
	if len(obs.topics) != 0 {
		t.Error("observer notified of a failed publish")
	}
}

func TestDispatchReplyFailureIsSwallowed(t *testing.T) {
	d, _, rep, _ := newTestDispatcher([]string{"r1"})
	rep.err = errors.New("chat not found")

	if cmd := d.Dispatch(context.Background(), 1, "/readers"); cmd.Kind != KindReaders {
		t.Errorf("Kind = %q, want %q", cmd.Kind, KindReaders)
	}
}
