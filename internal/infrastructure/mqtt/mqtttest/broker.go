// Package mqtttest runs an in-process MQTT broker for tests.
package mqtttest

import (
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/config"
)

// Message is a publish observed by the broker's inline client.
type Message struct {
	Topic   string
	Payload string
}

// Broker is a mochi-mqtt server listening on a loopback port.
type Broker struct {
	server *mochi.Server
	host   string
	port   int

	closeOnce sync.Once
}

// Start launches a broker on a free loopback port. It is closed on test cleanup.
func Start(t *testing.T) *Broker {
	t.Helper()

	addr := reserveTCPAddr(t)
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       slog.New(slog.DiscardHandler),
	})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("AddHook: %v", err)
	}
	if err := server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "t1",
		Address: addr,
	})); err != nil {
		t.Fatalf("AddListener: %v", err)
	}

	go func() {
		_ = server.Serve()
	}()

	waitForListener(t, addr)

	b := &Broker{server: server, host: host, port: port}
	t.Cleanup(b.Close)
	return b
}

// Config returns an MQTT client configuration pointing at the broker.
func (b *Broker) Config(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     b.host,
			Port:     b.port,
			ClientID: clientID,
		},
		QoS: 1,
		Topics: config.MQTTTopicsConfig{
			Source:  "notifications/#",
			Online:  "online",
			Offline: "offline",
		},
		ConnectTimeout: 2,
	}
}

// Publish injects a message as if a reader had published it.
func (b *Broker) Publish(t *testing.T, topic, payload string) {
	t.Helper()
	if err := b.server.Publish(topic, []byte(payload), false, 0); err != nil {
		t.Fatalf("broker publish %q: %v", topic, err)
	}
}

// Capture subscribes the broker's inline client to filter and returns a channel
// receiving every matching publish.
func (b *Broker) Capture(t *testing.T, filter string) <-chan Message {
	t.Helper()

	received := make(chan Message, 64)
	err := b.server.Subscribe(filter, 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		select {
		case received <- Message{Topic: pk.TopicName, Payload: string(pk.Payload)}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("broker subscribe %q: %v", filter, err)
	}
	return received
}

// Close stops the broker, dropping every client connection.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		_ = b.server.Close()
	})
}

// Expect waits for the next message on ch or fails the test.
func Expect(t *testing.T, ch <-chan Message, timeout time.Duration) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("no message received within %v", timeout)
		return Message{}
	}
}

func reserveTCPAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve listen addr: %v", err)
	}
	addr := l.Addr().String()
	if err := l.Close(); err != nil {
		t.Fatalf("close reserved listener: %v", err)
	}
	return addr
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("broker did not start listening on %s", addr)
}
