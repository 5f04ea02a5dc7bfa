package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/prohidna/checkpoint-bridge/internal/bridge"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/config"
	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/logging"
)

// Message types exchanged with feed clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// EventPresenceSnapshot carries the readers online at the moment a client
// subscribes to presence.changed. It is sent to that client only.
const EventPresenceSnapshot = "presence.snapshot"

// wsSendBufferSize bounds each client's outbound queue. A client that falls
// this far behind loses events rather than stalling the bridge.
const wsSendBufferSize = 256

// Keepalive defaults, used when the configured values are not positive.
const (
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 8192
)

// Channels lists the event channels a client may subscribe to.
var Channels = []string{
	bridge.EventPresenceChanged,
	bridge.EventBroadcastSent,
	bridge.EventCommandPublished,
}

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is read-only and binds to loopback by default.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans bridge events out to feed clients. It implements
// bridge.EventBroadcaster. Its config sets every client's keepalive.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Whoever removes the client from the map
// closes its send channel, so disconnect and shutdown never both close it.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, present := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if present {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast queues an event for every client subscribed to channel. The
// client set is copied under the lock and sent to outside it.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		if client.isSubscribed(channel) {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.trySend(data)
	}
	if len(targets) > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", len(targets))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WSClient is one connected feed client.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}

	// readers, if set, supplies the presence snapshot.
	readers func() []string
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		readers:       s.bridge.Readers,
	}
	s.hub.Register(client)

	ping, pong, limit := keepalive(s.hub.cfg)
	go client.writeLoop(ping, pong)
	go client.readLoop(limit, ping+pong)
}

// keepalive converts the feed settings to durations. Non-positive values
// fall back to the defaults; a zero ping interval would panic the ticker.
func keepalive(cfg config.WebSocketConfig) (ping, pong time.Duration, limit int64) {
	ping, pong, limit = defaultPingInterval, defaultPongTimeout, defaultMaxMessageSize
	if cfg.PingInterval > 0 {
		ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		pong = time.Duration(cfg.PongTimeout) * time.Second
	}
	if cfg.MaxMessageSize > 0 {
		limit = int64(cfg.MaxMessageSize)
	}
	return ping, pong, limit
}

// readLoop handles client frames until the connection fails or goes quiet
// for longer than idle. Pongs and any client frame count as activity.
func (c *WSClient) readLoop(limit int64, idle time.Duration) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }
	c.conn.SetReadLimit(limit)
	//nolint:errcheck // a failed deadline surfaces as a read error
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces as a read error
		extend()
		c.handleFrame(data)
	}
}

// writeLoop drains the send queue and pings every interval. It exits when
// the queue is closed or a write fails.
func (c *WSClient) writeLoop(interval, writeWait time.Duration) {
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // a failed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // connection is closing anyway
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleFrame(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, errorPayload("unknown message type: "+msg.Type))
	}
}

// channelsFrom re-decodes the generic payload as a channel list.
func channelsFrom(payload any) ([]string, bool) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, false
	}
	return sub.Channels, true
}

// subscribe adds known channels and reports unknown ones back.
func (c *WSClient) subscribe(msg WSMessage) {
	channels, ok := channelsFrom(msg.Payload)
	if !ok {
		c.reply(msg.ID, WSTypeError, errorPayload("invalid subscribe payload"))
		return
	}

	subscribed := []string{}
	var unknown []string
	c.mu.Lock()
	for _, ch := range channels {
		if slices.Contains(Channels, ch) {
			c.subscriptions[ch] = struct{}{}
			subscribed = append(subscribed, ch)
		} else {
			unknown = append(unknown, ch)
		}
	}
	c.mu.Unlock()

	resp := map[string]any{"subscribed": subscribed}
	if len(unknown) > 0 {
		resp["unknown"] = unknown
	}
	c.reply(msg.ID, WSTypeResponse, resp)

	if c.readers != nil && slices.Contains(subscribed, bridge.EventPresenceChanged) {
		c.sendPresenceSnapshot()
	}
}

func (c *WSClient) unsubscribe(msg WSMessage) {
	channels, ok := channelsFrom(msg.Payload)
	if !ok {
		c.reply(msg.ID, WSTypeError, errorPayload("invalid unsubscribe payload"))
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()

	c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})
}

// sendPresenceSnapshot gives a new presence subscriber the current set so it
// need not wait for the next transition.
func (c *WSClient) sendPresenceSnapshot() {
	readers := c.readers()
	if readers == nil {
		readers = []string{}
	}
	data, err := encodeFrame(WSMessage{
		Type:      WSTypeEvent,
		EventType: EventPresenceSnapshot,
		Payload:   map[string]any{"readers": readers, "count": len(readers)},
	})
	if err == nil {
		c.trySend(data)
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := encodeFrame(WSMessage{Type: msgType, ID: id, Payload: payload})
	if err == nil {
		c.trySend(data)
	}
}

// trySend queues data without blocking. A full queue (slow client) or a
// closed one (client gone mid-broadcast) drops the frame.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on a channel closed by Unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}

// encodeFrame stamps msg with the current time and marshals it.
func encodeFrame(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}
