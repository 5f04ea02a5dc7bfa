package bridge

import "github.com/prohidna/checkpoint-bridge/internal/infrastructure/mqtt"

// PresenceEvent is broadcast on EventPresenceChanged.
type PresenceEvent struct {
	ReaderID string   `json:"reader_id"`
	Online   bool     `json:"online"`
	Readers  []string `json:"readers"`
}

// BroadcastEvent is broadcast on EventBroadcastSent.
type BroadcastEvent struct {
	Topic      string `json:"topic"`
	Payload    string `json:"payload"`
	Recipients int    `json:"recipients"`
	Failed     int    `json:"failed"`
}

// CommandEvent is broadcast on EventCommandPublished.
type CommandEvent struct {
	Kind  string `json:"kind"`
	Topic string `json:"topic"`
}

// Metrics contains counters for the API metrics endpoint.
type Metrics struct {
	State             mqtt.State `json:"state"`
	MessagesReceived  uint64     `json:"messages_received"`
	PresenceEvents    uint64     `json:"presence_events"`
	Broadcasts        uint64     `json:"broadcasts"`
	DeliveryFailures  uint64     `json:"delivery_failures"`
	CommandsPublished uint64     `json:"commands_published"`
	ReadersOnline     int        `json:"readers_online"`
}

// Metrics returns a snapshot of the bridge counters.
func (b *Bridge) Metrics() Metrics {
	return Metrics{
		State:             b.State(),
		MessagesReceived:  b.received.Load(),
		PresenceEvents:    b.presenceEvents.Load(),
		Broadcasts:        b.broadcasts.Load(),
		DeliveryFailures:  b.deliveryFailures.Load(),
		CommandsPublished: b.commandsPublished.Load(),
		ReadersOnline:     b.presence.Count(),
	}
}
