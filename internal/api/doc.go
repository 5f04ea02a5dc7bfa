// Package api implements the operations HTTP API and WebSocket event feed
// of the checkpoint bridge.
//
// Endpoints (all under /api/v1):
//   - GET /health: broker state plus optional dependency probes; 503 when degraded
//   - GET /readers: readers currently online
//   - GET /subscribers: number of registered chats
//   - GET /metrics: bridge counters and Go runtime statistics
//   - GET /ws: WebSocket; clients subscribe to presence.changed,
//     broadcast.sent and command.published; subscribing to presence.changed
//     first delivers a presence.snapshot of the readers online now
//
// The API is read-only and unauthenticated. It binds to loopback by default
// and is disabled unless api.enabled is set.
//
// Lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
