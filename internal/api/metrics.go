package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prohidna/checkpoint-bridge/internal/bridge"
)

// MetricsResponse is returned by GET /api/v1/metrics.
type MetricsResponse struct {
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`

	Bridge bridge.Metrics `json:"bridge"`

	// Subscribers is omitted when the registry cannot be read.
	Subscribers *int `json:"subscribers,omitempty"`

	WebSocketClients int            `json:"websocket_clients"`
	Process          ProcessMetrics `json:"process"`
}

// ProcessMetrics is a small subset of Go runtime statistics.
type ProcessMetrics struct {
	Goroutines     int    `json:"goroutines"`
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	GCCycles       uint32 `json:"gc_cycles"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := MetricsResponse{
		Version:   s.version,
		StartedAt: s.startTime.UTC(),
		Uptime:    time.Since(s.startTime).Truncate(time.Second).String(),
		Bridge:    s.bridge.Metrics(),
		Process: ProcessMetrics{
			Goroutines:     runtime.NumGoroutine(),
			HeapAllocBytes: mem.HeapAlloc,
			SysBytes:       mem.Sys,
			GCCycles:       mem.NumGC,
		},
	}
	if s.hub != nil {
		resp.WebSocketClients = s.hub.ClientCount()
	}

	if n, err := s.subscribers.Count(r.Context()); err == nil {
		resp.Subscribers = &n
	} else {
		s.logger.Warn("metrics: counting subscribers failed", "error", err)
	}

	writeJSON(w, http.StatusOK, resp)
}
