package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prohidna/checkpoint-bridge/internal/infrastructure/mqtt"
)

// healthCheckTimeout bounds each dependency probe in /health.
const healthCheckTimeout = 3 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readers", s.handleReaders)
		r.Get("/subscribers", s.handleSubscribers)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Broker  mqtt.State        `json:"broker"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleHealth reports 200 when the broker connection is up and every
// configured dependency answers, 503 otherwise. The broker is fail-stop, so
// a lost connection stays unhealthy until the process is restarted.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Broker:  s.bridge.State(),
	}
	if resp.Broker != mqtt.StateConnected {
		resp.Status = "degraded"
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for _, name := range s.checkNames() {
			check := s.checks[name]
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleReaders returns the readers currently online, in arrival order.
func (s *Server) handleReaders(w http.ResponseWriter, _ *http.Request) {
	readers := s.bridge.Readers()
	if readers == nil {
		readers = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"readers": readers,
		"count":   len(readers),
	})
}

// handleSubscribers returns the number of registered chats. Chat ids are
// not exposed.
func (s *Server) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	n, err := s.subscribers.Count(r.Context())
	if err != nil {
		s.logger.Error("counting subscribers failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "subscriber registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// checkNames returns the configured health check names, sorted.
func (s *Server) checkNames() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
