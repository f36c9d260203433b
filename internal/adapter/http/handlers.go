package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/spacegate/internal/service"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the services the HTTP surface calls into.
type Handlers struct {
	Spaces    *service.SpaceService
	Resolver  *service.HostResolver
	Sessions  *service.SessionService
	Auth      *service.AuthService
	Directory Pinger
	// Events serves the per-space websocket feed. Nil disables the route.
	Events    http.Handler
	BodyLimit int64
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready. It fails while the directory is unreachable.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Directory.Ping(ctx); err != nil {
		slog.WarnContext(ctx, "readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
