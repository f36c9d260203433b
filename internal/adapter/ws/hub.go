// Package ws serves the per-space websocket feed of space edits.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/middleware"
	"github.com/Strob0t/spacegate/internal/port/broadcast"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Gate loads the current state of spaceID and returns the check deciding
// which identities may receive its events. It runs at upgrade and again
// before every broadcast, so revoked rights take effect on the next event.
type Gate func(ctx context.Context, spaceID string) (func(*identity.Identity) bool, error)

type conn struct {
	ws      *websocket.Conn
	spaceID string
	id      *identity.Identity
	cancel  context.CancelFunc
	revoked atomic.Bool
}

// Hub tracks open connections per space and fans messages out to them.
type Hub struct {
	mu             sync.RWMutex
	conns          map[*conn]struct{}
	gate           Gate
	originPatterns []string
}

var _ broadcast.Broadcaster = (*Hub)(nil)

// NewHub creates a hub accepting upgrades from the given origin patterns
// (see websocket.AcceptOptions). Same-origin requests are always accepted.
// A nil gate admits every connection.
func NewHub(gate Gate, originPatterns ...string) *Hub {
	return &Hub{conns: make(map[*conn]struct{}), gate: gate, originPatterns: originPatterns}
}

// ServeHTTP upgrades the request and subscribes it to the space resolved
// earlier in the middleware chain. It blocks until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sp := middleware.SpaceFromContext(r.Context())
	if sp == nil {
		http.Error(w, `{"error":"space not resolved"}`, http.StatusInternalServerError)
		return
	}

	id := identity.FromContext(r.Context())
	if h.gate != nil {
		allow, err := h.gate(r.Context(), sp.ID)
		if err != nil {
			slog.WarnContext(r.Context(), "websocket gate failed", "space_id", sp.ID, "error", err)
			http.Error(w, `{"error":"service unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		if !allow(id) {
			http.Error(w, `{"error":"space admin rights required"}`, http.StatusForbidden)
			return
		}
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.WarnContext(r.Context(), "websocket accept failed", "error", err)
		return
	}

	// CloseRead discards client frames and cancels ctx once the peer goes away.
	ctx, cancel := context.WithCancel(wsConn.CloseRead(r.Context()))
	c := &conn{ws: wsConn, spaceID: sp.ID, id: id, cancel: cancel}
	h.add(c)
	slog.InfoContext(ctx, "websocket connected", "remote", r.RemoteAddr)

	<-ctx.Done()
	h.remove(c)
	if c.revoked.Load() {
		_ = wsConn.Close(websocket.StatusPolicyViolation, "access revoked")
		return
	}
	_ = wsConn.Close(websocket.StatusNormalClosure, "")
}

// BroadcastToSpace sends eventType with payload to every client of spaceID
// that still passes the gate. Clients that no longer pass are disconnected.
// When the gate cannot be evaluated nothing is sent.
func (h *Hub) BroadcastToSpace(ctx context.Context, spaceID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal ws event payload", "type", eventType, "error", err)
		return
	}
	msg, err := json.Marshal(Message{Type: eventType, Payload: data})
	if err != nil {
		slog.ErrorContext(ctx, "marshal ws message", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		if c.spaceID == spaceID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	var allow func(*identity.Identity) bool
	if h.gate != nil {
		allow, err = h.gate(ctx, spaceID)
		if err != nil {
			slog.WarnContext(ctx, "websocket gate failed, event dropped", "space_id", spaceID, "type", eventType, "error", err)
			return
		}
	}

	for _, c := range targets {
		if allow != nil && !allow(c.id) {
			slog.InfoContext(ctx, "websocket access revoked", "space_id", spaceID)
			c.revoked.Store(true)
			h.remove(c)
			continue
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		err := c.ws.Write(wctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			slog.DebugContext(ctx, "websocket write failed", "space_id", spaceID, "error", err)
			h.remove(c)
		}
	}
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*conn]struct{})
	h.mu.Unlock()
	for c := range conns {
		c.cancel()
		_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
	}
}
