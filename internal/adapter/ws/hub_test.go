package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/middleware"
)

// serve mounts hub behind a stub that resolves the space from ?space= and
// the caller from ?user=.
func serve(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.WithSpace(r.Context(), &space.Space{ID: r.URL.Query().Get("space")})
		if u := r.URL.Query().Get("user"); u != "" {
			ctx = identity.WithIdentity(ctx, &identity.Identity{UserID: u, Username: u})
		}
		hub.ServeHTTP(w, r.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, spaceID string) *websocket.Conn {
	t.Helper()
	return dialAs(t, srv, spaceID, "")
}

func dialAs(t *testing.T, srv *httptest.Server, spaceID, username string) *websocket.Conn {
	t.Helper()
	c, _, err := tryDial(srv, spaceID, username)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func tryDial(srv *httptest.Server, spaceID, username string) (*websocket.Conn, *http.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?space=" + spaceID + "&user=" + username
	return websocket.Dial(ctx, url, nil)
}

// adminGate admits only the named user while admitted is set.
func adminGate(username string, admitted *atomic.Bool) Gate {
	return func(context.Context, string) (func(*identity.Identity) bool, error) {
		ok := admitted.Load()
		return func(id *identity.Identity) bool {
			return ok && id != nil && id.Username == username
		}, nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub(nil)
	hub.BroadcastToSpace(context.Background(), "t1", "space.updated", map[string]string{"k": "v"})
}

func TestHubBroadcastMarshalError(t *testing.T) {
	hub := NewHub(nil)
	// A channel cannot be marshaled to JSON; this must log, not panic.
	hub.BroadcastToSpace(context.Background(), "t1", "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub(nil)
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub.remove(&conn{cancel: cancel, spaceID: "t1"})
}

func TestHubDeliversOnlyToSpace(t *testing.T) {
	hub := NewHub(nil)
	srv := serve(t, hub)

	c1 := dial(t, srv, "t1")
	c2 := dial(t, srv, "t2")
	waitFor(t, func() bool { return hub.ConnectionCount() == 2 })

	hub.BroadcastToSpace(context.Background(), "t1", "space.admin_added", map[string]string{"space_id": "t1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := c1.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "space.admin_added" {
		t.Errorf("type = %q", msg.Type)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelShort()
	if _, _, err := c2.Read(short); err == nil {
		t.Error("client of another space received the event")
	}
}

func TestHubRemovesClosedClients(t *testing.T) {
	hub := NewHub(nil)
	srv := serve(t, hub)

	c := dial(t, srv, "t1")
	waitFor(t, func() bool { return hub.ConnectionCount() == 1 })

	_ = c.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, func() bool { return hub.ConnectionCount() == 0 })
}

func TestHubGateRejectsUpgrade(t *testing.T) {
	var admitted atomic.Bool
	admitted.Store(true)
	hub := NewHub(adminGate("alice", &admitted))
	srv := serve(t, hub)

	for _, user := range []string{"", "mallory"} {
		c, resp, err := tryDial(srv, "t1", user)
		if err == nil {
			_ = c.CloseNow()
			t.Fatalf("user %q: expected upgrade to be refused", user)
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("user %q: response = %v, want 403", user, resp)
		}
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubDisconnectsRevokedClients(t *testing.T) {
	var admitted atomic.Bool
	admitted.Store(true)
	hub := NewHub(adminGate("alice", &admitted))
	srv := serve(t, hub)

	c := dialAs(t, srv, "t1", "alice")
	waitFor(t, func() bool { return hub.ConnectionCount() == 1 })

	hub.BroadcastToSpace(context.Background(), "t1", "space.updated", map[string]string{"space_id": "t1"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := c.Read(ctx); err != nil {
		t.Fatalf("read while admitted: %v", err)
	}

	// alice loses admin rights; the next event must not reach the client
	admitted.Store(false)
	hub.BroadcastToSpace(context.Background(), "t1", "space.admin_removed", map[string]string{"space_id": "t1"})

	_, data, err := c.Read(ctx)
	if err == nil {
		t.Fatalf("revoked client received %s", data)
	}
	if code := websocket.CloseStatus(err); code != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v, want %v (err %v)", code, websocket.StatusPolicyViolation, err)
	}
	waitFor(t, func() bool { return hub.ConnectionCount() == 0 })
}

func TestHubGateErrorDropsEvent(t *testing.T) {
	var failing atomic.Bool
	hub := NewHub(func(context.Context, string) (func(*identity.Identity) bool, error) {
		if failing.Load() {
			return nil, errors.New("directory unavailable")
		}
		return func(*identity.Identity) bool { return true }, nil
	})
	srv := serve(t, hub)

	c := dialAs(t, srv, "t1", "alice")
	waitFor(t, func() bool { return hub.ConnectionCount() == 1 })

	failing.Store(true)
	hub.BroadcastToSpace(context.Background(), "t1", "space.updated", map[string]string{"space_id": "t1"})

	short, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, data, err := c.Read(short); err == nil {
		t.Fatalf("event delivered without a gate decision: %s", data)
	}
}
