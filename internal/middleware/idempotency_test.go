package middleware_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/middleware"
)

// mapCache is an in-memory cache.Cache for tests.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mapCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func countingHandler(counter *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*counter++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, *counter)
	})
}

func post(h http.Handler, key, username string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/spaces", http.NoBody)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if username != "" {
		req = req.WithContext(identity.WithIdentity(req.Context(), &identity.Identity{Username: username}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_NoHeader(t *testing.T) {
	counter := 0
	store := newMapCache()
	h := middleware.Idempotency(store, time.Hour)(countingHandler(&counter, http.StatusCreated))

	post(h, "", "root")
	post(h, "", "root")

	if counter != 2 {
		t.Fatalf("expected 2 calls, got %d", counter)
	}
	if store.len() != 0 {
		t.Error("nothing should be stored without a key")
	}
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	counter := 0
	h := middleware.Idempotency(newMapCache(), time.Hour)(countingHandler(&counter, http.StatusCreated))

	first := post(h, "key-1", "root")
	second := post(h, "key-1", "root")

	if counter != 1 {
		t.Fatalf("expected 1 call, got %d", counter)
	}
	if second.Code != http.StatusCreated {
		t.Errorf("replayed status = %d, want 201", second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("replayed body %q differs from %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("expected Idempotent-Replayed header")
	}
}

func TestIdempotency_ScopedPerCaller(t *testing.T) {
	counter := 0
	h := middleware.Idempotency(newMapCache(), time.Hour)(countingHandler(&counter, http.StatusCreated))

	post(h, "same", "alice")
	post(h, "same", "bob")

	if counter != 2 {
		t.Fatalf("expected 2 calls, got %d", counter)
	}
}

func TestIdempotency_FailuresNotStored(t *testing.T) {
	counter := 0
	store := newMapCache()
	h := middleware.Idempotency(store, time.Hour)(countingHandler(&counter, http.StatusConflict))

	post(h, "key-1", "root")
	post(h, "key-1", "root")

	if counter != 2 {
		t.Fatalf("expected a retry after failure, got %d calls", counter)
	}
	if store.len() != 0 {
		t.Error("failed responses must not be stored")
	}
}

func TestIdempotency_SkipsSafeMethodsAndLongKeys(t *testing.T) {
	counter := 0
	store := newMapCache()
	h := middleware.Idempotency(store, time.Hour)(countingHandler(&counter, http.StatusOK))

	req := httptest.NewRequest(http.MethodGet, "/api/spaces", http.NoBody)
	req.Header.Set("Idempotency-Key", "k")
	h.ServeHTTP(httptest.NewRecorder(), req)

	post(h, strings.Repeat("k", 200), "root")

	if store.len() != 0 {
		t.Errorf("expected nothing stored, got %d entries", store.len())
	}
}
