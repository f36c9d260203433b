package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Strob0t/spacegate/internal/adapter/memory"
	sgotel "github.com/Strob0t/spacegate/internal/adapter/otel"
	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/port/directory"
)

func newTestMetrics(t *testing.T) *sgotel.Metrics {
	t.Helper()
	m, err := sgotel.NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// seedDirectory returns a memory directory holding the spaces used across tests.
func seedDirectory(t *testing.T) *memory.Directory {
	t.Helper()
	dir := memory.NewDirectory()
	ctx := context.Background()
	for _, s := range []*space.Space{
		{ID: "default", Name: "Default", Creator: "owner@example.com"},
		{ID: "t1", Name: "Tenant One", Domains: []string{"app.example.com"}, AdminUsernames: []string{"alice"}, Creator: "owner@example.com"},
		{ID: "old", Name: "Archived", Domains: []string{"old.example.com"}, Creator: "owner@example.com", Archived: true},
	} {
		s.Normalize()
		if err := dir.CreateSpace(ctx, s); err != nil {
			t.Fatalf("seed %s: %v", s.ID, err)
		}
	}
	return dir
}

var errDirectoryDown = errors.New("connection refused")

// failingDirectory fails every read until healed.
type failingDirectory struct {
	directory.Directory

	mu     sync.Mutex
	calls  int
	healed bool
}

func (f *failingDirectory) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.healed {
		return nil
	}
	return errDirectoryDown
}

func (f *failingDirectory) GetSpace(ctx context.Context, id string) (*space.Space, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Directory.GetSpace(ctx, id)
}

func (f *failingDirectory) GetSpaceByDomain(ctx context.Context, host string) (*space.Space, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Directory.GetSpaceByDomain(ctx, host)
}

func (f *failingDirectory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingHub captures broadcasts.
type recordingHub struct {
	mu     sync.Mutex
	events []hubEvent
}

type hubEvent struct {
	spaceID   string
	eventType string
}

func (h *recordingHub) BroadcastToSpace(_ context.Context, spaceID, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, hubEvent{spaceID: spaceID, eventType: eventType})
}

func (h *recordingHub) snapshot() []hubEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hubEvent(nil), h.events...)
}
