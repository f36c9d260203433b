package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/spacegate/internal/adapter/memory"
	"github.com/Strob0t/spacegate/internal/domain"
	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/domain/user"
)

func TestDirectory_SpaceLifecycle(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()

	s := &space.Space{ID: "t1", Name: "Academy", Domains: []string{"app.example.com"}, Creator: "alice"}
	if err := d.CreateSpace(ctx, s); err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	if s.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := d.GetSpaceByDomain(ctx, "App.Example.com:443")
	if err != nil {
		t.Fatalf("GetSpaceByDomain: %v", err)
	}
	if got.ID != "t1" {
		t.Fatalf("expected t1, got %s", got.ID)
	}

	// Mutating a returned copy must not leak into the store.
	got.AdminUsernames = append(got.AdminUsernames, "mallory")
	again, _ := d.GetSpace(ctx, "t1")
	if len(again.AdminUsernames) != 0 {
		t.Fatalf("store was mutated through a returned value: %v", again.AdminUsernames)
	}

	again.Domains = []string{"new.example.com"}
	if err := d.UpdateSpace(ctx, again); err != nil {
		t.Fatalf("UpdateSpace: %v", err)
	}
	if _, err := d.GetSpaceByDomain(ctx, "app.example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("old domain should be released, got %v", err)
	}
	if _, err := d.GetSpaceByDomain(ctx, "new.example.com"); err != nil {
		t.Fatalf("new domain should resolve: %v", err)
	}
}

func TestDirectory_DomainUniqueness(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()

	if err := d.CreateSpace(ctx, &space.Space{ID: "a", Domains: []string{"x.test"}}); err != nil {
		t.Fatal(err)
	}
	err := d.CreateSpace(ctx, &space.Space{ID: "b", Domains: []string{"x.test"}})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := d.CreateSpace(ctx, &space.Space{ID: "a"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate id, got %v", err)
	}
	if err := d.UpdateSpace(ctx, &space.Space{ID: "missing"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectory_ListSkipsArchived(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()
	_ = d.CreateSpace(ctx, &space.Space{ID: "live"})
	_ = d.CreateSpace(ctx, &space.Space{ID: "gone", Archived: true})

	active, _ := d.ListSpaces(ctx, false)
	if len(active) != 1 || active[0].ID != "live" {
		t.Fatalf("expected only live space, got %v", active)
	}
	all, _ := d.ListSpaces(ctx, true)
	if len(all) != 2 {
		t.Fatalf("expected 2 spaces, got %d", len(all))
	}
}

func TestDirectory_Users(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDirectory()

	u := &user.User{ID: "u1", Username: "alice", SpaceID: "t1", PasswordHash: "h"}
	if err := d.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if err := d.CreateUser(ctx, &user.User{ID: "u2", Username: "Alice", SpaceID: "t1"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, err := d.GetUserByUsername(ctx, "t1", "ALICE")
	if err != nil || got.ID != "u1" {
		t.Fatalf("GetUserByUsername = %v, %v", got, err)
	}
	if _, err := d.GetUserByUsername(ctx, "t2", "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("users must be scoped to their space, got %v", err)
	}
	if err := d.CreateUser(ctx, &user.User{ID: "u3", Username: "alice", SpaceID: "t2"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("username taken in another space: expected ErrConflict, got %v", err)
	}
	list, _ := d.ListUsers(ctx, "t1")
	if len(list) != 1 {
		t.Fatalf("expected 1 user, got %d", len(list))
	}
}
