// Package memory implements the directory ports in process memory. It backs
// local development, tests, and the "memory" directory backend.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/spacegate/internal/domain"
	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/domain/user"
)

// Directory is a concurrency-safe in-memory space directory and user store.
// Values are copied on the way in and out so callers never share state.
type Directory struct {
	mu       sync.RWMutex
	spaces   map[string]*space.Space
	byDomain map[string]string
	users    map[string]*user.User // key: normalized username
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		spaces:   make(map[string]*space.Space),
		byDomain: make(map[string]string),
		users:    make(map[string]*user.User),
	}
}

func (d *Directory) GetSpace(_ context.Context, id string) (*space.Space, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.spaces[id]
	if !ok {
		return nil, fmt.Errorf("get space %s: %w", id, domain.ErrNotFound)
	}
	return clone(s), nil
}

func (d *Directory) GetSpaceByDomain(_ context.Context, host string) (*space.Space, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byDomain[space.NormalizeDomain(host)]
	if !ok {
		return nil, fmt.Errorf("get space by domain %s: %w", host, domain.ErrNotFound)
	}
	return clone(d.spaces[id]), nil
}

func (d *Directory) ListSpaces(_ context.Context, includeArchived bool) ([]space.Space, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]space.Space, 0, len(d.spaces))
	for _, s := range d.spaces {
		if s.Archived && !includeArchived {
			continue
		}
		out = append(out, *clone(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (d *Directory) CreateSpace(_ context.Context, s *space.Space) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.spaces[s.ID]; ok {
		return fmt.Errorf("create space %s: %w", s.ID, domain.ErrConflict)
	}
	if err := d.checkDomains(s); err != nil {
		return fmt.Errorf("create space %s: %w", s.ID, err)
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	d.put(s)
	return nil
}

func (d *Directory) UpdateSpace(_ context.Context, s *space.Space) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	old, ok := d.spaces[s.ID]
	if !ok {
		return fmt.Errorf("update space %s: %w", s.ID, domain.ErrNotFound)
	}
	if err := d.checkDomains(s); err != nil {
		return fmt.Errorf("update space %s: %w", s.ID, err)
	}
	for _, dom := range old.Domains {
		delete(d.byDomain, dom)
	}
	s.CreatedAt = old.CreatedAt
	s.UpdatedAt = time.Now().UTC()
	d.put(s)
	return nil
}

func (d *Directory) Ping(context.Context) error { return nil }

// checkDomains rejects domains owned by a different space. Caller holds mu.
func (d *Directory) checkDomains(s *space.Space) error {
	for _, dom := range s.Domains {
		if owner, ok := d.byDomain[dom]; ok && owner != s.ID {
			return fmt.Errorf("domain %s already registered: %w", dom, domain.ErrConflict)
		}
	}
	return nil
}

// put stores a copy of s and indexes its domains. Caller holds mu.
func (d *Directory) put(s *space.Space) {
	c := clone(s)
	d.spaces[c.ID] = c
	for _, dom := range c.Domains {
		d.byDomain[dom] = c.ID
	}
}

// --- Users ---

// Usernames are unique across spaces.
func userKey(username string) string {
	return space.NormalizeUsername(username)
}

func (d *Directory) CreateUser(_ context.Context, u *user.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := userKey(u.Username)
	if _, ok := d.users[key]; ok {
		return fmt.Errorf("create user %s: %w", u.Username, domain.ErrConflict)
	}
	u.CreatedAt = time.Now().UTC()
	cp := *u
	d.users[key] = &cp
	return nil
}

func (d *Directory) GetUserByUsername(_ context.Context, spaceID, username string) (*user.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userKey(username)]
	if !ok || u.SpaceID != spaceID {
		return nil, fmt.Errorf("get user %s: %w", username, domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (d *Directory) ListUsers(_ context.Context, spaceID string) ([]user.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []user.User
	for _, u := range d.users {
		if u.SpaceID == spaceID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func clone(s *space.Space) *space.Space {
	c := *s
	c.Domains = slices.Clone(s.Domains)
	c.AdminUsernames = slices.Clone(s.AdminUsernames)
	c.AdminUserIDs = slices.Clone(s.AdminUserIDs)
	c.Features = slices.Clone(s.Features)
	c.Config = slices.Clone(s.Config)
	return &c
}
