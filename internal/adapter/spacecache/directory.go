package spacecache

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/port/cache"
	"github.com/Strob0t/spacegate/internal/port/directory"
)

// Directory decorates a directory.Directory with a read-through cache for
// GetSpace and GetSpaceByDomain. Writes go straight to the inner directory
// and evict every key the space was or is reachable under before returning,
// so a caller's next read observes its own edit. Misses are never cached.
type Directory struct {
	inner directory.Directory
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
	// gen advances on every eviction; a fill started under an older
	// generation is discarded instead of stored.
	gen atomic.Uint64
}

var _ directory.Directory = (*Directory)(nil)

// NewDirectory wraps inner with c. Entries live for at most ttl.
func NewDirectory(inner directory.Directory, c cache.Cache, ttl time.Duration) *Directory {
	return &Directory{inner: inner, cache: c, ttl: ttl}
}

func idKey(id string) string       { return "space:id:" + id }
func domainKey(host string) string { return "space:domain:" + host }

func (d *Directory) GetSpace(ctx context.Context, id string) (*space.Space, error) {
	return d.read(ctx, idKey(id), func() (*space.Space, error) {
		return d.inner.GetSpace(ctx, id)
	})
}

func (d *Directory) GetSpaceByDomain(ctx context.Context, host string) (*space.Space, error) {
	h := space.NormalizeDomain(host)
	return d.read(ctx, domainKey(h), func() (*space.Space, error) {
		return d.inner.GetSpaceByDomain(ctx, h)
	})
}

// read serves key from cache or loads it once for all concurrent callers.
// Cache failures degrade to a direct read.
func (d *Directory) read(ctx context.Context, key string, load func() (*space.Space, error)) (*space.Space, error) {
	if data, ok, err := d.cache.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "space cache get failed", "key", key, "error", err)
	} else if ok {
		var s space.Space
		if err := json.Unmarshal(data, &s); err == nil {
			return &s, nil
		}
		_ = d.cache.Delete(ctx, key)
	}

	gen := d.gen.Load()
	v, err, _ := d.group.Do(key, func() (any, error) {
		s, err := load()
		if err != nil {
			return nil, err
		}
		if data, mErr := json.Marshal(s); mErr == nil && d.gen.Load() == gen {
			if sErr := d.cache.Set(ctx, key, data, d.ttl); sErr != nil {
				slog.WarnContext(ctx, "space cache set failed", "key", key, "error", sErr)
			}
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	// Hand each caller its own copy; the shared value must not be mutated.
	s := *v.(*space.Space)
	s.Domains = slices.Clone(s.Domains)
	s.AdminUsernames = slices.Clone(s.AdminUsernames)
	s.AdminUserIDs = slices.Clone(s.AdminUserIDs)
	s.Features = slices.Clone(s.Features)
	return &s, nil
}

func (d *Directory) ListSpaces(ctx context.Context, includeArchived bool) ([]space.Space, error) {
	return d.inner.ListSpaces(ctx, includeArchived)
}

func (d *Directory) CreateSpace(ctx context.Context, s *space.Space) error {
	if err := d.inner.CreateSpace(ctx, s); err != nil {
		return err
	}
	d.Invalidate(ctx, s.ID, s.Domains)
	return nil
}

func (d *Directory) UpdateSpace(ctx context.Context, s *space.Space) error {
	var prev []string
	if old, err := d.inner.GetSpace(ctx, s.ID); err == nil {
		prev = old.Domains
	}
	if err := d.inner.UpdateSpace(ctx, s); err != nil {
		return err
	}
	d.Invalidate(ctx, s.ID, append(prev, s.Domains...))
	return nil
}

func (d *Directory) Ping(ctx context.Context) error {
	return d.inner.Ping(ctx)
}

// Invalidate evicts the id entry and every listed domain entry. It is also
// the handler for change notifications published by other instances.
func (d *Directory) Invalidate(ctx context.Context, spaceID string, domains []string) {
	d.gen.Add(1)
	keys := []string{idKey(spaceID)}
	for _, h := range domains {
		keys = append(keys, domainKey(space.NormalizeDomain(h)))
	}
	for _, k := range keys {
		d.group.Forget(k)
		if err := d.cache.Delete(ctx, k); err != nil {
			slog.WarnContext(ctx, "space cache delete failed", "key", k, "error", err)
		}
	}
}
