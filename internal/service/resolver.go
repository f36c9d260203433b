package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sgotel "github.com/Strob0t/spacegate/internal/adapter/otel"
	"github.com/Strob0t/spacegate/internal/config"
	"github.com/Strob0t/spacegate/internal/domain"
	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/port/directory"
	"github.com/Strob0t/spacegate/internal/resilience"
)

// HostResolver maps an inbound host (or an explicit space id or domain
// parameter) to exactly one active space.
type HostResolver struct {
	dir       directory.Directory
	aliases   map[string]struct{}
	defaultID string
	breaker   *resilience.Breaker
	metrics   *sgotel.Metrics
}

// NewHostResolver creates a resolver over dir. Hosts listed in
// cfg.LocalAliases resolve to cfg.DefaultSpaceID whatever their port.
func NewHostResolver(dir directory.Directory, cfg config.Tenancy, breaker *resilience.Breaker, metrics *sgotel.Metrics) *HostResolver {
	aliases := make(map[string]struct{}, len(cfg.LocalAliases))
	for _, a := range cfg.LocalAliases {
		if n := space.NormalizeDomain(a); n != "" {
			aliases[n] = struct{}{}
		}
	}
	return &HostResolver{
		dir:       dir,
		aliases:   aliases,
		defaultID: cfg.DefaultSpaceID,
		breaker:   breaker,
		metrics:   metrics,
	}
}

// Resolve returns the space registered for host. The port, a trailing dot and
// letter case are ignored.
//
// Errors: domain.ErrInvalidRequest for an empty host, domain.ErrTenantNotFound
// when no active space owns it, domain.ErrDependencyUnavailable when the
// directory cannot answer.
func (r *HostResolver) Resolve(ctx context.Context, host string) (*space.Space, error) {
	ctx, span := sgotel.StartResolveSpan(ctx, host)
	defer span.End()
	start := time.Now()

	h := space.NormalizeDomain(host)
	if h == "" {
		r.metrics.RecordResolve(ctx, sgotel.OutcomeInvalid, time.Since(start))
		return nil, fmt.Errorf("host header is empty: %w", domain.ErrInvalidRequest)
	}

	if _, ok := r.aliases[h]; ok {
		s, err := r.byID(ctx, r.defaultID)
		r.record(ctx, sgotel.OutcomeLocalAlias, err, start)
		return s, err
	}

	s, err := r.lookup(ctx, h, func() (*space.Space, error) {
		return r.dir.GetSpaceByDomain(ctx, h)
	})
	r.record(ctx, sgotel.OutcomeResolved, err, start)
	return s, err
}

// ResolveParam resolves an explicit spaceId parameter, or failing that a
// domain parameter using the host rules. Both empty is domain.ErrInvalidRequest.
func (r *HostResolver) ResolveParam(ctx context.Context, spaceID, domainParam string) (*space.Space, error) {
	if id := strings.TrimSpace(spaceID); id != "" {
		start := time.Now()
		s, err := r.byID(ctx, id)
		r.record(ctx, sgotel.OutcomeResolved, err, start)
		return s, err
	}
	if strings.TrimSpace(domainParam) != "" {
		return r.Resolve(ctx, domainParam)
	}
	return nil, fmt.Errorf("spaceId or domain parameter is required: %w", domain.ErrInvalidRequest)
}

func (r *HostResolver) byID(ctx context.Context, id string) (*space.Space, error) {
	return r.lookup(ctx, id, func() (*space.Space, error) {
		return r.dir.GetSpace(ctx, id)
	})
}

// lookup runs load through the breaker and maps directory errors onto the
// request pipeline errors.
func (r *HostResolver) lookup(ctx context.Context, key string, load func() (*space.Space, error)) (*space.Space, error) {
	var s *space.Space
	err := r.breaker.Execute(func() error {
		var err error
		s, err = load()
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("space for %q: %w", key, domain.ErrTenantNotFound)
	case errors.Is(err, resilience.ErrCircuitOpen):
		return nil, fmt.Errorf("space directory: %w: %w", domain.ErrDependencyUnavailable, err)
	default:
		slog.ErrorContext(ctx, "space directory lookup failed", "key", key, "error", err)
		return nil, fmt.Errorf("space directory: %w: %w", domain.ErrDependencyUnavailable, err)
	}
	if s.Archived {
		return nil, fmt.Errorf("space %s is archived: %w", s.ID, domain.ErrTenantNotFound)
	}
	return s, nil
}

func (r *HostResolver) record(ctx context.Context, outcome string, err error, start time.Time) {
	switch {
	case errors.Is(err, domain.ErrTenantNotFound):
		outcome = sgotel.OutcomeNotFound
	case errors.Is(err, domain.ErrDependencyUnavailable):
		outcome = sgotel.OutcomeUnavailable
	}
	r.metrics.RecordResolve(ctx, outcome, time.Since(start))
}

// IsDirectoryFailure reports whether err should count against the directory
// circuit breaker. Not-found answers are healthy responses.
func IsDirectoryFailure(err error) bool {
	return err != nil && !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, context.Canceled)
}
