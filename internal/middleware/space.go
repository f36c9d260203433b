package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/logger"
	"github.com/Strob0t/spacegate/internal/service"
)

type spaceCtxKey struct{}

// Space resolves the request's Host header to a space and stores it in the
// context. Requests for unknown hosts stop here with 404; a directory outage
// yields 503.
func Space(resolver *service.HostResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sp, err := resolver.Resolve(r.Context(), r.Host)
			if err != nil {
				writeResolveError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSpace(r.Context(), sp)))
		})
	}
}

// SpaceParam resolves the {spaceId} route parameter, falling back to the
// ?domain= query parameter. It is used on routes served from a host other
// than the space's own, such as the operator API.
func SpaceParam(resolver *service.HostResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sp, err := resolver.ResolveParam(r.Context(), chi.URLParam(r, "spaceId"), r.URL.Query().Get("domain"))
			if err != nil {
				writeResolveError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSpace(r.Context(), sp)))
		})
	}
}

// WithSpace stores sp in ctx and tags the context's log records with its id.
func WithSpace(ctx context.Context, sp *space.Space) context.Context {
	ctx = logger.WithSpaceID(ctx, sp.ID)
	return context.WithValue(ctx, spaceCtxKey{}, sp)
}

// SpaceFromContext returns the resolved space, or nil outside the Space middleware.
func SpaceFromContext(ctx context.Context) *space.Space {
	sp, _ := ctx.Value(spaceCtxKey{}).(*space.Space)
	return sp
}
