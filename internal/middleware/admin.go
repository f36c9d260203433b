package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/service"
)

// RequireSpaceAdmin lets the request through only when the caller administers
// the space resolved earlier in the chain. The decision is recomputed from
// the freshly resolved space; token claims are not consulted.
func RequireSpaceAdmin(spaces *service.SpaceService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identity.FromContext(r.Context())
			if id == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			sp := SpaceFromContext(r.Context())
			if sp == nil {
				slog.ErrorContext(r.Context(), "RequireSpaceAdmin mounted without a space resolver")
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !spaces.Decide(r.Context(), id, sp).Allowed {
				writeError(w, http.StatusForbidden, "space admin rights required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperAdmin restricts a route to the super-admin allow-list.
func RequireSuperAdmin(spaces *service.SpaceService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identity.FromContext(r.Context())
			if id == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !spaces.IsSuperAdmin(id) {
				writeError(w, http.StatusForbidden, "super admin rights required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
