package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/spacegate/internal/middleware"
)

// RouteOptions carries the route-scoped middleware built at startup.
type RouteOptions struct {
	// LoginLimiter throttles POST /auth/token. Nil disables throttling.
	LoginLimiter *middleware.RateLimiter
	// Idempotency wraps POST /spaces. Nil disables replay.
	Idempotency func(http.Handler) http.Handler
}

// MountRoutes registers all routes on r. Global middleware (request id,
// logging, recovery, CORS, tracing) is installed by the caller.
func MountRoutes(r chi.Router, h *Handlers, opts RouteOptions) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	resolveHost := middleware.Space(h.Resolver)
	resolveParam := middleware.SpaceParam(h.Resolver)
	spaceAdmin := middleware.RequireSpaceAdmin(h.Spaces)
	superAdmin := middleware.RequireSuperAdmin(h.Spaces)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(h.Sessions))

		// Host-resolved space
		r.Group(func(r chi.Router) {
			r.Use(resolveHost)
			r.Get("/space", h.CurrentSpace)
			r.Get("/space/permissions", h.Permissions)

			login := http.Handler(http.HandlerFunc(h.Login))
			if opts.LoginLimiter != nil {
				login = opts.LoginLimiter.Handler(login)
			}
			r.Method(http.MethodPost, "/auth/token", login)
		})

		r.Post("/auth/logout", h.Logout)
		r.With(middleware.RequireIdentity).Get("/auth/me", h.Me)

		r.Get("/spaces/by-domain", h.LookupSpace)

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(superAdmin)
			r.Get("/spaces", h.ListSpaces)
			create := http.Handler(http.HandlerFunc(h.CreateSpace))
			if opts.Idempotency != nil {
				create = opts.Idempotency(create)
			}
			r.Method(http.MethodPost, "/spaces", create)
		})

		// Space admin routes. Anonymous callers are rejected before the id is
		// looked up, so they cannot tell which spaces exist.
		r.Route("/spaces/{spaceId}", func(r chi.Router) {
			r.Use(middleware.RequireIdentity, resolveParam, spaceAdmin)
			r.Get("/", h.GetSpace)
			r.Put("/", h.UpdateSpace)
			r.Post("/admins", h.AddAdmin)
			r.Delete("/admins/{username}", h.RemoveAdmin)
			r.With(superAdmin).Post("/archive", h.ArchiveSpace)
			if h.Events != nil {
				r.Method(http.MethodGet, "/events", h.Events)
			}
		})
	})
}
