package http

import (
	"net/http"

	"github.com/Strob0t/spacegate/internal/domain/authz"
	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/middleware"
)

// permissionsResponse reports what the caller may do in the resolved space.
type permissionsResponse struct {
	SpaceID      string       `json:"spaceId"`
	IsAdmin      bool         `json:"isAdmin"`
	IsSuperAdmin bool         `json:"isSuperAdmin"`
	Reason       authz.Reason `json:"reason"`
}

// actor names the caller in audit logs and events.
func actor(r *http.Request) string {
	if id := identity.FromContext(r.Context()); id != nil {
		if id.Username != "" {
			return id.Username
		}
		return id.EffectiveUserID()
	}
	return ""
}

// CurrentSpace handles GET /api/v1/space
func (h *Handlers) CurrentSpace(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, middleware.SpaceFromContext(r.Context()).Public())
}

// LookupSpace handles GET /api/v1/spaces/by-domain?domain=|spaceId=
func (h *Handlers) LookupSpace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sp, err := h.Resolver.ResolveParam(r.Context(), q.Get("spaceId"), q.Get("domain"))
	if err != nil {
		writeDomainError(w, r, err, "space not found")
		return
	}
	writeJSON(w, http.StatusOK, sp.Public())
}

// Permissions handles GET /api/v1/space/permissions
func (h *Handlers) Permissions(w http.ResponseWriter, r *http.Request) {
	sp := middleware.SpaceFromContext(r.Context())
	id := identity.FromContext(r.Context())
	d := h.Spaces.Decide(r.Context(), id, sp)
	writeJSON(w, http.StatusOK, permissionsResponse{
		SpaceID:      sp.ID,
		IsAdmin:      d.Allowed,
		IsSuperAdmin: h.Spaces.IsSuperAdmin(id),
		Reason:       d.Reason,
	})
}

// ListSpaces handles GET /api/v1/spaces
func (h *Handlers) ListSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.Spaces.List(r.Context(), r.URL.Query().Get("archived") == "true")
	if err != nil {
		writeDomainError(w, r, err, "space not found")
		return
	}
	writeJSON(w, http.StatusOK, spaces)
}

// CreateSpace handles POST /api/v1/spaces
func (h *Handlers) CreateSpace(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[space.CreateRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}
	if req.Creator == "" {
		req.Creator = actor(r)
	}
	sp, err := h.Spaces.Create(r.Context(), &req, actor(r))
	if err != nil {
		writeDomainError(w, r, err, "space not found")
		return
	}
	writeJSON(w, http.StatusCreated, sp)
}

// GetSpace handles GET /api/v1/spaces/{spaceId}
func (h *Handlers) GetSpace(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, middleware.SpaceFromContext(r.Context()))
}

// UpdateSpace handles PUT /api/v1/spaces/{spaceId}
func (h *Handlers) UpdateSpace(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[space.UpdateRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}
	sp, err := h.Spaces.Update(r.Context(), middleware.SpaceFromContext(r.Context()).ID, &req, actor(r))
	if err != nil {
		writeDomainError(w, r, err, "space not found")
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

// AddAdmin handles POST /api/v1/spaces/{spaceId}/admins
func (h *Handlers) AddAdmin(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[space.AdminRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}
	sp, err := h.Spaces.AddAdmin(r.Context(), middleware.SpaceFromContext(r.Context()).ID, req.Username, actor(r))
	if err != nil {
		writeDomainError(w, r, err, "space not found")
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

// RemoveAdmin handles DELETE /api/v1/spaces/{spaceId}/admins/{username}
func (h *Handlers) RemoveAdmin(w http.ResponseWriter, r *http.Request) {
	sp, err := h.Spaces.RemoveAdmin(r.Context(), middleware.SpaceFromContext(r.Context()).ID, urlParam(r, "username"), actor(r))
	if err != nil {
		writeDomainError(w, r, err, "space not found")
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

// ArchiveSpace handles POST /api/v1/spaces/{spaceId}/archive
func (h *Handlers) ArchiveSpace(w http.ResponseWriter, r *http.Request) {
	sp, err := h.Spaces.Archive(r.Context(), middleware.SpaceFromContext(r.Context()).ID, actor(r))
	if err != nil {
		writeDomainError(w, r, err, "space not found")
		return
	}
	writeJSON(w, http.StatusOK, sp)
}
