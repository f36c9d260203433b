package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/domain/user"
	"github.com/Strob0t/spacegate/internal/middleware"
)

// Login handles POST /api/v1/auth/token. Credentials are checked against the
// users of the host-resolved space.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.LoginRequest](w, r, h.BodyLimit)
	if !ok {
		return
	}

	sp := middleware.SpaceFromContext(r.Context())
	resp, err := h.Auth.Login(r.Context(), sp, &req)
	if err != nil {
		slog.DebugContext(r.Context(), "login failed", "error", err)
		writeDomainError(w, r, err, "invalid credentials")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.Sessions.CookieName(),
		Value:    resp.AccessToken,
		Path:     "/",
		Expires:  resp.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/v1/auth/logout by clearing the session cookie.
// Tokens are stateless and stay valid until they expire.
func (h *Handlers) Logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.Sessions.CookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identity.FromContext(r.Context()))
}
