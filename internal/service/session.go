package service

import (
	"log/slog"
	"net/http"
	"strings"

	sgotel "github.com/Strob0t/spacegate/internal/adapter/otel"
	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/port/session"
)

// SessionService extracts the caller's identity from an inbound request.
type SessionService struct {
	verifier   session.Verifier
	cookieName string
	metrics    *sgotel.Metrics
}

// NewSessionService creates a SessionService reading the Authorization header
// and, failing that, the cookie named cookieName.
func NewSessionService(verifier session.Verifier, cookieName string, metrics *sgotel.Metrics) *SessionService {
	return &SessionService{verifier: verifier, cookieName: cookieName, metrics: metrics}
}

// Decode returns the identity carried by r, or nil when the request has no
// token or the token is malformed, expired or badly signed. Failures are
// logged at debug level and never surface as errors.
func (s *SessionService) Decode(r *http.Request) *identity.Identity {
	token := s.token(r)
	if token == "" {
		return nil
	}
	id, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		s.metrics.RecordTokenRejected(r.Context())
		slog.DebugContext(r.Context(), "session token rejected", "error", err)
		return nil
	}
	return id
}

// token returns the bearer token, then the session cookie, or "".
func (s *SessionService) token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	if s.cookieName != "" {
		if c, err := r.Cookie(s.cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}

// CookieName is the cookie the session token is read from and written to.
func (s *SessionService) CookieName() string {
	return s.cookieName
}
