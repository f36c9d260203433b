package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	sghttp "github.com/Strob0t/spacegate/internal/adapter/http"
	"github.com/Strob0t/spacegate/internal/adapter/jwt"
	"github.com/Strob0t/spacegate/internal/adapter/memory"
	sgotel "github.com/Strob0t/spacegate/internal/adapter/otel"
	"github.com/Strob0t/spacegate/internal/config"
	"github.com/Strob0t/spacegate/internal/domain/authz"
	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/domain/user"
	"github.com/Strob0t/spacegate/internal/middleware"
	"github.com/Strob0t/spacegate/internal/port/directory"
	"github.com/Strob0t/spacegate/internal/resilience"
	"github.com/Strob0t/spacegate/internal/service"
)

type testEnv struct {
	router http.Handler
	tokens *jwt.Provider
	dir    *memory.Directory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := memory.NewDirectory()
	ctx := context.Background()
	for _, s := range []*space.Space{
		{ID: "default", Name: "Default", Creator: "owner"},
		{
			ID: "t1", Name: "Academy", Domains: []string{"app.example.com"},
			AdminUsernames: []string{"alice"}, Creator: "admin@example.com",
			Features: []string{"rubrics"}, Config: json.RawMessage(`{"theme":"dark"}`),
		},
	} {
		if err := dir.CreateSpace(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	return &testEnv{router: buildRouter(t, dir, dir), tokens: testTokens(), dir: dir}
}

func testTokens() *jwt.Provider {
	return jwt.NewProvider("test-secret-key-must-be-long-enough", "spacegate", time.Hour)
}

func buildRouter(t *testing.T, dir directory.Directory, users directory.UserStore) http.Handler {
	t.Helper()
	metrics, err := sgotel.NewMetrics()
	if err != nil {
		t.Fatal(err)
	}
	tokens := testTokens()
	policy := authz.NewPolicy([]string{"root"})
	breaker := resilience.NewBreaker(5, time.Minute, resilience.WithFailureFilter(service.IsDirectoryFailure))
	tenancy := config.Tenancy{LocalAliases: []string{"localhost"}, DefaultSpaceID: "default"}

	h := &sghttp.Handlers{
		Spaces:    service.NewSpaceService(dir, policy, nil, metrics),
		Resolver:  service.NewHostResolver(dir, tenancy, breaker, metrics),
		Sessions:  service.NewSessionService(tokens, "spacegate_session", metrics),
		Auth:      service.NewAuthService(users, tokens, policy, 4),
		Directory: dir,
		BodyLimit: 1 << 16,
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	sghttp.MountRoutes(r, h, sghttp.RouteOptions{
		LoginLimiter: middleware.NewRateLimiter(1, 3, middleware.SpaceClientIP),
	})
	return r
}

func (e *testEnv) token(t *testing.T, username string) string {
	t.Helper()
	tok, _, err := e.tokens.Issue(context.Background(), identity.Identity{UserID: "u-" + username, Username: username})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, host, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Host = host
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/health", "/health/ready"} {
		if rec := env.do(t, http.MethodGet, path, "anything", "", nil); rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestCurrentSpace(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/space", "app.example.com", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if strings.Contains(rec.Body.String(), "alice") {
		t.Error("public view must not expose admin usernames")
	}
	view := decode[space.PublicView](t, rec)
	if view.ID != "t1" || view.Name != "Academy" {
		t.Errorf("view = %+v", view)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/space", "localhost:3000", "", nil)
	if got := decode[space.PublicView](t, rec); got.ID != "default" {
		t.Errorf("localhost resolved to %q", got.ID)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/space", "unknown.test", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown host: status = %d, want 404", rec.Code)
	}
}

func TestLookupSpace(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		query      string
		wantStatus int
	}{
		{"?domain=app.example.com", http.StatusOK},
		{"?spaceId=t1", http.StatusOK},
		{"?spaceId=nope", http.StatusNotFound},
		{"", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/spaces/by-domain"+tt.query, "other.host", "", nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestPermissions(t *testing.T) {
	env := newTestEnv(t)

	type perms struct {
		IsAdmin      bool   `json:"isAdmin"`
		IsSuperAdmin bool   `json:"isSuperAdmin"`
		Reason       string `json:"reason"`
	}
	tests := []struct {
		user string
		want perms
	}{
		{"", perms{Reason: "none"}},
		{"alice", perms{IsAdmin: true, Reason: "space_admin"}},
		{"ADMIN@Example.com", perms{IsAdmin: true, Reason: "creator"}},
		{"root", perms{IsAdmin: true, IsSuperAdmin: true, Reason: "super_admin"}},
		{"bob", perms{Reason: "none"}},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			tok := ""
			if tt.user != "" {
				tok = env.token(t, tt.user)
			}
			rec := env.do(t, http.MethodGet, "/api/v1/space/permissions", "app.example.com", tok, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := decode[perms](t, rec); got != tt.want {
				t.Errorf("perms = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAdminRoundTripOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.token(t, "alice"), env.token(t, "bob")
	rename := map[string]string{"name": "Renamed"}

	if rec := env.do(t, http.MethodPut, "/api/v1/spaces/t1", "x", bob, rename); rec.Code != http.StatusForbidden {
		t.Fatalf("bob before grant: status = %d, want 403", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/spaces/t1/admins", "x", alice, map[string]string{"username": "Bob"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add admin: status = %d, body %s", rec.Code, rec.Body)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/spaces/t1", "x", bob, rename)
	if rec.Code != http.StatusOK {
		t.Fatalf("bob after grant: status = %d, body %s", rec.Code, rec.Body)
	}
	if got := decode[space.Space](t, rec); got.Name != "Renamed" {
		t.Errorf("name = %q", got.Name)
	}

	if rec := env.do(t, http.MethodDelete, "/api/v1/spaces/t1/admins/bob", "x", alice, nil); rec.Code != http.StatusOK {
		t.Fatalf("remove admin: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/spaces/t1", "x", bob, nil); rec.Code != http.StatusForbidden {
		t.Errorf("bob after revoke: status = %d, want 403", rec.Code)
	}
}

func TestSpaceAdminRoutesGuards(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name       string
		method     string
		path       string
		user       string
		body       any
		wantStatus int
	}{
		{"anonymous get", http.MethodGet, "/api/v1/spaces/t1", "", nil, http.StatusUnauthorized},
		{"admin get", http.MethodGet, "/api/v1/spaces/t1", "alice", nil, http.StatusOK},
		{"unknown space", http.MethodGet, "/api/v1/spaces/nope", "root", nil, http.StatusNotFound},
		{"anonymous unknown space", http.MethodGet, "/api/v1/spaces/nope", "", nil, http.StatusUnauthorized},
		{"anonymous unknown space admins", http.MethodPost, "/api/v1/spaces/nope/admins", "", map[string]string{"username": "mallory"}, http.StatusUnauthorized},
		{"missing username", http.MethodPost, "/api/v1/spaces/t1/admins", "alice", map[string]string{}, http.StatusBadRequest},
		{"invalid domain", http.MethodPut, "/api/v1/spaces/t1", "alice", map[string]any{"domains": []string{"bad host"}}, http.StatusBadRequest},
		{"space admin cannot archive", http.MethodPost, "/api/v1/spaces/t1/archive", "alice", nil, http.StatusForbidden},
		{"list needs super admin", http.MethodGet, "/api/v1/spaces", "alice", nil, http.StatusForbidden},
		{"list as super admin", http.MethodGet, "/api/v1/spaces", "root", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := ""
			if tt.user != "" {
				tok = env.token(t, tt.user)
			}
			if rec := env.do(t, tt.method, tt.path, "x", tok, tt.body); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestCreateAndArchiveSpace(t *testing.T) {
	env := newTestEnv(t)
	root := env.token(t, "root")

	rec := env.do(t, http.MethodPost, "/api/v1/spaces", "x", root, map[string]any{
		"name": "Alerts", "domains": []string{"alerts.example.com"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body %s", rec.Code, rec.Body)
	}
	created := decode[space.Space](t, rec)
	if created.Creator != "root" {
		t.Errorf("creator defaults to caller, got %q", created.Creator)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/spaces", "x", root, map[string]any{
		"name": "Clash", "domains": []string{"alerts.example.com"},
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate domain: status = %d, want 409", rec.Code)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/space", "alerts.example.com", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("new space does not resolve: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/spaces/"+created.ID+"/archive", "x", root, nil); rec.Code != http.StatusOK {
		t.Fatalf("archive: status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/space", "alerts.example.com", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("archived space still resolves: %d", rec.Code)
	}
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	auth := service.NewAuthService(env.dir, env.tokens, authz.NewPolicy(), 4)
	if _, err := auth.Register(context.Background(), &user.CreateRequest{Username: "alice", Password: "Password123", SpaceID: "t1"}); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/auth/token", "app.example.com", "", map[string]string{"username": "alice", "password": "Password123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d, body %s", rec.Code, rec.Body)
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "spacegate_session" {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("expected an http-only session cookie, got %+v", cookie)
	}
	resp := decode[user.LoginResponse](t, rec)

	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", "x", resp.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status = %d", rec.Code)
	}
	if me := decode[identity.Identity](t, rec); me.Username != "alice" || me.SpaceID != "t1" {
		t.Errorf("me = %+v", me)
	}

	// The same credentials are not valid on another space.
	rec = env.do(t, http.MethodPost, "/api/v1/auth/token", "localhost", "", map[string]string{"username": "alice", "password": "Password123"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("cross-space login: status = %d, want 401", rec.Code)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/auth/me", "x", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous me: status = %d, want 401", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t)
	creds := map[string]string{"username": "mallory", "password": "guess-guess"}
	var last int
	for range 4 {
		last = env.do(t, http.MethodPost, "/api/v1/auth/token", "app.example.com", "", creds).Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 after burst", last)
	}
}

// downDirectory fails every call.
type downDirectory struct{ directory.Directory }

var errDown = errors.New("dial tcp 10.0.0.5:5432: connection refused")

func (downDirectory) GetSpaceByDomain(context.Context, string) (*space.Space, error) {
	return nil, errDown
}

func (downDirectory) GetSpace(context.Context, string) (*space.Space, error) {
	return nil, errDown
}

func (downDirectory) Ping(context.Context) error { return errDown }

func TestDirectoryOutage(t *testing.T) {
	router := buildRouter(t, downDirectory{}, memory.NewDirectory())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/space", http.NoBody)
	req.Host = "app.example.com"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Error("dependency details leaked to the client")
	}

	req = httptest.NewRequest(http.MethodGet, "/health/ready", http.NoBody)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready: status = %d, want 503", rec.Code)
	}
}
