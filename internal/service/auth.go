package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Strob0t/spacegate/internal/domain"
	"github.com/Strob0t/spacegate/internal/domain/authz"
	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/domain/user"
	"github.com/Strob0t/spacegate/internal/port/directory"
	"github.com/Strob0t/spacegate/internal/port/session"
)

// errInvalidCredentials is returned for an unknown user or a wrong password alike.
var errInvalidCredentials = fmt.Errorf("invalid credentials: %w", domain.ErrUnauthenticated)

// AuthService registers users and exchanges credentials for session tokens.
type AuthService struct {
	users      directory.UserStore
	issuer     session.Issuer
	policy     *authz.Policy
	bcryptCost int
	// dummyHash is compared against when the user does not exist so both
	// paths cost one bcrypt comparison.
	dummyHash []byte
}

// NewAuthService creates a new authentication service.
func NewAuthService(users directory.UserStore, issuer session.Issuer, policy *authz.Policy, bcryptCost int) *AuthService {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("spacegate-timing-equalizer"), bcryptCost)
	return &AuthService{users: users, issuer: issuer, policy: policy, bcryptCost: bcryptCost, dummyHash: dummy}
}

// Register creates a user with a bcrypt-hashed password. Usernames are unique
// across spaces, so a name already taken anywhere yields domain.ErrConflict.
func (s *AuthService) Register(ctx context.Context, req *user.CreateRequest) (*user.User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &user.User{
		ID:           uuid.NewString(),
		Username:     space.NormalizeUsername(req.Username),
		SpaceID:      req.SpaceID,
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login verifies the credentials of a user registered under sp and returns a
// signed session token. The token's admin flags are advisory snapshots;
// authorization recomputes them on every request.
func (s *AuthService) Login(ctx context.Context, sp *space.Space, req *user.LoginRequest) (*user.LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	u, err := s.users.GetUserByUsername(ctx, sp.ID, req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
			slog.DebugContext(ctx, "login for unknown user", "space_id", sp.ID)
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		slog.DebugContext(ctx, "login with wrong password", "space_id", sp.ID, "user_id", u.ID)
		return nil, errInvalidCredentials
	}

	id := identity.Identity{UserID: u.ID, Username: u.Username, SpaceID: sp.ID}
	id.IsSuperAdmin = s.policy.IsSuperAdmin(&id)
	id.IsAdminOfSpace = s.policy.IsAdmin(&id, sp)

	token, exp, err := s.issuer.Issue(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &user.LoginResponse{AccessToken: token, ExpiresAt: exp, User: *u}, nil
}
