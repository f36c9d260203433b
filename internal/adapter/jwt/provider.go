// Package jwt issues and verifies HS256 session tokens.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/port/session"
)

// leeway tolerates clock skew between the issuing application and this service.
const leeway = 30 * time.Second

// Claims is the token payload shared with the applications that mint tokens.
type Claims struct {
	UserID         string `json:"userId,omitempty"`
	Username       string `json:"username"`
	SpaceID        string `json:"spaceId,omitempty"`
	AccountID      string `json:"accountId,omitempty"` // deprecated alias of userId
	IsAdminOfSpace bool   `json:"isAdminOfSpace,omitempty"`
	IsSuperAdmin   bool   `json:"isSuperAdminOfDoDAO,omitempty"`
	gojwt.RegisteredClaims
}

// Keys supplies the HS256 secrets. Tokens are signed with SigningKey and
// accepted when they verify against any of VerificationKeys.
type Keys interface {
	SigningKey() []byte
	VerificationKeys() [][]byte
}

type staticKeys []byte

func (k staticKeys) SigningKey() []byte         { return k }
func (k staticKeys) VerificationKeys() [][]byte { return [][]byte{k} }

// Provider implements session.Verifier and session.Issuer.
type Provider struct {
	keys   Keys
	issuer string
	ttl    time.Duration
	parser *gojwt.Parser
	now    func() time.Time
}

var (
	_ session.Verifier = (*Provider)(nil)
	_ session.Issuer   = (*Provider)(nil)
)

// NewProvider creates a Provider signing with secret. Tokens must carry iss == issuer.
func NewProvider(secret, issuer string, ttl time.Duration) *Provider {
	return NewRotatingProvider(staticKeys(secret), issuer, ttl)
}

// NewRotatingProvider creates a Provider whose secrets are read from keys on
// every call, so a reload takes effect without restarting.
func NewRotatingProvider(keys Keys, issuer string, ttl time.Duration) *Provider {
	p := &Provider{
		keys:   keys,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	p.parser = gojwt.NewParser(
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(issuer),
		gojwt.WithExpirationRequired(),
		gojwt.WithLeeway(leeway),
		gojwt.WithTimeFunc(func() time.Time { return p.now() }),
	)
	return p
}

// Verify checks signature, algorithm, issuer and expiry and returns the identity.
// All failures wrap session.ErrInvalidToken.
func (p *Provider) Verify(_ context.Context, token string) (*identity.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", session.ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := p.parser.ParseWithClaims(token, claims, p.verificationKeys)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", session.ErrInvalidToken, reason(err))
	}

	id := &identity.Identity{
		UserID:         claims.UserID,
		Username:       claims.Username,
		SpaceID:        claims.SpaceID,
		AccountID:      claims.AccountID,
		IsAdminOfSpace: claims.IsAdminOfSpace,
		IsSuperAdmin:   claims.IsSuperAdmin,
	}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if id.Username == "" && id.EffectiveUserID() == "" {
		return nil, fmt.Errorf("%w: token names no user", session.ErrInvalidToken)
	}
	return id, nil
}

// Issue signs a token for id that expires after the configured TTL.
func (p *Provider) Issue(_ context.Context, id identity.Identity) (string, time.Time, error) {
	now := p.now().UTC()
	exp := now.Add(p.ttl)

	tok := gojwt.NewWithClaims(gojwt.SigningMethodHS256, Claims{
		UserID:         id.UserID,
		Username:       id.Username,
		SpaceID:        id.SpaceID,
		AccountID:      id.AccountID,
		IsAdminOfSpace: id.IsAdminOfSpace,
		IsSuperAdmin:   id.IsSuperAdmin,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   id.EffectiveUserID(),
			Issuer:    p.issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	})
	signed, err := tok.SignedString(p.keys.SigningKey())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (p *Provider) verificationKeys(*gojwt.Token) (any, error) {
	keys := p.keys.VerificationKeys()
	if len(keys) == 1 {
		return keys[0], nil
	}
	set := gojwt.VerificationKeySet{Keys: make([]gojwt.VerificationKey, 0, len(keys))}
	for _, k := range keys {
		set.Keys = append(set.Keys, k)
	}
	return set, nil
}

// reason maps a parser error onto a short, non-sensitive label for debug logs.
func reason(err error) string {
	switch {
	case errors.Is(err, gojwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, gojwt.ErrTokenSignatureInvalid), errors.Is(err, gojwt.ErrTokenUnverifiable):
		return "bad signature"
	case errors.Is(err, gojwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, gojwt.ErrTokenNotValidYet), errors.Is(err, gojwt.ErrTokenUsedBeforeIssued):
		return "not yet valid"
	case errors.Is(err, gojwt.ErrTokenInvalidIssuer):
		return "wrong issuer"
	case errors.Is(err, gojwt.ErrTokenRequiredClaimMissing):
		return "missing claim"
	default:
		return "invalid"
	}
}
