// Package session defines the port for signed session tokens.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/Strob0t/spacegate/internal/domain/identity"
)

// ErrInvalidToken is returned for any token that fails to parse or verify.
var ErrInvalidToken = errors.New("invalid session token")

// Verifier decodes a signed token into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*identity.Identity, error)
}

// Issuer signs a token for an identity and reports its expiry.
type Issuer interface {
	Issue(ctx context.Context, id identity.Identity) (string, time.Time, error)
}
