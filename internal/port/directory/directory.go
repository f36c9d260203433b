// Package directory defines the port for the authoritative space directory.
package directory

import (
	"context"

	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/domain/user"
)

// Directory is the persistent store of spaces. Lookups return domain.ErrNotFound
// for unknown keys. Writes enforce that a domain maps to at most one space and
// return domain.ErrConflict on a clash.
type Directory interface {
	GetSpace(ctx context.Context, id string) (*space.Space, error)
	GetSpaceByDomain(ctx context.Context, host string) (*space.Space, error)
	ListSpaces(ctx context.Context, includeArchived bool) ([]space.Space, error)
	CreateSpace(ctx context.Context, s *space.Space) error
	// UpdateSpace replaces every mutable field of the stored space with s.
	UpdateSpace(ctx context.Context, s *space.Space) error
	Ping(ctx context.Context) error
}

// UserStore persists the users that may log in to a space. A username is
// unique across all spaces: CreateUser returns domain.ErrConflict when it is
// taken in any space, and GetUserByUsername finds a user only in its own space.
type UserStore interface {
	CreateUser(ctx context.Context, u *user.User) error
	GetUserByUsername(ctx context.Context, spaceID, username string) (*user.User, error)
	ListUsers(ctx context.Context, spaceID string) ([]user.User, error)
}
