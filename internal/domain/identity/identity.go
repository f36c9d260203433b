// Package identity defines the request-scoped representation of an authenticated caller.
package identity

import "context"

// Identity is decoded from a signed session token on every request. It is never persisted.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	SpaceID  string `json:"space_id"`
	// AccountID is the deprecated alias of UserID still issued by older applications.
	AccountID string `json:"account_id,omitempty"`

	// Advisory flags copied from the token. Authorization never trusts them.
	IsAdminOfSpace bool `json:"is_admin_of_space,omitempty"`
	IsSuperAdmin   bool `json:"is_super_admin,omitempty"`
}

// EffectiveUserID returns UserID, falling back to the deprecated AccountID.
func (i *Identity) EffectiveUserID() string {
	if i.UserID != "" {
		return i.UserID
	}
	return i.AccountID
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, or nil for anonymous requests.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(ctxKey{}).(*Identity)
	return id
}
