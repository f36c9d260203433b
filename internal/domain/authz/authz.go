// Package authz decides whether an identity administers a space.
//
// The predicate is pure: it reads only the identity and space it is given, so
// callers must pass a freshly loaded space on every request for admin-list
// edits to take effect immediately.
package authz

import (
	"slices"

	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/domain/space"
)

// Reason names the rule that granted (or did not grant) admin rights.
type Reason string

const (
	ReasonSuperAdmin    Reason = "super_admin"
	ReasonSpaceAdmin    Reason = "space_admin"
	ReasonLegacyAdminID Reason = "legacy_admin_id"
	ReasonCreator       Reason = "creator"
	ReasonNone          Reason = "none"
)

// Decision is the outcome of evaluating the predicate for one request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason"`
}

// Policy holds the super-admin allow-list. It is immutable after construction
// and safe for concurrent use.
type Policy struct {
	superAdmins map[string]struct{}
}

// NewPolicy builds a Policy from one or more username lists. Entries are
// trimmed and lowercased; blanks are ignored.
func NewPolicy(superAdminLists ...[]string) *Policy {
	p := &Policy{superAdmins: make(map[string]struct{})}
	for _, list := range superAdminLists {
		for _, u := range list {
			if n := space.NormalizeUsername(u); n != "" {
				p.superAdmins[n] = struct{}{}
			}
		}
	}
	return p
}

// SuperAdmins returns the normalized allow-list in sorted order.
func (p *Policy) SuperAdmins() []string {
	out := make([]string, 0, len(p.superAdmins))
	for u := range p.superAdmins {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}

// IsSuperAdmin reports whether id is on the global allow-list.
func (p *Policy) IsSuperAdmin(id *identity.Identity) bool {
	if id == nil {
		return false
	}
	u := space.NormalizeUsername(id.Username)
	if u == "" {
		return false
	}
	_, ok := p.superAdmins[u]
	return ok
}

// IsAdmin reports whether id has administrative rights over s.
func (p *Policy) IsAdmin(id *identity.Identity, s *space.Space) bool {
	return p.Decide(id, s).Allowed
}

// Decide evaluates the rules in order and stops at the first match:
// super-admin, space admin username, legacy admin user id, space creator.
func (p *Policy) Decide(id *identity.Identity, s *space.Space) Decision {
	if id == nil || s == nil {
		return Decision{Reason: ReasonNone}
	}
	if p.IsSuperAdmin(id) {
		return Decision{Allowed: true, Reason: ReasonSuperAdmin}
	}

	u := space.NormalizeUsername(id.Username)
	if u != "" && slices.ContainsFunc(s.AdminUsernames, func(a string) bool {
		return space.NormalizeUsername(a) == u
	}) {
		return Decision{Allowed: true, Reason: ReasonSpaceAdmin}
	}

	if uid := id.EffectiveUserID(); uid != "" && slices.Contains(s.AdminUserIDs, uid) {
		return Decision{Allowed: true, Reason: ReasonLegacyAdminID}
	}

	if u != "" && space.NormalizeUsername(s.Creator) == u {
		return Decision{Allowed: true, Reason: ReasonCreator}
	}

	return Decision{Reason: ReasonNone}
}
