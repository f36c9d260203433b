// Package space defines the space (tenant) domain model for multi-tenancy.
package space

import (
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/Strob0t/spacegate/internal/domain"
)

// Space is one logical customer deployment, distinguished by its domains and configuration.
type Space struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Domains        []string        `json:"domains"`
	AdminUsernames []string        `json:"admin_usernames"`
	AdminUserIDs   []string        `json:"admin_user_ids,omitempty"` // legacy id-based admin list
	Creator        string          `json:"creator"`
	Features       []string        `json:"features"`
	Config         json.RawMessage `json:"config,omitempty"`
	Archived       bool            `json:"archived"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PublicView is the subset of a space that is safe to expose to unauthenticated callers.
type PublicView struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Features []string        `json:"features"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Public returns the unauthenticated view of s.
func (s *Space) Public() PublicView {
	return PublicView{ID: s.ID, Name: s.Name, Features: s.Features, Config: s.Config}
}

// HasFeature reports whether the named feature flag is enabled.
func (s *Space) HasFeature(name string) bool {
	return slices.Contains(s.Features, strings.ToLower(strings.TrimSpace(name)))
}

// HasDomain reports whether host (already normalized) is registered to s.
func (s *Space) HasDomain(host string) bool {
	return slices.Contains(s.Domains, host)
}

// AddAdmin adds username to the admin list. It reports whether the list changed.
func (s *Space) AddAdmin(username string) bool {
	u := NormalizeUsername(username)
	if u == "" || slices.Contains(s.AdminUsernames, u) {
		return false
	}
	s.AdminUsernames = append(s.AdminUsernames, u)
	return true
}

// RemoveAdmin removes username from the admin list. It reports whether the list changed.
func (s *Space) RemoveAdmin(username string) bool {
	u := NormalizeUsername(username)
	i := slices.Index(s.AdminUsernames, u)
	if i < 0 {
		return false
	}
	s.AdminUsernames = slices.Delete(s.AdminUsernames, i, i+1)
	return true
}

// Normalize canonicalizes the set-valued fields in place.
func (s *Space) Normalize() {
	s.Domains = normalizeSet(s.Domains, NormalizeDomain)
	s.AdminUsernames = normalizeSet(s.AdminUsernames, NormalizeUsername)
	s.AdminUserIDs = normalizeSet(s.AdminUserIDs, strings.TrimSpace)
	s.Features = normalizeSet(s.Features, NormalizeUsername)
	s.Creator = NormalizeUsername(s.Creator)
	if isNullJSON(s.Config) {
		s.Config = nil
	}
}

func isNullJSON(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// NormalizeDomain lowercases a hostname, strips any port and a trailing dot.
func NormalizeDomain(host string) string {
	h := strings.TrimSpace(host)
	if hp, _, err := net.SplitHostPort(h); err == nil {
		h = hp
	}
	h = strings.TrimPrefix(strings.TrimSuffix(h, "]"), "[")
	h = strings.TrimSuffix(h, ".")
	return strings.ToLower(h)
}

// NormalizeUsername trims and lowercases a username for case-insensitive comparison.
func NormalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}

func normalizeSet(in []string, norm func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		n := norm(v)
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

var domainRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// ValidateDomain checks that d (normalized) is a plausible hostname.
func ValidateDomain(d string) error {
	if d == "" {
		return fmt.Errorf("%w: domain is empty", domain.ErrValidation)
	}
	if len(d) > 253 || !domainRegex.MatchString(d) {
		return fmt.Errorf("%w: invalid domain %q", domain.ErrValidation, d)
	}
	return nil
}

// CreateRequest holds the fields for provisioning a new space.
type CreateRequest struct {
	ID             string          `json:"id,omitempty" validate:"omitempty,max=64"`
	Name           string          `json:"name" validate:"required,max=128"`
	Domains        []string        `json:"domains" validate:"dive,required,max=253"`
	AdminUsernames []string        `json:"admin_usernames" validate:"dive,required,max=320"`
	Creator        string          `json:"creator,omitempty" validate:"omitempty,max=320"`
	Features       []string        `json:"features" validate:"dive,required,max=64"`
	Config         json.RawMessage `json:"config,omitempty"`
}

// Validate checks the semantic rules the struct tags cannot express.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if NormalizeUsername(r.Creator) == "" {
		return fmt.Errorf("%w: creator is required", domain.ErrValidation)
	}
	for _, d := range r.Domains {
		if err := ValidateDomain(NormalizeDomain(d)); err != nil {
			return err
		}
	}
	return validateConfig(r.Config)
}

// UpdateRequest holds the fields a space admin may edit. Nil fields are left
// unchanged; an explicit "config": null clears the config.
type UpdateRequest struct {
	Name     *string         `json:"name,omitempty" validate:"omitempty,max=128"`
	Domains  *[]string       `json:"domains,omitempty" validate:"omitempty,dive,required,max=253"`
	Features *[]string       `json:"features,omitempty" validate:"omitempty,dive,required,max=64"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Validate checks the semantic rules the struct tags cannot express.
func (r *UpdateRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", domain.ErrValidation)
	}
	if r.Domains != nil {
		for _, d := range *r.Domains {
			if err := ValidateDomain(NormalizeDomain(d)); err != nil {
				return err
			}
		}
	}
	return validateConfig(r.Config)
}

// Apply copies the set fields of r onto s.
func (r *UpdateRequest) Apply(s *Space) {
	if r.Name != nil {
		s.Name = strings.TrimSpace(*r.Name)
	}
	if r.Domains != nil {
		s.Domains = *r.Domains
	}
	if r.Features != nil {
		s.Features = *r.Features
	}
	if len(r.Config) > 0 {
		s.Config = r.Config
	}
	s.Normalize()
}

// AdminRequest names a username to add to a space's admin list.
type AdminRequest struct {
	Username string `json:"username" validate:"required,max=320"`
}

// validateConfig accepts an empty blob or a JSON object.
func validateConfig(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("%w: config must be a JSON object", domain.ErrValidation)
	}
	return nil
}
