package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	sgotel "github.com/Strob0t/spacegate/internal/adapter/otel"
	"github.com/Strob0t/spacegate/internal/domain"
	"github.com/Strob0t/spacegate/internal/domain/authz"
	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/domain/space"
	"github.com/Strob0t/spacegate/internal/port/directory"
	"github.com/Strob0t/spacegate/internal/port/messagequeue"
)

// SpaceService provisions spaces, applies admin edits and evaluates the
// authorization predicate. Every write is a single directory call.
type SpaceService struct {
	dir     directory.Directory
	policy  *authz.Policy
	events  *SpaceEvents
	metrics *sgotel.Metrics
}

// NewSpaceService creates a SpaceService. events may be nil.
func NewSpaceService(dir directory.Directory, policy *authz.Policy, events *SpaceEvents, metrics *sgotel.Metrics) *SpaceService {
	return &SpaceService{dir: dir, policy: policy, events: events, metrics: metrics}
}

// Decide evaluates the predicate for id on s. Matches through the legacy
// id-based admin list are logged so owners can migrate them to usernames.
func (s *SpaceService) Decide(ctx context.Context, id *identity.Identity, sp *space.Space) authz.Decision {
	d := s.policy.Decide(id, sp)
	s.metrics.RecordDecision(ctx, string(d.Reason), d.Allowed)
	if d.Reason == authz.ReasonLegacyAdminID {
		slog.InfoContext(ctx, "admin granted via legacy admin id list",
			"space_id", sp.ID, "user_id", id.EffectiveUserID(), "username", id.Username)
	}
	return d
}

// AdminGate loads spaceID and returns a check admitting the identities that
// may administer it right now. Archived or missing spaces admit nobody.
func (s *SpaceService) AdminGate(ctx context.Context, spaceID string) (func(*identity.Identity) bool, error) {
	sp, err := s.dir.GetSpace(ctx, spaceID)
	if errors.Is(err, domain.ErrNotFound) {
		return func(*identity.Identity) bool { return false }, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load space %s: %w", spaceID, err)
	}
	return func(id *identity.Identity) bool {
		if id == nil || sp.Archived {
			return false
		}
		return s.Decide(ctx, id, sp).Allowed
	}, nil
}

// IsSuperAdmin reports whether id is on the super-admin allow-list.
func (s *SpaceService) IsSuperAdmin(id *identity.Identity) bool {
	return s.policy.IsSuperAdmin(id)
}

// Create provisions a new space. The id is generated unless supplied.
func (s *SpaceService) Create(ctx context.Context, req *space.CreateRequest, actor string) (*space.Space, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sp := &space.Space{
		ID:             strings.TrimSpace(req.ID),
		Name:           strings.TrimSpace(req.Name),
		Domains:        req.Domains,
		AdminUsernames: req.AdminUsernames,
		Creator:        req.Creator,
		Features:       req.Features,
		Config:         req.Config,
	}
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}
	sp.Normalize()

	if err := s.dir.CreateSpace(ctx, sp); err != nil {
		return nil, fmt.Errorf("create space: %w", err)
	}

	slog.InfoContext(ctx, "space created", "space_id", sp.ID, "actor", actor, "domains", sp.Domains)
	s.events.Emit(ctx, messagequeue.SpaceChangedPayload{
		SpaceID: sp.ID, Kind: messagequeue.SpaceCreated, Domains: sp.Domains, Actor: actor,
	})
	return sp, nil
}

// Get returns a space by id, archived or not.
func (s *SpaceService) Get(ctx context.Context, id string) (*space.Space, error) {
	return s.dir.GetSpace(ctx, id)
}

// List returns every space, optionally including archived ones.
func (s *SpaceService) List(ctx context.Context, includeArchived bool) ([]space.Space, error) {
	return s.dir.ListSpaces(ctx, includeArchived)
}

// Update applies the set fields of req to the space.
func (s *SpaceService) Update(ctx context.Context, id string, req *space.UpdateRequest, actor string) (*space.Space, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.edit(ctx, id, "update", messagequeue.SpaceUpdated, actor, func(sp *space.Space) (bool, error) {
		req.Apply(sp)
		return true, nil
	})
}

// AddAdmin grants space-admin rights to username. Adding an existing admin is a no-op.
func (s *SpaceService) AddAdmin(ctx context.Context, id, username, actor string) (*space.Space, error) {
	if space.NormalizeUsername(username) == "" {
		return nil, fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	return s.edit(ctx, id, "add_admin", messagequeue.SpaceAdminAdded, actor, func(sp *space.Space) (bool, error) {
		return sp.AddAdmin(username), nil
	})
}

// RemoveAdmin revokes space-admin rights from username. Removing a
// non-admin is a no-op; it never affects creator or super-admin rights.
func (s *SpaceService) RemoveAdmin(ctx context.Context, id, username, actor string) (*space.Space, error) {
	return s.edit(ctx, id, "remove_admin", messagequeue.SpaceAdminRemoved, actor, func(sp *space.Space) (bool, error) {
		return sp.RemoveAdmin(username), nil
	})
}

// Archive soft-archives a space. Archived spaces stop resolving.
func (s *SpaceService) Archive(ctx context.Context, id, actor string) (*space.Space, error) {
	return s.edit(ctx, id, "archive", messagequeue.SpaceArchived, actor, func(sp *space.Space) (bool, error) {
		if sp.Archived {
			return false, nil
		}
		sp.Archived = true
		return true, nil
	})
}

// edit loads the space, applies mutate and writes it back when it changed.
func (s *SpaceService) edit(ctx context.Context, id, op, kind, actor string, mutate func(*space.Space) (bool, error)) (*space.Space, error) {
	ctx, span := sgotel.StartAdminEditSpan(ctx, id, op)
	defer span.End()

	sp, err := s.dir.GetSpace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s space %s: %w", op, id, err)
	}
	before := slices.Clone(sp.Domains)

	changed, err := mutate(sp)
	if err != nil {
		return nil, err
	}
	if !changed {
		return sp, nil
	}

	if err := s.dir.UpdateSpace(ctx, sp); err != nil {
		return nil, fmt.Errorf("%s space %s: %w", op, id, err)
	}

	slog.InfoContext(ctx, "space edited", "space_id", id, "op", op, "actor", actor)
	s.events.Emit(ctx, messagequeue.SpaceChangedPayload{
		SpaceID: id, Kind: kind, Domains: union(before, sp.Domains), Actor: actor,
	})
	return sp, nil
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, v := range b {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
