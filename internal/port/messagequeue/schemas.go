package messagequeue

import "time"

// Space change kinds carried in SpaceChangedPayload.Kind.
const (
	SpaceCreated      = "space.created"
	SpaceUpdated      = "space.updated"
	SpaceAdminAdded   = "space.admin_added"
	SpaceAdminRemoved = "space.admin_removed"
	SpaceArchived     = "space.archived"
)

// SpaceChangedPayload is the schema for spaces.changed messages. Domains lists
// every hostname the space owned before or after the write, so receivers can
// evict stale by-domain cache entries.
type SpaceChangedPayload struct {
	SpaceID string    `json:"space_id"`
	Kind    string    `json:"kind"`
	Domains []string  `json:"domains,omitempty"`
	Actor   string    `json:"actor,omitempty"`
	Origin  string    `json:"origin,omitempty"` // publishing instance id
	At      time.Time `json:"at"`
}
