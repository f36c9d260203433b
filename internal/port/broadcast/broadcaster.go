// Package broadcast defines the port for pushing real-time events to connected clients.
package broadcast

import "context"

// Broadcaster sends events to the clients watching one space.
type Broadcaster interface {
	BroadcastToSpace(ctx context.Context, spaceID, eventType string, payload any)
}
