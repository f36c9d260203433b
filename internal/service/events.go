package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/spacegate/internal/port/broadcast"
	"github.com/Strob0t/spacegate/internal/port/messagequeue"
)

// Invalidator drops cached directory entries for a space.
type Invalidator interface {
	Invalidate(ctx context.Context, spaceID string, domains []string)
}

// SpaceEvents fans space changes out to websocket clients and, when a queue
// is configured, to every other instance.
type SpaceEvents struct {
	queue       messagequeue.Queue
	hub         broadcast.Broadcaster
	invalidator Invalidator
	origin      string
}

// NewSpaceEvents creates the fan-out. Any dependency may be nil.
func NewSpaceEvents(queue messagequeue.Queue, hub broadcast.Broadcaster, invalidator Invalidator) *SpaceEvents {
	return &SpaceEvents{queue: queue, hub: hub, invalidator: invalidator, origin: uuid.NewString()}
}

// Emit announces a completed space write. With a queue the event reaches
// this instance through Handle like any other; without one it is delivered
// locally. Publish failures are logged: the write has already succeeded.
func (e *SpaceEvents) Emit(ctx context.Context, p messagequeue.SpaceChangedPayload) {
	if e == nil {
		return
	}
	p.Origin = e.origin
	if p.At.IsZero() {
		p.At = time.Now().UTC()
	}

	if e.queue == nil {
		e.deliver(ctx, p)
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		slog.ErrorContext(ctx, "marshal space event", "error", err)
		return
	}
	if err := e.queue.Publish(ctx, messagequeue.SubjectSpaceChanged, data); err != nil {
		slog.ErrorContext(ctx, "publish space event failed, delivering locally", "space_id", p.SpaceID, "error", err)
		e.deliver(ctx, p)
	}
}

// Handle is the messagequeue.Handler for SubjectSpaceChanged.
func (e *SpaceEvents) Handle(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.SpaceChangedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode space event: %w", err)
	}
	if p.Origin != e.origin && e.invalidator != nil {
		e.invalidator.Invalidate(ctx, p.SpaceID, p.Domains)
	}
	if e.hub != nil {
		e.hub.BroadcastToSpace(ctx, p.SpaceID, p.Kind, p)
	}
	return nil
}

// Subscribe attaches Handle to the queue. It is a no-op without a queue.
func (e *SpaceEvents) Subscribe(ctx context.Context) (func(), error) {
	if e.queue == nil {
		return func() {}, nil
	}
	return e.queue.Subscribe(ctx, messagequeue.SubjectSpaceChanged, e.Handle)
}

func (e *SpaceEvents) deliver(ctx context.Context, p messagequeue.SpaceChangedPayload) {
	if e.hub != nil {
		e.hub.BroadcastToSpace(ctx, p.SpaceID, p.Kind, p)
	}
}
