package logger

import "context"

type (
	requestIDKey struct{}
	spaceIDKey   struct{}
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithSpaceID records the resolved space id for log correlation.
func WithSpaceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, spaceIDKey{}, id)
}

// SpaceID returns the space id stored by WithSpaceID, or "".
func SpaceID(ctx context.Context) string {
	id, _ := ctx.Value(spaceIDKey{}).(string)
	return id
}
