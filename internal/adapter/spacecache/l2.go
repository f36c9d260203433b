package spacecache

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// L2 is a cache.Cache over a NATS JetStream key-value bucket shared by all instances.
type L2 struct {
	kv jetstream.KeyValue
}

// NewL2 wraps kv. Entry expiry is the bucket TTL.
func NewL2(kv jetstream.KeyValue) *L2 {
	return &L2{kv: kv}
}

func (c *L2) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := c.kv.Get(ctx, kvKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entry.Value(), true, nil
}

func (c *L2) Set(ctx context.Context, key string, value []byte, _ time.Duration) error {
	_, err := c.kv.Put(ctx, kvKey(key), value)
	return err
}

func (c *L2) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, kvKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// kvKey encodes a cache key into the KV key alphabet [-/_=.a-zA-Z0-9].
// The encoding is reversible, so distinct cache keys never share a KV key.
func kvKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}
