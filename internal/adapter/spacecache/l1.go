// Package spacecache caches space directory reads in a bounded in-process L1
// (ristretto), optionally backed by a shared NATS KV L2.
package spacecache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// L1 is an in-process cache.Cache bounded by the total size of its values.
type L1 struct {
	c *ristretto.Cache[string, []byte]
}

// NewL1 creates a ristretto-backed cache holding at most maxBytes of values.
func NewL1(maxBytes int64) (*L1, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxBytes/100, 1000), // ~10x expected items of ~1KB
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &L1{c: c}, nil
}

func (c *L1) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.c.Get(key)
	return val, found, nil
}

// Set stores value and waits until it is visible to Get.
func (c *L1) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	c.c.Wait()
	return nil
}

func (c *L1) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close releases the cache's background goroutines.
func (c *L1) Close() {
	c.c.Close()
}
