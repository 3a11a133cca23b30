// Package ristretto implements the cache port with an in-process
// dgraph-io/ristretto cache, cost-bounded by value size.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// typicalArchiveBytes sizes the admission counters; ristretto wants about ten
// counters per item the cache is expected to hold when full.
const typicalArchiveBytes = 32 << 10

// Cache holds byte values keyed by string, bounded by total value size.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most maxCostBytes of values.
func New(maxCostBytes int64) (*Cache, error) {
	counters := max(maxCostBytes/typicalArchiveBytes*10, 1000)
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the cached value for key.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := c.c.Get(key)
	return val, found, nil
}

// Set caches value under key for ttl. A zero ttl never expires. Admission is
// asynchronous and values larger than the whole cache are dropped.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete evicts key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until pending Sets have been applied.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
