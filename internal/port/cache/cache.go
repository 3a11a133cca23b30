// Package cache defines the port for byte-value caches placed in front of
// slower stores.
package cache

import (
	"context"
	"time"
)

// Cache is a key-value cache. Get reports a miss with found=false and a nil
// error; errors are reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
