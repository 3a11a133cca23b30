// Package cachedstore puts a cache in front of an archive store. Archives are
// immutable once stored, so a cached value never goes stale before Delete.
package cachedstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/lFer17/codebase-gen/internal/port/artifactstore"
	"github.com/lFer17/codebase-gen/internal/port/cache"
)

// Store reads through cache and writes through to the backing store.
type Store struct {
	inner artifactstore.Store
	cache cache.Cache
	ttl   time.Duration
}

// New wraps inner with c. Entries live for ttl; zero keeps them until evicted.
func New(inner artifactstore.Store, c cache.Cache, ttl time.Duration) *Store {
	return &Store{inner: inner, cache: c, ttl: ttl}
}

// Put stores data in the backing store, then caches it.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := s.inner.Put(ctx, key, data); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		slog.Warn("archive cache set failed", "key", key, "error", err)
	}
	return nil
}

// Get serves key from the cache, falling back to the backing store and
// populating the cache on a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("archive cache get failed", "key", key, "error", err)
	}
	if found {
		return data, nil
	}

	data, err = s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		slog.Warn("archive cache set failed", "key", key, "error", err)
	}
	return data, nil
}

// Delete evicts key from the cache and removes it from the backing store.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("archive cache delete failed", "key", key, "error", err)
	}
	return s.inner.Delete(ctx, key)
}
