// Package natsobj implements the archive store port using a NATS JetStream
// object store bucket.
package natsobj

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/lFer17/codebase-gen/internal/port/artifactstore"
)

// Store keeps archives as objects in a JetStream object store bucket.
type Store struct {
	nc  *nats.Conn
	obj jetstream.ObjectStore
}

// Connect establishes a connection to NATS and ensures the bucket exists.
func Connect(ctx context.Context, url, bucket string) (*Store, error) {
	nc, err := nats.Connect(url, nats.Name("codebase-gen"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	obj, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "generated codebase archives",
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream object store %s: %w", bucket, err)
	}

	slog.Info("nats connected", "url", url, "bucket", bucket)
	return &Store{nc: nc, obj: obj}, nil
}

// Put stores data under key, replacing any previous object.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if _, err := s.obj.PutBytes(ctx, key, data); err != nil {
		return fmt.Errorf("nats object put %s: %w", key, err)
	}
	return nil
}

// Get returns the object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.obj.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", artifactstore.ErrNotFound, key)
		}
		return nil, fmt.Errorf("nats object get %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the object stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.obj.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("nats object delete %s: %w", key, err)
	}
	return nil
}

// Close drains the NATS connection.
func (s *Store) Close() error {
	return s.nc.Drain()
}
