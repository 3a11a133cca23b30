// Package artifactstore defines the port for storing generated archives.
package artifactstore

import (
	"context"
	"errors"
)

// ErrNotFound indicates no archive is stored under the key.
var ErrNotFound = errors.New("artifact not found")

// Store persists archives under opaque slash-separated keys. Keys are unique
// per job, so concurrent writers never share a key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
