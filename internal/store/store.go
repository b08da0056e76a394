// Package store implements byte-addressed storage providers.
//
// A Store is a flat key/value space over opaque string keys. The engine
// layers namespaces (objects, meta, refs) on top of it and treats any
// value written under a content key as immutable once put. Backends
// stay deliberately simple: local filesystem and in-memory providers
// share one afero-based implementation.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = errors.New("store: not found")

// Store handles byte-addressed storage.
type Store interface {
	// Get retrieves the value for a key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a value under a key, overwriting any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Has checks whether a key exists.
	Has(ctx context.Context, key string) (bool, error)

	// Delete removes a key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Keys lists all keys under the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
