// Package kv defines the flat key-value storage the application persists its
// state in, and ships the in-memory and single-file backends.
//
// The model deliberately mirrors browser local storage: string keys, opaque
// values, whole-value reads and writes, no transactions. Callers that need a
// read-modify-write sequence serialise it themselves.
//
// The SQL backends live in the sqlite and postgres subpackages.
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is a flat key-value store. Implementations must be safe for concurrent
// use.
type Store interface {
	// Get returns the value stored under key. ok is false when the key does not
	// exist.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
