// Package kvstore provides the small durable key-value store used to
// persist sync manifests. Writes are atomic at the key level: a reader
// never observes a half-written value.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read for absent keys.
var ErrNotFound = errors.New("kvstore: key not found")

type Store interface {
	// Read returns the value stored under key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// WriteAtomic replaces the value under key in one atomic step.
	WriteAtomic(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
