// Package storage provides the durable key-value store backing sessions,
// rate-limit windows, and cached reviews.
package storage

import (
	"context"
	"time"
)

// KV is the narrow contract every adapter in this service persists through.
// A zero TTL means the entry never expires.
type KV interface {
	// Get returns the value for key. The second return is false on a miss
	// (absent or expired).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key with an optional TTL.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all live keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	Close() error
}
