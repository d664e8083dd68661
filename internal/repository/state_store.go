package repository

import (
	"context"
	"time"
)

// StateStore abstracts ephemeral key-value state.
// Implementations: in-memory (default, single process) or Redis.
//
// Get returns (nil, nil) when the key was never set or its TTL has elapsed.
// Set unconditionally overwrites.
type StateStore interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
