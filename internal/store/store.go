// Package store provides the shared key/value and counter backends used for
// response caching, knowledge snapshots and rate limiting.
package store

import (
	"context"
	"time"
)

// KV is a byte-oriented key/value store with per-key expiry.
// A ttl of zero means the entry does not expire.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Hit is the outcome of a capped increment.
type Hit struct {
	Count   int           // value after the call; never exceeds the limit
	Allowed bool          // false when the counter was already at the limit
	ResetIn time.Duration // time until the window expires
}

// Counter is a fixed-window counter whose check and increment happen atomically.
type Counter interface {
	// IncrementCapped increments key unless it already reached limit.
	// The window starts with the first increment and is not extended by later ones.
	IncrementCapped(ctx context.Context, key string, limit int, window time.Duration) (Hit, error)
}

// Store is a backend that provides both capabilities.
type Store interface {
	KV
	Counter
	Close() error
}
