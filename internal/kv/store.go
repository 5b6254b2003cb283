// Package kv abstracts the TTL-capable key-value store backing counters,
// cache entries, progress records and breaker flags. Handlers and the
// consumer depend on the Store interface only; production wires Redis,
// tests wire the in-memory fake.
package kv

import (
	"context"
	"time"
)

// Store is the minimal contract the bridge needs from its shared state
// store. All writes are best-effort; callers tolerate lost increments
// under concurrent access.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes a value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes only when the key is absent and reports whether the
	// write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr atomically increments an integer counter, creating it at 1.
	// The ttl applies only when the key has no expiry yet.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// IncrByFloat atomically adds delta to a float accumulator.
	IncrByFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error)
	// Delete removes keys, ignoring ones that do not exist.
	Delete(ctx context.Context, keys ...string) error
}
