// Package cache provides the read-through cache used in front of the message
// store. The Cache interface is the stable port the services depend on; the
// Redis and in-memory adapters live alongside it.
//
// Caching here is strictly an optimization: every helper in this package is
// nil-safe and swallows backend failures into misses, so a dead Redis never
// turns a readable database into an outage.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrMiss signals that a key is absent. Adapters return it from Get so
// callers can tell a miss from a transport error.
var ErrMiss = errors.New("cache: miss")

// Cache is the minimal key-value contract the services use. Implementations
// must be safe for concurrent use.
type Cache interface {
	// Get fetches the value stored at key, or ErrMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key for ttl. Zero or negative ttl persists the key
	// until evicted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// DelPattern removes every key matching a glob-style pattern and returns
	// how many were removed.
	DelPattern(ctx context.Context, pattern string) (int64, error)

	// Ping verifies connectivity with the backend.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// GetJSON fetches key and unmarshals it into dst. A nil cache, a miss, a
// backend error, and a corrupt payload all report false; the caller falls
// through to the store.
func GetJSON(ctx context.Context, c Cache, key string, dst any) bool {
	if c == nil {
		return false
	}
	raw, err := c.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), dst) == nil
}

// SetJSON marshals v and stores it at key. Failures are ignored; the next
// read simply misses.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Set(ctx, key, string(raw), ttl)
}

// Invalidate deletes every pattern in patterns, best effort.
func Invalidate(ctx context.Context, c Cache, patterns ...string) {
	if c == nil {
		return
	}
	for _, p := range patterns {
		_, _ = c.DelPattern(ctx, p)
	}
}
