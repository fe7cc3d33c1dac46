// Package cache stores decoded API responses keyed by entity and query so list
// and detail screens can skip the upstream round trip until a mutation lands.
package cache

import (
	"context"
	"errors"
	"net/url"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is the storage abstraction behind Query.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Invalidate drops every key created by Key for the given entity prefix.
	Invalidate(ctx context.Context, prefix string) error
}

// Key builds the cache key for an entity read. Parameters are encoded in
// sorted order so equal queries share a key.
func Key(entity string, params url.Values) string {
	return entity + ":" + params.Encode()
}

func matches(key, prefix string) bool {
	p := prefix + ":"
	return len(key) >= len(p) && key[:len(p)] == p
}
