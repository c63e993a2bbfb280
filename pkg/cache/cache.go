package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not present in the cache or its
// entry has expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Cache is the external key-value store shared by all bridge instances.
// Implementations must be safe for concurrent use; the bridge performs no
// locking of its own and tolerates concurrent writers racing on the same
// key (both converge on equivalent fresh data).
type Cache interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with the given TTL. A zero TTL means
	// the entry does not expire.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
