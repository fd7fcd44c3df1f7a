// Package cache defines the best-effort TTL cache consumed by the
// authority resolver and quota enforcer. Entries are advisory: a miss
// or a cache fault never fails the caller, and invalidation on edge
// creation is a courtesy, not a guarantee.
package cache

import (
	"context"
	"time"
)

// Keys follow the original deployment's layout.
const (
	// TierKeyFormat caches the authority tier for an (org, domain) pair.
	TierKeyFormat = "%s:%s"
	// MappedHostKeyFormat caches the host descriptor for a domain.
	MappedHostKeyFormat = "%s:mappedHost"
	// BoundedKeyFormat caches an unbounded-quota verdict.
	BoundedKeyFormat = "%s:%s:isBounded"
)

// Cache is a get/set-with-expiry capability. Implementations must treat
// absent keys as a normal condition, not an error.
type Cache interface {
	// Get returns the value for key, or ok=false when absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// SetWithExpiry stores value under key for the given TTL.
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// RefreshExpiry extends a live entry's TTL without changing its
	// value. Refreshing an absent key is a no-op.
	RefreshExpiry(ctx context.Context, key string, ttl time.Duration) error
	// Delete evicts a key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}
