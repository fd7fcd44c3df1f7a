// Package quota enforces per-delegatee record bounds. The check is
// advisory: it runs synchronously before a delegatee creation but does
// not lock, so concurrent creations may land slightly over bound.
package quota

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/cache"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph"
	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

// unboundedVerdict is the cached value for delegations with bound zero.
// Bounded delegations are never cached; their count must be fresh.
const unboundedVerdict = "unbounded"

// Enforcer decides whether a delegatee may create another record.
type Enforcer struct {
	store graph.Store
	cache cache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewEnforcer returns an Enforcer over store memoized through c.
func NewEnforcer(store graph.Store, c cache.Cache, ttl time.Duration, log *zap.Logger) *Enforcer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Enforcer{store: store, cache: c, ttl: ttl, log: log}
}

// ExceededBound reports whether org has used up its delegation bound on
// domain. Bound zero means unlimited and is cached under
// "{org}:{domain}:isBounded" with refresh-on-hit; bounded delegations
// count live records on every call. A missing delegation is NOT_FOUND.
func (e *Enforcer) ExceededBound(ctx context.Context, org, domain string) (bool, error) {
	key := fmt.Sprintf(cache.BoundedKeyFormat, org, domain)
	if e.cachedUnbounded(ctx, key) {
		return false, nil
	}

	bound, ok, err := e.store.DelegationBound(ctx, domain, org)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, apperrors.WithMetadata(
			apperrors.CodeNotFound,
			"no delegation for organization on domain",
			map[string]string{"Organization": org, "Domain": domain},
		)
	}
	if bound == 0 {
		e.memoizeUnbounded(ctx, key)
		return false, nil
	}

	count, err := e.store.CountDelegatedRecords(ctx, domain, org)
	if err != nil {
		return false, err
	}
	return count >= bound, nil
}

func (e *Enforcer) cachedUnbounded(ctx context.Context, key string) bool {
	if e.cache == nil {
		return false
	}
	value, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.log.Warn("quota cache read failed",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	if !ok || string(value) != unboundedVerdict {
		return false
	}
	if err := e.cache.RefreshExpiry(ctx, key, e.ttl); err != nil {
		e.log.Warn("quota cache refresh failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return true
}

func (e *Enforcer) memoizeUnbounded(ctx context.Context, key string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetWithExpiry(ctx, key, []byte(unboundedVerdict), e.ttl); err != nil {
		e.log.Warn("quota cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
}
