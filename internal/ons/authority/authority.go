// Package authority resolves which access tier an organization or
// principal holds over a domain or record host.
package authority

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/cache"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph"
)

// Tier is the level of access a resolution grants.
type Tier string

const (
	// TierOwner grants full authority over a domain.
	TierOwner Tier = "OWNER"
	// TierDelegatee grants bounded record authority over a domain, or
	// read-only domain listing when resolved against a host.
	TierDelegatee Tier = "DELEGATEE"
	// TierManager grants domain create/drop authority over a host.
	TierManager Tier = "MANAGER"
	// TierNone grants nothing.
	TierNone Tier = "NONE"
)

// Resolution is the outcome of an authority lookup. Bound carries the
// delegation bound when Tier is TierDelegatee; zero means unlimited.
type Resolution struct {
	Tier  Tier
	Bound int64
}

// Resolver answers authority questions from the entity graph, memoized
// through an advisory TTL cache.
type Resolver struct {
	store graph.Store
	cache cache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewResolver returns a Resolver over store memoized through c.
func NewResolver(store graph.Store, c cache.Cache, ttl time.Duration, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: store, cache: c, ttl: ttl, log: log}
}

// ResolveDomain determines the tier org holds over domain. Owner wins
// over delegatee when both edges exist. Every outcome, including NONE,
// is cached under "{org}:{domain}" with refresh-on-hit.
func (r *Resolver) ResolveDomain(ctx context.Context, org, domain string) (Resolution, error) {
	key := fmt.Sprintf(cache.TierKeyFormat, org, domain)
	if res, ok := r.cached(ctx, key); ok {
		return res, nil
	}

	owner, err := r.store.IsOwner(ctx, org, domain)
	if err != nil {
		return Resolution{}, err
	}
	if owner {
		res := Resolution{Tier: TierOwner}
		r.memoize(ctx, key, res)
		return res, nil
	}

	bound, ok, err := r.store.DelegationBound(ctx, domain, org)
	if err != nil {
		return Resolution{}, err
	}
	if ok {
		res := Resolution{Tier: TierDelegatee, Bound: bound}
		r.memoize(ctx, key, res)
		return res, nil
	}

	res := Resolution{Tier: TierNone}
	r.memoize(ctx, key, res)
	return res, nil
}

// ResolvePrincipalDomain maps a principal to the organizations it
// administers and resolves the best tier any of them holds over domain.
func (r *Resolver) ResolvePrincipalDomain(ctx context.Context, principal, domain string) (Resolution, string, error) {
	orgs, err := r.store.AdministeredOrgs(ctx, principal)
	if err != nil {
		return Resolution{}, "", err
	}
	best := Resolution{Tier: TierNone}
	bestOrg := ""
	for _, org := range orgs {
		res, err := r.ResolveDomain(ctx, org, domain)
		if err != nil {
			return Resolution{}, "", err
		}
		if res.Tier == TierOwner {
			return res, org, nil
		}
		if res.Tier == TierDelegatee && best.Tier == TierNone {
			best = res
			bestOrg = org
		}
	}
	return best, bestOrg, nil
}

// ResolveHost determines the tier org holds over the host at address:
// MANAGER through an administers edge, DELEGATEE when org is delegatee
// of any domain the host serves (read-only listing only), else NONE.
// Host resolutions are not cached.
func (r *Resolver) ResolveHost(ctx context.Context, org, address string) (Resolution, error) {
	manages, err := r.store.Administers(ctx, org, address)
	if err != nil {
		return Resolution{}, err
	}
	if manages {
		return Resolution{Tier: TierManager}, nil
	}
	delegatee, err := r.store.IsDelegateeOfHostedDomain(ctx, org, address)
	if err != nil {
		return Resolution{}, err
	}
	if delegatee {
		return Resolution{Tier: TierDelegatee}, nil
	}
	return Resolution{Tier: TierNone}, nil
}

// Invalidate evicts the cached tier for (org, domain). Callers invoke it
// after creating an owns or delegates edge so a cached NONE does not
// outlive the new grant. Eviction is advisory; failures are logged only.
func (r *Resolver) Invalidate(ctx context.Context, org, domain string) {
	if r.cache == nil {
		return
	}
	key := fmt.Sprintf(cache.TierKeyFormat, org, domain)
	if err := r.cache.Delete(ctx, key); err != nil {
		r.log.Warn("authority cache eviction failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (r *Resolver) cached(ctx context.Context, key string) (Resolution, bool) {
	if r.cache == nil {
		return Resolution{}, false
	}
	value, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.log.Warn("authority cache read failed",
			zap.String("key", key),
			zap.Error(err))
		return Resolution{}, false
	}
	if !ok {
		return Resolution{}, false
	}
	res, ok := decodeResolution(string(value))
	if !ok {
		return Resolution{}, false
	}
	if err := r.cache.RefreshExpiry(ctx, key, r.ttl); err != nil {
		r.log.Warn("authority cache refresh failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return res, true
}

func (r *Resolver) memoize(ctx context.Context, key string, res Resolution) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetWithExpiry(ctx, key, []byte(encodeResolution(res)), r.ttl); err != nil {
		r.log.Warn("authority cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

func encodeResolution(res Resolution) string {
	if res.Tier == TierDelegatee {
		return string(TierDelegatee) + ":" + strconv.FormatInt(res.Bound, 10)
	}
	return string(res.Tier)
}

func decodeResolution(value string) (Resolution, bool) {
	switch {
	case value == string(TierOwner):
		return Resolution{Tier: TierOwner}, true
	case value == string(TierNone):
		return Resolution{Tier: TierNone}, true
	case value == string(TierManager):
		return Resolution{Tier: TierManager}, true
	case strings.HasPrefix(value, string(TierDelegatee)+":"):
		bound, err := strconv.ParseInt(value[len(TierDelegatee)+1:], 10, 64)
		if err != nil {
			return Resolution{}, false
		}
		return Resolution{Tier: TierDelegatee, Bound: bound}, true
	}
	return Resolution{}, false
}
