// Package delegation manages delegates edges: granting a delegatee
// bounded record authority over a domain and revoking it again. Revoking
// cascades over every record created under the grant, remote store
// first, all or nothing.
package delegation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/authority"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/cache"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/names"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/recordstore"
	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

// Manager creates and removes delegations.
type Manager struct {
	store    graph.Store
	client   recordstore.Client
	resolver *authority.Resolver
	cache    cache.Cache
	log      *zap.Logger
}

// NewManager returns a Manager.
func NewManager(store graph.Store, client recordstore.Client, resolver *authority.Resolver, c cache.Cache, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, client: client, resolver: resolver, cache: c, log: log}
}

// Delegate grants delegatee authority over up to bound records in
// domain. Bound zero grants an unlimited number. Only the domain owner
// may delegate. The delegatee's cached tier is evicted so a memoized
// NONE does not outlive the grant.
func (m *Manager) Delegate(ctx context.Context, org, domain, delegatee string, bound int64) error {
	res, err := m.resolver.ResolveDomain(ctx, org, domain)
	if err != nil {
		return err
	}
	if res.Tier != authority.TierOwner {
		return apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"only the domain owner may delegate",
			map[string]string{"Organization": org, "Domain": domain},
		)
	}
	if bound < 0 {
		return apperrors.New(apperrors.CodeValidation, "delegation bound must not be negative")
	}
	if _, err := m.store.GetOrganization(ctx, delegatee); err != nil {
		return err
	}
	if err := m.store.Delegate(ctx, domain, delegatee, bound); err != nil {
		return err
	}
	m.evict(ctx, delegatee, domain)
	return nil
}

// Undelegate revokes delegatee's grant on domain. Every record created
// under the grant is deleted from the record store first; one failed
// remote deletion aborts the whole operation with the delegates edge and
// all delegateOf marks intact. Only after every remote deletion succeeds
// is the graph cascade committed.
func (m *Manager) Undelegate(ctx context.Context, org, domain, delegatee string) error {
	res, err := m.resolver.ResolveDomain(ctx, org, domain)
	if err != nil {
		return err
	}
	if res.Tier != authority.TierOwner {
		return apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"only the domain owner may revoke a delegation",
			map[string]string{"Organization": org, "Domain": domain},
		)
	}
	if _, ok, err := m.store.DelegationBound(ctx, domain, delegatee); err != nil {
		return err
	} else if !ok {
		return apperrors.WithMetadata(
			apperrors.CodeNotFound,
			"no delegation for organization on domain",
			map[string]string{"Organization": delegatee, "Domain": domain},
		)
	}

	records, err := m.store.DelegatedRecords(ctx, domain, delegatee)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		node, err := m.store.HostForDomain(ctx, domain)
		if err != nil {
			return err
		}
		host := recordstore.Host{
			Address:  node.Address,
			Username: node.StoreUsername,
			Password: node.StorePassword,
		}
		for _, record := range records {
			name, id, ok := names.Split(record.Name)
			if !ok {
				return apperrors.New(
					apperrors.CodeUnknown,
					fmt.Sprintf("malformed record key %q in graph", record.Name),
				)
			}
			remote := recordstore.Record{ID: id, Name: name, Type: record.Type, Content: record.Content}
			if err := m.client.RemoveRecord(ctx, host, domain, remote); err != nil {
				m.log.Error("undelegation aborted by remote deletion failure",
					zap.String("domain", domain),
					zap.String("delegatee", delegatee),
					zap.String("record", record.Name),
					zap.Error(err))
				return err
			}
		}
	}

	if err := m.store.RemoveDelegation(ctx, domain, delegatee); err != nil {
		return m.divergedCascade(domain, delegatee, err)
	}
	m.evict(ctx, delegatee, domain)
	return nil
}

// Delegatees lists the organizations holding a delegation on domain,
// with their bounds. Only the owner may ask.
func (m *Manager) Delegatees(ctx context.Context, org, domain string) ([]graph.Delegation, error) {
	res, err := m.resolver.ResolveDomain(ctx, org, domain)
	if err != nil {
		return nil, err
	}
	if res.Tier != authority.TierOwner {
		return nil, apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"only the domain owner may list delegatees",
			map[string]string{"Organization": org, "Domain": domain},
		)
	}
	orgs, err := m.store.Delegatees(ctx, domain)
	if err != nil {
		return nil, err
	}
	out := make([]graph.Delegation, 0, len(orgs))
	for _, delegatee := range orgs {
		bound, ok, err := m.store.DelegationBound(ctx, domain, delegatee)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, graph.Delegation{Domain: domain, Organization: delegatee, Bound: bound})
	}
	return out, nil
}

// evict drops the delegatee's cached tier and quota verdict for domain.
func (m *Manager) evict(ctx context.Context, delegatee, domain string) {
	m.resolver.Invalidate(ctx, delegatee, domain)
	if m.cache == nil {
		return
	}
	key := fmt.Sprintf(cache.BoundedKeyFormat, delegatee, domain)
	if err := m.cache.Delete(ctx, key); err != nil {
		m.log.Warn("quota cache eviction failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

func (m *Manager) divergedCascade(domain, delegatee string, cause error) error {
	m.log.Error("graph diverged from record store",
		zap.String("operation", "undelegate"),
		zap.String("domain", domain),
		zap.String("delegatee", delegatee),
		zap.Error(cause))
	return apperrors.Wrap(
		apperrors.CodeDiverged,
		"delegated records deleted remotely but graph cascade failed",
		cause,
	)
}
