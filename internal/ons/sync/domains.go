package sync

import (
	"context"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/authority"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/recordstore"
	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

// CreateDomain creates domain on the host at address and mirrors it into
// the graph: the domain node, a hosts edge, and an owns edge making org
// the owner. Only an organization administering the host may create
// domains on it. A duplicate-entry rejection from the store is treated
// as the domain already existing remotely.
func (s *Synchronizer) CreateDomain(ctx context.Context, org, address, domain string) error {
	res, err := s.resolver.ResolveHost(ctx, org, address)
	if err != nil {
		return err
	}
	if res.Tier != authority.TierManager {
		return unauthorized(org, domain, "create a domain on this host")
	}
	if err := graph.Validate(graph.Domain{Name: domain}); err != nil {
		return err
	}

	node, err := s.store.GetHost(ctx, address)
	if err != nil {
		return err
	}
	host := recordstore.Host{
		Address:  node.Address,
		Username: node.StoreUsername,
		Password: node.StorePassword,
	}
	if err := s.client.CreateDomain(ctx, host, domain); err != nil {
		if !recordstore.IsDuplicateEntry(err) {
			return err
		}
	}

	if err := s.store.CreateDomain(ctx, graph.Domain{Name: domain}); err != nil {
		if !apperrors.Is(err, apperrors.CodeDuplicateName) {
			return s.diverged("create domain", domain, err)
		}
	}
	if err := s.store.SetHosts(ctx, address, domain); err != nil {
		return s.diverged("create domain", domain, err)
	}
	if err := s.store.SetOwner(ctx, org, domain); err != nil {
		if !apperrors.Is(err, apperrors.CodeDuplicateName) {
			return s.diverged("create domain", domain, err)
		}
		owner, ownerErr := s.store.IsOwner(ctx, org, domain)
		if ownerErr != nil {
			return ownerErr
		}
		if !owner {
			return err
		}
	}
	s.resolver.Invalidate(ctx, org, domain)
	return nil
}

// RemoveDomain drops domain from its host and cascades the graph side:
// the domain node, its records, and every edge touching them. Only the
// owner may remove a domain. The remote drop happens first; a remote
// failure leaves the graph untouched.
func (s *Synchronizer) RemoveDomain(ctx context.Context, org, domain string) error {
	res, err := s.resolver.ResolveDomain(ctx, org, domain)
	if err != nil {
		return err
	}
	if res.Tier != authority.TierOwner {
		return unauthorized(org, domain, "remove domain")
	}

	host, err := s.hostFor(ctx, domain)
	if err != nil {
		return err
	}
	if err := s.client.RemoveDomain(ctx, host, domain); err != nil {
		return err
	}
	if err := s.store.DeleteDomain(ctx, domain); err != nil {
		return s.diverged("remove domain", domain, err)
	}
	return nil
}

// ListHostDomains lists the domains served by the host at address. A
// manager sees the record store's authoritative list; a delegatee of any
// hosted domain gets the same list read-only.
func (s *Synchronizer) ListHostDomains(ctx context.Context, org, address string) ([]string, error) {
	res, err := s.resolver.ResolveHost(ctx, org, address)
	if err != nil {
		return nil, err
	}
	if res.Tier != authority.TierManager && res.Tier != authority.TierDelegatee {
		return nil, unauthorized(org, address, "list domains on this host")
	}

	node, err := s.store.GetHost(ctx, address)
	if err != nil {
		return nil, err
	}
	host := recordstore.Host{
		Address:  node.Address,
		Username: node.StoreUsername,
		Password: node.StorePassword,
	}
	return s.client.ListDomains(ctx, host)
}
