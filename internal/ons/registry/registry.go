// Package registry manages the non-record side of the entity graph:
// organizations, record hosts, principals, and the affiliations between
// principals and organizations.
package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/authority"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/recordstore"
	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

// Role is the affiliation level granted when a membership request is
// approved.
type Role string

const (
	// RoleEmployee marks a principal as working for an organization.
	RoleEmployee Role = "employee"
	// RoleAdministrator lets a principal act on the organization's
	// behalf in every authority check.
	RoleAdministrator Role = "administrator"
)

// Registry wires graph lifecycle operations to authority checks.
type Registry struct {
	store    graph.Store
	client   recordstore.Client
	resolver *authority.Resolver
	log      *zap.Logger
}

// New returns a Registry.
func New(store graph.Store, client recordstore.Client, resolver *authority.Resolver, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: store, client: client, resolver: resolver, log: log}
}

// EnsurePrincipal creates the principal node on first sight. A principal
// that already exists is left untouched.
func (r *Registry) EnsurePrincipal(ctx context.Context, name string) error {
	principal := graph.Principal{Name: name}
	if err := graph.Validate(principal); err != nil {
		return err
	}
	if err := r.store.CreatePrincipal(ctx, principal); err != nil {
		if apperrors.Is(err, apperrors.CodeDuplicateName) {
			return nil
		}
		return err
	}
	return nil
}

// CreateOrganization creates an organization and makes the founding
// principal its administrator and employee.
func (r *Registry) CreateOrganization(ctx context.Context, principal, name string) error {
	org := graph.Organization{Name: name}
	if err := graph.Validate(org); err != nil {
		return err
	}
	if _, err := r.store.GetPrincipal(ctx, principal); err != nil {
		return err
	}
	if err := r.store.CreateOrganization(ctx, org); err != nil {
		return err
	}
	if err := r.store.SetAdministersOrg(ctx, principal, name); err != nil {
		return err
	}
	return r.store.SetWorksFor(ctx, principal, name)
}

// ListOrganizations returns every organization name.
func (r *Registry) ListOrganizations(ctx context.Context) ([]string, error) {
	return r.store.ListOrganizations(ctx)
}

// RegisterHost registers a record host under org: the host node plus the
// administers edge that makes org its manager.
func (r *Registry) RegisterHost(ctx context.Context, org string, host graph.RecordHost) error {
	if err := graph.Validate(host); err != nil {
		return err
	}
	if _, err := r.store.GetOrganization(ctx, org); err != nil {
		return err
	}
	if err := r.store.CreateHost(ctx, host); err != nil {
		return err
	}
	return r.store.SetAdministers(ctx, org, host.Address)
}

// RemoveHost deregisters the host at address. Every domain the host
// serves is dropped from the record store first, all or nothing; only
// after every remote drop succeeds is the graph cascade committed,
// removing the host, its domains, their records and all edges.
func (r *Registry) RemoveHost(ctx context.Context, org, address string) error {
	res, err := r.resolver.ResolveHost(ctx, org, address)
	if err != nil {
		return err
	}
	if res.Tier != authority.TierManager {
		return apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"only the administering organization may remove a host",
			map[string]string{"Organization": org, "Host": address},
		)
	}

	node, err := r.store.GetHost(ctx, address)
	if err != nil {
		return err
	}
	domains, err := r.store.DomainsOnHost(ctx, address)
	if err != nil {
		return err
	}
	host := recordstore.Host{
		Address:  node.Address,
		Username: node.StoreUsername,
		Password: node.StorePassword,
	}
	for _, domain := range domains {
		if err := r.client.RemoveDomain(ctx, host, domain); err != nil {
			r.log.Error("host removal aborted by remote domain drop failure",
				zap.String("host", address),
				zap.String("domain", domain),
				zap.Error(err))
			return err
		}
	}

	if err := r.store.DeleteHost(ctx, address); err != nil {
		r.log.Error("graph diverged from record store",
			zap.String("operation", "remove host"),
			zap.String("host", address),
			zap.Error(err))
		return apperrors.Wrap(
			apperrors.CodeDiverged,
			"hosted domains dropped remotely but graph cascade failed",
			err,
		)
	}
	return nil
}

// RequestMembership records a principal's pending request to join org.
func (r *Registry) RequestMembership(ctx context.Context, principal, org string) error {
	if _, err := r.store.GetPrincipal(ctx, principal); err != nil {
		return err
	}
	if _, err := r.store.GetOrganization(ctx, org); err != nil {
		return err
	}
	return r.store.SetRequestsOrg(ctx, principal, org)
}

// ApproveMembership turns candidate's pending request into a real
// affiliation. Only a principal administering org may approve.
func (r *Registry) ApproveMembership(ctx context.Context, approver, org, candidate string, role Role) error {
	if err := r.requireOrgAdmin(ctx, approver, org); err != nil {
		return err
	}
	if err := r.store.RemoveRequestsOrg(ctx, candidate, org); err != nil {
		return err
	}
	switch role {
	case RoleEmployee:
		return r.store.SetWorksFor(ctx, candidate, org)
	case RoleAdministrator:
		if err := r.store.SetWorksFor(ctx, candidate, org); err != nil {
			return err
		}
		return r.store.SetAdministersOrg(ctx, candidate, org)
	default:
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown role %q", role))
	}
}

// Affiliations returns org's membership buckets. Only an administrator
// of org may ask.
func (r *Registry) Affiliations(ctx context.Context, principal, org string) (graph.Affiliations, error) {
	if err := r.requireOrgAdmin(ctx, principal, org); err != nil {
		return graph.Affiliations{}, err
	}
	return r.store.OrgAffiliations(ctx, org)
}

// OrganizationsOf returns the organizations principal administers.
func (r *Registry) OrganizationsOf(ctx context.Context, principal string) ([]string, error) {
	return r.store.AdministeredOrgs(ctx, principal)
}

// OwnedDomains lists the domains org owns.
func (r *Registry) OwnedDomains(ctx context.Context, org string) ([]string, error) {
	return r.store.OwnedDomains(ctx, org)
}

// AdministeredHosts lists the hosts org manages.
func (r *Registry) AdministeredHosts(ctx context.Context, org string) ([]string, error) {
	return r.store.AdministeredHosts(ctx, org)
}

// DelegatedHosts lists the hosts serving at least one domain delegated
// to org.
func (r *Registry) DelegatedHosts(ctx context.Context, org string) ([]string, error) {
	return r.store.DelegatedHosts(ctx, org)
}

func (r *Registry) requireOrgAdmin(ctx context.Context, principal, org string) error {
	orgs, err := r.store.AdministeredOrgs(ctx, principal)
	if err != nil {
		return err
	}
	for _, name := range orgs {
		if name == org {
			return nil
		}
	}
	return apperrors.WithMetadata(
		apperrors.CodeUnauthorized,
		"principal does not administer the organization",
		map[string]string{"Principal": principal, "Organization": org},
	)
}
