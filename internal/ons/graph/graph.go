// Package graph defines the entity graph behind the ONS authority model:
// five node kinds (Organization, Domain, RecordHost, Record, Principal)
// and the directed relationships between them. Implementations persist
// the graph; callers never issue raw queries.
package graph

import "context"

// Organization is a company-level principal that can own domains and
// administer record hosts.
type Organization struct {
	Name string `validate:"required,min=2,max=25,org_name"`
}

// Domain is a delegatable namespace owned by at most one organization.
type Domain struct {
	Name string `validate:"required,min=2,max=100,domain_name"`
}

// RecordHost is an administrative server that physically serves domains.
// The address is "ip:port"; the credentials authenticate record-store
// RPC calls against that host.
type RecordHost struct {
	Address       string `validate:"required,min=2,max=25,host_address"`
	StoreUsername string `validate:"required,min=2,max=50,store_username"`
	StorePassword string `validate:"required,min=2,max=50,store_password"`
}

// Record mirrors one external-store record. Name is the composite graph
// key "fqdn:id" where id is the external store's numeric identifier.
type Record struct {
	Name    string `validate:"required,min=2,max=120,record_name"`
	Type    string `validate:"required,min=1,max=25,record_type"`
	Content string `validate:"required,min=1,max=200"`
}

// Principal is a human user affiliated with organizations.
type Principal struct {
	Name string `validate:"required,min=2,max=25,org_name"`
}

// Delegation is a delegates edge with its record bound. Bound zero means
// the delegatee may hold an unlimited number of records.
type Delegation struct {
	Domain       string
	Organization string
	Bound        int64
}

// Affiliations groups the principals related to one organization by
// relationship kind. Principals in none of the three buckets land in
// Others so callers can render membership pickers.
type Affiliations struct {
	Employees      []string
	Administrators []string
	Requests       []string
	Others         []string
}

// Store is the typed repository over the entity graph. Every method is
// an exact-key pattern match, create or delete; there is no generic
// query surface. All errors carry platform error codes: duplicate keys
// surface DUPLICATE_NAME, missing nodes NOT_FOUND, and anything that
// indicates the store itself misbehaving GRAPH_UNAVAILABLE.
type Store interface {
	// Organization nodes.
	CreateOrganization(ctx context.Context, org Organization) error
	GetOrganization(ctx context.Context, name string) (Organization, error)
	ListOrganizations(ctx context.Context) ([]string, error)

	// Domain nodes. DeleteDomain removes the domain node, every record
	// it contains, and all edges touching them.
	CreateDomain(ctx context.Context, domain Domain) error
	GetDomain(ctx context.Context, name string) (Domain, error)
	DeleteDomain(ctx context.Context, name string) error

	// RecordHost nodes. DeleteHost cascades through hosted domains and
	// their records.
	CreateHost(ctx context.Context, host RecordHost) error
	GetHost(ctx context.Context, address string) (RecordHost, error)
	DeleteHost(ctx context.Context, address string) error

	// Principal nodes.
	CreatePrincipal(ctx context.Context, principal Principal) error
	GetPrincipal(ctx context.Context, name string) (Principal, error)

	// Record nodes. CreateRecord adds the node plus its contains edge;
	// when delegatee is non-empty a delegateOf edge is added too.
	// LookupRecord returns ok=false, not an error, for absent records.
	CreateRecord(ctx context.Context, domain string, record Record, delegatee string) error
	LookupRecord(ctx context.Context, composite string) (Record, bool, error)
	UpdateRecord(ctx context.Context, oldComposite string, record Record) error
	DeleteRecord(ctx context.Context, domain, composite string) error
	DeleteDomainRecords(ctx context.Context, domain string) error
	DomainRecords(ctx context.Context, domain string) ([]Record, error)

	// owns edges. The owner is structurally unique per domain: setting
	// a second owner fails with DUPLICATE_NAME.
	SetOwner(ctx context.Context, org, domain string) error
	IsOwner(ctx context.Context, org, domain string) (bool, error)
	OwnedDomains(ctx context.Context, org string) ([]string, error)

	// administers edges.
	SetAdministers(ctx context.Context, org, hostAddress string) error
	Administers(ctx context.Context, org, hostAddress string) (bool, error)
	AdministeredHosts(ctx context.Context, org string) ([]string, error)

	// hosts edges.
	SetHosts(ctx context.Context, hostAddress, domain string) error
	HostForDomain(ctx context.Context, domain string) (RecordHost, error)
	DomainsOnHost(ctx context.Context, hostAddress string) ([]string, error)

	// delegates and delegateOf edges.
	Delegate(ctx context.Context, domain, org string, bound int64) error
	DelegationBound(ctx context.Context, domain, org string) (bound int64, ok bool, err error)
	Delegatees(ctx context.Context, domain string) ([]string, error)
	DelegatedRecords(ctx context.Context, domain, org string) ([]Record, error)
	CountDelegatedRecords(ctx context.Context, domain, org string) (int64, error)
	// RemoveDelegation detaches the delegates edge and deletes every
	// record reachable via delegateOf from the organization and
	// contains from the domain, in one transaction.
	RemoveDelegation(ctx context.Context, domain, org string) error
	IsDelegateeOfHostedDomain(ctx context.Context, org, hostAddress string) (bool, error)
	DelegatedHosts(ctx context.Context, org string) ([]string, error)

	// Principal-to-organization edges.
	SetWorksFor(ctx context.Context, principal, org string) error
	SetAdministersOrg(ctx context.Context, principal, org string) error
	SetRequestsOrg(ctx context.Context, principal, org string) error
	RemoveRequestsOrg(ctx context.Context, principal, org string) error
	AdministeredOrgs(ctx context.Context, principal string) ([]string, error)
	OrgAffiliations(ctx context.Context, org string) (Affiliations, error)
}
