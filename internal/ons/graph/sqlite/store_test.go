package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph"
	onserrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustCreateOrg(t *testing.T, store *Store, name string) {
	t.Helper()
	if err := store.CreateOrganization(context.Background(), graph.Organization{Name: name}); err != nil {
		t.Fatalf("create organization %s: %v", name, err)
	}
}

func mustCreateDomain(t *testing.T, store *Store, name string) {
	t.Helper()
	if err := store.CreateDomain(context.Background(), graph.Domain{Name: name}); err != nil {
		t.Fatalf("create domain %s: %v", name, err)
	}
}

func hasCode(err error, code onserrors.Code) bool {
	return errors.Is(err, onserrors.New(code, ""))
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestCreateOrganizationRejectsDuplicates(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	mustCreateOrg(t, store, "acme")

	err := store.CreateOrganization(context.Background(), graph.Organization{Name: "acme"})
	if !hasCode(err, onserrors.CodeDuplicateName) {
		t.Fatalf("expected DUPLICATE_NAME, got %v", err)
	}
}

func TestCreateOrganizationValidatesName(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	err := store.CreateOrganization(context.Background(), graph.Organization{Name: "bad name"})
	if !hasCode(err, onserrors.CodeValidation) {
		t.Fatalf("expected VALIDATION, got %v", err)
	}
}

func TestGetOrganizationNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	_, err := store.GetOrganization(context.Background(), "ghost")
	if !hasCode(err, onserrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestOwnerIsStructurallyUnique(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustCreateOrg(t, store, "acme")
	mustCreateOrg(t, store, "rival")
	mustCreateDomain(t, store, "acme.io")

	if err := store.SetOwner(ctx, "acme", "acme.io"); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	err := store.SetOwner(ctx, "rival", "acme.io")
	if !hasCode(err, onserrors.CodeDuplicateName) {
		t.Fatalf("expected second owner to fail with DUPLICATE_NAME, got %v", err)
	}

	owner, err := store.IsOwner(ctx, "acme", "acme.io")
	if err != nil || !owner {
		t.Fatalf("IsOwner(acme) = (%v, %v), want (true, nil)", owner, err)
	}
	owner, err = store.IsOwner(ctx, "rival", "acme.io")
	if err != nil || owner {
		t.Fatalf("IsOwner(rival) = (%v, %v), want (false, nil)", owner, err)
	}
}

func TestRecordLifecycle(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustCreateOrg(t, store, "acme")
	mustCreateDomain(t, store, "acme.io")

	rec := graph.Record{Name: "www.acme.io:1", Type: "A", Content: "1.2.3.4"}
	if err := store.CreateRecord(ctx, "acme.io", rec, ""); err != nil {
		t.Fatalf("create record: %v", err)
	}

	got, ok, err := store.LookupRecord(ctx, "www.acme.io:1")
	if err != nil || !ok {
		t.Fatalf("lookup record = (%v, %v)", ok, err)
	}
	if got.Type != "A" || got.Content != "1.2.3.4" {
		t.Fatalf("record = %+v", got)
	}

	records, err := store.DomainRecords(ctx, "acme.io")
	if err != nil {
		t.Fatalf("domain records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	updated := graph.Record{Name: "www2.acme.io:1", Type: "A", Content: "5.6.7.8"}
	if err := store.UpdateRecord(ctx, "www.acme.io:1", updated); err != nil {
		t.Fatalf("update record: %v", err)
	}
	if _, ok, _ := store.LookupRecord(ctx, "www.acme.io:1"); ok {
		t.Fatal("old record key should be gone")
	}
	records, err = store.DomainRecords(ctx, "acme.io")
	if err != nil || len(records) != 1 || records[0].Name != "www2.acme.io:1" {
		t.Fatalf("contains edge should follow rename, got %v (%v)", records, err)
	}

	if err := store.DeleteRecord(ctx, "acme.io", "www2.acme.io:1"); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if _, ok, _ := store.LookupRecord(ctx, "www2.acme.io:1"); ok {
		t.Fatal("deleted record still present")
	}
}

func TestUpdateRecordNotFound(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	err := store.UpdateRecord(context.Background(), "ghost.acme.io:9",
		graph.Record{Name: "x.acme.io:9", Type: "A", Content: "1.1.1.1"})
	if !hasCode(err, onserrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestDelegationTriangleCount(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustCreateOrg(t, store, "acme")
	mustCreateOrg(t, store, "bob")
	mustCreateDomain(t, store, "acme.io")
	if err := store.Delegate(ctx, "acme.io", "bob", 3); err != nil {
		t.Fatalf("delegate: %v", err)
	}

	// Two delegated records and one owner-created record.
	for _, rec := range []struct {
		record    graph.Record
		delegatee string
	}{
		{graph.Record{Name: "a.acme.io:1", Type: "A", Content: "1.1.1.1"}, "bob"},
		{graph.Record{Name: "b.acme.io:2", Type: "A", Content: "2.2.2.2"}, "bob"},
		{graph.Record{Name: "c.acme.io:3", Type: "A", Content: "3.3.3.3"}, ""},
	} {
		if err := store.CreateRecord(ctx, "acme.io", rec.record, rec.delegatee); err != nil {
			t.Fatalf("create record %s: %v", rec.record.Name, err)
		}
	}

	count, err := store.CountDelegatedRecords(ctx, "acme.io", "bob")
	if err != nil {
		t.Fatalf("count delegated records: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	bound, ok, err := store.DelegationBound(ctx, "acme.io", "bob")
	if err != nil || !ok || bound != 3 {
		t.Fatalf("bound = (%d, %v, %v), want (3, true, nil)", bound, ok, err)
	}

	delegated, err := store.DelegatedRecords(ctx, "acme.io", "bob")
	if err != nil || len(delegated) != 2 {
		t.Fatalf("delegated records = %v (%v), want 2", delegated, err)
	}
}

func TestRemoveDelegationDeletesOnlyDelegatedRecords(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustCreateOrg(t, store, "acme")
	mustCreateOrg(t, store, "bob")
	mustCreateDomain(t, store, "acme.io")
	if err := store.Delegate(ctx, "acme.io", "bob", 0); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if err := store.CreateRecord(ctx, "acme.io",
		graph.Record{Name: "a.acme.io:1", Type: "A", Content: "1.1.1.1"}, "bob"); err != nil {
		t.Fatalf("create delegated record: %v", err)
	}
	if err := store.CreateRecord(ctx, "acme.io",
		graph.Record{Name: "c.acme.io:3", Type: "A", Content: "3.3.3.3"}, ""); err != nil {
		t.Fatalf("create owner record: %v", err)
	}

	if err := store.RemoveDelegation(ctx, "acme.io", "bob"); err != nil {
		t.Fatalf("remove delegation: %v", err)
	}

	if _, ok, _ := store.LookupRecord(ctx, "a.acme.io:1"); ok {
		t.Fatal("delegated record should be gone")
	}
	if _, ok, _ := store.LookupRecord(ctx, "c.acme.io:3"); !ok {
		t.Fatal("owner record should survive")
	}
	if _, ok, err := store.DelegationBound(ctx, "acme.io", "bob"); err != nil || ok {
		t.Fatal("delegates edge should be gone")
	}
}

func TestDeleteHostCascades(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustCreateOrg(t, store, "acme")
	mustCreateDomain(t, store, "acme.io")
	host := graph.RecordHost{Address: "10.0.0.2:8081", StoreUsername: "pdns", StorePassword: "secret"}
	if err := store.CreateHost(ctx, host); err != nil {
		t.Fatalf("create host: %v", err)
	}
	if err := store.SetAdministers(ctx, "acme", host.Address); err != nil {
		t.Fatalf("set administers: %v", err)
	}
	if err := store.SetHosts(ctx, host.Address, "acme.io"); err != nil {
		t.Fatalf("set hosts: %v", err)
	}
	if err := store.CreateRecord(ctx, "acme.io",
		graph.Record{Name: "www.acme.io:1", Type: "A", Content: "1.2.3.4"}, ""); err != nil {
		t.Fatalf("create record: %v", err)
	}

	if err := store.DeleteHost(ctx, host.Address); err != nil {
		t.Fatalf("delete host: %v", err)
	}

	if _, err := store.GetHost(ctx, host.Address); !hasCode(err, onserrors.CodeNotFound) {
		t.Fatalf("host should be gone, got %v", err)
	}
	if _, err := store.GetDomain(ctx, "acme.io"); !hasCode(err, onserrors.CodeNotFound) {
		t.Fatalf("hosted domain should be gone, got %v", err)
	}
	if _, ok, _ := store.LookupRecord(ctx, "www.acme.io:1"); ok {
		t.Fatal("record of hosted domain should be gone")
	}
}

func TestHostForDomain(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustCreateDomain(t, store, "acme.io")
	host := graph.RecordHost{Address: "10.0.0.2:8081", StoreUsername: "pdns", StorePassword: "secret"}
	if err := store.CreateHost(ctx, host); err != nil {
		t.Fatalf("create host: %v", err)
	}
	if err := store.SetHosts(ctx, host.Address, "acme.io"); err != nil {
		t.Fatalf("set hosts: %v", err)
	}

	got, err := store.HostForDomain(ctx, "acme.io")
	if err != nil {
		t.Fatalf("host for domain: %v", err)
	}
	if got.Address != host.Address || got.StoreUsername != "pdns" {
		t.Fatalf("host = %+v", got)
	}

	if _, err := store.HostForDomain(ctx, "unmapped.io"); !hasCode(err, onserrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unmapped domain, got %v", err)
	}
}

func TestDelegateeOfHostedDomain(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustCreateOrg(t, store, "bob")
	mustCreateDomain(t, store, "acme.io")
	host := graph.RecordHost{Address: "10.0.0.2:8081", StoreUsername: "pdns", StorePassword: "secret"}
	if err := store.CreateHost(ctx, host); err != nil {
		t.Fatalf("create host: %v", err)
	}
	if err := store.SetHosts(ctx, host.Address, "acme.io"); err != nil {
		t.Fatalf("set hosts: %v", err)
	}

	ok, err := store.IsDelegateeOfHostedDomain(ctx, "bob", host.Address)
	if err != nil || ok {
		t.Fatalf("expected no hosted delegation, got (%v, %v)", ok, err)
	}

	if err := store.Delegate(ctx, "acme.io", "bob", 2); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	ok, err = store.IsDelegateeOfHostedDomain(ctx, "bob", host.Address)
	if err != nil || !ok {
		t.Fatalf("expected hosted delegation, got (%v, %v)", ok, err)
	}

	addrs, err := store.DelegatedHosts(ctx, "bob")
	if err != nil || len(addrs) != 1 || addrs[0] != host.Address {
		t.Fatalf("delegated hosts = %v (%v)", addrs, err)
	}
}

func TestOrgAffiliations(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	mustCreateOrg(t, store, "acme")
	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		if err := store.CreatePrincipal(ctx, graph.Principal{Name: name}); err != nil {
			t.Fatalf("create principal %s: %v", name, err)
		}
	}
	if err := store.SetAdministersOrg(ctx, "alice", "acme"); err != nil {
		t.Fatalf("set administers org: %v", err)
	}
	if err := store.SetWorksFor(ctx, "bob", "acme"); err != nil {
		t.Fatalf("set works for: %v", err)
	}
	if err := store.SetRequestsOrg(ctx, "carol", "acme"); err != nil {
		t.Fatalf("set requests org: %v", err)
	}

	got, err := store.OrgAffiliations(ctx, "acme")
	if err != nil {
		t.Fatalf("org affiliations: %v", err)
	}
	if len(got.Administrators) != 1 || got.Administrators[0] != "alice" {
		t.Fatalf("administrators = %v", got.Administrators)
	}
	if len(got.Employees) != 1 || got.Employees[0] != "bob" {
		t.Fatalf("employees = %v", got.Employees)
	}
	if len(got.Requests) != 1 || got.Requests[0] != "carol" {
		t.Fatalf("requests = %v", got.Requests)
	}
	if len(got.Others) != 1 || got.Others[0] != "dave" {
		t.Fatalf("others = %v", got.Others)
	}
}
