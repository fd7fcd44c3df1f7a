package sync

import (
	"context"
	"testing"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/recordstore"
	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

func grantHostAdmin(t *testing.T, f *fixture, org string) {
	t.Helper()
	if err := f.store.SetAdministers(context.Background(), org, testHost); err != nil {
		t.Fatalf("set administers: %v", err)
	}
}

func TestCreateDomainOnHost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	grantHostAdmin(t, f, "acme")

	if err := f.sync.CreateDomain(ctx, "acme", testHost, "shop.acme.io"); err != nil {
		t.Fatalf("create domain: %v", err)
	}

	if _, err := f.store.GetDomain(ctx, "shop.acme.io"); err != nil {
		t.Fatalf("domain node missing: %v", err)
	}
	owner, err := f.store.IsOwner(ctx, "acme", "shop.acme.io")
	if err != nil || !owner {
		t.Fatalf("owns edge = (%v, %v)", owner, err)
	}
	node, err := f.store.HostForDomain(ctx, "shop.acme.io")
	if err != nil || node.Address != testHost {
		t.Fatalf("hosts edge = (%+v, %v)", node, err)
	}
	remote, err := f.fake.ListDomains(ctx, recordstore.Host{Address: testHost})
	if err != nil || len(remote) != 2 {
		t.Fatalf("remote domains = (%v, %v)", remote, err)
	}
}

func TestCreateDomainRequiresManager(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	err := f.sync.CreateDomain(ctx, "bob.co", testHost, "bob.acme.io")
	if !apperrors.Is(err, apperrors.CodeUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestCreateDomainValidatesName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	grantHostAdmin(t, f, "acme")

	err := f.sync.CreateDomain(ctx, "acme", testHost, "bad domain!")
	if !apperrors.Is(err, apperrors.CodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestRemoveDomain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.sync.CreateRecord(ctx, "acme", testDomain, RecordInput{Name: "www", Type: "A", Content: "1.2.3.4"}); err != nil {
		t.Fatalf("create record: %v", err)
	}

	if err := f.sync.RemoveDomain(ctx, "bob.co", testDomain); !apperrors.Is(err, apperrors.CodeUnauthorized) {
		t.Fatalf("delegatee remove = %v, want unauthorized", err)
	}
	if err := f.sync.RemoveDomain(ctx, "acme", testDomain); err != nil {
		t.Fatalf("remove domain: %v", err)
	}

	if _, err := f.store.GetDomain(ctx, testDomain); !apperrors.Is(err, apperrors.CodeNotFound) {
		t.Fatalf("domain node remains: %v", err)
	}
	if _, ok, _ := f.store.LookupRecord(ctx, "www.acme.io:1"); ok {
		t.Fatal("record node remains after domain removal")
	}
	remote, err := f.fake.ListDomains(ctx, recordstore.Host{Address: testHost})
	if err != nil || len(remote) != 0 {
		t.Fatalf("remote domains = (%v, %v)", remote, err)
	}
}

func TestListHostDomainsByTier(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	grantHostAdmin(t, f, "acme")

	domains, err := f.sync.ListHostDomains(ctx, "acme", testHost)
	if err != nil || len(domains) != 1 || domains[0] != testDomain {
		t.Fatalf("manager listing = (%v, %v)", domains, err)
	}

	// bob.co is delegatee of a hosted domain, so listing is read-only
	// allowed.
	domains, err = f.sync.ListHostDomains(ctx, "bob.co", testHost)
	if err != nil || len(domains) != 1 {
		t.Fatalf("delegatee listing = (%v, %v)", domains, err)
	}

	if _, err := f.sync.ListHostDomains(ctx, "stranger", testHost); !apperrors.Is(err, apperrors.CodeUnauthorized) {
		t.Fatalf("stranger listing = %v, want unauthorized", err)
	}
}
