package quota

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/cache"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph/sqlite"
	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

func openTempStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedDelegation(t *testing.T, store graph.Store, bound int64) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateOrganization(ctx, graph.Organization{Name: "acme"}); err != nil {
		t.Fatalf("create org: %v", err)
	}
	if err := store.CreateOrganization(ctx, graph.Organization{Name: "bob.co"}); err != nil {
		t.Fatalf("create org: %v", err)
	}
	if err := store.CreateDomain(ctx, graph.Domain{Name: "acme.io"}); err != nil {
		t.Fatalf("create domain: %v", err)
	}
	if err := store.SetOwner(ctx, "acme", "acme.io"); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	if err := store.Delegate(ctx, "acme.io", "bob.co", bound); err != nil {
		t.Fatalf("delegate: %v", err)
	}
}

func addDelegatedRecords(t *testing.T, store graph.Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		record := graph.Record{
			Name:    fmt.Sprintf("r%d.acme.io:%d", i, i+1),
			Type:    "A",
			Content: fmt.Sprintf("10.0.0.%d", i+1),
		}
		if err := store.CreateRecord(ctx, "acme.io", record, "bob.co"); err != nil {
			t.Fatalf("create record %d: %v", i, err)
		}
	}
}

func TestBoundaryAtBound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	e := NewEnforcer(store, cache.NewMemory(), time.Minute, nil)

	seedDelegation(t, store, 3)
	addDelegatedRecords(t, store, 2)

	exceeded, err := e.ExceededBound(ctx, "bob.co", "acme.io")
	if err != nil || exceeded {
		t.Fatalf("at 2 of 3: (%v, %v)", exceeded, err)
	}

	addDelegatedRecords(t, store, 1)
	exceeded, err = e.ExceededBound(ctx, "bob.co", "acme.io")
	if err != nil {
		t.Fatalf("at 3 of 3: %v", err)
	}
	if !exceeded {
		t.Fatal("count == bound must be exceeded")
	}
}

func TestUnboundedAlwaysOK(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	e := NewEnforcer(store, cache.NewMemory(), time.Minute, nil)

	seedDelegation(t, store, 0)
	addDelegatedRecords(t, store, 100)

	exceeded, err := e.ExceededBound(ctx, "bob.co", "acme.io")
	if err != nil || exceeded {
		t.Fatalf("unbounded at 100 records: (%v, %v)", exceeded, err)
	}
}

func TestUnboundedVerdictIsCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	c := cache.NewMemory()
	e := NewEnforcer(store, c, time.Minute, nil)

	seedDelegation(t, store, 0)
	if _, err := e.ExceededBound(ctx, "bob.co", "acme.io"); err != nil {
		t.Fatalf("first check: %v", err)
	}

	// Advisory cache: the verdict survives removal of the delegation
	// until the TTL lapses.
	if err := store.RemoveDelegation(ctx, "acme.io", "bob.co"); err != nil {
		t.Fatalf("remove delegation: %v", err)
	}
	exceeded, err := e.ExceededBound(ctx, "bob.co", "acme.io")
	if err != nil || exceeded {
		t.Fatalf("cached verdict: (%v, %v)", exceeded, err)
	}
}

func TestMissingDelegation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTempStore(t)
	e := NewEnforcer(store, cache.NewMemory(), time.Minute, nil)

	seedDelegation(t, store, 3)

	_, err := e.ExceededBound(ctx, "stranger", "acme.io")
	if !apperrors.Is(err, apperrors.CodeNotFound) {
		t.Fatalf("code = %v, want not found", apperrors.CodeOf(err))
	}
}
