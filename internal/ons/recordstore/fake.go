package recordstore

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

// Fake is an in-memory Client for tests. Failure hooks let a test fail a
// specific call; counters expose how many remote calls were issued.
type Fake struct {
	mu      sync.Mutex
	domains map[string]map[string][]Record // host address -> domain -> records
	nextID  int64

	// FailCreate, FailEdit and FailRemove, when set, are consulted before
	// the corresponding mutation and their non-nil error is returned.
	FailCreate func(domain string, record Record) error
	FailEdit   func(domain string, record Record) error
	FailRemove func(domain string, record Record) error

	CreateCalls int
	EditCalls   int
	RemoveCalls int
}

// NewFake returns an empty in-memory record store.
func NewFake() *Fake {
	return &Fake{
		domains: make(map[string]map[string][]Record),
		nextID:  1,
	}
}

var _ Client = (*Fake)(nil)

func (f *Fake) hostDomains(host Host) map[string][]Record {
	d, ok := f.domains[host.Address]
	if !ok {
		d = make(map[string][]Record)
		f.domains[host.Address] = d
	}
	return d
}

// ListDomains returns the fake host's domain names.
func (f *Fake) ListDomains(ctx context.Context, host Host) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.hostDomains(host) {
		names = append(names, name)
	}
	return names, nil
}

// CreateDomain registers a domain on the fake host.
func (f *Fake) CreateDomain(ctx context.Context, host Host, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.hostDomains(host)
	if _, ok := d[domain]; ok {
		return apperrors.New(apperrors.CodeRemoteStore, fmt.Sprintf("record store rejected POST domain: Duplicate entry '%s'", domain))
	}
	d[domain] = nil
	return nil
}

// RemoveDomain drops a domain and its records from the fake host.
func (f *Fake) RemoveDomain(ctx context.Context, host Host, domain string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hostDomains(host), domain)
	return nil
}

// ListRecords returns a copy of the domain's records.
func (f *Fake) ListRecords(ctx context.Context, host Host, domain string) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	records := f.hostDomains(host)[domain]
	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}

// CreateRecord appends a record and returns its assigned id.
func (f *Fake) CreateRecord(ctx context.Context, host Host, domain string, record Record) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.FailCreate != nil {
		if err := f.FailCreate(domain, record); err != nil {
			return 0, err
		}
	}
	d := f.hostDomains(host)
	for _, existing := range d[domain] {
		if existing.Name == record.Name && existing.Type == record.Type && existing.Content == record.Content {
			return 0, apperrors.New(apperrors.CodeRemoteStore, fmt.Sprintf("record store rejected POST record: Duplicate entry '%s'", record.Name))
		}
	}
	record.ID = f.nextID
	f.nextID++
	d[domain] = append(d[domain], record)
	return record.ID, nil
}

// EditRecord rewrites the record matching record.ID.
func (f *Fake) EditRecord(ctx context.Context, host Host, domain string, record Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.EditCalls++
	if f.FailEdit != nil {
		if err := f.FailEdit(domain, record); err != nil {
			return err
		}
	}
	records := f.hostDomains(host)[domain]
	for i := range records {
		if records[i].ID == record.ID {
			records[i] = record
			return nil
		}
	}
	return apperrors.New(apperrors.CodeRemoteStore, fmt.Sprintf("record store rejected PUT record: no record with id %d", record.ID))
}

// RemoveRecord deletes the record matching name, type and content.
func (f *Fake) RemoveRecord(ctx context.Context, host Host, domain string, record Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RemoveCalls++
	if f.FailRemove != nil {
		if err := f.FailRemove(domain, record); err != nil {
			return err
		}
	}
	d := f.hostDomains(host)
	records := d[domain]
	for i := range records {
		if records[i].Name == record.Name && records[i].Type == record.Type && records[i].Content == record.Content {
			d[domain] = append(records[:i:i], records[i+1:]...)
			return nil
		}
	}
	return nil
}
