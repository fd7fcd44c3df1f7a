// Package recordstore talks to the external record store that physically
// holds resource records. The store is the source of truth for record
// content; the entity graph only mirrors it.
package recordstore

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

// Host identifies a record host endpoint and the store credentials every
// call against it must carry.
type Host struct {
	Address  string
	Username string
	Password string
}

// Record is a resource record as the external store sees it. ID is the
// store-assigned numeric identifier; it is zero before creation.
type Record struct {
	ID      int64
	Name    string
	Type    string
	Content string
	TTL     int
}

// Client is the remote interface to a record host. Every operation is a
// blocking call bounded by the context deadline; no call is retried.
type Client interface {
	ListDomains(ctx context.Context, host Host) ([]string, error)
	CreateDomain(ctx context.Context, host Host, domain string) error
	RemoveDomain(ctx context.Context, host Host, domain string) error
	ListRecords(ctx context.Context, host Host, domain string) ([]Record, error)
	CreateRecord(ctx context.Context, host Host, domain string, record Record) (int64, error)
	EditRecord(ctx context.Context, host Host, domain string, record Record) error
	RemoveRecord(ctx context.Context, host Host, domain string, record Record) error
}

// duplicateEntryMarker is the substring the store's backend emits when a
// uniqueness constraint rejects an insert.
const duplicateEntryMarker = "Duplicate entry"

// IsDuplicateEntry reports whether err is a remote-store failure caused by
// the record already existing. Creation treats these as success.
func IsDuplicateEntry(err error) bool {
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		return false
	}
	if domainErr.Code != apperrors.CodeRemoteStore {
		return false
	}
	if strings.Contains(domainErr.Message, duplicateEntryMarker) {
		return true
	}
	return domainErr.Metadata["Remote"] != "" && strings.Contains(domainErr.Metadata["Remote"], duplicateEntryMarker)
}
