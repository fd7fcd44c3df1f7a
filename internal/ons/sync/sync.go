// Package sync orchestrates record mutations across the external record
// store and the entity graph. The external store is mutated first and is
// the source of truth for record content; the graph mirrors it. When the
// mirror write fails after a successful remote mutation the operation
// surfaces a divergence error instead of hiding the mismatch.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/authority"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/cache"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/names"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/quota"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/recordstore"
	apperrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
)

// RecordInput is a caller-submitted record. ID is the external store's
// numeric identifier; it is zero on creation.
type RecordInput struct {
	ID      int64
	Name    string
	Type    string
	Content string
	TTL     int
}

// Synchronizer applies record mutations remote-first.
type Synchronizer struct {
	store    graph.Store
	client   recordstore.Client
	resolver *authority.Resolver
	quota    *quota.Enforcer
	cache    cache.Cache
	ttl      time.Duration
	log      *zap.Logger
}

// New returns a Synchronizer.
func New(store graph.Store, client recordstore.Client, resolver *authority.Resolver, enforcer *quota.Enforcer, c cache.Cache, ttl time.Duration, log *zap.Logger) *Synchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{
		store:    store,
		client:   client,
		resolver: resolver,
		quota:    enforcer,
		cache:    c,
		ttl:      ttl,
		log:      log,
	}
}

// CreateRecord creates one record in domain on behalf of org. Delegatee
// creations consult the quota first. A duplicate-entry rejection from
// the store is treated as the record already existing.
func (s *Synchronizer) CreateRecord(ctx context.Context, org, domain string, in RecordInput) (graph.Record, error) {
	res, err := s.resolver.ResolveDomain(ctx, org, domain)
	if err != nil {
		return graph.Record{}, err
	}
	if res.Tier == authority.TierNone {
		return graph.Record{}, unauthorized(org, domain, "create record")
	}
	if res.Tier == authority.TierDelegatee {
		exceeded, err := s.quota.ExceededBound(ctx, org, domain)
		if err != nil {
			return graph.Record{}, err
		}
		if exceeded {
			return graph.Record{}, apperrors.WithMetadata(
				apperrors.CodeQuotaExceeded,
				"delegation bound reached",
				map[string]string{"Organization": org, "Domain": domain},
			)
		}
	}

	fqdn := names.Canonicalize(domain, in.Name)
	candidate := graph.Record{Name: names.Composite(fqdn, 0), Type: in.Type, Content: in.Content}
	if err := graph.Validate(candidate); err != nil {
		return graph.Record{}, err
	}

	host, err := s.hostFor(ctx, domain)
	if err != nil {
		return graph.Record{}, err
	}

	remote := recordstore.Record{Name: fqdn, Type: in.Type, Content: in.Content, TTL: in.TTL}
	id, err := s.client.CreateRecord(ctx, host, domain, remote)
	if err != nil {
		if !recordstore.IsDuplicateEntry(err) {
			return graph.Record{}, err
		}
		id, err = s.findRemoteID(ctx, host, domain, remote)
		if err != nil {
			return graph.Record{}, err
		}
		if id == 0 {
			return graph.Record{Name: names.Composite(fqdn, 0), Type: in.Type, Content: in.Content}, nil
		}
	}

	record := graph.Record{Name: names.Composite(fqdn, id), Type: in.Type, Content: in.Content}
	delegatee := ""
	if res.Tier == authority.TierDelegatee {
		delegatee = org
	}
	if err := s.store.CreateRecord(ctx, domain, record, delegatee); err != nil {
		if apperrors.Is(err, apperrors.CodeDuplicateName) {
			return record, nil
		}
		return graph.Record{}, s.diverged("create record", domain, err)
	}
	return record, nil
}

// EditRecords applies a batch of record edits to domain. Submitted ids
// are validated against the external store before anything is mutated:
// one unmatched id fails the whole request. Unchanged records are
// skipped; when nothing changed no RPC is issued at all. Changed records
// are edited one RPC at a time, so an RPC failure mid-batch leaves
// earlier edits committed.
func (s *Synchronizer) EditRecords(ctx context.Context, org, domain string, inputs []RecordInput) error {
	res, err := s.resolver.ResolveDomain(ctx, org, domain)
	if err != nil {
		return err
	}
	if res.Tier == authority.TierNone {
		return unauthorized(org, domain, "edit records")
	}

	host, err := s.hostFor(ctx, domain)
	if err != nil {
		return err
	}
	current, err := s.client.ListRecords(ctx, host, domain)
	if err != nil {
		return err
	}
	byID := make(map[int64]recordstore.Record, len(current))
	for _, r := range current {
		byID[r.ID] = r
	}

	var delegated map[string]bool
	if res.Tier == authority.TierDelegatee {
		delegated, err = s.delegatedSet(ctx, org, domain)
		if err != nil {
			return err
		}
	}

	type pending struct {
		oldComposite string
		remote       recordstore.Record
	}
	var changes []pending
	for _, in := range inputs {
		existing, ok := byID[in.ID]
		if !ok {
			return apperrors.WithMetadata(
				apperrors.CodeUnmatchedRecordID,
				fmt.Sprintf("record id %d not present in the store", in.ID),
				map[string]string{"Domain": domain},
			)
		}
		oldComposite := names.Composite(existing.Name, existing.ID)
		if delegated != nil && !delegated[oldComposite] {
			return unauthorized(org, domain, "edit record outside delegation")
		}

		fqdn := names.Canonicalize(domain, in.Name)
		next := recordstore.Record{
			ID:      in.ID,
			Name:    fqdn,
			Type:    in.Type,
			Content: in.Content,
			TTL:     in.TTL,
		}
		if next.TTL == 0 {
			next.TTL = existing.TTL
		}
		if next == existing {
			continue
		}
		if err := graph.Validate(graph.Record{Name: names.Composite(fqdn, in.ID), Type: in.Type, Content: in.Content}); err != nil {
			return err
		}
		changes = append(changes, pending{oldComposite: oldComposite, remote: next})
	}
	if len(changes) == 0 {
		return nil
	}

	for _, change := range changes {
		if err := s.client.EditRecord(ctx, host, domain, change.remote); err != nil {
			if recordstore.IsDuplicateEntry(err) {
				continue
			}
			return err
		}
		record := graph.Record{
			Name:    names.Composite(change.remote.Name, change.remote.ID),
			Type:    change.remote.Type,
			Content: change.remote.Content,
		}
		if err := s.store.UpdateRecord(ctx, change.oldComposite, record); err != nil {
			return s.diverged("edit record", domain, err)
		}
	}
	return nil
}

// RemoveRecord deletes one record from domain. Delegatees may only
// remove records created under their delegation.
func (s *Synchronizer) RemoveRecord(ctx context.Context, org, domain string, in RecordInput) error {
	res, err := s.resolver.ResolveDomain(ctx, org, domain)
	if err != nil {
		return err
	}
	if res.Tier == authority.TierNone {
		return unauthorized(org, domain, "remove record")
	}

	fqdn := names.Canonicalize(domain, in.Name)
	composite := names.Composite(fqdn, in.ID)
	if res.Tier == authority.TierDelegatee {
		delegated, err := s.delegatedSet(ctx, org, domain)
		if err != nil {
			return err
		}
		if !delegated[composite] {
			return unauthorized(org, domain, "remove record outside delegation")
		}
	}

	host, err := s.hostFor(ctx, domain)
	if err != nil {
		return err
	}
	remote := recordstore.Record{ID: in.ID, Name: fqdn, Type: in.Type, Content: in.Content}
	if err := s.client.RemoveRecord(ctx, host, domain, remote); err != nil {
		return err
	}
	if err := s.store.DeleteRecord(ctx, domain, composite); err != nil {
		return s.diverged("remove record", domain, err)
	}
	return nil
}

// RemoveAllRecords deletes every record of domain, remote-first and
// all-or-nothing on the remote side: one failed remote deletion aborts
// before the graph is touched. A domain with no records issues no remote
// deletes at all.
func (s *Synchronizer) RemoveAllRecords(ctx context.Context, org, domain string) error {
	res, err := s.resolver.ResolveDomain(ctx, org, domain)
	if err != nil {
		return err
	}
	if res.Tier != authority.TierOwner {
		return unauthorized(org, domain, "remove all records")
	}

	host, err := s.hostFor(ctx, domain)
	if err != nil {
		return err
	}
	current, err := s.client.ListRecords(ctx, host, domain)
	if err != nil {
		return err
	}
	for _, record := range current {
		if err := s.client.RemoveRecord(ctx, host, domain, record); err != nil {
			return err
		}
	}
	if err := s.store.DeleteDomainRecords(ctx, domain); err != nil {
		return s.diverged("remove all records", domain, err)
	}
	return nil
}

// ListRecords returns the records org may see in domain: the owner sees
// the external store's full list, a delegatee sees only records created
// under its delegation.
func (s *Synchronizer) ListRecords(ctx context.Context, org, domain string) ([]RecordInput, error) {
	res, err := s.resolver.ResolveDomain(ctx, org, domain)
	if err != nil {
		return nil, err
	}
	switch res.Tier {
	case authority.TierOwner:
		host, err := s.hostFor(ctx, domain)
		if err != nil {
			return nil, err
		}
		current, err := s.client.ListRecords(ctx, host, domain)
		if err != nil {
			return nil, err
		}
		out := make([]RecordInput, 0, len(current))
		for _, r := range current {
			out = append(out, RecordInput{
				ID:      r.ID,
				Name:    names.Canonicalize(domain, r.Name),
				Type:    r.Type,
				Content: r.Content,
				TTL:     r.TTL,
			})
		}
		return out, nil
	case authority.TierDelegatee:
		records, err := s.store.DelegatedRecords(ctx, domain, org)
		if err != nil {
			return nil, err
		}
		out := make([]RecordInput, 0, len(records))
		for _, record := range records {
			name, id, ok := names.Split(record.Name)
			if !ok {
				continue
			}
			out = append(out, RecordInput{
				ID:      id,
				Name:    name,
				Type:    record.Type,
				Content: record.Content,
			})
		}
		return out, nil
	default:
		return nil, unauthorized(org, domain, "list records")
	}
}

// hostFor resolves the record host serving domain, memoized under the
// "{domain}:mappedHost" cache key with refresh-on-hit.
func (s *Synchronizer) hostFor(ctx context.Context, domain string) (recordstore.Host, error) {
	key := fmt.Sprintf(cache.MappedHostKeyFormat, domain)
	if s.cache != nil {
		value, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn("mapped host cache read failed",
				zap.String("key", key),
				zap.Error(err))
		} else if ok {
			var host recordstore.Host
			if err := json.Unmarshal(value, &host); err == nil {
				if err := s.cache.RefreshExpiry(ctx, key, s.ttl); err != nil {
					s.log.Warn("mapped host cache refresh failed",
						zap.String("key", key),
						zap.Error(err))
				}
				return host, nil
			}
		}
	}

	node, err := s.store.HostForDomain(ctx, domain)
	if err != nil {
		return recordstore.Host{}, err
	}
	host := recordstore.Host{
		Address:  node.Address,
		Username: node.StoreUsername,
		Password: node.StorePassword,
	}
	if s.cache != nil {
		if value, err := json.Marshal(host); err == nil {
			if err := s.cache.SetWithExpiry(ctx, key, value, s.ttl); err != nil {
				s.log.Warn("mapped host cache write failed",
					zap.String("key", key),
					zap.Error(err))
			}
		}
	}
	return host, nil
}

func (s *Synchronizer) delegatedSet(ctx context.Context, org, domain string) (map[string]bool, error) {
	records, err := s.store.DelegatedRecords(ctx, domain, org)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(records))
	for _, record := range records {
		set[record.Name] = true
	}
	return set, nil
}

// findRemoteID looks up the id of a record the store reported as a
// duplicate, matching on name, type and content.
func (s *Synchronizer) findRemoteID(ctx context.Context, host recordstore.Host, domain string, remote recordstore.Record) (int64, error) {
	current, err := s.client.ListRecords(ctx, host, domain)
	if err != nil {
		return 0, err
	}
	for _, r := range current {
		if r.Name == remote.Name && r.Type == remote.Type && r.Content == remote.Content {
			return r.ID, nil
		}
	}
	return 0, nil
}

func (s *Synchronizer) diverged(operation, domain string, cause error) error {
	s.log.Error("graph diverged from record store",
		zap.String("operation", operation),
		zap.String("domain", domain),
		zap.Error(cause))
	return apperrors.Wrap(
		apperrors.CodeDiverged,
		fmt.Sprintf("record store mutated but graph mirror failed during %s", operation),
		cause,
	)
}

func unauthorized(org, domain, action string) error {
	return apperrors.WithMetadata(
		apperrors.CodeUnauthorized,
		fmt.Sprintf("organization may not %s", action),
		map[string]string{"Organization": org, "Domain": domain},
	)
}
