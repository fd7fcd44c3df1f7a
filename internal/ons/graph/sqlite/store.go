// Package sqlite provides the SQLite-backed entity graph store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/ons/graph/sqlite/migrations"
	onserrors "github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/errors"
	"github.com/gs1oliot/oliot-ons-2.0.1/internal/platform/storage/sqlitemigrate"
)

// Store persists the entity graph in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the graph store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func storeErr(op string, err error) error {
	return onserrors.Wrap(onserrors.CodeGraphUnavailable, op, err)
}

func (s *Store) createNamed(ctx context.Context, op, query, name string) error {
	if _, err := s.sqlDB.ExecContext(ctx, query, name); err != nil {
		if isUniqueViolation(err) {
			return onserrors.WithMetadata(onserrors.CodeDuplicateName,
				"name already taken", map[string]string{"name": name})
		}
		return storeErr(op, err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) listStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, storeErr(op, err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return values, nil
}

func (s *Store) listRecords(ctx context.Context, op, query string, args ...any) ([]graph.Record, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var records []graph.Record
	for rows.Next() {
		var record graph.Record
		if err := rows.Scan(&record.Name, &record.Type, &record.Content); err != nil {
			return nil, storeErr(op, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return records, nil
}

// CreateOrganization inserts an organization node.
func (s *Store) CreateOrganization(ctx context.Context, org graph.Organization) error {
	if err := graph.Validate(org); err != nil {
		return err
	}
	return s.createNamed(ctx, "create organization",
		`INSERT INTO organizations (name) VALUES (?)`, org.Name)
}

// GetOrganization fetches an organization node by exact name.
func (s *Store) GetOrganization(ctx context.Context, name string) (graph.Organization, error) {
	var org graph.Organization
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT name FROM organizations WHERE name = ?`, name).Scan(&org.Name)
	if err == sql.ErrNoRows {
		return graph.Organization{}, onserrors.WithMetadata(onserrors.CodeNotFound,
			"no such organization", map[string]string{"organization": name})
	}
	if err != nil {
		return graph.Organization{}, storeErr("get organization", err)
	}
	return org, nil
}

// ListOrganizations returns every organization name.
func (s *Store) ListOrganizations(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, "list organizations",
		`SELECT name FROM organizations ORDER BY name`)
}

// CreateDomain inserts a domain node.
func (s *Store) CreateDomain(ctx context.Context, domain graph.Domain) error {
	if err := graph.Validate(domain); err != nil {
		return err
	}
	return s.createNamed(ctx, "create domain",
		`INSERT INTO domains (name) VALUES (?)`, domain.Name)
}

// GetDomain fetches a domain node by exact name.
func (s *Store) GetDomain(ctx context.Context, name string) (graph.Domain, error) {
	var domain graph.Domain
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT name FROM domains WHERE name = ?`, name).Scan(&domain.Name)
	if err == sql.ErrNoRows {
		return graph.Domain{}, onserrors.WithMetadata(onserrors.CodeNotFound,
			"no such domain", map[string]string{"domain": name})
	}
	if err != nil {
		return graph.Domain{}, storeErr("get domain", err)
	}
	return domain, nil
}

// DeleteDomain removes the domain node, its contained records, and all
// edges touching either.
func (s *Store) DeleteDomain(ctx context.Context, name string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("delete domain", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE name IN (SELECT record_name FROM contains WHERE domain_name = ?)`,
		name); err != nil {
		return storeErr("delete domain records", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM contains WHERE domain_name = ?`, name); err != nil {
		return storeErr("detach domain records", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM delegate_of WHERE record_name NOT IN (SELECT name FROM records)`); err != nil {
		return storeErr("detach delegate marks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM owns WHERE domain_name = ?`, name); err != nil {
		return storeErr("detach domain owner", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM delegates WHERE domain_name = ?`, name); err != nil {
		return storeErr("detach domain delegations", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM hosts WHERE domain_name = ?`, name); err != nil {
		return storeErr("detach domain host", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM domains WHERE name = ?`, name); err != nil {
		return storeErr("delete domain", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("delete domain", err)
	}
	return nil
}

// CreateHost inserts a record-host node with its store credentials.
func (s *Store) CreateHost(ctx context.Context, host graph.RecordHost) error {
	if err := graph.Validate(host); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO record_hosts (address, store_username, store_password) VALUES (?, ?, ?)`,
		host.Address, host.StoreUsername, host.StorePassword)
	if err != nil {
		if isUniqueViolation(err) {
			return onserrors.WithMetadata(onserrors.CodeDuplicateName,
				"host address already registered", map[string]string{"host": host.Address})
		}
		return storeErr("create host", err)
	}
	return nil
}

// GetHost fetches a record host by its address.
func (s *Store) GetHost(ctx context.Context, address string) (graph.RecordHost, error) {
	var host graph.RecordHost
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT address, store_username, store_password FROM record_hosts WHERE address = ?`,
		address).Scan(&host.Address, &host.StoreUsername, &host.StorePassword)
	if err == sql.ErrNoRows {
		return graph.RecordHost{}, onserrors.WithMetadata(onserrors.CodeNotFound,
			"no such host", map[string]string{"host": address})
	}
	if err != nil {
		return graph.RecordHost{}, storeErr("get host", err)
	}
	return host, nil
}

// DeleteHost removes the host node, every domain it hosts, and every
// record those domains contain.
func (s *Store) DeleteHost(ctx context.Context, address string) error {
	domains, err := s.DomainsOnHost(ctx, address)
	if err != nil {
		return err
	}
	for _, domain := range domains {
		if err := s.DeleteDomain(ctx, domain); err != nil {
			return err
		}
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("delete host", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM administers WHERE host_address = ?`, address); err != nil {
		return storeErr("detach host administrators", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM record_hosts WHERE address = ?`, address); err != nil {
		return storeErr("delete host", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("delete host", err)
	}
	return nil
}

// CreatePrincipal inserts a principal node.
func (s *Store) CreatePrincipal(ctx context.Context, principal graph.Principal) error {
	if err := graph.Validate(principal); err != nil {
		return err
	}
	return s.createNamed(ctx, "create principal",
		`INSERT INTO principals (name) VALUES (?)`, principal.Name)
}

// GetPrincipal fetches a principal node by exact name.
func (s *Store) GetPrincipal(ctx context.Context, name string) (graph.Principal, error) {
	var principal graph.Principal
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT name FROM principals WHERE name = ?`, name).Scan(&principal.Name)
	if err == sql.ErrNoRows {
		return graph.Principal{}, onserrors.WithMetadata(onserrors.CodeNotFound,
			"no such principal", map[string]string{"principal": name})
	}
	if err != nil {
		return graph.Principal{}, storeErr("get principal", err)
	}
	return principal, nil
}

// CreateRecord inserts a record node and its contains edge; when
// delegatee is non-empty the delegateOf edge is created in the same
// transaction, so a delegateOf edge never exists without contains.
func (s *Store) CreateRecord(ctx context.Context, domain string, record graph.Record, delegatee string) error {
	if err := graph.Validate(record); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("create record", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records (name, record_type, content) VALUES (?, ?, ?)`,
		record.Name, record.Type, record.Content); err != nil {
		if isUniqueViolation(err) {
			return onserrors.WithMetadata(onserrors.CodeDuplicateName,
				"record name already taken", map[string]string{"record": record.Name})
		}
		return storeErr("create record", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO contains (domain_name, record_name) VALUES (?, ?)`,
		domain, record.Name); err != nil {
		return storeErr("attach record to domain", err)
	}
	if delegatee != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO delegate_of (organization_name, record_name) VALUES (?, ?)`,
			delegatee, record.Name); err != nil {
			return storeErr("mark record delegated", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("create record", err)
	}
	return nil
}

// LookupRecord fetches a record node; absent records report ok=false.
func (s *Store) LookupRecord(ctx context.Context, composite string) (graph.Record, bool, error) {
	var record graph.Record
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT name, record_type, content FROM records WHERE name = ?`,
		composite).Scan(&record.Name, &record.Type, &record.Content)
	if err == sql.ErrNoRows {
		return graph.Record{}, false, nil
	}
	if err != nil {
		return graph.Record{}, false, storeErr("lookup record", err)
	}
	return record, true, nil
}

// UpdateRecord rewrites a record node's key and properties, carrying its
// edges along.
func (s *Store) UpdateRecord(ctx context.Context, oldComposite string, record graph.Record) error {
	if err := graph.Validate(record); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("update record", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE records SET name = ?, record_type = ?, content = ? WHERE name = ?`,
		record.Name, record.Type, record.Content, oldComposite)
	if err != nil {
		if isUniqueViolation(err) {
			return onserrors.WithMetadata(onserrors.CodeDuplicateName,
				"record name already taken", map[string]string{"record": record.Name})
		}
		return storeErr("update record", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("update record", err)
	}
	if affected == 0 {
		return onserrors.WithMetadata(onserrors.CodeNotFound,
			"no such record", map[string]string{"record": oldComposite})
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE contains SET record_name = ? WHERE record_name = ?`,
		record.Name, oldComposite); err != nil {
		return storeErr("update record edges", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE delegate_of SET record_name = ? WHERE record_name = ?`,
		record.Name, oldComposite); err != nil {
		return storeErr("update record edges", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("update record", err)
	}
	return nil
}

// DeleteRecord detach-deletes one record of a domain.
func (s *Store) DeleteRecord(ctx context.Context, domain, composite string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("delete record", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contains WHERE domain_name = ? AND record_name = ?`,
		domain, composite); err != nil {
		return storeErr("detach record", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM delegate_of WHERE record_name = ?`, composite); err != nil {
		return storeErr("detach record", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE name = ?`, composite); err != nil {
		return storeErr("delete record", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("delete record", err)
	}
	return nil
}

// DeleteDomainRecords detach-deletes every record contained in a domain.
func (s *Store) DeleteDomainRecords(ctx context.Context, domain string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("delete domain records", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM delegate_of WHERE record_name IN (SELECT record_name FROM contains WHERE domain_name = ?)`,
		domain); err != nil {
		return storeErr("detach delegate marks", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE name IN (SELECT record_name FROM contains WHERE domain_name = ?)`,
		domain); err != nil {
		return storeErr("delete domain records", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contains WHERE domain_name = ?`, domain); err != nil {
		return storeErr("detach domain records", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("delete domain records", err)
	}
	return nil
}

// DomainRecords lists the records contained in a domain.
func (s *Store) DomainRecords(ctx context.Context, domain string) ([]graph.Record, error) {
	return s.listRecords(ctx, "list domain records",
		`SELECT r.name, r.record_type, r.content
		 FROM records r
		 JOIN contains c ON c.record_name = r.name
		 WHERE c.domain_name = ?
		 ORDER BY r.name`, domain)
}

// SetOwner creates the owns edge. A second owner for the same domain
// violates the owner-uniqueness constraint and fails with DUPLICATE_NAME.
func (s *Store) SetOwner(ctx context.Context, org, domain string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO owns (domain_name, organization_name) VALUES (?, ?)`,
		domain, org)
	if err != nil {
		if isUniqueViolation(err) {
			return onserrors.WithMetadata(onserrors.CodeDuplicateName,
				"domain already has an owner", map[string]string{"domain": domain})
		}
		return storeErr("set owner", err)
	}
	return nil
}

// IsOwner reports whether the organization owns the domain.
func (s *Store) IsOwner(ctx context.Context, org, domain string) (bool, error) {
	found, err := s.exists(ctx,
		`SELECT 1 FROM owns WHERE domain_name = ? AND organization_name = ?`,
		domain, org)
	if err != nil {
		return false, storeErr("check owner", err)
	}
	return found, nil
}

// OwnedDomains lists the domains owned by an organization.
func (s *Store) OwnedDomains(ctx context.Context, org string) ([]string, error) {
	return s.listStrings(ctx, "list owned domains",
		`SELECT domain_name FROM owns WHERE organization_name = ? ORDER BY domain_name`, org)
}

// SetAdministers creates the administers edge.
func (s *Store) SetAdministers(ctx context.Context, org, hostAddress string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO administers (organization_name, host_address) VALUES (?, ?)`,
		org, hostAddress)
	if err != nil {
		return storeErr("set administers", err)
	}
	return nil
}

// Administers reports whether the organization administers the host.
func (s *Store) Administers(ctx context.Context, org, hostAddress string) (bool, error) {
	found, err := s.exists(ctx,
		`SELECT 1 FROM administers WHERE organization_name = ? AND host_address = ?`,
		org, hostAddress)
	if err != nil {
		return false, storeErr("check administers", err)
	}
	return found, nil
}

// AdministeredHosts lists the hosts an organization administers.
func (s *Store) AdministeredHosts(ctx context.Context, org string) ([]string, error) {
	return s.listStrings(ctx, "list administered hosts",
		`SELECT host_address FROM administers WHERE organization_name = ? ORDER BY host_address`, org)
}

// SetHosts creates the hosts edge from a record host to a domain.
func (s *Store) SetHosts(ctx context.Context, hostAddress, domain string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO hosts (host_address, domain_name) VALUES (?, ?)`,
		hostAddress, domain)
	if err != nil {
		return storeErr("set hosts", err)
	}
	return nil
}

// HostForDomain returns the record host serving a domain.
func (s *Store) HostForDomain(ctx context.Context, domain string) (graph.RecordHost, error) {
	var host graph.RecordHost
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT rh.address, rh.store_username, rh.store_password
		 FROM record_hosts rh
		 JOIN hosts h ON h.host_address = rh.address
		 WHERE h.domain_name = ?`, domain).
		Scan(&host.Address, &host.StoreUsername, &host.StorePassword)
	if err == sql.ErrNoRows {
		return graph.RecordHost{}, onserrors.WithMetadata(onserrors.CodeNotFound,
			"no host mapped to domain", map[string]string{"domain": domain})
	}
	if err != nil {
		return graph.RecordHost{}, storeErr("get host for domain", err)
	}
	return host, nil
}

// DomainsOnHost lists the domains a record host serves.
func (s *Store) DomainsOnHost(ctx context.Context, hostAddress string) ([]string, error) {
	return s.listStrings(ctx, "list hosted domains",
		`SELECT domain_name FROM hosts WHERE host_address = ? ORDER BY domain_name`, hostAddress)
}

// Delegate creates the delegates edge with its record bound.
func (s *Store) Delegate(ctx context.Context, domain, org string, bound int64) error {
	if bound < 0 {
		return onserrors.New(onserrors.CodeValidation, "delegation bound must not be negative")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO delegates (domain_name, organization_name, bound) VALUES (?, ?, ?)
		 ON CONFLICT (domain_name, organization_name) DO UPDATE SET bound = excluded.bound`,
		domain, org, bound)
	if err != nil {
		return storeErr("delegate", err)
	}
	return nil
}

// DelegationBound returns the bound of the delegates edge, if any.
func (s *Store) DelegationBound(ctx context.Context, domain, org string) (int64, bool, error) {
	var bound int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT bound FROM delegates WHERE domain_name = ? AND organization_name = ?`,
		domain, org).Scan(&bound)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeErr("get delegation bound", err)
	}
	return bound, true, nil
}

// Delegatees lists the organizations a domain delegates to.
func (s *Store) Delegatees(ctx context.Context, domain string) ([]string, error) {
	return s.listStrings(ctx, "list delegatees",
		`SELECT organization_name FROM delegates WHERE domain_name = ? ORDER BY organization_name`, domain)
}

// DelegatedRecords lists records reachable through both the domain's
// contains edges and the organization's delegateOf edges.
func (s *Store) DelegatedRecords(ctx context.Context, domain, org string) ([]graph.Record, error) {
	return s.listRecords(ctx, "list delegated records",
		`SELECT r.name, r.record_type, r.content
		 FROM records r
		 JOIN contains c ON c.record_name = r.name
		 JOIN delegate_of d ON d.record_name = r.name
		 WHERE c.domain_name = ? AND d.organization_name = ?
		 ORDER BY r.name`, domain, org)
}

// CountDelegatedRecords counts distinct records under the delegation
// triangle delegates(D→O) ∧ delegateOf(O→R) ∧ contains(D→R).
func (s *Store) CountDelegatedRecords(ctx context.Context, domain, org string) (int64, error) {
	var count int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT r.name)
		 FROM records r
		 JOIN contains c ON c.record_name = r.name
		 JOIN delegate_of d ON d.record_name = r.name
		 JOIN delegates dl ON dl.domain_name = c.domain_name AND dl.organization_name = d.organization_name
		 WHERE c.domain_name = ? AND d.organization_name = ?`,
		domain, org).Scan(&count)
	if err != nil {
		return 0, storeErr("count delegated records", err)
	}
	return count, nil
}

// RemoveDelegation detaches the delegates edge and deletes every record
// that existed only because of it, in one transaction. The remote side
// of the cascade belongs to the delegation manager.
func (s *Store) RemoveDelegation(ctx context.Context, domain, org string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("remove delegation", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM contains WHERE domain_name = ?1 AND record_name IN
		   (SELECT record_name FROM delegate_of WHERE organization_name = ?2)`,
		domain, org); err != nil {
		return storeErr("detach delegated records", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE name IN
		   (SELECT record_name FROM delegate_of WHERE organization_name = ?)
		 AND name NOT IN (SELECT record_name FROM contains)`,
		org); err != nil {
		return storeErr("delete delegated records", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM delegate_of WHERE organization_name = ? AND record_name NOT IN (SELECT name FROM records)`,
		org); err != nil {
		return storeErr("detach delegate marks", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM delegates WHERE domain_name = ? AND organization_name = ?`,
		domain, org); err != nil {
		return storeErr("remove delegation", err)
	}
	if err := tx.Commit(); err != nil {
		return storeErr("remove delegation", err)
	}
	return nil
}

// IsDelegateeOfHostedDomain reports whether the organization is a
// delegatee of any domain hosted by the given record host. This derived
// tier only permits read-only domain listing, never mutation.
func (s *Store) IsDelegateeOfHostedDomain(ctx context.Context, org, hostAddress string) (bool, error) {
	found, err := s.exists(ctx,
		`SELECT 1 FROM delegates d
		 JOIN hosts h ON h.domain_name = d.domain_name
		 WHERE d.organization_name = ? AND h.host_address = ?`,
		org, hostAddress)
	if err != nil {
		return false, storeErr("check hosted delegation", err)
	}
	return found, nil
}

// DelegatedHosts lists hosts serving at least one domain delegated to
// the organization.
func (s *Store) DelegatedHosts(ctx context.Context, org string) ([]string, error) {
	return s.listStrings(ctx, "list delegated hosts",
		`SELECT DISTINCT h.host_address
		 FROM hosts h
		 JOIN delegates d ON d.domain_name = h.domain_name
		 WHERE d.organization_name = ?
		 ORDER BY h.host_address`, org)
}

// SetWorksFor creates the worksFor edge.
func (s *Store) SetWorksFor(ctx context.Context, principal, org string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO works_for (principal_name, organization_name) VALUES (?, ?)`,
		principal, org)
	if err != nil {
		return storeErr("set works for", err)
	}
	return nil
}

// SetAdministersOrg creates the administersOrg edge.
func (s *Store) SetAdministersOrg(ctx context.Context, principal, org string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO administers_org (principal_name, organization_name) VALUES (?, ?)`,
		principal, org)
	if err != nil {
		return storeErr("set administers org", err)
	}
	return nil
}

// SetRequestsOrg creates the requestsOrg edge.
func (s *Store) SetRequestsOrg(ctx context.Context, principal, org string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO requests_org (principal_name, organization_name) VALUES (?, ?)`,
		principal, org)
	if err != nil {
		return storeErr("set requests org", err)
	}
	return nil
}

// RemoveRequestsOrg drops a pending membership request.
func (s *Store) RemoveRequestsOrg(ctx context.Context, principal, org string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM requests_org WHERE principal_name = ? AND organization_name = ?`,
		principal, org)
	if err != nil {
		return storeErr("remove requests org", err)
	}
	return nil
}

// AdministeredOrgs lists the organizations a principal administers.
func (s *Store) AdministeredOrgs(ctx context.Context, principal string) ([]string, error) {
	return s.listStrings(ctx, "list administered orgs",
		`SELECT organization_name FROM administers_org WHERE principal_name = ? ORDER BY organization_name`,
		principal)
}

// OrgAffiliations buckets every principal by its relationship with the
// organization.
func (s *Store) OrgAffiliations(ctx context.Context, org string) (graph.Affiliations, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT p.name,
		        EXISTS (SELECT 1 FROM works_for w WHERE w.principal_name = p.name AND w.organization_name = ?1),
		        EXISTS (SELECT 1 FROM administers_org a WHERE a.principal_name = p.name AND a.organization_name = ?1),
		        EXISTS (SELECT 1 FROM requests_org r WHERE r.principal_name = p.name AND r.organization_name = ?1)
		 FROM principals p
		 ORDER BY p.name`, org)
	if err != nil {
		return graph.Affiliations{}, storeErr("list affiliations", err)
	}
	defer rows.Close()

	var result graph.Affiliations
	for rows.Next() {
		var name string
		var employee, admin, request bool
		if err := rows.Scan(&name, &employee, &admin, &request); err != nil {
			return graph.Affiliations{}, storeErr("list affiliations", err)
		}
		if request {
			result.Requests = append(result.Requests, name)
		}
		switch {
		case admin:
			result.Administrators = append(result.Administrators, name)
		case employee:
			result.Employees = append(result.Employees, name)
		case !request:
			result.Others = append(result.Others, name)
		}
	}
	if err := rows.Err(); err != nil {
		return graph.Affiliations{}, storeErr("list affiliations", err)
	}
	return result, nil
}

var _ graph.Store = (*Store)(nil)
