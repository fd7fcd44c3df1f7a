package migrations

import "embed"

// FS contains embedded SQLite migrations for the entity graph store.
//
//go:embed *.sql
var FS embed.FS
