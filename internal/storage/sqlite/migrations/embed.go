package migrations

import "embed"

// FS contains embedded SQLite migrations for roulette storage.
//
//go:embed *.sql
var FS embed.FS
