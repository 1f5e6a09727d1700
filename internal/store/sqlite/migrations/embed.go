package migrations

import "embed"

// FS contains embedded SQLite migrations for message storage.
//
//go:embed *.sql
var FS embed.FS
