// Package pgmigrations embeds the SQL migrations for the Postgres run store.
package pgmigrations

import "embed"

// FS holds the *.sql migration files, applied in version order by golang-migrate.
//
//go:embed *.sql
var FS embed.FS
