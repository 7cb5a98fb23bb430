package store

import "embed"

// EmbeddedMigrations contains all SQL migration files compiled into
// the binary, so deployments never depend on external files.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
