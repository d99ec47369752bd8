package assets

import "embed"

// MigrationDir holds the goose migrations shared by the SQLite and Postgres stores.
const MigrationDir = "migrations"

//go:embed migrations/*.sql
var EmbedMigrations embed.FS
