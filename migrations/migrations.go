// Package migrations embeds the PostgreSQL schema applied by sql-migrate.
package migrations

import "embed"

// FS holds the ordered migration files under sql/.
//
//go:embed sql/*.sql
var FS embed.FS

// Root is the directory inside FS that contains the migrations.
const Root = "sql"
