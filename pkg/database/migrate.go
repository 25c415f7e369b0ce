package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/noah-isme/sma-health-api/migrations"
)

const migrationTable = "schema_migrations"

func source() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{FileSystem: migrations.FS, Root: migrations.Root}
}

// Migrate applies pending migrations in the given direction and returns how many ran.
// A max of 0 means no limit.
func Migrate(db *sqlx.DB, direction migrate.MigrationDirection, max int) (int, error) {
	ms := migrate.MigrationSet{TableName: migrationTable}
	n, err := ms.ExecMax(db.DB, "postgres", source(), direction, max)
	if err != nil {
		return n, fmt.Errorf("apply migrations: %w", err)
	}
	return n, nil
}

// Pending lists the migration ids not yet applied.
func Pending(db *sqlx.DB) ([]string, error) {
	ms := migrate.MigrationSet{TableName: migrationTable}
	planned, _, err := ms.PlanMigration(db.DB, "postgres", source(), migrate.Up, 0)
	if err != nil {
		return nil, fmt.Errorf("plan migrations: %w", err)
	}
	ids := make([]string, 0, len(planned))
	for _, m := range planned {
		ids = append(ids, m.Id)
	}
	return ids, nil
}
