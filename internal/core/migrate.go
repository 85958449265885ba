// AngelaMos | 2026
// migrate.go

package core

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/angelamos/tenfold/migrations"
)

// RunMigrations applies the embedded schema migrations. Safe to run on
// every startup; goose tracks applied versions in goose_db_version.
func (d *Database) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, d.DB.DB, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
