package authdb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies all pending schema migrations, replacing dex's
// hand-rolled numbered-migration loop (storage/sql/migrate.go) with
// golang-migrate/migrate/v4, as wisbric-nightowl's platform layer does.
func Migrate(db *sql.DB, driverName string) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("authdb: loading embedded migrations: %w", err)
	}

	var dbDriver migrate.Driver
	switch driverName {
	case "postgres":
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite3":
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	default:
		return fmt.Errorf("authdb: unsupported driver %q", driverName)
	}
	if err != nil {
		return fmt.Errorf("authdb: building migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driverName, dbDriver)
	if err != nil {
		return fmt.Errorf("authdb: building migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("authdb: applying migrations: %w", err)
	}
	return nil
}
