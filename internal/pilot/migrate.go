package pilot

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

// Migrate applies the pilots table schema, in the same style as
// internal/authdb.Migrate.
func Migrate(db *sql.DB, driverName string) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("pilot: loading embedded migrations: %w", err)
	}

	var dbDriver migrate.Driver
	switch driverName {
	case "postgres":
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	case "sqlite3":
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	default:
		return fmt.Errorf("pilot: unsupported driver %q", driverName)
	}
	if err != nil {
		return fmt.Errorf("pilot: building migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driverName, dbDriver)
	if err != nil {
		return fmt.Errorf("pilot: building migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("pilot: applying migrations: %w", err)
	}
	return nil
}
