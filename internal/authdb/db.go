// Package authdb implements the Auth DB: the transactional store for the
// device flow, authorization-code flow and refresh-token state machines
// (spec.md sections 3, 4.1-4.3). Grounded on dex's storage/sql package:
// the flavor abstraction in sql.go, the CAS-update discipline in crud.go,
// and the gc loop in gc.go, generalized from dex's OIDC schema to this
// spec's own tables.
package authdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/diracgrid/diracx-go/internal/apperr"
	"github.com/diracgrid/diracx-go/internal/sqlutil"
)

// DB wraps a *sql.DB plus the driver name needed to translate "?"
// placeholders into the driver's native bind syntax, exactly dex's
// flavor.queryReplacers trick in storage/sql/sql.go.
type DB struct {
	conn   *sql.DB
	driver string
	now    func() time.Time
}

// rebind rewrites "?" placeholders to the driver's native bind syntax.
func (d *DB) rebind(query string) string {
	return sqlutil.Rebind(d.driver, query)
}

// Open connects to driver/dsn and applies pending migrations.
func Open(driver, dsn string) (*DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("authdb: opening %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// sqlite3 serializes writers at the file-handle level and an
		// in-memory database is scoped to a single connection, so a
		// pooled second connection would see an empty schema.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("authdb: pinging %s: %w", driver, err)
	}
	if err := Migrate(conn, driver); err != nil {
		return nil, err
	}
	return &DB{conn: conn, driver: driver, now: time.Now}, nil
}

func (d *DB) Close() error { return d.conn.Close() }

// Ping reports whether the underlying connection is reachable, for
// cmd/diracx's health checks.
func (d *DB) Ping(ctx context.Context) error { return d.conn.PingContext(ctx) }

// execTx runs fn within a transaction, committing on success and rolling
// back on any error or panic. Every DB transaction in this package goes
// through here so that cancellation/exception always rolls back
// (spec.md section 5).
func (d *DB) execTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return sqlutil.ExecTx(ctx, d.conn, fn)
}

// casUpdate runs an UPDATE ... WHERE <current state predicate> and treats
// zero affected rows as loss-of-race rather than success, per spec.md
// section 5's compare-and-set discipline.
func (d *DB) casUpdate(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	return sqlutil.CAS(ctx, tx, d.driver, query, args...)
}

func translateNotFound(err error) error {
	if err == sql.ErrNoRows {
		return apperr.New(apperr.NotFound, "resource not found")
	}
	return err
}
