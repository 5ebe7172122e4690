package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/diracgrid/diracx-go/internal/sqlutil"
)

// DB is the sandbox metadata store (spec.md section 4.8), grounded on
// original_source/diracx-db/src/diracx/db/sql/sandbox_metadata/db.py's
// insert_sandbox/sandbox_is_assigned/update_sandbox_last_access_time and
// on internal/pilot.DB's shape, reusing internal/sqlutil directly rather
// than re-deriving rebind/transaction plumbing a third time.
type DB struct {
	conn   *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to driver/dsn and applies pending migrations.
func Open(driver, dsn string) (*DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sandbox: opening %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("sandbox: pinging %s: %w", driver, err)
	}
	if err := Migrate(conn, driver); err != nil {
		return nil, err
	}
	return &DB{conn: conn, driver: driver, now: time.Now}, nil
}

func (d *DB) Close() error { return d.conn.Close() }

func (d *DB) rebind(query string) string { return sqlutil.Rebind(d.driver, query) }

// InitiateUpload records that pfn was requested by a client: if a
// metadata row already exists (the object was previously uploaded),
// its last_access_time is refreshed and existed=true is returned so the
// caller skips re-uploading; otherwise a fresh unassigned row is
// inserted (spec.md section 4.8).
func (d *DB) InitiateUpload(ctx context.Context, pfn, vo, group, owner string, size int64) (existed bool, err error) {
	err = sqlutil.ExecTx(ctx, d.conn, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, d.rebind(`UPDATE sandboxes SET last_access_time = ? WHERE pfn = ?`), d.now().UTC(), pfn)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			existed = true
			return nil
		}
		_, err = tx.ExecContext(ctx, d.rebind(`
			INSERT INTO sandboxes (pfn, vo, dirac_group, owner, size, last_access_time, assigned)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			pfn, vo, group, owner, size, d.now().UTC(), false)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("sandbox: initiating upload: %w", err)
	}
	return existed, nil
}

// IsAssigned reports whether pfn has been attached to a job (spec.md
// section 4.8's retention predicate: a sandbox is only GC-eligible once
// it is both stale and unassigned).
func (d *DB) IsAssigned(ctx context.Context, pfn string) (bool, error) {
	var assigned bool
	err := d.conn.QueryRowContext(ctx, d.rebind(`SELECT assigned FROM sandboxes WHERE pfn = ?`), pfn).Scan(&assigned)
	if err != nil {
		return false, fmt.Errorf("sandbox: checking assignment: %w", err)
	}
	return assigned, nil
}

// MarkAssigned flags pfn as attached to a job, exempting it from
// retention cleanup.
func (d *DB) MarkAssigned(ctx context.Context, pfn string) error {
	_, err := d.conn.ExecContext(ctx, d.rebind(`UPDATE sandboxes SET assigned = ? WHERE pfn = ?`), true, pfn)
	if err != nil {
		return fmt.Errorf("sandbox: marking assigned: %w", err)
	}
	return nil
}

// Clean deletes metadata rows whose last_access_time is older than
// retention and whose assigned flag is false, returning the PFNs of the
// deleted rows so the caller can remove the underlying objects (spec.md
// section 4.8's clean() operation).
func (d *DB) Clean(ctx context.Context, retention time.Duration) ([]string, error) {
	cutoff := d.now().UTC().Add(-retention)
	var pfns []string
	err := sqlutil.ExecTx(ctx, d.conn, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, d.rebind(`SELECT pfn FROM sandboxes WHERE last_access_time < ? AND assigned = ?`), cutoff, false)
		if err != nil {
			return err
		}
		for rows.Next() {
			var pfn string
			if err := rows.Scan(&pfn); err != nil {
				rows.Close()
				return err
			}
			pfns = append(pfns, pfn)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if len(pfns) == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, d.rebind(`DELETE FROM sandboxes WHERE last_access_time < ? AND assigned = ?`), cutoff, false)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: cleaning: %w", err)
	}
	return pfns, nil
}
