// Package jobdb is the minimal read/write job-state store search.Engine
// runs against for POST /api/jobs/search. Job submission and scheduling
// logic is explicitly out of scope (spec.md: "domain-specific job/pilot/
// proxy business rules beyond their interaction with auth and search");
// this package only carries the columns the search engine and sandbox
// ownership checks need, grounded on internal/pilot's DB shape for its
// second small SQL-backed store rather than inventing a third flavor.
package jobdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/diracgrid/diracx-go/internal/sqlutil"
)

// Status is a job's coarse-grained lifecycle status.
type Status string

const (
	StatusReceived Status = "Received"
	StatusWaiting  Status = "Waiting"
	StatusRunning  Status = "Running"
	StatusDone     Status = "Done"
	StatusFailed   Status = "Failed"
)

// Job is a row of the jobs table.
type Job struct {
	JobID          string
	VO             string
	Owner          string
	Status         Status
	MinorStatus    string
	Site           string
	SubmissionTime time.Time
}

// DB is the job-state store.
type DB struct {
	conn   *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to driver/dsn and applies pending migrations.
func Open(driver, dsn string) (*DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("jobdb: opening %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("jobdb: pinging %s: %w", driver, err)
	}
	if err := Migrate(conn, driver); err != nil {
		return nil, err
	}
	return &DB{conn: conn, driver: driver, now: time.Now}, nil
}

func (d *DB) Close() error { return d.conn.Close() }

// Conn exposes the underlying connection as *sqlx.DB for search.Engine.
func (d *DB) Conn() *sqlx.DB { return sqlx.NewDb(d.conn, d.driver) }

func (d *DB) Driver() string { return d.driver }

func (d *DB) rebind(query string) string { return sqlutil.Rebind(d.driver, query) }

// Insert records a newly received job. Scheduling and subsequent status
// transitions are out of scope; this exists so the search engine has
// rows to compose queries against in tests and so sandbox uploads can be
// associated with a real JobID.
func (d *DB) Insert(ctx context.Context, vo, owner, site string) (string, error) {
	jobID := uuid.NewString()
	_, err := d.conn.ExecContext(ctx, d.rebind(`
		INSERT INTO jobs (job_id, vo, owner, status, minor_status, site, submission_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		jobID, vo, owner, string(StatusReceived), "", site, d.now().UTC())
	if err != nil {
		return "", fmt.Errorf("jobdb: inserting: %w", err)
	}
	return jobID, nil
}
