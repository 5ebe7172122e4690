// Package pilot implements pilot credential registration/verification and
// status tracking (spec.md section 4.9; status transitions supplemented
// from original_source/diracx-logic/src/diracx/logic/pilots/*). Grounded
// on internal/authdb's DB shape, generalized to a second small SQL-backed
// store via the shared internal/sqlutil helpers instead of duplicating
// authdb's hand-rolled flavor code.
package pilot

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/diracgrid/diracx-go/internal/apperr"
	"github.com/diracgrid/diracx-go/internal/sqlutil"
	"github.com/diracgrid/diracx-go/internal/statemachine"
)

// Status is a pilot's lifecycle state (spec.md section 3, transitions
// supplemented from SPEC_FULL.md section 4).
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusRunning   Status = "RUNNING"
	StatusDone      Status = "DONE"
	StatusAborted   Status = "ABORTED"
)

var machine = statemachine.New(
	[]Status{StatusSubmitted, StatusRunning, StatusDone, StatusAborted},
	map[Status][]Status{
		StatusSubmitted: {StatusRunning, StatusAborted},
		StatusRunning:   {StatusDone, StatusAborted},
		StatusDone:      {},
		StatusAborted:   {},
	},
)

// Pilot is a row of the pilots table.
type Pilot struct {
	PilotJobReference string
	PilotStamp        string
	VO                string
	GridType          string
	Status            Status
	SubmissionTime    time.Time
	HashedSecret      sql.NullString
}

// DB is the pilot credential/status store.
type DB struct {
	conn   *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to driver/dsn and applies pending migrations.
func Open(driver, dsn string) (*DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("pilot: opening %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pilot: pinging %s: %w", driver, err)
	}
	if err := Migrate(conn, driver); err != nil {
		return nil, err
	}
	return &DB{conn: conn, driver: driver, now: time.Now}, nil
}

func (d *DB) Close() error { return d.conn.Close() }

// Conn exposes the underlying connection as *sqlx.DB so internal/search's
// Engine can execute composed queries directly against the pilots table.
func (d *DB) Conn() *sqlx.DB { return sqlx.NewDb(d.conn, d.driver) }

// Driver returns the SQL driver name this store was opened with, for
// search.Engine calls that need to pick driver-specific SQL flavor.
func (d *DB) Driver() string { return d.driver }

func (d *DB) rebind(query string) string { return sqlutil.Rebind(d.driver, query) }

// secretLength is the byte length of a generated pilot secret; spec.md
// section 4.9 pins it at 32 bytes, returned to the caller hex-encoded.
const secretLength = 32

// Register creates a new SUBMITTED pilot and returns its plaintext
// secret. The secret is never stored: only HMAC-SHA256(secret,
// installationKey) is persisted, and the plaintext is returned exactly
// once (spec.md section 4.9).
func (d *DB) Register(ctx context.Context, pilotJobReference, pilotStamp, vo, gridType, installationKey string) (secret string, err error) {
	raw := make([]byte, secretLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("pilot: generating secret: %w", err)
	}
	secret = hex.EncodeToString(raw)
	hashed := hashSecret(secret, installationKey)

	err = sqlutil.ExecTx(ctx, d.conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, d.rebind(`
			INSERT INTO pilots (pilot_job_reference, pilot_stamp, vo, grid_type, status, submission_time, hashed_secret)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			pilotJobReference, pilotStamp, vo, gridType, string(StatusSubmitted), d.now().UTC(), hashed)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("pilot: registering: %w", err)
	}
	return secret, nil
}

func hashSecret(secret, installationKey string) string {
	mac := hmac.New(sha256.New, []byte(installationKey))
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// errAuthorizationIdentical is the single error returned for both an
// unknown pilot_job_reference and a wrong secret, so a caller cannot use
// response differences to enumerate valid references (spec.md section
// 4.9).
func errAuthorizationIdentical() error {
	return apperr.Wrap(apperr.AuthenticationRequired, "invalid pilot credentials", apperr.ErrAuthorization)
}

// Verify recomputes HMAC-SHA256(presentedSecret, installationKey) and
// compares it in constant time against the stored hash.
func (d *DB) Verify(ctx context.Context, pilotJobReference, presentedSecret, installationKey string) (Pilot, error) {
	p, err := d.getByReference(ctx, pilotJobReference)
	if err != nil {
		return Pilot{}, errAuthorizationIdentical()
	}
	if !p.HashedSecret.Valid {
		return Pilot{}, errAuthorizationIdentical()
	}
	computed := hashSecret(presentedSecret, installationKey)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(p.HashedSecret.String)) != 1 {
		return Pilot{}, errAuthorizationIdentical()
	}
	return p, nil
}

// TransitionStatus moves a pilot to newStatus via a CAS update, rejecting
// transitions the state machine doesn't allow.
func (d *DB) TransitionStatus(ctx context.Context, pilotJobReference string, newStatus Status) error {
	p, err := d.getByReference(ctx, pilotJobReference)
	if err != nil {
		return err
	}
	if !machine.CanTransition(p.Status, newStatus) {
		return apperr.New(apperr.InvalidRequest, fmt.Sprintf("cannot transition pilot from %s to %s", p.Status, newStatus))
	}
	return sqlutil.ExecTx(ctx, d.conn, func(tx *sql.Tx) error {
		ok, err := sqlutil.CAS(ctx, tx, d.driver, `
			UPDATE pilots SET status = ? WHERE pilot_job_reference = ? AND status = ?`,
			string(newStatus), pilotJobReference, string(p.Status))
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.Conflict, "pilot status changed concurrently")
		}
		return nil
	})
}

func (d *DB) getByReference(ctx context.Context, pilotJobReference string) (Pilot, error) {
	row := d.conn.QueryRowContext(ctx, d.rebind(`
		SELECT pilot_job_reference, pilot_stamp, vo, grid_type, status, submission_time, hashed_secret
		FROM pilots WHERE pilot_job_reference = ?`), pilotJobReference)
	return scanPilot(row)
}

// GetByStamp looks up a pilot by its stamp (the identifier carried in a
// pilot access token, spec.md section 3).
func (d *DB) GetByStamp(ctx context.Context, pilotStamp string) (Pilot, error) {
	row := d.conn.QueryRowContext(ctx, d.rebind(`
		SELECT pilot_job_reference, pilot_stamp, vo, grid_type, status, submission_time, hashed_secret
		FROM pilots WHERE pilot_stamp = ?`), pilotStamp)
	return scanPilot(row)
}

func scanPilot(row *sql.Row) (Pilot, error) {
	var p Pilot
	var status string
	if err := row.Scan(&p.PilotJobReference, &p.PilotStamp, &p.VO, &p.GridType, &status, &p.SubmissionTime, &p.HashedSecret); err != nil {
		if err == sql.ErrNoRows {
			return Pilot{}, apperr.New(apperr.NotFound, "pilot not found")
		}
		return Pilot{}, err
	}
	p.Status = Status(status)
	return p, nil
}
