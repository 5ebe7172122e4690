// Package sqlutil holds the small amount of SQL plumbing shared by
// internal/authdb, internal/pilot, internal/sandbox and internal/jobdb:
// the "?" to "$N" placeholder rebind needed to run the same query text
// against Postgres as well as SQLite and MySQL, plus the
// exec-in-transaction and compare-and-set-update helpers built on top of
// it. Grounded on dex's storage/sql/sql.go flavor abstraction and
// storage/sql/crud.go's transaction discipline, generalized across this
// module's SQL backed packages instead of copied into each.
package sqlutil

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
)

var questionMark = regexp.MustCompile(`\?`)

// Rebind rewrites "?" placeholders to "$1", "$2", ... for Postgres.
// SQLite and MySQL both accept "?" natively and pass through unchanged.
func Rebind(driver, query string) string {
	if driver != "postgres" {
		return query
	}
	n := 0
	return questionMark.ReplaceAllStringFunc(query, func(string) string {
		n++
		return fmt.Sprintf("$%d", n)
	})
}

// ExecTx runs fn within a transaction, committing on success and rolling
// back on any error or panic.
func ExecTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlutil: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// CAS runs an UPDATE ... WHERE <current state predicate> and treats zero
// affected rows as loss-of-race rather than success, per spec.md
// section 5's compare-and-set discipline.
func CAS(ctx context.Context, tx *sql.Tx, driver, query string, args ...any) (bool, error) {
	res, err := tx.ExecContext(ctx, Rebind(driver, query), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
