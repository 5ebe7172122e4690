package authdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestDB opens an in-memory sqlite database with migrations applied.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fixedClock lets tests control DB.now deterministically.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
