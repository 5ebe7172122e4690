package jobdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertAssignsJobID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.Insert(ctx, "lhcb", "alice", "CERN")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var vo, owner string
	require.NoError(t, db.conn.QueryRowContext(ctx, "SELECT vo, owner FROM jobs WHERE job_id = ?", id).Scan(&vo, &owner))
	assert.Equal(t, "lhcb", vo)
	assert.Equal(t, "alice", owner)
}

func TestConnExposesSqlx(t *testing.T) {
	db := newTestDB(t)
	conn := db.Conn()
	require.NoError(t, conn.Ping())
}
