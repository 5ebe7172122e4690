package sandbox

import (
	"context"
	"testing"
	"time"

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

func TestInitiateUploadInsertsThenRefreshes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return t1 }
	existed, err := db.InitiateUpload(ctx, "SB:SandboxSE|/S3/b/vo/g/u/sha256:x.tar.bz2", "vo", "g", "u", 100)
	require.NoError(t, err)
	assert.False(t, existed)

	t2 := t1.Add(time.Hour)
	db.now = func() time.Time { return t2 }
	existed, err = db.InitiateUpload(ctx, "SB:SandboxSE|/S3/b/vo/g/u/sha256:x.tar.bz2", "vo", "g", "u", 100)
	require.NoError(t, err)
	assert.True(t, existed)

	assigned, err := db.IsAssigned(ctx, "SB:SandboxSE|/S3/b/vo/g/u/sha256:x.tar.bz2")
	require.NoError(t, err)
	assert.False(t, assigned)
}

func TestCleanOnlyRemovesStaleUnassigned(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return old }
	_, err := db.InitiateUpload(ctx, "pfn-stale-unassigned", "vo", "g", "u", 1)
	require.NoError(t, err)
	_, err = db.InitiateUpload(ctx, "pfn-stale-assigned", "vo", "g", "u", 1)
	require.NoError(t, err)
	require.NoError(t, db.MarkAssigned(ctx, "pfn-stale-assigned"))

	recent := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return recent }
	_, err = db.InitiateUpload(ctx, "pfn-fresh", "vo", "g", "u", 1)
	require.NoError(t, err)

	deleted, err := db.Clean(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"pfn-stale-unassigned"}, deleted)

	_, err = db.IsAssigned(ctx, "pfn-fresh")
	assert.NoError(t, err)
	_, err = db.IsAssigned(ctx, "pfn-stale-assigned")
	assert.NoError(t, err)
}
