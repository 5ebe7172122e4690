package authdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotateRefreshTokenMovesLineageForward(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.InsertRefreshToken(ctx, "jti-1", "sub-1", "vo-1", "users", "alice", "openid", false))

	rotated, err := db.RotateRefreshToken(ctx, "jti-1", "jti-2")
	require.NoError(t, err)
	assert.Equal(t, "jti-2", rotated.JTI)
	assert.Equal(t, RefreshStatusCreated, rotated.Status)

	old, err := db.GetRefreshToken(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, RefreshStatusRevoked, old.Status)
}

func TestRotateRefreshTokenRejectsAlreadyRevoked(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.InsertRefreshToken(ctx, "jti-1", "sub-1", "vo-1", "users", "alice", "openid", false))
	_, err := db.RotateRefreshToken(ctx, "jti-1", "jti-2")
	require.NoError(t, err)

	// jti-1 is now REVOKED: presenting it again is a replay.
	_, err = db.RotateRefreshToken(ctx, "jti-1", "jti-3")
	assert.Error(t, err)
}

func TestReplayRevokesWholeLineage(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.InsertRefreshToken(ctx, "jti-1", "sub-1", "vo-1", "users", "alice", "openid", false))
	rotated, err := db.RotateRefreshToken(ctx, "jti-1", "jti-2")
	require.NoError(t, err)
	assert.Equal(t, "jti-2", rotated.JTI)

	// jti-2 is the only live token in the lineage; simulate the stolen
	// jti-1 being replayed by an attacker after the legitimate client
	// already rotated past it.
	_, err = db.RotateRefreshToken(ctx, "jti-1", "jti-stolen")
	assert.Error(t, err, "jti-1 is already revoked")

	affected, err := db.ReplayRevokeLineage(ctx, "sub-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected, "jti-2 should be revoked")

	current, err := db.GetRefreshToken(ctx, "jti-2")
	require.NoError(t, err)
	assert.Equal(t, RefreshStatusRevoked, current.Status)
}

func TestRevokeRefreshToken(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.InsertRefreshToken(ctx, "jti-1", "sub-1", "vo-1", "users", "alice", "openid", false))
	require.NoError(t, db.RevokeRefreshToken(ctx, "jti-1"))

	tok, err := db.GetRefreshToken(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, RefreshStatusRevoked, tok.Status)
}
