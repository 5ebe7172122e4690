package authdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGCSweepsExpiredRows(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	old := time.Now().Add(-48 * time.Hour)
	db.now = fixedClock(old)
	_, _, err := db.InsertDeviceFlow(ctx, "client", "openid")
	require.NoError(t, err)
	_, err = db.InsertAuthorizationFlow(ctx, "client", "openid", "challenge", "S256", "https://client.example/cb")
	require.NoError(t, err)
	require.NoError(t, db.InsertRefreshToken(ctx, "jti-old", "sub-1", "vo-1", "users", "alice", "openid", false))
	require.NoError(t, db.RevokeRefreshToken(ctx, "jti-old"))

	db.now = fixedClock(time.Now())
	_, _, err = db.InsertDeviceFlow(ctx, "client", "openid")
	require.NoError(t, err)
	require.NoError(t, db.InsertRefreshToken(ctx, "jti-live", "sub-1", "vo-1", "users", "alice", "openid", false))

	result, err := db.RunGC(ctx, GCRetention{
		FlowMaxValidity:  time.Hour,
		RevokedRetention: time.Hour,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.DeviceFlows)
	assert.EqualValues(t, 1, result.AuthCodeFlows)
	assert.EqualValues(t, 1, result.RefreshTokens)

	_, err = db.GetRefreshToken(ctx, "jti-old")
	assert.Error(t, err, "old revoked token should have been collected")

	live, err := db.GetRefreshToken(ctx, "jti-live")
	require.NoError(t, err)
	assert.Equal(t, RefreshStatusCreated, live.Status)
}
