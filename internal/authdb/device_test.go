package authdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

func TestInsertAndPollDeviceFlow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	userCode, deviceCode, err := db.InsertDeviceFlow(ctx, "myclient", "openid profile")
	require.NoError(t, err)
	assert.Len(t, userCode, userCodeLength)
	assert.Len(t, deviceCode, deviceCodeLength)

	_, err = db.PollDeviceFlow(ctx, deviceCode, time.Hour)
	assert.ErrorIs(t, err, apperr.ErrPendingAuthorization)

	require.NoError(t, db.DeviceFlowValidateUserCode(ctx, userCode, time.Hour))
	require.NoError(t, db.DeviceFlowInsertIDToken(ctx, userCode, "id-token-value", time.Hour))

	result, err := db.PollDeviceFlow(ctx, deviceCode, time.Hour)
	require.NoError(t, err)
	assert.True(t, result.Won)
	assert.Equal(t, "id-token-value", result.IDToken)
	assert.Equal(t, DeviceStatusDone, result.Status)

	_, err = db.PollDeviceFlow(ctx, deviceCode, time.Hour)
	assert.Error(t, err)
}

func TestDeviceFlowExpiry(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	db.now = fixedClock(time.Now().Add(-2 * time.Hour))

	userCode, _, err := db.InsertDeviceFlow(ctx, "myclient", "openid")
	require.NoError(t, err)

	db.now = fixedClock(time.Now())
	err = db.DeviceFlowValidateUserCode(ctx, userCode, time.Hour)
	assert.Error(t, err)
}

func TestDeviceFlowInsertIDTokenRejectsSecondCall(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	userCode, _, err := db.InsertDeviceFlow(ctx, "myclient", "openid")
	require.NoError(t, err)
	require.NoError(t, db.DeviceFlowInsertIDToken(ctx, userCode, "tok-1", time.Hour))

	err = db.DeviceFlowInsertIDToken(ctx, userCode, "tok-2", time.Hour)
	assert.Error(t, err)
}

func TestPollDeviceFlowConcurrentHasExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	userCode, deviceCode, err := db.InsertDeviceFlow(ctx, "myclient", "openid")
	require.NoError(t, err)
	require.NoError(t, db.DeviceFlowInsertIDToken(ctx, userCode, "tok", time.Hour))

	const attempts = 8
	wins := 0
	for i := 0; i < attempts; i++ {
		result, err := db.PollDeviceFlow(ctx, deviceCode, time.Hour)
		if err == nil && result.Won {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}
