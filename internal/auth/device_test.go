package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

func TestDeviceFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeIdentityResolver{subject: "sub-alice", preferredUsername: "alice", email: "alice@example.org"}
	core := newTestCore(t, resolver)

	start, err := core.StartDeviceFlow(ctx, "myclient", "openid profile")
	require.NoError(t, err)
	assert.NotEmpty(t, start.UserCode)
	assert.NotEmpty(t, start.DeviceCode)

	_, err = core.PollDeviceFlow(ctx, start.DeviceCode)
	assert.ErrorIs(t, err, apperr.ErrPendingAuthorization)

	_, err = core.DeviceFlowAuthCodeURL(ctx, start.UserCode, "diracAdmin")
	require.NoError(t, err)

	require.NoError(t, core.CompleteDeviceFlow(ctx, start.UserCode, "diracAdmin", "users", "idp-code"))

	bundle, err := core.PollDeviceFlow(ctx, start.DeviceCode)
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.AccessToken)
	assert.NotEmpty(t, bundle.RefreshToken)
	assert.Equal(t, "Bearer", bundle.TokenType)

	_, err = core.PollDeviceFlow(ctx, start.DeviceCode)
	assert.Error(t, err, "a completed device flow cannot be claimed twice")
}

func TestDeviceFlowRejectsUnknownGroupMembership(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeIdentityResolver{subject: "sub-not-a-member", preferredUsername: "mallory"}
	core := newTestCore(t, resolver)

	start, err := core.StartDeviceFlow(ctx, "myclient", "openid")
	require.NoError(t, err)

	err = core.CompleteDeviceFlow(ctx, start.UserCode, "diracAdmin", "users", "idp-code")
	assert.Error(t, err)
}
