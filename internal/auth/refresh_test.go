package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mintedBundle(t *testing.T, core *Core) TokenResponse {
	t.Helper()
	ctx := context.Background()
	start, err := core.StartDeviceFlow(ctx, "myclient", "openid")
	require.NoError(t, err)
	require.NoError(t, core.CompleteDeviceFlow(ctx, start.UserCode, "diracAdmin", "users", "idp-code"))
	bundle, err := core.PollDeviceFlow(ctx, start.DeviceCode)
	require.NoError(t, err)
	return bundle
}

func TestRefreshAccessTokenRotates(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeIdentityResolver{subject: "sub-alice", preferredUsername: "alice"}
	core := newTestCore(t, resolver)

	bundle := mintedBundle(t, core)

	refreshed, err := core.RefreshAccessToken(ctx, bundle.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, bundle.RefreshToken, refreshed.RefreshToken)
}

func TestRefreshAccessTokenReplayRevokesLineage(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeIdentityResolver{subject: "sub-alice", preferredUsername: "alice"}
	core := newTestCore(t, resolver)

	bundle := mintedBundle(t, core)

	refreshed, err := core.RefreshAccessToken(ctx, bundle.RefreshToken)
	require.NoError(t, err)

	// Replay the already-rotated-away token: this must fail and also
	// revoke the legitimate successor token.
	_, err = core.RefreshAccessToken(ctx, bundle.RefreshToken)
	assert.Error(t, err)

	_, err = core.RefreshAccessToken(ctx, refreshed.RefreshToken)
	assert.Error(t, err, "the entire lineage should have been revoked by the replay")
}
