package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diracgrid/diracx-go/internal/config"
	"github.com/diracgrid/diracx-go/internal/tokens"
)

func TestAuthorizedUserInfoDerivesPropertiesLive(t *testing.T) {
	core := newTestCore(t, &fakeIdentityResolver{})

	claims := tokens.AccessClaims{
		Subject:    "sub-alice",
		VO:         "diracAdmin",
		DiracGroup: "users",
		// Deliberately stale/wrong properties embedded in the token: the
		// live Config View must win (testable property 7).
		DiracProperties: []config.SecurityProperty{config.PropertyAdmin},
	}

	info, err := core.AuthorizedUserInfo(claims)
	require.NoError(t, err)
	assert.Equal(t, "alice", info.PreferredUsername)
	assert.True(t, info.HasProperty(config.PropertyNormalUser))
	assert.False(t, info.HasProperty(config.PropertyAdmin))
}

func TestAuthorizedUserInfoRejectsPilotClaims(t *testing.T) {
	core := newTestCore(t, &fakeIdentityResolver{})

	claims := tokens.AccessClaims{VO: "diracAdmin", PilotStamp: "stamp"}
	_, err := core.AuthorizedUserInfo(claims)
	assert.Error(t, err)
}

func TestAuthorizedPilotInfo(t *testing.T) {
	core := newTestCore(t, &fakeIdentityResolver{})

	bundle, err := core.MintPilotBundle(context.Background(), "stamp-123", "diracAdmin")
	require.NoError(t, err)
	claims, err := core.verifier.VerifyAccessToken(bundle.AccessToken, time.Now())
	require.NoError(t, err)

	info, err := core.AuthorizedPilotInfo(claims)
	require.NoError(t, err)
	assert.Equal(t, "stamp-123", info.PilotStamp)
	assert.Equal(t, "diracAdmin", info.VO)
}
