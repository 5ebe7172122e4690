package tokens_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diracgrid/diracx-go/internal/config"
	"github.com/diracgrid/diracx-go/internal/keystore"
	"github.com/diracgrid/diracx-go/internal/tokens"
)

func TestMintAndVerifyAccessToken(t *testing.T) {
	store, err := keystore.NewGenerated("k1", time.Hour)
	require.NoError(t, err)

	minter := tokens.NewMinter(store, "https://diracx.example", "diracx", 30*time.Minute)
	verifier := tokens.NewVerifier(store, "https://diracx.example")

	now := time.Now()
	raw, claims, err := minter.MintAccessToken(tokens.AccessClaims{
		Subject:           "lhcb:42",
		VO:                "lhcb",
		PreferredUsername: "chaen",
		DiracGroup:        "lhcb_user",
		DiracProperties:   []config.SecurityProperty{config.PropertyNormalUser},
	}, "jti-1", now)
	require.NoError(t, err)
	require.NotEmpty(t, claims.JTI)

	got, err := verifier.VerifyAccessToken(raw, now)
	require.NoError(t, err)
	require.Equal(t, "lhcb:42", got.Subject)
	require.False(t, got.IsPilot())
}

func TestVerifyRejectsExpired(t *testing.T) {
	store, err := keystore.NewGenerated("k1", time.Hour)
	require.NoError(t, err)

	minter := tokens.NewMinter(store, "https://diracx.example", "diracx", time.Minute)
	verifier := tokens.NewVerifier(store, "https://diracx.example")

	past := time.Now().Add(-time.Hour)
	raw, _, err := minter.MintAccessToken(tokens.AccessClaims{Subject: "lhcb:1", VO: "lhcb"}, "jti", past)
	require.NoError(t, err)

	_, err = verifier.VerifyAccessToken(raw, time.Now())
	require.Error(t, err)
}

func TestVerifyAcceptsPreRotationKey(t *testing.T) {
	store, err := keystore.NewGenerated("k1", time.Hour)
	require.NoError(t, err)

	minter := tokens.NewMinter(store, "https://diracx.example", "diracx", time.Hour)
	verifier := tokens.NewVerifier(store, "https://diracx.example")

	now := time.Now()
	raw, _, err := minter.MintAccessToken(tokens.AccessClaims{Subject: "lhcb:1", VO: "lhcb"}, "jti", now)
	require.NoError(t, err)

	// Rotating to a new signing key must not invalidate tokens signed
	// under the old one, as long as it's still in the verification set.
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	store.Rotate(newKey, "k2")

	_, err = verifier.VerifyAccessToken(raw, now)
	require.NoError(t, err)
}

func TestPilotTokenHasNoGroup(t *testing.T) {
	c := tokens.AccessClaims{Subject: "lhcb:pilot-1", VO: "lhcb", PilotStamp: "stamp"}
	require.True(t, c.IsPilot())
}
