package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegacyExchangeDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t, &fakeIdentityResolver{})

	_, err := core.LegacyExchange(ctx, "any-key", "diracAdmin", "users", "alice")
	assert.Error(t, err)
}

func TestLegacyExchangeSucceedsWithConfiguredKey(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t, &fakeIdentityResolver{})

	sum := sha256.Sum256([]byte("s3cr3t"))
	core.settings.LegacyExchangeHashedAPIKey = hex.EncodeToString(sum[:])

	bundle, err := core.LegacyExchange(ctx, "s3cr3t", "diracAdmin", "users", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.AccessToken)
}

func TestLegacyExchangeRejectsWrongKey(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t, &fakeIdentityResolver{})

	sum := sha256.Sum256([]byte("s3cr3t"))
	core.settings.LegacyExchangeHashedAPIKey = hex.EncodeToString(sum[:])

	_, err := core.LegacyExchange(ctx, "wrong-key", "diracAdmin", "users", "alice")
	assert.Error(t, err)
}
