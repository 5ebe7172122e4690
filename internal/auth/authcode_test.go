package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestAuthorizationCodeFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeIdentityResolver{subject: "sub-alice", preferredUsername: "alice"}
	core := newTestCore(t, resolver)

	verifier := "a-sufficiently-long-random-code-verifier-value"
	flowID, err := core.StartAuthorizationFlow(ctx, "myclient", "openid", pkceChallenge(verifier), "S256", "https://client.example/cb")
	require.NoError(t, err)

	_, err = core.AuthorizationFlowAuthCodeURL(ctx, flowID, "diracAdmin")
	require.NoError(t, err)

	code, redirectURI, err := core.CompleteAuthorizationFlow(ctx, flowID, "diracAdmin", "users", "idp-code")
	require.NoError(t, err)
	assert.Equal(t, "https://client.example/cb", redirectURI)

	bundle, err := core.RedeemAuthorizationCode(ctx, code, verifier, "https://client.example/cb")
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.AccessToken)
	assert.NotEmpty(t, bundle.RefreshToken)

	_, err = core.RedeemAuthorizationCode(ctx, code, verifier, "https://client.example/cb")
	assert.Error(t, err, "a code must be single-use")
}

func TestAuthorizationCodeFlowRejectsMismatchedRedirectURI(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeIdentityResolver{subject: "sub-alice", preferredUsername: "alice"}
	core := newTestCore(t, resolver)

	verifier := "a-sufficiently-long-random-code-verifier-value"
	flowID, err := core.StartAuthorizationFlow(ctx, "myclient", "openid", pkceChallenge(verifier), "S256", "https://client.example/cb")
	require.NoError(t, err)

	code, _, err := core.CompleteAuthorizationFlow(ctx, flowID, "diracAdmin", "users", "idp-code")
	require.NoError(t, err)

	_, err = core.RedeemAuthorizationCode(ctx, code, verifier, "https://attacker.example/cb")
	assert.Error(t, err)
}
