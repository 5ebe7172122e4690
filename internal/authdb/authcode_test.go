package authdb

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func challengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func TestAuthorizationCodeFlowHappyPath(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	verifier := "a-high-entropy-code-verifier-value-1234567890"
	challenge := challengeFor(verifier)

	id, err := db.InsertAuthorizationFlow(ctx, "myclient", "openid", challenge, "S256", "https://client.example/cb")
	require.NoError(t, err)

	code, redirectURI, err := db.AuthorizationFlowInsertIDToken(ctx, id, "id-token-value", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://client.example/cb", redirectURI)
	assert.Len(t, code, codeLength)

	gotRedirect, idToken, err := db.RedeemAuthorizationCode(ctx, code, verifier, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://client.example/cb", gotRedirect)
	assert.Equal(t, "id-token-value", idToken)

	_, _, err = db.RedeemAuthorizationCode(ctx, code, verifier, time.Hour)
	assert.Error(t, err, "a code must be single-use")
}

func TestAuthorizationCodeFlowRejectsWrongVerifier(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	challenge := challengeFor("correct-verifier")
	id, err := db.InsertAuthorizationFlow(ctx, "myclient", "openid", challenge, "S256", "https://client.example/cb")
	require.NoError(t, err)

	code, _, err := db.AuthorizationFlowInsertIDToken(ctx, id, "id-token-value", time.Hour)
	require.NoError(t, err)

	_, _, err = db.RedeemAuthorizationCode(ctx, code, "wrong-verifier", time.Hour)
	assert.Error(t, err)
}

func TestInsertAuthorizationFlowRejectsPlainChallengeMethod(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.InsertAuthorizationFlow(ctx, "myclient", "openid", "plaintext-challenge", "plain", "https://client.example/cb")
	assert.Error(t, err)
}
