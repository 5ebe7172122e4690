package keystore_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diracgrid/diracx-go/internal/keystore"
)

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestRotationKeepsOldKeyVerifiable(t *testing.T) {
	store, err := keystore.NewGenerated("k1", time.Hour)
	require.NoError(t, err)

	oldKeyID := store.ActiveKeyID()
	require.Len(t, store.JWKS().Keys, 1)

	store.Rotate(genKey(t), "k2")

	require.Equal(t, "k2", store.ActiveKeyID())
	jwks := store.JWKS()
	require.Len(t, jwks.Keys, 2)

	ids := []string{jwks.Keys[0].KeyID, jwks.Keys[1].KeyID}
	require.Contains(t, ids, oldKeyID)
	require.Contains(t, ids, "k2")
}

func TestRotationExpiresOldKey(t *testing.T) {
	store, err := keystore.NewGenerated("k1", -time.Second)
	require.NoError(t, err)

	store.Rotate(genKey(t), "k2")

	require.Len(t, store.JWKS().Keys, 1)
	require.Equal(t, "k2", store.JWKS().Keys[0].KeyID)
}

func TestLoadRSAKeyFromPEM(t *testing.T) {
	key := genKey(t)
	der := x509.MarshalPKCS1PrivateKey(key)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})

	loaded, err := keystore.LoadRSAKey(string(pemBytes))
	require.NoError(t, err)
	require.Equal(t, key.N, loaded.N)
}
