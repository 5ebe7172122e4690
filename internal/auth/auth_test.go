package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/diracgrid/diracx-go/internal/authdb"
	"github.com/diracgrid/diracx-go/internal/config"
	"github.com/diracgrid/diracx-go/internal/idp"
	"github.com/diracgrid/diracx-go/internal/keystore"
	"github.com/diracgrid/diracx-go/internal/settings"
	"github.com/diracgrid/diracx-go/internal/tokens"
)

const testRegistry = `{
  "diracAdmin": {
    "idp": {"url": "https://idp.example/diracAdmin", "client_id": "diracx"},
    "default_group": "users",
    "groups": {
      "users": {"properties": {"NORMAL_USER": {}}, "users": {"sub-alice": {}}, "job_share": 1000, "allow_background_tqs": false}
    },
    "users": {
      "sub-alice": {"preferred_username": "alice", "email": "alice@example.org"}
    }
  }
}`

type fakeIdentityResolver struct {
	subject           string
	preferredUsername string
	email             string
	err               error
}

func (f *fakeIdentityResolver) AuthCodeURL(ctx context.Context, vo, state string) (string, error) {
	return "https://idp.example/authorize?state=" + state, nil
}

func (f *fakeIdentityResolver) Exchange(ctx context.Context, vo, code string) (idp.Identity, error) {
	if f.err != nil {
		return idp.Identity{}, f.err
	}
	return idp.Identity{Subject: f.subject, PreferredUsername: f.preferredUsername, Email: f.email}, nil
}

func newTestCore(t *testing.T, resolver IdentityResolver) *Core {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	registryPath := filepath.Join(dir, "registry.json")
	require.NoError(t, os.WriteFile(registryPath, []byte(testRegistry), 0o600))

	view := config.NewView(config.NewFileSource(registryPath), time.Hour, logrus.New(), nil)
	require.NoError(t, view.Start(ctx))

	store, err := keystore.NewGenerated("k1", 24*time.Hour)
	require.NoError(t, err)

	s := &settings.Settings{
		Issuer:                "https://auth.example",
		AccessTokenTTL:        30 * time.Minute,
		RefreshTokenTTL:       24 * time.Hour,
		DeviceFlowValidity:    15 * time.Minute,
		AuthCodeFlowValidity:  5 * time.Minute,
		DevicePollInterval:    5,
		PilotTokenProperties:  []string{"GENERIC_PILOT"},
	}

	authDB, err := authdb.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = authDB.Close() })

	minter := tokens.NewMinter(store, s.Issuer, "diracx", s.AccessTokenTTL)
	verifier := tokens.NewVerifier(store, s.Issuer)

	return NewCore(authDB, minter, verifier, view, resolver, s)
}
