package pilot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

const testInstallationKey = "test-installation-key"

func TestRegisterAndVerify(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	secret, err := db.Register(ctx, "ref-1", "stamp-1", "vo-1", "DIRAC", testInstallationKey)
	require.NoError(t, err)
	assert.Len(t, secret, 64) // hex-encoded 32 bytes

	p, err := db.Verify(ctx, "ref-1", secret, testInstallationKey)
	require.NoError(t, err)
	assert.Equal(t, "stamp-1", p.PilotStamp)
	assert.Equal(t, "vo-1", p.VO)
	assert.Equal(t, StatusSubmitted, p.Status)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Register(ctx, "ref-1", "stamp-1", "vo-1", "DIRAC", testInstallationKey)
	require.NoError(t, err)

	_, err = db.Verify(ctx, "ref-1", "not-the-secret", testInstallationKey)
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestVerifyUnknownReferenceMatchesWrongSecretError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Register(ctx, "ref-1", "stamp-1", "vo-1", "DIRAC", testInstallationKey)
	require.NoError(t, err)

	_, errUnknown := db.Verify(ctx, "no-such-ref", "whatever", testInstallationKey)
	_, errWrong := db.Verify(ctx, "ref-1", "whatever", testInstallationKey)

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestTransitionStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Register(ctx, "ref-1", "stamp-1", "vo-1", "DIRAC", testInstallationKey)
	require.NoError(t, err)

	require.NoError(t, db.TransitionStatus(ctx, "ref-1", StatusRunning))
	require.NoError(t, db.TransitionStatus(ctx, "ref-1", StatusDone))

	p, err := db.getByReference(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, p.Status)
}

func TestTransitionStatusRejectsInvalidTransition(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Register(ctx, "ref-1", "stamp-1", "vo-1", "DIRAC", testInstallationKey)
	require.NoError(t, err)
	require.NoError(t, db.TransitionStatus(ctx, "ref-1", StatusAborted))

	err = db.TransitionStatus(ctx, "ref-1", StatusRunning)
	assert.Error(t, err)
}

func TestGetByStamp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.Register(ctx, "ref-1", "stamp-1", "vo-1", "DIRAC", testInstallationKey)
	require.NoError(t, err)

	p, err := db.GetByStamp(ctx, "stamp-1")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", p.PilotJobReference)
}
