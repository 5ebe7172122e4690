package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

type fakePresigner struct {
	uploadURL   string
	downloadURL string
	deleted     []string
}

func (f *fakePresigner) GeneratePresignedUpload(ctx context.Context, key string, algorithm ChecksumAlgorithm, checksum string, size int64, validity time.Duration) (PresignedUpload, error) {
	return PresignedUpload{URL: f.uploadURL, Fields: map[string]string{"key": key}}, nil
}

func (f *fakePresigner) GeneratePresignedDownload(ctx context.Context, key string, validity time.Duration) (string, error) {
	return f.downloadURL, nil
}

func (f *fakePresigner) DeleteObjects(ctx context.Context, keys []string) error {
	f.deleted = append(f.deleted, keys...)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakePresigner) {
	t.Helper()
	db := newTestDB(t)
	presigner := &fakePresigner{uploadURL: "https://s3.example/bucket", downloadURL: "https://s3.example/signed-get"}
	return &Service{
		DB:             db,
		Store:          presigner,
		Bucket:         "bucket1",
		StorageElement: "SandboxSE",
		MaxSize:        1024,
		UploadValidity: 5 * time.Minute,
		Retention:      24 * time.Hour,
	}, presigner
}

func TestInitiateUploadReturnsPresignedPostForNewObject(t *testing.T) {
	svc, _ := newTestService(t)
	who := Identity{VO: "vo", Group: "group1", User: "user1"}
	info := Info{ChecksumAlgorithm: ChecksumSHA256, Checksum: "abc", Size: 100, Format: "tar.bz2"}

	resp, err := svc.InitiateUpload(context.Background(), who, info)
	require.NoError(t, err)
	require.NotNil(t, resp.URL)
	assert.Equal(t, "SB:SandboxSE|/S3/bucket1/vo/group1/user1/sha256:abc.tar.bz2", resp.PFN)
}

func TestInitiateUploadSkipsReuploadForExistingObject(t *testing.T) {
	svc, _ := newTestService(t)
	who := Identity{VO: "vo", Group: "group1", User: "user1"}
	info := Info{ChecksumAlgorithm: ChecksumSHA256, Checksum: "abc", Size: 100, Format: "tar.bz2"}

	_, err := svc.InitiateUpload(context.Background(), who, info)
	require.NoError(t, err)

	resp, err := svc.InitiateUpload(context.Background(), who, info)
	require.NoError(t, err)
	assert.Nil(t, resp.URL)
}

func TestInitiateUploadRejectsOversizedRequest(t *testing.T) {
	svc, _ := newTestService(t)
	who := Identity{VO: "vo", Group: "group1", User: "user1"}
	info := Info{ChecksumAlgorithm: ChecksumSHA256, Checksum: "abc", Size: 10000, Format: "tar.bz2"}

	_, err := svc.InitiateUpload(context.Background(), who, info)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidRequest, err.(*apperr.Error).Kind)
}

func TestDownloadRejectsMismatchedOwner(t *testing.T) {
	svc, _ := newTestService(t)
	who := Identity{VO: "vo", Group: "group1", User: "user1"}
	info := Info{ChecksumAlgorithm: ChecksumSHA256, Checksum: "abc", Size: 100, Format: "tar.bz2"}

	resp, err := svc.InitiateUpload(context.Background(), who, info)
	require.NoError(t, err)

	_, err = svc.Download(context.Background(), Identity{VO: "vo", Group: "group1", User: "other_user"}, resp.PFN, time.Minute)
	assert.Error(t, err)
}

func TestDownloadReturnsPresignedURLForOwner(t *testing.T) {
	svc, presigner := newTestService(t)
	who := Identity{VO: "vo", Group: "group1", User: "user1"}
	info := Info{ChecksumAlgorithm: ChecksumSHA256, Checksum: "abc", Size: 100, Format: "tar.bz2"}

	resp, err := svc.InitiateUpload(context.Background(), who, info)
	require.NoError(t, err)

	dl, err := svc.Download(context.Background(), who, resp.PFN, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, presigner.downloadURL, dl.URL)
	assert.Equal(t, 60, dl.ExpiresIn)
}

func TestCleanDeletesUnderlyingObjects(t *testing.T) {
	svc, presigner := newTestService(t)
	who := Identity{VO: "vo", Group: "group1", User: "user1"}
	info := Info{ChecksumAlgorithm: ChecksumSHA256, Checksum: "abc", Size: 100, Format: "tar.bz2"}

	svc.DB.now = func() time.Time { return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err := svc.InitiateUpload(context.Background(), who, info)
	require.NoError(t, err)

	svc.DB.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	n, err := svc.Clean(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, presigner.deleted, 1)
}
