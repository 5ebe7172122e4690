package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

// Identity is the caller's (vo, group, user) triple, used both to scope
// a sandbox's canonical path and to authorize download.
type Identity struct {
	VO    string
	Group string
	User  string
}

// Info mirrors original_source's SandboxInfo: the client-declared
// checksum/size/format of the archive it wants to upload.
type Info struct {
	ChecksumAlgorithm ChecksumAlgorithm
	Checksum          string
	Size              int64
	Format            string
}

// Presigner is the S3-facing half of Service, behind an interface for
// the same reason internal/auth.IdentityResolver decouples Core from a
// live OIDC provider: tests exercise InitiateUpload/Download without
// talking to real or mocked S3. *Store is the production implementation.
type Presigner interface {
	GeneratePresignedUpload(ctx context.Context, key string, algorithm ChecksumAlgorithm, checksum string, size int64, validity time.Duration) (PresignedUpload, error)
	GeneratePresignedDownload(ctx context.Context, key string, validity time.Duration) (string, error)
	DeleteObjects(ctx context.Context, keys []string) error
}

// Service ties the metadata DB and the S3 store together into the
// initiate_upload/download/clean operations of spec.md section 4.8.
type Service struct {
	DB             *DB
	Store          Presigner
	Bucket         string
	StorageElement string
	MaxSize        int64
	UploadValidity time.Duration
	Retention      time.Duration
}

// UploadResponse mirrors SandboxUploadResponse: URL is nil when the
// object already exists and the client should skip uploading.
type UploadResponse struct {
	PFN    string
	URL    *string
	Fields map[string]string
}

// InitiateUpload implements spec.md section 4.8's initiate_upload.
func (s *Service) InitiateUpload(ctx context.Context, who Identity, info Info) (UploadResponse, error) {
	if s.MaxSize > 0 && info.Size > s.MaxSize {
		return UploadResponse{}, apperr.New(apperr.InvalidRequest, "Sandbox too large")
	}

	canonical := CanonicalPath(s.Bucket, who.VO, who.Group, who.User, string(info.ChecksumAlgorithm), info.Checksum, info.Format)
	pfn := FullPFN(s.StorageElement, canonical)

	existed, err := s.DB.InitiateUpload(ctx, pfn, who.VO, who.Group, who.User, info.Size)
	if err != nil {
		return UploadResponse{}, err
	}
	if existed {
		return UploadResponse{PFN: pfn}, nil
	}

	upload, err := s.Store.GeneratePresignedUpload(ctx, canonical, info.ChecksumAlgorithm, info.Checksum, info.Size, s.UploadValidity)
	if err != nil {
		return UploadResponse{}, err
	}
	return UploadResponse{PFN: pfn, URL: &upload.URL, Fields: upload.Fields}, nil
}

// DownloadResponse mirrors SandboxDownloadResponse.
type DownloadResponse struct {
	URL       string
	ExpiresIn int
}

// Download implements spec.md section 4.8's download, rejecting PFNs
// outside the caller's vo/group/user prefix.
func (s *Service) Download(ctx context.Context, who Identity, pfn string, validity time.Duration) (DownloadResponse, error) {
	if err := ValidateOwnership(pfn, who.VO, who.Group, who.User); err != nil {
		return DownloadResponse{}, err
	}
	key, err := objectKey(pfn)
	if err != nil {
		return DownloadResponse{}, err
	}
	url, err := s.Store.GeneratePresignedDownload(ctx, key, validity)
	if err != nil {
		return DownloadResponse{}, err
	}
	return DownloadResponse{URL: url, ExpiresIn: int(validity.Seconds())}, nil
}

// Clean implements spec.md section 4.8's clean(): it deletes metadata
// rows past retention and not assigned, then deletes the underlying
// objects.
func (s *Service) Clean(ctx context.Context) (int, error) {
	pfns, err := s.DB.Clean(ctx, s.Retention)
	if err != nil {
		return 0, err
	}
	if len(pfns) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(pfns))
	for _, pfn := range pfns {
		key, err := objectKey(pfn)
		if err != nil {
			return 0, fmt.Errorf("sandbox: cleaning: %w", err)
		}
		keys = append(keys, key)
	}
	if err := s.Store.DeleteObjects(ctx, keys); err != nil {
		return 0, err
	}
	return len(pfns), nil
}
