package sandbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

// Store wraps an S3-compatible client with presigned upload/download
// generation (spec.md section 4.8), grounded on
// original_source/diracx-core/src/diracx/core/s3.py's
// generate_presigned_upload. aws-sdk-go-v2 has no equivalent of boto3's
// generate_presigned_post, so the POST policy document is composed and
// SigV4-signed by hand below, the documented AWS algorithm for
// presigned POST outside of boto3.
type Store struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	region   string
	credsCfg aws.CredentialsProvider
}

// NewStore loads the default AWS credential chain (env vars, shared
// config, IAM role), unless overridden by optFns, and builds a Store for
// bucket against endpoint. usePathStyle is required for most on-premises
// S3-compatible object stores (MinIO, Ceph RGW), which don't support the
// virtual-hosted bucket addressing AWS S3 defaults to.
func NewStore(ctx context.Context, bucket, endpoint string, usePathStyle bool, optFns ...func(*config.LoadOptions) error) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("sandbox: loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	})
	return &Store{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   bucket,
		region:   cfg.Region,
		credsCfg: cfg.Credentials,
	}, nil
}

// ChecksumAlgorithm is the hash family presigned uploads are pinned to
// (spec.md section 4.8 names "sha256" as the only one in use).
type ChecksumAlgorithm string

const ChecksumSHA256 ChecksumAlgorithm = "sha256"

// PresignedUpload is the POST policy a client uses to upload directly
// to S3.
type PresignedUpload struct {
	URL    string
	Fields map[string]string
}

// checksumFieldValue converts the hex-encoded checksum into the standard
// base64 form S3 expects in its x-amz-checksum-{algo} field (spec.md
// section 4.8: "base64(hex_decode(checksum))"). Standard, not URL-safe,
// alphabet: S3 validates this against the object's actual checksum, and
// the two alphabets diverge for roughly half of all digest byte patterns.
func checksumFieldValue(hexChecksum string) (string, error) {
	raw, err := hex.DecodeString(hexChecksum)
	if err != nil {
		return "", apperr.New(apperr.InvalidRequest, "checksum is not valid hex")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// GeneratePresignedUpload builds a presigned POST policy restricted to
// exactly size bytes and the given checksum, valid for validity
// (spec.md section 4.8).
func (s *Store) GeneratePresignedUpload(ctx context.Context, key string, algorithm ChecksumAlgorithm, checksum string, size int64, validity time.Duration) (PresignedUpload, error) {
	checksumValue, err := checksumFieldValue(checksum)
	if err != nil {
		return PresignedUpload{}, err
	}

	creds, err := s.credsCfg.Retrieve(ctx)
	if err != nil {
		return PresignedUpload{}, fmt.Errorf("sandbox: retrieving AWS credentials: %w", err)
	}

	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	shortDate := now.Format("20060102")
	credentialScope := fmt.Sprintf("%s/%s/s3/aws4_request", shortDate, s.region)
	credential := fmt.Sprintf("%s/%s", creds.AccessKeyID, credentialScope)
	checksumField := fmt.Sprintf("x-amz-checksum-%s", algorithm)

	fields := map[string]string{
		"key":                      key,
		"x-amz-checksum-algorithm": string(algorithm),
		checksumField:              checksumValue,
		"x-amz-algorithm":          "AWS4-HMAC-SHA256",
		"x-amz-credential":         credential,
		"x-amz-date":               amzDate,
	}
	if creds.SessionToken != "" {
		fields["x-amz-security-token"] = creds.SessionToken
	}

	policy := buildPostPolicy(now.Add(validity), s.bucket, fields, size)
	policyB64 := base64.StdEncoding.EncodeToString(policy)
	fields["policy"] = policyB64
	fields["x-amz-signature"] = hex.EncodeToString(signPostPolicy(creds.SecretAccessKey, shortDate, s.region, policyB64))

	return PresignedUpload{
		URL:    fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.bucket, s.region),
		Fields: fields,
	}, nil
}

func buildPostPolicy(expiration time.Time, bucket string, fields map[string]string, size int64) []byte {
	conds := fmt.Sprintf(`["eq","$bucket","%s"],["content-length-range",%d,%d]`, bucket, size, size)
	for k, v := range fields {
		conds += fmt.Sprintf(`,["eq","$%s","%s"]`, k, v)
	}
	doc := fmt.Sprintf(`{"expiration":"%s","conditions":[%s]}`, expiration.Format(time.RFC3339), conds)
	return []byte(doc)
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func signPostPolicy(secretKey, shortDate, region, policyB64 string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), []byte(shortDate))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte("s3"))
	kSigning := hmacSHA256(kService, []byte("aws4_request"))
	return hmacSHA256(kSigning, []byte(policyB64))
}

// GeneratePresignedDownload builds a presigned GET URL valid for
// validity.
func (s *Store) GeneratePresignedDownload(ctx context.Context, key string, validity time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(validity))
	if err != nil {
		return "", fmt.Errorf("sandbox: presigning download: %w", err)
	}
	return req.URL, nil
}

// DeleteObjects removes the given bucket-relative keys, used by
// cleanup after DB.Clean identifies stale, unassigned metadata rows.
func (s *Store) DeleteObjects(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("sandbox: deleting %s: %w", key, err)
		}
	}
	return nil
}
