package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

// CanonicalPath builds the bucket-relative object key spec.md section
// 4.8 calls the canonical PFN, grounded on
// original_source/diracx-db/src/diracx/db/sql/sandbox_metadata/db.py's
// get_pfn: "/S3/{bucket}/{vo}/{group}/{user}/{checksumAlgorithm}:{checksum}.{format}".
func CanonicalPath(bucket, vo, group, user, checksumAlgorithm, checksum, format string) string {
	return fmt.Sprintf("/S3/%s/%s/%s/%s/%s:%s.%s", bucket, vo, group, user, checksumAlgorithm, checksum, format)
}

// FullPFN prefixes a canonical path with the owning storage element,
// grounded on the "SB:SandboxSE|/S3/..." shape asserted in
// original_source/diracx-routers/tests/jobs/test_sandboxes.py.
func FullPFN(storageElement, canonicalPath string) string {
	return fmt.Sprintf("SB:%s|%s", storageElement, canonicalPath)
}

var pfnOwnerPattern = regexp.MustCompile(`^SB:[^|]+\|/S3/[^/]+/([^/]+)/([^/]+)/([^/]+)/`)

// ValidateOwnership rejects a PFN whose vo/group/user segments don't
// match the caller, per spec.md section 4.8: "Rejects PFNs that do not
// match the caller's vo/group/user prefix with 400 Invalid PFN."
func ValidateOwnership(pfn, vo, group, user string) error {
	m := pfnOwnerPattern.FindStringSubmatch(pfn)
	if m == nil || m[1] != vo || m[2] != group || m[3] != user {
		return apperr.New(apperr.InvalidRequest, fmt.Sprintf("invalid PFN. PFN must start with SB:<SE>|/S3/<bucket>/%s/%s/%s/", vo, group, user))
	}
	return nil
}

// objectKey strips the "SB:<SE>|" prefix from a full PFN, returning the
// bucket-relative key to address directly in S3.
func objectKey(pfn string) (string, error) {
	idx := strings.IndexByte(pfn, '|')
	if idx < 0 {
		return "", apperr.New(apperr.InvalidRequest, "invalid PFN")
	}
	return pfn[idx+1:], nil
}
