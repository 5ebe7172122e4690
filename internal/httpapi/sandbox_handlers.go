package httpapi

import (
	"net/http"

	"github.com/diracgrid/diracx-go/internal/apperr"
	"github.com/diracgrid/diracx-go/internal/auth"
	"github.com/diracgrid/diracx-go/internal/sandbox"
)

func identityFromUser(user auth.UserInfo) sandbox.Identity {
	return sandbox.Identity{VO: user.VO, Group: user.Group, User: user.PreferredUsername}
}

// initiateUploadRequest mirrors spec.md section 4.8's SandboxInfo.
type initiateUploadRequest struct {
	ChecksumAlgorithm string `json:"checksum_algorithm" validate:"required"`
	Checksum          string `json:"checksum" validate:"required"`
	Size              int64  `json:"size" validate:"required,gt=0"`
	Format            string `json:"format" validate:"required"`
}

func (s *server) handleInitiateUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, errMissingPrincipal())
		return
	}
	var req initiateUploadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	info := sandbox.Info{
		ChecksumAlgorithm: sandbox.ChecksumAlgorithm(req.ChecksumAlgorithm),
		Checksum:          req.Checksum,
		Size:              req.Size,
		Format:            req.Format,
	}
	resp, err := s.Sandbox.InitiateUpload(r.Context(), identityFromUser(user), info)
	sandboxUploads.WithLabelValues(outcomeOf(err)).Inc()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, errMissingPrincipal())
		return
	}
	pfn := r.URL.Query().Get("pfn")
	if pfn == "" {
		writeError(w, apperr.New(apperr.InvalidRequest, "pfn is required"))
		return
	}
	resp, err := s.Sandbox.Download(r.Context(), identityFromUser(user), pfn, s.Settings.SandboxDownloadTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
