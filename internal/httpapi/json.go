package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

// validate is a package-level, concurrency-safe validator instance,
// grounded on wisbric-nightowl/internal/httpserver/validate.go's use of
// go-playground/validator for request-body checks.
var validate = validator.New(validator.WithRequiredStructEnabled())

const maxBodyBytes = 1 << 20 // 1 MiB

// decodeJSON reads and struct-tag-validates a JSON request body into dst,
// writing a stable {detail} InvalidRequest response and returning false on
// any failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeError(w, apperr.New(apperr.InvalidRequest, "request body too large"))
		case errors.Is(err, io.EOF):
			writeError(w, apperr.New(apperr.InvalidRequest, "request body is empty"))
		default:
			writeError(w, apperr.New(apperr.InvalidRequest, fmt.Sprintf("invalid JSON: %v", err)))
		}
		return false
	}

	var verr validator.ValidationErrors
	if err := validate.Struct(dst); err != nil {
		if errors.As(err, &verr) {
			writeError(w, apperr.New(apperr.InvalidRequest, fmt.Sprintf("%s: validation failed", verr[0].Namespace())))
		} else {
			writeError(w, apperr.New(apperr.InvalidRequest, err.Error()))
		}
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// detailResponse is spec.md section 7's stable error shape: {detail: string}.
type detailResponse struct {
	Detail string `json:"detail"`
}

// translateSentinel maps the bare internal sentinel errors (spec.md section
// 7's "Internal:" kinds) to a Kind when they escape a package without
// already being wrapped in an *apperr.Error. Packages that can recover from
// the sentinel (e.g. auth.Core revoking a lineage on replay) wrap it
// themselves before it reaches here; this is the fallback for the rest.
func translateSentinel(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, apperr.ErrPendingAuthorization):
		return apperr.New(apperr.InvalidRequest, "authorization_pending")
	case errors.Is(err, apperr.ErrExpiredFlow):
		return apperr.New(apperr.InvalidRequest, "expired_token")
	case errors.Is(err, apperr.ErrSandboxNotFound):
		return apperr.New(apperr.NotFound, "sandbox not found")
	case errors.Is(err, apperr.ErrInvalidQuery):
		return apperr.New(apperr.InvalidRequest, "invalid query")
	case errors.Is(err, apperr.ErrDBInBadState):
		return apperr.New(apperr.Internal, "internal server error")
	case errors.Is(err, apperr.ErrAuthorization):
		return apperr.New(apperr.AuthenticationRequired, "invalid credentials")
	default:
		return err
	}
}

// writeError translates a domain error into the stable JSON error boundary.
// Unknown (non-apperr) errors surface as 500 with no detail leakage, per
// spec.md section 7.
func writeError(w http.ResponseWriter, err error) {
	err = translateSentinel(err)
	status := apperr.Status(err)
	detail := apperr.Detail(err)
	if status == http.StatusInternalServerError {
		detail = "internal server error"
	}
	writeJSON(w, status, detailResponse{Detail: detail})
}
