// Package apperr defines the error taxonomy shared by every subsystem and
// how it is surfaced at the HTTP boundary. Grounded on dex's
// server/error.go apiError/writeAPIError pattern, generalized to the kinds
// named in spec.md section 7.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is one of the stable error categories of the system.
type Kind string

const (
	InvalidRequest        Kind = "InvalidRequest"
	AuthenticationRequired Kind = "AuthenticationRequired"
	PermissionDenied      Kind = "PermissionDenied"
	NotFound              Kind = "NotFound"
	Conflict              Kind = "Conflict"
	UpgradeRequired       Kind = "UpgradeRequired"
	Unavailable           Kind = "Unavailable"
	Internal              Kind = "Internal"
)

var statusByKind = map[Kind]int{
	InvalidRequest:         http.StatusBadRequest,
	AuthenticationRequired: http.StatusUnauthorized,
	PermissionDenied:       http.StatusForbidden,
	NotFound:               http.StatusNotFound,
	Conflict:               http.StatusConflict,
	UpgradeRequired:        http.StatusUpgradeRequired,
	Unavailable:            http.StatusServiceUnavailable,
	Internal:               http.StatusInternalServerError,
}

// Error is a domain error carrying a stable Kind and a caller-facing
// detail message. Unknown errors are never wrapped in Error and must
// surface as 500 with no detail leakage.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a caller-facing detail.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap attaches a Kind/detail to an underlying cause, preserving it for
// logging via errors.Unwrap while keeping the detail stable for clients.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, cause: cause}
}

// Status returns the HTTP status code for err, defaulting to 500 for any
// error that isn't an *Error.
func Status(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		if code, ok := statusByKind[ae.Kind]; ok {
			return code
		}
	}
	return http.StatusInternalServerError
}

// Detail returns the caller-facing message for err. Unknown errors return
// an empty string so the HTTP boundary never leaks internals.
func Detail(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Detail
	}
	return ""
}

// Internal-only sentinel errors used by the auth flow state machines; these
// are translated to Kind at the HTTP boundary by internal/httpapi and also
// inspected internally (e.g. replay detection short-circuits).
var (
	ErrAuthorization         = errors.New("authorization error")
	ErrPendingAuthorization  = errors.New("authorization pending")
	ErrExpiredFlow           = errors.New("flow expired")
	ErrSandboxNotFound       = errors.New("sandbox not found")
	ErrInvalidQuery          = errors.New("invalid query")
	ErrDBInBadState          = errors.New("database in unexpected state")
)
