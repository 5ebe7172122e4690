package auth

import "github.com/diracgrid/diracx-go/internal/apperr"

func errConfigUnavailable() error {
	return apperr.New(apperr.Unavailable, "configuration not loaded")
}

func errInvalidVOOrGroup() error {
	return apperr.New(apperr.InvalidRequest, "unknown vo, group, or group membership")
}
