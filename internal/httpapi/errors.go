package httpapi

import (
	"fmt"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

func errConfigUnavailableHTTP() error {
	return apperr.New(apperr.Unavailable, "configuration not loaded")
}

func invalidSearchOperator(op string) error {
	return apperr.Wrap(apperr.InvalidRequest, fmt.Sprintf("unknown search operator %q", op), apperr.ErrInvalidQuery)
}
