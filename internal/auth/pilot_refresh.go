package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/diracgrid/diracx-go/internal/apperr"
	"github.com/diracgrid/diracx-go/internal/tokens"
)

// RefreshPilotAccessToken is RefreshAccessToken's pilot counterpart
// (spec.md section 6's pilot-refresh-token: "same rotation rules as user
// refresh"). It shares the replay-detection and compare-and-set rotation
// semantics but mints pilot claims directly instead of re-deriving group
// membership, since a pilot lineage (recorded with an empty DiracGroup by
// MintPilotBundle) has none.
func (c *Core) RefreshPilotAccessToken(ctx context.Context, rawRefreshToken string) (TokenResponse, error) {
	claims, err := c.verifier.VerifyRefreshToken(rawRefreshToken, c.now())
	if err != nil {
		return TokenResponse{}, err
	}

	old, err := c.authDB.GetRefreshToken(ctx, claims.JTI)
	if err != nil {
		return TokenResponse{}, apperr.New(apperr.AuthenticationRequired, "invalid_grant")
	}
	if old.DiracGroup != "" {
		return TokenResponse{}, apperr.New(apperr.PermissionDenied, "not a pilot refresh token")
	}

	newJTI := uuid.NewString()
	rotated, err := c.authDB.RotateRefreshToken(ctx, claims.JTI, newJTI)
	if err != nil {
		_, _ = c.authDB.ReplayRevokeLineage(ctx, old.Sub, old.PreferredUsername)
		return TokenResponse{}, apperr.New(apperr.AuthenticationRequired, "refresh token reuse detected, all sessions revoked")
	}

	rawRefresh, err := c.minter.MintRefreshToken(rotated.JTI, rotated.LegacyExchange, c.now(), c.settings.RefreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	accessJTI := uuid.NewString()
	rawAccess, _, err := c.minter.MintAccessToken(tokens.AccessClaims{
		VO:              rotated.VO,
		PilotStamp:      rotated.Sub,
		DiracProperties: c.pilotProperties(),
	}, accessJTI, c.now())
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  rawAccess,
		RefreshToken: rawRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(c.settings.AccessTokenTTL.Seconds()),
	}, nil
}
