package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

// RefreshAccessToken implements the token endpoint's refresh_token grant
// (spec.md section 4.3). Access token claims are re-derived from the live
// Config View rather than copied from the token being refreshed, so a
// group's properties or membership changed since the last mint take
// effect immediately (testable property 7).
//
// A refresh token presented after it has already been rotated away is
// treated as theft: the whole lineage sharing its (sub, preferred_username)
// identity is revoked, denying the legitimate holder too and forcing
// re-authentication (testable property 3).
func (c *Core) RefreshAccessToken(ctx context.Context, rawRefreshToken string) (TokenResponse, error) {
	claims, err := c.verifier.VerifyRefreshToken(rawRefreshToken, c.now())
	if err != nil {
		return TokenResponse{}, err
	}

	old, err := c.authDB.GetRefreshToken(ctx, claims.JTI)
	if err != nil {
		return TokenResponse{}, apperr.New(apperr.AuthenticationRequired, "invalid_grant")
	}

	newJTI := uuid.NewString()
	rotated, err := c.authDB.RotateRefreshToken(ctx, claims.JTI, newJTI)
	if err != nil {
		_, _ = c.authDB.ReplayRevokeLineage(ctx, old.Sub, old.PreferredUsername)
		return TokenResponse{}, apperr.New(apperr.AuthenticationRequired, "refresh token reuse detected, all sessions revoked")
	}

	reg, err := c.currentRegistry()
	if err != nil {
		return TokenResponse{}, err
	}
	user, err := resolveGroupMember(reg, rotated.VO, rotated.DiracGroup, rotated.Sub)
	if err != nil {
		// The membership backing this lineage no longer exists: revoke the
		// dangling token rather than leave it usable forever.
		_ = c.authDB.RevokeRefreshToken(ctx, rotated.JTI)
		return TokenResponse{}, err
	}

	rawRefresh, err := c.minter.MintRefreshToken(rotated.JTI, rotated.LegacyExchange, c.now(), c.settings.RefreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	accessJTI := uuid.NewString()
	rawAccess, _, err := c.minter.MintAccessToken(accessClaimsFor(user), accessJTI, c.now())
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
