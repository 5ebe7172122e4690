package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/diracgrid/diracx-go/internal/config"
	"github.com/diracgrid/diracx-go/internal/tokens"
)

func accessClaimsFor(user resolvedUser) tokens.AccessClaims {
	return tokens.AccessClaims{
		Subject:           user.Subject,
		VO:                user.VO,
		PreferredUsername: user.PreferredUsername,
		DiracGroup:        user.Group,
		DiracProperties:   user.Properties,
	}
}

// mintBundle mints an access/refresh token pair for a resolved user
// principal and records the refresh token's lineage root in the Auth DB.
func (c *Core) mintBundle(ctx context.Context, user resolvedUser, scope string, legacyExchange bool) (TokenResponse, error) {
	refreshJTI := uuid.NewString()
	if err := c.authDB.InsertRefreshToken(ctx, refreshJTI, user.Subject, user.VO, user.Group, user.PreferredUsername, scope, legacyExchange); err != nil {
		return TokenResponse{}, fmt.Errorf("auth: recording refresh token: %w", err)
	}
	rawRefresh, err := c.minter.MintRefreshToken(refreshJTI, legacyExchange, c.now(), c.settings.RefreshTokenTTL)
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

// pilotProperties resolves the fixed set of properties every pilot token
// carries, per the pinned decision on PilotTokenProperties (spec.md
// section 9 open question): pinned by installation configuration, never
// derived from group membership since a pilot has no group.
func (c *Core) pilotProperties() []config.SecurityProperty {
	properties := make([]config.SecurityProperty, 0, len(c.settings.PilotTokenProperties))
	for _, p := range c.settings.PilotTokenProperties {
		properties = append(properties, config.SecurityProperty(p))
	}
	return properties
}

// MintPilotBundle mints an access/refresh token pair for a verified pilot
// identity (spec.md section 6's pilot-login/pilot-refresh-token pair).
// dirac_properties is always taken from PilotTokenProperties, never from a
// group lookup, and dirac_group is left empty, since a pilot has no group. The refresh
// lineage is recorded with an empty DiracGroup, the signal
// RefreshPilotAccessToken uses to recognize and rotate it.
func (c *Core) MintPilotBundle(ctx context.Context, pilotStamp, vo string) (TokenResponse, error) {
	refreshJTI := uuid.NewString()
	if err := c.authDB.InsertRefreshToken(ctx, refreshJTI, pilotStamp, vo, "", "", "", false); err != nil {
		return TokenResponse{}, fmt.Errorf("auth: recording pilot refresh token: %w", err)
	}
	rawRefresh, err := c.minter.MintRefreshToken(refreshJTI, false, c.now(), c.settings.RefreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	accessJTI := uuid.NewString()
	claims := tokens.AccessClaims{
		VO:              vo,
		PilotStamp:      pilotStamp,
		DiracProperties: c.pilotProperties(),
	}
	rawAccess, _, err := c.minter.MintAccessToken(claims, accessJTI, c.now())
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
