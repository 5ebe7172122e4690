package auth

import (
	"github.com/diracgrid/diracx-go/internal/apperr"
	"github.com/diracgrid/diracx-go/internal/config"
	"github.com/diracgrid/diracx-go/internal/tokens"
)

// UserInfo is what access-policy checks and the /whoami-style endpoint
// need about the caller (spec.md section 4.5).
type UserInfo struct {
	Subject           string
	VO                string
	Group             string
	PreferredUsername string
	Email             string
	Properties        []config.SecurityProperty
}

// HasProperty reports whether the caller's live group membership carries p.
func (u UserInfo) HasProperty(p config.SecurityProperty) bool {
	for _, have := range u.Properties {
		if have == p {
			return true
		}
	}
	return false
}

// PilotInfo is what a verified pilot access token resolves to.
type PilotInfo struct {
	VO         string
	PilotStamp string
	Properties []config.SecurityProperty
}

// AuthorizedUserInfo re-derives a caller's group membership and
// properties from the live Config View rather than trusting the token's
// embedded dirac_group/dirac_properties claims, so that a revoked
// membership or a property change takes effect before the access token
// naturally expires (spec.md section 4.5, testable property 7). Pilot
// tokens are rejected here; use AuthorizedPilotInfo for those.
func (c *Core) AuthorizedUserInfo(claims tokens.AccessClaims) (UserInfo, error) {
	if claims.IsPilot() {
		return UserInfo{}, apperr.New(apperr.PermissionDenied, "pilot credentials cannot access user endpoints")
	}
	reg, err := c.currentRegistry()
	if err != nil {
		return UserInfo{}, err
	}
	user, err := resolveGroupMember(reg, claims.VO, claims.DiracGroup, claims.Subject)
	if err != nil {
		return UserInfo{}, apperr.New(apperr.PermissionDenied, "vo/group membership has been revoked")
	}
	voConfig := reg[claims.VO]
	email := voConfig.Users[claims.Subject].Email
	return UserInfo{
		Subject:           user.Subject,
		VO:                user.VO,
		Group:             user.Group,
		PreferredUsername: user.PreferredUsername,
		Email:             email,
		Properties:        user.Properties,
	}, nil
}

// AuthorizedPilotInfo returns the pilot identity carried by claims. Pilot
// properties are pinned by installation configuration
// (PilotTokenProperties), not re-derived per call, since a pilot has no
// group membership to look up.
func (c *Core) AuthorizedPilotInfo(claims tokens.AccessClaims) (PilotInfo, error) {
	if !claims.IsPilot() {
		return PilotInfo{}, apperr.New(apperr.PermissionDenied, "user credentials cannot access pilot endpoints")
	}
	return PilotInfo{VO: claims.VO, PilotStamp: claims.PilotStamp, Properties: claims.DiracProperties}, nil
}
