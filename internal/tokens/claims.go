// Package tokens mints and verifies the access and refresh JWTs described
// in spec.md sections 3 and 4.5, using the active key in an
// internal/keystore.Store. Grounded on dex's use of gopkg.in/square/go-jose.v2
// for ID tokens (connector/oidc, server/server.go).
package tokens

import "github.com/diracgrid/diracx-go/internal/config"

// AccessClaims is the payload of a minted access token (spec.md section 3).
// Pilot tokens set PilotStamp and omit DiracGroup/DiracProperties.
type AccessClaims struct {
	Subject            string                   `json:"sub"`
	VO                 string                   `json:"vo"`
	Issuer             string                   `json:"iss"`
	Audience           string                   `json:"aud"`
	JTI                string                   `json:"jti"`
	Expiry             int64                    `json:"exp"`
	IssuedAt           int64                    `json:"iat"`
	PreferredUsername  string                   `json:"preferred_username,omitempty"`
	DiracGroup         string                   `json:"dirac_group,omitempty"`
	DiracProperties    []config.SecurityProperty `json:"dirac_properties,omitempty"`
	PilotStamp         string                   `json:"pilot_stamp,omitempty"`
}

// IsPilot reports whether the claims identify a pilot rather than a user:
// missing dirac_group marks the principal as a pilot (spec.md section 4.5).
func (c AccessClaims) IsPilot() bool {
	return c.DiracGroup == ""
}

// RefreshClaims is the payload of a refresh token JWT.
type RefreshClaims struct {
	JTI            string `json:"jti"`
	Subject        string `json:"sub"`
	Issuer         string `json:"iss"`
	Expiry         int64  `json:"exp"`
	IssuedAt       int64  `json:"iat"`
	LegacyExchange bool   `json:"legacy_exchange"`
}
