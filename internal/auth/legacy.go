package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

// LegacyExchange implements spec.md section 4.4's bridge for pre-existing
// DIRAC clients that only hold a VO/group/preferred_username triple and a
// shared installation API key, not an OIDC session. It is disabled
// (Unavailable) unless a LegacyExchangeHashedAPIKey is configured, and
// accepts credentials only via constant-time comparison of their SHA-256
// digest against that configured hash, never the raw key.
func (c *Core) LegacyExchange(ctx context.Context, apiKey, vo, group, preferredUsername string) (TokenResponse, error) {
	if c.settings.LegacyExchangeHashedAPIKey == "" {
		return TokenResponse{}, apperr.New(apperr.Unavailable, "legacy exchange is not enabled on this installation")
	}
	sum := sha256.Sum256([]byte(apiKey))
	hashed := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(hashed), []byte(c.settings.LegacyExchangeHashedAPIKey)) != 1 {
		return TokenResponse{}, apperr.New(apperr.AuthenticationRequired, "invalid legacy exchange credentials")
	}

	reg, err := c.currentRegistry()
	if err != nil {
		return TokenResponse{}, err
	}
	voConfig, ok := reg[vo]
	if !ok {
		return TokenResponse{}, errInvalidVOOrGroup()
	}
	subject, _, ok := voConfig.ResolveUser(group, preferredUsername)
	if !ok {
		return TokenResponse{}, apperr.New(apperr.InvalidRequest, "preferred_username does not resolve to exactly one user in this vo/group")
	}

	user, err := resolveGroupMember(reg, vo, group, subject)
	if err != nil {
		return TokenResponse{}, err
	}
	return c.mintBundle(ctx, user, "", true)
}
