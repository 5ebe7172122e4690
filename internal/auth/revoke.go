package auth

import "context"

// Revoke implements spec.md section 6's POST /api/auth/revoke. Only
// refresh tokens are actually revocable state (access tokens are
// stateless JWTs valid until exp); per RFC 7009 an unrecognized or
// already-invalid token is not an error; revocation is idempotent.
func (c *Core) Revoke(ctx context.Context, rawToken string) error {
	claims, err := c.verifier.VerifyRefreshToken(rawToken, c.now())
	if err != nil {
		return nil
	}
	if err := c.authDB.RevokeRefreshToken(ctx, claims.JTI); err != nil {
		return nil
	}
	return nil
}
