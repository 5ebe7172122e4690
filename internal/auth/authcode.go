package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

// StartAuthorizationFlow creates a new PENDING authorization-code flow
// keyed by a fresh flow id (spec.md section 4.2).
func (c *Core) StartAuthorizationFlow(ctx context.Context, clientID, scope, codeChallenge, codeChallengeMethod, redirectURI string) (string, error) {
	return c.authDB.InsertAuthorizationFlow(ctx, clientID, scope, codeChallenge, codeChallengeMethod, redirectURI)
}

// AuthorizationFlowAuthCodeURL builds the URL the browser is sent to for
// vo's IdP, state-bound to flowID so the callback can find its way back.
func (c *Core) AuthorizationFlowAuthCodeURL(ctx context.Context, flowID, vo string) (string, error) {
	return c.identity.AuthCodeURL(ctx, vo, flowID)
}

// CompleteAuthorizationFlow exchanges the IdP's code for a verified
// identity, resolves VO/group membership, and issues a fresh single-use
// authorization code bound to the resolved identity. The returned code
// and redirect_uri are what the HTTP layer redirects the browser back to
// the original client with. Minting is deferred to RedeemAuthorizationCode:
// minting here would hand out a live refresh token for a code the client
// might never redeem.
func (c *Core) CompleteAuthorizationFlow(ctx context.Context, flowID, vo, group, idpCode string) (code, redirectURI string, err error) {
	identity, err := c.identity.Exchange(ctx, vo, idpCode)
	if err != nil {
		return "", "", err
	}
	reg, err := c.currentRegistry()
	if err != nil {
		return "", "", err
	}
	user, err := resolveGroupMember(reg, vo, group, identity.Subject)
	if err != nil {
		return "", "", err
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return "", "", fmt.Errorf("auth: encoding resolved identity: %w", err)
	}
	return c.authDB.AuthorizationFlowInsertIDToken(ctx, flowID, string(raw), c.settings.AuthCodeFlowValidity)
}

// RedeemAuthorizationCode implements the token endpoint's
// authorization_code grant (spec.md section 4.2): PKCE verification and
// single-use redemption happen in internal/authdb; here we additionally
// enforce that the client's stated redirect_uri matches the one recorded
// at flow-initiation time, per RFC 6749 section 4.1.3, and mint the
// credential bundle for the resolved identity recorded at the browser
// callback step, once redemption wins its CAS.
func (c *Core) RedeemAuthorizationCode(ctx context.Context, code, codeVerifier, redirectURI string) (TokenResponse, error) {
	storedRedirectURI, rawIdentity, err := c.authDB.RedeemAuthorizationCode(ctx, code, codeVerifier, c.settings.AuthCodeFlowValidity)
	if err != nil {
		return TokenResponse{}, err
	}
	if storedRedirectURI != redirectURI {
		return TokenResponse{}, apperr.New(apperr.InvalidRequest, "invalid_grant")
	}
	var user resolvedUser
	if err := json.Unmarshal([]byte(rawIdentity), &user); err != nil {
		return TokenResponse{}, fmt.Errorf("auth: decoding resolved identity: %w", err)
	}
	return c.mintBundle(ctx, user, "", false)
}
