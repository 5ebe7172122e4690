// Package idp wraps an external OpenID Connect identity provider for the
// browser leg of the device and authorization-code flows. Grounded on
// dex's connector/oidc/oidc.go (provider discovery, oauth2.Config,
// ID-token verification), narrowed to only what the Auth Core needs: turn
// an authorization response from the IdP into a verified ID token.
package idp

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Client talks to a single VO's configured IdP.
type Client struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth2   *oauth2.Config
}

// New opens a Client against issuer for the given client credentials and
// redirect URI, mirroring (*oidc.Config).Open in dex's connector/oidc.
func New(ctx context.Context, issuer, clientID, clientSecret, redirectURI string, scopes []string) (*Client, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("idp: discovering provider %s: %w", issuer, err)
	}

	allScopes := append([]string{oidc.ScopeOpenID}, scopes...)
	return &Client{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		oauth2: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint(),
			Scopes:       allScopes,
			RedirectURL:  redirectURI,
		},
	}, nil
}

// AuthCodeURL builds the URL the end user is redirected to in a browser.
func (c *Client) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	return c.oauth2.AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code returned by the IdP for tokens and
// verifies the embedded ID token, returning its raw claims as JSON-decodable
// bytes via IDToken.Claims.
func (c *Client) Exchange(ctx context.Context, code string) (*oidc.IDToken, error) {
	oauth2Token, err := c.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("idp: exchanging code: %w", err)
	}
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("idp: token response missing id_token")
	}
	return c.verifier.Verify(ctx, rawIDToken)
}
