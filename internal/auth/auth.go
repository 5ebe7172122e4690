// Package auth implements Auth Core: the orchestration layer tying
// internal/authdb's flow state machines to internal/tokens minting and
// internal/config's live VO/group registry. Grounded on dex's
// server/server.go handler methods (handleDeviceExchange,
// handleAuthCode, handleToken), generalized from dex's OIDC-only model to
// this spec's device/authcode/refresh/legacy flows (spec.md section 4).
package auth

import (
	"context"
	"time"

	"github.com/diracgrid/diracx-go/internal/authdb"
	"github.com/diracgrid/diracx-go/internal/config"
	"github.com/diracgrid/diracx-go/internal/idp"
	"github.com/diracgrid/diracx-go/internal/settings"
	"github.com/diracgrid/diracx-go/internal/tokens"
)

// IdentityResolver abstracts the external IdP leg of the device and
// authorization-code flows so Core can be tested without a live OpenID
// Connect provider. *idp.Registry is the production implementation.
type IdentityResolver interface {
	AuthCodeURL(ctx context.Context, vo, state string) (string, error)
	Exchange(ctx context.Context, vo, code string) (idp.Identity, error)
}

// Core is the Auth Core: the single place that understands how a flow
// record, a config snapshot and a signed token relate to each other.
type Core struct {
	authDB     *authdb.DB
	minter     *tokens.Minter
	verifier   *tokens.Verifier
	configView *config.View
	identity   IdentityResolver
	settings   *settings.Settings
	now        func() time.Time
}

func NewCore(authDB *authdb.DB, minter *tokens.Minter, verifier *tokens.Verifier, configView *config.View, identity IdentityResolver, s *settings.Settings) *Core {
	return &Core{
		authDB:     authDB,
		minter:     minter,
		verifier:   verifier,
		configView: configView,
		identity:   identity,
		settings:   s,
		now:        time.Now,
	}
}

// TokenResponse is the OAuth2 token response shape returned by every flow
// that mints credentials (spec.md section 4).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// resolvedUser is what mintBundle needs to build an access token for a
// user principal (as opposed to a pilot).
type resolvedUser struct {
	VO                string
	Group             string
	Subject           string
	PreferredUsername string
	Properties        []config.SecurityProperty
}

func (c *Core) currentRegistry() (config.Registry, error) {
	snapshot := c.configView.Current()
	if snapshot == nil {
		return nil, errConfigUnavailable()
	}
	return snapshot.Tree.Registry, nil
}

// resolveGroupMember looks up subject's group membership and properties
// from the live Config View, never trusting anything the caller (or a
// stale token) claims about them (spec.md section 4.5, testable property
// 7).
func resolveGroupMember(reg config.Registry, vo, group, subject string) (resolvedUser, error) {
	voConfig, ok := reg[vo]
	if !ok {
		return resolvedUser{}, errInvalidVOOrGroup()
	}
	g, ok := voConfig.Groups[group]
	if !ok {
		return resolvedUser{}, errInvalidVOOrGroup()
	}
	if _, member := g.Users[subject]; !member {
		return resolvedUser{}, errInvalidVOOrGroup()
	}
	user, ok := voConfig.Users[subject]
	if !ok {
		return resolvedUser{}, errInvalidVOOrGroup()
	}
	return resolvedUser{
		VO:                vo,
		Group:             group,
		Subject:           subject,
		PreferredUsername: user.PreferredUsername,
		Properties:        g.PropertySet(),
	}, nil
}
