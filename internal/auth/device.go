package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diracgrid/diracx-go/internal/apperr"
)

// DeviceFlowStart is returned to the client that initiates a device flow
// (spec.md section 4.1).
type DeviceFlowStart struct {
	UserCode        string
	DeviceCode      string
	VerificationURI string
	ExpiresIn       int
	Interval        int
}

// StartDeviceFlow creates a new PENDING device flow.
func (c *Core) StartDeviceFlow(ctx context.Context, clientID, scope string) (DeviceFlowStart, error) {
	userCode, deviceCode, err := c.authDB.InsertDeviceFlow(ctx, clientID, scope)
	if err != nil {
		return DeviceFlowStart{}, err
	}
	return DeviceFlowStart{
		UserCode:        userCode,
		DeviceCode:      deviceCode,
		VerificationURI: c.settings.Issuer + "/device",
		ExpiresIn:       int(c.settings.DeviceFlowValidity.Seconds()),
		Interval:        c.settings.DevicePollInterval,
	}, nil
}

// DeviceFlowAuthCodeURL validates user_code is still pending and builds the
// URL the browser is sent to for the chosen VO's IdP.
func (c *Core) DeviceFlowAuthCodeURL(ctx context.Context, userCode, vo string) (string, error) {
	if err := c.authDB.DeviceFlowValidateUserCode(ctx, userCode, c.settings.DeviceFlowValidity); err != nil {
		return "", err
	}
	return c.identity.AuthCodeURL(ctx, vo, userCode)
}

// CompleteDeviceFlow finishes the browser leg: it exchanges the IdP's
// authorization code for a verified identity, resolves VO/group
// membership against the live Config View, and attaches the resolved
// identity to the PENDING flow (spec.md section 4.1). Token minting
// itself is deferred to PollDeviceFlow: minting here would hand out a
// live refresh token before the device ever claims it, and an
// unpolled flow would leak that token's lineage row forever (gc.go reaps
// expired flow rows but only REVOKED refresh_tokens rows, never CREATED ones).
func (c *Core) CompleteDeviceFlow(ctx context.Context, userCode, vo, group, idpCode string) error {
	identity, err := c.identity.Exchange(ctx, vo, idpCode)
	if err != nil {
		return err
	}
	reg, err := c.currentRegistry()
	if err != nil {
		return err
	}
	user, err := resolveGroupMember(reg, vo, group, identity.Subject)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("auth: encoding resolved identity: %w", err)
	}
	return c.authDB.DeviceFlowInsertIDToken(ctx, userCode, string(raw), c.settings.DeviceFlowValidity)
}

// PollDeviceFlow implements spec.md section 4.1's poll operation,
// returning apperr.ErrPendingAuthorization while the user hasn't
// completed the browser leg yet. The credential bundle is minted here,
// once, for whichever caller wins the READY->DONE transition, so a
// device that never polls never acquires a refresh token.
func (c *Core) PollDeviceFlow(ctx context.Context, deviceCode string) (TokenResponse, error) {
	result, err := c.authDB.PollDeviceFlow(ctx, deviceCode, c.settings.DeviceFlowValidity)
	if err != nil {
		return TokenResponse{}, err
	}
	if !result.Won {
		return TokenResponse{}, apperr.New(apperr.Conflict, "device flow already claimed")
	}
	var user resolvedUser
	if err := json.Unmarshal([]byte(result.IDToken), &user); err != nil {
		return TokenResponse{}, fmt.Errorf("auth: decoding resolved identity: %w", err)
	}
	return c.mintBundle(ctx, user, "", false)
}
