package tokens

import (
	"encoding/json"
	"fmt"
	"time"

	jose "gopkg.in/square/go-jose.v2"

	"github.com/diracgrid/diracx-go/internal/apperr"
	"github.com/diracgrid/diracx-go/internal/keystore"
)

// Minter signs access and refresh tokens with the active key in a
// keystore.Store.
type Minter struct {
	store          *keystore.Store
	issuer         string
	audience       string
	accessTokenTTL time.Duration
}

func NewMinter(store *keystore.Store, issuer, audience string, accessTokenTTL time.Duration) *Minter {
	return &Minter{store: store, issuer: issuer, audience: audience, accessTokenTTL: accessTokenTTL}
}

func (m *Minter) sign(claims any) (string, error) {
	signer, err := m.store.Signer()
	if err != nil {
		return "", fmt.Errorf("tokens: building signer: %w", err)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("tokens: marshaling claims: %w", err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("tokens: signing: %w", err)
	}
	return jws.CompactSerialize()
}

// MintAccessToken signs an AccessClaims whose jti, iss, aud, exp and iat
// are populated here; callers supply the rest.
func (m *Minter) MintAccessToken(claims AccessClaims, jti string, now time.Time) (string, AccessClaims, error) {
	claims.JTI = jti
	claims.Issuer = m.issuer
	claims.Audience = m.audience
	claims.IssuedAt = now.Unix()
	claims.Expiry = now.Add(m.accessTokenTTL).Unix()

	jws, err := m.sign(claims)
	if err != nil {
		return "", AccessClaims{}, err
	}
	return jws, claims, nil
}

// MintRefreshToken signs a RefreshClaims carrying jti for replay detection
// (spec.md section 4.3). Refresh tokens do not expire via exp in practice
// since validity is governed by the Auth DB record status, but a long exp
// bound is still set as defense in depth.
func (m *Minter) MintRefreshToken(jti string, legacyExchange bool, now time.Time, ttl time.Duration) (string, error) {
	claims := RefreshClaims{
		JTI:            jti,
		Issuer:         m.issuer,
		IssuedAt:       now.Unix(),
		Expiry:         now.Add(ttl).Unix(),
		LegacyExchange: legacyExchange,
	}
	return m.sign(claims)
}

// Verifier checks signatures against a keystore.Store's current JWK set,
// supporting rotation (spec.md section 4.5): any key in the set may verify.
type Verifier struct {
	store  *keystore.Store
	issuer string
}

func NewVerifier(store *keystore.Store, issuer string) *Verifier {
	return &Verifier{store: store, issuer: issuer}
}

func (v *Verifier) verifySignature(raw string, out any) error {
	sig, err := jose.ParseSigned(raw)
	if err != nil {
		return apperr.Wrap(apperr.AuthenticationRequired, "malformed token", err)
	}
	var payload []byte
	var verified bool
	for _, key := range v.store.VerificationKeySet() {
		payload, err = sig.Verify(key)
		if err == nil {
			verified = true
			break
		}
	}
	if !verified {
		return apperr.New(apperr.AuthenticationRequired, "invalid token signature")
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return apperr.Wrap(apperr.AuthenticationRequired, "malformed token claims", err)
	}
	return nil
}

// VerifyAccessToken checks signature, issuer and expiry, returning the
// parsed claims. It also rejects a token without vo, and a non-pilot
// token without sub; a missing dirac_group is not a failure here, since
// it marks the principal as a pilot (spec.md section 4.5).
func (v *Verifier) VerifyAccessToken(raw string, now time.Time) (AccessClaims, error) {
	var claims AccessClaims
	if err := v.verifySignature(raw, &claims); err != nil {
		return AccessClaims{}, err
	}
	if claims.Issuer != v.issuer {
		return AccessClaims{}, apperr.New(apperr.AuthenticationRequired, "unexpected issuer")
	}
	if claims.Expiry < now.Unix() {
		return AccessClaims{}, apperr.New(apperr.AuthenticationRequired, "token expired")
	}
	if claims.VO == "" {
		return AccessClaims{}, apperr.New(apperr.AuthenticationRequired, "missing required claims")
	}
	if !claims.IsPilot() && claims.Subject == "" {
		return AccessClaims{}, apperr.New(apperr.AuthenticationRequired, "missing required claims")
	}
	return claims, nil
}

// VerifyRefreshToken checks signature, issuer and expiry only; the
// authoritative validity state lives in the Auth DB (spec.md section 4.3).
func (v *Verifier) VerifyRefreshToken(raw string, now time.Time) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := v.verifySignature(raw, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if claims.Issuer != v.issuer {
		return RefreshClaims{}, apperr.New(apperr.AuthenticationRequired, "unexpected issuer")
	}
	if claims.Expiry < now.Unix() {
		return RefreshClaims{}, apperr.New(apperr.AuthenticationRequired, "refresh token expired")
	}
	if claims.JTI == "" {
		return RefreshClaims{}, apperr.New(apperr.AuthenticationRequired, "missing jti")
	}
	return claims, nil
}
