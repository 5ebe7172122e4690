package authdb

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diracgrid/diracx-go/internal/apperr"
	"github.com/diracgrid/diracx-go/internal/statemachine"
)

// AuthCodeFlowStatus mirrors DeviceFlowStatus for the authorization-code
// flow (spec.md section 3).
type AuthCodeFlowStatus string

const (
	AuthCodeStatusPending AuthCodeFlowStatus = "PENDING"
	AuthCodeStatusReady   AuthCodeFlowStatus = "READY"
	AuthCodeStatusDone    AuthCodeFlowStatus = "DONE"
	AuthCodeStatusError   AuthCodeFlowStatus = "ERROR"
)

var authCodeMachine = statemachine.New(
	[]AuthCodeFlowStatus{AuthCodeStatusPending, AuthCodeStatusReady, AuthCodeStatusDone, AuthCodeStatusError},
	map[AuthCodeFlowStatus][]AuthCodeFlowStatus{
		AuthCodeStatusPending: {AuthCodeStatusReady, AuthCodeStatusError},
		AuthCodeStatusReady:   {AuthCodeStatusDone},
		AuthCodeStatusDone:    {},
		AuthCodeStatusError:   {},
	},
)

// AuthCodeFlow is a row of the authcode_flows table.
type AuthCodeFlow struct {
	UUID                string
	Code                sql.NullString
	ClientID            string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	RedirectURI         string
	Status              AuthCodeFlowStatus
	CreationTime        time.Time
	IDToken             sql.NullString
}

const codeLength = 128

// InsertAuthorizationFlow creates a PENDING record keyed by a fresh uuid.
// code_challenge_method must be S256 (spec.md section 4.2); callers are
// expected to have rejected anything else before calling this.
func (d *DB) InsertAuthorizationFlow(ctx context.Context, clientID, scope, codeChallenge, codeChallengeMethod, redirectURI string) (string, error) {
	if codeChallengeMethod != "S256" {
		return "", apperr.New(apperr.InvalidRequest, "code_challenge_method must be S256")
	}
	id := uuid.New().String()
	err := d.execTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, d.rebind(`
			INSERT INTO authcode_flows (uuid, client_id, scope, code_challenge, code_challenge_method, redirect_uri, status, creation_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			id, clientID, scope, codeChallenge, codeChallengeMethod, redirectURI, string(AuthCodeStatusPending), d.now().UTC())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("authdb: inserting authorization flow: %w", err)
	}
	return id, nil
}

// AuthorizationFlowInsertIDToken transitions PENDING->READY, assigns a
// fresh single-use code, and returns it with the stored redirect_uri.
// A second call on the same uuid always fails (spec.md section 4.2).
func (d *DB) AuthorizationFlowInsertIDToken(ctx context.Context, flowUUID, idToken string, maxValidity time.Duration) (code, redirectURI string, err error) {
	flow, err := d.getAuthCodeFlowByUUID(ctx, flowUUID)
	if err != nil {
		return "", "", err
	}
	if flow.Status != AuthCodeStatusPending || d.now().Sub(flow.CreationTime) > maxValidity {
		return "", "", apperr.Wrap(apperr.InvalidRequest, "authorization flow cannot accept an id token", apperr.ErrAuthorization)
	}
	if !authCodeMachine.CanTransition(flow.Status, AuthCodeStatusReady) {
		return "", "", apperr.Wrap(apperr.InvalidRequest, "invalid authorization flow transition", apperr.ErrAuthorization)
	}

	newCode, err := randomCode(userCodeAlphabet+"abcdefghijklmnopqrstuvwxyz0123456789", codeLength)
	if err != nil {
		return "", "", err
	}

	err = d.execTx(ctx, func(tx *sql.Tx) error {
		ok, err := d.casUpdate(ctx, tx, `
			UPDATE authcode_flows SET status = ?, code = ?, id_token = ? WHERE uuid = ? AND status = ?`,
			string(AuthCodeStatusReady), newCode, idToken, flowUUID, string(AuthCodeStatusPending))
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Wrap(apperr.InvalidRequest, "authorization flow changed concurrently", apperr.ErrAuthorization)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return newCode, flow.RedirectURI, nil
}

// GetAuthorizationFlow looks up a flow by its single-use code, failing
// with NotFound if the code is unknown or older than maxValidity.
func (d *DB) GetAuthorizationFlow(ctx context.Context, code string, maxValidity time.Duration) (AuthCodeFlow, error) {
	flow, err := d.getAuthCodeFlowByCode(ctx, code)
	if err != nil {
		return AuthCodeFlow{}, err
	}
	if d.now().Sub(flow.CreationTime) > maxValidity {
		return AuthCodeFlow{}, apperr.New(apperr.NotFound, "authorization code expired")
	}
	return flow, nil
}

// RedeemAuthorizationCode implements spec.md section 4.2's redeem
// operation: constant-time PKCE verification plus a single-use CAS
// transition READY->DONE.
func (d *DB) RedeemAuthorizationCode(ctx context.Context, code, codeVerifier string, maxValidity time.Duration) (redirectURI, idToken string, err error) {
	flow, err := d.getAuthCodeFlowByCode(ctx, code)
	if err != nil {
		return "", "", apperr.New(apperr.InvalidRequest, "invalid_grant")
	}
	if flow.Status != AuthCodeStatusReady || d.now().Sub(flow.CreationTime) > maxValidity {
		return "", "", apperr.New(apperr.InvalidRequest, "invalid_grant")
	}

	sum := sha256.Sum256([]byte(codeVerifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(computed), []byte(flow.CodeChallenge)) != 1 {
		return "", "", apperr.New(apperr.InvalidRequest, "invalid_grant")
	}

	var won bool
	err = d.execTx(ctx, func(tx *sql.Tx) error {
		ok, err := d.casUpdate(ctx, tx, `
			UPDATE authcode_flows SET status = ? WHERE code = ? AND status = ?`,
			string(AuthCodeStatusDone), code, string(AuthCodeStatusReady))
		if err != nil {
			return err
		}
		won = ok
		return nil
	})
	if err != nil {
		return "", "", err
	}
	if !won {
		return "", "", apperr.New(apperr.InvalidRequest, "invalid_grant")
	}
	return flow.RedirectURI, flow.IDToken.String, nil
}

func (d *DB) getAuthCodeFlowByUUID(ctx context.Context, id string) (AuthCodeFlow, error) {
	row := d.conn.QueryRowContext(ctx, d.rebind(`
		SELECT uuid, code, client_id, scope, code_challenge, code_challenge_method, redirect_uri, status, creation_time, id_token
		FROM authcode_flows WHERE uuid = ?`), id)
	return scanAuthCodeFlow(row)
}

func (d *DB) getAuthCodeFlowByCode(ctx context.Context, code string) (AuthCodeFlow, error) {
	row := d.conn.QueryRowContext(ctx, d.rebind(`
		SELECT uuid, code, client_id, scope, code_challenge, code_challenge_method, redirect_uri, status, creation_time, id_token
		FROM authcode_flows WHERE code = ?`), code)
	return scanAuthCodeFlow(row)
}

func scanAuthCodeFlow(row *sql.Row) (AuthCodeFlow, error) {
	var f AuthCodeFlow
	var status string
	if err := row.Scan(&f.UUID, &f.Code, &f.ClientID, &f.Scope, &f.CodeChallenge, &f.CodeChallengeMethod,
		&f.RedirectURI, &status, &f.CreationTime, &f.IDToken); err != nil {
		return AuthCodeFlow{}, translateNotFound(err)
	}
	f.Status = AuthCodeFlowStatus(status)
	return f, nil
}
