package authdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/diracgrid/diracx-go/internal/apperr"
	"github.com/diracgrid/diracx-go/internal/statemachine"
)

// RefreshTokenStatus is the status of a refresh_tokens row (spec.md
// section 4.3).
type RefreshTokenStatus string

const (
	RefreshStatusCreated RefreshTokenStatus = "CREATED"
	RefreshStatusRevoked RefreshTokenStatus = "REVOKED"
)

var refreshMachine = statemachine.New(
	[]RefreshTokenStatus{RefreshStatusCreated, RefreshStatusRevoked},
	map[RefreshTokenStatus][]RefreshTokenStatus{
		RefreshStatusCreated: {RefreshStatusRevoked},
		RefreshStatusRevoked: {},
	},
)

// RefreshToken is a row of the refresh_tokens table. Lineage is tracked
// implicitly by (Sub, PreferredUsername): every token minted for the same
// identity during a rotation chain shares those two fields, which is all
// ReplayRevokeLineage needs to fan out a revocation (spec.md section 4.3).
type RefreshToken struct {
	JTI               string
	Status            RefreshTokenStatus
	CreationTime      time.Time
	Scope             string
	Sub               string
	VO                string
	DiracGroup        string
	PreferredUsername string
	LegacyExchange    bool
}

// InsertRefreshToken records a freshly minted refresh token as CREATED.
func (d *DB) InsertRefreshToken(ctx context.Context, jti, sub, vo, diracGroup, preferredUsername, scope string, legacyExchange bool) error {
	err := d.execTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, d.rebind(`
			INSERT INTO refresh_tokens (jti, status, creation_time, scope, sub, vo, dirac_group, preferred_username, legacy_exchange)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			jti, string(RefreshStatusCreated), d.now().UTC(), scope, sub, vo, diracGroup, preferredUsername, legacyExchange)
		return err
	})
	if err != nil {
		return fmt.Errorf("authdb: inserting refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken looks up a refresh token by jti.
func (d *DB) GetRefreshToken(ctx context.Context, jti string) (RefreshToken, error) {
	row := d.conn.QueryRowContext(ctx, d.rebind(`
		SELECT jti, status, creation_time, scope, sub, vo, dirac_group, preferred_username, legacy_exchange
		FROM refresh_tokens WHERE jti = ?`), jti)
	return scanRefreshToken(row)
}

// RotateRefreshToken implements the rotation half of spec.md section 4.3:
// the presented token must be CREATED, it is atomically revoked, and a new
// CREATED token is inserted in its place sharing its lineage identity. If
// the presented token is not CREATED — already revoked, or unknown — this
// is a reuse of a dead token and the caller should treat it as a replay
// (see ReplayRevokeLineage).
func (d *DB) RotateRefreshToken(ctx context.Context, oldJTI, newJTI string) (RefreshToken, error) {
	old, err := d.GetRefreshToken(ctx, oldJTI)
	if err != nil {
		return RefreshToken{}, err
	}
	if old.Status != RefreshStatusCreated || !refreshMachine.CanTransition(old.Status, RefreshStatusRevoked) {
		return RefreshToken{}, apperr.ErrDBInBadState
	}

	var won bool
	err = d.execTx(ctx, func(tx *sql.Tx) error {
		ok, err := d.casUpdate(ctx, tx, `
			UPDATE refresh_tokens SET status = ? WHERE jti = ? AND status = ?`,
			string(RefreshStatusRevoked), oldJTI, string(RefreshStatusCreated))
		if err != nil {
			return err
		}
		won = ok
		if !ok {
			return nil
		}
		_, err = tx.ExecContext(ctx, d.rebind(`
			INSERT INTO refresh_tokens (jti, status, creation_time, scope, sub, vo, dirac_group, preferred_username, legacy_exchange)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			newJTI, string(RefreshStatusCreated), d.now().UTC(), old.Scope, old.Sub, old.VO, old.DiracGroup, old.PreferredUsername, old.LegacyExchange)
		return err
	})
	if err != nil {
		return RefreshToken{}, err
	}
	if !won {
		// Another concurrent rotation (or a revoke) won the race: this
		// presentation of oldJTI is itself a replay.
		return RefreshToken{}, apperr.ErrDBInBadState
	}
	return RefreshToken{
		JTI: newJTI, Status: RefreshStatusCreated, Scope: old.Scope,
		Sub: old.Sub, VO: old.VO, DiracGroup: old.DiracGroup,
		PreferredUsername: old.PreferredUsername, LegacyExchange: old.LegacyExchange,
	}, nil
}

// RevokeRefreshToken revokes a single token (logout), independent of
// lineage.
func (d *DB) RevokeRefreshToken(ctx context.Context, jti string) error {
	return d.execTx(ctx, func(tx *sql.Tx) error {
		_, err := d.casUpdate(ctx, tx, `
			UPDATE refresh_tokens SET status = ? WHERE jti = ? AND status = ?`,
			string(RefreshStatusRevoked), jti, string(RefreshStatusCreated))
		return err
	})
}

// ReplayRevokeLineage implements spec.md section 4.3's token-theft
// response: presenting an already-revoked (or unknown) refresh token
// revokes every still-live token sharing its (sub, preferred_username)
// lineage, forcing the legitimate holder to re-authenticate.
func (d *DB) ReplayRevokeLineage(ctx context.Context, sub, preferredUsername string) (int64, error) {
	var affected int64
	err := d.execTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, d.rebind(`
			UPDATE refresh_tokens SET status = ? WHERE sub = ? AND preferred_username = ? AND status = ?`),
			string(RefreshStatusRevoked), sub, preferredUsername, string(RefreshStatusCreated))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("authdb: revoking lineage: %w", err)
	}
	return affected, nil
}

func scanRefreshToken(row *sql.Row) (RefreshToken, error) {
	var t RefreshToken
	var status string
	if err := row.Scan(&t.JTI, &status, &t.CreationTime, &t.Scope, &t.Sub, &t.VO, &t.DiracGroup, &t.PreferredUsername, &t.LegacyExchange); err != nil {
		return RefreshToken{}, translateNotFound(err)
	}
	t.Status = RefreshTokenStatus(status)
	return t, nil
}
