package authdb

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/diracgrid/diracx-go/internal/apperr"
	"github.com/diracgrid/diracx-go/internal/statemachine"
)

// DeviceFlowStatus is the status of a device flow record (spec.md section 3).
type DeviceFlowStatus string

const (
	DeviceStatusPending DeviceFlowStatus = "PENDING"
	DeviceStatusReady   DeviceFlowStatus = "READY"
	DeviceStatusDone    DeviceFlowStatus = "DONE"
	DeviceStatusError   DeviceFlowStatus = "ERROR"
)

var deviceMachine = statemachine.New(
	[]DeviceFlowStatus{DeviceStatusPending, DeviceStatusReady, DeviceStatusDone, DeviceStatusError},
	map[DeviceFlowStatus][]DeviceFlowStatus{
		DeviceStatusPending: {DeviceStatusReady, DeviceStatusError},
		DeviceStatusReady:   {DeviceStatusDone},
		DeviceStatusDone:    {},
		DeviceStatusError:   {},
	},
)

// DeviceFlow is a row of the device flow table.
type DeviceFlow struct {
	UserCode     string
	DeviceCode   string
	ClientID     string
	Scope        string
	Status       DeviceFlowStatus
	CreationTime time.Time
	IDToken      sql.NullString
}

const userCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const userCodeLength = 8
const deviceCodeLength = 128

// maxUserCodeCollisionRetries bounds the rejection-sampling retry loop for
// a fresh user_code, per spec.md section 4.1.
const maxUserCodeCollisionRetries = 5

func randomCode(alphabet string, n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("authdb: generating random code: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}

// InsertDeviceFlow creates a new PENDING device flow record, retrying on
// user_code primary-key collision up to maxUserCodeCollisionRetries times
// before failing deterministically (spec.md section 4.1).
func (d *DB) InsertDeviceFlow(ctx context.Context, clientID, scope string) (userCode, deviceCode string, err error) {
	deviceCode, err = randomCode(userCodeAlphabet+"abcdefghijklmnopqrstuvwxyz0123456789", deviceCodeLength)
	if err != nil {
		return "", "", err
	}

	for attempt := 0; attempt < maxUserCodeCollisionRetries; attempt++ {
		candidate, err := randomCode(userCodeAlphabet, userCodeLength)
		if err != nil {
			return "", "", err
		}

		txErr := d.execTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, d.rebind(`
				INSERT INTO device_flows (user_code, device_code, client_id, scope, status, creation_time)
				VALUES (?, ?, ?, ?, ?, ?)`),
				candidate, deviceCode, clientID, scope, string(DeviceStatusPending), d.now().UTC())
			return err
		})
		if txErr == nil {
			return candidate, deviceCode, nil
		}
		if !isUniqueViolation(txErr) {
			return "", "", fmt.Errorf("authdb: inserting device flow: %w", txErr)
		}
		// user_code collision: retry with a fresh candidate.
	}
	return "", "", apperr.New(apperr.Conflict, "could not allocate a unique user code, please retry")
}

// DeviceFlowValidateUserCode fails with NotFound if no record exists or it
// is older than maxValidity, and with AuthorizationError if it is not
// PENDING (spec.md section 4.1).
func (d *DB) DeviceFlowValidateUserCode(ctx context.Context, userCode string, maxValidity time.Duration) error {
	flow, err := d.getDeviceFlowByUserCode(ctx, userCode)
	if err != nil {
		return err
	}
	if d.now().Sub(flow.CreationTime) > maxValidity {
		return apperr.New(apperr.NotFound, "device flow expired")
	}
	if flow.Status != DeviceStatusPending {
		return apperr.Wrap(apperr.InvalidRequest, "device flow is not pending", apperr.ErrAuthorization)
	}
	return nil
}

// DeviceFlowInsertIDToken transitions PENDING->READY and stores idToken.
func (d *DB) DeviceFlowInsertIDToken(ctx context.Context, userCode, idToken string, maxValidity time.Duration) error {
	flow, err := d.getDeviceFlowByUserCode(ctx, userCode)
	if err != nil {
		return err
	}
	if flow.Status != DeviceStatusPending || d.now().Sub(flow.CreationTime) > maxValidity || flow.IDToken.Valid {
		return apperr.Wrap(apperr.InvalidRequest, "device flow cannot accept an id token", apperr.ErrAuthorization)
	}
	if !deviceMachine.CanTransition(flow.Status, DeviceStatusReady) {
		return apperr.Wrap(apperr.InvalidRequest, "invalid device flow transition", apperr.ErrAuthorization)
	}

	return d.execTx(ctx, func(tx *sql.Tx) error {
		ok, err := d.casUpdate(ctx, tx, `
			UPDATE device_flows SET status = ?, id_token = ? WHERE user_code = ? AND status = ?`,
			string(DeviceStatusReady), idToken, userCode, string(DeviceStatusPending))
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Wrap(apperr.InvalidRequest, "device flow changed concurrently", apperr.ErrAuthorization)
		}
		return nil
	})
}

// DevicePollResult is the sum type returned by PollDeviceFlow (spec.md
// section 9's guidance to model pending/expired as return values, not
// exceptions).
type DevicePollResult struct {
	Status  DeviceFlowStatus
	IDToken string
	// Won is true only for the single caller that performed the
	// READY->DONE transition; every other concurrent caller on an
	// already-READY flow observes Status == DeviceStatusDone with Won == false.
	Won bool
}

// PollDeviceFlow implements spec.md section 4.1's poll operation. The
// READY->DONE transition is a single CAS update; concurrent callers
// resolve with exactly one winner (spec.md section 8, invariant 2).
func (d *DB) PollDeviceFlow(ctx context.Context, deviceCode string, maxValidity time.Duration) (DevicePollResult, error) {
	flow, err := d.getDeviceFlowByDeviceCode(ctx, deviceCode)
	if err != nil {
		return DevicePollResult{}, err
	}

	switch flow.Status {
	case DeviceStatusPending:
		return DevicePollResult{Status: DeviceStatusPending}, apperr.ErrPendingAuthorization
	case DeviceStatusError:
		return DevicePollResult{Status: DeviceStatusError}, apperr.New(apperr.InvalidRequest, "access_denied")
	case DeviceStatusDone:
		return DevicePollResult{Status: DeviceStatusDone}, apperr.New(apperr.InvalidRequest, "access_denied")
	case DeviceStatusReady:
		if d.now().Sub(flow.CreationTime) > maxValidity {
			return DevicePollResult{}, apperr.ErrExpiredFlow
		}
	}

	var won bool
	err = d.execTx(ctx, func(tx *sql.Tx) error {
		ok, err := d.casUpdate(ctx, tx, `
			UPDATE device_flows SET status = ? WHERE device_code = ? AND status = ?`,
			string(DeviceStatusDone), deviceCode, string(DeviceStatusReady))
		if err != nil {
			return err
		}
		won = ok
		return nil
	})
	if err != nil {
		return DevicePollResult{}, err
	}
	if !won {
		// Another concurrent poll won the race.
		return DevicePollResult{Status: DeviceStatusDone}, apperr.New(apperr.InvalidRequest, "access_denied")
	}
	return DevicePollResult{Status: DeviceStatusDone, IDToken: flow.IDToken.String, Won: true}, nil
}

func (d *DB) getDeviceFlowByUserCode(ctx context.Context, userCode string) (DeviceFlow, error) {
	row := d.conn.QueryRowContext(ctx, d.rebind(`
		SELECT user_code, device_code, client_id, scope, status, creation_time, id_token
		FROM device_flows WHERE user_code = ?`), userCode)
	return scanDeviceFlow(row)
}

func (d *DB) getDeviceFlowByDeviceCode(ctx context.Context, deviceCode string) (DeviceFlow, error) {
	row := d.conn.QueryRowContext(ctx, d.rebind(`
		SELECT user_code, device_code, client_id, scope, status, creation_time, id_token
		FROM device_flows WHERE device_code = ?`), deviceCode)
	return scanDeviceFlow(row)
}

func scanDeviceFlow(row *sql.Row) (DeviceFlow, error) {
	var f DeviceFlow
	var status string
	if err := row.Scan(&f.UserCode, &f.DeviceCode, &f.ClientID, &f.Scope, &status, &f.CreationTime, &f.IDToken); err != nil {
		return DeviceFlow{}, translateNotFound(err)
	}
	f.Status = DeviceFlowStatus(status)
	return f, nil
}
