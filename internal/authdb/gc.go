package authdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// GCRetention configures how long rows survive past the point they stop
// being useful, mirroring dex's storage/sql/gc.go which sweeps expired
// auth requests and device requests on a timer.
type GCRetention struct {
	FlowMaxValidity  time.Duration
	RevokedRetention time.Duration
}

// GCResult reports how many rows each sweep removed, for logging/metrics.
type GCResult struct {
	DeviceFlows   int64
	AuthCodeFlows int64
	RefreshTokens int64
}

// RunGC deletes device/authcode flow rows older than FlowMaxValidity
// (they can no longer be polled or redeemed) and refresh_tokens rows that
// have been REVOKED for longer than RevokedRetention.
func (d *DB) RunGC(ctx context.Context, r GCRetention) (GCResult, error) {
	var result GCResult

	err := d.execTx(ctx, func(tx *sql.Tx) error {
		cutoff := d.now().UTC().Add(-r.FlowMaxValidity)

		res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM device_flows WHERE creation_time < ?`), cutoff)
		if err != nil {
			return fmt.Errorf("gc device_flows: %w", err)
		}
		result.DeviceFlows, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, d.rebind(`DELETE FROM authcode_flows WHERE creation_time < ?`), cutoff)
		if err != nil {
			return fmt.Errorf("gc authcode_flows: %w", err)
		}
		result.AuthCodeFlows, _ = res.RowsAffected()

		revokedCutoff := d.now().UTC().Add(-r.RevokedRetention)
		res, err = tx.ExecContext(ctx, d.rebind(`DELETE FROM refresh_tokens WHERE status = ? AND creation_time < ?`),
			string(RefreshStatusRevoked), revokedCutoff)
		if err != nil {
			return fmt.Errorf("gc refresh_tokens: %w", err)
		}
		result.RefreshTokens, _ = res.RowsAffected()

		return nil
	})
	if err != nil {
		return GCResult{}, err
	}
	return result, nil
}

// RunGCLoop runs RunGC on a fixed interval until ctx is cancelled,
// matching the shape of dex's storage/sql garbage collector goroutine.
func (d *DB) RunGCLoop(ctx context.Context, interval time.Duration, r GCRetention, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := d.RunGC(ctx, r)
			if err != nil {
				log.WithError(err).Error("authdb: garbage collection failed")
				continue
			}
			log.WithFields(logrus.Fields{
				"device_flows":   result.DeviceFlows,
				"authcode_flows": result.AuthCodeFlows,
				"refresh_tokens": result.RefreshTokens,
			}).Debug("authdb: garbage collection swept expired rows")
		}
	}
}
