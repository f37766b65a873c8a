// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/storepulse/storepulse/internal/logging"
)

// AcquireLock attempts to take the named lock for ttl. Mutual exclusion is
// the primary key on sync_locks: insert success means acquired, a duplicate
// key means another holder is live. Expired rows for the key are cleared
// first so a crashed holder cannot block forever.
func (db *DB) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM sync_locks WHERE lock_key = ? AND expires_at < ?`,
		lockKey, now); err != nil {
		return false, fmt.Errorf("sweep expired lock %s: %w", lockKey, err)
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sync_locks (lock_key, acquired_at, expires_at) VALUES (?, ?, ?)`,
		lockKey, now, now.Add(ttl))
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	return true, nil
}

// ReleaseLock deletes the named lock. Releasing a lock that is not held is a
// no-op.
func (db *DB) ReleaseLock(ctx context.Context, lockKey string) {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM sync_locks WHERE lock_key = ?`, lockKey); err != nil {
		// Release failures self-heal via TTL expiry; log and move on.
		logging.Warn().Err(err).Str("lock_key", lockKey).Msg("Failed to release sync lock")
	}
}

// SweepExpiredLocks deletes every lock past its TTL. Run periodically so
// stale rows from crashed holders do not linger between acquisitions.
func (db *DB) SweepExpiredLocks(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM sync_locks WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep expired locks: %w", err)
	}
	return nil
}
