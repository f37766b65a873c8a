// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storepulse/storepulse/internal/models"
)

// UpsertStoreAccount inserts or replaces the account row for a store.
// Used by the OAuth callback path; sets every column from acc.
func (db *DB) UpsertStoreAccount(ctx context.Context, acc *models.StoreAccount) error {
	query := `INSERT INTO store_accounts (
		store_id, open_id, access_token_ct, refresh_token_ct,
		access_expires_at, refresh_expires_at, scope, status,
		last_sync_at, connected_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (store_id) DO UPDATE SET
		open_id = EXCLUDED.open_id,
		access_token_ct = EXCLUDED.access_token_ct,
		refresh_token_ct = EXCLUDED.refresh_token_ct,
		access_expires_at = EXCLUDED.access_expires_at,
		refresh_expires_at = EXCLUDED.refresh_expires_at,
		scope = EXCLUDED.scope,
		status = EXCLUDED.status,
		updated_at = EXCLUDED.updated_at`

	var lastSync any
	if acc.LastSyncAt != nil {
		lastSync = acc.LastSyncAt.UTC()
	}

	_, err := db.conn.ExecContext(ctx, query,
		acc.StoreID, acc.OpenID, acc.AccessTokenCT, acc.RefreshTokenCT,
		acc.AccessExpiresAt.UTC(), acc.RefreshExpiresAt.UTC(), acc.Scope, string(acc.Status),
		lastSync, acc.ConnectedAt.UTC(), acc.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert store account %s: %w", acc.StoreID, err)
	}
	return nil
}

// GetStoreAccount loads the account for a store. Returns (nil, nil) when no
// row exists.
func (db *DB) GetStoreAccount(ctx context.Context, storeID string) (*models.StoreAccount, error) {
	query := `SELECT store_id, open_id, access_token_ct, refresh_token_ct,
		access_expires_at, refresh_expires_at, scope, status,
		last_sync_at, connected_at, updated_at
	FROM store_accounts WHERE store_id = ?`

	acc, err := scanStoreAccount(db.conn.QueryRowContext(ctx, query, storeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get store account %s: %w", storeID, err)
	}
	return acc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStoreAccount(row rowScanner) (*models.StoreAccount, error) {
	var acc models.StoreAccount
	var status string
	var lastSync sql.NullTime

	err := row.Scan(&acc.StoreID, &acc.OpenID, &acc.AccessTokenCT, &acc.RefreshTokenCT,
		&acc.AccessExpiresAt, &acc.RefreshExpiresAt, &acc.Scope, &status,
		&lastSync, &acc.ConnectedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}

	acc.Status = models.AccountStatus(status)
	if lastSync.Valid {
		t := lastSync.Time
		acc.LastSyncAt = &t
	}
	return &acc, nil
}

// ListAccountsByStatus returns accounts with the given status ordered by
// store_id for deterministic fan-out.
func (db *DB) ListAccountsByStatus(ctx context.Context, status models.AccountStatus) ([]models.StoreAccount, error) {
	query := `SELECT store_id, open_id, access_token_ct, refresh_token_ct,
		access_expires_at, refresh_expires_at, scope, status,
		last_sync_at, connected_at, updated_at
	FROM store_accounts WHERE status = ? ORDER BY store_id`

	rows, err := db.conn.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list accounts by status %s: %w", status, err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// ListAccountsExpiringBefore returns CONNECTED accounts whose access token
// expires before cutoff. Used by the token-refresh sweep.
func (db *DB) ListAccountsExpiringBefore(ctx context.Context, cutoff time.Time) ([]models.StoreAccount, error) {
	query := `SELECT store_id, open_id, access_token_ct, refresh_token_ct,
		access_expires_at, refresh_expires_at, scope, status,
		last_sync_at, connected_at, updated_at
	FROM store_accounts
	WHERE status = ? AND access_expires_at < ?
	ORDER BY store_id`

	rows, err := db.conn.QueryContext(ctx, query, string(models.StatusConnected), cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list accounts expiring before %v: %w", cutoff, err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

func collectAccounts(rows *sql.Rows) ([]models.StoreAccount, error) {
	var accounts []models.StoreAccount
	for rows.Next() {
		acc, err := scanStoreAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store account: %w", err)
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// UpdateAccountStatus transitions the account status.
func (db *DB) UpdateAccountStatus(ctx context.Context, storeID string, status models.AccountStatus) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE store_accounts SET status = ?, updated_at = ? WHERE store_id = ?`,
		string(status), time.Now().UTC(), storeID)
	if err != nil {
		return fmt.Errorf("update status for %s: %w", storeID, err)
	}
	return nil
}

// RotateAccountTokens replaces both ciphertexts and expiries in a single
// statement so no reader observes a half-rotated pair.
func (db *DB) RotateAccountTokens(ctx context.Context, storeID, accessCT, refreshCT string, accessExpiresAt, refreshExpiresAt time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE store_accounts SET
			access_token_ct = ?, refresh_token_ct = ?,
			access_expires_at = ?, refresh_expires_at = ?,
			updated_at = ?
		WHERE store_id = ?`,
		accessCT, refreshCT, accessExpiresAt.UTC(), refreshExpiresAt.UTC(),
		time.Now().UTC(), storeID)
	if err != nil {
		return fmt.Errorf("rotate tokens for %s: %w", storeID, err)
	}
	return nil
}

// UpdateLastSync stamps last_sync_at with the current time.
func (db *DB) UpdateLastSync(ctx context.Context, storeID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE store_accounts SET last_sync_at = ?, updated_at = ? WHERE store_id = ?`,
		time.Now().UTC(), time.Now().UTC(), storeID)
	if err != nil {
		return fmt.Errorf("update last sync for %s: %w", storeID, err)
	}
	return nil
}

// DeleteStoreAccount removes the account row. Admin action only.
func (db *DB) DeleteStoreAccount(ctx context.Context, storeID string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM store_accounts WHERE store_id = ?`, storeID)
	if err != nil {
		return fmt.Errorf("delete store account %s: %w", storeID, err)
	}
	return nil
}
