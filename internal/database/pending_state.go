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

// ErrPendingStateNotFound indicates the state row is absent: never created,
// already consumed, or swept after expiry.
var ErrPendingStateNotFound = errors.New("pending state not found")

// InsertPendingState persists a PKCE binding. Must be called before the
// authorization URL is handed out.
func (db *DB) InsertPendingState(ctx context.Context, ps *models.PendingState) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO oauth_pending_state (state, code_verifier, store_id, expires_at)
		VALUES (?, ?, ?, ?)`,
		ps.State, ps.CodeVerifier, ps.StoreID, ps.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("insert pending state: %w", err)
	}
	return nil
}

// ConsumePendingState atomically loads and deletes the row for state inside
// one transaction, enforcing one-shot semantics: a second consume of the same
// state returns ErrPendingStateNotFound. Expired rows are swept first.
func (db *DB) ConsumePendingState(ctx context.Context, state string) (*models.PendingState, error) {
	if err := db.SweepExpiredStates(ctx); err != nil {
		return nil, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consume tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ps models.PendingState
	err = tx.QueryRowContext(ctx,
		`SELECT state, code_verifier, store_id, expires_at
		FROM oauth_pending_state WHERE state = ?`, state).
		Scan(&ps.State, &ps.CodeVerifier, &ps.StoreID, &ps.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPendingStateNotFound
		}
		return nil, fmt.Errorf("load pending state: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM oauth_pending_state WHERE state = ?`, state); err != nil {
		return nil, fmt.Errorf("delete pending state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume tx: %w", err)
	}
	return &ps, nil
}

// SweepExpiredStates deletes rows past their TTL.
func (db *DB) SweepExpiredStates(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM oauth_pending_state WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep expired states: %w", err)
	}
	return nil
}
