// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package database

import (
	"context"
	"fmt"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("execute query: %s: %w", query, err)
		}
	}
	return nil
}

func tableCreationQueries() []string {
	return []string{
		// One account per store; token columns hold vault ciphertext only.
		`CREATE TABLE IF NOT EXISTS store_accounts (
			store_id TEXT PRIMARY KEY,
			open_id TEXT NOT NULL,
			access_token_ct TEXT NOT NULL,
			refresh_token_ct TEXT NOT NULL,
			access_expires_at TIMESTAMP NOT NULL,
			refresh_expires_at TIMESTAMP NOT NULL,
			scope TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			last_sync_at TIMESTAMP,
			connected_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (store_id, open_id)
		)`,

		// Short-lived PKCE binding; rows are consumed destructively.
		`CREATE TABLE IF NOT EXISTS oauth_pending_state (
			state TEXT PRIMARY KEY,
			code_verifier TEXT NOT NULL,
			store_id TEXT NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,

		// Distributed TTL locks; the primary key is the mutual exclusion.
		`CREATE TABLE IF NOT EXISTS sync_locks (
			lock_key TEXT PRIMARY KEY,
			acquired_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS user_daily (
			id UUID PRIMARY KEY,
			store_id TEXT NOT NULL,
			open_id TEXT NOT NULL,
			snapshot_date DATE NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			follower_count BIGINT NOT NULL DEFAULT 0,
			following_count BIGINT NOT NULL DEFAULT 0,
			likes_count BIGINT NOT NULL DEFAULT 0,
			video_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (store_id, open_id, snapshot_date)
		)`,

		`CREATE TABLE IF NOT EXISTS video_daily (
			id UUID PRIMARY KEY,
			store_id TEXT NOT NULL,
			video_id TEXT NOT NULL,
			snapshot_date DATE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			cover_url TEXT NOT NULL DEFAULT '',
			share_url TEXT NOT NULL DEFAULT '',
			video_created_at TIMESTAMP,
			view_count BIGINT NOT NULL DEFAULT 0,
			like_count BIGINT NOT NULL DEFAULT 0,
			comment_count BIGINT NOT NULL DEFAULT 0,
			share_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (store_id, video_id, snapshot_date)
		)`,

		// Append-only; store_id is NULL for run-level entries.
		`CREATE TABLE IF NOT EXISTS sync_logs (
			id UUID PRIMARY KEY,
			store_id TEXT,
			job_name TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			error_details TEXT,
			duration_ms BIGINT,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
	}
}

func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_store_accounts_status ON store_accounts(status)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_state_expires ON oauth_pending_state(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_locks_expires ON sync_locks(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_user_daily_store_date ON user_daily(store_id, snapshot_date)`,
		`CREATE INDEX IF NOT EXISTS idx_video_daily_store_video_date ON video_daily(store_id, video_id, snapshot_date)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_store_job ON sync_logs(store_id, job_name)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_started ON sync_logs(started_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("execute query: %s: %w", query, err)
		}
	}
	return nil
}
