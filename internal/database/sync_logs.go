// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/storepulse/storepulse/internal/models"
)

// InsertSyncLog appends a log entry and returns its generated id. StoreID is
// stored as NULL when empty so run-level entries are distinguishable.
func (db *DB) InsertSyncLog(ctx context.Context, entry *models.SyncLogEntry) (string, error) {
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}

	var storeID any
	if entry.StoreID != "" {
		storeID = entry.StoreID
	}
	var completedAt any
	var durationMS any
	if entry.CompletedAt != nil {
		completedAt = entry.CompletedAt.UTC()
		durationMS = entry.DurationMS
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sync_logs (id, store_id, job_name, status, message, error_details, duration_ms, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, storeID, entry.JobName, string(entry.Status), entry.Message, entry.ErrorDetails,
		durationMS, entry.StartedAt.UTC(), completedAt)
	if err != nil {
		return "", fmt.Errorf("insert sync log: %w", err)
	}
	return id, nil
}

// CompleteSyncLog transitions an entry to a terminal status, stamping
// completed_at and duration_ms.
func (db *DB) CompleteSyncLog(ctx context.Context, id string, status models.SyncStatus, message, errorDetails string, duration time.Duration) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE sync_logs SET status = ?, message = ?, error_details = ?, duration_ms = ?, completed_at = ?
		WHERE id = ?`,
		string(status), message, errorDetails, duration.Milliseconds(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("complete sync log %s: %w", id, err)
	}
	return nil
}

// ListSyncLogs returns recent entries ordered by started_at descending,
// optionally filtered to one store. Limit is clamped to [1, 500].
func (db *DB) ListSyncLogs(ctx context.Context, storeID string, limit int) ([]models.SyncLogEntry, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `SELECT id, store_id, job_name, status, message, error_details, duration_ms, started_at, completed_at
	FROM sync_logs`
	args := []any{}
	if storeID != "" {
		query += ` WHERE store_id = ?`
		args = append(args, storeID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	defer rows.Close()

	var entries []models.SyncLogEntry
	for rows.Next() {
		var e models.SyncLogEntry
		var status string
		var store, message, errDetails sql.NullString
		var durationMS sql.NullInt64
		var completedAt sql.NullTime

		if err := rows.Scan(&e.ID, &store, &e.JobName, &status, &message, &errDetails,
			&durationMS, &e.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan sync log: %w", err)
		}

		e.Status = models.SyncStatus(status)
		e.StoreID = store.String
		e.Message = message.String
		e.ErrorDetails = errDetails.String
		e.DurationMS = durationMS.Int64
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
