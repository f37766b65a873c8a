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
	"strings"

	"github.com/google/uuid"

	"github.com/storepulse/storepulse/internal/models"
)

// videoBatchSize bounds the row count of a single multi-row upsert.
const videoBatchSize = 200

// UpsertUserDaily writes the account-level snapshot for one (store, date).
// Re-running within the same day replaces counts in place.
func (db *DB) UpsertUserDaily(ctx context.Context, snap *models.UserDailySnapshot) error {
	query := `INSERT INTO user_daily (
		id, store_id, open_id, snapshot_date, display_name, avatar_url,
		follower_count, following_count, likes_count, video_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (store_id, open_id, snapshot_date) DO UPDATE SET
		display_name = EXCLUDED.display_name,
		avatar_url = EXCLUDED.avatar_url,
		follower_count = EXCLUDED.follower_count,
		following_count = EXCLUDED.following_count,
		likes_count = EXCLUDED.likes_count,
		video_count = EXCLUDED.video_count`

	_, err := db.conn.ExecContext(ctx, query,
		uuid.NewString(), snap.StoreID, snap.OpenID, snap.SnapshotDate.UTC(),
		snap.DisplayName, snap.AvatarURL,
		snap.FollowerCount, snap.FollowingCount, snap.LikesCount, snap.VideoCount)
	if err != nil {
		return fmt.Errorf("upsert user daily %s: %w", snap.StoreID, err)
	}
	return nil
}

// UpsertVideoDaily writes one per-video snapshot row.
func (db *DB) UpsertVideoDaily(ctx context.Context, snap *models.VideoDailySnapshot) error {
	return db.UpsertVideoDailyBatch(ctx, []models.VideoDailySnapshot{*snap})
}

// UpsertVideoDailyBatch coalesces snapshots into multi-row upserts of at
// most videoBatchSize rows. Each row is self-keyed by (store, video, date)
// so ordering within a batch is irrelevant.
func (db *DB) UpsertVideoDailyBatch(ctx context.Context, snaps []models.VideoDailySnapshot) error {
	for start := 0; start < len(snaps); start += videoBatchSize {
		end := start + videoBatchSize
		if end > len(snaps) {
			end = len(snaps)
		}
		if err := db.upsertVideoChunk(ctx, snaps[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) upsertVideoChunk(ctx context.Context, snaps []models.VideoDailySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO video_daily (
		id, store_id, video_id, snapshot_date, description, cover_url, share_url,
		video_created_at, view_count, like_count, comment_count, share_count
	) VALUES `)

	args := make([]any, 0, len(snaps)*12)
	for i, snap := range snaps {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")

		var createdAt any
		if !snap.VideoCreatedAt.IsZero() {
			createdAt = snap.VideoCreatedAt.UTC()
		}
		args = append(args,
			uuid.NewString(), snap.StoreID, snap.VideoID, snap.SnapshotDate.UTC(),
			snap.Description, snap.CoverURL, snap.ShareURL, createdAt,
			snap.ViewCount, snap.LikeCount, snap.CommentCount, snap.ShareCount)
	}

	sb.WriteString(` ON CONFLICT (store_id, video_id, snapshot_date) DO UPDATE SET
		description = EXCLUDED.description,
		cover_url = EXCLUDED.cover_url,
		share_url = EXCLUDED.share_url,
		video_created_at = EXCLUDED.video_created_at,
		view_count = EXCLUDED.view_count,
		like_count = EXCLUDED.like_count,
		comment_count = EXCLUDED.comment_count,
		share_count = EXCLUDED.share_count`)

	if _, err := db.conn.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("upsert video daily batch (%d rows): %w", len(snaps), err)
	}
	return nil
}

// GetUserDaily loads the snapshot for one (store, date). Returns (nil, nil)
// when no row exists.
func (db *DB) GetUserDaily(ctx context.Context, storeID string, snapshotDate string) (*models.UserDailySnapshot, error) {
	query := `SELECT store_id, open_id, snapshot_date, display_name, avatar_url,
		follower_count, following_count, likes_count, video_count
	FROM user_daily WHERE store_id = ? AND snapshot_date = ?`

	var snap models.UserDailySnapshot
	err := db.conn.QueryRowContext(ctx, query, storeID, snapshotDate).Scan(
		&snap.StoreID, &snap.OpenID, &snap.SnapshotDate, &snap.DisplayName, &snap.AvatarURL,
		&snap.FollowerCount, &snap.FollowingCount, &snap.LikesCount, &snap.VideoCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user daily %s/%s: %w", storeID, snapshotDate, err)
	}
	return &snap, nil
}

// CountVideoDaily returns the row count for one (store, date) pair.
func (db *DB) CountVideoDaily(ctx context.Context, storeID string, snapshotDate string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM video_daily WHERE store_id = ? AND snapshot_date = ?`,
		storeID, snapshotDate).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count video daily %s/%s: %w", storeID, snapshotDate, err)
	}
	return n, nil
}
