// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package models defines the persistent and wire-level data structures shared
// across the storepulse core: connected store accounts, OAuth token results,
// platform statistics payloads, daily snapshots, and sync log entries.
package models

import "time"

// AccountStatus is the lifecycle state of a connected store account.
type AccountStatus string

const (
	// StatusConnected means the account holds usable tokens.
	StatusConnected AccountStatus = "CONNECTED"

	// StatusNeedReconnect means the refresh token was rejected by the
	// platform; only a fresh OAuth handshake can recover the account.
	StatusNeedReconnect AccountStatus = "NEED_RECONNECT"

	// StatusError means token material is unusable for a non-auth reason
	// (corrupt ciphertext, persistent refresh failure).
	StatusError AccountStatus = "ERROR"

	// StatusDisabled is set by admin action and is terminal for sync.
	StatusDisabled AccountStatus = "DISABLED"
)

// StoreAccount binds a store to a single connected platform account and its
// encrypted OAuth tokens. Token fields hold ciphertext produced by the vault;
// plaintext tokens never appear on this struct.
type StoreAccount struct {
	StoreID          string        `json:"store_id"`
	OpenID           string        `json:"open_id"`
	AccessTokenCT    string        `json:"-"`
	RefreshTokenCT   string        `json:"-"`
	AccessExpiresAt  time.Time     `json:"access_expires_at"`
	RefreshExpiresAt time.Time     `json:"refresh_expires_at"`
	Scope            string        `json:"scope"`
	Status           AccountStatus `json:"status"`
	LastSyncAt       *time.Time    `json:"last_sync_at,omitempty"`
	ConnectedAt      time.Time     `json:"connected_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// TokenResult is the plaintext outcome of an OAuth code exchange or refresh.
type TokenResult struct {
	AccessToken      string
	RefreshToken     string
	OpenID           string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Scope            string
}

// PendingState is a short-lived row binding an OAuth state parameter to the
// PKCE verifier generated for it. Rows are consumed destructively.
type PendingState struct {
	State        string
	CodeVerifier string
	StoreID      string
	ExpiresAt    time.Time
}

// UserStats is the account-level statistics payload from the platform API.
type UserStats struct {
	OpenID         string `json:"open_id"`
	DisplayName    string `json:"display_name"`
	AvatarURL      string `json:"avatar_url"`
	FollowerCount  int64  `json:"follower_count"`
	FollowingCount int64  `json:"following_count"`
	LikesCount     int64  `json:"likes_count"`
	VideoCount     int64  `json:"video_count"`
}

// VideoStats is the per-video statistics payload from the platform API.
type VideoStats struct {
	VideoID      string    `json:"id"`
	Description  string    `json:"video_description"`
	CoverURL     string    `json:"cover_image_url"`
	ShareURL     string    `json:"share_url"`
	CreatedAt    time.Time `json:"-"`
	ViewCount    int64     `json:"view_count"`
	LikeCount    int64     `json:"like_count"`
	CommentCount int64     `json:"comment_count"`
	ShareCount   int64     `json:"share_count"`
}

// UserDailySnapshot is one idempotent row per (store, date).
type UserDailySnapshot struct {
	StoreID        string    `json:"store_id"`
	OpenID         string    `json:"open_id"`
	SnapshotDate   time.Time `json:"snapshot_date"`
	DisplayName    string    `json:"display_name"`
	AvatarURL      string    `json:"avatar_url"`
	FollowerCount  int64     `json:"follower_count"`
	FollowingCount int64     `json:"following_count"`
	LikesCount     int64     `json:"likes_count"`
	VideoCount     int64     `json:"video_count"`
}

// VideoDailySnapshot is one idempotent row per (store, video, date).
type VideoDailySnapshot struct {
	StoreID        string    `json:"store_id"`
	VideoID        string    `json:"video_id"`
	SnapshotDate   time.Time `json:"snapshot_date"`
	Description    string    `json:"description"`
	CoverURL       string    `json:"cover_url"`
	ShareURL       string    `json:"share_url"`
	VideoCreatedAt time.Time `json:"video_created_at"`
	ViewCount      int64     `json:"view_count"`
	LikeCount      int64     `json:"like_count"`
	CommentCount   int64     `json:"comment_count"`
	ShareCount     int64     `json:"share_count"`
}

// SyncStatus is the terminal or in-flight status of a sync log entry.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "SUCCESS"
	SyncStatusFailed  SyncStatus = "FAILED"
	SyncStatusSkipped SyncStatus = "SKIPPED"
	SyncStatusRunning SyncStatus = "RUNNING"
)

// SyncLogEntry is an append-only trace row. StoreID is empty for run-level
// entries covering a whole job invocation.
type SyncLogEntry struct {
	ID           string     `json:"id"`
	StoreID      string     `json:"store_id,omitempty"`
	JobName      string     `json:"job_name"`
	Status       SyncStatus `json:"status"`
	Message      string     `json:"message,omitempty"`
	ErrorDetails string     `json:"error_details,omitempty"`
	DurationMS   int64      `json:"duration_ms,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
