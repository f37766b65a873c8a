// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/storepulse/storepulse/internal/config"
	"github.com/storepulse/storepulse/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(&config.DatabaseConfig{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		PoolSize: 10,
		PoolMin:  2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return db
}

func testAccount(storeID string) *models.StoreAccount {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.StoreAccount{
		StoreID:          storeID,
		OpenID:           "open-" + storeID,
		AccessTokenCT:    "ct-access",
		RefreshTokenCT:   "ct-refresh",
		AccessExpiresAt:  now.Add(24 * time.Hour),
		RefreshExpiresAt: now.Add(30 * 24 * time.Hour),
		Scope:            "user.info.basic,video.list",
		Status:           models.StatusConnected,
		ConnectedAt:      now,
		UpdatedAt:        now,
	}
}

func TestStoreAccountUpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertStoreAccount(ctx, testAccount("store_A")); err != nil {
		t.Fatalf("UpsertStoreAccount: %v", err)
	}

	acc, err := db.GetStoreAccount(ctx, "store_A")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc == nil {
		t.Fatal("account not found after upsert")
	}
	if acc.OpenID != "open-store_A" || acc.Status != models.StatusConnected {
		t.Errorf("unexpected account: %+v", acc)
	}

	// Second upsert replaces fields instead of inserting a duplicate.
	updated := testAccount("store_A")
	updated.AccessTokenCT = "ct-access-2"
	if err := db.UpsertStoreAccount(ctx, updated); err != nil {
		t.Fatalf("second UpsertStoreAccount: %v", err)
	}
	acc, err = db.GetStoreAccount(ctx, "store_A")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc.AccessTokenCT != "ct-access-2" {
		t.Errorf("AccessTokenCT = %q, want ct-access-2", acc.AccessTokenCT)
	}
}

func TestGetStoreAccountAbsent(t *testing.T) {
	db := newTestDB(t)

	acc, err := db.GetStoreAccount(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc != nil {
		t.Errorf("got %+v, want nil for absent store", acc)
	}
}

func TestListAccountsByStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		if err := db.UpsertStoreAccount(ctx, testAccount(id)); err != nil {
			t.Fatalf("UpsertStoreAccount(%s): %v", id, err)
		}
	}
	if err := db.UpdateAccountStatus(ctx, "s2", models.StatusNeedReconnect); err != nil {
		t.Fatalf("UpdateAccountStatus: %v", err)
	}

	connected, err := db.ListAccountsByStatus(ctx, models.StatusConnected)
	if err != nil {
		t.Fatalf("ListAccountsByStatus: %v", err)
	}
	if len(connected) != 2 {
		t.Fatalf("connected = %d, want 2", len(connected))
	}
	if connected[0].StoreID != "s1" || connected[1].StoreID != "s3" {
		t.Errorf("unexpected ordering: %s, %s", connected[0].StoreID, connected[1].StoreID)
	}
}

func TestListAccountsExpiringBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	soon := testAccount("expiring")
	soon.AccessExpiresAt = time.Now().UTC().Add(time.Hour)
	later := testAccount("fresh")
	later.AccessExpiresAt = time.Now().UTC().Add(48 * time.Hour)

	for _, acc := range []*models.StoreAccount{soon, later} {
		if err := db.UpsertStoreAccount(ctx, acc); err != nil {
			t.Fatalf("UpsertStoreAccount: %v", err)
		}
	}

	due, err := db.ListAccountsExpiringBefore(ctx, time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListAccountsExpiringBefore: %v", err)
	}
	if len(due) != 1 || due[0].StoreID != "expiring" {
		t.Errorf("due = %+v, want only the expiring store", due)
	}
}

func TestRotateAccountTokens(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertStoreAccount(ctx, testAccount("rotate")); err != nil {
		t.Fatalf("UpsertStoreAccount: %v", err)
	}

	newAccessExp := time.Now().UTC().Add(12 * time.Hour).Truncate(time.Millisecond)
	newRefreshExp := time.Now().UTC().Add(60 * 24 * time.Hour).Truncate(time.Millisecond)
	if err := db.RotateAccountTokens(ctx, "rotate", "new-at-ct", "new-rt-ct", newAccessExp, newRefreshExp); err != nil {
		t.Fatalf("RotateAccountTokens: %v", err)
	}

	acc, err := db.GetStoreAccount(ctx, "rotate")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc.AccessTokenCT != "new-at-ct" || acc.RefreshTokenCT != "new-rt-ct" {
		t.Errorf("ciphertexts not rotated: %q / %q", acc.AccessTokenCT, acc.RefreshTokenCT)
	}
	if !acc.AccessExpiresAt.Equal(newAccessExp) {
		t.Errorf("AccessExpiresAt = %v, want %v", acc.AccessExpiresAt, newAccessExp)
	}
	if acc.Status != models.StatusConnected {
		t.Errorf("status changed by rotation: %s", acc.Status)
	}
}

func TestUpdateLastSync(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.UpsertStoreAccount(ctx, testAccount("sync")); err != nil {
		t.Fatalf("UpsertStoreAccount: %v", err)
	}
	if err := db.UpdateLastSync(ctx, "sync"); err != nil {
		t.Fatalf("UpdateLastSync: %v", err)
	}

	acc, err := db.GetStoreAccount(ctx, "sync")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc.LastSyncAt == nil {
		t.Fatal("LastSyncAt still nil after UpdateLastSync")
	}
	if time.Since(*acc.LastSyncAt) > time.Minute {
		t.Errorf("LastSyncAt = %v, want recent", acc.LastSyncAt)
	}
}

func TestPendingStateConsumeIsOneShot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ps := &models.PendingState{
		State:        "store_A_abcd1234_deadbeef",
		CodeVerifier: "verifier-value",
		StoreID:      "store_A",
		ExpiresAt:    time.Now().UTC().Add(10 * time.Minute),
	}
	if err := db.InsertPendingState(ctx, ps); err != nil {
		t.Fatalf("InsertPendingState: %v", err)
	}

	got, err := db.ConsumePendingState(ctx, ps.State)
	if err != nil {
		t.Fatalf("ConsumePendingState: %v", err)
	}
	if got.CodeVerifier != "verifier-value" || got.StoreID != "store_A" {
		t.Errorf("unexpected pending state: %+v", got)
	}

	// A second consume of the same state must fail.
	if _, err := db.ConsumePendingState(ctx, ps.State); !errors.Is(err, ErrPendingStateNotFound) {
		t.Errorf("second consume error = %v, want ErrPendingStateNotFound", err)
	}
}

func TestPendingStateExpirySweep(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	expired := &models.PendingState{
		State:        "store_B_ffff0000_cafebabe",
		CodeVerifier: "stale",
		StoreID:      "store_B",
		ExpiresAt:    time.Now().UTC().Add(-time.Minute),
	}
	if err := db.InsertPendingState(ctx, expired); err != nil {
		t.Fatalf("InsertPendingState: %v", err)
	}

	if _, err := db.ConsumePendingState(ctx, expired.State); !errors.Is(err, ErrPendingStateNotFound) {
		t.Errorf("consume of expired state error = %v, want ErrPendingStateNotFound", err)
	}
}

func TestAcquireLockMutualExclusion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ok, err := db.AcquireLock(ctx, "sync:store_B", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if !ok {
		t.Fatal("first acquire returned false")
	}

	ok, err = db.AcquireLock(ctx, "sync:store_B", time.Minute)
	if err != nil {
		t.Fatalf("second AcquireLock: %v", err)
	}
	if ok {
		t.Error("second acquire succeeded while lock held")
	}

	// A different key is unaffected.
	ok, err = db.AcquireLock(ctx, "sync:store_C", time.Minute)
	if err != nil || !ok {
		t.Errorf("acquire of different key = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestAcquireLockAfterExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ok, err := db.AcquireLock(ctx, "sync:expired", -time.Second)
	if err != nil || !ok {
		t.Fatalf("acquire with past TTL = (%v, %v)", ok, err)
	}

	// The expired row must not block a fresh acquisition.
	ok, err = db.AcquireLock(ctx, "sync:expired", time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if !ok {
		t.Error("acquire after expiry returned false")
	}
}

func TestReleaseLock(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ok, err := db.AcquireLock(ctx, "sync:release", time.Minute)
	if err != nil || !ok {
		t.Fatalf("AcquireLock = (%v, %v)", ok, err)
	}

	db.ReleaseLock(ctx, "sync:release")

	ok, err = db.AcquireLock(ctx, "sync:release", time.Minute)
	if err != nil || !ok {
		t.Errorf("acquire after release = (%v, %v), want (true, nil)", ok, err)
	}

	// Releasing a lock that is not held is a no-op.
	db.ReleaseLock(ctx, "sync:never-held")
}

func TestUpsertUserDailyIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	date := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	snap := &models.UserDailySnapshot{
		StoreID:       "store_A",
		OpenID:        "open-A",
		SnapshotDate:  date,
		DisplayName:   "Store A",
		FollowerCount: 100,
		LikesCount:    5000,
		VideoCount:    12,
	}
	if err := db.UpsertUserDaily(ctx, snap); err != nil {
		t.Fatalf("UpsertUserDaily: %v", err)
	}

	snap.FollowerCount = 150
	if err := db.UpsertUserDaily(ctx, snap); err != nil {
		t.Fatalf("second UpsertUserDaily: %v", err)
	}

	got, err := db.GetUserDaily(ctx, "store_A", "2026-08-24")
	if err != nil {
		t.Fatalf("GetUserDaily: %v", err)
	}
	if got == nil {
		t.Fatal("snapshot not found")
	}
	if got.FollowerCount != 150 {
		t.Errorf("FollowerCount = %d, want 150 (last writer wins)", got.FollowerCount)
	}
}

func TestUpsertVideoDailyBatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	date := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	snaps := make([]models.VideoDailySnapshot, 0, 250)
	for i := 0; i < 250; i++ {
		snaps = append(snaps, models.VideoDailySnapshot{
			StoreID:      "store_V",
			VideoID:      string(rune('a'+i%26)) + "-" + time.Duration(i).String(),
			SnapshotDate: date,
			ViewCount:    int64(i * 10),
		})
	}
	if err := db.UpsertVideoDailyBatch(ctx, snaps); err != nil {
		t.Fatalf("UpsertVideoDailyBatch: %v", err)
	}

	n, err := db.CountVideoDaily(ctx, "store_V", "2026-08-24")
	if err != nil {
		t.Fatalf("CountVideoDaily: %v", err)
	}
	if n != 250 {
		t.Errorf("rows = %d, want 250", n)
	}

	// Re-running the batch must not create duplicates.
	if err := db.UpsertVideoDailyBatch(ctx, snaps); err != nil {
		t.Fatalf("second UpsertVideoDailyBatch: %v", err)
	}
	n, err = db.CountVideoDaily(ctx, "store_V", "2026-08-24")
	if err != nil {
		t.Fatalf("CountVideoDaily: %v", err)
	}
	if n != 250 {
		t.Errorf("rows after rerun = %d, want 250", n)
	}
}

func TestSyncLogLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.InsertSyncLog(ctx, &models.SyncLogEntry{
		JobName:   "user_daily",
		Status:    models.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("InsertSyncLog: %v", err)
	}

	if err := db.CompleteSyncLog(ctx, id, models.SyncStatusSuccess, "synced 3 stores", "", 1500*time.Millisecond); err != nil {
		t.Fatalf("CompleteSyncLog: %v", err)
	}

	logs, err := db.ListSyncLogs(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListSyncLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	e := logs[0]
	if e.Status != models.SyncStatusSuccess || e.Message != "synced 3 stores" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.DurationMS != 1500 || e.CompletedAt == nil {
		t.Errorf("terminal fields not set: duration=%d completed=%v", e.DurationMS, e.CompletedAt)
	}
	if e.StoreID != "" {
		t.Errorf("run-level entry has store_id %q", e.StoreID)
	}
}

func TestListSyncLogsFilterAndLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := db.InsertSyncLog(ctx, &models.SyncLogEntry{
			StoreID:   "store_A",
			JobName:   "video_daily",
			Status:    models.SyncStatusSuccess,
			StartedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("InsertSyncLog: %v", err)
		}
	}
	if _, err := db.InsertSyncLog(ctx, &models.SyncLogEntry{
		StoreID:   "store_B",
		JobName:   "video_daily",
		Status:    models.SyncStatusFailed,
		StartedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("InsertSyncLog: %v", err)
	}

	logs, err := db.ListSyncLogs(ctx, "store_A", 3)
	if err != nil {
		t.Fatalf("ListSyncLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("logs = %d, want 3", len(logs))
	}
	for _, e := range logs {
		if e.StoreID != "store_A" {
			t.Errorf("entry for %q leaked into filtered list", e.StoreID)
		}
	}
	// Newest first.
	if logs[0].StartedAt.Before(logs[1].StartedAt) {
		t.Error("logs not ordered by started_at desc")
	}
}
