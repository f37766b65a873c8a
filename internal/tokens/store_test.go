// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package tokens

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/storepulse/storepulse/internal/config"
	"github.com/storepulse/storepulse/internal/crypto"
	"github.com/storepulse/storepulse/internal/database"
	"github.com/storepulse/storepulse/internal/models"
	"github.com/storepulse/storepulse/internal/oauth"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fakeRefresher struct {
	calls  int
	result *models.TokenResult
	err    error
}

func (f *fakeRefresher) Refresh(_ context.Context, _ string) (*models.TokenResult, error) {
	f.calls++
	return f.result, f.err
}

func newTestStore(t *testing.T, flow Refresher) (*Store, *database.DB) {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{
		Path:     filepath.Join(t.TempDir(), "tokens_test.db"),
		PoolSize: 4,
		PoolMin:  1,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	vault, err := crypto.NewVault(testKeyHex)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	return NewStore(db, vault, flow), db
}

func freshTokens(openID string) *models.TokenResult {
	now := time.Now().UTC()
	return &models.TokenResult{
		AccessToken:      "AT-plain",
		RefreshToken:     "RT-plain",
		OpenID:           openID,
		AccessExpiresAt:  now.Add(24 * time.Hour),
		RefreshExpiresAt: now.Add(365 * 24 * time.Hour),
		Scope:            "user.info.basic,video.list",
	}
}

func TestStoreTokensAndGet(t *testing.T) {
	flow := &fakeRefresher{}
	store, db := newTestStore(t, flow)
	ctx := context.Background()

	if err := store.StoreTokens(ctx, "store_a", freshTokens("open-1")); err != nil {
		t.Fatalf("StoreTokens: %v", err)
	}

	acc, err := db.GetStoreAccount(ctx, "store_a")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc.Status != models.StatusConnected {
		t.Errorf("status = %s, want CONNECTED", acc.Status)
	}
	if acc.AccessTokenCT == "AT-plain" || acc.RefreshTokenCT == "RT-plain" {
		t.Fatal("tokens stored in plaintext")
	}

	token, err := store.GetValidAccessToken(ctx, "store_a")
	if err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	if token != "AT-plain" {
		t.Errorf("token = %q, want AT-plain", token)
	}
	if flow.calls != 0 {
		t.Errorf("refresh calls = %d, want 0 for a fresh token", flow.calls)
	}
}

func TestGetValidAccessTokenNonConnected(t *testing.T) {
	store, db := newTestStore(t, &fakeRefresher{})
	ctx := context.Background()

	// Absent account.
	token, err := store.GetValidAccessToken(ctx, "missing")
	if err != nil || token != "" {
		t.Errorf("absent account: token=%q err=%v, want empty and nil", token, err)
	}

	// Every non-CONNECTED status yields no token and no error.
	if err := store.StoreTokens(ctx, "store_a", freshTokens("open-1")); err != nil {
		t.Fatalf("StoreTokens: %v", err)
	}
	for _, status := range []models.AccountStatus{
		models.StatusNeedReconnect, models.StatusError, models.StatusDisabled,
	} {
		if err := db.UpdateAccountStatus(ctx, "store_a", status); err != nil {
			t.Fatalf("UpdateAccountStatus: %v", err)
		}
		token, err := store.GetValidAccessToken(ctx, "store_a")
		if err != nil || token != "" {
			t.Errorf("status %s: token=%q err=%v, want empty and nil", status, token, err)
		}
	}
}

func TestGetValidAccessTokenRefreshesNearExpiry(t *testing.T) {
	rotated := freshTokens("open-1")
	rotated.AccessToken = "AT-rotated"
	rotated.RefreshToken = "RT-rotated"
	flow := &fakeRefresher{result: rotated}

	store, db := newTestStore(t, flow)
	ctx := context.Background()

	near := freshTokens("open-1")
	near.AccessExpiresAt = time.Now().UTC().Add(2 * time.Minute) // inside the 5m window
	if err := store.StoreTokens(ctx, "store_a", near); err != nil {
		t.Fatalf("StoreTokens: %v", err)
	}

	token, err := store.GetValidAccessToken(ctx, "store_a")
	if err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	if token != "AT-rotated" {
		t.Errorf("token = %q, want AT-rotated", token)
	}
	if flow.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", flow.calls)
	}

	// The rotation is durable: a second read decrypts the new pair without
	// another refresh.
	acc, err := db.GetStoreAccount(ctx, "store_a")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc.Status != models.StatusConnected {
		t.Errorf("status = %s, want CONNECTED", acc.Status)
	}
	token, err = store.GetValidAccessToken(ctx, "store_a")
	if err != nil || token != "AT-rotated" {
		t.Errorf("second read: token=%q err=%v", token, err)
	}
	if flow.calls != 1 {
		t.Errorf("refresh calls = %d, want still 1", flow.calls)
	}
}

func TestGetValidAccessTokenRevokedGrant(t *testing.T) {
	flow := &fakeRefresher{err: oauth.ErrTokenRevoked}
	store, db := newTestStore(t, flow)
	ctx := context.Background()

	near := freshTokens("open-1")
	near.AccessExpiresAt = time.Now().UTC().Add(time.Minute)
	if err := store.StoreTokens(ctx, "store_a", near); err != nil {
		t.Fatalf("StoreTokens: %v", err)
	}

	// A revoked grant is not an error from the caller's point of view: the
	// token is simply gone until the store reconnects.
	token, err := store.GetValidAccessToken(ctx, "store_a")
	if err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	if token != "" {
		t.Errorf("token = %q, want empty for a revoked grant", token)
	}

	acc, err := db.GetStoreAccount(ctx, "store_a")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc.Status != models.StatusNeedReconnect {
		t.Errorf("status = %s, want NEED_RECONNECT", acc.Status)
	}

	// Subsequent reads take the non-CONNECTED path without another refresh.
	token, err = store.GetValidAccessToken(ctx, "store_a")
	if err != nil || token != "" {
		t.Errorf("second read: token=%q err=%v, want empty and nil", token, err)
	}
	if flow.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", flow.calls)
	}
}

func TestRefreshIfExpiringRevokedGrant(t *testing.T) {
	flow := &fakeRefresher{err: oauth.ErrTokenRevoked}
	store, db := newTestStore(t, flow)
	ctx := context.Background()

	near := freshTokens("open-1")
	near.AccessExpiresAt = time.Now().UTC().Add(time.Hour)
	if err := store.StoreTokens(ctx, "store_a", near); err != nil {
		t.Fatalf("StoreTokens: %v", err)
	}

	did, err := store.RefreshIfExpiring(ctx, "store_a", 48*time.Hour)
	if err != nil {
		t.Fatalf("RefreshIfExpiring: %v", err)
	}
	if did {
		t.Error("did = true, want false for a revoked grant")
	}

	acc, err := db.GetStoreAccount(ctx, "store_a")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc.Status != models.StatusNeedReconnect {
		t.Errorf("status = %s, want NEED_RECONNECT", acc.Status)
	}
}

func TestGetValidAccessTokenRefreshFailure(t *testing.T) {
	flow := &fakeRefresher{err: errors.New("connection refused")}
	store, db := newTestStore(t, flow)
	ctx := context.Background()

	near := freshTokens("open-1")
	near.AccessExpiresAt = time.Now().UTC().Add(time.Minute)
	if err := store.StoreTokens(ctx, "store_a", near); err != nil {
		t.Fatalf("StoreTokens: %v", err)
	}

	if _, err := store.GetValidAccessToken(ctx, "store_a"); err == nil {
		t.Fatal("expected error")
	}

	acc, err := db.GetStoreAccount(ctx, "store_a")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc.Status != models.StatusError {
		t.Errorf("status = %s, want ERROR", acc.Status)
	}
}

func TestGetValidAccessTokenCorruptCiphertext(t *testing.T) {
	store, db := newTestStore(t, &fakeRefresher{})
	ctx := context.Background()

	now := time.Now().UTC()
	err := db.UpsertStoreAccount(ctx, &models.StoreAccount{
		StoreID:          "store_a",
		OpenID:           "open-1",
		AccessTokenCT:    "not-a-valid-blob",
		RefreshTokenCT:   "also-garbage",
		AccessExpiresAt:  now.Add(24 * time.Hour),
		RefreshExpiresAt: now.Add(48 * time.Hour),
		Status:           models.StatusConnected,
		ConnectedAt:      now,
		UpdatedAt:        now,
	})
	if err != nil {
		t.Fatalf("UpsertStoreAccount: %v", err)
	}

	if _, err := store.GetValidAccessToken(ctx, "store_a"); err == nil {
		t.Fatal("expected error for corrupt ciphertext")
	}

	acc, err := db.GetStoreAccount(ctx, "store_a")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc.Status != models.StatusError {
		t.Errorf("status = %s, want ERROR", acc.Status)
	}
}

func TestRefreshIfExpiring(t *testing.T) {
	rotated := freshTokens("open-1")
	rotated.AccessToken = "AT-rotated"
	flow := &fakeRefresher{result: rotated}
	store, _ := newTestStore(t, flow)
	ctx := context.Background()

	if err := store.StoreTokens(ctx, "store_a", freshTokens("open-1")); err != nil {
		t.Fatalf("StoreTokens: %v", err)
	}

	// 24h out, 48h horizon: refresh fires.
	did, err := store.RefreshIfExpiring(ctx, "store_a", 48*time.Hour)
	if err != nil {
		t.Fatalf("RefreshIfExpiring: %v", err)
	}
	if !did || flow.calls != 1 {
		t.Errorf("did=%v calls=%d, want refresh to fire", did, flow.calls)
	}

	// Rotated pair now expires in 24h; a 1h horizon leaves it alone.
	did, err = store.RefreshIfExpiring(ctx, "store_a", time.Hour)
	if err != nil {
		t.Fatalf("RefreshIfExpiring: %v", err)
	}
	if did || flow.calls != 1 {
		t.Errorf("did=%v calls=%d, want no-op", did, flow.calls)
	}

	// Absent and non-connected accounts are no-ops.
	if did, err := store.RefreshIfExpiring(ctx, "missing", time.Hour); err != nil || did {
		t.Errorf("missing store: did=%v err=%v", did, err)
	}
}

func TestUpdateLastSync(t *testing.T) {
	store, db := newTestStore(t, &fakeRefresher{})
	ctx := context.Background()

	if err := store.StoreTokens(ctx, "store_a", freshTokens("open-1")); err != nil {
		t.Fatalf("StoreTokens: %v", err)
	}
	if err := store.UpdateLastSync(ctx, "store_a"); err != nil {
		t.Fatalf("UpdateLastSync: %v", err)
	}

	acc, err := db.GetStoreAccount(ctx, "store_a")
	if err != nil {
		t.Fatalf("GetStoreAccount: %v", err)
	}
	if acc.LastSyncAt == nil {
		t.Fatal("LastSyncAt not set")
	}
}
