// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package tokens manages encrypted OAuth tokens for store accounts: storage
// after the connect flow, transparent refresh ahead of expiry, and the
// account status machine that sync scheduling keys off.
package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/storepulse/storepulse/internal/crypto"
	"github.com/storepulse/storepulse/internal/database"
	"github.com/storepulse/storepulse/internal/logging"
	"github.com/storepulse/storepulse/internal/metrics"
	"github.com/storepulse/storepulse/internal/models"
	"github.com/storepulse/storepulse/internal/oauth"
)

// refreshWindow is how far ahead of access-token expiry a proactive refresh
// kicks in.
const refreshWindow = 5 * time.Minute

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenResult, error)
}

// Store is the token vault facade over the accounts table. All token
// plaintext is confined to this package's call frames.
type Store struct {
	db    *database.DB
	vault *crypto.Vault
	flow  Refresher
	now   func() time.Time
}

// NewStore creates a token store.
func NewStore(db *database.DB, vault *crypto.Vault, flow Refresher) *Store {
	return &Store{db: db, vault: vault, flow: flow, now: time.Now}
}

// StoreTokens encrypts and upserts a token pair for storeID, setting the
// account CONNECTED. Used after both the initial connect and a manual
// reconnect; any previous status is overwritten.
func (s *Store) StoreTokens(ctx context.Context, storeID string, tr *models.TokenResult) error {
	accessCT, err := s.vault.EncryptString(tr.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refreshCT, err := s.vault.EncryptString(tr.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	now := s.now().UTC()
	err = s.db.UpsertStoreAccount(ctx, &models.StoreAccount{
		StoreID:          storeID,
		OpenID:           tr.OpenID,
		AccessTokenCT:    accessCT,
		RefreshTokenCT:   refreshCT,
		AccessExpiresAt:  tr.AccessExpiresAt.UTC(),
		RefreshExpiresAt: tr.RefreshExpiresAt.UTC(),
		Scope:            tr.Scope,
		Status:           models.StatusConnected,
		ConnectedAt:      now,
		UpdatedAt:        now,
	})
	if err != nil {
		return err
	}

	logging.Info().
		Str("store_id", storeID).
		Str("open_id", tr.OpenID).
		Time("access_expires_at", tr.AccessExpiresAt).
		Msg("Store account connected")
	return nil
}

// GetValidAccessToken returns a usable plaintext access token for storeID,
// refreshing first when expiry is inside the refresh window. Returns ""
// without error when the account is absent, not CONNECTED, or its grant
// turns out to be revoked during the refresh; sync treats all of those as a
// skip, not a failure.
//
// Refresh failures transition the account: a revoked grant moves it to
// NEED_RECONNECT and yields no token, anything else (including
// undecryptable ciphertext) moves it to ERROR and returns the error.
func (s *Store) GetValidAccessToken(ctx context.Context, storeID string) (string, error) {
	acc, err := s.db.GetStoreAccount(ctx, storeID)
	if err != nil {
		return "", err
	}
	if acc == nil || acc.Status != models.StatusConnected {
		return "", nil
	}

	if s.now().UTC().Add(refreshWindow).Before(acc.AccessExpiresAt) {
		token, err := s.vault.DecryptString(acc.AccessTokenCT)
		if err != nil {
			return "", s.markFailed(ctx, storeID, models.StatusError, fmt.Errorf("decrypt access token: %w", err))
		}
		return token, nil
	}

	token, err := s.refresh(ctx, acc)
	if err != nil {
		if oauth.IsTokenRevoked(err) {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// refresh rotates the account's token pair. Old tokens stay in place until
// the new pair is durably stored.
func (s *Store) refresh(ctx context.Context, acc *models.StoreAccount) (string, error) {
	refreshToken, err := s.vault.DecryptString(acc.RefreshTokenCT)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", s.markFailed(ctx, acc.StoreID, models.StatusError, fmt.Errorf("decrypt refresh token: %w", err))
	}

	tr, err := s.flow.Refresh(ctx, refreshToken)
	if err != nil {
		if oauth.IsTokenRevoked(err) {
			metrics.TokenRefreshes.WithLabelValues("revoked").Inc()
			return "", s.markFailed(ctx, acc.StoreID, models.StatusNeedReconnect, err)
		}
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", s.markFailed(ctx, acc.StoreID, models.StatusError, fmt.Errorf("token refresh: %w", err))
	}

	accessCT, err := s.vault.EncryptString(tr.AccessToken)
	if err != nil {
		return "", fmt.Errorf("encrypt access token: %w", err)
	}
	refreshCT, err := s.vault.EncryptString(tr.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("encrypt refresh token: %w", err)
	}

	err = s.db.RotateAccountTokens(ctx, acc.StoreID, accessCT, refreshCT,
		tr.AccessExpiresAt.UTC(), tr.RefreshExpiresAt.UTC())
	if err != nil {
		return "", fmt.Errorf("rotate tokens: %w", err)
	}

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	logging.Info().
		Str("store_id", acc.StoreID).
		Time("access_expires_at", tr.AccessExpiresAt).
		Msg("Access token refreshed")
	return tr.AccessToken, nil
}

// RefreshIfExpiring proactively refreshes the account when its access token
// expires before the horizon. Used by the nightly refresh job so daytime
// syncs rarely pay refresh latency. A revoked grant reports (false, nil);
// the account is already NEED_RECONNECT by then.
func (s *Store) RefreshIfExpiring(ctx context.Context, storeID string, horizon time.Duration) (bool, error) {
	acc, err := s.db.GetStoreAccount(ctx, storeID)
	if err != nil {
		return false, err
	}
	if acc == nil || acc.Status != models.StatusConnected {
		return false, nil
	}
	if acc.AccessExpiresAt.After(s.now().UTC().Add(horizon)) {
		return false, nil
	}

	if _, err := s.refresh(ctx, acc); err != nil {
		if oauth.IsTokenRevoked(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpdateLastSync stamps the account's last successful sync time.
func (s *Store) UpdateLastSync(ctx context.Context, storeID string) error {
	return s.db.UpdateLastSync(ctx, storeID)
}

// markFailed records the status transition and returns cause. The transition
// itself is best effort: an update failure is logged, not layered on top of
// the original error.
func (s *Store) markFailed(ctx context.Context, storeID string, status models.AccountStatus, cause error) error {
	if err := s.db.UpdateAccountStatus(ctx, storeID, status); err != nil {
		logging.Error().Err(err).
			Str("store_id", storeID).
			Str("status", string(status)).
			Msg("Failed to record account status transition")
	} else {
		logging.Warn().
			Str("store_id", storeID).
			Str("status", string(status)).
			Err(cause).
			Msg("Store account transitioned out of CONNECTED")
	}

	return cause
}
