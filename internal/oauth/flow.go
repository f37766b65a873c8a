// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/storepulse/storepulse/internal/config"
	"github.com/storepulse/storepulse/internal/database"
	"github.com/storepulse/storepulse/internal/logging"
	"github.com/storepulse/storepulse/internal/models"
)

var (
	// ErrTokenRevoked indicates the refresh token is no longer usable and
	// the store must re-run the connect flow.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrStateNotFound indicates the callback state was never issued, was
	// already consumed, or expired.
	ErrStateNotFound = errors.New("pending state not found")
)

// stateTTL bounds how long a minted state parameter may be redeemed.
const stateTTL = 10 * time.Minute

const maxTokenResponseBytes = 1 << 20

// StateStore persists pending authorization state between the authorize
// redirect and the callback. Consume must be destructive: a state row is
// redeemable exactly once.
type StateStore interface {
	InsertPendingState(ctx context.Context, ps *models.PendingState) error
	ConsumePendingState(ctx context.Context, state string) (*models.PendingState, error)
}

// Flow drives the platform authorization code flow for store accounts.
type Flow struct {
	cfg        *config.PlatformConfig
	signer     *StateSigner
	states     StateStore
	httpClient *http.Client
	now        func() time.Time
}

// NewFlow creates the authorization flow. stateSecret feeds the state signing
// key derivation.
func NewFlow(cfg *config.PlatformConfig, stateSecret []byte, states StateStore) (*Flow, error) {
	signer, err := NewStateSigner(stateSecret)
	if err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Flow{
		cfg:        cfg,
		signer:     signer,
		states:     states,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}, nil
}

// BuildAuthorizeURL mints PKCE material and a signed state for storeID,
// persists the pending state, and returns the platform authorization URL.
// The state row is written before the URL is returned so a fast callback
// cannot race the insert.
func (f *Flow) BuildAuthorizeURL(ctx context.Context, storeID string) (string, error) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return "", err
	}

	state, err := f.signer.Sign(storeID)
	if err != nil {
		return "", err
	}

	err = f.states.InsertPendingState(ctx, &models.PendingState{
		State:        state,
		CodeVerifier: verifier,
		StoreID:      storeID,
		ExpiresAt:    f.now().UTC().Add(stateTTL),
	})
	if err != nil {
		return "", fmt.Errorf("persist pending state: %w", err)
	}

	q := url.Values{}
	q.Set("client_key", f.cfg.ClientKey)
	q.Set("scope", strings.Join(f.cfg.Scopes, ","))
	q.Set("response_type", "code")
	q.Set("redirect_uri", f.cfg.RedirectURI)
	q.Set("state", state)
	q.Set("code_challenge", CodeChallenge(verifier))
	q.Set("code_challenge_method", "S256")

	sep := "?"
	if strings.Contains(f.cfg.AuthorizeURL, "?") {
		sep = "&"
	}
	return f.cfg.AuthorizeURL + sep + q.Encode(), nil
}

// HandleCallback validates the returned state, consumes its pending row, and
// exchanges the authorization code. Returns the store ID bound to the state.
func (f *Flow) HandleCallback(ctx context.Context, state, code string) (string, *models.TokenResult, error) {
	storeID, err := f.signer.Validate(state)
	if err != nil {
		return "", nil, err
	}

	pending, err := f.states.ConsumePendingState(ctx, state)
	if err != nil {
		if errors.Is(err, database.ErrPendingStateNotFound) {
			return storeID, nil, ErrStateNotFound
		}
		return storeID, nil, err
	}

	tokens, err := f.ExchangeCode(ctx, code, pending.CodeVerifier)
	if err != nil {
		return storeID, nil, err
	}

	logging.Info().
		Str("store_id", storeID).
		Str("open_id", tokens.OpenID).
		Msg("Authorization code exchanged")
	return storeID, tokens, nil
}

// tokenResponse is the platform token endpoint payload, shared by the code
// exchange and refresh grants.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	OpenID           string `json:"open_id"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	Scope            string `json:"scope"`

	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	LogID            string `json:"log_id"`
}

// ExchangeCode redeems an authorization code plus its PKCE verifier for
// tokens.
func (f *Flow) ExchangeCode(ctx context.Context, code, codeVerifier string) (*models.TokenResult, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_key", f.cfg.ClientKey)
	form.Set("client_secret", f.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", f.cfg.RedirectURI)
	form.Set("code_verifier", codeVerifier)

	resp, err := f.tokenRequest(ctx, f.cfg.TokenURL, form)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	return f.toResult(resp), nil
}

// Refresh exchanges a refresh token for a fresh token pair. A 400 or 401
// from the token endpoint means the grant is dead and returns
// ErrTokenRevoked.
func (f *Flow) Refresh(ctx context.Context, refreshToken string) (*models.TokenResult, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_key", f.cfg.ClientKey)
	form.Set("client_secret", f.cfg.ClientSecret)
	form.Set("refresh_token", refreshToken)

	resp, err := f.tokenRequest(ctx, f.cfg.TokenURL, form)
	if err != nil {
		var hs *httpStatusError
		if errors.As(err, &hs) && (hs.status == http.StatusBadRequest || hs.status == http.StatusUnauthorized) {
			return nil, fmt.Errorf("%w: %s", ErrTokenRevoked, hs.detail)
		}
		return nil, fmt.Errorf("token refresh: %w", err)
	}
	return f.toResult(resp), nil
}

// Revoke invalidates a token pair at the platform. Best effort; local state
// is authoritative regardless of the outcome.
func (f *Flow) Revoke(ctx context.Context, accessToken string) error {
	form := url.Values{}
	form.Set("client_key", f.cfg.ClientKey)
	form.Set("client_secret", f.cfg.ClientSecret)
	form.Set("token", accessToken)

	if _, err := f.tokenRequest(ctx, f.cfg.RevokeURL, form); err != nil {
		return fmt.Errorf("token revoke: %w", err)
	}
	return nil
}

type httpStatusError struct {
	status int
	detail string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.status, e.detail)
}

func (f *Flow) tokenRequest(ctx context.Context, endpoint string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	var body tokenResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &httpStatusError{status: resp.StatusCode, detail: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("malformed token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := body.ErrorDescription
		if detail == "" {
			detail = body.Error
		}
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return nil, &httpStatusError{status: resp.StatusCode, detail: detail}
	}
	if body.Error != "" && body.Error != "ok" {
		return nil, fmt.Errorf("token endpoint error %s: %s (log_id %s)", body.Error, body.ErrorDescription, body.LogID)
	}
	if body.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &body, nil
}

func (f *Flow) toResult(resp *tokenResponse) *models.TokenResult {
	now := f.now().UTC()
	return &models.TokenResult{
		AccessToken:      resp.AccessToken,
		RefreshToken:     resp.RefreshToken,
		OpenID:           resp.OpenID,
		AccessExpiresAt:  now.Add(time.Duration(resp.ExpiresIn) * time.Second),
		RefreshExpiresAt: now.Add(time.Duration(resp.RefreshExpiresIn) * time.Second),
		Scope:            resp.Scope,
	}
}

// revocationMarkers are the token-fault phrases platforms put in error
// descriptions without a machine-readable code.
var revocationMarkers = []string{"revoked", "invalid", "expired", "unauthorized"}

// IsTokenRevoked reports whether err means the stored grant is dead. Beyond
// the sentinel, it also recognizes textual token faults from endpoints that
// report them only in prose.
func IsTokenRevoked(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenRevoked) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "token") {
		return false
	}
	for _, marker := range revocationMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
