// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package api

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/storepulse/storepulse/internal/logging"
	"github.com/storepulse/storepulse/internal/oauth"
	"github.com/storepulse/storepulse/internal/validation"
)

// ConnectInitiate starts the OAuth flow with a 302 to the platform's
// authorization page. Meant to be opened directly in a merchant's browser.
func (h *Handlers) ConnectInitiate(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store_id")
	if !validation.ValidStoreID(storeID) {
		respondError(w, http.StatusBadRequest, "INVALID_STORE_ID",
			"store_id must be 1-50 characters of letters, digits, underscore, or hyphen", nil)
		return
	}

	authURL, err := h.flow.BuildAuthorizeURL(r.Context(), storeID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "OAUTH_INIT_FAILED",
			"failed to start the authorization flow", err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// AuthURL returns the authorization URL as JSON for embedding flows that
// render their own redirect.
func (h *Handlers) AuthURL(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store_id")
	if !validation.ValidStoreID(storeID) {
		respondError(w, http.StatusBadRequest, "INVALID_STORE_ID",
			"store_id must be 1-50 characters of letters, digits, underscore, or hyphen", nil)
		return
	}

	authURL, err := h.flow.BuildAuthorizeURL(r.Context(), storeID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "OAUTH_INIT_FAILED",
			"failed to start the authorization flow", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"store_id":      storeID,
		"authorize_url": authURL,
	})
}

// AuthCallback receives the platform redirect, redeems the code, and stores
// the encrypted token pair. Responses are human-readable HTML since the
// merchant lands here in a browser.
func (h *Handlers) AuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if denied := q.Get("error"); denied != "" {
		renderCallbackError(w, "OAUTH_EXCHANGE_FAILED",
			"The platform reported: "+denied)
		return
	}

	state := q.Get("state")
	code := q.Get("code")
	if state == "" || code == "" {
		renderCallbackError(w, "OAUTH_STATE_MISSING",
			"The callback is missing its state or code parameter.")
		return
	}

	storeID, tokens, err := h.flow.HandleCallback(r.Context(), state, code)
	switch {
	case errors.Is(err, oauth.ErrInvalidState), errors.Is(err, oauth.ErrStateNotFound):
		logging.Warn().
			Str("state", sanitizeLogValue(state)).
			Err(err).
			Msg("OAuth callback with unusable state")
		renderCallbackError(w, "OAUTH_STATE_INVALID",
			"The authorization link is invalid or has expired. Start the connect flow again.")
		return
	case err != nil:
		logging.Error().Err(err).Str("store_id", storeID).Msg("Code exchange failed")
		renderCallbackError(w, "OAUTH_EXCHANGE_FAILED",
			"The platform rejected the authorization code. Start the connect flow again.")
		return
	}

	if err := h.tokens.StoreTokens(r.Context(), storeID, tokens); err != nil {
		logging.Error().Err(err).Str("store_id", storeID).Msg("Failed to persist tokens")
		renderCallbackError(w, "OAUTH_EXCHANGE_FAILED",
			"The connection could not be saved. Try again.")
		return
	}

	renderCallbackSuccess(w, storeID)
}

const callbackPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Storepulse</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 32rem; margin: 4rem auto; padding: 0 1rem; color: #1a1a1a; }
h1 { font-size: 1.3rem; }
.ok { color: #0a7d33; }
.err { color: #b42318; }
code { background: #f4f4f5; padding: 0.1rem 0.3rem; border-radius: 3px; }
</style>
</head>
<body>%s</body>
</html>
`

func renderCallbackSuccess(w http.ResponseWriter, storeID string) {
	body := fmt.Sprintf(
		`<h1 class="ok">Store connected</h1><p>Store <code>%s</code> is now connected. Daily metrics collection starts with the next scheduled sync. You can close this window.</p>`,
		html.EscapeString(storeID))
	renderHTML(w, http.StatusOK, body)
}

func renderCallbackError(w http.ResponseWriter, code, message string) {
	body := fmt.Sprintf(
		`<h1 class="err">Connection failed</h1><p>%s</p><p>Error code: <code>%s</code></p>`,
		html.EscapeString(message), html.EscapeString(code))
	renderHTML(w, http.StatusBadRequest, body)
}

func renderHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, callbackPage, body)
}
