// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/storepulse/storepulse/internal/logging"
	"github.com/storepulse/storepulse/internal/models"
	"github.com/storepulse/storepulse/internal/validation"
)

// syncRunRequest is the POST /admin/sync/run body. An empty StoreID runs the
// job across the whole fleet.
type syncRunRequest struct {
	StoreID string `json:"store_id" validate:"omitempty,store_id"`
	Job     string `json:"job" validate:"required,oneof=all user video refresh_tokens"`
}

// SyncRun triggers a job manually. A single-store run executes inline and
// returns each step's outcome; a fleet run detaches and the response only
// acknowledges the start.
func (h *Handlers) SyncRun(w http.ResponseWriter, r *http.Request) {
	var req syncRunRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body", err)
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		var reqErr *validation.RequestError
		if errors.As(err, &reqErr) && len(reqErr.Fields) > 0 && reqErr.Fields[0].Tag == "store_id" {
			respondError(w, http.StatusBadRequest, "INVALID_STORE_ID", reqErr.Error(), nil)
			return
		}
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	if req.StoreID != "" {
		acc, err := h.db.GetStoreAccount(r.Context(), req.StoreID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to load store", err)
			return
		}
		if acc == nil {
			respondError(w, http.StatusNotFound, "STORE_NOT_FOUND", "store is not connected", nil)
			return
		}

		results, err := h.orch.RunStore(r.Context(), req.StoreID, req.Job)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "SYNC_FAILED", "store sync failed", err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"store_id": req.StoreID,
			"job":      req.Job,
			"results":  results,
		})
		return
	}

	// Detached from the request so a closed admin connection does not
	// cancel a fleet run.
	go h.runFleetJob(context.WithoutCancel(r.Context()), req.Job)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job":   req.Job,
		"state": "started",
	})
}

// runFleetJob maps the API job name to orchestrator runs. "all" is the user
// sync followed by the video sync; token refresh happens implicitly inside
// token reads.
func (h *Handlers) runFleetJob(ctx context.Context, job string) {
	var err error
	switch job {
	case "user":
		err = h.orch.RunUserSync(ctx)
	case "video":
		err = h.orch.RunVideoSync(ctx)
	case "refresh_tokens":
		err = h.orch.RunTokenRefresh(ctx)
	case "all":
		if err = h.orch.RunUserSync(ctx); err == nil {
			err = h.orch.RunVideoSync(ctx)
		}
	}
	if err != nil {
		logging.Error().Err(err).Str("job", job).Msg("Manual fleet sync failed")
	}
}

// SyncStatus reports the job schedules with their next fire times, plus the
// account fleet by status.
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int)
	for _, status := range []models.AccountStatus{
		models.StatusConnected, models.StatusNeedReconnect,
		models.StatusError, models.StatusDisabled,
	} {
		accounts, err := h.db.ListAccountsByStatus(r.Context(), status)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to list accounts", err)
			return
		}
		counts[string(status)] = len(accounts)
	}

	tz := h.cfg.Sync.Timezone
	if tz == "" {
		tz = "UTC"
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"enabled":  h.cfg.Sync.Enabled,
		"timezone": tz,
		"jobs":     h.orch.JobStatuses(),
		"accounts": counts,
	})
}

// SyncLogs returns recent sync log entries, optionally filtered by store.
// limit defaults to 50 and is capped at 500.
func (h *Handlers) SyncLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	storeID := q.Get("store_id")
	if storeID != "" && !validation.ValidStoreID(storeID) {
		respondError(w, http.StatusBadRequest, "INVALID_STORE_ID",
			"store_id must be 1-50 characters of letters, digits, underscore, or hyphen", nil)
		return
	}

	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 500", nil)
			return
		}
		limit = n
	}

	logs, err := h.db.ListSyncLogs(r.Context(), storeID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to list sync logs", err)
		return
	}
	if logs == nil {
		logs = []models.SyncLogEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// StoreRevoke disconnects a store: best-effort token revocation at the
// platform, then the account is marked DISABLED locally.
func (h *Handlers) StoreRevoke(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	if !validation.ValidStoreID(storeID) {
		respondError(w, http.StatusBadRequest, "INVALID_STORE_ID",
			"store_id must be 1-50 characters of letters, digits, underscore, or hyphen", nil)
		return
	}

	acc, err := h.db.GetStoreAccount(r.Context(), storeID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to load store", err)
		return
	}
	if acc == nil {
		respondError(w, http.StatusNotFound, "STORE_NOT_FOUND", "store is not connected", nil)
		return
	}

	if token, err := h.tokens.GetValidAccessToken(r.Context(), storeID); err == nil && token != "" {
		if err := h.flow.Revoke(r.Context(), token); err != nil {
			logging.Warn().Err(err).Str("store_id", storeID).Msg("Platform token revocation failed")
		}
	}

	if err := h.db.UpdateAccountStatus(r.Context(), storeID, models.StatusDisabled); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to disable store", err)
		return
	}

	logging.Info().Str("store_id", storeID).Msg("Store disconnected")
	respondJSON(w, http.StatusOK, map[string]string{
		"store_id": storeID,
		"status":   string(models.StatusDisabled),
	})
}
