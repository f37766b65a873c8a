// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package api is the HTTP surface: the store connect flow, the OAuth
// callback, health probes, Prometheus metrics, and the admin sync API.
package api

import (
	"net/http"

	"github.com/storepulse/storepulse/internal/config"
	"github.com/storepulse/storepulse/internal/database"
	"github.com/storepulse/storepulse/internal/oauth"
	"github.com/storepulse/storepulse/internal/sync"
	"github.com/storepulse/storepulse/internal/tokens"
)

// Handlers carries the collaborators every endpoint needs.
type Handlers struct {
	cfg    *config.Config
	db     *database.DB
	flow   *oauth.Flow
	tokens *tokens.Store
	orch   *sync.Orchestrator
}

// NewHandlers creates the handler set.
func NewHandlers(cfg *config.Config, db *database.DB, flow *oauth.Flow, ts *tokens.Store, orch *sync.Orchestrator) *Handlers {
	return &Handlers{cfg: cfg, db: db, flow: flow, tokens: ts, orch: orch}
}

// HealthLive reports process liveness.
func (h *Handlers) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady reports readiness: the database must answer a ping.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "database unavailable", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
