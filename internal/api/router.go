// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the chi router for the whole HTTP surface.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(metricsMiddleware)

	if origins := h.cfg.Security.CORSOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz/live", h.HealthLive)
	r.Get("/healthz/ready", h.HealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Merchant-facing connect flow. Rate limited per client IP since these
	// endpoints mint state rows.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))
		r.Get("/connect/initiate", h.ConnectInitiate)
		r.Get("/auth/url", h.AuthURL)
		r.Get("/auth/callback", h.AuthCallback)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuth(h.cfg.Security.AdminAPIKey))
		r.Post("/sync/run", h.SyncRun)
		r.Get("/sync/status", h.SyncStatus)
		r.Get("/sync/logs", h.SyncLogs)
		r.Post("/stores/{storeID}/revoke", h.StoreRevoke)
	})

	return r
}
