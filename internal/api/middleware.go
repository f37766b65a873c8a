// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/storepulse/storepulse/internal/metrics"
)

// metricsMiddleware records request counts and latency per route pattern.
// The chi pattern keeps label cardinality bounded regardless of path values.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// adminAuth requires the X-API-Key header to match the configured admin key.
// With no key configured the admin surface is open; intended only for
// deployments already behind network-level access control.
func adminAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" {
				got := r.Header.Get("X-API-Key")
				if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
					respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "missing or invalid API key", nil)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
