// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package metrics exposes Prometheus instrumentation for sync runs, platform
// API calls, and the HTTP surface. Collectors are registered at package init
// via promauto and served by promhttp at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync orchestrator metrics.

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Duration of whole sync job runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"job"},
	)

	SyncStoreOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_store_outcomes_total",
			Help: "Per-store sync outcomes by job and status",
		},
		[]string{"job", "status"}, // status: success, failed, skipped
	)

	SyncVideosUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_videos_upserted_total",
			Help: "Total video snapshot rows written",
		},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per job",
		},
		[]string{"job"},
	)

	// Platform API client metrics.

	PlatformAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_api_requests_total",
			Help: "Platform API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: ok, auth, rate_limit, server, client, http, parse
	)

	PlatformAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_api_request_duration_seconds",
			Help:    "Platform API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	PlatformAPIRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_api_retries_total",
			Help: "Retry attempts against the platform API",
		},
		[]string{"endpoint"},
	)

	// Token lifecycle metrics.

	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Token refresh attempts by outcome",
		},
		[]string{"outcome"}, // success, revoked, error
	)

	// HTTP surface metrics.

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route, and status code",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)
