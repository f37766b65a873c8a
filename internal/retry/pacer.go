// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package retry

import (
	"context"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum inter-call interval across all concurrent callers.
// It is shared per-process; no platform request may bypass it.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a pacer allowing at most requestsPerSecond calls per
// second. Non-positive rates fall back to 1 req/s.
func NewPacer(requestsPerSecond float64) *Pacer {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	// Burst of 1 keeps the inter-call interval strict at 1/N seconds.
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

// Wait blocks until the pacer admits one call or ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
