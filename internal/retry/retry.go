// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package retry provides the backoff and rate-limit kernel shared by every
// outbound platform call: a generic retry wrapper driven by a caller-supplied
// error classifier, and a process-wide pacer built on a token bucket.
package retry

import (
	"context"
	"time"

	"github.com/storepulse/storepulse/internal/logging"
)

// Policy controls the exponential backoff schedule. MaxRetries counts retries
// after the first attempt, so MaxRetries=3 means up to 4 attempts total.
// IsRetryable decides per error; a nil classifier never retries.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	IsRetryable  func(error) bool
}

// DefaultPolicy returns the standard platform-API policy: 3 retries, 1s
// initial delay, doubling, capped at 30s. The classifier must be set by the
// caller.
func DefaultPolicy(isRetryable func(error) bool) Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Factor:       2,
		IsRetryable:  isRetryable,
	}
}

// Do runs op with exponential backoff per the policy. On attempt k
// (0-indexed) a retryable failure sleeps min(InitialDelay*Factor^k, MaxDelay)
// before the next attempt. Non-retryable errors and the final attempt's error
// propagate unchanged. Backoff sleeps honor ctx cancellation; a cancelled
// sleep returns the context error.
func Do[T any](ctx context.Context, policy Policy, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	delay := policy.InitialDelay
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		if policy.IsRetryable == nil || !policy.IsRetryable(err) {
			return zero, err
		}
		if attempt >= policy.MaxRetries {
			return zero, err
		}

		sleep := delay
		if policy.MaxDelay > 0 && sleep > policy.MaxDelay {
			sleep = policy.MaxDelay
		}

		logging.Warn().
			Err(err).
			Str("operation", label).
			Int("attempt", attempt+1).
			Dur("backoff", sleep).
			Msg("Retrying after transient failure")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.Factor)
	}
}
