// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package sync

import (
	"context"
	"time"

	"github.com/storepulse/storepulse/internal/database"
	"github.com/storepulse/storepulse/internal/logging"
)

// Sweeper periodically clears expired sync locks and OAuth pending state.
// Both are also swept opportunistically on the hot paths; this keeps tables
// small when the process is otherwise idle. Implements suture.Service.
type Sweeper struct {
	db       *database.DB
	interval time.Duration
}

// NewSweeper creates a sweeper. interval <= 0 defaults to five minutes.
func NewSweeper(db *database.DB, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{db: db, interval: interval}
}

// Serve runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.db.SweepExpiredLocks(ctx); err != nil {
		logging.Warn().Err(err).Msg("Expired lock sweep failed")
	}
	if err := s.db.SweepExpiredStates(ctx); err != nil {
		logging.Warn().Err(err).Msg("Expired state sweep failed")
	}
}

// String names the service in supervisor logs.
func (s *Sweeper) String() string { return "maintenance-sweeper" }
