// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/storepulse/storepulse/internal/config"
	"github.com/storepulse/storepulse/internal/logging"
)

// checkInterval is how often the scheduler wakes to look for due jobs. Cron
// resolution is one minute, so half that keeps firing within the minute.
const checkInterval = 30 * time.Second

// cronJob is one scheduled orchestrator job.
type cronJob struct {
	name     string
	schedule *Schedule
	run      func(ctx context.Context) error
	nextRun  time.Time
}

// Scheduler fires orchestrator jobs on their cron schedules. It implements
// suture.Service: Serve blocks until the context is cancelled.
type Scheduler struct {
	jobs []*cronJob
	loc  *time.Location
	now  func() time.Time
	wg   stdsync.WaitGroup
}

// NewScheduler parses the configured cron expressions and binds them to the
// orchestrator's jobs.
func NewScheduler(cfg *config.SyncConfig, orch *Orchestrator) (*Scheduler, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("load sync timezone: %w", err)
		}
	}

	specs := []struct {
		name string
		expr string
		run  func(ctx context.Context) error
	}{
		{JobRefreshTokens, cfg.CronRefreshTokens, orch.RunTokenRefresh},
		{JobUserDaily, cfg.CronUserDaily, orch.RunUserSync},
		{JobVideoDaily, cfg.CronVideoDaily, orch.RunVideoSync},
	}

	s := &Scheduler{loc: loc, now: time.Now}
	for _, spec := range specs {
		sched, err := ParseSchedule(spec.expr)
		if err != nil {
			return nil, fmt.Errorf("%s cron %q: %w", spec.name, spec.expr, err)
		}
		s.jobs = append(s.jobs, &cronJob{name: spec.name, schedule: sched, run: spec.run})
	}
	return s, nil
}

// Serve runs the scheduling loop until ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	now := s.now()
	for _, job := range s.jobs {
		job.nextRun = job.schedule.Next(now, s.loc)
		logging.Info().
			Str("job", job.name).
			Time("next_run", job.nextRun).
			Msg("Job scheduled")
	}

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Runs observe the cancellation themselves; wait for them so
			// their completion logs land before the supervisor moves on.
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.now()
	for _, job := range s.jobs {
		if now.Before(job.nextRun) {
			continue
		}
		job.nextRun = job.schedule.Next(now, s.loc)

		s.wg.Add(1)
		go func(job *cronJob) {
			defer s.wg.Done()
			logging.Info().Str("job", job.name).Msg("Scheduled run starting")
			if err := job.run(ctx); err != nil && ctx.Err() == nil {
				logging.Error().Err(err).Str("job", job.name).Msg("Scheduled run failed")
			}
		}(job)
	}
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string { return "sync-scheduler" }
