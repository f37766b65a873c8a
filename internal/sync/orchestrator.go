// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package sync contains the fleet orchestrator, its cron scheduler, and the
// maintenance sweeper. Jobs fan out over connected stores under a bounded
// concurrency limit with a per-store database lock; a failing store never
// aborts the rest of the run.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storepulse/storepulse/internal/config"
	"github.com/storepulse/storepulse/internal/database"
	"github.com/storepulse/storepulse/internal/logging"
	"github.com/storepulse/storepulse/internal/metrics"
	"github.com/storepulse/storepulse/internal/models"
	"github.com/storepulse/storepulse/internal/platform"
	"github.com/storepulse/storepulse/internal/tokens"
)

// Job names as they appear in sync logs and the admin API.
const (
	JobUserDaily     = "user_daily"
	JobVideoDaily    = "video_daily"
	JobRefreshTokens = "refresh_tokens"
)

// lockKeyPrefix namespaces per-store sync locks in the locks table.
const lockKeyPrefix = "sync:"

// ErrJobRunning is returned when a manual trigger collides with an in-flight
// run of the same job.
var ErrJobRunning = errors.New("job already running")

// Orchestrator runs the daily sync jobs across the connected store fleet.
type Orchestrator struct {
	db     *database.DB
	tokens *tokens.Store
	client *platform.Client
	cfg    *config.SyncConfig

	inflight inflightSet
	now      func() time.Time
}

// NewOrchestrator creates the orchestrator. All collaborators are required.
func NewOrchestrator(db *database.DB, ts *tokens.Store, client *platform.Client, cfg *config.SyncConfig) *Orchestrator {
	return &Orchestrator{
		db:       db,
		tokens:   ts,
		client:   client,
		cfg:      cfg,
		inflight: newInflightSet(),
		now:      time.Now,
	}
}

// storeResult is the per-store outcome a job function reports.
type storeResult struct {
	status  models.SyncStatus
	message string
	err     error
}

func success(msg string) storeResult { return storeResult{status: models.SyncStatusSuccess, message: msg} }
func skipped(msg string) storeResult { return storeResult{status: models.SyncStatusSkipped, message: msg} }
func failed(err error) storeResult {
	return storeResult{status: models.SyncStatusFailed, message: "sync failed", err: err}
}

// RunUserSync snapshots account-level statistics for every CONNECTED store.
func (o *Orchestrator) RunUserSync(ctx context.Context) error {
	return o.runFleet(ctx, JobUserDaily, o.cfg.UserConcurrency, o.cfg.SyncLockTTL, o.syncUserStore)
}

// RunVideoSync snapshots per-video statistics for every CONNECTED store.
func (o *Orchestrator) RunVideoSync(ctx context.Context) error {
	return o.runFleet(ctx, JobVideoDaily, o.cfg.VideoConcurrency, o.cfg.SyncLockTTL, o.syncVideoStore)
}

// RunTokenRefresh proactively refreshes tokens expiring inside the horizon.
func (o *Orchestrator) RunTokenRefresh(ctx context.Context) error {
	return o.runFleet(ctx, JobRefreshTokens, o.cfg.RefreshConcurrency, o.cfg.RefreshLockTTL, o.refreshStore)
}

// StoreRunResult is one job outcome from a manual single-store run.
type StoreRunResult struct {
	Job     string            `json:"job"`
	Status  models.SyncStatus `json:"status"`
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"`
}

// storeStep pairs a job name with its lock TTL and work function.
type storeStep struct {
	job string
	ttl time.Duration
	fn  storeFunc
}

// RunStore runs one job for a single store, bypassing the fleet listing but
// keeping the per-store lock and log discipline, and returns the outcome of
// each step. job "all" runs the user sync then the video sync; token
// refresh happens implicitly when the access token is near expiry.
func (o *Orchestrator) RunStore(ctx context.Context, storeID, job string) ([]StoreRunResult, error) {
	acc, err := o.db.GetStoreAccount(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("store %s is not connected", storeID)
	}

	user := storeStep{JobUserDaily, o.cfg.SyncLockTTL, o.syncUserStore}
	video := storeStep{JobVideoDaily, o.cfg.SyncLockTTL, o.syncVideoStore}
	refresh := storeStep{JobRefreshTokens, o.cfg.RefreshLockTTL, o.refreshStore}

	var steps []storeStep
	switch job {
	case "user":
		steps = []storeStep{user}
	case "video":
		steps = []storeStep{video}
	case "refresh_tokens":
		steps = []storeStep{refresh}
	case "all":
		steps = []storeStep{user, video}
	default:
		return nil, fmt.Errorf("unknown job %q", job)
	}

	date := o.snapshotDate(o.now().UTC())
	out := make([]StoreRunResult, 0, len(steps))
	for _, step := range steps {
		res := o.syncOne(ctx, step.job, *acc, step.ttl, date, step.fn)
		r := StoreRunResult{Job: step.job, Status: res.status, Message: res.message}
		if res.err != nil {
			r.Error = res.err.Error()
		}
		out = append(out, r)
	}
	return out, nil
}

// Running reports the jobs currently in flight.
func (o *Orchestrator) Running() []string {
	return o.inflight.list()
}

// JobStatus describes one scheduled job for the admin status endpoint.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
	Running  bool      `json:"running"`
}

// JobStatuses reports each job's cron schedule, its next fire time in the
// configured timezone, and whether it is currently in flight.
func (o *Orchestrator) JobStatuses() []JobStatus {
	loc := time.UTC
	if o.cfg.Timezone != "" {
		if l, err := time.LoadLocation(o.cfg.Timezone); err == nil {
			loc = l
		}
	}
	now := o.now()

	specs := []struct{ name, expr string }{
		{JobRefreshTokens, o.cfg.CronRefreshTokens},
		{JobUserDaily, o.cfg.CronUserDaily},
		{JobVideoDaily, o.cfg.CronVideoDaily},
	}
	out := make([]JobStatus, 0, len(specs))
	for _, spec := range specs {
		js := JobStatus{Name: spec.name, Schedule: spec.expr, Running: o.inflight.has(spec.name)}
		if sched, err := ParseSchedule(spec.expr); err == nil {
			js.NextRun = sched.Next(now, loc)
		}
		out = append(out, js)
	}
	return out
}

type storeFunc func(ctx context.Context, acc models.StoreAccount, date time.Time) storeResult

// runFleet is the shared fan-out skeleton: one run-level log entry, a
// bounded worker group, a per-store lock, and progress logging.
func (o *Orchestrator) runFleet(ctx context.Context, job string, concurrency int, lockTTL time.Duration, fn storeFunc) error {
	if !o.inflight.tryAdd(job) {
		return fmt.Errorf("%w: %s", ErrJobRunning, job)
	}
	defer o.inflight.remove(job)

	start := o.now().UTC()
	date := o.snapshotDate(start)

	accounts, err := o.listTargets(ctx, job)
	if err != nil {
		return fmt.Errorf("list sync targets: %w", err)
	}

	runID, err := o.db.InsertSyncLog(ctx, &models.SyncLogEntry{
		JobName:   job,
		Status:    models.SyncStatusRunning,
		Message:   fmt.Sprintf("%d stores", len(accounts)),
		StartedAt: start,
	})
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}

	logging.Info().
		Str("job", job).
		Int("stores", len(accounts)).
		Time("snapshot_date", date).
		Msg("Sync run started")

	var processed, succeeded, failures, skips atomic.Int64
	total := int64(len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, acc := range accounts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := o.syncOne(gctx, job, acc, lockTTL, date, fn)

			switch res.status {
			case models.SyncStatusSuccess:
				succeeded.Add(1)
			case models.SyncStatusSkipped:
				skips.Add(1)
			default:
				failures.Add(1)
			}
			o.logProgress(job, processed.Add(1), total)
			// Store-level failures are isolated; never poison the group.
			return nil
		})
	}
	_ = g.Wait()

	duration := o.now().UTC().Sub(start)
	summary := fmt.Sprintf("%d succeeded, %d failed, %d skipped of %d",
		succeeded.Load(), failures.Load(), skips.Load(), total)

	status := models.SyncStatusSuccess
	if ctx.Err() != nil {
		status = models.SyncStatusSkipped
		summary = "cancelled: " + summary
	}

	if err := o.db.CompleteSyncLog(context.WithoutCancel(ctx), runID, status, summary, "", duration); err != nil {
		logging.Error().Err(err).Str("job", job).Msg("Failed to close run log")
	}

	metrics.SyncRunDuration.WithLabelValues(job).Observe(duration.Seconds())
	if status == models.SyncStatusSuccess {
		metrics.SyncLastSuccess.WithLabelValues(job).SetToCurrentTime()
	}

	logging.Info().
		Str("job", job).
		Str("status", string(status)).
		Str("summary", summary).
		Dur("duration", duration).
		Msg("Sync run finished")
	return ctx.Err()
}

// listTargets picks the account set a job operates on.
func (o *Orchestrator) listTargets(ctx context.Context, job string) ([]models.StoreAccount, error) {
	if job == JobRefreshTokens {
		cutoff := o.now().UTC().Add(o.cfg.RefreshHorizon)
		return o.db.ListAccountsExpiringBefore(ctx, cutoff)
	}
	return o.db.ListAccountsByStatus(ctx, models.StatusConnected)
}

// syncOne wraps one store's work with the lock and its log entry.
func (o *Orchestrator) syncOne(ctx context.Context, job string, acc models.StoreAccount, lockTTL time.Duration, date time.Time, fn storeFunc) storeResult {
	start := o.now().UTC()

	res := func() storeResult {
		lockKey := lockKeyPrefix + acc.StoreID
		got, err := o.db.AcquireLock(ctx, lockKey, lockTTL)
		if err != nil {
			return failed(fmt.Errorf("acquire lock: %w", err))
		}
		if !got {
			return skipped("locked by another run")
		}
		defer o.db.ReleaseLock(context.WithoutCancel(ctx), lockKey)

		return fn(ctx, acc, date)
	}()

	metrics.SyncStoreOutcomes.WithLabelValues(job, string(res.status)).Inc()

	entry := &models.SyncLogEntry{
		StoreID:   acc.StoreID,
		JobName:   job,
		Status:    res.status,
		Message:   res.message,
		StartedAt: start,
	}
	completed := o.now().UTC()
	entry.CompletedAt = &completed
	entry.DurationMS = completed.Sub(start).Milliseconds()
	if res.err != nil {
		entry.ErrorDetails = res.err.Error()
		logging.Error().Err(res.err).
			Str("store_id", acc.StoreID).
			Str("job", job).
			Msg("Store sync failed")
	}

	if _, err := o.db.InsertSyncLog(context.WithoutCancel(ctx), entry); err != nil {
		logging.Error().Err(err).
			Str("store_id", acc.StoreID).
			Str("job", job).
			Msg("Failed to write store sync log")
	}
	return res
}

func (o *Orchestrator) syncUserStore(ctx context.Context, acc models.StoreAccount, date time.Time) storeResult {
	token, err := o.tokens.GetValidAccessToken(ctx, acc.StoreID)
	if err != nil {
		return failed(err)
	}
	if token == "" {
		return skipped("no valid token")
	}

	stats, err := o.client.GetUserInfo(ctx, token)
	if err != nil {
		return o.platformFailure(ctx, acc.StoreID, err)
	}

	err = o.db.UpsertUserDaily(ctx, &models.UserDailySnapshot{
		StoreID:        acc.StoreID,
		OpenID:         stats.OpenID,
		SnapshotDate:   date,
		DisplayName:    stats.DisplayName,
		AvatarURL:      stats.AvatarURL,
		FollowerCount:  stats.FollowerCount,
		FollowingCount: stats.FollowingCount,
		LikesCount:     stats.LikesCount,
		VideoCount:     stats.VideoCount,
	})
	if err != nil {
		return failed(err)
	}

	if err := o.tokens.UpdateLastSync(ctx, acc.StoreID); err != nil {
		logging.Warn().Err(err).Str("store_id", acc.StoreID).Msg("Failed to stamp last sync")
	}
	return success(fmt.Sprintf("followers=%d videos=%d", stats.FollowerCount, stats.VideoCount))
}

func (o *Orchestrator) syncVideoStore(ctx context.Context, acc models.StoreAccount, date time.Time) storeResult {
	token, err := o.tokens.GetValidAccessToken(ctx, acc.StoreID)
	if err != nil {
		return failed(err)
	}
	if token == "" {
		return skipped("no valid token")
	}

	videos, err := o.client.FetchAllVideos(ctx, token, o.cfg.MaxVideosPerStore, nil)
	if err != nil {
		return o.platformFailure(ctx, acc.StoreID, err)
	}

	snapshots := make([]models.VideoDailySnapshot, 0, len(videos))
	for _, v := range videos {
		snapshots = append(snapshots, models.VideoDailySnapshot{
			StoreID:        acc.StoreID,
			VideoID:        v.VideoID,
			SnapshotDate:   date,
			Description:    v.Description,
			CoverURL:       v.CoverURL,
			ShareURL:       v.ShareURL,
			VideoCreatedAt: v.CreatedAt,
			ViewCount:      v.ViewCount,
			LikeCount:      v.LikeCount,
			CommentCount:   v.CommentCount,
			ShareCount:     v.ShareCount,
		})
	}
	if err := o.db.UpsertVideoDailyBatch(ctx, snapshots); err != nil {
		return failed(err)
	}
	metrics.SyncVideosUpserted.Add(float64(len(snapshots)))

	if err := o.tokens.UpdateLastSync(ctx, acc.StoreID); err != nil {
		logging.Warn().Err(err).Str("store_id", acc.StoreID).Msg("Failed to stamp last sync")
	}
	return success(fmt.Sprintf("%d videos", len(snapshots)))
}

func (o *Orchestrator) refreshStore(ctx context.Context, acc models.StoreAccount, _ time.Time) storeResult {
	did, err := o.tokens.RefreshIfExpiring(ctx, acc.StoreID, o.cfg.RefreshHorizon)
	if err != nil {
		return failed(err)
	}
	if did {
		return success("token refreshed")
	}
	// Distinguish "not due" from a grant that died during the refresh.
	cur, err := o.db.GetStoreAccount(ctx, acc.StoreID)
	if err == nil && (cur == nil || cur.Status != models.StatusConnected) {
		return skipped("no valid token")
	}
	return skipped("token not due for refresh")
}

// platformFailure routes a platform client error: a dead access token moves
// the account to NEED_RECONNECT and skips the store, everything else fails
// it.
func (o *Orchestrator) platformFailure(ctx context.Context, storeID string, err error) storeResult {
	if !platform.IsAuthError(err) {
		return failed(err)
	}
	if uerr := o.db.UpdateAccountStatus(ctx, storeID, models.StatusNeedReconnect); uerr != nil {
		logging.Error().Err(uerr).
			Str("store_id", storeID).
			Msg("Failed to record account status transition")
	} else {
		logging.Warn().Err(err).
			Str("store_id", storeID).
			Msg("Access token rejected by platform; store needs reconnect")
	}
	return skipped("no valid token")
}

// snapshotDate is the UTC midnight the run's rows are keyed under. DayOffset
// shifts the reference instant before truncation so runs just past midnight
// can be attributed to the previous day.
func (o *Orchestrator) snapshotDate(start time.Time) time.Time {
	t := start.UTC().Add(o.cfg.DayOffset)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// logProgress emits a progress line whenever the run crosses a 10% step.
func (o *Orchestrator) logProgress(job string, processed, total int64) {
	if total == 0 {
		return
	}
	pct := processed * 100 / total
	prevPct := (processed - 1) * 100 / total
	if pct/10 == prevPct/10 && processed != total {
		return
	}
	logging.Info().
		Str("job", job).
		Int64("processed", processed).
		Int64("total", total).
		Int64("percent", pct).
		Msg("Sync progress")
}
