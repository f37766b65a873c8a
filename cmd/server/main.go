// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package main is the storepulse server entry point.
//
// Storepulse connects merchant stores to a video platform via OAuth, keeps
// their tokens fresh, and snapshots account- and video-level statistics into
// DuckDB on nightly cron schedules. The process runs three supervised
// services: the HTTP surface (connect flow plus admin API), the sync
// scheduler, and a maintenance sweeper.
//
// Configuration is loaded via koanf with layered sources (highest wins):
// environment variables, an optional YAML file, and built-in defaults. The
// two required settings are TOKEN_ENC_KEY (64 hex chars) and the platform
// client credentials; see config.yaml.example for the full surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/storepulse/storepulse/internal/api"
	"github.com/storepulse/storepulse/internal/config"
	"github.com/storepulse/storepulse/internal/crypto"
	"github.com/storepulse/storepulse/internal/database"
	"github.com/storepulse/storepulse/internal/logging"
	"github.com/storepulse/storepulse/internal/oauth"
	"github.com/storepulse/storepulse/internal/platform"
	"github.com/storepulse/storepulse/internal/retry"
	"github.com/storepulse/storepulse/internal/supervisor"
	syncpkg "github.com/storepulse/storepulse/internal/sync"
	"github.com/storepulse/storepulse/internal/tokens"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("sync_enabled", cfg.Sync.Enabled).
		Msg("Starting storepulse")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Warn().Err(err).Msg("Database close failed")
		}
	}()

	vault, err := crypto.NewVault(cfg.Security.TokenEncKey)
	if err != nil {
		return fmt.Errorf("init token vault: %w", err)
	}

	flow, err := oauth.NewFlow(&cfg.Platform, cfg.StateSecretBytes(), db)
	if err != nil {
		return fmt.Errorf("init oauth flow: %w", err)
	}

	tokenStore := tokens.NewStore(db, vault, flow)
	pacer := retry.NewPacer(cfg.RateLimit.RequestsPerSecond)
	client := platform.NewClient(&cfg.Platform, pacer)
	orch := syncpkg.NewOrchestrator(db, tokenStore, client, &cfg.Sync)

	handlers := api.NewHandlers(cfg, db, flow, tokenStore, orch)
	httpServer := api.NewServer(&cfg.Server, api.NewRouter(handlers))

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.Config{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.Add(httpServer)
	tree.Add(syncpkg.NewSweeper(db, 0))

	if cfg.Sync.Enabled {
		scheduler, err := syncpkg.NewScheduler(&cfg.Sync, orch)
		if err != nil {
			return fmt.Errorf("init sync scheduler: %w", err)
		}
		tree.Add(scheduler)
	} else {
		logging.Warn().Msg("Scheduled sync is disabled; jobs run only via the admin API")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
