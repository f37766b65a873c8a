// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package config defines the process configuration and its layered loader.
// Precedence is environment variables over an optional YAML file over
// built-in defaults.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Config is the root configuration for the storepulse process.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Database  DatabaseConfig  `koanf:"database"`
	Platform  PlatformConfig  `koanf:"platform"`
	Security  SecurityConfig  `koanf:"security"`
	Sync      SyncConfig      `koanf:"sync"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	PoolSize  int    `koanf:"pool_size"`
	PoolMin   int    `koanf:"pool_min"`
	Threads   int    `koanf:"threads"`
	MaxMemory string `koanf:"max_memory"`
}

// PlatformConfig holds the external video platform credentials and client
// settings. RedirectURI must match the platform app registration exactly.
type PlatformConfig struct {
	ClientKey      string        `koanf:"client_key"`
	ClientSecret   string        `koanf:"client_secret"`
	RedirectURI    string        `koanf:"redirect_uri"`
	APIBaseURL     string        `koanf:"api_base_url"`
	AuthorizeURL   string        `koanf:"authorize_url"`
	TokenURL       string        `koanf:"token_url"`
	RevokeURL      string        `koanf:"revoke_url"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	Scopes         []string      `koanf:"scopes"`
	UserFields     []string      `koanf:"user_fields"`
	VideoFields    []string      `koanf:"video_fields"`
}

// SecurityConfig holds key material.
type SecurityConfig struct {
	// TokenEncKey is the AEAD key for tokens at rest, 64 hex chars.
	TokenEncKey string `koanf:"token_enc_key"`

	// StateSecret signs OAuth state; falls back to TokenEncKey when empty.
	StateSecret string `koanf:"state_secret"`

	// AdminAPIKey guards the /admin surface when set.
	AdminAPIKey string `koanf:"admin_api_key"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// SyncConfig holds scheduler and orchestrator settings.
type SyncConfig struct {
	Enabled            bool          `koanf:"enabled"`
	Timezone           string        `koanf:"timezone"`
	UserConcurrency    int           `koanf:"user_concurrency"`
	VideoConcurrency   int           `koanf:"video_concurrency"`
	RefreshConcurrency int           `koanf:"refresh_concurrency"`
	CronRefreshTokens  string        `koanf:"cron_refresh_tokens"`
	CronUserDaily      string        `koanf:"cron_user_daily"`
	CronVideoDaily     string        `koanf:"cron_video_daily"`
	RefreshHorizon     time.Duration `koanf:"refresh_horizon"`
	SyncLockTTL        time.Duration `koanf:"sync_lock_ttl"`
	RefreshLockTTL     time.Duration `koanf:"refresh_lock_ttl"`
	MaxVideosPerStore  int           `koanf:"max_videos_per_store"`
	DayOffset          time.Duration `koanf:"day_offset"`
}

// RateLimitConfig holds outbound pacing settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// defaultConfig returns built-in defaults; required credentials are left
// empty so Validate rejects an unconfigured process.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Path:      "data/storepulse.db",
			PoolSize:  100,
			PoolMin:   20,
			MaxMemory: "2GB",
		},
		Platform: PlatformConfig{
			APIBaseURL:     "https://open.tiktokapis.com/v2",
			AuthorizeURL:   "https://www.tiktok.com/v2/auth/authorize/",
			TokenURL:       "https://open.tiktokapis.com/v2/oauth/token/",
			RevokeURL:      "https://open.tiktokapis.com/v2/oauth/revoke/",
			RequestTimeout: 30 * time.Second,
			Scopes:         []string{"user.info.basic", "user.info.stats", "video.list"},
			UserFields: []string{
				"open_id", "display_name", "avatar_url",
				"follower_count", "following_count", "likes_count", "video_count",
			},
			VideoFields: []string{
				"id", "create_time", "video_description", "cover_image_url", "share_url",
				"view_count", "like_count", "comment_count", "share_count",
			},
		},
		Sync: SyncConfig{
			Enabled:            true,
			Timezone:           "UTC",
			UserConcurrency:    30,
			VideoConcurrency:   20,
			RefreshConcurrency: 10,
			CronRefreshTokens:  "0 1 * * *",
			CronUserDaily:      "0 2 * * *",
			CronVideoDaily:     "0 3 * * *",
			RefreshHorizon:     24 * time.Hour,
			SyncLockTTL:        600 * time.Second,
			RefreshLockTTL:     120 * time.Second,
			MaxVideosPerStore:  1000,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
		},
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error

	if c.Security.TokenEncKey == "" {
		errs = append(errs, errors.New("security.token_enc_key is required"))
	} else if raw, err := hex.DecodeString(c.Security.TokenEncKey); err != nil || len(raw) != 32 {
		errs = append(errs, errors.New("security.token_enc_key must be 64 hex characters"))
	}

	if c.Platform.ClientKey == "" {
		errs = append(errs, errors.New("platform.client_key is required"))
	}
	if c.Platform.ClientSecret == "" {
		errs = append(errs, errors.New("platform.client_secret is required"))
	}
	if c.Platform.RedirectURI == "" {
		errs = append(errs, errors.New("platform.redirect_uri is required"))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	if c.Sync.UserConcurrency < 1 || c.Sync.VideoConcurrency < 1 || c.Sync.RefreshConcurrency < 1 {
		errs = append(errs, errors.New("sync concurrency bounds must be >= 1"))
	}
	if c.Sync.Timezone != "" {
		if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("sync.timezone: %w", err))
		}
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_second must be > 0"))
	}

	if c.Database.PoolSize < c.Sync.UserConcurrency+c.Sync.VideoConcurrency+c.Sync.RefreshConcurrency {
		errs = append(errs, errors.New("database.pool_size must exceed the summed sync concurrencies"))
	}

	return errors.Join(errs...)
}

// StateSecretBytes returns the HMAC key for OAuth state, falling back to the
// token encryption key when no dedicated secret is configured.
func (c *Config) StateSecretBytes() []byte {
	if c.Security.StateSecret != "" {
		return []byte(c.Security.StateSecret)
	}
	return []byte(c.Security.TokenEncKey)
}
