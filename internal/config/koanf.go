// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "STOREPULSE_CONFIG"

// DefaultConfigPaths are searched in order for an optional YAML file.
var DefaultConfigPaths = []string{
	"storepulse.yaml",
	"config/storepulse.yaml",
	"/etc/storepulse/storepulse.yaml",
}

// Load builds the configuration from three layers: struct defaults, an
// optional YAML file, then environment variables (highest priority).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists paths parsed as comma-separated slices when sourced
// from environment variables.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"platform.scopes",
	"platform.user_fields",
	"platform.video_fields",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to config paths.
//
// Examples:
//   - TOKEN_ENC_KEY        -> security.token_enc_key
//   - PLATFORM_CLIENT_KEY  -> platform.client_key
//   - SYNC_USER_CONCURRENCY -> sync.user_concurrency
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"http_host":        "server.host",
		"http_port":        "server.port",
		"shutdown_timeout": "server.shutdown_timeout",

		"log_level":  "log.level",
		"log_format": "log.format",
		"log_caller": "log.caller",

		"db_url":        "database.path",
		"db_path":       "database.path",
		"db_pool_size":  "database.pool_size",
		"db_pool_min":   "database.pool_min",
		"db_threads":    "database.threads",
		"db_max_memory": "database.max_memory",

		"platform_client_key":      "platform.client_key",
		"platform_client_secret":   "platform.client_secret",
		"platform_redirect_uri":    "platform.redirect_uri",
		"platform_api_base_url":    "platform.api_base_url",
		"platform_authorize_url":   "platform.authorize_url",
		"platform_token_url":       "platform.token_url",
		"platform_revoke_url":      "platform.revoke_url",
		"platform_request_timeout": "platform.request_timeout",
		"platform_scopes":          "platform.scopes",
		"platform_user_fields":     "platform.user_fields",
		"platform_video_fields":    "platform.video_fields",

		"token_enc_key": "security.token_enc_key",
		"state_secret":  "security.state_secret",
		"admin_api_key": "security.admin_api_key",
		"cors_origins":  "security.cors_origins",

		"sync_enabled":              "sync.enabled",
		"sync_timezone":             "sync.timezone",
		"sync_user_concurrency":     "sync.user_concurrency",
		"sync_video_concurrency":    "sync.video_concurrency",
		"sync_refresh_concurrency":  "sync.refresh_concurrency",
		"sync_cron_refresh_tokens":  "sync.cron_refresh_tokens",
		"sync_cron_user_daily":      "sync.cron_user_daily",
		"sync_cron_video_daily":     "sync.cron_video_daily",
		"sync_refresh_horizon":      "sync.refresh_horizon",
		"sync_lock_ttl":             "sync.sync_lock_ttl",
		"sync_refresh_lock_ttl":     "sync.refresh_lock_ttl",
		"sync_max_videos_per_store": "sync.max_videos_per_store",
		"sync_day_offset":           "sync.day_offset",

		"rate_limit_requests_per_second": "rate_limit.requests_per_second",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are dropped rather than guessed into paths.
	return ""
}
