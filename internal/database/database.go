// Storepulse - Multi-Tenant Content Metrics Aggregation
// Copyright 2026 Storepulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storepulse/storepulse

// Package database provides the DuckDB-backed storage layer: store accounts,
// OAuth pending state, distributed sync locks, daily snapshots, and sync
// logs. All write paths are upserts or inserts under unique constraints; the
// package never exposes raw SQL to callers.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/storepulse/storepulse/internal/config"
	"github.com/storepulse/storepulse/internal/logging"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens (or creates) the database file and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Parent directory must exist before DuckDB can create the file.
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dbDir, err)
		}
	}

	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "2GB"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	db.configurePool()

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return db, nil
}

func (db *DB) configurePool() {
	size := db.cfg.PoolSize
	if size <= 0 {
		size = 100
	}
	minIdle := db.cfg.PoolMin
	if minIdle <= 0 {
		minIdle = 20
	}
	db.conn.SetMaxOpenConns(size)
	db.conn.SetMaxIdleConns(minIdle)
	db.conn.SetConnMaxLifetime(time.Hour)
}

func (db *DB) initialize() error {
	if err := db.createTables(); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if err := db.createIndexes(); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close database connection")
	}
}

// isUniqueViolation reports whether err is a unique or primary key
// constraint violation. DuckDB surfaces these as constraint errors with a
// duplicate-key message rather than a typed error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		(strings.Contains(msg, "constraint") && strings.Contains(msg, "violat"))
}
