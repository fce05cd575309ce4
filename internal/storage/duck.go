// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/heliowatch/heliowatch/internal/health"
	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/models"
)

// DuckConfig holds the durable backend configuration.
type DuckConfig struct {
	// Path is the database file location. Empty path means the durable
	// backend is disabled and the delegator runs memory-only.
	Path string `koanf:"path"`

	// MaxMemory bounds DuckDB's memory usage (e.g. "512MB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// DuckStore is the durable persistence backend on DuckDB.
//
// DuckDB runs in-process over a single file, which fits the single-node
// deployment model: no server to operate, columnar storage for the
// reading history, and standard database/sql semantics on top.
type DuckStore struct {
	conn *sql.DB
	cfg  *DuckConfig
}

var _ Store = (*DuckStore)(nil)

// NewDuckStore opens the database file and initializes the schema.
func NewDuckStore(cfg *DuckConfig) (*DuckStore, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "512MB"
	}

	// Ensure the parent directory exists for the database file.
	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301.
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	// Disable auto-install/auto-load of extensions to prevent hangs in
	// restricted network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// DuckDB is embedded; a small pool avoids write contention on the file.
	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(0)

	db := &DuckStore{conn: conn, cfg: cfg}
	if err := db.createTables(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// createTables creates the Heliowatch schema when absent.
func (db *DuckStore) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS panels (
			id VARCHAR PRIMARY KEY,
			panel_number INTEGER NOT NULL UNIQUE,
			location VARCHAR NOT NULL,
			install_date TIMESTAMP NOT NULL,
			health_score DOUBLE NOT NULL DEFAULT 100,
			status VARCHAR NOT NULL DEFAULT 'active',
			last_maintenance TIMESTAMP,
			notes VARCHAR,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sensor_readings (
			id VARCHAR PRIMARY KEY,
			panel_id VARCHAR NOT NULL,
			ts TIMESTAMP NOT NULL,
			energy_output DOUBLE NOT NULL,
			sunlight_intensity DOUBLE NOT NULL,
			temperature DOUBLE NOT NULL,
			dust_level DOUBLE NOT NULL,
			tilt_angle DOUBLE NOT NULL,
			voltage DOUBLE NOT NULL,
			efficiency_percent DOUBLE NOT NULL,
			current_ma DOUBLE,
			power_mw DOUBLE,
			overload BOOLEAN,
			sweep_enabled BOOLEAN,
			auto_mode BOOLEAN,
			cleaning_done BOOLEAN,
			dust_status VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS predictions (
			id VARCHAR PRIMARY KEY,
			panel_id VARCHAR,
			created_at TIMESTAMP NOT NULL,
			predicted_for TIMESTAMP NOT NULL,
			predicted_efficiency DOUBLE NOT NULL,
			degradation_risk VARCHAR NOT NULL,
			confidence DOUBLE NOT NULL,
			factors VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS recommendations (
			id VARCHAR PRIMARY KEY,
			panel_id VARCHAR,
			created_at TIMESTAMP NOT NULL,
			title VARCHAR NOT NULL,
			description VARCHAR NOT NULL,
			category VARCHAR NOT NULL,
			urgency VARCHAR NOT NULL,
			impact_score DOUBLE NOT NULL,
			explanation VARCHAR NOT NULL,
			implemented BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id VARCHAR PRIMARY KEY,
			panel_id VARCHAR,
			severity VARCHAR NOT NULL,
			category VARCHAR NOT NULL,
			title VARCHAR NOT NULL,
			message VARCHAR NOT NULL,
			details VARCHAR,
			created_at TIMESTAMP NOT NULL,
			dismissed BOOLEAN NOT NULL DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS system_health (
			id VARCHAR PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			sensor_online BOOLEAN NOT NULL,
			uptime_seconds DOUBLE NOT NULL,
			data_quality DOUBLE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS auto_tilt_settings (
			id INTEGER PRIMARY KEY,
			enabled BOOLEAN NOT NULL,
			mode VARCHAR NOT NULL,
			min_angle DOUBLE NOT NULL,
			max_angle DOUBLE NOT NULL,
			adjustment_interval INTEGER NOT NULL,
			use_weather_data BOOLEAN NOT NULL,
			aggressiveness INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_panel_ts ON sensor_readings (panel_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts (created_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// HealthBreakdown computes the health score decomposition for a reading.
func (db *DuckStore) HealthBreakdown(reading *models.SensorReading) models.HealthBreakdown {
	return health.Score(reading)
}

// Ping checks if the database connection is alive.
func (db *DuckStore) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Close checkpoints the WAL and closes the database connection.
func (db *DuckStore) Close() error {
	if db.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	return db.conn.Close()
}
