// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package config loads and validates the application configuration from
// three layers: struct defaults, an optional YAML file, and environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/heliowatch/heliowatch/internal/api"
	"github.com/heliowatch/heliowatch/internal/detection"
	"github.com/heliowatch/heliowatch/internal/eventbus"
	"github.com/heliowatch/heliowatch/internal/ingest"
	"github.com/heliowatch/heliowatch/internal/recommend"
	"github.com/heliowatch/heliowatch/internal/sensor"
	"github.com/heliowatch/heliowatch/internal/storage"
	"github.com/heliowatch/heliowatch/internal/weather"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	Router api.RouterConfig `koanf:"router"`
}

// FarmConfig describes the fixed panel set seeded at startup.
type FarmConfig struct {
	// PanelCount is the number of panels created when storage is empty.
	PanelCount int `koanf:"panel_count"`
	// Location is the human-readable site name stamped on seeded panels.
	Location string `koanf:"location"`
}

// LoggingConfig mirrors the logging package settings in serializable form.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig       `koanf:"server"`
	Farm      FarmConfig         `koanf:"farm"`
	Database  storage.DuckConfig `koanf:"database"`
	Sensor    sensor.Config      `koanf:"sensor"`
	Ingest    ingest.Config      `koanf:"ingest"`
	Detection detection.Config   `koanf:"detection"`
	Recommend recommend.Config   `koanf:"recommend"`
	Eventbus  eventbus.Config    `koanf:"eventbus"`
	Weather   weather.Config     `koanf:"weather"`
	Logging   LoggingConfig      `koanf:"logging"`
}

// maxPanels bounds the farm size; the ingestion loop and storage layer
// are sized for this many panels per tick.
const maxPanels = 200

// defaultConfig returns the full default configuration. These values are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Router:          api.DefaultRouterConfig(),
		},
		Farm: FarmConfig{
			PanelCount: maxPanels,
			Location:   "Field A",
		},
		Database: storage.DuckConfig{
			Path:      "/data/heliowatch.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Sensor:    sensor.DefaultConfig(),
		Ingest:    ingest.DefaultConfig(),
		Detection: detection.DefaultConfig(),
		Recommend: recommend.DefaultConfig(),
		Eventbus:  eventbus.DefaultConfig(),
		Weather:   weather.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks cross-field constraints that koanf cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Farm.PanelCount < 1 || c.Farm.PanelCount > maxPanels {
		return fmt.Errorf("farm.panel_count %d out of range (1-%d)", c.Farm.PanelCount, maxPanels)
	}
	// Database.Path may be empty: the server then runs memory-only.
	if c.Ingest.Interval < time.Second {
		return fmt.Errorf("ingest.interval %s too short (minimum 1s)", c.Ingest.Interval)
	}
	if c.Detection.Thresholds.DustCriticalLevel < c.Detection.Thresholds.DustLevel {
		return fmt.Errorf("detection.thresholds.dust_critical_level must be >= dust_level")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", c.Logging.Format)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
