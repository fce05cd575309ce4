// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

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

// DefaultConfigPaths lists the paths searched for a config file, in
// priority order. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/heliowatch/config.yaml",
	"/etc/heliowatch/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "HELIOWATCH_CONFIG"

// EnvPrefix namespaces the environment variables read by Load.
const EnvPrefix = "HELIOWATCH_"

// Load builds the configuration from defaults, an optional YAML file,
// and HELIOWATCH_* environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
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

// findConfigFile returns the first existing config file path, preferring
// the env override, or empty string when none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		return ""
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sections are the top-level config groups an env var can address.
var sections = []string{
	"server",
	"farm",
	"database",
	"sensor",
	"ingest",
	"detection",
	"recommend",
	"eventbus",
	"weather",
	"logging",
}

// envTransformFunc maps environment variable names to koanf paths:
//
//	HELIOWATCH_SERVER_PORT              -> server.port
//	HELIOWATCH_DATABASE_MAX_MEMORY      -> database.max_memory
//	HELIOWATCH_DETECTION_THRESHOLDS_OVERHEAT_C -> detection.thresholds.overheat_c
//	HELIOWATCH_SERVER_ROUTER_RATE_LIMIT_REQUESTS -> server.router.rate_limit_requests
//
// Only the section (and the known nested groups "thresholds" and
// "router") become path separators; remaining underscores stay literal
// to match the koanf field tags.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))

	for _, section := range sections {
		if !strings.HasPrefix(key, section+"_") {
			continue
		}
		rest := strings.TrimPrefix(key, section+"_")
		for _, nested := range []string{"thresholds", "router"} {
			if strings.HasPrefix(rest, nested+"_") {
				return section + "." + nested + "." + strings.TrimPrefix(rest, nested+"_")
			}
		}
		return section + "." + rest
	}
	// Unrecognized variables are dropped rather than polluting the tree.
	return ""
}
