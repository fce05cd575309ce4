// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package main is the entry point for the Heliowatch server.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, optional YAML, HELIOWATCH_* env)
//  2. Logging (zerolog)
//  3. Storage: DuckDB behind the failover store; if the database cannot
//     be opened at all the server starts memory-only
//  4. Farm seeding: the fixed panel set is created when storage is empty
//  5. Event bus, websocket hub, ingest, detection, recommendations
//  6. Supervisor tree and HTTP server
//
// SIGINT/SIGTERM trigger a graceful shutdown: the tree stops its
// services, the HTTP server drains for the configured timeout, and
// storage is closed last.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heliowatch/heliowatch/internal/api"
	"github.com/heliowatch/heliowatch/internal/config"
	"github.com/heliowatch/heliowatch/internal/detection"
	"github.com/heliowatch/heliowatch/internal/eventbus"
	"github.com/heliowatch/heliowatch/internal/ingest"
	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/metrics"
	"github.com/heliowatch/heliowatch/internal/recommend"
	"github.com/heliowatch/heliowatch/internal/sensor"
	"github.com/heliowatch/heliowatch/internal/storage"
	"github.com/heliowatch/heliowatch/internal/supervisor"
	"github.com/heliowatch/heliowatch/internal/supervisor/services"
	"github.com/heliowatch/heliowatch/internal/weather"
	ws "github.com/heliowatch/heliowatch/internal/websocket"
)

// version is stamped by the build (-ldflags "-X main.version=...").
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Int("panels", cfg.Farm.PanelCount).
		Msg("Starting Heliowatch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: durable DuckDB with in-memory failover. A database that
	// cannot even be opened degrades to memory-only instead of refusing
	// to start; the dashboard stays up on live data.
	store := openStore(cfg)
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()

	if err := seedFarm(ctx, store, cfg.Farm); err != nil {
		logging.Fatal().Err(err).Msg("Failed to seed farm")
	}

	// Messaging components.
	bus := eventbus.New(cfg.Eventbus, eventbus.NewLoggerAdapter())
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	hub := ws.NewHub()
	bridge := ws.NewBridge(bus, hub)

	store.OnFailover(func(reason error) {
		metrics.SetFailoverState(int(store.State()))
		hub.BroadcastStorageFailover(reason.Error())
	})
	metrics.SetFailoverState(int(store.State()))

	sim := sensor.NewSimulator(cfg.Sensor)
	manager := ingest.NewManager(cfg.Ingest, store, sim, bus, hub)
	detector := detection.NewEngine(cfg.Detection, store, bus)
	recommender := recommend.NewEngine(cfg.Recommend, store, bus)
	weatherClient := weather.NewClient(cfg.Weather)

	// HTTP server.
	handler := api.NewHandler(store, store, hub, weatherClient, version)
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, cfg.Server.Router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Supervision tree.
	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddDataService(services.NewRunner("ingest-manager", manager.Serve))
	tree.AddMessagingService(services.NewRunner("websocket-hub", hub.RunWithContext))
	tree.AddMessagingService(services.NewRunner("websocket-bridge", bridge.RunWithContext))
	tree.AddMessagingService(services.NewRunner("detection-engine", detector.Serve))
	tree.AddMessagingService(services.NewRunner("recommend-engine", recommender.Serve))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the supervisor until it finishes shutting down.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Heliowatch stopped")
}

// openStore opens the durable store behind the failover facade, or a
// memory-only facade when no database path is configured or the
// database cannot be opened.
func openStore(cfg *config.Config) *storage.FailoverStore {
	if cfg.Database.Path == "" {
		logging.Info().Msg("No database path configured, running memory-only")
		return storage.NewMemoryOnlyStore(storage.NewMemoryStore())
	}
	duck, err := storage.NewDuckStore(&cfg.Database)
	if err != nil {
		logging.Warn().Err(err).
			Str("path", cfg.Database.Path).
			Msg("Durable store unavailable, running memory-only")
		return storage.NewMemoryOnlyStore(storage.NewMemoryStore())
	}
	logging.Info().Str("path", cfg.Database.Path).Msg("Durable store opened")
	return storage.NewFailoverStore(duck, storage.NewMemoryStore())
}

// startupProbeTimeout bounds startup storage calls so a hung database
// cannot stall boot.
const startupProbeTimeout = 30 * time.Second
