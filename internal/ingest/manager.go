// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package ingest drives the periodic sensor collection cycle. On every
// tick the manager samples all panels, persists the readings, publishes
// the batch on the event bus, and pushes a farm-level aggregate to the
// dashboard feed. Cycles never overlap: if a tick fires while the
// previous cycle is still running, the tick is skipped and counted.
package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heliowatch/heliowatch/internal/eventbus"
	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/metrics"
	"github.com/heliowatch/heliowatch/internal/models"
	"github.com/heliowatch/heliowatch/internal/sensor"
	"github.com/heliowatch/heliowatch/internal/storage"
	"github.com/heliowatch/heliowatch/internal/websocket"
)

// Config tunes the ingest loop.
type Config struct {
	// Interval between collection cycles.
	Interval time.Duration `koanf:"interval"`
	// PanelConcurrency caps concurrent per-panel persists.
	PanelConcurrency int `koanf:"panel_concurrency"`
	// SummarySampleSize is how many readings ride along with the
	// aggregated dashboard update.
	SummarySampleSize int `koanf:"summary_sample_size"`
	// SystemHealthEvery writes a system health snapshot every N cycles.
	SystemHealthEvery int `koanf:"system_health_every"`
}

// DefaultConfig returns loop defaults for a 200-panel farm.
func DefaultConfig() Config {
	return Config{
		Interval:          5 * time.Second,
		PanelConcurrency:  16,
		SummarySampleSize: 10,
		SystemHealthEvery: 12,
	}
}

// Manager owns the collection cycle. It implements suture.Service.
type Manager struct {
	cfg   Config
	store storage.Store
	sim   *sensor.Simulator
	bus   *eventbus.Bus
	hub   *websocket.Hub

	running   atomic.Bool
	cycles    atomic.Int64
	skipped   atomic.Int64
	startedAt time.Time
}

// NewManager wires the loop. hub may be nil when no dashboard feed is
// attached (tests); bus must not be nil.
func NewManager(cfg Config, store storage.Store, sim *sensor.Simulator, bus *eventbus.Bus, hub *websocket.Hub) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.PanelConcurrency <= 0 {
		cfg.PanelConcurrency = DefaultConfig().PanelConcurrency
	}
	if cfg.SummarySampleSize <= 0 {
		cfg.SummarySampleSize = DefaultConfig().SummarySampleSize
	}
	if cfg.SystemHealthEvery <= 0 {
		cfg.SystemHealthEvery = DefaultConfig().SystemHealthEvery
	}
	return &Manager{
		cfg:   cfg,
		store: store,
		sim:   sim,
		bus:   bus,
		hub:   hub,
	}
}

// Serve runs the collection loop until ctx is cancelled.
func (m *Manager) Serve(ctx context.Context) error {
	m.startedAt = time.Now().UTC()
	logging.Info().
		Dur("interval", m.cfg.Interval).
		Int("panel_concurrency", m.cfg.PanelConcurrency).
		Msg("ingest loop started")

	// Prime the dashboard before the first tick.
	m.Collect(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().
				Int64("cycles", m.cycles.Load()).
				Int64("skipped", m.skipped.Load()).
				Msg("ingest loop stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Collect(ctx)
		}
	}
}

// Collect runs one collection cycle. It returns immediately if a cycle
// is already in flight.
func (m *Manager) Collect(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		m.skipped.Add(1)
		metrics.RecordIngestSkip()
		logging.Warn().Msg("collection cycle still running, tick skipped")
		return
	}
	defer m.running.Store(false)

	start := time.Now()

	panels, err := m.store.ListPanels(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("collection cycle failed to list panels")
		return
	}

	readings := m.sampleAndPersist(ctx, panels)
	metrics.RecordIngestCycle(time.Since(start), len(readings))

	if len(readings) > 0 {
		if err := m.bus.PublishJSON(ctx, eventbus.TopicReadings, readings); err != nil {
			logging.Error().Err(err).Msg("failed to publish readings batch")
		} else {
			metrics.RecordBusPublish(eventbus.TopicReadings)
		}
	}

	summary := m.buildSummary(ctx, panels, readings)
	if m.hub != nil {
		m.hub.BroadcastAggregatedUpdate(summary)
	}

	cycle := m.cycles.Add(1)
	if cycle%int64(m.cfg.SystemHealthEvery) == 0 {
		m.writeSystemHealth(ctx, len(panels), len(readings))
	}

	logging.Debug().
		Int("panels", len(panels)).
		Int("readings", len(readings)).
		Dur("duration", time.Since(start)).
		Msg("collection cycle complete")
}

// sampleAndPersist generates and stores one reading per panel. A panel
// that fails to persist is logged and skipped; the cycle continues.
func (m *Manager) sampleAndPersist(ctx context.Context, panels []models.Panel) []models.SensorReading {
	var (
		mu       sync.Mutex
		readings = make([]models.SensorReading, 0, len(panels))
		wg       sync.WaitGroup
		sem      = make(chan struct{}, m.cfg.PanelConcurrency)
	)

	for i := range panels {
		panel := panels[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			reading := m.sim.Reading(&panel)
			if err := m.store.CreateReading(ctx, &reading); err != nil {
				metrics.IngestPanelErrors.WithLabelValues("create_reading").Inc()
				logging.Error().
					Err(err).
					Int("panel_number", panel.PanelNumber).
					Str("panel_id", panel.ID.String()).
					Msg("failed to persist reading")
				return
			}
			mu.Lock()
			readings = append(readings, reading)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return readings
}

// buildSummary aggregates the cycle into a farm-level dashboard update.
func (m *Manager) buildSummary(ctx context.Context, panels []models.Panel, readings []models.SensorReading) *models.FarmSummary {
	summary := &models.FarmSummary{
		GeneratedAt: time.Now().UTC(),
		PanelCount:  len(panels),
	}

	var healthTotal float64
	for i := range panels {
		if panels[i].Status == models.PanelStatusActive {
			summary.ActivePanels++
		}
		healthTotal += panels[i].HealthScore
	}
	if len(panels) > 0 {
		summary.AverageHealth = healthTotal / float64(len(panels))
	}

	var effTotal float64
	for i := range readings {
		summary.TotalEnergyW += readings[i].EnergyOutput
		effTotal += readings[i].EfficiencyPercent
	}
	if len(readings) > 0 {
		summary.AverageEfficiency = effTotal / float64(len(readings))
	}

	if alerts, err := m.store.ListActiveAlerts(ctx); err == nil {
		summary.ActiveAlerts = len(alerts)
	} else {
		logging.Warn().Err(err).Msg("summary skipped active alert count")
	}

	n := m.cfg.SummarySampleSize
	if n > len(readings) {
		n = len(readings)
	}
	summary.SampleReadings = readings[:n]

	return summary
}

// writeSystemHealth persists a periodic health snapshot.
func (m *Manager) writeSystemHealth(ctx context.Context, panels, persisted int) {
	quality := 100.0
	if panels > 0 {
		quality = 100.0 * float64(persisted) / float64(panels)
	}
	sh := &models.SystemHealth{
		SensorOnline:  persisted > 0,
		UptimeSeconds: time.Since(m.startedAt).Seconds(),
		DataQuality:   quality,
	}
	if err := m.store.CreateSystemHealth(ctx, sh); err != nil {
		logging.Warn().Err(err).Msg("failed to write system health snapshot")
	}
}

// Cycles returns the number of completed collection cycles.
func (m *Manager) Cycles() int64 {
	return m.cycles.Load()
}

// Skipped returns the number of ticks dropped by the overlap guard.
func (m *Manager) Skipped() int64 {
	return m.skipped.Load()
}
