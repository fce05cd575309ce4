// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package detection evaluates sensor readings against threshold rules
// and raises alerts. The engine consumes reading batches from the event
// bus, so it sees exactly what the ingest loop persisted, and publishes
// every raised alert back onto the bus for the dashboard feed.
package detection

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/eventbus"
	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/metrics"
	"github.com/heliowatch/heliowatch/internal/models"
	"github.com/heliowatch/heliowatch/internal/storage"
)

// Config tunes the engine.
type Config struct {
	// Enabled turns the engine on.
	Enabled bool `koanf:"enabled"`
	// Cooldown suppresses repeat alerts of the same category for the
	// same panel within this window.
	Cooldown time.Duration `koanf:"cooldown"`
	// SilenceAfter raises a sensor_silence alert when a panel has not
	// reported for this long.
	SilenceAfter time.Duration `koanf:"silence_after"`
	// Thresholds configures the built-in rules.
	Thresholds Thresholds `koanf:"thresholds"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Cooldown:     10 * time.Minute,
		SilenceAfter: 2 * time.Minute,
		Thresholds:   DefaultThresholds(),
	}
}

// alertKey dedupes alerts per panel and category.
type alertKey struct {
	panelID  uuid.UUID
	category models.AlertCategory
}

// Engine runs threshold detection over ingested readings.
// It implements suture.Service.
type Engine struct {
	cfg   Config
	store storage.Store
	bus   *eventbus.Bus
	rules []Rule

	mu        sync.Mutex
	lastAlert map[alertKey]time.Time
	lastSeen  map[uuid.UUID]time.Time

	now func() time.Time
}

// NewEngine builds the engine with the built-in rule set.
func NewEngine(cfg Config, store storage.Store, bus *eventbus.Bus) *Engine {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.SilenceAfter <= 0 {
		cfg.SilenceAfter = DefaultConfig().SilenceAfter
	}
	return &Engine{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		rules:     BuiltinRules(cfg.Thresholds),
		lastAlert: make(map[alertKey]time.Time),
		lastSeen:  make(map[uuid.UUID]time.Time),
		now:       time.Now,
	}
}

// Serve consumes reading batches until ctx is cancelled.
func (e *Engine) Serve(ctx context.Context) error {
	if !e.cfg.Enabled {
		logging.Info().Msg("detection engine disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ch, err := e.bus.Subscribe(ctx, eventbus.TopicReadings)
	if err != nil {
		return err
	}
	logging.Info().Int("rules", len(e.rules)).Msg("detection engine started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("detection engine stopped")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var batch []models.SensorReading
			if err := json.Unmarshal(msg.Payload, &batch); err != nil {
				logging.Warn().Err(err).Msg("detection dropped malformed readings batch")
				msg.Ack()
				continue
			}
			e.ProcessBatch(ctx, batch)
			msg.Ack()
		}
	}
}

// ProcessBatch evaluates one batch of readings against all rules and
// checks for silent panels.
func (e *Engine) ProcessBatch(ctx context.Context, batch []models.SensorReading) {
	now := e.now().UTC()
	for i := range batch {
		reading := &batch[i]

		e.mu.Lock()
		e.lastSeen[reading.PanelID] = now
		e.mu.Unlock()

		for _, rule := range e.rules {
			alert := rule.Evaluate(reading)
			if alert == nil {
				continue
			}
			panelID := reading.PanelID
			alert.PanelID = &panelID
			e.raise(ctx, alert)
		}
	}
	e.checkSilence(ctx, now)
}

// checkSilence raises sensor_silence alerts for panels that stopped
// reporting.
func (e *Engine) checkSilence(ctx context.Context, now time.Time) {
	e.mu.Lock()
	var silent []uuid.UUID
	for panelID, seen := range e.lastSeen {
		if now.Sub(seen) >= e.cfg.SilenceAfter {
			silent = append(silent, panelID)
		}
	}
	e.mu.Unlock()

	for _, panelID := range silent {
		id := panelID
		e.raise(ctx, &models.Alert{
			PanelID:  &id,
			Severity: models.AlertSeverityCritical,
			Category: models.AlertCategorySensorSilence,
			Title:    "Panel stopped reporting",
			Message:  "No sensor data received within the silence window; the unit may be offline",
		})
	}
}

// raise persists and publishes an alert unless a matching one fired
// inside the cooldown window.
func (e *Engine) raise(ctx context.Context, alert *models.Alert) {
	key := alertKey{category: alert.Category}
	if alert.PanelID != nil {
		key.panelID = *alert.PanelID
	}

	now := e.now().UTC()
	e.mu.Lock()
	if last, ok := e.lastAlert[key]; ok && now.Sub(last) < e.cfg.Cooldown {
		e.mu.Unlock()
		return
	}
	e.lastAlert[key] = now
	e.mu.Unlock()

	if err := e.store.CreateAlert(ctx, alert); err != nil {
		logging.Error().Err(err).Str("category", string(alert.Category)).Msg("failed to persist alert")
		return
	}
	metrics.RecordAlert(string(alert.Category), string(alert.Severity))

	if err := e.bus.PublishJSON(ctx, eventbus.TopicAlerts, alert); err != nil {
		logging.Warn().Err(err).Msg("failed to publish alert")
	} else {
		metrics.RecordBusPublish(eventbus.TopicAlerts)
	}

	logging.Info().
		Str("category", string(alert.Category)).
		Str("severity", string(alert.Severity)).
		Str("title", alert.Title).
		Msg("alert raised")
}
