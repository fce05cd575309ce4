// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package recommend generates maintenance recommendations and efficiency
// predictions from recent sensor history. The rules are deliberately
// explainable: every recommendation carries the reasoning that produced
// it, so an operator can judge whether to act.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/heliowatch/heliowatch/internal/eventbus"
	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/metrics"
	"github.com/heliowatch/heliowatch/internal/models"
	"github.com/heliowatch/heliowatch/internal/storage"
)

// Config tunes the recommendation engine.
type Config struct {
	// Interval between evaluation sweeps.
	Interval time.Duration `koanf:"interval"`
	// HistoryHours is how much reading history each sweep considers.
	HistoryHours int `koanf:"history_hours"`
	// PredictionHorizon is how far ahead efficiency is projected.
	PredictionHorizon time.Duration `koanf:"prediction_horizon"`
	// DustCleaningLevel triggers a cleaning recommendation.
	DustCleaningLevel float64 `koanf:"dust_cleaning_level"`
	// LowHealthScore triggers a maintenance recommendation.
	LowHealthScore float64 `koanf:"low_health_score"`
	// TiltDriftDegrees triggers a tilt adjustment recommendation when
	// the panel sits this far from the seasonal optimum.
	TiltDriftDegrees float64 `koanf:"tilt_drift_degrees"`
}

// DefaultConfig returns the production sweep settings.
func DefaultConfig() Config {
	return Config{
		Interval:          5 * time.Minute,
		HistoryHours:      24,
		PredictionHorizon: 24 * time.Hour,
		DustCleaningLevel: 5,
		LowHealthScore:    55,
		TiltDriftDegrees:  12,
	}
}

// Engine periodically sweeps the farm and writes recommendations and
// predictions. It implements suture.Service.
type Engine struct {
	cfg   Config
	store storage.Store
	bus   *eventbus.Bus

	now func() time.Time
}

// NewEngine builds the engine.
func NewEngine(cfg Config, store storage.Store, bus *eventbus.Bus) *Engine {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.HistoryHours <= 0 {
		cfg.HistoryHours = def.HistoryHours
	}
	if cfg.PredictionHorizon <= 0 {
		cfg.PredictionHorizon = def.PredictionHorizon
	}
	if cfg.DustCleaningLevel <= 0 {
		cfg.DustCleaningLevel = def.DustCleaningLevel
	}
	if cfg.LowHealthScore <= 0 {
		cfg.LowHealthScore = def.LowHealthScore
	}
	if cfg.TiltDriftDegrees <= 0 {
		cfg.TiltDriftDegrees = def.TiltDriftDegrees
	}
	return &Engine{cfg: cfg, store: store, bus: bus, now: time.Now}
}

// Serve runs evaluation sweeps until ctx is cancelled.
func (e *Engine) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", e.cfg.Interval).
		Int("history_hours", e.cfg.HistoryHours).
		Msg("recommendation engine started")

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("recommendation engine stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep evaluates every panel once.
func (e *Engine) Sweep(ctx context.Context) {
	panels, err := e.store.ListPanels(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("recommendation sweep failed to list panels")
		return
	}

	var generated, predicted int
	for i := range panels {
		panel := &panels[i]

		history, err := e.store.PanelReadingsSince(ctx, panel.ID, e.cfg.HistoryHours)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			logging.Warn().Err(err).Int("panel_number", panel.PanelNumber).Msg("sweep skipped panel")
			continue
		}

		generated += e.evaluatePanel(ctx, panel, history)

		if p := PredictEfficiency(panel, history, e.cfg.PredictionHorizon); p != nil {
			if err := e.store.CreatePrediction(ctx, p); err != nil {
				logging.Warn().Err(err).Int("panel_number", panel.PanelNumber).Msg("failed to persist prediction")
			} else {
				predicted++
			}
		}
	}

	logging.Debug().
		Int("panels", len(panels)).
		Int("recommendations", generated).
		Int("predictions", predicted).
		Msg("recommendation sweep complete")
}

// evaluatePanel applies the rule set to one panel and persists whatever
// fires. Returns the number of recommendations created.
func (e *Engine) evaluatePanel(ctx context.Context, panel *models.Panel, history []models.SensorReading) int {
	if len(history) == 0 {
		return 0
	}
	latest := history[len(history)-1]

	existing, err := e.store.ListRecommendations(ctx, &panel.ID)
	if err != nil {
		logging.Warn().Err(err).Int("panel_number", panel.PanelNumber).Msg("could not load existing recommendations")
		return 0
	}
	open := make(map[models.RecommendationCategory]bool)
	for i := range existing {
		if !existing[i].Implemented {
			open[existing[i].Category] = true
		}
	}

	var count int
	for _, rec := range e.candidates(panel, &latest, history) {
		// One open recommendation per category per panel.
		if open[rec.Category] {
			continue
		}
		panelID := panel.ID
		rec.PanelID = &panelID
		if err := e.store.CreateRecommendation(ctx, rec); err != nil {
			logging.Warn().Err(err).Int("panel_number", panel.PanelNumber).Msg("failed to persist recommendation")
			continue
		}
		metrics.RecordRecommendation(string(rec.Category), string(rec.Urgency))
		if err := e.bus.PublishJSON(ctx, eventbus.TopicRecommendations, rec); err != nil {
			logging.Warn().Err(err).Msg("failed to publish recommendation")
		} else {
			metrics.RecordBusPublish(eventbus.TopicRecommendations)
		}
		open[rec.Category] = true
		count++
	}
	return count
}

// candidates produces the recommendations the rule set would raise for
// the panel's current state.
func (e *Engine) candidates(panel *models.Panel, latest *models.SensorReading, history []models.SensorReading) []*models.Recommendation {
	var out []*models.Recommendation

	if latest.DustLevel >= e.cfg.DustCleaningLevel {
		urgency := models.UrgencyMedium
		if latest.DustLevel >= 8 {
			urgency = models.UrgencyHigh
		}
		// Each dust point costs 3 score points; scale impact with level.
		impact := math.Min(100, latest.DustLevel*9)
		out = append(out, &models.Recommendation{
			Title:       fmt.Sprintf("Clean panel %d", panel.PanelNumber),
			Description: "Schedule a cleaning pass for this panel",
			Category:    models.RecommendationCleaning,
			Urgency:     urgency,
			ImpactScore: math.Round(impact),
			Explanation: fmt.Sprintf("Dust level %.1f/10 is above the cleaning threshold of %.1f; accumulated dust directly reduces output",
				latest.DustLevel, e.cfg.DustCleaningLevel),
		})
	}

	if panel.HealthScore > 0 && panel.HealthScore <= e.cfg.LowHealthScore {
		out = append(out, &models.Recommendation{
			Title:       fmt.Sprintf("Inspect panel %d", panel.PanelNumber),
			Description: "Dispatch a technician for on-site inspection",
			Category:    models.RecommendationMaintenance,
			Urgency:     models.UrgencyHigh,
			ImpactScore: math.Round(100 - panel.HealthScore),
			Explanation: fmt.Sprintf("Health score %.0f is at or below the inspection floor of %.0f",
				panel.HealthScore, e.cfg.LowHealthScore),
		})
	}

	if drift := tiltDrift(latest.TiltAngle, e.now().UTC()); drift >= e.cfg.TiltDriftDegrees {
		out = append(out, &models.Recommendation{
			Title:       fmt.Sprintf("Adjust tilt on panel %d", panel.PanelNumber),
			Description: "Re-aim the panel toward the seasonal optimum",
			Category:    models.RecommendationTiltAdjustment,
			Urgency:     models.UrgencyLow,
			ImpactScore: math.Round(math.Min(100, drift*2)),
			Explanation: fmt.Sprintf("Tilt angle %.0f° is %.0f° off the seasonal optimum of %.0f°",
				latest.TiltAngle, drift, seasonalOptimalTilt(e.now().UTC())),
		})
	}

	if rec := e.trendRecommendation(panel, history); rec != nil {
		out = append(out, rec)
	}

	return out
}

// trendRecommendation flags panels whose daylight efficiency is sliding
// even though nothing else looks wrong yet.
func (e *Engine) trendRecommendation(panel *models.Panel, history []models.SensorReading) *models.Recommendation {
	p := PredictEfficiency(panel, history, e.cfg.PredictionHorizon)
	if p == nil || p.DegradationRisk == models.RiskLow {
		return nil
	}
	urgency := models.UrgencyMedium
	if p.DegradationRisk == models.RiskHigh {
		urgency = models.UrgencyHigh
	}
	return &models.Recommendation{
		Title:       fmt.Sprintf("Investigate output decline on panel %d", panel.PanelNumber),
		Description: "Efficiency is trending downward; check wiring, shading, and inverter output",
		Category:    models.RecommendationOptimization,
		Urgency:     urgency,
		ImpactScore: math.Round(math.Min(100, (100-p.PredictedEfficiency)*0.8)),
		Explanation: fmt.Sprintf("Projected efficiency %.1f%% within %s (confidence %.0f%%), declining %.3f points per hour",
			p.PredictedEfficiency, e.cfg.PredictionHorizon, p.Confidence*100, -p.Factors["slope_pct_per_hour"]),
	}
}

// seasonalOptimalTilt approximates the best fixed tilt for the month:
// steeper in winter, flatter in summer.
func seasonalOptimalTilt(now time.Time) float64 {
	// Cosine over the year, peaking in December (northern hemisphere
	// farm): 20° midsummer to 50° midwinter.
	month := float64(now.Month())
	return 35 + 15*math.Cos((month-0.5)/12*2*math.Pi)
}

func tiltDrift(angle float64, now time.Time) float64 {
	return math.Abs(angle - seasonalOptimalTilt(now))
}
