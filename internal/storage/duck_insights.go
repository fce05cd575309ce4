// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/models"
)

func nullableUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func parseNullableUUID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, fmt.Errorf("invalid uuid %q: %w", s.String, err)
	}
	return &id, nil
}

// ListPredictions returns predictions newest first, optionally scoped to one
// panel. A limit of zero or less means no limit.
func (db *DuckStore) ListPredictions(ctx context.Context, panelID *uuid.UUID, limit int) ([]models.Prediction, error) {
	query := `SELECT id, panel_id, created_at, predicted_for, predicted_efficiency, degradation_risk, confidence, factors
		FROM predictions`
	args := []interface{}{}
	if panelID != nil {
		query += ` WHERE panel_id = ?`
		args = append(args, panelID.String())
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		var (
			p       models.Prediction
			id      string
			pid     sql.NullString
			factors sql.NullString
			risk    string
		)
		if err := rows.Scan(&id, &pid, &p.CreatedAt, &p.PredictedFor,
			&p.PredictedEfficiency, &risk, &p.Confidence, &factors); err != nil {
			return nil, err
		}
		if p.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid prediction id %q: %w", id, err)
		}
		if p.PanelID, err = parseNullableUUID(pid); err != nil {
			return nil, err
		}
		p.DegradationRisk = models.RiskLevel(risk)
		if factors.Valid && factors.String != "" {
			if err := json.Unmarshal([]byte(factors.String), &p.Factors); err != nil {
				return nil, fmt.Errorf("decode prediction factors: %w", err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePrediction inserts a new prediction.
func (db *DuckStore) CreatePrediction(ctx context.Context, prediction *models.Prediction) error {
	if prediction.ID == uuid.Nil {
		prediction.ID = uuid.New()
	}
	if prediction.CreatedAt.IsZero() {
		prediction.CreatedAt = time.Now().UTC()
	}

	var factors interface{}
	if len(prediction.Factors) > 0 {
		encoded, err := json.Marshal(prediction.Factors)
		if err != nil {
			return fmt.Errorf("encode prediction factors: %w", err)
		}
		factors = string(encoded)
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO predictions (id, panel_id, created_at, predicted_for, predicted_efficiency, degradation_risk, confidence, factors)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		prediction.ID.String(), nullableUUID(prediction.PanelID), prediction.CreatedAt,
		prediction.PredictedFor, prediction.PredictedEfficiency,
		string(prediction.DegradationRisk), prediction.Confidence, factors)
	if err != nil {
		return fmt.Errorf("create prediction: %w", err)
	}
	return nil
}

const recommendationColumns = `id, panel_id, created_at, title, description, category, urgency, impact_score, explanation, implemented`

func scanRecommendation(row rowScanner) (*models.Recommendation, error) {
	var (
		rec      models.Recommendation
		id       string
		pid      sql.NullString
		category string
		urgency  string
	)
	err := row.Scan(&id, &pid, &rec.CreatedAt, &rec.Title, &rec.Description,
		&category, &urgency, &rec.ImpactScore, &rec.Explanation, &rec.Implemented)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid recommendation id %q: %w", id, err)
	}
	if rec.PanelID, err = parseNullableUUID(pid); err != nil {
		return nil, err
	}
	rec.Category = models.RecommendationCategory(category)
	rec.Urgency = models.Urgency(urgency)
	return &rec, nil
}

// ListRecommendations returns recommendations ordered by urgency weight
// descending, then impact score descending. A nil panelID returns all.
func (db *DuckStore) ListRecommendations(ctx context.Context, panelID *uuid.UUID) ([]models.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM recommendations`
	args := []interface{}{}
	if panelID != nil {
		query += ` WHERE panel_id = ?`
		args = append(args, panelID.String())
	}
	query += ` ORDER BY CASE urgency WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC, impact_score DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	var out []models.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetRecommendation returns a single recommendation by ID.
func (db *DuckStore) GetRecommendation(ctx context.Context, id uuid.UUID) (*models.Recommendation, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE id = ?`, id.String())
	return scanRecommendation(row)
}

// CreateRecommendation inserts a new recommendation.
func (db *DuckStore) CreateRecommendation(ctx context.Context, rec *models.Recommendation) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO recommendations (`+recommendationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), nullableUUID(rec.PanelID), rec.CreatedAt, rec.Title,
		rec.Description, string(rec.Category), string(rec.Urgency),
		rec.ImpactScore, rec.Explanation, rec.Implemented)
	if err != nil {
		return fmt.Errorf("create recommendation: %w", err)
	}
	return nil
}

// SetRecommendationImplemented marks a recommendation as carried out or not.
func (db *DuckStore) SetRecommendationImplemented(ctx context.Context, id uuid.UUID, implemented bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE recommendations SET implemented = ? WHERE id = ?`, implemented, id.String())
	if err != nil {
		return fmt.Errorf("set recommendation implemented: %w", err)
	}
	return requireRows(res)
}

const alertColumns = `id, panel_id, severity, category, title, message, details, created_at, dismissed`

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a        models.Alert
		id       string
		pid      sql.NullString
		severity string
		category string
		details  sql.NullString
	)
	err := row.Scan(&id, &pid, &severity, &category, &a.Title, &a.Message,
		&details, &a.CreatedAt, &a.Dismissed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid alert id %q: %w", id, err)
	}
	if a.PanelID, err = parseNullableUUID(pid); err != nil {
		return nil, err
	}
	a.Severity = models.AlertSeverity(severity)
	a.Category = models.AlertCategory(category)
	if details.Valid {
		a.Details = &details.String
	}
	return &a, nil
}

// ListActiveAlerts returns all non-dismissed alerts newest first.
func (db *DuckStore) ListActiveAlerts(ctx context.Context) ([]models.Alert, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE dismissed = false ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// ListPanelAlerts returns all alerts for one panel, dismissed included,
// newest first.
func (db *DuckStore) ListPanelAlerts(ctx context.Context, panelID uuid.UUID) ([]models.Alert, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE panel_id = ? ORDER BY created_at DESC`,
		panelID.String())
	if err != nil {
		return nil, fmt.Errorf("list panel alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func collectAlerts(rows *sql.Rows) ([]models.Alert, error) {
	var out []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CreateAlert inserts a new alert.
func (db *DuckStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID.String(), nullableUUID(alert.PanelID), string(alert.Severity),
		string(alert.Category), alert.Title, alert.Message, alert.Details,
		alert.CreatedAt, alert.Dismissed)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// DismissAlert marks an alert as dismissed.
func (db *DuckStore) DismissAlert(ctx context.Context, id uuid.UUID) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE alerts SET dismissed = true WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("dismiss alert: %w", err)
	}
	return requireRows(res)
}

// LatestSystemHealth returns the most recent system health snapshot.
func (db *DuckStore) LatestSystemHealth(ctx context.Context) (*models.SystemHealth, error) {
	var (
		sh models.SystemHealth
		id string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, created_at, sensor_online, uptime_seconds, data_quality
		 FROM system_health ORDER BY created_at DESC LIMIT 1`).
		Scan(&id, &sh.CreatedAt, &sh.SensorOnline, &sh.UptimeSeconds, &sh.DataQuality)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if sh.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid system health id %q: %w", id, err)
	}
	return &sh, nil
}

// CreateSystemHealth inserts a system health snapshot.
func (db *DuckStore) CreateSystemHealth(ctx context.Context, sh *models.SystemHealth) error {
	if sh.ID == uuid.Nil {
		sh.ID = uuid.New()
	}
	if sh.CreatedAt.IsZero() {
		sh.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO system_health (id, created_at, sensor_online, uptime_seconds, data_quality)
		 VALUES (?, ?, ?, ?, ?)`,
		sh.ID.String(), sh.CreatedAt, sh.SensorOnline, sh.UptimeSeconds, sh.DataQuality)
	if err != nil {
		return fmt.Errorf("create system health: %w", err)
	}
	return nil
}

// AutoTiltSettings returns the singleton auto-tilt settings row, creating
// the defaults on first access.
func (db *DuckStore) AutoTiltSettings(ctx context.Context) (*models.AutoTiltSettings, error) {
	var (
		s    models.AutoTiltSettings
		mode string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT enabled, mode, min_angle, max_angle, adjustment_interval, use_weather_data, aggressiveness, updated_at
		 FROM auto_tilt_settings WHERE id = 1`).
		Scan(&s.Enabled, &mode, &s.MinAngle, &s.MaxAngle, &s.AdjustmentInterval,
			&s.UseWeatherData, &s.Aggressiveness, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		defaults := models.DefaultAutoTiltSettings()
		if err := db.writeAutoTiltSettings(ctx, &defaults); err != nil {
			return nil, err
		}
		return &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load auto-tilt settings: %w", err)
	}
	s.Mode = models.TiltMode(mode)
	return &s, nil
}

// UpdateAutoTiltSettings merges the update into the singleton row and
// returns the resulting settings.
func (db *DuckStore) UpdateAutoTiltSettings(ctx context.Context, update models.AutoTiltSettingsUpdate) (*models.AutoTiltSettings, error) {
	current, err := db.AutoTiltSettings(ctx)
	if err != nil {
		return nil, err
	}
	update.Apply(current)
	current.UpdatedAt = time.Now().UTC()
	if err := db.writeAutoTiltSettings(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

func (db *DuckStore) writeAutoTiltSettings(ctx context.Context, s *models.AutoTiltSettings) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO auto_tilt_settings (id, enabled, mode, min_angle, max_angle, adjustment_interval, use_weather_data, aggressiveness, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Enabled, string(s.Mode), s.MinAngle, s.MaxAngle, s.AdjustmentInterval,
		s.UseWeatherData, s.Aggressiveness, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save auto-tilt settings: %w", err)
	}
	return nil
}
