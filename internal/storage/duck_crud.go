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
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/health"
	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/models"
)

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const panelColumns = `id, panel_number, location, install_date, health_score, status, last_maintenance, notes, created_at, updated_at`

func scanPanel(row rowScanner) (*models.Panel, error) {
	var (
		p               models.Panel
		id              string
		lastMaintenance sql.NullTime
		notes           sql.NullString
	)
	err := row.Scan(&id, &p.PanelNumber, &p.Location, &p.InstallDate, &p.HealthScore,
		&p.Status, &lastMaintenance, &notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid panel id %q: %w", id, err)
	}
	if lastMaintenance.Valid {
		t := lastMaintenance.Time
		p.LastMaintenance = &t
	}
	if notes.Valid {
		n := notes.String
		p.Notes = &n
	}
	return &p, nil
}

// ListPanels returns all panels ordered by panel number ascending.
func (db *DuckStore) ListPanels(ctx context.Context) ([]models.Panel, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+panelColumns+` FROM panels ORDER BY panel_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("list panels: %w", err)
	}
	defer rows.Close()

	var out []models.Panel
	for rows.Next() {
		p, err := scanPanel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetPanel returns the panel with the given ID.
func (db *DuckStore) GetPanel(ctx context.Context, id uuid.UUID) (*models.Panel, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+panelColumns+` FROM panels WHERE id = ?`, id.String())
	return scanPanel(row)
}

// GetPanelByNumber returns the panel with the given sequential number.
func (db *DuckStore) GetPanelByNumber(ctx context.Context, number int) (*models.Panel, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+panelColumns+` FROM panels WHERE panel_number = ?`, number)
	return scanPanel(row)
}

// CreatePanel inserts a new panel.
func (db *DuckStore) CreatePanel(ctx context.Context, panel *models.Panel) error {
	if panel.ID == uuid.Nil {
		panel.ID = uuid.New()
	}
	now := time.Now().UTC()
	if panel.CreatedAt.IsZero() {
		panel.CreatedAt = now
	}
	panel.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO panels (`+panelColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		panel.ID.String(), panel.PanelNumber, panel.Location, panel.InstallDate,
		panel.HealthScore, string(panel.Status), panel.LastMaintenance, panel.Notes,
		panel.CreatedAt, panel.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create panel %d: %w", panel.PanelNumber, err)
	}
	return nil
}

// UpdatePanelHealth persists a recomputed health score.
func (db *DuckStore) UpdatePanelHealth(ctx context.Context, id uuid.UUID, score float64) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE panels SET health_score = ?, updated_at = ? WHERE id = ?`,
		score, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("update panel health: %w", err)
	}
	return requireRows(res)
}

// UpdatePanelStatus changes a panel's operational status and optional notes.
func (db *DuckStore) UpdatePanelStatus(ctx context.Context, id uuid.UUID, status models.PanelStatus, notes *string) error {
	now := time.Now().UTC()
	var res sql.Result
	var err error
	if status == models.PanelStatusMaintenance {
		res, err = db.conn.ExecContext(ctx,
			`UPDATE panels SET status = ?, notes = COALESCE(?, notes), last_maintenance = ?, updated_at = ? WHERE id = ?`,
			string(status), notes, now, now, id.String())
	} else {
		res, err = db.conn.ExecContext(ctx,
			`UPDATE panels SET status = ?, notes = COALESCE(?, notes), updated_at = ? WHERE id = ?`,
			string(status), notes, now, id.String())
	}
	if err != nil {
		return fmt.Errorf("update panel status: %w", err)
	}
	return requireRows(res)
}

// requireRows maps a zero-row update to ErrNotFound.
func requireRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPanelsWithReadings returns every panel with its latest reading
// attached, ordered by panel number ascending.
func (db *DuckStore) ListPanelsWithReadings(ctx context.Context) ([]models.PanelWithReading, error) {
	panels, err := db.ListPanels(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.PanelWithReading, 0, len(panels))
	for i := range panels {
		pwr := models.PanelWithReading{Panel: panels[i]}
		latest, err := db.LatestReading(ctx, panels[i].ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		pwr.LatestReading = latest
		out = append(out, pwr)
	}
	return out, nil
}

// GetPanelDetail assembles the full detail view for one panel.
func (db *DuckStore) GetPanelDetail(ctx context.Context, id uuid.UUID) (*models.PanelDetail, error) {
	panel, err := db.GetPanel(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &models.PanelDetail{Panel: *panel}

	latest, err := db.LatestReading(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if latest != nil {
		detail.LatestReading = latest
		breakdown := health.Score(latest)
		detail.HealthBreakdown = &breakdown
	}

	if detail.Recommendations, err = db.ListRecommendations(ctx, &id); err != nil {
		return nil, err
	}
	if detail.Alerts, err = db.ListPanelAlerts(ctx, id); err != nil {
		return nil, err
	}
	return detail, nil
}

const readingColumns = `id, panel_id, ts, energy_output, sunlight_intensity, temperature, dust_level, tilt_angle, voltage, efficiency_percent, current_ma, power_mw, overload, sweep_enabled, auto_mode, cleaning_done, dust_status`

func scanReading(row rowScanner) (*models.SensorReading, error) {
	var (
		r            models.SensorReading
		id, panelID  string
		currentMA    sql.NullFloat64
		powerMW      sql.NullFloat64
		overload     sql.NullBool
		sweepEnabled sql.NullBool
		autoMode     sql.NullBool
		cleaningDone sql.NullBool
		dustStatus   sql.NullString
	)
	err := row.Scan(&id, &panelID, &r.Timestamp, &r.EnergyOutput, &r.SunlightIntensity,
		&r.Temperature, &r.DustLevel, &r.TiltAngle, &r.Voltage, &r.EfficiencyPercent,
		&currentMA, &powerMW, &overload, &sweepEnabled, &autoMode, &cleaningDone, &dustStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid reading id %q: %w", id, err)
	}
	if r.PanelID, err = uuid.Parse(panelID); err != nil {
		return nil, fmt.Errorf("invalid panel id %q: %w", panelID, err)
	}
	if currentMA.Valid {
		r.CurrentMA = &currentMA.Float64
	}
	if powerMW.Valid {
		r.PowerMW = &powerMW.Float64
	}
	if overload.Valid {
		r.Overload = &overload.Bool
	}
	if sweepEnabled.Valid {
		r.SweepEnabled = &sweepEnabled.Bool
	}
	if autoMode.Valid {
		r.AutoMode = &autoMode.Bool
	}
	if cleaningDone.Valid {
		r.CleaningDone = &cleaningDone.Bool
	}
	if dustStatus.Valid {
		r.DustStatus = &dustStatus.String
	}
	return &r, nil
}

// CreateReading inserts a reading and recomputes the owning panel's health
// score. A non-finite total is silently dropped rather than propagated: the
// panel keeps its prior score and the insert still succeeds.
func (db *DuckStore) CreateReading(ctx context.Context, reading *models.SensorReading) error {
	sanitizeReading(reading)

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sensor_readings (`+readingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.ID.String(), reading.PanelID.String(), reading.Timestamp,
		reading.EnergyOutput, reading.SunlightIntensity, reading.Temperature,
		reading.DustLevel, reading.TiltAngle, reading.Voltage, reading.EfficiencyPercent,
		reading.CurrentMA, reading.PowerMW, reading.Overload, reading.SweepEnabled,
		reading.AutoMode, reading.CleaningDone, reading.DustStatus)
	if err != nil {
		return fmt.Errorf("create reading for panel %s: %w", reading.PanelID, err)
	}

	breakdown := health.Score(reading)
	if math.IsNaN(breakdown.TotalScore) || math.IsInf(breakdown.TotalScore, 0) {
		return nil
	}
	if err := db.UpdatePanelHealth(ctx, reading.PanelID, breakdown.TotalScore); err != nil {
		// The reading is already committed; a missing panel here means the
		// caller raced a panel delete, which normal operation never does.
		logging.Warn().Err(err).Str("panel_id", reading.PanelID.String()).Msg("health score update skipped")
	}
	return nil
}

// LatestReading returns the most recent reading for a panel.
func (db *DuckStore) LatestReading(ctx context.Context, panelID uuid.UUID) (*models.SensorReading, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+readingColumns+` FROM sensor_readings WHERE panel_id = ? ORDER BY ts DESC LIMIT 1`,
		panelID.String())
	return scanReading(row)
}

// LatestReadings returns the most recent reading of every panel, ordered by
// the owning panel's number ascending.
func (db *DuckStore) LatestReadings(ctx context.Context) ([]models.SensorReading, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+readingColumns+` FROM (
			SELECT r.*, row_number() OVER (PARTITION BY r.panel_id ORDER BY r.ts DESC) AS rn,
			       p.panel_number
			FROM sensor_readings r
			JOIN panels p ON p.id = r.panel_id
		) WHERE rn = 1 ORDER BY panel_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("latest readings: %w", err)
	}
	defer rows.Close()
	return collectReadings(rows)
}

// ReadingsSince returns all readings inside the window, timestamp ascending.
func (db *DuckStore) ReadingsSince(ctx context.Context, hours int) ([]models.SensorReading, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM sensor_readings WHERE ts >= ? ORDER BY ts ASC`,
		windowStart(hours))
	if err != nil {
		return nil, fmt.Errorf("readings since %dh: %w", hours, err)
	}
	defer rows.Close()
	return collectReadings(rows)
}

// PanelReadingsSince returns one panel's readings inside the window,
// timestamp ascending.
func (db *DuckStore) PanelReadingsSince(ctx context.Context, panelID uuid.UUID, hours int) ([]models.SensorReading, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM sensor_readings WHERE panel_id = ? AND ts >= ? ORDER BY ts ASC`,
		panelID.String(), windowStart(hours))
	if err != nil {
		return nil, fmt.Errorf("panel readings since %dh: %w", hours, err)
	}
	defer rows.Close()
	return collectReadings(rows)
}

func collectReadings(rows *sql.Rows) ([]models.SensorReading, error) {
	var out []models.SensorReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
