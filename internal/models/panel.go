// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package models defines data structures used throughout the Heliowatch application.
// These models represent panels, sensor readings, predictions, recommendations,
// alerts, system health snapshots, and API payloads.
package models

import (
	"time"

	"github.com/google/uuid"
)

// PanelStatus is the operational status of a panel.
type PanelStatus string

const (
	PanelStatusActive      PanelStatus = "active"
	PanelStatusMaintenance PanelStatus = "maintenance"
	PanelStatusOffline     PanelStatus = "offline"
	PanelStatusDamaged     PanelStatus = "damaged"
)

// ValidPanelStatus reports whether s is a known panel status.
func ValidPanelStatus(s PanelStatus) bool {
	switch s {
	case PanelStatusActive, PanelStatusMaintenance, PanelStatusOffline, PanelStatusDamaged:
		return true
	}
	return false
}

// Panel represents one unit of the solar farm, independently tracked.
//
// Panels are created once at farm initialization (a fixed set, default 200)
// and are never deleted during normal operation. Only the health score and
// operational status mutate afterwards; the health score is recomputed as a
// side effect of every reading insert.
//
// PanelNumber is the stable 1..N human-facing identifier and the contractual
// sort key for list queries. ID is the storage identity.
type Panel struct {
	ID          uuid.UUID   `json:"id"`
	PanelNumber int         `json:"panel_number"`
	Location    string      `json:"location"`
	InstallDate time.Time   `json:"install_date"`
	HealthScore float64     `json:"health_score"`
	Status      PanelStatus `json:"status"`

	LastMaintenance *time.Time `json:"last_maintenance,omitempty"`
	Notes           *string    `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PanelWithReading pairs a panel with its most recent sensor reading, if any.
// Used by the dashboard overview endpoint.
type PanelWithReading struct {
	Panel
	LatestReading *SensorReading `json:"latest_reading,omitempty"`
}

// PanelDetail is the full detail view for a single panel.
type PanelDetail struct {
	Panel
	LatestReading   *SensorReading   `json:"latest_reading,omitempty"`
	Recommendations []Recommendation `json:"recommendations"`
	Alerts          []Alert          `json:"alerts"`
	HealthBreakdown *HealthBreakdown `json:"health_breakdown,omitempty"`
}

// HealthBreakdown is the sub-factor decomposition of a panel health score.
// Each sub-score is independently rounded; the total is clamped to [0,100].
type HealthBreakdown struct {
	EfficiencyScore  float64 `json:"efficiency_score"`  // 0-40
	DustScore        float64 `json:"dust_score"`        // 0-30 (negative possible for dust > 10 before totaling)
	TemperatureScore float64 `json:"temperature_score"` // 0-30
	TotalScore       float64 `json:"total_score"`       // 0-100
}
