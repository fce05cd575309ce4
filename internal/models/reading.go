// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package models

import (
	"time"

	"github.com/google/uuid"
)

// SensorReading is one timestamped observation for one panel.
//
// Readings are created once per panel per ingestion tick and are immutable
// afterwards. Creating a reading recomputes the owning panel's health score
// (see storage contract), unless the computed score is non-finite, in which
// case the panel's prior score is retained.
//
// DustLevel carries the normalized 0-10 scale. Hardware-sourced readings can
// additionally carry the raw sensor fields below; see the sensor package for
// the raw ADC (0-4095) representation of dust.
type SensorReading struct {
	ID        uuid.UUID `json:"id"`
	PanelID   uuid.UUID `json:"panel_id"`
	Timestamp time.Time `json:"timestamp"`

	EnergyOutput      float64 `json:"energy_output"`      // watts
	SunlightIntensity float64 `json:"sunlight_intensity"` // W/m^2
	Temperature       float64 `json:"temperature"`        // degrees C
	DustLevel         float64 `json:"dust_level"`         // 0-10 scale
	TiltAngle         float64 `json:"tilt_angle"`         // degrees
	Voltage           float64 `json:"voltage"`            // volts

	// EfficiencyPercent is always clamped to [0,100] at creation time.
	EfficiencyPercent float64 `json:"efficiency_percent"`

	// Hardware-style optional fields, present when the reading originates
	// from an ESP32-class telemetry frame rather than the simulator.
	CurrentMA    *float64 `json:"current_ma,omitempty"`
	PowerMW      *float64 `json:"power_mw,omitempty"`
	Overload     *bool    `json:"overload,omitempty"`
	SweepEnabled *bool    `json:"sweep_enabled,omitempty"`
	AutoMode     *bool    `json:"auto_mode,omitempty"`
	CleaningDone *bool    `json:"cleaning_done,omitempty"`
	DustStatus   *string  `json:"dust_status,omitempty"`
}

// SystemHealth is a periodic snapshot of subsystem status. Latest-only
// queries dominate; snapshots are immutable once written.
type SystemHealth struct {
	ID            uuid.UUID `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	SensorOnline  bool      `json:"sensor_online"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	DataQuality   float64   `json:"data_quality"` // 0-100, share of valid samples in the last cycle
}

// FarmSummary is the aggregate broadcast after each ingestion cycle and
// served by the summary endpoint.
type FarmSummary struct {
	GeneratedAt       time.Time       `json:"generated_at"`
	PanelCount        int             `json:"panel_count"`
	ActivePanels      int             `json:"active_panels"`
	TotalEnergyW      float64         `json:"total_energy_w"`
	AverageEfficiency float64         `json:"average_efficiency"`
	AverageHealth     float64         `json:"average_health"`
	ActiveAlerts      int             `json:"active_alerts"`
	SampleReadings    []SensorReading `json:"sample_readings,omitempty"`
}
