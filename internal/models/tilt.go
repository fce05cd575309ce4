// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package models

import "time"

// TiltMode selects the auto-tilt control strategy.
type TiltMode string

const (
	TiltModeTimeBased    TiltMode = "time_based"
	TiltModeWeatherBased TiltMode = "weather_based"
	TiltModeHybrid       TiltMode = "hybrid"
)

// AutoTiltSettings is the singleton auto-tilt configuration. Exactly one
// instance exists at any time; it is created lazily with defaults on first
// access and mutated via partial-update merge semantics.
type AutoTiltSettings struct {
	Enabled            bool      `json:"enabled"`
	Mode               TiltMode  `json:"mode"`
	MinAngle           float64   `json:"min_angle"` // degrees
	MaxAngle           float64   `json:"max_angle"` // degrees
	AdjustmentInterval int       `json:"adjustment_interval"` // minutes
	UseWeatherData     bool      `json:"use_weather_data"`
	Aggressiveness     int       `json:"aggressiveness"` // 1 (gentle) .. 5 (aggressive)
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultAutoTiltSettings returns the settings created on first access.
func DefaultAutoTiltSettings() AutoTiltSettings {
	return AutoTiltSettings{
		Enabled:            false,
		Mode:               TiltModeTimeBased,
		MinAngle:           10,
		MaxAngle:           60,
		AdjustmentInterval: 30,
		UseWeatherData:     false,
		Aggressiveness:     2,
		UpdatedAt:          time.Now().UTC(),
	}
}

// AutoTiltSettingsUpdate is a partial update of the singleton. Nil fields
// retain the current value; set fields overwrite it.
type AutoTiltSettingsUpdate struct {
	Enabled            *bool     `json:"enabled,omitempty"`
	Mode               *TiltMode `json:"mode,omitempty"`
	MinAngle           *float64  `json:"min_angle,omitempty"`
	MaxAngle           *float64  `json:"max_angle,omitempty"`
	AdjustmentInterval *int      `json:"adjustment_interval,omitempty"`
	UseWeatherData     *bool     `json:"use_weather_data,omitempty"`
	Aggressiveness     *int      `json:"aggressiveness,omitempty"`
}

// Apply merges the update onto s and stamps UpdatedAt.
func (u AutoTiltSettingsUpdate) Apply(s *AutoTiltSettings) {
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}
	if u.Mode != nil {
		s.Mode = *u.Mode
	}
	if u.MinAngle != nil {
		s.MinAngle = *u.MinAngle
	}
	if u.MaxAngle != nil {
		s.MaxAngle = *u.MaxAngle
	}
	if u.AdjustmentInterval != nil {
		s.AdjustmentInterval = *u.AdjustmentInterval
	}
	if u.UseWeatherData != nil {
		s.UseWeatherData = *u.UseWeatherData
	}
	if u.Aggressiveness != nil {
		s.Aggressiveness = *u.Aggressiveness
	}
	s.UpdatedAt = time.Now().UTC()
}
