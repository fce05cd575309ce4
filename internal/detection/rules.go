// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package detection

import (
	"fmt"

	"github.com/heliowatch/heliowatch/internal/models"
)

// Rule evaluates one sensor reading and returns an alert when the
// reading crosses its threshold, or nil.
type Rule interface {
	Name() string
	Category() models.AlertCategory
	Evaluate(r *models.SensorReading) *models.Alert
}

// Thresholds configures the built-in rules.
type Thresholds struct {
	// OverheatC raises a critical alert at or above this temperature.
	OverheatC float64 `koanf:"overheat_c"`
	// OverheatWarnC raises a warning at or above this temperature.
	OverheatWarnC float64 `koanf:"overheat_warn_c"`
	// DustLevel raises a warning at or above this dust level (0-10).
	DustLevel float64 `koanf:"dust_level"`
	// DustCriticalLevel escalates the dust alert to critical.
	DustCriticalLevel float64 `koanf:"dust_critical_level"`
	// LowEfficiencyPct raises a warning at or below this efficiency
	// while the panel is in daylight.
	LowEfficiencyPct float64 `koanf:"low_efficiency_pct"`
	// DaylightMinIntensity gates the efficiency rule: below this
	// sunlight there is nothing meaningful to measure.
	DaylightMinIntensity float64 `koanf:"daylight_min_intensity"`
}

// DefaultThresholds returns the production rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OverheatC:            70,
		OverheatWarnC:        55,
		DustLevel:            6,
		DustCriticalLevel:    8.5,
		LowEfficiencyPct:     40,
		DaylightMinIntensity: 100,
	}
}

// BuiltinRules returns the standard rule set.
func BuiltinRules(t Thresholds) []Rule {
	return []Rule{
		&overheatRule{t: t},
		&dustRule{t: t},
		&lowEfficiencyRule{t: t},
	}
}

type overheatRule struct {
	t Thresholds
}

func (r *overheatRule) Name() string                    { return "overheat" }
func (r *overheatRule) Category() models.AlertCategory { return models.AlertCategoryOverheat }

func (r *overheatRule) Evaluate(reading *models.SensorReading) *models.Alert {
	switch {
	case reading.Temperature >= r.t.OverheatC:
		return &models.Alert{
			Severity: models.AlertSeverityCritical,
			Category: models.AlertCategoryOverheat,
			Title:    "Panel critically overheating",
			Message: fmt.Sprintf("Panel temperature %.1f°C exceeds the critical limit of %.0f°C",
				reading.Temperature, r.t.OverheatC),
		}
	case reading.Temperature >= r.t.OverheatWarnC:
		return &models.Alert{
			Severity: models.AlertSeverityWarning,
			Category: models.AlertCategoryOverheat,
			Title:    "Panel running hot",
			Message: fmt.Sprintf("Panel temperature %.1f°C exceeds %.0f°C; output efficiency degrades above this point",
				reading.Temperature, r.t.OverheatWarnC),
		}
	}
	return nil
}

type dustRule struct {
	t Thresholds
}

func (r *dustRule) Name() string                    { return "dust" }
func (r *dustRule) Category() models.AlertCategory { return models.AlertCategoryDust }

func (r *dustRule) Evaluate(reading *models.SensorReading) *models.Alert {
	switch {
	case reading.DustLevel >= r.t.DustCriticalLevel:
		return &models.Alert{
			Severity: models.AlertSeverityCritical,
			Category: models.AlertCategoryDust,
			Title:    "Severe dust accumulation",
			Message: fmt.Sprintf("Dust level %.1f/10 requires immediate cleaning",
				reading.DustLevel),
		}
	case reading.DustLevel >= r.t.DustLevel:
		return &models.Alert{
			Severity: models.AlertSeverityWarning,
			Category: models.AlertCategoryDust,
			Title:    "Dust accumulation rising",
			Message: fmt.Sprintf("Dust level %.1f/10 is above the cleaning threshold of %.1f",
				reading.DustLevel, r.t.DustLevel),
		}
	}
	return nil
}

type lowEfficiencyRule struct {
	t Thresholds
}

func (r *lowEfficiencyRule) Name() string                    { return "low_efficiency" }
func (r *lowEfficiencyRule) Category() models.AlertCategory { return models.AlertCategoryLowEfficiency }

func (r *lowEfficiencyRule) Evaluate(reading *models.SensorReading) *models.Alert {
	// Efficiency is meaningless in the dark.
	if reading.SunlightIntensity < r.t.DaylightMinIntensity {
		return nil
	}
	if reading.EfficiencyPercent > r.t.LowEfficiencyPct {
		return nil
	}
	return &models.Alert{
		Severity: models.AlertSeverityWarning,
		Category: models.AlertCategoryLowEfficiency,
		Title:    "Panel underperforming",
		Message: fmt.Sprintf("Efficiency %.1f%% in full daylight (%.0f W/m²) is below the %.0f%% floor",
			reading.EfficiencyPercent, reading.SunlightIntensity, r.t.LowEfficiencyPct),
	}
}
