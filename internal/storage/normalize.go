// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package storage

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/models"
)

// sanitizeReading enforces the reading invariants shared by all backends:
// identity and timestamp are assigned when missing, efficiency percent is
// clamped to [0,100], and non-finite numeric fields are replaced with zero
// so a corrupt sensor frame can never poison stored state.
func sanitizeReading(r *models.SensorReading) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	r.EnergyOutput = finiteOrZero(r.EnergyOutput)
	r.SunlightIntensity = finiteOrZero(r.SunlightIntensity)
	r.Temperature = finiteOrZero(r.Temperature)
	r.DustLevel = finiteOrZero(r.DustLevel)
	r.TiltAngle = finiteOrZero(r.TiltAngle)
	r.Voltage = finiteOrZero(r.Voltage)

	eff := finiteOrZero(r.EfficiencyPercent)
	if eff < 0 {
		eff = 0
	}
	if eff > 100 {
		eff = 100
	}
	r.EfficiencyPercent = eff
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// windowStart converts an hour count to the inclusive lower bound of a
// time-windowed query.
func windowStart(hours int) time.Time {
	return time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
}
