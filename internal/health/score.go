// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package health implements the panel health scoring heuristic.
//
// The score is a deterministic 0-100 composite of three sub-factors derived
// from a sensor reading: efficiency (up to 40 points), dust accumulation
// (up to 30 points), and operating temperature (up to 30 points). The
// function is pure: same inputs always produce the same breakdown, and it
// never errors — corrupt numeric inputs (NaN/Inf) are substituted with safe
// defaults instead of being propagated.
package health

import (
	"math"

	"github.com/heliowatch/heliowatch/internal/models"
)

// Safe defaults substituted for non-finite inputs.
const (
	defaultEfficiency  = 50.0
	defaultDust        = 5.0
	defaultTemperature = 25.0
)

// Defaults substituted for non-finite computed sub-scores and total.
const (
	defaultEfficiencyScore  = 20.0
	defaultDustScore        = 15.0
	defaultTemperatureScore = 15.0
	defaultTotalScore       = 50.0
)

// Score computes the health breakdown for a reading.
// Convenience wrapper over Calculate.
func Score(r *models.SensorReading) models.HealthBreakdown {
	if r == nil {
		return Calculate(math.NaN(), math.NaN(), math.NaN())
	}
	return Calculate(r.EfficiencyPercent, r.DustLevel, r.Temperature)
}

// Calculate computes the health score breakdown from efficiency percent,
// dust level (0-10 scale), and temperature (degrees C).
//
// Sub-factors, in order:
//  1. Efficiency: (efficiency/100) * 40, contributing 0-40 points.
//  2. Dust: ((10-dust)/10) * 30, contributing 0-30 points. Not clamped at
//     this stage, so dust above 10 drives the sub-score negative.
//  3. Temperature: max(0, 30 - 1.5*|temperature-25|), floored at 0.
//
// The total is the rounded sum, re-defaulted to 50 if non-finite, then
// clamped to [0,100]. Each sub-score in the returned breakdown is
// independently rounded and defaulted if non-finite.
func Calculate(efficiency, dust, temperature float64) models.HealthBreakdown {
	efficiency = finiteOr(efficiency, defaultEfficiency)
	dust = finiteOr(dust, defaultDust)
	temperature = finiteOr(temperature, defaultTemperature)

	effScore := (efficiency / 100) * 40
	dustScore := ((10 - dust) / 10) * 30
	tempScore := math.Max(0, 30-1.5*math.Abs(temperature-defaultTemperature))

	total := math.Round(effScore + dustScore + tempScore)
	total = finiteOr(total, defaultTotalScore)
	total = clamp(total, 0, 100)

	return models.HealthBreakdown{
		EfficiencyScore:  finiteOr(math.Round(effScore), defaultEfficiencyScore),
		DustScore:        finiteOr(math.Round(dustScore), defaultDustScore),
		TemperatureScore: finiteOr(math.Round(tempScore), defaultTemperatureScore),
		TotalScore:       total,
	}
}

// finiteOr returns v if it is a finite number, otherwise def.
func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
