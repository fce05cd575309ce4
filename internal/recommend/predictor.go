// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package recommend

import (
	"math"
	"time"

	"github.com/heliowatch/heliowatch/internal/models"
)

// minSamples is the fewest daylight readings a trend needs to be usable.
const minSamples = 6

// PredictEfficiency fits a linear trend through a panel's daylight
// efficiency history and extrapolates it by horizon. Night readings are
// excluded: zero efficiency in the dark is not degradation. Returns nil
// when the history is too thin to say anything.
func PredictEfficiency(panel *models.Panel, history []models.SensorReading, horizon time.Duration) *models.Prediction {
	samples := make([]models.SensorReading, 0, len(history))
	for i := range history {
		if history[i].SunlightIntensity > 0 && history[i].EfficiencyPercent > 0 {
			samples = append(samples, history[i])
		}
	}
	if len(samples) < minSamples {
		return nil
	}

	// Least squares over (hours since first sample, efficiency).
	t0 := samples[0].Timestamp
	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(samples))
	for i := range samples {
		x := samples[i].Timestamp.Sub(t0).Hours()
		y := samples[i].EfficiencyPercent
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	// R² measures how much of the variance the trend explains; it
	// doubles as the prediction confidence.
	meanY := sumY / n
	var ssRes, ssTot float64
	for i := range samples {
		x := samples[i].Timestamp.Sub(t0).Hours()
		fitted := intercept + slope*x
		ssRes += (samples[i].EfficiencyPercent - fitted) * (samples[i].EfficiencyPercent - fitted)
		ssTot += (samples[i].EfficiencyPercent - meanY) * (samples[i].EfficiencyPercent - meanY)
	}
	confidence := 0.0
	if ssTot > 0 {
		confidence = math.Max(0, 1-ssRes/ssTot)
	}

	last := samples[len(samples)-1]
	targetX := last.Timestamp.Add(horizon).Sub(t0).Hours()
	predicted := intercept + slope*targetX
	predicted = math.Max(0, math.Min(100, predicted))

	// Slope is in percentage points per hour; project it over a day to
	// classify risk.
	dailyLoss := -slope * 24
	risk := models.RiskLow
	switch {
	case dailyLoss >= 5:
		risk = models.RiskHigh
	case dailyLoss >= 1.5:
		risk = models.RiskMedium
	}

	id := panel.ID
	return &models.Prediction{
		PanelID:             &id,
		PredictedFor:        last.Timestamp.Add(horizon),
		PredictedEfficiency: math.Round(predicted*10) / 10,
		DegradationRisk:     risk,
		Confidence:          math.Round(confidence*100) / 100,
		Factors: map[string]float64{
			"slope_pct_per_hour": math.Round(slope*1000) / 1000,
			"samples":            n,
			"latest_efficiency":  last.EfficiencyPercent,
			"latest_dust":        last.DustLevel,
		},
	}
}
