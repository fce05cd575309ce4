// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package sensor

import "math"

// adcMax is the full-scale value of the 12-bit dust sensor ADC.
const adcMax = 4095

// DustScaleMax is the top of the normalized dust scale used everywhere
// outside the sensor boundary.
const DustScaleMax = 10.0

// DustFromADC converts a raw 12-bit ADC sample to the normalized 0-10
// dust scale. Out-of-range samples are clamped.
func DustFromADC(raw int) float64 {
	if raw < 0 {
		raw = 0
	}
	if raw > adcMax {
		raw = adcMax
	}
	return float64(raw) / adcMax * DustScaleMax
}

// ADCFromDust converts a normalized 0-10 dust level back to the raw ADC
// representation. Non-finite and out-of-range levels are clamped.
func ADCFromDust(level float64) int {
	if math.IsNaN(level) || level < 0 {
		level = 0
	}
	if level > DustScaleMax {
		level = DustScaleMax
	}
	return int(math.Round(level / DustScaleMax * adcMax))
}

// DustStatus buckets a normalized dust level into the coarse status
// string reported by the field units.
func DustStatus(level float64) string {
	switch {
	case level < 2:
		return "clean"
	case level < 5:
		return "moderate"
	case level < 8:
		return "dirty"
	default:
		return "critical"
	}
}
