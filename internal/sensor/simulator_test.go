// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package sensor

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/models"
)

func fixedClock(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2026, 6, 15, hour, 0, 0, 0, time.UTC)
	}
}

func activePanel() *models.Panel {
	return &models.Panel{ID: uuid.New(), PanelNumber: 1, Status: models.PanelStatusActive}
}

func TestSimulatorDaytimeReading(t *testing.T) {
	sim := NewSimulator(Config{Seed: 42})
	sim.SetClock(fixedClock(12))

	r := sim.Reading(activePanel())

	if r.SunlightIntensity <= 0 || r.SunlightIntensity > 1000 {
		t.Errorf("noon sunlight = %v, want in (0, 1000]", r.SunlightIntensity)
	}
	if r.EnergyOutput <= 0 {
		t.Errorf("noon energy output = %v, want > 0", r.EnergyOutput)
	}
	if r.EfficiencyPercent < 0 || r.EfficiencyPercent > 100 {
		t.Errorf("efficiency = %v, want in [0, 100]", r.EfficiencyPercent)
	}
	if r.DustLevel < 0 || r.DustLevel > DustScaleMax {
		t.Errorf("dust = %v, want in [0, %v]", r.DustLevel, DustScaleMax)
	}
	if r.CurrentMA == nil || r.PowerMW == nil {
		t.Error("daytime reading missing electrical telemetry")
	}
	if r.DustStatus == nil {
		t.Error("reading missing dust status")
	}
}

func TestSimulatorNightReading(t *testing.T) {
	sim := NewSimulator(Config{Seed: 42})
	sim.SetClock(fixedClock(2))

	r := sim.Reading(activePanel())

	if r.SunlightIntensity != 0 {
		t.Errorf("night sunlight = %v, want 0", r.SunlightIntensity)
	}
	if r.EnergyOutput != 0 {
		t.Errorf("night energy output = %v, want 0", r.EnergyOutput)
	}
	if r.EfficiencyPercent != 0 {
		t.Errorf("night efficiency = %v, want 0", r.EfficiencyPercent)
	}
}

func TestSimulatorOfflinePanelProducesNothing(t *testing.T) {
	sim := NewSimulator(Config{Seed: 1})
	sim.SetClock(fixedClock(12))

	p := activePanel()
	p.Status = models.PanelStatusOffline
	r := sim.Reading(p)

	if r.EnergyOutput != 0 {
		t.Errorf("offline energy output = %v, want 0", r.EnergyOutput)
	}
	if r.EfficiencyPercent != 0 {
		t.Errorf("offline efficiency = %v, want 0", r.EfficiencyPercent)
	}
}

func TestSimulatorLastKnown(t *testing.T) {
	sim := NewSimulator(Config{Seed: 7})
	sim.SetClock(fixedClock(12))

	p := activePanel()
	if _, ok := sim.LastKnown(p.ID); ok {
		t.Fatal("LastKnown before first reading should report false")
	}

	want := sim.Reading(p)
	got, ok := sim.LastKnown(p.ID)
	if !ok {
		t.Fatal("LastKnown after reading should report true")
	}
	if got.ID != want.ID {
		t.Errorf("LastKnown returned reading %s, want %s", got.ID, want.ID)
	}
}

func TestSimulatorDustAccumulates(t *testing.T) {
	sim := NewSimulator(Config{Seed: 3})
	sim.SetClock(fixedClock(12))

	p := activePanel()
	first := sim.Reading(p)
	var last models.SensorReading
	for i := 0; i < 50; i++ {
		last = sim.Reading(p)
		if last.CleaningDone != nil && *last.CleaningDone {
			// A sweep resets the trend; nothing further to assert.
			return
		}
	}
	if last.DustLevel <= first.DustLevel {
		t.Errorf("dust did not accumulate: first %v, last %v", first.DustLevel, last.DustLevel)
	}
}

func TestDustADCRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		raw  int
		want float64
	}{
		{"zero", 0, 0},
		{"full scale", 4095, 10},
		{"negative clamps", -5, 0},
		{"overflow clamps", 5000, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DustFromADC(tt.raw); got != tt.want {
				t.Errorf("DustFromADC(%d) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}

	// Mid-scale conversion should invert to the same sample.
	for _, raw := range []int{0, 1024, 2048, 4095} {
		if got := ADCFromDust(DustFromADC(raw)); got != raw {
			t.Errorf("round trip of %d produced %d", raw, got)
		}
	}
}

func TestDustStatusBuckets(t *testing.T) {
	tests := []struct {
		level float64
		want  string
	}{
		{0, "clean"},
		{1.9, "clean"},
		{2, "moderate"},
		{4.9, "moderate"},
		{5, "dirty"},
		{7.9, "dirty"},
		{8, "critical"},
		{10, "critical"},
	}
	for _, tt := range tests {
		if got := DustStatus(tt.level); got != tt.want {
			t.Errorf("DustStatus(%v) = %q, want %q", tt.level, got, tt.want)
		}
	}
}
