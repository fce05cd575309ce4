// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package sensor produces sensor readings for the farm. In production
// deployments readings arrive from field units over the ingest API; the
// simulator in this package generates physically plausible values for the
// same panels so the rest of the system can run without hardware.
package sensor

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/models"
)

// Config tunes the simulator.
type Config struct {
	// Seed makes runs reproducible. Zero seeds from the clock.
	Seed int64 `koanf:"seed"`
	// BaseOutputW is the nameplate output of a clean panel at full sun.
	BaseOutputW float64 `koanf:"base_output_w"`
	// NominalVoltage is the string voltage around which samples jitter.
	NominalVoltage float64 `koanf:"nominal_voltage"`
}

// DefaultConfig returns the simulator defaults.
func DefaultConfig() Config {
	return Config{
		BaseOutputW:    320,
		NominalVoltage: 48,
	}
}

// panelState carries the slow-moving per-panel variables between samples.
type panelState struct {
	dust        float64
	degradation float64
	tilt        float64
}

// Simulator generates per-panel sensor readings and remembers the last
// value produced for each panel. Safe for concurrent use.
type Simulator struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	rng       *rand.Rand
	states    map[uuid.UUID]*panelState
	lastKnown map[uuid.UUID]models.SensorReading
}

// NewSimulator builds a simulator with the given config.
func NewSimulator(cfg Config) *Simulator {
	if cfg.BaseOutputW <= 0 {
		cfg.BaseOutputW = DefaultConfig().BaseOutputW
	}
	if cfg.NominalVoltage <= 0 {
		cfg.NominalVoltage = DefaultConfig().NominalVoltage
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg:       cfg,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(seed)),
		states:    make(map[uuid.UUID]*panelState),
		lastKnown: make(map[uuid.UUID]models.SensorReading),
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *Simulator) SetClock(now func() time.Time) {
	s.now = now
}

// Reading produces the next sample for a panel. Panels that are offline
// or damaged report no output; dust still accumulates on them.
func (s *Simulator) Reading(panel *models.Panel) models.SensorReading {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[panel.ID]
	if !ok {
		st = &panelState{
			dust: s.rng.Float64() * 3,
			tilt: 10 + s.rng.Float64()*50,
		}
		s.states[panel.ID] = st
	}

	ts := s.now().UTC()
	sun := s.sunlight(ts)

	// Dust accumulates slowly and is swept once it gets bad.
	st.dust += 0.005 + s.rng.Float64()*0.02
	cleaned := false
	if st.dust > 8 && s.rng.Float64() < 0.2 {
		st.dust = s.rng.Float64() * 0.5
		cleaned = true
	}
	if st.dust > DustScaleMax {
		st.dust = DustScaleMax
	}
	// Cells age a little every sample.
	st.degradation += s.rng.Float64() * 0.0005

	temperature := 15 + sun/1000*22 + s.rng.NormFloat64()*1.5

	producing := panel.Status == models.PanelStatusActive || panel.Status == models.PanelStatusMaintenance

	efficiency := 0.0
	if producing && sun > 0 {
		efficiency = 96 - st.dust*3 - math.Max(0, temperature-25)*0.5 - st.degradation + s.rng.NormFloat64()*2
		efficiency = math.Max(0, math.Min(100, efficiency))
	}

	output := 0.0
	if producing {
		output = s.cfg.BaseOutputW * (sun / 1000) * (efficiency / 100)
	}

	voltage := 0.0
	if producing && sun > 0 {
		voltage = s.cfg.NominalVoltage + s.rng.NormFloat64()*0.8
	}

	reading := models.SensorReading{
		ID:                uuid.New(),
		PanelID:           panel.ID,
		Timestamp:         ts,
		EnergyOutput:      round2(output),
		SunlightIntensity: round2(sun),
		Temperature:       round2(temperature),
		DustLevel:         round2(st.dust),
		TiltAngle:         round2(st.tilt),
		Voltage:           round2(voltage),
		EfficiencyPercent: round2(efficiency),
	}

	if voltage > 0 {
		currentMA := round2(output / voltage * 1000)
		powerMW := round2(output * 1000)
		overload := output > s.cfg.BaseOutputW*1.05
		reading.CurrentMA = &currentMA
		reading.PowerMW = &powerMW
		reading.Overload = &overload
	}
	reading.CleaningDone = &cleaned
	status := DustStatus(st.dust)
	reading.DustStatus = &status

	s.lastKnown[panel.ID] = reading
	return reading
}

// LastKnown returns the most recent reading generated for a panel.
func (s *Simulator) LastKnown(panelID uuid.UUID) (models.SensorReading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.lastKnown[panelID]
	return r, ok
}

// sunlight models a clear-sky diurnal irradiance curve in W/m², zero
// outside 06:00-18:00 local time, peaking around 1000 at noon.
func (s *Simulator) sunlight(ts time.Time) float64 {
	hour := float64(ts.Hour()) + float64(ts.Minute())/60
	if hour < 6 || hour > 18 {
		return 0
	}
	base := math.Sin((hour - 6) / 12 * math.Pi) * 1000
	// Cloud cover knocks off up to 30%.
	base *= 1 - s.rng.Float64()*0.3
	return math.Max(0, base)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
