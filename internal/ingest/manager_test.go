// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package ingest

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/eventbus"
	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/models"
	"github.com/heliowatch/heliowatch/internal/sensor"
	"github.com/heliowatch/heliowatch/internal/storage"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

func newTestManager(t *testing.T, cfg Config, panelCount int) (*Manager, *storage.MemoryStore, *eventbus.Bus) {
	t.Helper()
	store := storage.NewMemoryStore()
	for i := 1; i <= panelCount; i++ {
		p := &models.Panel{
			ID:          uuid.New(),
			PanelNumber: i,
			Location:    "row-1",
			InstallDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			HealthScore: 100,
			Status:      models.PanelStatusActive,
		}
		if err := store.CreatePanel(context.Background(), p); err != nil {
			t.Fatalf("seed panel: %v", err)
		}
	}

	sim := sensor.NewSimulator(sensor.Config{Seed: 99})
	sim.SetClock(func() time.Time {
		return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	})
	bus := eventbus.New(eventbus.DefaultConfig(), nil)
	t.Cleanup(func() { _ = bus.Close() })

	return NewManager(cfg, store, sim, bus, nil), store, bus
}

func TestCollectPersistsAllPanels(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, Config{}, 5)

	m.Collect(ctx)

	readings, err := store.LatestReadings(ctx)
	if err != nil {
		t.Fatalf("LatestReadings: %v", err)
	}
	if len(readings) != 5 {
		t.Fatalf("persisted %d readings, want 5", len(readings))
	}
}

func TestCollectPublishesBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, _, bus := newTestManager(t, Config{}, 3)

	ch, err := bus.Subscribe(ctx, eventbus.TopicReadings)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	m.Collect(ctx)

	select {
	case msg := <-ch:
		var batch []models.SensorReading
		if err := json.Unmarshal(msg.Payload, &batch); err != nil {
			t.Fatalf("decode batch: %v", err)
		}
		if len(batch) != 3 {
			t.Errorf("batch has %d readings, want 3", len(batch))
		}
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no batch published")
	}
}

func TestCollectOverlapGuard(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t, Config{}, 1)

	// Hold the guard as if a cycle were still in flight.
	if !m.running.CompareAndSwap(false, true) {
		t.Fatal("guard unexpectedly held")
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Collect(ctx)
		}()
	}
	wg.Wait()

	if got := m.Skipped(); got != 3 {
		t.Errorf("Skipped() = %d, want 3", got)
	}
	if got := m.Cycles(); got != 0 {
		t.Errorf("Cycles() = %d, want 0 while guard held", got)
	}

	m.running.Store(false)
	m.Collect(ctx)
	if got := m.Cycles(); got != 1 {
		t.Errorf("Cycles() after release = %d, want 1", got)
	}
}

func TestCollectWritesSystemHealthSnapshot(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, Config{SystemHealthEvery: 1}, 2)
	m.startedAt = time.Now().UTC()

	m.Collect(ctx)

	sh, err := store.LatestSystemHealth(ctx)
	if err != nil {
		t.Fatalf("LatestSystemHealth: %v", err)
	}
	if !sh.SensorOnline {
		t.Error("SensorOnline = false, want true")
	}
	if sh.DataQuality != 100 {
		t.Errorf("DataQuality = %v, want 100", sh.DataQuality)
	}
}

func TestBuildSummary(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t, Config{SummarySampleSize: 2}, 4)

	// One panel offline: it stays in the count but not in ActivePanels.
	panels, err := store.ListPanels(ctx)
	if err != nil {
		t.Fatalf("ListPanels: %v", err)
	}
	if err := store.UpdatePanelStatus(ctx, panels[0].ID, models.PanelStatusOffline, nil); err != nil {
		t.Fatalf("UpdatePanelStatus: %v", err)
	}
	panels, _ = store.ListPanels(ctx)

	readings := []models.SensorReading{
		{EnergyOutput: 100, EfficiencyPercent: 90},
		{EnergyOutput: 200, EfficiencyPercent: 70},
		{EnergyOutput: 300, EfficiencyPercent: 80},
	}
	summary := m.buildSummary(ctx, panels, readings)

	if summary.PanelCount != 4 {
		t.Errorf("PanelCount = %d, want 4", summary.PanelCount)
	}
	if summary.ActivePanels != 3 {
		t.Errorf("ActivePanels = %d, want 3", summary.ActivePanels)
	}
	if summary.TotalEnergyW != 600 {
		t.Errorf("TotalEnergyW = %v, want 600", summary.TotalEnergyW)
	}
	if summary.AverageEfficiency != 80 {
		t.Errorf("AverageEfficiency = %v, want 80", summary.AverageEfficiency)
	}
	if len(summary.SampleReadings) != 2 {
		t.Errorf("SampleReadings has %d entries, want 2", len(summary.SampleReadings))
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, _, _ := newTestManager(t, Config{Interval: 50 * time.Millisecond}, 1)

	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx) }()

	time.Sleep(120 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}

	if m.Cycles() < 2 {
		t.Errorf("Cycles() = %d, want at least 2", m.Cycles())
	}
}
