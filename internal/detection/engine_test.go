// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package detection

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/eventbus"
	"github.com/heliowatch/heliowatch/internal/models"
	"github.com/heliowatch/heliowatch/internal/storage"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *storage.MemoryStore, uuid.UUID) {
	t.Helper()
	store := storage.NewMemoryStore()
	p := &models.Panel{
		ID:          uuid.New(),
		PanelNumber: 1,
		Location:    "row-1",
		InstallDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:      models.PanelStatusActive,
	}
	if err := store.CreatePanel(context.Background(), p); err != nil {
		t.Fatalf("seed panel: %v", err)
	}
	bus := eventbus.New(eventbus.DefaultConfig(), nil)
	t.Cleanup(func() { _ = bus.Close() })
	cfg.Enabled = true
	return NewEngine(cfg, store, bus), store, p.ID
}

func TestProcessBatchRaisesOverheatAlert(t *testing.T) {
	ctx := context.Background()
	engine, store, panelID := newTestEngine(t, DefaultConfig())

	engine.ProcessBatch(ctx, []models.SensorReading{
		{PanelID: panelID, Temperature: 80, SunlightIntensity: 900, EfficiencyPercent: 85},
	})

	alerts, err := store.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("ListActiveAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Category != models.AlertCategoryOverheat {
		t.Errorf("category = %s, want overheat", alerts[0].Category)
	}
	if alerts[0].PanelID == nil || *alerts[0].PanelID != panelID {
		t.Error("alert not attributed to the panel")
	}
}

func TestProcessBatchCooldownSuppressesRepeats(t *testing.T) {
	ctx := context.Background()
	engine, store, panelID := newTestEngine(t, DefaultConfig())

	hot := []models.SensorReading{{PanelID: panelID, Temperature: 80}}
	engine.ProcessBatch(ctx, hot)
	engine.ProcessBatch(ctx, hot)
	engine.ProcessBatch(ctx, hot)

	alerts, err := store.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("ListActiveAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Errorf("got %d alerts, want 1 (cooldown should suppress repeats)", len(alerts))
	}
}

func TestProcessBatchCooldownExpires(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Cooldown = 10 * time.Minute
	engine, store, panelID := newTestEngine(t, cfg)

	current := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return current }

	hot := []models.SensorReading{{PanelID: panelID, Temperature: 80}}
	engine.ProcessBatch(ctx, hot)

	current = current.Add(11 * time.Minute)
	engine.ProcessBatch(ctx, hot)

	alerts, err := store.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("ListActiveAlerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Errorf("got %d alerts, want 2 after cooldown expiry", len(alerts))
	}
}

func TestSilentPanelRaisesAlert(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.SilenceAfter = 2 * time.Minute
	engine, store, panelID := newTestEngine(t, cfg)

	current := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return current }

	// Panel reports normally, then goes quiet.
	engine.ProcessBatch(ctx, []models.SensorReading{
		{PanelID: panelID, Temperature: 30, SunlightIntensity: 900, EfficiencyPercent: 85},
	})

	current = current.Add(5 * time.Minute)
	engine.ProcessBatch(ctx, nil)

	alerts, err := store.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("ListActiveAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].Category != models.AlertCategorySensorSilence {
		t.Errorf("category = %s, want sensor_silence", alerts[0].Category)
	}
}

func TestAlertsArePublishedToBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, _, panelID := newTestEngine(t, DefaultConfig())

	ch, err := engine.bus.Subscribe(ctx, eventbus.TopicAlerts)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	engine.ProcessBatch(ctx, []models.SensorReading{{PanelID: panelID, Temperature: 80}})

	select {
	case msg := <-ch:
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("alert not published to bus")
	}
}
