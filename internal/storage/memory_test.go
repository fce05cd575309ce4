// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package storage

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/models"
)

func seedPanels(t *testing.T, s *MemoryStore, numbers ...int) map[int]uuid.UUID {
	t.Helper()
	ids := make(map[int]uuid.UUID, len(numbers))
	for _, n := range numbers {
		p := testPanel(n)
		if err := s.CreatePanel(context.Background(), p); err != nil {
			t.Fatalf("seed panel %d: %v", n, err)
		}
		ids[n] = p.ID
	}
	return ids
}

func TestMemoryStorePanelOrdering(t *testing.T) {
	s := NewMemoryStore()
	seedPanels(t, s, 30, 5, 17, 1)

	panels, err := s.ListPanels(context.Background())
	if err != nil {
		t.Fatalf("ListPanels: %v", err)
	}
	want := []int{1, 5, 17, 30}
	if len(panels) != len(want) {
		t.Fatalf("got %d panels, want %d", len(panels), len(want))
	}
	for i, n := range want {
		if panels[i].PanelNumber != n {
			t.Errorf("panels[%d].PanelNumber = %d, want %d", i, panels[i].PanelNumber, n)
		}
	}
}

func TestMemoryStorePanelNotFound(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.GetPanel(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPanel: got %v, want ErrNotFound", err)
	}
	if _, err := s.GetPanelByNumber(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPanelByNumber: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreCreateReadingUpdatesHealth(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ids := seedPanels(t, s, 1)

	r := &models.SensorReading{
		PanelID:           ids[1],
		EnergyOutput:      250,
		EfficiencyPercent: 100,
		DustLevel:         0,
		Temperature:       25,
	}
	if err := s.CreateReading(ctx, r); err != nil {
		t.Fatalf("CreateReading: %v", err)
	}

	p, err := s.GetPanel(ctx, ids[1])
	if err != nil {
		t.Fatalf("GetPanel: %v", err)
	}
	if p.HealthScore != 100 {
		t.Errorf("HealthScore = %v, want 100", p.HealthScore)
	}
}

func TestMemoryStoreCreateReadingUnknownPanel(t *testing.T) {
	s := NewMemoryStore()
	r := &models.SensorReading{PanelID: uuid.New(), EfficiencyPercent: 50}
	if err := s.CreateReading(context.Background(), r); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreCreateReadingSanitizes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ids := seedPanels(t, s, 1)

	r := &models.SensorReading{
		PanelID:           ids[1],
		EnergyOutput:      math.NaN(),
		EfficiencyPercent: 140,
		Voltage:           math.Inf(1),
	}
	if err := s.CreateReading(ctx, r); err != nil {
		t.Fatalf("CreateReading: %v", err)
	}

	got, err := s.LatestReading(ctx, ids[1])
	if err != nil {
		t.Fatalf("LatestReading: %v", err)
	}
	if got.ID == uuid.Nil {
		t.Error("reading ID not assigned")
	}
	if got.Timestamp.IsZero() {
		t.Error("reading timestamp not assigned")
	}
	if got.EnergyOutput != 0 {
		t.Errorf("EnergyOutput = %v, want 0 after sanitize", got.EnergyOutput)
	}
	if got.Voltage != 0 {
		t.Errorf("Voltage = %v, want 0 after sanitize", got.Voltage)
	}
	if got.EfficiencyPercent != 100 {
		t.Errorf("EfficiencyPercent = %v, want clamped to 100", got.EfficiencyPercent)
	}
}

func TestMemoryStoreLatestAndWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ids := seedPanels(t, s, 1, 2)

	now := time.Now().UTC()
	stamps := []time.Time{
		now.Add(-48 * time.Hour),
		now.Add(-2 * time.Hour),
		now.Add(-10 * time.Minute),
	}
	for _, ts := range stamps {
		r := &models.SensorReading{PanelID: ids[1], Timestamp: ts, EfficiencyPercent: 80}
		if err := s.CreateReading(ctx, r); err != nil {
			t.Fatalf("CreateReading: %v", err)
		}
	}

	latest, err := s.LatestReading(ctx, ids[1])
	if err != nil {
		t.Fatalf("LatestReading: %v", err)
	}
	if !latest.Timestamp.Equal(stamps[2]) {
		t.Errorf("latest timestamp = %v, want %v", latest.Timestamp, stamps[2])
	}

	if _, err := s.LatestReading(ctx, ids[2]); !errors.Is(err, ErrNotFound) {
		t.Errorf("panel without readings: got %v, want ErrNotFound", err)
	}

	window, err := s.PanelReadingsSince(ctx, ids[1], 24)
	if err != nil {
		t.Fatalf("PanelReadingsSince: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("window has %d readings, want 2", len(window))
	}
	if !window[0].Timestamp.Before(window[1].Timestamp) {
		t.Error("window readings not in ascending timestamp order")
	}

	all, err := s.ReadingsSince(ctx, 72)
	if err != nil {
		t.Fatalf("ReadingsSince: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ReadingsSince(72) returned %d readings, want 3", len(all))
	}
}

func TestMemoryStoreRecommendationOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	add := func(urgency models.Urgency, impact float64) {
		rec := &models.Recommendation{
			Title:       "rec",
			Description: "d",
			Category:    models.RecommendationCleaning,
			Urgency:     urgency,
			ImpactScore: impact,
			Explanation: "e",
		}
		if err := s.CreateRecommendation(ctx, rec); err != nil {
			t.Fatalf("CreateRecommendation: %v", err)
		}
	}
	add(models.UrgencyLow, 90)
	add(models.UrgencyHigh, 10)
	add(models.UrgencyMedium, 50)
	add(models.UrgencyHigh, 70)

	recs, err := s.ListRecommendations(ctx, nil)
	if err != nil {
		t.Fatalf("ListRecommendations: %v", err)
	}
	type key struct {
		urgency models.Urgency
		impact  float64
	}
	want := []key{
		{models.UrgencyHigh, 70},
		{models.UrgencyHigh, 10},
		{models.UrgencyMedium, 50},
		{models.UrgencyLow, 90},
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d recommendations, want %d", len(recs), len(want))
	}
	for i, w := range want {
		if recs[i].Urgency != w.urgency || recs[i].ImpactScore != w.impact {
			t.Errorf("recs[%d] = %s/%v, want %s/%v",
				i, recs[i].Urgency, recs[i].ImpactScore, w.urgency, w.impact)
		}
	}
}

func TestMemoryStoreImplementRecommendation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := &models.Recommendation{Title: "clean", Category: models.RecommendationCleaning, Urgency: models.UrgencyLow}
	if err := s.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("CreateRecommendation: %v", err)
	}
	if err := s.SetRecommendationImplemented(ctx, rec.ID, true); err != nil {
		t.Fatalf("SetRecommendationImplemented: %v", err)
	}
	got, err := s.GetRecommendation(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecommendation: %v", err)
	}
	if !got.Implemented {
		t.Error("recommendation not marked implemented")
	}

	if err := s.SetRecommendationImplemented(ctx, uuid.New(), true); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: got %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreAlertsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ids := seedPanels(t, s, 1)
	panelID := ids[1]

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		a := &models.Alert{
			PanelID:   &panelID,
			Severity:  models.AlertSeverityWarning,
			Category:  models.AlertCategoryDust,
			Title:     "dust",
			Message:   "dust building up",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateAlert(ctx, a); err != nil {
			t.Fatalf("CreateAlert: %v", err)
		}
	}

	alerts, err := s.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("ListActiveAlerts: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("got %d alerts, want 3", len(alerts))
	}
	for i := 1; i < len(alerts); i++ {
		if alerts[i].CreatedAt.After(alerts[i-1].CreatedAt) {
			t.Error("alerts not in descending created_at order")
		}
	}

	if err := s.DismissAlert(ctx, alerts[0].ID); err != nil {
		t.Fatalf("DismissAlert: %v", err)
	}
	remaining, err := s.ListActiveAlerts(ctx)
	if err != nil {
		t.Fatalf("ListActiveAlerts: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("got %d active alerts after dismiss, want 2", len(remaining))
	}
}

func TestMemoryStoreAutoTiltDefaultsAndMerge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	settings, err := s.AutoTiltSettings(ctx)
	if err != nil {
		t.Fatalf("AutoTiltSettings: %v", err)
	}
	defaults := models.DefaultAutoTiltSettings()
	if settings.Enabled != defaults.Enabled || settings.Mode != defaults.Mode ||
		settings.MinAngle != defaults.MinAngle || settings.MaxAngle != defaults.MaxAngle {
		t.Errorf("first read = %+v, want defaults %+v", settings, defaults)
	}

	enabled := true
	maxAngle := 75.0
	updated, err := s.UpdateAutoTiltSettings(ctx, models.AutoTiltSettingsUpdate{
		Enabled:  &enabled,
		MaxAngle: &maxAngle,
	})
	if err != nil {
		t.Fatalf("UpdateAutoTiltSettings: %v", err)
	}
	if !updated.Enabled {
		t.Error("Enabled not applied")
	}
	if updated.MaxAngle != 75 {
		t.Errorf("MaxAngle = %v, want 75", updated.MaxAngle)
	}
	// Untouched fields keep their previous values.
	if updated.MinAngle != defaults.MinAngle {
		t.Errorf("MinAngle = %v, want %v", updated.MinAngle, defaults.MinAngle)
	}
	if updated.Mode != defaults.Mode {
		t.Errorf("Mode = %v, want %v", updated.Mode, defaults.Mode)
	}
}

func TestMemoryStoreMaintenanceSetsTimestamp(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ids := seedPanels(t, s, 1)

	note := "inverter swap"
	if err := s.UpdatePanelStatus(ctx, ids[1], models.PanelStatusMaintenance, &note); err != nil {
		t.Fatalf("UpdatePanelStatus: %v", err)
	}
	p, err := s.GetPanel(ctx, ids[1])
	if err != nil {
		t.Fatalf("GetPanel: %v", err)
	}
	if p.Status != models.PanelStatusMaintenance {
		t.Errorf("Status = %s, want maintenance", p.Status)
	}
	if p.LastMaintenance == nil {
		t.Error("LastMaintenance not set")
	}
	if p.Notes == nil || *p.Notes != note {
		t.Errorf("Notes = %v, want %q", p.Notes, note)
	}
}

func TestMemoryStorePanelDetail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ids := seedPanels(t, s, 1)
	panelID := ids[1]

	r := &models.SensorReading{PanelID: panelID, EfficiencyPercent: 90, DustLevel: 1, Temperature: 26}
	if err := s.CreateReading(ctx, r); err != nil {
		t.Fatalf("CreateReading: %v", err)
	}
	rec := &models.Recommendation{PanelID: &panelID, Title: "tilt", Category: models.RecommendationTiltAdjustment, Urgency: models.UrgencyMedium}
	if err := s.CreateRecommendation(ctx, rec); err != nil {
		t.Fatalf("CreateRecommendation: %v", err)
	}

	detail, err := s.GetPanelDetail(ctx, panelID)
	if err != nil {
		t.Fatalf("GetPanelDetail: %v", err)
	}
	if detail.LatestReading == nil {
		t.Fatal("detail missing latest reading")
	}
	if detail.HealthBreakdown == nil {
		t.Fatal("detail missing health breakdown")
	}
	if len(detail.Recommendations) != 1 {
		t.Errorf("detail has %d recommendations, want 1", len(detail.Recommendations))
	}
}
