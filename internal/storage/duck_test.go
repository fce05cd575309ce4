// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/models"
)

func openTestDuckStore(t *testing.T) *DuckStore {
	t.Helper()
	db, err := NewDuckStore(&DuckConfig{
		Path:      filepath.Join(t.TempDir(), "heliowatch.db"),
		MaxMemory: "128MB",
		Threads:   1,
	})
	if err != nil {
		t.Fatalf("NewDuckStore: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Both backends must expose the same alert listing behavior: panel
// history keeps dismissed alerts, the active listing drops them.
func TestAlertListingParityAcrossBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"duckdb": func(t *testing.T) Store { return openTestDuckStore(t) },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			panel := testPanel(12)
			if err := s.CreatePanel(ctx, panel); err != nil {
				t.Fatalf("CreatePanel: %v", err)
			}

			base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
			older := &models.Alert{
				ID:        uuid.New(),
				PanelID:   &panel.ID,
				Severity:  models.AlertSeverityWarning,
				Category:  models.AlertCategoryDust,
				Title:     "Dust accumulation",
				Message:   "dust level above threshold",
				CreatedAt: base,
			}
			newer := &models.Alert{
				ID:        uuid.New(),
				PanelID:   &panel.ID,
				Severity:  models.AlertSeverityCritical,
				Category:  models.AlertCategoryOverheat,
				Title:     "Panel overheating",
				Message:   "temperature above threshold",
				CreatedAt: base.Add(time.Hour),
			}
			for _, a := range []*models.Alert{older, newer} {
				if err := s.CreateAlert(ctx, a); err != nil {
					t.Fatalf("CreateAlert: %v", err)
				}
			}
			if err := s.DismissAlert(ctx, newer.ID); err != nil {
				t.Fatalf("DismissAlert: %v", err)
			}

			history, err := s.ListPanelAlerts(ctx, panel.ID)
			if err != nil {
				t.Fatalf("ListPanelAlerts: %v", err)
			}
			if len(history) != 2 {
				t.Fatalf("panel history has %d alerts, want 2 (dismissed included)", len(history))
			}
			if history[0].ID != newer.ID || history[1].ID != older.ID {
				t.Error("panel history not ordered newest first")
			}
			if !history[0].Dismissed {
				t.Error("dismissed alert lost its flag in panel history")
			}

			active, err := s.ListActiveAlerts(ctx)
			if err != nil {
				t.Fatalf("ListActiveAlerts: %v", err)
			}
			if len(active) != 1 || active[0].ID != older.ID {
				t.Fatalf("active listing = %d alerts, want only the non-dismissed one", len(active))
			}
		})
	}
}
