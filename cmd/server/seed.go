// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/config"
	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/models"
	"github.com/heliowatch/heliowatch/internal/storage"
)

// seedFarm creates the fixed panel set when storage holds no panels yet.
// Panels are numbered 1..N; rows of 20 panels map to location strings so
// the dashboard can group them spatially.
func seedFarm(ctx context.Context, store storage.Store, farm config.FarmConfig) error {
	ctx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	defer cancel()

	existing, err := store.ListPanels(ctx)
	if err != nil {
		return fmt.Errorf("list panels: %w", err)
	}
	if len(existing) > 0 {
		logging.Info().Int("panels", len(existing)).Msg("Farm already seeded")
		return nil
	}

	now := time.Now().UTC()
	// Stagger install dates so age-related views have variety.
	installBase := now.AddDate(-2, 0, 0)

	for n := 1; n <= farm.PanelCount; n++ {
		row := (n-1)/20 + 1
		position := (n-1)%20 + 1
		panel := models.Panel{
			ID:          uuid.New(),
			PanelNumber: n,
			Location:    fmt.Sprintf("%s / Row %d / Position %d", farm.Location, row, position),
			InstallDate: installBase.AddDate(0, 0, n),
			HealthScore: 100,
			Status:      models.PanelStatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := store.CreatePanel(ctx, &panel); err != nil {
			return fmt.Errorf("create panel %d: %w", n, err)
		}
	}

	logging.Info().
		Int("panels", farm.PanelCount).
		Str("location", farm.Location).
		Msg("Farm seeded")
	return nil
}
