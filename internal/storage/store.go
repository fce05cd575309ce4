// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package storage defines the storage contract shared by every persistence
// backend, plus the backends themselves: a durable DuckDB store, an
// in-memory store, and a failover delegator that presents one facade over
// both.
//
// The contract is semantic, not just syntactic. Sort orders are part of it:
//
//   - panels: panel number ascending
//   - readings: timestamp ascending for ranges; "latest" is the single most
//     recent reading
//   - recommendations: urgency weight descending, impact score descending as
//     tie-break
//   - alerts: timestamp descending
//
// Creating a reading has a contractual side effect: the owning panel's
// health score is recomputed and persisted, unless the computed total is
// non-finite, in which case the prior score is silently retained.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/models"
)

// ErrNotFound is returned when a requested entity does not exist.
// All backends return this same sentinel so callers can match with errors.Is.
var ErrNotFound = errors.New("storage: not found")

// Store is the contract every persistence backend implements with identical
// externally observable semantics. The failover delegator implements it too,
// so the rest of the system never knows which backend is active.
type Store interface {
	// Panel operations. ListPanels returns panels ordered by panel number
	// ascending regardless of insertion order.
	ListPanels(ctx context.Context) ([]models.Panel, error)
	GetPanel(ctx context.Context, id uuid.UUID) (*models.Panel, error)
	GetPanelByNumber(ctx context.Context, number int) (*models.Panel, error)
	CreatePanel(ctx context.Context, panel *models.Panel) error
	UpdatePanelHealth(ctx context.Context, id uuid.UUID, score float64) error
	UpdatePanelStatus(ctx context.Context, id uuid.UUID, status models.PanelStatus, notes *string) error
	ListPanelsWithReadings(ctx context.Context) ([]models.PanelWithReading, error)
	GetPanelDetail(ctx context.Context, id uuid.UUID) (*models.PanelDetail, error)

	// Reading operations. CreateReading recomputes the owning panel's
	// health score as a side effect (finite results only). Window queries
	// take an hour count and return readings with timestamp >= now-hours,
	// ordered ascending.
	CreateReading(ctx context.Context, reading *models.SensorReading) error
	LatestReading(ctx context.Context, panelID uuid.UUID) (*models.SensorReading, error)
	LatestReadings(ctx context.Context) ([]models.SensorReading, error)
	ReadingsSince(ctx context.Context, hours int) ([]models.SensorReading, error)
	PanelReadingsSince(ctx context.Context, panelID uuid.UUID, hours int) ([]models.SensorReading, error)

	// Prediction operations. panelID nil means all panels; limit <= 0
	// means no limit. Ordered by creation time descending.
	ListPredictions(ctx context.Context, panelID *uuid.UUID, limit int) ([]models.Prediction, error)
	CreatePrediction(ctx context.Context, prediction *models.Prediction) error

	// Recommendation operations. Ordered by urgency weight descending,
	// then impact score descending.
	ListRecommendations(ctx context.Context, panelID *uuid.UUID) ([]models.Recommendation, error)
	GetRecommendation(ctx context.Context, id uuid.UUID) (*models.Recommendation, error)
	CreateRecommendation(ctx context.Context, rec *models.Recommendation) error
	SetRecommendationImplemented(ctx context.Context, id uuid.UUID, implemented bool) error

	// Alert operations. Active alerts are those not yet dismissed,
	// ordered by timestamp descending.
	ListActiveAlerts(ctx context.Context) ([]models.Alert, error)
	ListPanelAlerts(ctx context.Context, panelID uuid.UUID) ([]models.Alert, error)
	CreateAlert(ctx context.Context, alert *models.Alert) error
	DismissAlert(ctx context.Context, id uuid.UUID) error

	// SystemHealth operations. Latest-only reads dominate.
	LatestSystemHealth(ctx context.Context) (*models.SystemHealth, error)
	CreateSystemHealth(ctx context.Context, snapshot *models.SystemHealth) error

	// AutoTiltSettings singleton. Reads create the default instance lazily;
	// updates apply partial-merge semantics (nil fields retain prior value).
	AutoTiltSettings(ctx context.Context) (*models.AutoTiltSettings, error)
	UpdateAutoTiltSettings(ctx context.Context, update models.AutoTiltSettingsUpdate) (*models.AutoTiltSettings, error)

	// HealthBreakdown computes the health score decomposition for a
	// reading. Pure and backend-independent; the failover delegator always
	// computes it locally.
	HealthBreakdown(reading *models.SensorReading) models.HealthBreakdown

	// Ping reports backend reachability.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// connectivitySubstrings classifies an error as a connectivity failure when
// its text contains any of these, case-insensitively. Intentionally broad:
// availability is preferred over durability, so borderline failures fall
// back to memory rather than surfacing.
var connectivitySubstrings = []string{
	"connection",
	"timeout",
	"econn",
	"econnrefused",
	"enotfound",
	"network",
	"socket",
	"terminated",
}

// IsConnectivityError reports whether err is classified as a connectivity
// failure for failover purposes. Context cancellation and deadline errors
// classify as connectivity via their standard messages ("context deadline
// exceeded" does not match, but driver-level timeouts do).
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range connectivitySubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
