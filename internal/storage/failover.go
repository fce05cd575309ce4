// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/health"
	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/metrics"
	"github.com/heliowatch/heliowatch/internal/models"
)

// FailoverState describes which backend a FailoverStore is serving from.
type FailoverState int32

const (
	// StateDurableActive routes all operations to the durable store.
	StateDurableActive FailoverState = iota
	// StateFallbackActive routes all operations to the in-memory store
	// after the durable store was declared unhealthy. The transition is
	// one-way for the lifetime of the process.
	StateFallbackActive
	// StateMemoryOnly means no durable store was ever configured.
	StateMemoryOnly
)

func (s FailoverState) String() string {
	switch s {
	case StateDurableActive:
		return "durable_active"
	case StateFallbackActive:
		return "fallback_active"
	case StateMemoryOnly:
		return "memory_only"
	default:
		return "unknown"
	}
}

// failureThreshold is the number of consecutive connectivity failures
// tolerated before the durable store is abandoned.
const failureThreshold = 3

// FailoverStore decorates a durable Store with a one-way automatic
// failover to an in-memory store. Every connectivity error from the
// durable backend increments a strike counter and the failing call is
// retried transparently against the fallback, so callers see the
// fallback's result rather than the failure. After failureThreshold
// consecutive strikes the delegator cuts over permanently and stops
// attempting the durable backend at all. Any successful durable
// operation resets the counter. Non-connectivity errors pass through
// untouched and do not count toward the threshold.
type FailoverStore struct {
	primary  Store
	fallback *MemoryStore

	state atomic.Int32

	mu      sync.Mutex
	strikes int

	onFailover func(reason error)
}

var _ Store = (*FailoverStore)(nil)

// NewFailoverStore wraps primary with automatic failover to fallback.
func NewFailoverStore(primary Store, fallback *MemoryStore) *FailoverStore {
	f := &FailoverStore{primary: primary, fallback: fallback}
	f.state.Store(int32(StateDurableActive))
	return f
}

// NewMemoryOnlyStore builds a FailoverStore that never had a durable
// backend. All operations go straight to the in-memory store.
func NewMemoryOnlyStore(fallback *MemoryStore) *FailoverStore {
	f := &FailoverStore{fallback: fallback}
	f.state.Store(int32(StateMemoryOnly))
	return f
}

// OnFailover registers a callback invoked exactly once when the durable
// store is abandoned. Must be called before the store is used.
func (f *FailoverStore) OnFailover(fn func(reason error)) {
	f.onFailover = fn
}

// State returns the current routing state.
func (f *FailoverStore) State() FailoverState {
	return FailoverState(f.state.Load())
}

// Strikes returns the current consecutive connectivity failure count.
func (f *FailoverStore) Strikes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.strikes
}

func (f *FailoverStore) active() Store {
	if f.State() == StateDurableActive {
		return f.primary
	}
	return f.fallback
}

func (f *FailoverStore) recordSuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.strikes > 0 {
		logging.Debug().Int("strikes", f.strikes).Msg("durable store recovered, failure counter reset")
		f.strikes = 0
		metrics.StorageConnectivityStrikes.Set(0)
	}
}

// recordFailure counts a connectivity failure and cuts over to the
// fallback once the threshold is reached.
func (f *FailoverStore) recordFailure(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Another goroutine may have cut over while this call was in flight.
	if f.State() != StateDurableActive {
		return
	}

	f.strikes++
	metrics.StorageConnectivityStrikes.Set(float64(f.strikes))
	logging.Warn().
		Err(err).
		Str("operation", op).
		Int("strikes", f.strikes).
		Int("threshold", failureThreshold).
		Msg("durable store connectivity failure")

	if f.strikes < failureThreshold {
		return
	}

	f.state.Store(int32(StateFallbackActive))
	logging.Error().
		Err(err).
		Str("operation", op).
		Msg("durable store abandoned, serving from in-memory fallback")
	if f.onFailover != nil {
		f.onFailover(err)
	}
}

// call runs fn against the active backend and applies the failover rules.
func call[T any](f *FailoverStore, op string, fn func(Store) (T, error)) (T, error) {
	onPrimary := f.State() == StateDurableActive
	store := f.active()
	backend := "memory"
	if onPrimary {
		backend = "durable"
	}

	out, err := fn(store)
	metrics.RecordStorageOperation(backend, op, err)
	if !onPrimary {
		return out, err
	}
	if err == nil {
		f.recordSuccess()
		return out, nil
	}
	if !IsConnectivityError(err) {
		return out, err
	}

	// Retry transparently on the in-memory fallback so the caller sees
	// its result instead of the connectivity failure.
	f.recordFailure(op, err)
	out, err = fn(f.fallback)
	metrics.RecordStorageOperation("memory", op, err)
	return out, err
}

func callErr(f *FailoverStore, op string, fn func(Store) error) error {
	_, err := call(f, op, func(s Store) (struct{}, error) {
		return struct{}{}, fn(s)
	})
	return err
}

func (f *FailoverStore) ListPanels(ctx context.Context) ([]models.Panel, error) {
	return call(f, "list_panels", func(s Store) ([]models.Panel, error) {
		return s.ListPanels(ctx)
	})
}

func (f *FailoverStore) GetPanel(ctx context.Context, id uuid.UUID) (*models.Panel, error) {
	return call(f, "get_panel", func(s Store) (*models.Panel, error) {
		return s.GetPanel(ctx, id)
	})
}

func (f *FailoverStore) GetPanelByNumber(ctx context.Context, number int) (*models.Panel, error) {
	return call(f, "get_panel_by_number", func(s Store) (*models.Panel, error) {
		return s.GetPanelByNumber(ctx, number)
	})
}

func (f *FailoverStore) CreatePanel(ctx context.Context, panel *models.Panel) error {
	return callErr(f, "create_panel", func(s Store) error {
		return s.CreatePanel(ctx, panel)
	})
}

func (f *FailoverStore) UpdatePanelHealth(ctx context.Context, id uuid.UUID, score float64) error {
	return callErr(f, "update_panel_health", func(s Store) error {
		return s.UpdatePanelHealth(ctx, id, score)
	})
}

func (f *FailoverStore) UpdatePanelStatus(ctx context.Context, id uuid.UUID, status models.PanelStatus, notes *string) error {
	return callErr(f, "update_panel_status", func(s Store) error {
		return s.UpdatePanelStatus(ctx, id, status, notes)
	})
}

func (f *FailoverStore) ListPanelsWithReadings(ctx context.Context) ([]models.PanelWithReading, error) {
	return call(f, "list_panels_with_readings", func(s Store) ([]models.PanelWithReading, error) {
		return s.ListPanelsWithReadings(ctx)
	})
}

func (f *FailoverStore) GetPanelDetail(ctx context.Context, id uuid.UUID) (*models.PanelDetail, error) {
	return call(f, "get_panel_detail", func(s Store) (*models.PanelDetail, error) {
		return s.GetPanelDetail(ctx, id)
	})
}

func (f *FailoverStore) CreateReading(ctx context.Context, reading *models.SensorReading) error {
	return callErr(f, "create_reading", func(s Store) error {
		return s.CreateReading(ctx, reading)
	})
}

func (f *FailoverStore) LatestReading(ctx context.Context, panelID uuid.UUID) (*models.SensorReading, error) {
	return call(f, "latest_reading", func(s Store) (*models.SensorReading, error) {
		return s.LatestReading(ctx, panelID)
	})
}

func (f *FailoverStore) LatestReadings(ctx context.Context) ([]models.SensorReading, error) {
	return call(f, "latest_readings", func(s Store) ([]models.SensorReading, error) {
		return s.LatestReadings(ctx)
	})
}

func (f *FailoverStore) ReadingsSince(ctx context.Context, hours int) ([]models.SensorReading, error) {
	return call(f, "readings_since", func(s Store) ([]models.SensorReading, error) {
		return s.ReadingsSince(ctx, hours)
	})
}

func (f *FailoverStore) PanelReadingsSince(ctx context.Context, panelID uuid.UUID, hours int) ([]models.SensorReading, error) {
	return call(f, "panel_readings_since", func(s Store) ([]models.SensorReading, error) {
		return s.PanelReadingsSince(ctx, panelID, hours)
	})
}

func (f *FailoverStore) ListPredictions(ctx context.Context, panelID *uuid.UUID, limit int) ([]models.Prediction, error) {
	return call(f, "list_predictions", func(s Store) ([]models.Prediction, error) {
		return s.ListPredictions(ctx, panelID, limit)
	})
}

func (f *FailoverStore) CreatePrediction(ctx context.Context, prediction *models.Prediction) error {
	return callErr(f, "create_prediction", func(s Store) error {
		return s.CreatePrediction(ctx, prediction)
	})
}

func (f *FailoverStore) ListRecommendations(ctx context.Context, panelID *uuid.UUID) ([]models.Recommendation, error) {
	return call(f, "list_recommendations", func(s Store) ([]models.Recommendation, error) {
		return s.ListRecommendations(ctx, panelID)
	})
}

func (f *FailoverStore) GetRecommendation(ctx context.Context, id uuid.UUID) (*models.Recommendation, error) {
	return call(f, "get_recommendation", func(s Store) (*models.Recommendation, error) {
		return s.GetRecommendation(ctx, id)
	})
}

func (f *FailoverStore) CreateRecommendation(ctx context.Context, rec *models.Recommendation) error {
	return callErr(f, "create_recommendation", func(s Store) error {
		return s.CreateRecommendation(ctx, rec)
	})
}

func (f *FailoverStore) SetRecommendationImplemented(ctx context.Context, id uuid.UUID, implemented bool) error {
	return callErr(f, "set_recommendation_implemented", func(s Store) error {
		return s.SetRecommendationImplemented(ctx, id, implemented)
	})
}

func (f *FailoverStore) ListActiveAlerts(ctx context.Context) ([]models.Alert, error) {
	return call(f, "list_active_alerts", func(s Store) ([]models.Alert, error) {
		return s.ListActiveAlerts(ctx)
	})
}

func (f *FailoverStore) ListPanelAlerts(ctx context.Context, panelID uuid.UUID) ([]models.Alert, error) {
	return call(f, "list_panel_alerts", func(s Store) ([]models.Alert, error) {
		return s.ListPanelAlerts(ctx, panelID)
	})
}

func (f *FailoverStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	return callErr(f, "create_alert", func(s Store) error {
		return s.CreateAlert(ctx, alert)
	})
}

func (f *FailoverStore) DismissAlert(ctx context.Context, id uuid.UUID) error {
	return callErr(f, "dismiss_alert", func(s Store) error {
		return s.DismissAlert(ctx, id)
	})
}

func (f *FailoverStore) LatestSystemHealth(ctx context.Context) (*models.SystemHealth, error) {
	return call(f, "latest_system_health", func(s Store) (*models.SystemHealth, error) {
		return s.LatestSystemHealth(ctx)
	})
}

func (f *FailoverStore) CreateSystemHealth(ctx context.Context, sh *models.SystemHealth) error {
	return callErr(f, "create_system_health", func(s Store) error {
		return s.CreateSystemHealth(ctx, sh)
	})
}

func (f *FailoverStore) AutoTiltSettings(ctx context.Context) (*models.AutoTiltSettings, error) {
	return call(f, "auto_tilt_settings", func(s Store) (*models.AutoTiltSettings, error) {
		return s.AutoTiltSettings(ctx)
	})
}

func (f *FailoverStore) UpdateAutoTiltSettings(ctx context.Context, update models.AutoTiltSettingsUpdate) (*models.AutoTiltSettings, error) {
	return call(f, "update_auto_tilt_settings", func(s Store) (*models.AutoTiltSettings, error) {
		return s.UpdateAutoTiltSettings(ctx, update)
	})
}

// HealthBreakdown never touches a backend; the scoring is pure.
func (f *FailoverStore) HealthBreakdown(reading *models.SensorReading) models.HealthBreakdown {
	return health.Score(reading)
}

func (f *FailoverStore) Ping(ctx context.Context) error {
	return f.active().Ping(ctx)
}

// Close shuts down both backends. The durable store is closed even
// after a cutover so its file handles are released.
func (f *FailoverStore) Close() error {
	var errs []error
	if f.primary != nil {
		if err := f.primary.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := f.fallback.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
