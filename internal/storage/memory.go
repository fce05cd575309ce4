// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package storage

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/health"
	"github.com/heliowatch/heliowatch/internal/models"
)

// MemoryStore is the in-memory persistence backend. It owns its consistency
// domain entirely: all state lives behind one mutex, values are copied on
// the way in and out, and no operation can fail with a connectivity error.
//
// It serves two roles: the fallback target of the failover delegator, and
// the sole backend when no durable store was configured (memory-only mode).
type MemoryStore struct {
	mu sync.RWMutex

	panels          map[uuid.UUID]*models.Panel
	readings        map[uuid.UUID][]models.SensorReading // keyed by panel ID, append order
	predictions     []models.Prediction
	recommendations map[uuid.UUID]*models.Recommendation
	alerts          map[uuid.UUID]*models.Alert
	healthSnapshots []models.SystemHealth
	tilt            *models.AutoTiltSettings
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		panels:          make(map[uuid.UUID]*models.Panel),
		readings:        make(map[uuid.UUID][]models.SensorReading),
		recommendations: make(map[uuid.UUID]*models.Recommendation),
		alerts:          make(map[uuid.UUID]*models.Alert),
	}
}

var _ Store = (*MemoryStore)(nil)

// ListPanels returns all panels ordered by panel number ascending.
func (s *MemoryStore) ListPanels(_ context.Context) ([]models.Panel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.panelsLocked(), nil
}

// panelsLocked returns a sorted copy of all panels. Caller holds mu.
func (s *MemoryStore) panelsLocked() []models.Panel {
	out := make([]models.Panel, 0, len(s.panels))
	for _, p := range s.panels {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PanelNumber < out[j].PanelNumber })
	return out
}

// GetPanel returns the panel with the given ID.
func (s *MemoryStore) GetPanel(_ context.Context, id uuid.UUID) (*models.Panel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.panels[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetPanelByNumber returns the panel with the given sequential number.
func (s *MemoryStore) GetPanelByNumber(_ context.Context, number int) (*models.Panel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.panels {
		if p.PanelNumber == number {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// CreatePanel stores a new panel, assigning identity and timestamps when
// missing.
func (s *MemoryStore) CreatePanel(_ context.Context, panel *models.Panel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if panel.ID == uuid.Nil {
		panel.ID = uuid.New()
	}
	now := time.Now().UTC()
	if panel.CreatedAt.IsZero() {
		panel.CreatedAt = now
	}
	panel.UpdatedAt = now

	cp := *panel
	s.panels[panel.ID] = &cp
	return nil
}

// UpdatePanelHealth persists a recomputed health score for a panel.
func (s *MemoryStore) UpdatePanelHealth(_ context.Context, id uuid.UUID, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateHealthLocked(id, score)
}

// updateHealthLocked applies a health score update. Caller holds mu.
func (s *MemoryStore) updateHealthLocked(id uuid.UUID, score float64) error {
	p, ok := s.panels[id]
	if !ok {
		return ErrNotFound
	}
	p.HealthScore = score
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdatePanelStatus changes a panel's operational status and optional notes.
func (s *MemoryStore) UpdatePanelStatus(_ context.Context, id uuid.UUID, status models.PanelStatus, notes *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panels[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	if notes != nil {
		cp := *notes
		p.Notes = &cp
	}
	if status == models.PanelStatusMaintenance {
		now := time.Now().UTC()
		p.LastMaintenance = &now
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ListPanelsWithReadings returns every panel with its latest reading
// attached, ordered by panel number ascending.
func (s *MemoryStore) ListPanelsWithReadings(_ context.Context) ([]models.PanelWithReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	panels := s.panelsLocked()
	out := make([]models.PanelWithReading, 0, len(panels))
	for i := range panels {
		pwr := models.PanelWithReading{Panel: panels[i]}
		if latest := s.latestReadingLocked(panels[i].ID); latest != nil {
			pwr.LatestReading = latest
		}
		out = append(out, pwr)
	}
	return out, nil
}

// GetPanelDetail assembles the full detail view for one panel.
func (s *MemoryStore) GetPanelDetail(ctx context.Context, id uuid.UUID) (*models.PanelDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.panels[id]
	if !ok {
		return nil, ErrNotFound
	}

	detail := &models.PanelDetail{
		Panel:           *p,
		Recommendations: s.recommendationsLocked(&id),
		Alerts:          s.panelAlertsLocked(id),
	}
	if latest := s.latestReadingLocked(id); latest != nil {
		detail.LatestReading = latest
		breakdown := health.Score(latest)
		detail.HealthBreakdown = &breakdown
	}
	return detail, nil
}

// CreateReading stores a reading and recomputes the owning panel's health
// score. A non-finite total is silently dropped, leaving the prior score
// untouched.
func (s *MemoryStore) CreateReading(_ context.Context, reading *models.SensorReading) error {
	sanitizeReading(reading)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.panels[reading.PanelID]; !ok {
		return ErrNotFound
	}

	s.readings[reading.PanelID] = append(s.readings[reading.PanelID], *reading)

	breakdown := health.Score(reading)
	if !math.IsNaN(breakdown.TotalScore) && !math.IsInf(breakdown.TotalScore, 0) {
		_ = s.updateHealthLocked(reading.PanelID, breakdown.TotalScore)
	}
	return nil
}

// LatestReading returns the most recent reading for a panel.
func (s *MemoryStore) LatestReading(_ context.Context, panelID uuid.UUID) (*models.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := s.latestReadingLocked(panelID)
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

// latestReadingLocked returns a copy of the newest reading for a panel, or
// nil when the panel has none. Caller holds mu.
func (s *MemoryStore) latestReadingLocked(panelID uuid.UUID) *models.SensorReading {
	rs := s.readings[panelID]
	if len(rs) == 0 {
		return nil
	}
	latest := rs[0]
	for _, r := range rs[1:] {
		if r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	return &latest
}

// LatestReadings returns the most recent reading of every panel that has
// one, ordered by the owning panel's number ascending.
func (s *MemoryStore) LatestReadings(_ context.Context) ([]models.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	panels := s.panelsLocked()
	out := make([]models.SensorReading, 0, len(panels))
	for i := range panels {
		if latest := s.latestReadingLocked(panels[i].ID); latest != nil {
			out = append(out, *latest)
		}
	}
	return out, nil
}

// ReadingsSince returns all readings with timestamp >= now-hours, ordered
// by timestamp ascending.
func (s *MemoryStore) ReadingsSince(_ context.Context, hours int) ([]models.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := windowStart(hours)
	var out []models.SensorReading
	for _, rs := range s.readings {
		for _, r := range rs {
			if !r.Timestamp.Before(cutoff) {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// PanelReadingsSince returns one panel's readings inside the window,
// ordered by timestamp ascending.
func (s *MemoryStore) PanelReadingsSince(_ context.Context, panelID uuid.UUID, hours int) ([]models.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := windowStart(hours)
	var out []models.SensorReading
	for _, r := range s.readings[panelID] {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ListPredictions returns predictions, newest first, optionally filtered by
// panel and bounded by limit.
func (s *MemoryStore) ListPredictions(_ context.Context, panelID *uuid.UUID, limit int) ([]models.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Prediction
	for _, p := range s.predictions {
		if panelID != nil && (p.PanelID == nil || *p.PanelID != *panelID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreatePrediction stores a prediction.
func (s *MemoryStore) CreatePrediction(_ context.Context, prediction *models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prediction.ID == uuid.Nil {
		prediction.ID = uuid.New()
	}
	if prediction.CreatedAt.IsZero() {
		prediction.CreatedAt = time.Now().UTC()
	}
	s.predictions = append(s.predictions, *prediction)
	return nil
}

// ListRecommendations returns recommendations ordered by urgency weight
// descending, then impact score descending, optionally filtered by panel.
func (s *MemoryStore) ListRecommendations(_ context.Context, panelID *uuid.UUID) ([]models.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recommendationsLocked(panelID), nil
}

// recommendationsLocked returns sorted recommendation copies. Caller holds mu.
func (s *MemoryStore) recommendationsLocked(panelID *uuid.UUID) []models.Recommendation {
	out := make([]models.Recommendation, 0, len(s.recommendations))
	for _, rec := range s.recommendations {
		if panelID != nil && (rec.PanelID == nil || *rec.PanelID != *panelID) {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := out[i].Urgency.Weight(), out[j].Urgency.Weight()
		if wi != wj {
			return wi > wj
		}
		return out[i].ImpactScore > out[j].ImpactScore
	})
	return out
}

// GetRecommendation returns the recommendation with the given ID.
func (s *MemoryStore) GetRecommendation(_ context.Context, id uuid.UUID) (*models.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recommendations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// CreateRecommendation stores a recommendation.
func (s *MemoryStore) CreateRecommendation(_ context.Context, rec *models.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	cp := *rec
	s.recommendations[rec.ID] = &cp
	return nil
}

// SetRecommendationImplemented flips the implemented flag.
func (s *MemoryStore) SetRecommendationImplemented(_ context.Context, id uuid.UUID, implemented bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recommendations[id]
	if !ok {
		return ErrNotFound
	}
	rec.Implemented = implemented
	return nil
}

// ListActiveAlerts returns non-dismissed alerts, newest first.
func (s *MemoryStore) ListActiveAlerts(_ context.Context) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Alert
	for _, a := range s.alerts {
		if !a.Dismissed {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListPanelAlerts returns all alerts for one panel, newest first, dismissed
// included.
func (s *MemoryStore) ListPanelAlerts(_ context.Context, panelID uuid.UUID) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.panelAlertsLocked(panelID), nil
}

// panelAlertsLocked returns sorted alert copies for a panel. Caller holds mu.
func (s *MemoryStore) panelAlertsLocked(panelID uuid.UUID) []models.Alert {
	var out []models.Alert
	for _, a := range s.alerts {
		if a.PanelID != nil && *a.PanelID == panelID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// CreateAlert stores an alert.
func (s *MemoryStore) CreateAlert(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	cp := *alert
	s.alerts[alert.ID] = &cp
	return nil
}

// DismissAlert soft-deletes an alert by setting its dismissed flag.
func (s *MemoryStore) DismissAlert(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	a.Dismissed = true
	return nil
}

// LatestSystemHealth returns the newest system health snapshot.
func (s *MemoryStore) LatestSystemHealth(_ context.Context) (*models.SystemHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.healthSnapshots) == 0 {
		return nil, ErrNotFound
	}
	latest := s.healthSnapshots[len(s.healthSnapshots)-1]
	return &latest, nil
}

// CreateSystemHealth appends a system health snapshot.
func (s *MemoryStore) CreateSystemHealth(_ context.Context, snapshot *models.SystemHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	s.healthSnapshots = append(s.healthSnapshots, *snapshot)
	return nil
}

// AutoTiltSettings returns the tilt settings singleton, creating the default
// instance on first access.
func (s *MemoryStore) AutoTiltSettings(_ context.Context) (*models.AutoTiltSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tilt == nil {
		def := models.DefaultAutoTiltSettings()
		s.tilt = &def
	}
	cp := *s.tilt
	return &cp, nil
}

// UpdateAutoTiltSettings merges a partial update onto the singleton,
// creating the default instance first when none exists yet.
func (s *MemoryStore) UpdateAutoTiltSettings(_ context.Context, update models.AutoTiltSettingsUpdate) (*models.AutoTiltSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tilt == nil {
		def := models.DefaultAutoTiltSettings()
		s.tilt = &def
	}
	update.Apply(s.tilt)
	cp := *s.tilt
	return &cp, nil
}

// HealthBreakdown computes the health score decomposition for a reading.
func (s *MemoryStore) HealthBreakdown(reading *models.SensorReading) models.HealthBreakdown {
	return health.Score(reading)
}

// Ping always succeeds: memory cannot be unreachable.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
