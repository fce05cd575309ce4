// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/heliowatch/heliowatch/internal/models"
	"github.com/heliowatch/heliowatch/internal/storage"
	"github.com/heliowatch/heliowatch/internal/weather"
)

// SystemHealth returns the latest system health snapshot.
func (h *Handler) SystemHealth(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	snapshot, err := h.store.LatestSystemHealth(r.Context())
	if err != nil {
		writeStoreError(rw, err, "no system health snapshot yet")
		return
	}
	rw.Success(snapshot)
}

// AutoTiltSettings returns the singleton auto-tilt configuration,
// creating the default lazily on first access.
func (h *Handler) AutoTiltSettings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	settings, err := h.store.AutoTiltSettings(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.Success(settings)
}

// UpdateAutoTiltSettings applies a partial update to the singleton.
// Omitted fields retain their current value.
func (h *Handler) UpdateAutoTiltSettings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req UpdateAutoTiltRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}
	if failures := validateRequest(&req); failures != nil {
		rw.ValidationError("invalid auto-tilt settings", failures)
		return
	}
	if req.MinAngle != nil && req.MaxAngle != nil && *req.MinAngle > *req.MaxAngle {
		rw.BadRequest("min_angle must not exceed max_angle")
		return
	}

	update := models.AutoTiltSettingsUpdate{
		Enabled:            req.Enabled,
		MinAngle:           req.MinAngle,
		MaxAngle:           req.MaxAngle,
		AdjustmentInterval: req.AdjustmentInterval,
		UseWeatherData:     req.UseWeatherData,
		Aggressiveness:     req.Aggressiveness,
	}
	if req.Mode != nil {
		mode := models.TiltMode(*req.Mode)
		update.Mode = &mode
	}

	settings, err := h.store.UpdateAutoTiltSettings(r.Context(), update)
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.Success(settings)
}

// Weather returns current site conditions, served from cache when the
// upstream is unavailable.
func (h *Handler) Weather(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.weather == nil {
		rw.ServiceUnavailable("weather integration disabled")
		return
	}

	conditions, err := h.weather.Current(r.Context())
	if err != nil {
		if errors.Is(err, weather.ErrNoData) {
			rw.ServiceUnavailable("weather data not available yet")
			return
		}
		rw.ExternalServiceError("weather", err)
		return
	}
	rw.Success(conditions)
}

// Summary computes the farm-wide aggregate served to the dashboard header.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	panels, err := h.store.ListPanelsWithReadings(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}
	alerts, err := h.store.ListActiveAlerts(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}

	summary := models.FarmSummary{
		GeneratedAt:  time.Now().UTC(),
		PanelCount:   len(panels),
		ActiveAlerts: len(alerts),
	}
	var effSum, healthSum float64
	var withReading int
	for _, p := range panels {
		if p.Status == models.PanelStatusActive {
			summary.ActivePanels++
		}
		healthSum += p.HealthScore
		if p.LatestReading != nil {
			summary.TotalEnergyW += p.LatestReading.EnergyOutput
			effSum += p.LatestReading.EfficiencyPercent
			withReading++
		}
	}
	if withReading > 0 {
		summary.AverageEfficiency = effSum / float64(withReading)
	}
	if len(panels) > 0 {
		summary.AverageHealth = healthSum / float64(len(panels))
	}

	rw.Success(summary)
}

// healthStatus is the GET /health payload.
type healthStatus struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Storage       struct {
		Backend   string `json:"backend"`
		Reachable bool   `json:"reachable"`
		Strikes   int    `json:"strikes,omitempty"`
	} `json:"storage"`
	WebsocketClients int `json:"websocket_clients"`
}

// Health returns overall service health including storage routing state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := healthStatus{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	status.Storage.Backend = "unknown"
	if h.failover != nil {
		status.Storage.Backend = h.failover.State().String()
		status.Storage.Strikes = h.failover.Strikes()
	}
	if err := h.store.Ping(r.Context()); err == nil {
		status.Storage.Reachable = true
	} else {
		status.Status = "degraded"
	}

	if h.hub != nil {
		status.WebsocketClients = h.hub.ClientCount()
	}

	rw.Success(status)
}

// HealthLive is the liveness probe: the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe: storage must answer. With the
// failover store active this effectively never fails, which is the
// availability-over-durability contract.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := h.store.Ping(r.Context()); err != nil {
		rw.ServiceUnavailable("storage not reachable")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}

// FailoverState reports the storage routing state for diagnostics.
func (h *Handler) FailoverState(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.failover == nil {
		rw.Success(map[string]string{"state": storage.StateDurableActive.String()})
		return
	}
	rw.Success(map[string]interface{}{
		"state":   h.failover.State().String(),
		"strikes": h.failover.Strikes(),
	})
}
