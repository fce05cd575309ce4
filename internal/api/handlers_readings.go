// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/models"
)

// LatestReadings returns the most recent reading per panel, ordered by
// panel number.
func (h *Handler) LatestReadings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	readings, err := h.store.LatestReadings(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.SuccessWithCount(readings, len(readings))
}

// ReadingsWindow returns all readings inside the requested hour window,
// timestamp ascending.
func (h *Handler) ReadingsWindow(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	hours, ok := hoursParam(rw, r)
	if !ok {
		return
	}

	readings, err := h.store.ReadingsSince(r.Context(), hours)
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.SuccessWithCount(readings, len(readings))
}

// PanelReadings returns one panel's readings inside the requested hour
// window, timestamp ascending.
func (h *Handler) PanelReadings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := panelIDParam(rw, r)
	if !ok {
		return
	}
	hours, ok := hoursParam(rw, r)
	if !ok {
		return
	}

	if _, err := h.store.GetPanel(r.Context(), id); err != nil {
		writeStoreError(rw, err, "panel not found")
		return
	}

	readings, err := h.store.PanelReadingsSince(r.Context(), id, hours)
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.SuccessWithCount(readings, len(readings))
}

// CreateReading injects one reading manually. Used by integration tooling;
// the ingestion loop writes through storage directly.
func (h *Handler) CreateReading(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req CreateReadingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}
	if failures := validateRequest(&req); failures != nil {
		rw.ValidationError("invalid reading", failures)
		return
	}

	panelID, err := uuid.Parse(req.PanelID)
	if err != nil {
		rw.BadRequest("invalid panel_id: must be a UUID")
		return
	}
	if _, err := h.store.GetPanel(r.Context(), panelID); err != nil {
		writeStoreError(rw, err, "panel not found")
		return
	}

	reading := models.SensorReading{
		ID:                uuid.New(),
		PanelID:           panelID,
		Timestamp:         time.Now().UTC(),
		EnergyOutput:      req.EnergyOutput,
		SunlightIntensity: req.SunlightIntensity,
		Temperature:       req.Temperature,
		DustLevel:         req.DustLevel,
		TiltAngle:         req.TiltAngle,
		Voltage:           req.Voltage,
		EfficiencyPercent: req.EfficiencyPercent,
	}

	if err := h.store.CreateReading(r.Context(), &reading); err != nil {
		rw.StorageError(err)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastSensorUpdate([]models.SensorReading{reading})
	}

	rw.Created(reading)
}
