// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/models"
)

// Panels returns all panels ordered by panel number.
func (h *Handler) Panels(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	panels, err := h.store.ListPanels(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.SuccessWithCount(panels, len(panels))
}

// Panel returns one panel by ID.
func (h *Handler) Panel(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := panelIDParam(rw, r)
	if !ok {
		return
	}

	panel, err := h.store.GetPanel(r.Context(), id)
	if err != nil {
		writeStoreError(rw, err, "panel not found")
		return
	}
	rw.Success(panel)
}

// PanelByNumber returns one panel by its 1..N farm number.
func (h *Handler) PanelByNumber(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 {
		rw.BadRequest("invalid panel number: must be a positive integer")
		return
	}

	panel, err := h.store.GetPanelByNumber(r.Context(), number)
	if err != nil {
		writeStoreError(rw, err, "panel not found")
		return
	}
	rw.Success(panel)
}

// PanelDetail returns the full panel view: latest reading, open
// recommendations, alerts, and the health score breakdown.
func (h *Handler) PanelDetail(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := panelIDParam(rw, r)
	if !ok {
		return
	}

	detail, err := h.store.GetPanelDetail(r.Context(), id)
	if err != nil {
		writeStoreError(rw, err, "panel not found")
		return
	}
	rw.Success(detail)
}

// PanelsOverview returns every panel paired with its most recent reading.
func (h *Handler) PanelsOverview(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	overview, err := h.store.ListPanelsWithReadings(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.SuccessWithCount(overview, len(overview))
}

// UpdatePanelStatus patches a panel's operational status. Moving a panel
// into maintenance stamps its last-maintenance time in storage.
func (h *Handler) UpdatePanelStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := panelIDParam(rw, r)
	if !ok {
		return
	}

	var req UpdatePanelStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}
	if failures := validateRequest(&req); failures != nil {
		rw.ValidationError("invalid status update", failures)
		return
	}

	status := models.PanelStatus(req.Status)
	if err := h.store.UpdatePanelStatus(r.Context(), id, status, req.Notes); err != nil {
		writeStoreError(rw, err, "panel not found")
		return
	}

	logging.Info().
		Str("panel_id", id.String()).
		Str("status", req.Status).
		Msg("Panel status updated")

	panel, err := h.store.GetPanel(r.Context(), id)
	if err != nil {
		writeStoreError(rw, err, "panel not found")
		return
	}
	rw.Success(panel)
}

// PanelAlerts returns all alerts for one panel, newest first.
func (h *Handler) PanelAlerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := panelIDParam(rw, r)
	if !ok {
		return
	}

	alerts, err := h.store.ListPanelAlerts(r.Context(), id)
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.SuccessWithCount(alerts, len(alerts))
}
