// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/models"
)

// optionalPanelIDQuery parses the panel_id query parameter, nil when
// absent. Writes its own error response on malformed input.
func optionalPanelIDQuery(rw *ResponseWriter, r *http.Request) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get("panel_id")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		rw.BadRequest("invalid panel_id: must be a UUID")
		return nil, false
	}
	return &id, true
}

// Predictions lists predictions, optionally filtered by panel_id, newest
// first, bounded by limit (default 50).
func (h *Handler) Predictions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	panelID, ok := optionalPanelIDQuery(rw, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			rw.BadRequest("invalid limit: must be 1-1000")
			return
		}
		limit = parsed
	}

	predictions, err := h.store.ListPredictions(r.Context(), panelID, limit)
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.SuccessWithCount(predictions, len(predictions))
}

// CreatePrediction records an externally computed prediction.
func (h *Handler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req CreatePredictionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}
	if failures := validateRequest(&req); failures != nil {
		rw.ValidationError("invalid prediction", failures)
		return
	}

	panelID, ok := parseOptionalUUID(rw, req.PanelID)
	if !ok {
		return
	}
	predictedFor, err := time.Parse(time.RFC3339, req.PredictedFor)
	if err != nil {
		rw.BadRequest("invalid predicted_for: must be RFC3339")
		return
	}

	prediction := models.Prediction{
		ID:                  uuid.New(),
		PanelID:             panelID,
		CreatedAt:           time.Now().UTC(),
		PredictedFor:        predictedFor,
		PredictedEfficiency: req.PredictedEfficiency,
		DegradationRisk:     models.RiskLevel(req.DegradationRisk),
		Confidence:          req.Confidence,
		Factors:             req.Factors,
	}

	if err := h.store.CreatePrediction(r.Context(), &prediction); err != nil {
		rw.StorageError(err)
		return
	}
	rw.Created(prediction)
}

// Recommendations lists recommendations ordered by urgency weight then
// impact score, optionally filtered by panel_id.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	panelID, ok := optionalPanelIDQuery(rw, r)
	if !ok {
		return
	}

	recs, err := h.store.ListRecommendations(r.Context(), panelID)
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.SuccessWithCount(recs, len(recs))
}

// CreateRecommendation records an operator-entered recommendation.
func (h *Handler) CreateRecommendation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req CreateRecommendationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}
	if failures := validateRequest(&req); failures != nil {
		rw.ValidationError("invalid recommendation", failures)
		return
	}

	panelID, ok := parseOptionalUUID(rw, req.PanelID)
	if !ok {
		return
	}

	rec := models.Recommendation{
		ID:          uuid.New(),
		PanelID:     panelID,
		CreatedAt:   time.Now().UTC(),
		Title:       req.Title,
		Description: req.Description,
		Category:    models.RecommendationCategory(req.Category),
		Urgency:     models.Urgency(req.Urgency),
		ImpactScore: req.ImpactScore,
		Explanation: req.Explanation,
	}

	if err := h.store.CreateRecommendation(r.Context(), &rec); err != nil {
		rw.StorageError(err)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastRecommendation(&rec)
	}
	rw.Created(rec)
}

// SetRecommendationImplemented marks a recommendation done (or undoes it
// via {"implemented": false}).
func (h *Handler) SetRecommendationImplemented(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := uuidParam(rw, r, "id")
	if !ok {
		return
	}

	implemented := true
	var body struct {
		Implemented *bool `json:"implemented"`
	}
	// Empty body means "mark implemented".
	if err := decodeJSON(w, r, &body); err == nil && body.Implemented != nil {
		implemented = *body.Implemented
	}

	if err := h.store.SetRecommendationImplemented(r.Context(), id, implemented); err != nil {
		writeStoreError(rw, err, "recommendation not found")
		return
	}

	rec, err := h.store.GetRecommendation(r.Context(), id)
	if err != nil {
		writeStoreError(rw, err, "recommendation not found")
		return
	}
	rw.Success(rec)
}

// Alerts lists active (undismissed) alerts, newest first.
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	alerts, err := h.store.ListActiveAlerts(r.Context())
	if err != nil {
		rw.StorageError(err)
		return
	}
	rw.SuccessWithCount(alerts, len(alerts))
}

// DismissAlert soft-deletes an alert.
func (h *Handler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, ok := uuidParam(rw, r, "id")
	if !ok {
		return
	}

	if err := h.store.DismissAlert(r.Context(), id); err != nil {
		writeStoreError(rw, err, "alert not found")
		return
	}
	rw.Success(map[string]interface{}{"id": id, "dismissed": true})
}

func parseOptionalUUID(rw *ResponseWriter, raw *string) (*uuid.UUID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		rw.BadRequest("invalid panel_id: must be a UUID")
		return nil, false
	}
	return &id, true
}
