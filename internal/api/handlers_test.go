// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/models"
	"github.com/heliowatch/heliowatch/internal/storage"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

// testServer is one API stack over a seeded in-memory store.
type testServer struct {
	router http.Handler
	store  storage.Store
	panels []models.Panel
}

func newTestServer(t *testing.T, panelCount int) *testServer {
	t.Helper()

	store := storage.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	panels := make([]models.Panel, 0, panelCount)
	for n := 1; n <= panelCount; n++ {
		panel := models.Panel{
			ID:          uuid.New(),
			PanelNumber: n,
			Location:    fmt.Sprintf("Field A / Row 1 / Position %d", n),
			InstallDate: now.AddDate(-1, 0, 0),
			HealthScore: 100,
			Status:      models.PanelStatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := store.CreatePanel(ctx, &panel); err != nil {
			t.Fatalf("CreatePanel(%d) error = %v", n, err)
		}
		panels = append(panels, panel)
	}

	handler := NewHandler(store, nil, nil, nil, "test")
	cfg := DefaultRouterConfig()
	cfg.RateLimitDisabled = true
	return &testServer{
		router: NewRouter(handler, cfg),
		store:  store,
		panels: panels,
	}
}

// doJSON issues a request and decodes the envelope.
func (s *testServer) doJSON(t *testing.T, method, target string, body interface{}) (int, APIResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return rec.Code, resp
}

// dataAs remarshals the envelope data field into dst.
func dataAs(t *testing.T, resp APIResponse, dst interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("remarshal data: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestPanelsList(t *testing.T) {
	s := newTestServer(t, 5)

	code, resp := s.doJSON(t, http.MethodGet, "/api/v1/panels", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if !resp.Success {
		t.Fatalf("success = false, error = %+v", resp.Error)
	}
	var panels []models.Panel
	dataAs(t, resp, &panels)
	if len(panels) != 5 {
		t.Fatalf("panel count = %d, want 5", len(panels))
	}
	if resp.Meta == nil || resp.Meta.Count != 5 {
		t.Errorf("meta count missing or wrong: %+v", resp.Meta)
	}
	for i, p := range panels {
		if p.PanelNumber != i+1 {
			t.Errorf("panel %d number = %d, want %d", i, p.PanelNumber, i+1)
		}
	}
}

func TestPanelByID(t *testing.T) {
	s := newTestServer(t, 3)

	code, resp := s.doJSON(t, http.MethodGet, "/api/v1/panels/"+s.panels[1].ID.String(), nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	var panel models.Panel
	dataAs(t, resp, &panel)
	if panel.PanelNumber != 2 {
		t.Errorf("panel number = %d, want 2", panel.PanelNumber)
	}
}

func TestPanelNotFound(t *testing.T) {
	s := newTestServer(t, 1)

	code, resp := s.doJSON(t, http.MethodGet, "/api/v1/panels/"+uuid.NewString(), nil)
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("unexpected error envelope: %+v", resp.Error)
	}
}

func TestPanelInvalidID(t *testing.T) {
	s := newTestServer(t, 1)

	code, resp := s.doJSON(t, http.MethodGet, "/api/v1/panels/not-a-uuid", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeBadRequest {
		t.Errorf("error code = %+v, want BAD_REQUEST", resp.Error)
	}
}

func TestPanelByNumber(t *testing.T) {
	s := newTestServer(t, 4)

	tests := []struct {
		name     string
		number   string
		wantCode int
	}{
		{"existing", "3", http.StatusOK},
		{"unknown", "99", http.StatusNotFound},
		{"non-numeric", "abc", http.StatusBadRequest},
		{"zero", "0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := s.doJSON(t, http.MethodGet, "/api/v1/panels/number/"+tt.number, nil)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
		})
	}
}

func TestUpdatePanelStatus(t *testing.T) {
	s := newTestServer(t, 2)
	target := "/api/v1/panels/" + s.panels[0].ID.String() + "/status"

	code, resp := s.doJSON(t, http.MethodPatch, target, map[string]interface{}{
		"status": "maintenance",
		"notes":  "inverter swap scheduled",
	})
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (error %+v)", code, resp.Error)
	}
	var panel models.Panel
	dataAs(t, resp, &panel)
	if panel.Status != models.PanelStatusMaintenance {
		t.Errorf("panel status = %q, want maintenance", panel.Status)
	}
	if panel.Notes == nil || *panel.Notes != "inverter swap scheduled" {
		t.Errorf("panel notes = %v", panel.Notes)
	}
}

func TestUpdatePanelStatusRejectsUnknown(t *testing.T) {
	s := newTestServer(t, 1)
	target := "/api/v1/panels/" + s.panels[0].ID.String() + "/status"

	code, resp := s.doJSON(t, http.MethodPatch, target, map[string]interface{}{
		"status": "exploded",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error = %+v, want VALIDATION_FAILED", resp.Error)
	}
}

func TestCreateReading(t *testing.T) {
	s := newTestServer(t, 1)

	body := map[string]interface{}{
		"panel_id":           s.panels[0].ID.String(),
		"energy_output":      240.0,
		"sunlight_intensity": 800.0,
		"temperature":        31.5,
		"dust_level":         2.0,
		"tilt_angle":         30.0,
		"voltage":            24.1,
		"efficiency_percent": 82.0,
	}
	code, resp := s.doJSON(t, http.MethodPost, "/api/v1/readings", body)
	if code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (error %+v)", code, resp.Error)
	}
	var reading models.SensorReading
	dataAs(t, resp, &reading)
	if reading.ID == uuid.Nil {
		t.Error("reading ID not assigned")
	}
	if reading.PanelID != s.panels[0].ID {
		t.Errorf("panel id = %s, want %s", reading.PanelID, s.panels[0].ID)
	}

	// The insert must have recomputed the panel health score.
	latest, err := s.store.LatestReading(context.Background(), s.panels[0].ID)
	if err != nil {
		t.Fatalf("LatestReading() error = %v", err)
	}
	if latest.EnergyOutput != 240.0 {
		t.Errorf("stored energy = %v, want 240", latest.EnergyOutput)
	}
}

func TestCreateReadingValidation(t *testing.T) {
	s := newTestServer(t, 1)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing panel id", map[string]interface{}{"dust_level": 2.0}},
		{"dust out of range", map[string]interface{}{
			"panel_id": s.panels[0].ID.String(), "dust_level": 42.0,
		}},
		{"negative energy", map[string]interface{}{
			"panel_id": s.panels[0].ID.String(), "energy_output": -5.0,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := s.doJSON(t, http.MethodPost, "/api/v1/readings", tt.body)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", code)
			}
			if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
				t.Errorf("error = %+v, want VALIDATION_FAILED", resp.Error)
			}
		})
	}
}

func TestCreateReadingUnknownPanel(t *testing.T) {
	s := newTestServer(t, 1)

	code, _ := s.doJSON(t, http.MethodPost, "/api/v1/readings", map[string]interface{}{
		"panel_id": uuid.NewString(),
	})
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
}

func TestReadingsWindowValidation(t *testing.T) {
	s := newTestServer(t, 1)

	tests := []struct {
		name     string
		query    string
		wantCode int
	}{
		{"default", "", http.StatusOK},
		{"explicit", "?hours=48", http.StatusOK},
		{"too wide", "?hours=999", http.StatusBadRequest},
		{"zero", "?hours=0", http.StatusBadRequest},
		{"non-numeric", "?hours=soon", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := s.doJSON(t, http.MethodGet, "/api/v1/readings/window"+tt.query, nil)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d", code, tt.wantCode)
			}
		})
	}
}

func TestAutoTiltSettingsRoundTrip(t *testing.T) {
	s := newTestServer(t, 1)

	code, resp := s.doJSON(t, http.MethodGet, "/api/v1/settings/auto-tilt", nil)
	if code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", code)
	}
	var settings models.AutoTiltSettings
	dataAs(t, resp, &settings)

	code, resp = s.doJSON(t, http.MethodPatch, "/api/v1/settings/auto-tilt", map[string]interface{}{
		"enabled":   true,
		"mode":      "weather_based",
		"max_angle": 60.0,
	})
	if code != http.StatusOK {
		t.Fatalf("PATCH status = %d, want 200 (error %+v)", code, resp.Error)
	}
	var updated models.AutoTiltSettings
	dataAs(t, resp, &updated)
	if !updated.Enabled {
		t.Error("enabled not applied")
	}
	if updated.Mode != models.TiltModeWeatherBased {
		t.Errorf("mode = %q, want weather_based", updated.Mode)
	}
	if updated.MaxAngle != 60.0 {
		t.Errorf("max angle = %v, want 60", updated.MaxAngle)
	}
	// Omitted fields keep their prior values.
	if updated.MinAngle != settings.MinAngle {
		t.Errorf("min angle changed: %v -> %v", settings.MinAngle, updated.MinAngle)
	}
}

func TestAutoTiltSettingsRejectsInvertedRange(t *testing.T) {
	s := newTestServer(t, 1)

	code, _ := s.doJSON(t, http.MethodPatch, "/api/v1/settings/auto-tilt", map[string]interface{}{
		"min_angle": 70.0,
		"max_angle": 20.0,
	})
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
}

func TestDismissAlert(t *testing.T) {
	s := newTestServer(t, 1)

	alert := models.Alert{
		ID:        uuid.New(),
		PanelID:   &s.panels[0].ID,
		Severity:  models.AlertSeverityWarning,
		Category:  models.AlertCategoryDust,
		Title:     "High dust level",
		Message:   "Dust at 7.2",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAlert(context.Background(), &alert); err != nil {
		t.Fatalf("CreateAlert() error = %v", err)
	}

	code, resp := s.doJSON(t, http.MethodPost, "/api/v1/alerts/"+alert.ID.String()+"/dismiss", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (error %+v)", code, resp.Error)
	}

	active, err := s.store.ListActiveAlerts(context.Background())
	if err != nil {
		t.Fatalf("ListActiveAlerts() error = %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active alerts after dismiss = %d, want 0", len(active))
	}
}

func TestDismissAlertNotFound(t *testing.T) {
	s := newTestServer(t, 1)

	code, _ := s.doJSON(t, http.MethodPost, "/api/v1/alerts/"+uuid.NewString()+"/dismiss", nil)
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
}

func TestSetRecommendationImplemented(t *testing.T) {
	s := newTestServer(t, 1)

	rec := models.Recommendation{
		ID:          uuid.New(),
		PanelID:     &s.panels[0].ID,
		CreatedAt:   time.Now().UTC(),
		Title:       "Clean panel",
		Category:    models.RecommendationCleaning,
		Urgency:     models.UrgencyHigh,
		ImpactScore: 40,
	}
	if err := s.store.CreateRecommendation(context.Background(), &rec); err != nil {
		t.Fatalf("CreateRecommendation() error = %v", err)
	}

	// Empty body defaults to implemented=true.
	code, resp := s.doJSON(t, http.MethodPost, "/api/v1/recommendations/"+rec.ID.String()+"/implemented", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (error %+v)", code, resp.Error)
	}
	var updated models.Recommendation
	dataAs(t, resp, &updated)
	if !updated.Implemented {
		t.Error("recommendation not marked implemented")
	}

	// Explicit body can unset it.
	code, resp = s.doJSON(t, http.MethodPost, "/api/v1/recommendations/"+rec.ID.String()+"/implemented",
		map[string]interface{}{"implemented": false})
	if code != http.StatusOK {
		t.Fatalf("unset status = %d, want 200", code)
	}
	dataAs(t, resp, &updated)
	if updated.Implemented {
		t.Error("recommendation still marked implemented")
	}
}

func TestCreateRecommendation(t *testing.T) {
	s := newTestServer(t, 1)

	code, resp := s.doJSON(t, http.MethodPost, "/api/v1/recommendations", map[string]interface{}{
		"title":        "Re-tilt row 1",
		"category":     "tilt_adjustment",
		"urgency":      "medium",
		"impact_score": 25.0,
	})
	if code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (error %+v)", code, resp.Error)
	}
	var rec models.Recommendation
	dataAs(t, resp, &rec)
	if rec.PanelID != nil {
		t.Errorf("panel id = %v, want nil for farm-wide", rec.PanelID)
	}
	if rec.Urgency != models.UrgencyMedium {
		t.Errorf("urgency = %q, want medium", rec.Urgency)
	}
}

func TestCreatePrediction(t *testing.T) {
	s := newTestServer(t, 1)

	code, resp := s.doJSON(t, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"panel_id":             s.panels[0].ID.String(),
		"predicted_for":        time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"predicted_efficiency": 74.0,
		"degradation_risk":     "medium",
		"confidence":           0.6,
	})
	if code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (error %+v)", code, resp.Error)
	}

	preds, err := s.store.ListPredictions(context.Background(), &s.panels[0].ID, 10)
	if err != nil {
		t.Fatalf("ListPredictions() error = %v", err)
	}
	if len(preds) != 1 {
		t.Fatalf("prediction count = %d, want 1", len(preds))
	}
}

func TestSystemHealthEmpty(t *testing.T) {
	s := newTestServer(t, 1)

	code, _ := s.doJSON(t, http.MethodGet, "/api/v1/system-health", nil)
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 with no snapshot", code)
	}
}

func TestWeatherDisabled(t *testing.T) {
	s := newTestServer(t, 1)

	code, resp := s.doJSON(t, http.MethodGet, "/api/v1/weather", nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 with nil client", code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("error = %+v, want SERVICE_UNAVAILABLE", resp.Error)
	}
}

func TestSummary(t *testing.T) {
	s := newTestServer(t, 3)
	ctx := context.Background()

	reading := models.SensorReading{
		ID:                uuid.New(),
		PanelID:           s.panels[0].ID,
		Timestamp:         time.Now().UTC(),
		EnergyOutput:      200,
		SunlightIntensity: 750,
		Temperature:       28,
		DustLevel:         1.5,
		TiltAngle:         30,
		Voltage:           24,
		EfficiencyPercent: 80,
	}
	if err := s.store.CreateReading(ctx, &reading); err != nil {
		t.Fatalf("CreateReading() error = %v", err)
	}

	code, resp := s.doJSON(t, http.MethodGet, "/api/v1/summary", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	var summary models.FarmSummary
	dataAs(t, resp, &summary)
	if summary.PanelCount != 3 {
		t.Errorf("panel count = %d, want 3", summary.PanelCount)
	}
	if summary.ActivePanels != 3 {
		t.Errorf("active panels = %d, want 3", summary.ActivePanels)
	}
	if summary.TotalEnergyW != 200 {
		t.Errorf("total energy = %v, want 200", summary.TotalEnergyW)
	}
	if summary.AverageEfficiency != 80 {
		t.Errorf("average efficiency = %v, want 80 (only panels with readings count)", summary.AverageEfficiency)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, 1)

	for _, target := range []string{
		"/api/v1/health",
		"/api/v1/health/live",
		"/api/v1/health/ready",
		"/api/v1/health/failover",
	} {
		code, resp := s.doJSON(t, http.MethodGet, target, nil)
		if code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", target, code)
		}
		if !resp.Success {
			t.Errorf("%s success = false", target)
		}
	}
}

func TestHealthReportsFailoverState(t *testing.T) {
	store := storage.NewFailoverStore(storage.NewMemoryStore(), storage.NewMemoryStore())
	handler := NewHandler(store, store, nil, nil, "test")
	cfg := DefaultRouterConfig()
	cfg.RateLimitDisabled = true
	router := NewRouter(handler, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/failover", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var state map[string]interface{}
	dataAs(t, resp, &state)
	if state["state"] != storage.StateDurableActive.String() {
		t.Errorf("state = %v, want %s", state["state"], storage.StateDurableActive)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	s := newTestServer(t, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/panels", nil)
	req.Header.Set("X-Request-ID", "test-req-42")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-req-42" {
		t.Errorf("response request id = %q, want test-req-42", got)
	}
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Meta == nil || resp.Meta.RequestID != "test-req-42" {
		t.Errorf("meta request id = %+v", resp.Meta)
	}
}

func TestRateLimitApplies(t *testing.T) {
	store := storage.NewMemoryStore()
	handler := NewHandler(store, nil, nil, nil, "test")
	cfg := DefaultRouterConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute
	router := NewRouter(handler, cfg)

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/panels", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}

	// Health endpoints sit outside the throttled group.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200 despite rate limit", rec.Code)
	}
}
