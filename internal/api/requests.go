// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. validator.Validate caches
// struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ReadingWindowRequest validates the hours query parameter on windowed
// reading queries. One week is the widest window the dashboard charts use.
type ReadingWindowRequest struct {
	Hours int `validate:"min=1,max=168"`
}

// CreateReadingRequest is the POST /readings body. Manual injection path
// used by integration tooling; field ranges mirror what the simulator
// produces.
type CreateReadingRequest struct {
	PanelID           string  `json:"panel_id" validate:"required,uuid4"`
	EnergyOutput      float64 `json:"energy_output" validate:"min=0"`
	SunlightIntensity float64 `json:"sunlight_intensity" validate:"min=0,max=2000"`
	Temperature       float64 `json:"temperature" validate:"min=-50,max=150"`
	DustLevel         float64 `json:"dust_level" validate:"min=0,max=10"`
	TiltAngle         float64 `json:"tilt_angle" validate:"min=0,max=90"`
	Voltage           float64 `json:"voltage" validate:"min=0,max=1000"`
	EfficiencyPercent float64 `json:"efficiency_percent" validate:"min=0,max=100"`
}

// UpdatePanelStatusRequest is the PATCH /panels/{id}/status body.
type UpdatePanelStatusRequest struct {
	Status string  `json:"status" validate:"required,oneof=active maintenance offline damaged"`
	Notes  *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// CreateRecommendationRequest is the POST /recommendations body, for
// operator-entered recommendations alongside engine-generated ones.
type CreateRecommendationRequest struct {
	PanelID     *string `json:"panel_id,omitempty" validate:"omitempty,uuid4"`
	Title       string  `json:"title" validate:"required,max=200"`
	Description string  `json:"description" validate:"omitempty,max=2000"`
	Category    string  `json:"category" validate:"required,oneof=cleaning tilt_adjustment maintenance optimization"`
	Urgency     string  `json:"urgency" validate:"required,oneof=low medium high"`
	ImpactScore float64 `json:"impact_score" validate:"min=0,max=100"`
	Explanation string  `json:"explanation" validate:"omitempty,max=2000"`
}

// CreatePredictionRequest is the POST /predictions body.
type CreatePredictionRequest struct {
	PanelID             *string            `json:"panel_id,omitempty" validate:"omitempty,uuid4"`
	PredictedFor        string             `json:"predicted_for" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	PredictedEfficiency float64            `json:"predicted_efficiency" validate:"min=0,max=100"`
	DegradationRisk     string             `json:"degradation_risk" validate:"required,oneof=low medium high"`
	Confidence          float64            `json:"confidence" validate:"min=0,max=1"`
	Factors             map[string]float64 `json:"factors,omitempty"`
}

// UpdateAutoTiltRequest is the PATCH /settings/auto-tilt body. All fields
// optional; the merge happens in storage.
type UpdateAutoTiltRequest struct {
	Enabled            *bool    `json:"enabled,omitempty"`
	Mode               *string  `json:"mode,omitempty" validate:"omitempty,oneof=time_based weather_based hybrid"`
	MinAngle           *float64 `json:"min_angle,omitempty" validate:"omitempty,min=0,max=90"`
	MaxAngle           *float64 `json:"max_angle,omitempty" validate:"omitempty,min=0,max=90"`
	AdjustmentInterval *int     `json:"adjustment_interval,omitempty" validate:"omitempty,min=1,max=1440"`
	UseWeatherData     *bool    `json:"use_weather_data,omitempty"`
	Aggressiveness     *int     `json:"aggressiveness,omitempty" validate:"omitempty,min=1,max=5"`
}

// validationFailure is one field-level validation error surfaced to the
// client in the error details.
type validationFailure struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
}

// validateRequest validates v and returns client-facing failures, or nil
// when the struct passes.
func validateRequest(v interface{}) []validationFailure {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []validationFailure{{Field: "", Constraint: err.Error()}}
	}

	failures := make([]validationFailure, 0, len(verrs))
	for _, fe := range verrs {
		constraint := fe.Tag()
		if fe.Param() != "" {
			constraint = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		failures = append(failures, validationFailure{
			Field:      strings.ToLower(fe.Field()),
			Constraint: constraint,
		})
	}
	return failures
}
