// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package models

import (
	"time"

	"github.com/google/uuid"
)

// Urgency is the ordinal priority attached to recommendations.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Weight returns the sort weight for an urgency (high=3, medium=2, low=1).
// Unknown urgencies sort last.
func (u Urgency) Weight() int {
	switch u {
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	case UrgencyLow:
		return 1
	default:
		return 0
	}
}

// RecommendationCategory classifies an actionable suggestion.
type RecommendationCategory string

const (
	RecommendationCleaning       RecommendationCategory = "cleaning"
	RecommendationTiltAdjustment RecommendationCategory = "tilt_adjustment"
	RecommendationMaintenance    RecommendationCategory = "maintenance"
	RecommendationOptimization   RecommendationCategory = "optimization"
)

// Recommendation is an actionable suggestion produced by the rule engine.
// PanelID is nil for farm-wide recommendations. Only the Implemented flag
// mutates after creation; recommendations are never deleted.
//
// List queries order by urgency weight descending, then impact score
// descending. That order is contractual across storage backends.
type Recommendation struct {
	ID          uuid.UUID              `json:"id"`
	PanelID     *uuid.UUID             `json:"panel_id,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Category    RecommendationCategory `json:"category"`
	Urgency     Urgency                `json:"urgency"`
	ImpactScore float64                `json:"impact_score"` // 0-100
	Explanation string                 `json:"explanation"`
	Implemented bool                   `json:"implemented"`
}

// RiskLevel is the degradation-risk category attached to predictions.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Prediction is a forward-looking efficiency/risk estimate for a panel
// (or farm-wide when PanelID is nil). Immutable; retained for a bounded
// history.
type Prediction struct {
	ID                  uuid.UUID          `json:"id"`
	PanelID             *uuid.UUID         `json:"panel_id,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	PredictedFor        time.Time          `json:"predicted_for"`
	PredictedEfficiency float64            `json:"predicted_efficiency"`
	DegradationRisk     RiskLevel          `json:"degradation_risk"`
	Confidence          float64            `json:"confidence"` // 0-1
	Factors             map[string]float64 `json:"factors,omitempty"`
}
