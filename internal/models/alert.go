// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertSeverity indicates the severity level of an alert.
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// AlertCategory classifies the abnormal condition that raised an alert.
type AlertCategory string

const (
	AlertCategoryOverheat      AlertCategory = "overheat"
	AlertCategoryDust          AlertCategory = "dust"
	AlertCategoryLowEfficiency AlertCategory = "low_efficiency"
	AlertCategorySensorSilence AlertCategory = "sensor_silence"
	AlertCategoryStorage       AlertCategory = "storage"
)

// Alert is a notification of an abnormal condition. PanelID is nil for
// farm-wide alerts. Alerts are retained indefinitely; dismissal is a soft
// delete via the Dismissed flag, the only mutable field.
//
// List queries order by creation timestamp descending.
type Alert struct {
	ID        uuid.UUID     `json:"id"`
	PanelID   *uuid.UUID    `json:"panel_id,omitempty"`
	Severity  AlertSeverity `json:"severity"`
	Category  AlertCategory `json:"category"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Details   *string       `json:"details,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Dismissed bool          `json:"dismissed"`
}
