// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package metrics exposes Prometheus instrumentation for the farm
// monitor: ingest cycle timing, storage backend health and failover
// state, websocket fan-out, detection, and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest cycle metrics
	IngestCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_cycle_duration_seconds",
			Help:    "Duration of one full sensor ingest cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestCyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_cycles_skipped_total",
			Help: "Cycles skipped because the previous one was still running",
		},
	)

	IngestReadingsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_readings_persisted_total",
			Help: "Total sensor readings written to storage",
		},
	)

	IngestPanelErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_panel_errors_total",
			Help: "Per-panel persistence failures during ingest",
		},
		[]string{"operation"},
	)

	// Storage metrics
	StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Storage operations by backend and outcome",
		},
		[]string{"backend", "operation", "outcome"},
	)

	StorageFailoverState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storage_failover_state",
			Help: "Storage routing state: 0=durable, 1=fallback, 2=memory-only",
		},
	)

	StorageConnectivityStrikes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storage_connectivity_strikes",
			Help: "Consecutive durable-store connectivity failures",
		},
	)

	// WebSocket metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connected_clients",
			Help: "Currently connected dashboard clients",
		},
	)

	WebSocketBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_broadcasts_total",
			Help: "Messages broadcast to dashboard clients by type",
		},
		[]string{"message_type"},
	)

	// Detection metrics
	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_raised_total",
			Help: "Alerts raised by detection rules",
		},
		[]string{"category", "severity"},
	)

	RecommendationsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_generated_total",
			Help: "Recommendations produced by the rule engine",
		},
		[]string{"category", "urgency"},
	)

	// Weather client metrics
	WeatherRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_requests_total",
			Help: "Upstream weather API requests by outcome",
		},
		[]string{"outcome"},
	)

	WeatherCircuitState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "weather_circuit_breaker_open",
			Help: "1 when the weather circuit breaker is open",
		},
	)

	// HTTP API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "HTTP requests currently in flight",
		},
	)

	// Event bus metrics
	BusMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_messages_published_total",
			Help: "Messages published to the in-process event bus",
		},
		[]string{"topic"},
	)
)

// RecordIngestCycle records one completed ingest cycle.
func RecordIngestCycle(duration time.Duration, persisted int) {
	IngestCycleDuration.Observe(duration.Seconds())
	IngestReadingsPersisted.Add(float64(persisted))
}

// RecordIngestSkip counts a cycle skipped by the overlap guard.
func RecordIngestSkip() {
	IngestCyclesSkipped.Inc()
}

// RecordStorageOperation counts one storage call.
func RecordStorageOperation(backend, operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	StorageOperations.WithLabelValues(backend, operation, outcome).Inc()
}

// SetFailoverState publishes the storage routing state.
func SetFailoverState(state int) {
	StorageFailoverState.Set(float64(state))
}

// RecordAlert counts a raised alert.
func RecordAlert(category, severity string) {
	AlertsRaised.WithLabelValues(category, severity).Inc()
}

// RecordRecommendation counts a generated recommendation.
func RecordRecommendation(category, urgency string) {
	RecommendationsGenerated.WithLabelValues(category, urgency).Inc()
}

// RecordAPIRequest records one finished HTTP request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBusPublish counts a bus publish.
func RecordBusPublish(topic string) {
	BusMessagesPublished.WithLabelValues(topic).Inc()
}

// RecordWeatherRequest counts one upstream weather call.
func RecordWeatherRequest(outcome string) {
	WeatherRequests.WithLabelValues(outcome).Inc()
}
