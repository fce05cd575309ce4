// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heliowatch/heliowatch/internal/middleware"
)

// RouterConfig tunes CORS and rate limiting for the dashboard API.
type RouterConfig struct {
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
	RateLimitRequests  int           `koanf:"rate_limit_requests"`
	RateLimitWindow    time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled  bool          `koanf:"rate_limit_disabled"`
}

// DefaultRouterConfig allows dashboard-friendly polling rates and no
// cross-origin access until origins are configured explicitly.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CORSAllowedOrigins: []string{},
		RateLimitRequests:  300,
		RateLimitWindow:    time.Minute,
	}
}

// NewRouter assembles the chi router with the full middleware stack and
// every dashboard route.
func NewRouter(handler *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         86400,
	}))

	// Operational endpoints skip rate limiting so probes and scrapes
	// never get throttled.
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/", handler.Health)
		r.Get("/live", handler.HealthLive)
		r.Get("/ready", handler.HealthReady)
		r.Get("/failover", handler.FailoverState)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if !cfg.RateLimitDisabled {
			r.Use(httprate.Limit(
				cfg.RateLimitRequests,
				cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}
		r.Use(middleware.PrometheusMetrics)
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Route("/panels", func(r chi.Router) {
			r.Get("/", handler.Panels)
			r.Get("/overview", handler.PanelsOverview)
			r.Get("/number/{number}", handler.PanelByNumber)
			r.Get("/{id}", handler.Panel)
			r.Get("/{id}/detail", handler.PanelDetail)
			r.Patch("/{id}/status", handler.UpdatePanelStatus)
			r.Get("/{id}/alerts", handler.PanelAlerts)
			r.Get("/{id}/readings", handler.PanelReadings)
		})

		r.Route("/readings", func(r chi.Router) {
			r.Get("/latest", handler.LatestReadings)
			r.Get("/window", handler.ReadingsWindow)
			r.Post("/", handler.CreateReading)
		})

		r.Route("/predictions", func(r chi.Router) {
			r.Get("/", handler.Predictions)
			r.Post("/", handler.CreatePrediction)
		})

		r.Route("/recommendations", func(r chi.Router) {
			r.Get("/", handler.Recommendations)
			r.Post("/", handler.CreateRecommendation)
			r.Post("/{id}/implemented", handler.SetRecommendationImplemented)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", handler.Alerts)
			r.Post("/{id}/dismiss", handler.DismissAlert)
		})

		r.Get("/system-health", handler.SystemHealth)
		r.Route("/settings/auto-tilt", func(r chi.Router) {
			r.Get("/", handler.AutoTiltSettings)
			r.Patch("/", handler.UpdateAutoTiltSettings)
		})
		r.Get("/weather", handler.Weather)
		r.Get("/summary", handler.Summary)
		r.Get("/ws", handler.WebSocket)
	})

	return r
}
