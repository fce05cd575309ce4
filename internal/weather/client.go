// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package weather fetches current conditions for the farm site from an
// Open-Meteo-compatible endpoint. The upstream is optional: the client
// caches the last successful response and serves it while the circuit
// breaker rides out upstream outages, so the recommendation engine and
// the /weather endpoint degrade to last-known values rather than errors.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/heliowatch/heliowatch/internal/logging"
	"github.com/heliowatch/heliowatch/internal/metrics"
)

// maxErrorBodySize caps how much of an upstream error body is read back
// for diagnostics.
const maxErrorBodySize = 8 * 1024

// ErrNoData is returned when the upstream is unreachable and no cached
// conditions exist yet.
var ErrNoData = errors.New("weather: no conditions available")

// Conditions is a snapshot of site weather relevant to panel operation.
type Conditions struct {
	ObservedAt    time.Time `json:"observed_at"`
	TemperatureC  float64   `json:"temperature_c"`
	CloudCoverPct float64   `json:"cloud_cover_pct"`
	WindSpeedKmh  float64   `json:"wind_speed_kmh"`
	Precipitation float64   `json:"precipitation_mm"`
	IsDay         bool      `json:"is_day"`
	Stale         bool      `json:"stale"`
}

// Config controls the upstream endpoint and client resilience.
type Config struct {
	Enabled   bool    `koanf:"enabled"`
	BaseURL   string  `koanf:"base_url"`
	Latitude  float64 `koanf:"latitude"`
	Longitude float64 `koanf:"longitude"`

	Timeout  time.Duration `koanf:"timeout"`
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// RequestsPerMinute bounds calls to the upstream regardless of how
	// often Current is invoked.
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

// DefaultConfig returns settings suitable for the public Open-Meteo API.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		BaseURL:           "https://api.open-meteo.com/v1/forecast",
		Latitude:          28.6139,
		Longitude:         77.2090,
		Timeout:           10 * time.Second,
		CacheTTL:          5 * time.Minute,
		RequestsPerMinute: 10,
	}
}

// Client fetches and caches current conditions.
//
// The circuit breaker uses real time for its interval and timeout
// calculations; unit tests exercise the HTTP path through httptest
// servers rather than mocking the breaker.
type Client struct {
	cfg     Config
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[*Conditions]
	limiter *rate.Limiter

	mu        sync.RWMutex
	cached    *Conditions
	fetchedAt time.Time
}

// NewClient builds a weather client from cfg. Zero-valued durations and
// rates fall back to DefaultConfig values.
func NewClient(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 2),
	}

	c.cb = gobreaker.NewCircuitBreaker[*Conditions](gobreaker.Settings{
		Name:        "weather-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[WEATHER] Circuit breaker state transition")
			if to == gobreaker.StateOpen {
				metrics.WeatherCircuitState.Set(1)
			} else {
				metrics.WeatherCircuitState.Set(0)
			}
		},
	})

	return c
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Current returns site conditions, preferring a fresh cached value, then
// the upstream, then a stale cached value. ErrNoData is returned only
// when the upstream fails and nothing was ever cached.
func (c *Client) Current(ctx context.Context) (*Conditions, error) {
	if !c.cfg.Enabled {
		return nil, ErrNoData
	}

	if cached := c.cachedConditions(false); cached != nil {
		return cached, nil
	}

	fetched, err := c.cb.Execute(func() (*Conditions, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordWeatherRequest("rejected")
		} else {
			metrics.RecordWeatherRequest("failure")
		}
		if stale := c.cachedConditions(true); stale != nil {
			logging.Debug().Err(err).Msg("[WEATHER] Upstream unavailable, serving stale conditions")
			return stale, nil
		}
		return nil, fmt.Errorf("weather: fetch conditions: %w", err)
	}

	metrics.RecordWeatherRequest("success")
	c.store(fetched)
	return fetched, nil
}

// LastKnown returns the cached conditions without touching the upstream,
// or nil when nothing has been fetched yet.
func (c *Client) LastKnown() *Conditions {
	return c.cachedConditions(true)
}

// cachedConditions returns a copy of the cache. With allowStale false the
// entry must still be within the TTL; with allowStale true any entry is
// returned, marked Stale when past the TTL.
func (c *Client) cachedConditions(allowStale bool) *Conditions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cached == nil {
		return nil
	}
	age := time.Since(c.fetchedAt)
	if age > c.cfg.CacheTTL && !allowStale {
		return nil
	}
	out := *c.cached
	out.Stale = age > c.cfg.CacheTTL
	return &out
}

func (c *Client) store(cond *Conditions) {
	c.mu.Lock()
	c.cached = cond
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

// openMeteoResponse mirrors the fields we use from the Open-Meteo
// current-weather payload.
type openMeteoResponse struct {
	Current struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		CloudCover    float64 `json:"cloud_cover"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		Precipitation float64 `json:"precipitation"`
		IsDay         int     `json:"is_day"`
	} `json:"current"`
}

func (c *Client) fetch(ctx context.Context) (*Conditions, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := endpoint.Query()
	q.Set("latitude", strconv.FormatFloat(c.cfg.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(c.cfg.Longitude, 'f', 4, 64))
	q.Set("current", "temperature_2m,cloud_cover,wind_speed_10m,precipitation,is_day")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(body))
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	observed := time.Now().UTC()
	if ts, err := time.Parse("2006-01-02T15:04", payload.Current.Time); err == nil {
		observed = ts.UTC()
	}

	return &Conditions{
		ObservedAt:    observed,
		TemperatureC:  payload.Current.Temperature,
		CloudCoverPct: payload.Current.CloudCover,
		WindSpeedKmh:  payload.Current.WindSpeed,
		Precipitation: payload.Current.Precipitation,
		IsDay:         payload.Current.IsDay == 1,
	}, nil
}
