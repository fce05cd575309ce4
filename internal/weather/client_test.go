// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package weather

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heliowatch/heliowatch/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

const sampleResponse = `{
	"current": {
		"time": "2026-08-29T12:00",
		"temperature_2m": 31.4,
		"cloud_cover": 40,
		"wind_speed_10m": 12.5,
		"precipitation": 0,
		"is_day": 1
	}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, ttl time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.CacheTTL = ttl
	cfg.RequestsPerMinute = 600
	return NewClient(cfg)
}

func TestCurrentFetchesAndParses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("latitude") == "" || q.Get("longitude") == "" {
			t.Errorf("missing coordinates in query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}, time.Minute)

	cond, err := c.Current(context.Background())
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if cond.TemperatureC != 31.4 {
		t.Errorf("TemperatureC = %v, want 31.4", cond.TemperatureC)
	}
	if cond.CloudCoverPct != 40 {
		t.Errorf("CloudCoverPct = %v, want 40", cond.CloudCoverPct)
	}
	if !cond.IsDay {
		t.Error("IsDay = false, want true")
	}
	if cond.Stale {
		t.Error("fresh fetch marked stale")
	}
}

func TestCurrentServesCacheWithinTTL(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(sampleResponse))
	}, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Current(ctx); err != nil {
			t.Fatalf("Current() call %d error = %v", i, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (cache should absorb repeats)", got)
	}
}

func TestCurrentFallsBackToStaleCache(t *testing.T) {
	var fail atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(sampleResponse))
	}, time.Nanosecond) // expire immediately so the second call refetches

	ctx := context.Background()
	if _, err := c.Current(ctx); err != nil {
		t.Fatalf("priming fetch error = %v", err)
	}

	fail.Store(true)
	time.Sleep(time.Millisecond)

	cond, err := c.Current(ctx)
	if err != nil {
		t.Fatalf("Current() with failing upstream error = %v, want stale cache", err)
	}
	if !cond.Stale {
		t.Error("served conditions not marked stale")
	}
}

func TestCurrentErrorsWithoutCache(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, time.Minute)

	if _, err := c.Current(context.Background()); err == nil {
		t.Fatal("Current() = nil error, want failure with empty cache")
	}
}

func TestCurrentDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	c := NewClient(cfg)

	if _, err := c.Current(context.Background()); !errors.Is(err, ErrNoData) {
		t.Errorf("Current() on disabled client error = %v, want ErrNoData", err)
	}
}

func TestLastKnown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleResponse))
	}, time.Minute)

	if got := c.LastKnown(); got != nil {
		t.Errorf("LastKnown() before any fetch = %+v, want nil", got)
	}
	if _, err := c.Current(context.Background()); err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if got := c.LastKnown(); got == nil {
		t.Error("LastKnown() after fetch = nil, want cached conditions")
	}
}
