// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/heliowatch/heliowatch/internal/storage"
	ws "github.com/heliowatch/heliowatch/internal/websocket"
	"github.com/heliowatch/heliowatch/internal/weather"
)

// maxRequestBodySize caps request bodies before JSON decoding.
const maxRequestBodySize = 1 << 20 // 1MB

// Handler processes HTTP requests for the dashboard API.
type Handler struct {
	store     storage.Store
	failover  *storage.FailoverStore
	hub       *ws.Hub
	weather   *weather.Client
	startTime time.Time
	version   string
}

// NewHandler creates an API handler. failover, hub, and weatherClient are
// optional; the corresponding endpoints degrade gracefully when nil.
func NewHandler(store storage.Store, failover *storage.FailoverStore, hub *ws.Hub, weatherClient *weather.Client, version string) *Handler {
	return &Handler{
		store:     store,
		failover:  failover,
		hub:       hub,
		weather:   weatherClient,
		startTime: time.Now(),
		version:   version,
	}
}

// decodeJSON decodes a bounded request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _, _ = io.Copy(io.Discard, body) }()
	return json.NewDecoder(body).Decode(dst)
}

// panelIDParam parses the {id} path parameter. Writes the error response
// itself and returns ok=false on failure.
func panelIDParam(rw *ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return uuidParam(rw, r, "id")
}

func uuidParam(rw *ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		rw.BadRequest("invalid " + name + ": must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// hoursParam parses and validates the hours window query parameter,
// defaulting to 24.
func hoursParam(rw *ResponseWriter, r *http.Request) (int, bool) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			rw.BadRequest("invalid hours: must be an integer")
			return 0, false
		}
		hours = parsed
	}
	if failures := validateRequest(&ReadingWindowRequest{Hours: hours}); failures != nil {
		rw.ValidationError("invalid hours window", failures)
		return 0, false
	}
	return hours, true
}

// writeStoreError maps storage errors onto HTTP responses.
func writeStoreError(rw *ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, storage.ErrNotFound) {
		rw.NotFound(notFoundMsg)
		return
	}
	rw.StorageError(err)
}
