// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/heliowatch/heliowatch/internal/logging"
)

// RequestLogger emits one structured log line per request. Server errors
// log at warn, everything else at debug to keep steady-state polling from
// the dashboard out of the default log output.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapper, r)

		event := logging.Debug()
		if wrapper.Status() >= http.StatusInternalServerError {
			event = logging.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.Status()).
			Int("bytes", wrapper.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", GetRequestID(r.Context())).
			Str("remote", r.RemoteAddr).
			Msg("HTTP request")
	})
}
