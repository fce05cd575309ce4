// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/heliowatch/heliowatch/internal/logging"
	ws "github.com/heliowatch/heliowatch/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from arbitrary origins in deployments
	// (reverse proxies, local dev); the API carries no credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocket upgrades the connection and hands it to the hub. The client
// receives a "connected" greeting and then the live dashboard feed.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		NewResponseWriter(w, r).ServiceUnavailable("websocket service unavailable")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
