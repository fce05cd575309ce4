// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package websocket implements the live dashboard feed.
//
// A single Hub fans messages out to every connected dashboard client.
// Clients register over an upgraded HTTP connection and immediately
// receive a "connected" frame; after that they get sensor updates,
// farm-level aggregates, alerts, and recommendations as the ingest and
// detection loops produce them.
//
// The hub is supervised: RunWithContext returns when its context is
// cancelled, closing every client, and the supervisor restarts it on
// failure. Broadcasts never block the producer; a client that cannot
// keep up is dropped.
package websocket
