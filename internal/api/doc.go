// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

// Package api serves the dashboard REST surface and the websocket upgrade
// endpoint over a chi router.
//
// All endpoints respond with the APIResponse envelope:
//
//	{"success": true, "data": {...}, "meta": {...}}
//	{"success": false, "error": {"code": "...", "message": "..."}}
//
// Request payloads are validated with go-playground/validator before any
// storage call. Handlers speak to storage through the Store interface only,
// so they are oblivious to whether the durable or in-memory backend is
// active.
package api
