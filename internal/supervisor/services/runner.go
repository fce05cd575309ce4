// Heliowatch - Solar Panel Farm Monitoring and Analytics
// Copyright 2026 Heliowatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/heliowatch/heliowatch

package services

import "context"

// Runner adapts any context-driven run function (the websocket hub, the
// bus bridge, the ingest manager, the detection and recommendation
// engines all expose one) into a named suture service.
type Runner struct {
	name string
	run  func(ctx context.Context) error
}

// NewRunner wraps run as a suture service called name.
func NewRunner(name string, run func(ctx context.Context) error) *Runner {
	return &Runner{name: name, run: run}
}

// Serve implements suture.Service.
func (r *Runner) Serve(ctx context.Context) error {
	return r.run(ctx)
}

// String identifies the service in suture log events.
func (r *Runner) String() string {
	return r.name
}
