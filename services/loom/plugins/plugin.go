// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plugins manages external collaborators for low-confidence
// requests. A plugin receives the assembled processing context and may
// return an enhanced copy; the manager owns registration, activation,
// rate limiting, per-call timeouts, and the fail-open escalation path.
// Plugin failures never propagate: the pre-escalation context always
// survives.
package plugins

import (
	"context"
	"time"

	"github.com/AleutianAI/Loom/services/loom/assemble"
)

// =============================================================================
// Plugin Contracts
// =============================================================================

// Plugin is the required collaborator contract.
//
// Description:
//
//	Name identifies the plugin for events and activation. Initialize is
//	called once during Register, before the plugin becomes visible; a
//	returned error aborts registration. Enhance receives a clone of the
//	pre-escalation context and returns the enhanced context, which the
//	manager merges back non-destructively.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context) error
	Enhance(ctx context.Context, pc *assemble.ProcessingContext) (*assemble.ProcessingContext, error)
}

// Generator is an optional capability for plugins that can render an
// interpretation into generated output (markup, code, a description).
// Detected by type assertion.
type Generator interface {
	Generate(ctx context.Context, pc *assemble.ProcessingContext) (string, error)
}

// Destroyer is an optional capability for plugins holding resources that
// need teardown. Called during Unregister. Detected by type assertion.
type Destroyer interface {
	Destroy(ctx context.Context) error
}

// =============================================================================
// Events
// =============================================================================

// EventKind classifies manager lifecycle notifications.
type EventKind string

const (
	EventRegistered   EventKind = "registered"
	EventUnregistered EventKind = "unregistered"
	EventActivated    EventKind = "activated"
	EventError        EventKind = "error"
)

// Event is one lifecycle notification, delivered synchronously to every
// subscriber in subscription order.
type Event struct {
	// Kind is the notification type.
	Kind EventKind

	// Plugin is the affected plugin's registered name.
	Plugin string

	// Err carries the failure for EventError notifications, nil otherwise.
	Err error

	// At is when the event was emitted.
	At time.Time
}
