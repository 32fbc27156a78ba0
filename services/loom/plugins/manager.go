// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/Loom/services/loom/assemble"
)

// pluginsTracer is the shared OTel tracer for plugin operations.
var pluginsTracer = otel.Tracer("aleutian.loom.plugins")

// ErrNoActivePlugin is returned by Generate when no plugin is active.
var ErrNoActivePlugin = errors.New("plugins: no active plugin")

// Default manager configuration values.
const (
	// DefaultCallTimeout bounds one Enhance call to the active plugin.
	DefaultCallTimeout = 5 * time.Second

	// DefaultEnhanceRate is the sustained escalations-per-second budget.
	DefaultEnhanceRate = 5

	// DefaultEnhanceBurst is the escalation burst allowance.
	DefaultEnhanceBurst = 10
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCallTimeout sets the per-call timeout for Enhance. Non-positive
// values keep the default.
func WithCallTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.callTimeout = d
		}
	}
}

// WithRateLimit sets the sustained escalation rate and burst.
// Non-positive values keep the defaults.
func WithRateLimit(perSecond float64, burst int) ManagerOption {
	return func(m *Manager) {
		if perSecond > 0 && burst > 0 {
			m.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithManagerLogger sets the structured logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager owns the plugin registry and the escalation path.
//
// Description:
//
//	Plugins register by name, one may be active at a time, and lifecycle
//	transitions notify subscribers synchronously. Escalation through
//	Enhance is rate limited and time bounded; every failure mode (limiter
//	denial, plugin error, nil result, timeout) degrades to the unchanged
//	pre-escalation context.
//
// Thread Safety:
//
//	Safe for concurrent use. Events are dispatched outside the registry
//	lock, so subscribers may call back into the manager.
type Manager struct {
	mu          sync.RWMutex
	plugins     map[string]Plugin
	active      string
	subscribers []func(Event)

	limiter     *rate.Limiter
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewManager returns a manager with no plugins registered.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		plugins:     make(map[string]Plugin),
		limiter:     rate.NewLimiter(rate.Limit(DefaultEnhanceRate), DefaultEnhanceBurst),
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// =============================================================================
// Registry
// =============================================================================

// Register initializes a plugin and adds it to the registry.
//
// Description:
//
//	Initialize runs before the plugin becomes visible, so a plugin is
//	never activatable half-built. An initialization error emits an error
//	event and leaves the registry untouched.
//
// Inputs:
//
//	ctx - Passed to the plugin's Initialize.
//	name - Registry key; must be non-empty and unused.
//	p - The plugin; must be non-nil.
func (m *Manager) Register(ctx context.Context, name string, p Plugin) error {
	if name == "" || p == nil {
		return errors.New("plugins: register needs a name and a plugin")
	}

	m.mu.RLock()
	_, dup := m.plugins[name]
	m.mu.RUnlock()
	if dup {
		return fmt.Errorf("plugins: %q is already registered", name)
	}

	if err := p.Initialize(ctx); err != nil {
		m.emit(Event{Kind: EventError, Plugin: name, Err: err})
		return fmt.Errorf("plugins: initialize %q: %w", name, err)
	}

	m.mu.Lock()
	if _, dup := m.plugins[name]; dup {
		m.mu.Unlock()
		return fmt.Errorf("plugins: %q is already registered", name)
	}
	m.plugins[name] = p
	m.mu.Unlock()

	m.logger.Info("plugin registered", "plugin", name)
	m.emit(Event{Kind: EventRegistered, Plugin: name})
	return nil
}

// Unregister removes a plugin, clearing the active slot if it held it.
// Destroyer-capable plugins get their Destroy called; a destroy failure
// emits an error event but the plugin is gone regardless.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	m.mu.Lock()
	p, ok := m.plugins[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("plugins: %q is not registered", name)
	}
	delete(m.plugins, name)
	if m.active == name {
		m.active = ""
	}
	m.mu.Unlock()

	if d, capable := p.(Destroyer); capable {
		if err := d.Destroy(ctx); err != nil {
			m.logger.Warn("plugin destroy failed", "plugin", name, "error", err)
			m.emit(Event{Kind: EventError, Plugin: name, Err: err})
		}
	}

	m.emit(Event{Kind: EventUnregistered, Plugin: name})
	return nil
}

// SetActive selects the plugin Enhance escalates to. The name must be
// registered; an empty name clears the active slot without an event.
func (m *Manager) SetActive(name string) error {
	if name == "" {
		m.mu.Lock()
		m.active = ""
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	if _, ok := m.plugins[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("plugins: cannot activate unregistered %q", name)
	}
	m.active = name
	m.mu.Unlock()

	m.emit(Event{Kind: EventActivated, Plugin: name})
	return nil
}

// Active returns the active plugin's name, empty when none is active.
func (m *Manager) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Names returns the registered plugin names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.plugins))
	for name := range m.plugins {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Subscribe adds a synchronous observer for lifecycle events. Observers
// run in subscription order on the goroutine that caused the event and
// cannot be removed.
func (m *Manager) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
}

func (m *Manager) emit(ev Event) {
	ev.At = time.Now()
	m.mu.RLock()
	subs := append(([]func(Event))(nil), m.subscribers...)
	m.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// =============================================================================
// Escalation
// =============================================================================

// Enhance runs the active plugin over a low-confidence context.
//
// Description:
//
//	The plugin gets a clone, so the pre-escalation context cannot be
//	mutated; its returned context is merged back through the assembler.
//	Fail-open: no active plugin, a denied rate limit, a plugin error, a
//	nil result, or a timeout all return the input context unchanged.
//
// Outputs:
//
//	*assemble.ProcessingContext - The merged context, or pc unchanged.
//	bool - True when an enhancement was merged.
func (m *Manager) Enhance(ctx context.Context, pc *assemble.ProcessingContext) (*assemble.ProcessingContext, bool) {
	if pc == nil {
		return nil, false
	}

	m.mu.RLock()
	name := m.active
	p := m.plugins[name]
	m.mu.RUnlock()
	if p == nil {
		return pc, false
	}

	ctx, span := pluginsTracer.Start(ctx, "plugins.Enhance")
	defer span.End()
	span.SetAttributes(attribute.String("plugin.name", name))

	if !m.limiter.Allow() {
		m.logger.Debug("escalation rate limited, skipping", "plugin", name)
		span.SetAttributes(attribute.Bool("plugin.rate_limited", true))
		return pc, false
	}

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	type outcome struct {
		pc  *assemble.ProcessingContext
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		enhanced, err := p.Enhance(callCtx, pc.Clone())
		done <- outcome{pc: enhanced, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			m.logger.Warn("plugin enhance failed", "plugin", name, "error", out.err)
			m.emit(Event{Kind: EventError, Plugin: name, Err: out.err})
			return pc, false
		}
		if out.pc == nil {
			err := fmt.Errorf("plugins: %q returned no context", name)
			m.emit(Event{Kind: EventError, Plugin: name, Err: err})
			return pc, false
		}
		span.SetAttributes(attribute.Bool("plugin.applied", true))
		return assemble.Merge(pc, out.pc), true
	case <-callCtx.Done():
		m.logger.Warn("plugin enhance timed out", "plugin", name, "timeout", m.callTimeout)
		m.emit(Event{Kind: EventError, Plugin: name, Err: callCtx.Err()})
		return pc, false
	}
}

// Generate asks the active plugin to render the interpretation. Unlike
// Enhance this is not fail-open: callers request generation explicitly
// and need to know when it cannot happen.
func (m *Manager) Generate(ctx context.Context, pc *assemble.ProcessingContext) (string, error) {
	m.mu.RLock()
	name := m.active
	p := m.plugins[name]
	m.mu.RUnlock()
	if p == nil {
		return "", ErrNoActivePlugin
	}
	g, capable := p.(Generator)
	if !capable {
		return "", fmt.Errorf("plugins: %q cannot generate", name)
	}
	return g.Generate(ctx, pc)
}
