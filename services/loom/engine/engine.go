// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine wires the full understanding pipeline behind one facade:
// tokenizer, semantic analyzer, intent classifier, refiner, entity
// extractor, context assembly, and the plugin escalation path. A host
// constructs one Engine, Initializes it against a UI-kit schema, and calls
// Process for every request. Everything runs in-process with no network
// dependencies.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/Loom/services/loom/config"
	"github.com/AleutianAI/Loom/services/loom/entities"
	"github.com/AleutianAI/Loom/services/loom/graph"
	"github.com/AleutianAI/Loom/services/loom/intent"
	"github.com/AleutianAI/Loom/services/loom/plugins"
	"github.com/AleutianAI/Loom/services/loom/schema"
	"github.com/AleutianAI/Loom/services/loom/semantics"
	"github.com/AleutianAI/Loom/services/loom/store"
	"github.com/AleutianAI/Loom/services/loom/tokenizer"
)

// ErrNotInitialized is returned by every operation that needs a built
// pipeline when Initialize has not succeeded (or Reset was called).
var ErrNotInitialized = errors.New("engine: not initialized")

const (
	// DefaultEscalationThreshold is the blended confidence below which
	// Process hands the context to the active plugin.
	DefaultEscalationThreshold = 0.6

	// DefaultMaxSuggestions caps the suggestion list on a Result.
	DefaultMaxSuggestions = 5
)

// LabelInferrer maps a correction (original prompt, user correction text,
// and the output the user expected) to a trainable intent label.
type LabelInferrer func(prompt, correction, expectedOutput string) string

// Config carries the engine's tunables. Zero values fall back to the
// defaults in DefaultConfig.
type Config struct {
	// EscalationThreshold is the blended confidence below which Process
	// escalates to the active plugin for enhancement.
	EscalationThreshold float64

	// MaxSuggestions caps how many suggestions Process attaches to a
	// Result.
	MaxSuggestions int

	// PluginCallTimeout bounds a single plugin call. Only applied when
	// the engine constructs its own plugin manager; a manager passed via
	// WithPlugins keeps its own timeout.
	PluginCallTimeout time.Duration

	// SkipSeedCorpus leaves a fresh classifier untrained instead of
	// seeding it from the embedded corpus. Snapshot restore, when a
	// store is configured, still takes precedence either way.
	SkipSeedCorpus bool

	// LabelInferrer decides the training label for Learn. Nil selects
	// DefaultLabelInferrer.
	LabelInferrer LabelInferrer
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		EscalationThreshold: DefaultEscalationThreshold,
		MaxSuggestions:      DefaultMaxSuggestions,
	}
}

// Engine is the top-level pipeline facade.
//
// Thread Safety:
//
//	Safe for concurrent use. One mutex serializes Process, training, and
//	lifecycle transitions; the current schema additionally lives in an
//	atomic pointer so plugin callbacks can read it without touching the
//	engine lock.
type Engine struct {
	mu    sync.Mutex
	ready bool

	cfg       Config
	logger    *slog.Logger
	snapshots *store.SnapshotManager
	plugins   *plugins.Manager

	schemaPtr atomic.Pointer[schema.UIKitSchema]

	lexicon    *config.Lexicon
	kg         *graph.KnowledgeGraph
	tok        *tokenizer.Tokenizer
	analyzer   *semantics.Analyzer
	classifier *intent.Classifier
	refiner    *intent.Refiner
	extractor  *entities.Extractor
}

// Option customizes engine construction.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSnapshotStore enables classifier persistence. Initialize restores
// the latest snapshot when one exists, and SaveSnapshot/RestoreLatest
// become available.
func WithSnapshotStore(sm *store.SnapshotManager) Option {
	return func(e *Engine) { e.snapshots = sm }
}

// WithPlugins supplies a pre-built plugin manager, typically one with
// custom plugins already registered. The engine still registers its
// built-in fallback plugin during Initialize if the name is free.
func WithPlugins(m *plugins.Manager) Option {
	return func(e *Engine) {
		if m != nil {
			e.plugins = m
		}
	}
}

// New constructs an uninitialized engine. Call Initialize before Process.
func New(opts ...Option) *Engine {
	e := &Engine{
		cfg:    DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.EscalationThreshold <= 0 {
		e.cfg.EscalationThreshold = DefaultEscalationThreshold
	}
	if e.cfg.MaxSuggestions <= 0 {
		e.cfg.MaxSuggestions = DefaultMaxSuggestions
	}
	if e.cfg.LabelInferrer == nil {
		e.cfg.LabelInferrer = DefaultLabelInferrer
	}
	if e.plugins == nil {
		mgrOpts := []plugins.ManagerOption{plugins.WithManagerLogger(e.logger)}
		if e.cfg.PluginCallTimeout > 0 {
			mgrOpts = append(mgrOpts, plugins.WithCallTimeout(e.cfg.PluginCallTimeout))
		}
		e.plugins = plugins.NewManager(mgrOpts...)
	}
	return e
}

// Initialize builds the pipeline against the given UI-kit schema.
//
// Description:
//
//	Loads the lexicon, builds the knowledge graph, tokenizer, analyzer,
//	refiner, and extractor, then picks the starting classifier: the
//	latest snapshot when a store is configured and holds one, otherwise
//	a fresh classifier seeded from the embedded corpus (unless
//	SkipSeedCorpus is set). Finally the built-in fallback plugin is
//	registered and activated if no plugin is active yet. Initialize may
//	be called again to rebuild everything from scratch.
//
// Inputs:
//
//	ctx - Context for the build. Honored by graph construction.
//	s - Parsed UI-kit schema. Must not be nil.
//
// Outputs:
//
//	error - Non-nil if any pipeline stage fails to build; the engine
//	stays (or becomes) not ready in that case.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (e *Engine) Initialize(ctx context.Context, s *schema.UIKitSchema) error {
	if s == nil {
		return errors.New("engine: schema must not be nil")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := engineTracer.Start(ctx, "engine.Initialize",
		trace.WithAttributes(attribute.String("schema.name", s.Name)))
	defer span.End()

	e.ready = false

	lex, err := config.GetLexicon(ctx)
	if err != nil {
		return fmt.Errorf("engine: loading lexicon: %w", err)
	}
	e.lexicon = lex

	if err := e.buildAnalysisStack(ctx, s); err != nil {
		return err
	}

	refiner, err := intent.NewRefiner(lex)
	if err != nil {
		return fmt.Errorf("engine: building refiner: %w", err)
	}
	extractor, err := entities.New(lex)
	if err != nil {
		return fmt.Errorf("engine: building extractor: %w", err)
	}
	e.refiner = refiner
	e.extractor = extractor

	classifier, restored, err := e.startingClassifier(ctx)
	if err != nil {
		return err
	}
	e.classifier = classifier

	e.registerFallbackPlugin(ctx)
	e.ready = true

	e.logger.Info("engine initialized",
		"schema", s.Name,
		"schema_version", s.Version,
		"components", len(s.Components),
		"classifier_docs", classifier.DocCount(),
		"restored_from_snapshot", restored,
	)
	span.SetAttributes(
		attribute.Int("classifier.docs", classifier.DocCount()),
		attribute.Bool("classifier.restored", restored),
	)
	return nil
}

// buildAnalysisStack rebuilds the schema-derived stages: knowledge graph,
// tokenizer (with multi-word vocabulary phrases), and analyzer. Caller
// must hold e.mu.
func (e *Engine) buildAnalysisStack(ctx context.Context, s *schema.UIKitSchema) error {
	builtins, err := config.LoadComponentSynonyms()
	if err != nil {
		return fmt.Errorf("engine: loading built-in synonyms: %w", err)
	}
	kg, err := graph.Build(ctx, s, builtins, graph.WithLogger(e.logger))
	if err != nil {
		return fmt.Errorf("engine: building knowledge graph: %w", err)
	}
	tok, err := tokenizer.New(e.lexicon, tokenizer.WithLogger(e.logger))
	if err != nil {
		return fmt.Errorf("engine: building tokenizer: %w", err)
	}
	// Multi-word vocabulary terms become tokenizer phrases so they
	// survive word splitting as single tokens.
	for _, term := range kg.AllTerms() {
		if strings.Contains(term, " ") {
			tok.AddPhrase(term)
		}
	}
	analyzer, err := semantics.New(kg, e.lexicon, semantics.WithLogger(e.logger))
	if err != nil {
		return fmt.Errorf("engine: building analyzer: %w", err)
	}

	e.kg = kg
	e.tok = tok
	e.analyzer = analyzer
	e.schemaPtr.Store(s)
	return nil
}

// startingClassifier picks the classifier for a fresh Initialize: latest
// snapshot if available, otherwise a new classifier seeded from the
// embedded corpus. Caller must hold e.mu.
func (e *Engine) startingClassifier(ctx context.Context) (*intent.Classifier, bool, error) {
	if e.snapshots != nil {
		c, meta, err := e.snapshots.LoadLatest(ctx)
		if err == nil {
			e.logger.Info("classifier restored from snapshot",
				"snapshot_id", meta.SnapshotID,
				"doc_count", meta.DocCount,
			)
			return c, true, nil
		}
		e.logger.Debug("no classifier snapshot restored", "error", err)
	}

	c := intent.NewClassifier()
	if e.cfg.SkipSeedCorpus {
		return c, false, nil
	}
	examples, err := config.GetSeedCorpus(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("engine: loading seed corpus: %w", err)
	}
	for _, ex := range examples {
		if err := c.AddDocument(ex.Text, ex.Label); err != nil {
			return nil, false, fmt.Errorf("engine: seeding classifier: %w", err)
		}
	}
	return c, false, nil
}

// registerFallbackPlugin installs the built-in heuristic plugin unless a
// plugin with that name already exists, and activates it when nothing
// else is active. The schema provider reads the atomic pointer, never
// the engine lock, because plugin calls run while Process holds e.mu.
func (e *Engine) registerFallbackPlugin(ctx context.Context) {
	registered := false
	for _, name := range e.plugins.Names() {
		if name == plugins.LocalHeuristicName {
			registered = true
			break
		}
	}
	if !registered {
		lh := plugins.NewLocalHeuristic(func() *schema.UIKitSchema {
			return e.schemaPtr.Load()
		})
		if err := e.plugins.Register(ctx, lh.Name(), lh); err != nil {
			e.logger.Warn("registering built-in plugin failed", "error", err)
			return
		}
	}
	if e.plugins.Active() == "" {
		if err := e.plugins.SetActive(plugins.LocalHeuristicName); err != nil {
			e.logger.Warn("activating built-in plugin failed", "error", err)
		}
	}
}

// ReloadSchema swaps in a new UI-kit schema without touching the trained
// classifier. The knowledge graph, tokenizer phrases, and analyzer are
// rebuilt; in-flight state (snapshots, plugins, corrections) survives.
func (e *Engine) ReloadSchema(ctx context.Context, s *schema.UIKitSchema) error {
	if s == nil {
		return errors.New("engine: schema must not be nil")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return ErrNotInitialized
	}

	if err := e.buildAnalysisStack(ctx, s); err != nil {
		return err
	}
	e.logger.Info("schema reloaded",
		"schema", s.Name,
		"schema_version", s.Version,
		"components", len(s.Components),
	)
	return nil
}

// Reset drops the built pipeline and returns the engine to the
// uninitialized state. Registered plugins survive a reset.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ready = false
	e.lexicon = nil
	e.kg = nil
	e.tok = nil
	e.analyzer = nil
	e.classifier = nil
	e.refiner = nil
	e.extractor = nil
	e.schemaPtr.Store(nil)
	e.logger.Info("engine reset")
}

// IsReady reports whether Initialize has completed successfully.
func (e *Engine) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Plugins exposes the plugin manager for registration and activation.
func (e *Engine) Plugins() *plugins.Manager {
	return e.plugins
}

// Components returns the canonical component names of the loaded schema,
// sorted.
func (e *Engine) Components() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return nil, ErrNotInitialized
	}
	return e.kg.ComponentNames(), nil
}

// Component returns the schema definition for one component by canonical
// name, case-insensitive.
func (e *Engine) Component(name string) (*schema.ComponentDef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return nil, ErrNotInitialized
	}
	def := e.schemaPtr.Load().Component(name)
	if def == nil {
		return nil, fmt.Errorf("engine: unknown component %q", name)
	}
	return def, nil
}
