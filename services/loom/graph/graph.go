// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds the component knowledge graph that every downstream
// resolution step queries. The graph is constructed once from a UI-kit schema
// plus the built-in synonym table, and is immutable afterwards except for
// AddSynonym. Vocabulary changes (a schema reload) always go through a fresh
// Build; the fuzzy index and feature vectors are never patched in place.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Loom/services/loom/schema"
)

var graphTracer = otel.Tracer("aleutian.loom.graph")

// =============================================================================
// Types
// =============================================================================

// MatchKind describes how a lookup term was matched to a component.
type MatchKind string

const (
	// MatchExact means the term equals a component name (case-insensitive).
	MatchExact MatchKind = "exact"

	// MatchSynonym means the term resolved through the synonym table.
	MatchSynonym MatchKind = "synonym"

	// MatchFuzzy means the term matched via the fuzzy index.
	MatchFuzzy MatchKind = "fuzzy"

	// MatchNone means the term did not resolve to any component.
	MatchNone MatchKind = "none"
)

// EdgeKind classifies a co-occurrence edge between two components.
type EdgeKind string

const (
	// EdgeContains links a container to a component it accepts as a child.
	EdgeContains EdgeKind = "contains"

	// EdgeRelatedTo links components declared related in the schema.
	EdgeRelatedTo EdgeKind = "related_to"

	// EdgeSameCategory links components sharing a schema category.
	EdgeSameCategory EdgeKind = "same_category"
)

// Edge weights used for co-occurrence scoring. Containment is the strongest
// signal, declared relations next, shared category weakest.
const (
	weightContains     = 1.0
	weightRelatedTo    = 0.5
	weightSameCategory = 0.3
)

// ComponentNode is a component of the UI kit as seen by the resolution
// pipeline. Nodes are built from schema definitions at Build time and are
// immutable afterwards; callers must not mutate the returned slices or maps.
type ComponentNode struct {
	// Name is the canonical component name from the schema.
	Name string

	// DisplayName is the human-facing name, if the schema provides one.
	DisplayName string

	// Category groups the component ("form", "layout", "feedback", ...).
	Category string

	// Aliases are the schema-declared synonyms for this component.
	Aliases []string

	// Variants are the visual variants the component supports.
	Variants []string

	// Sizes are the size tokens the component supports.
	Sizes []string

	// Props are the declared component properties.
	Props []schema.PropDef

	// IsContainer reports whether the component can hold children.
	IsContainer bool

	// Accepts lists accepted child component names. "*" means any.
	Accepts []string

	// DefaultProps are schema-declared default property values.
	DefaultProps map[string]any

	// RelatedTo lists components the schema declares as related.
	RelatedTo []string
}

// Edge is a directed co-occurrence edge between two components. Edges are
// regenerated wholesale on every Build; duplicates are tolerated because
// co-occurrence scoring takes the maximum weight per neighbor pair.
type Edge struct {
	Kind EdgeKind
	From string
	To   string
	// Weight is the co-occurrence contribution of this edge in [0, 1].
	Weight float64
}

// Stats summarizes a built graph for logging and diagnostics.
type Stats struct {
	Components int
	Synonyms   int
	Edges      int
	Layouts    int
	Pages      int
}

// KnowledgeGraph indexes a UI-kit schema for exact, synonym, and fuzzy
// component lookup plus co-occurrence scoring.
//
// Description:
//
//	All lookup keys are case-insensitive. The node, edge, layout, and page
//	tables plus the fuzzy index and feature vectors are immutable after
//	Build; only the synonym table accepts appends via AddSynonym. Schema
//	synonyms override built-in synonyms for the same alias. Synonyms whose
//	target is not a known component are kept (they resolve to a miss) so a
//	schema can ship forward-looking aliases without breaking the build.
//
// Thread Safety:
//
//	Safe for concurrent use.
type KnowledgeGraph struct {
	mu sync.RWMutex

	schemaName    string
	schemaVersion string

	nodes    map[string]*ComponentNode // lower-case canonical name → node
	synonyms map[string]string         // lower-case alias → canonical name
	edges    []Edge
	coOccur  map[string]map[string]float64 // canonical name → neighbor → weight
	layouts  map[string]*schema.LayoutTemplate
	pages    map[string]*schema.PageTemplate

	names []string // sorted canonical names, deterministic iteration order

	fuzzy    *fuzzyIndex
	features map[string][]float32

	logger *slog.Logger
}

// Option configures graph construction.
type Option func(*buildOptions)

type buildOptions struct {
	logger         *slog.Logger
	fuzzyThreshold float64
}

// WithLogger sets the logger used during Build and AddSynonym.
func WithLogger(logger *slog.Logger) Option {
	return func(o *buildOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFuzzyThreshold overrides the minimum similarity FuzzyFindComponent
// accepts. Values outside (0, 1] are ignored.
func WithFuzzyThreshold(threshold float64) Option {
	return func(o *buildOptions) {
		if threshold > 0 && threshold <= 1 {
			o.fuzzyThreshold = threshold
		}
	}
}

// =============================================================================
// Construction
// =============================================================================

// Build constructs a knowledge graph from a validated UI-kit schema and the
// built-in synonym table.
//
// Description:
//
//	Nodes are created for every schema component, keyed by lower-cased name.
//	Built-in synonyms are registered first, then schema aliases, so a schema
//	alias silently wins any collision. Co-occurrence edges are regenerated
//	from scratch: containment (weight 1.0) from container accept lists,
//	declared relations (0.5), and shared categories (0.3). The fuzzy index
//	and per-component feature vectors are built last.
//
// Inputs:
//
//	ctx - Context for tracing and feature-vector warm-up.
//	s - Validated schema. Must not be nil and must have components.
//	builtins - Built-in alias → component synonyms. May be nil.
//	opts - Optional configuration.
//
// Outputs:
//
//	*KnowledgeGraph - The built graph. Nil on error.
//	error - Non-nil if the schema is nil or has no components.
//
// Thread Safety:
//
//	Safe to call concurrently; each call returns an independent graph.
func Build(ctx context.Context, s *schema.UIKitSchema, builtins map[string]string, opts ...Option) (*KnowledgeGraph, error) {
	ctx, span := graphTracer.Start(ctx, "graph.Build")
	defer span.End()

	if s == nil {
		return nil, fmt.Errorf("graph build: schema is nil")
	}
	if len(s.Components) == 0 {
		return nil, fmt.Errorf("graph build: schema %q has no components", s.Name)
	}

	options := buildOptions{
		logger:         slog.Default(),
		fuzzyThreshold: defaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(&options)
	}

	g := &KnowledgeGraph{
		schemaName:    s.Name,
		schemaVersion: s.Version,
		nodes:         make(map[string]*ComponentNode, len(s.Components)),
		synonyms:      make(map[string]string, len(builtins)),
		coOccur:       make(map[string]map[string]float64, len(s.Components)),
		layouts:       make(map[string]*schema.LayoutTemplate, len(s.Layouts)),
		pages:         make(map[string]*schema.PageTemplate, len(s.Pages)),
		logger:        options.logger,
	}

	for i := range s.Components {
		node := nodeFromDef(&s.Components[i])
		g.nodes[strings.ToLower(node.Name)] = node
		g.names = append(g.names, node.Name)
	}
	sort.Strings(g.names)

	// Built-ins first, schema aliases second: last write wins, so schema
	// synonyms override built-ins for the same alias.
	for alias, target := range builtins {
		g.synonyms[strings.ToLower(alias)] = strings.ToLower(target)
	}
	for i := range s.Components {
		canonical := strings.ToLower(s.Components[i].Name)
		for _, alias := range s.Components[i].Aliases {
			g.synonyms[strings.ToLower(alias)] = canonical
		}
	}
	dead := 0
	for alias, target := range g.synonyms {
		if _, ok := g.nodes[target]; !ok {
			dead++
			g.logger.Debug("synonym targets unknown component, kept as a miss",
				slog.String("alias", alias),
				slog.String("target", target),
			)
		}
	}

	for i := range s.Layouts {
		g.layouts[strings.ToLower(s.Layouts[i].Name)] = &s.Layouts[i]
	}
	for i := range s.Pages {
		g.pages[strings.ToLower(s.Pages[i].Name)] = &s.Pages[i]
	}

	g.buildEdges()
	g.fuzzy = newFuzzyIndex(g.nodes, options.fuzzyThreshold)

	if err := g.warmFeatureVectors(ctx); err != nil {
		// Feature vectors are advisory (Similarity only); a warm failure
		// must not block resolution.
		g.logger.Warn("feature vector warm-up failed, similarity disabled",
			slog.String("error", err.Error()),
		)
	}

	st := g.StatsSnapshot()
	span.SetAttributes(
		attribute.String("schema.name", s.Name),
		attribute.String("schema.version", s.Version),
		attribute.Int("graph.components", st.Components),
		attribute.Int("graph.synonyms", st.Synonyms),
		attribute.Int("graph.edges", st.Edges),
	)
	g.logger.Info("knowledge graph built",
		slog.String("schema", s.Name),
		slog.String("version", s.Version),
		slog.Int("components", st.Components),
		slog.Int("synonyms", st.Synonyms),
		slog.Int("dead_synonyms", dead),
		slog.Int("edges", st.Edges),
		slog.Int("layouts", st.Layouts),
		slog.Int("pages", st.Pages),
	)

	return g, nil
}

// nodeFromDef deep-copies a schema component definition into a graph node so
// later schema mutation cannot reach published nodes.
func nodeFromDef(def *schema.ComponentDef) *ComponentNode {
	node := &ComponentNode{
		Name:        def.Name,
		DisplayName: def.DisplayName,
		Category:    strings.ToLower(def.Category),
		Aliases:     append([]string(nil), def.Aliases...),
		Variants:    append([]string(nil), def.Variants...),
		Sizes:       append([]string(nil), def.Sizes...),
		Props:       append([]schema.PropDef(nil), def.Props...),
		IsContainer: def.IsContainer,
		Accepts:     append([]string(nil), def.Accepts...),
		RelatedTo:   append([]string(nil), def.RelatedTo...),
	}
	if len(def.DefaultProps) > 0 {
		node.DefaultProps = make(map[string]any, len(def.DefaultProps))
		for k, v := range def.DefaultProps {
			node.DefaultProps[k] = v
		}
	}
	return node
}

// buildEdges regenerates the edge list and the co-occurrence table from the
// node set. Called exactly once, from Build, before the graph is published.
func (g *KnowledgeGraph) buildEdges() {
	for _, name := range g.names {
		node := g.nodes[strings.ToLower(name)]

		if node.IsContainer {
			for _, child := range g.expandAccepts(node) {
				g.addEdge(Edge{Kind: EdgeContains, From: node.Name, To: child, Weight: weightContains})
			}
		}
		for _, related := range node.RelatedTo {
			if _, ok := g.nodes[strings.ToLower(related)]; ok {
				g.addEdge(Edge{Kind: EdgeRelatedTo, From: node.Name, To: related, Weight: weightRelatedTo})
			}
		}
	}

	// Same-category sibling edges. names is sorted, so each unordered pair
	// is visited once in deterministic order.
	for i, a := range g.names {
		nodeA := g.nodes[strings.ToLower(a)]
		if nodeA.Category == "" {
			continue
		}
		for _, b := range g.names[i+1:] {
			nodeB := g.nodes[strings.ToLower(b)]
			if nodeB.Category == nodeA.Category {
				g.addEdge(Edge{Kind: EdgeSameCategory, From: a, To: b, Weight: weightSameCategory})
			}
		}
	}
}

// addEdge records an edge and folds its weight into the symmetric
// co-occurrence table. Per neighbor pair the maximum weight wins, so
// duplicate edges are harmless.
func (g *KnowledgeGraph) addEdge(e Edge) {
	g.edges = append(g.edges, e)

	from := strings.ToLower(e.From)
	to := strings.ToLower(e.To)
	if from == to {
		return
	}
	for _, pair := range [2][2]string{{from, to}, {to, from}} {
		m := g.coOccur[pair[0]]
		if m == nil {
			m = make(map[string]float64)
			g.coOccur[pair[0]] = m
		}
		if e.Weight > m[pair[1]] {
			m[pair[1]] = e.Weight
		}
	}
}

// expandAccepts resolves a container's accept list to concrete component
// names. The wildcard "*" expands to every component name. Unknown entries
// are dropped here; schema validation already warned about them.
func (g *KnowledgeGraph) expandAccepts(node *ComponentNode) []string {
	var out []string
	for _, accepted := range node.Accepts {
		if accepted == schema.WildcardAccepts {
			return append([]string(nil), g.names...)
		}
		if child, ok := g.nodes[strings.ToLower(accepted)]; ok {
			out = append(out, child.Name)
		}
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Lookup
// =============================================================================

// FindComponent resolves a term to a component by exact name, then by
// synonym.
//
// Description:
//
//	The term is trimmed and lower-cased before lookup. Exact name hits
//	report MatchExact, synonym-table hits MatchSynonym. A synonym whose
//	target component does not exist reports MatchNone, exactly like an
//	unknown term. Resolution misses are expected and silent here.
//
// Inputs:
//
//	term - The surface term to resolve.
//
// Outputs:
//
//	*ComponentNode - The matched node, or nil.
//	MatchKind - MatchExact, MatchSynonym, or MatchNone.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (g *KnowledgeGraph) FindComponent(term string) (*ComponentNode, MatchKind) {
	key := strings.ToLower(strings.TrimSpace(term))
	if key == "" {
		return nil, MatchNone
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if node, ok := g.nodes[key]; ok {
		return node, MatchExact
	}
	if target, ok := g.synonyms[key]; ok {
		if node, ok := g.nodes[target]; ok {
			return node, MatchSynonym
		}
	}
	return nil, MatchNone
}

// ResolveSynonym returns the canonical component name for an alias, or the
// input unchanged (lower-cased) when no synonym entry exists.
func (g *KnowledgeGraph) ResolveSynonym(alias string) string {
	key := strings.ToLower(strings.TrimSpace(alias))

	g.mu.RLock()
	defer g.mu.RUnlock()

	if target, ok := g.synonyms[key]; ok {
		return target
	}
	return key
}

// Synonyms returns every alias mapping to the given component name, sorted.
// The component itself is not included. Returns nil for unknown components.
func (g *KnowledgeGraph) Synonyms(name string) []string {
	key := strings.ToLower(strings.TrimSpace(name))

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[key]; !ok {
		return nil
	}
	var out []string
	for alias, target := range g.synonyms {
		if target == key {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out
}

// AddSynonym registers an additional alias for a component at runtime.
//
// Description:
//
//	Append-only: aliases are never removed, and registering an existing
//	alias overwrites its target. The target is not required to exist;
//	dead synonyms simply resolve to a miss, matching Build semantics.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (g *KnowledgeGraph) AddSynonym(alias, target string) {
	key := strings.ToLower(strings.TrimSpace(alias))
	canonical := strings.ToLower(strings.TrimSpace(target))
	if key == "" || canonical == "" {
		return
	}

	g.mu.Lock()
	g.synonyms[key] = canonical
	g.mu.Unlock()

	g.logger.Debug("synonym registered",
		slog.String("alias", key),
		slog.String("target", canonical),
	)
}

// CoOccurrences returns the co-occurrence weights between the given term and
// every neighboring component: containment 1.0, declared relation 0.5,
// shared category 0.3 (maximum wins when several apply). The term may be a
// component name or a synonym. Returns nil when the term does not resolve.
func (g *KnowledgeGraph) CoOccurrences(term string) map[string]float64 {
	node, kind := g.FindComponent(term)
	if kind == MatchNone {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	neighbors := g.coOccur[strings.ToLower(node.Name)]
	out := make(map[string]float64, len(neighbors))
	for name, weight := range neighbors {
		out[name] = weight
	}
	return out
}

// =============================================================================
// Enumeration
// =============================================================================

// ComponentNames returns all canonical component names, sorted.
func (g *KnowledgeGraph) ComponentNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.names...)
}

// AllTerms returns every surface term the graph can resolve: component names
// plus all synonym aliases, lower-cased, deduplicated, sorted. The engine
// seeds the tokenizer's phrase table from the multi-word entries.
func (g *KnowledgeGraph) AllTerms() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]struct{}, len(g.names)+len(g.synonyms))
	for _, name := range g.names {
		seen[strings.ToLower(name)] = struct{}{}
	}
	for alias := range g.synonyms {
		seen[alias] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

// AcceptedChildren returns the component names a container accepts, sorted.
// The wildcard accept list expands to every component name. Returns nil for
// unknown or non-container components.
func (g *KnowledgeGraph) AcceptedChildren(name string) []string {
	node, kind := g.FindComponent(name)
	if kind == MatchNone || !node.IsContainer {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.expandAccepts(node)
}

// LayoutTemplate returns the named layout template, case-insensitive.
func (g *KnowledgeGraph) LayoutTemplate(name string) (*schema.LayoutTemplate, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tmpl, ok := g.layouts[strings.ToLower(strings.TrimSpace(name))]
	return tmpl, ok
}

// LayoutNames returns all layout template names, sorted.
func (g *KnowledgeGraph) LayoutNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]string, 0, len(g.layouts))
	for name := range g.layouts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PageTemplate returns the named page template, case-insensitive.
func (g *KnowledgeGraph) PageTemplate(name string) (*schema.PageTemplate, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tmpl, ok := g.pages[strings.ToLower(strings.TrimSpace(name))]
	return tmpl, ok
}

// Edges returns a copy of the edge list. Intended for diagnostics and tests.
func (g *KnowledgeGraph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.edges...)
}

// SchemaName returns the name of the schema this graph was built from.
func (g *KnowledgeGraph) SchemaName() string {
	return g.schemaName
}

// SchemaVersion returns the version of the schema this graph was built from.
func (g *KnowledgeGraph) SchemaVersion() string {
	return g.schemaVersion
}

// StatsSnapshot returns counts describing the built graph.
func (g *KnowledgeGraph) StatsSnapshot() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Stats{
		Components: len(g.nodes),
		Synonyms:   len(g.synonyms),
		Edges:      len(g.edges),
		Layouts:    len(g.layouts),
		Pages:      len(g.pages),
	}
}
