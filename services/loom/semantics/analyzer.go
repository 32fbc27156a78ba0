// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package semantics turns a token stream into grammar, semantic roles,
// domain meaning, and textual relationships. Grammar classification is an
// explicit ordered rule list, first match wins; relationship extraction runs
// regex families over the raw lower-cased text, independent of tokenization.
package semantics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Loom/services/loom/config"
	"github.com/AleutianAI/Loom/services/loom/graph"
	"github.com/AleutianAI/Loom/services/loom/tokenizer"
)

var semanticsTracer = otel.Tracer("aleutian.loom.semantics")

// =============================================================================
// Types
// =============================================================================

// ResolvedComponent is one surface term resolved against the knowledge
// graph. Confidence bands: exact name 1.0, synonym 0.9, fuzzy the match
// engine's own score. A miss carries Resolved nil and Confidence 0.
type ResolvedComponent struct {
	Text        string
	Resolved    *graph.ComponentNode
	Confidence  float64
	IsContainer bool
}

// Grammar is the single-pass token classification. Each token lands in
// exactly one list or is dropped.
type Grammar struct {
	Nouns        []ResolvedComponent
	Verbs        []string
	Adjectives   []string
	Numbers      []string
	Prepositions []string
}

// Roles are the semantic roles extracted from the grammar.
//
// Target is the first resolved noun. Subsequent resolved nouns go to
// Container when container-capable (a single container is tracked; later
// container-capable nouns are dropped) or to Additions otherwise. Quantity
// defaults to 1.
type Roles struct {
	Action    string
	Target    *ResolvedComponent
	Modifiers []string
	Additions []ResolvedComponent
	Quantity  int
	Container *ResolvedComponent
}

// DomainComponent is a domain-mapped component with carried-over resolution
// confidence.
type DomainComponent struct {
	Name       string
	Confidence float64
}

// DomainMeaning maps roles onto the UI-kit domain: resolved target and
// additions become Components, bucketed modifiers become Props, and a
// container matching a named layout template populates Layout.
type DomainMeaning struct {
	Components []DomainComponent
	Props      map[string]any
	Layout     string
}

// RelationType tags a textual relationship tuple.
type RelationType string

const (
	// RelationContains marks containment; Subject contains Object.
	RelationContains RelationType = "contains"

	// RelationSibling marks coordination ("X and Y"); not reordered.
	RelationSibling RelationType = "sibling"

	// RelationLayout marks a layout hint; Subject is the layout word,
	// Object the column count when one was captured.
	RelationLayout RelationType = "layout"
)

// Relationship is a tagged tuple extracted from the raw text. Extraction
// families can overlap; duplicates are expected and never deduplicated.
type Relationship struct {
	Type    RelationType
	Subject string
	Object  string
}

// TokenTag records which grammar rule claimed a token, for debugging.
type TokenTag struct {
	Token string
	Rule  string
}

// Analysis is the full semantic analysis of one request.
type Analysis struct {
	// Raw is the lower-cased, trimmed request text the relationship and
	// prop patterns ran against.
	Raw string

	Grammar       Grammar
	Roles         Roles
	Domain        DomainMeaning
	Relationships []Relationship

	// Trace lists the grammar rule that claimed each token, in token
	// order. Dropped tokens are tagged with the "dropped" pseudo-rule.
	Trace []TokenTag
}

// =============================================================================
// Analyzer
// =============================================================================

// Analyzer performs semantic analysis against one knowledge graph.
//
// Description:
//
//	Holds the ordered grammar rule list, the verb/modifier/number tables
//	from the lexicon, and the compiled relationship patterns. The graph
//	and lexicon are required at construction; there is no lazy
//	initialization path.
//
// Thread Safety:
//
//	Safe for concurrent use. All per-request state lives on the stack.
type Analyzer struct {
	kg     *graph.KnowledgeGraph
	lex    *config.Lexicon
	rules  []grammarRule
	rel    *relationshipPatterns
	logger *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the analyzer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Analyzer bound to a knowledge graph and lexicon.
//
// Inputs:
//
//	kg - Knowledge graph for noun resolution. Must not be nil.
//	lex - Lexicon for stop words, verbs, modifiers, numbers. Must not be nil.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Analyzer - Ready analyzer.
//	error - Non-nil when a required dependency is missing.
func New(kg *graph.KnowledgeGraph, lex *config.Lexicon, opts ...Option) (*Analyzer, error) {
	if kg == nil {
		return nil, fmt.Errorf("semantics: knowledge graph is nil")
	}
	if lex == nil {
		return nil, fmt.Errorf("semantics: lexicon is nil")
	}

	a := &Analyzer{
		kg:     kg,
		lex:    lex,
		rules:  grammarRules(),
		rel:    compileRelationshipPatterns(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Analyze classifies tokens, extracts roles, maps domain meaning, and
// scans for relationships.
//
// Description:
//
//	Grammar classification walks the ordered rule list per token, first
//	match wins: stop word, number, verb, modifier, resolvable noun,
//	preposition, then the article-plus-fuzzy fallback. Unclaimed tokens
//	are dropped silently; they only depress coverage downstream. Role,
//	domain, and relationship extraction are pure functions of the grammar
//	and raw text.
//
// Inputs:
//
//	ctx - Context for tracing.
//	tokens - Tokenizer output. Must not be nil.
//
// Outputs:
//
//	*Analysis - The complete analysis. Nil on error.
//	error - Non-nil only for a nil token result.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (a *Analyzer) Analyze(ctx context.Context, tokens *tokenizer.Result) (*Analysis, error) {
	if tokens == nil {
		return nil, fmt.Errorf("semantics: token result is nil")
	}

	_, span := semanticsTracer.Start(ctx, "semantics.Analyze")
	defer span.End()

	raw := strings.ToLower(strings.TrimSpace(tokens.Original))

	analysis := &Analysis{Raw: raw}
	a.classifyGrammar(raw, tokens.Words, analysis)
	analysis.Roles = a.extractRoles(raw, &analysis.Grammar)
	analysis.Domain = a.mapDomain(&analysis.Roles)
	analysis.Relationships = a.rel.extract(raw, a.lex)

	span.SetAttributes(
		attribute.Int("grammar.nouns", len(analysis.Grammar.Nouns)),
		attribute.Int("grammar.verbs", len(analysis.Grammar.Verbs)),
		attribute.Int("grammar.adjectives", len(analysis.Grammar.Adjectives)),
		attribute.Int("relationships", len(analysis.Relationships)),
		attribute.String("roles.action", analysis.Roles.Action),
	)

	return analysis, nil
}
