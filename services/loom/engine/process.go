// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/Loom/services/loom/assemble"
	"github.com/AleutianAI/Loom/services/loom/entities"
	"github.com/AleutianAI/Loom/services/loom/intent"
	"github.com/AleutianAI/Loom/services/loom/semantics"
	"github.com/AleutianAI/Loom/services/loom/tokenizer"
)

// Result is the complete interpretation of one request.
type Result struct {
	// RequestID is the per-request UUID, also present on Context.
	RequestID string `json:"request_id"`

	// Context is the assembled processing context, including any plugin
	// enhancements.
	Context *assemble.ProcessingContext `json:"context,omitempty"`

	// Intent is the final (refined, possibly plugin-adjusted) intent.
	Intent intent.Intent `json:"intent"`

	// Entities are the final extracted entities. Never nil.
	Entities []entities.Entity `json:"entities"`

	// Confidence is the blended confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Coverage is the fraction of normalized tokens accounted for by
	// entities, in [0, 1].
	Coverage float64 `json:"coverage"`

	// Issues lists structural validation findings. Empty means clean.
	Issues []assemble.Issue `json:"issues"`

	// Suggestions are human-readable hints for sharpening the request.
	Suggestions []string `json:"suggestions,omitempty"`

	// ProcessingTime is the end-to-end pipeline duration.
	ProcessingTime time.Duration `json:"processing_time"`

	// Debug exposes intermediate pipeline state.
	Debug *Debug `json:"debug,omitempty"`
}

// Debug carries the intermediate state of every pipeline stage for one
// request. Intended for logs, test assertions, and the playground UI, not
// for programmatic consumption.
type Debug struct {
	Tokens             *tokenizer.Result        `json:"tokens"`
	Trace              []semantics.TokenTag     `json:"trace"`
	Roles              semantics.Roles          `json:"roles"`
	Domain             semantics.DomainMeaning  `json:"domain"`
	Relationships      []semantics.Relationship `json:"relationships"`
	RawIntent          intent.Intent            `json:"raw_intent"`
	RefinedIntent      intent.Intent            `json:"refined_intent"`
	AppliedRules       []string                 `json:"applied_rules"`
	Escalated          bool                     `json:"escalated"`
	EnhancementApplied bool                     `json:"enhancement_applied"`
}

// Process runs the full pipeline on one natural-language request.
//
// Description:
//
//	Tokenizes, analyzes, classifies, refines, extracts, assembles, and
//	validates. When the blended confidence lands below the escalation
//	threshold the context is offered to the active plugin; an enhanced
//	context is re-validated and re-blended. Plugin failures never fail
//	the request.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing. Bounds plugin calls.
//	text - Raw request text. Empty input yields an unknown-intent
//	result with issues, not an error.
//
// Outputs:
//
//	*Result - The interpretation. Nil only when error is non-nil.
//	error - ErrNotInitialized before Initialize, or an analysis error.
//
// Thread Safety:
//
//	Safe for concurrent use. Requests are serialized internally.
func (e *Engine) Process(ctx context.Context, text string) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		recordEngineError(ErrNotInitialized)
		return nil, ErrNotInitialized
	}

	start := time.Now()
	requestID := uuid.NewString()

	ctx, span := engineTracer.Start(ctx, "engine.Process")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	tokens := e.tok.Tokenize(text)

	analysis, err := e.analyzer.Analyze(ctx, tokens)
	if err != nil {
		err = fmt.Errorf("engine: analyzing request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordProcessMetrics(time.Since(start), 0, err)
		return nil, err
	}

	_, classifySpan := engineTracer.Start(ctx, "engine.classify")
	pred := e.classifier.Classify(classifierWords(analysis))
	raw := intent.Intent{
		Type:         pred.Label,
		Confidence:   pred.Confidence,
		Alternatives: pred.Alternatives,
	}
	refined, applied := e.refiner.Refine(raw, analysis)
	classifySpan.SetAttributes(
		attribute.String("intent.raw", raw.Type),
		attribute.String("intent.refined", refined.Type),
		attribute.Int("rules.applied", len(applied)),
	)
	classifySpan.End()

	_, extractSpan := engineTracer.Start(ctx, "engine.extract")
	ents := e.extractor.Extract(analysis, refined)
	extractSpan.SetAttributes(attribute.Int("entities", len(ents)))
	extractSpan.End()

	pc := assemble.Build(requestID, tokens, analysis, refined, ents, e.kg.ComponentNames())
	issues := assemble.Validate(pc)
	confidence := assemble.BlendConfidence(refined.Confidence, pc.Entities, pc.Coverage)

	escalated := confidence < e.cfg.EscalationThreshold
	enhanced := false
	if escalated {
		pc, enhanced = e.plugins.Enhance(ctx, pc)
		if enhanced {
			issues = assemble.Validate(pc)
			confidence = assemble.BlendConfidence(pc.Intent.Confidence, pc.Entities, pc.Coverage)
		}
		recordEscalation(enhanced)
	}

	result := &Result{
		RequestID:      requestID,
		Context:        pc,
		Intent:         pc.Intent,
		Entities:       pc.Entities,
		Confidence:     confidence,
		Coverage:       pc.Coverage,
		Issues:         issues,
		Suggestions:    e.suggest(analysis, issues),
		ProcessingTime: time.Since(start),
		Debug: &Debug{
			Tokens:             tokens,
			Trace:              analysis.Trace,
			Roles:              analysis.Roles,
			Domain:             analysis.Domain,
			Relationships:      analysis.Relationships,
			RawIntent:          raw,
			RefinedIntent:      refined,
			AppliedRules:       applied,
			Escalated:          escalated,
			EnhancementApplied: enhanced,
		},
	}

	span.SetAttributes(
		attribute.String("intent.type", result.Intent.Type),
		attribute.Float64("confidence", result.Confidence),
		attribute.Float64("coverage", result.Coverage),
		attribute.Bool("escalated", escalated),
	)
	recordProcessMetrics(time.Since(start), result.Confidence, nil)

	e.logger.Debug("request processed",
		"request_id", requestID,
		"intent", result.Intent.Type,
		"confidence", result.Confidence,
		"entities", len(result.Entities),
		"escalated", escalated,
	)
	return result, nil
}

// classifierWords selects the classifiable words from an analysis: verbs,
// noun surface forms, and adjectives. Stop words, prepositions, and
// dropped tokens never reach the model.
func classifierWords(a *semantics.Analysis) []string {
	words := make([]string, 0, len(a.Grammar.Verbs)+len(a.Grammar.Nouns)+len(a.Grammar.Adjectives))
	words = append(words, a.Grammar.Verbs...)
	for _, n := range a.Grammar.Nouns {
		words = append(words, n.Text)
	}
	words = append(words, a.Grammar.Adjectives...)
	return words
}

// suggest builds the suggestion list for a result: issue remedies first,
// then near-miss vocabulary corrections, then co-occurrence hints for the
// resolved target. Deduplicated, capped at MaxSuggestions.
func (e *Engine) suggest(a *semantics.Analysis, issues []assemble.Issue) []string {
	out := make([]string, 0, e.cfg.MaxSuggestions)
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, dup := seen[s]; dup || len(out) >= e.cfg.MaxSuggestions {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, issue := range issues {
		switch issue.Code {
		case assemble.IssueNoEntities, assemble.IssueMissingComponent:
			if names := e.kg.ComponentNames(); len(names) > 0 {
				add(fmt.Sprintf("name a component from the kit, e.g. %s", exampleList(names, 3)))
			}
		case assemble.IssueMissingLayout:
			add(`describe the arrangement, e.g. "in a grid" or "three columns"`)
		}
	}

	for _, tag := range a.Trace {
		if tag.Rule != semantics.RuleDropped {
			continue
		}
		if node, score := e.kg.FuzzyFindComponent(tag.Token); node != nil && score < 1 {
			add(fmt.Sprintf("%q is not in the kit, did you mean %q?", tag.Token, node.Name))
		}
	}

	if target := a.Roles.Target; target != nil && target.Resolved != nil {
		name := target.Resolved.Name
		if related := topRelated(e.kg.CoOccurrences(name), 3); len(related) > 0 {
			add(fmt.Sprintf("%s often pairs with %s", name, strings.Join(related, ", ")))
		}
	}
	return out
}

// exampleList formats up to n names as a quoted, comma-separated list.
func exampleList(names []string, n int) string {
	if len(names) < n {
		n = len(names)
	}
	quoted := make([]string, n)
	for i := 0; i < n; i++ {
		quoted[i] = fmt.Sprintf("%q", names[i])
	}
	return strings.Join(quoted, ", ")
}

// topRelated returns the n highest-weighted co-occurrence partners,
// weight descending, name ascending on ties.
func topRelated(weights map[string]float64, n int) []string {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if weights[names[i]] != weights[names[j]] {
			return weights[names[i]] > weights[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}
