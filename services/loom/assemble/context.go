// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assemble builds the per-request processing context: the
// aggregate of every pipeline stage's output plus the coverage heuristic,
// structural validation, and the blended confidence score. Contexts are
// never mutated after Build; merges produce new contexts.
package assemble

import (
	"strings"

	"github.com/AleutianAI/Loom/services/loom/entities"
	"github.com/AleutianAI/Loom/services/loom/intent"
	"github.com/AleutianAI/Loom/services/loom/semantics"
	"github.com/AleutianAI/Loom/services/loom/tokenizer"
)

// =============================================================================
// Types
// =============================================================================

// ProcessingContext is the request-scoped aggregate handed to the caller
// and, when escalation fires, to collaborator plugins. Treat it as
// immutable: Merge and Clone return fresh contexts.
type ProcessingContext struct {
	RequestID string              `json:"request_id"`
	Raw       string              `json:"raw"`
	Tokens    *tokenizer.Result   `json:"tokens,omitempty"`
	Analysis  *semantics.Analysis `json:"analysis,omitempty"`
	Intent    intent.Intent       `json:"intent"`
	Entities  []entities.Entity   `json:"entities"`
	Coverage  float64             `json:"coverage"`

	// AvailableComponents lists the schema's component names, so an
	// external collaborator can ground its additions in the same closed
	// vocabulary.
	AvailableComponents []string `json:"available_components,omitempty"`
}

// Issue is one structural validation finding. Issues are reported, never
// thrown; the caller decides whether to refuse or proceed.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validation issue codes.
const (
	IssueNoEntities       = "no_entities"
	IssueMissingComponent = "missing_component"
	IssueMissingLayout    = "missing_layout"
	IssueNilContext       = "nil_context"
)

// Confidence blend weights: intent and entity evidence dominate, coverage
// breaks ties.
const (
	intentWeight   = 0.4
	entityWeight   = 0.4
	coverageWeight = 0.2

	// emptyEntityConfidence stands in for the mean when no entities were
	// extracted; never 0, so one empty stage cannot zero the blend.
	emptyEntityConfidence = 0.2
)

// =============================================================================
// Build
// =============================================================================

// Build assembles one processing context.
//
// Description:
//
//	Coverage is the entity-counting heuristic min(1, mapped/normalized):
//	every component, modifier, and prop entity counts one normalized
//	token as mapped, quantity and layout count at most one each. It
//	counts entities, not actual token spans, and is 0 when the
//	normalized stream is empty.
//
// Inputs:
//
//	requestID - Caller-assigned identifier, echoed through debugging.
//	tokens - Tokenizer output; Raw is taken from its Original. May be nil.
//	analysis - Semantic analysis for the same request. May be nil.
//	in - The refined intent.
//	ents - Extracted entities; the slice is copied.
//	available - Schema component names offered to collaborators; copied.
//
// Outputs:
//
//	*ProcessingContext - Never nil.
func Build(
	requestID string,
	tokens *tokenizer.Result,
	analysis *semantics.Analysis,
	in intent.Intent,
	ents []entities.Entity,
	available []string,
) *ProcessingContext {
	pc := &ProcessingContext{
		RequestID:           requestID,
		Intent:              in,
		Entities:            append([]entities.Entity(nil), ents...),
		AvailableComponents: append([]string(nil), available...),
		Tokens:              tokens,
		Analysis:            analysis,
	}
	if tokens != nil {
		pc.Raw = tokens.Original
		pc.Coverage = Coverage(ents, len(tokens.Normalized))
	}
	return pc
}

// Coverage computes the mapped-token heuristic for an entity list against
// a normalized token count. Returns 0, never NaN, for an empty stream.
func Coverage(ents []entities.Entity, normalizedCount int) float64 {
	if normalizedCount <= 0 {
		return 0
	}
	mapped := 0
	quantitySeen, layoutSeen := false, false
	for _, e := range ents {
		switch e.Type {
		case entities.TypeComponent, entities.TypeModifier, entities.TypeProp:
			mapped++
		case entities.TypeQuantity:
			if !quantitySeen {
				mapped++
				quantitySeen = true
			}
		case entities.TypeLayout:
			if !layoutSeen {
				mapped++
				layoutSeen = true
			}
		}
	}
	cov := float64(mapped) / float64(normalizedCount)
	if cov > 1 {
		return 1
	}
	return cov
}

// =============================================================================
// Validation
// =============================================================================

// Validate reports the structural requirements the context fails to meet.
//
// Description:
//
//	Every intent needs at least one entity; intents beginning with
//	"create" need a component entity; create_layout needs a layout
//	entity. Returns an empty list for a valid context and never panics.
func Validate(pc *ProcessingContext) []Issue {
	if pc == nil {
		return []Issue{{Code: IssueNilContext, Message: "no processing context was built"}}
	}

	issues := []Issue{}
	if len(pc.Entities) == 0 {
		issues = append(issues, Issue{
			Code:    IssueNoEntities,
			Message: "no entities were extracted from the request",
		})
	}

	hasComponent, hasLayout := false, false
	for _, e := range pc.Entities {
		switch e.Type {
		case entities.TypeComponent:
			hasComponent = true
		case entities.TypeLayout:
			hasLayout = true
		}
	}

	if strings.HasPrefix(pc.Intent.Type, "create") && !hasComponent {
		issues = append(issues, Issue{
			Code:    IssueMissingComponent,
			Message: "intent " + pc.Intent.Type + " needs a component entity",
		})
	}
	if pc.Intent.Type == intent.CreateLayout && !hasLayout {
		issues = append(issues, Issue{
			Code:    IssueMissingLayout,
			Message: "intent create_layout needs a layout entity",
		})
	}
	return issues
}

// =============================================================================
// Confidence
// =============================================================================

// BlendConfidence combines the intent confidence, the mean entity
// confidence, and coverage with fixed weights (0.4/0.4/0.2). With no
// entities the mean defaults to 0.2.
func BlendConfidence(intentConfidence float64, ents []entities.Entity, coverage float64) float64 {
	mean := emptyEntityConfidence
	if len(ents) > 0 {
		sum := 0.0
		for _, e := range ents {
			sum += e.Confidence
		}
		mean = sum / float64(len(ents))
	}
	return intentWeight*intentConfidence + entityWeight*mean + coverageWeight*coverage
}

// =============================================================================
// Merge
// =============================================================================

// Merge folds a collaborator's enhanced context into the base.
//
// Description:
//
//	Identity fields (RequestID, Raw, Tokens, Analysis) always come from
//	the base. The overlay's intent replaces the base's when it carries a
//	type. Overlay entities are appended unless an entity with the same
//	type and value already exists. Coverage is recomputed over the
//	merged entities. Neither input is modified; a nil overlay yields a
//	plain clone.
func Merge(base, overlay *ProcessingContext) *ProcessingContext {
	if base == nil {
		return nil
	}
	merged := base.Clone()
	if overlay == nil {
		return merged
	}

	if overlay.Intent.Type != "" {
		merged.Intent = overlay.Intent
	}

	type key struct {
		typ   entities.EntityType
		value string
	}
	seen := make(map[key]struct{}, len(merged.Entities))
	for _, e := range merged.Entities {
		seen[key{e.Type, e.Value}] = struct{}{}
	}
	for _, e := range overlay.Entities {
		k := key{e.Type, e.Value}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		merged.Entities = append(merged.Entities, e)
	}

	if len(overlay.AvailableComponents) > 0 {
		merged.AvailableComponents = append([]string(nil), overlay.AvailableComponents...)
	}

	if merged.Tokens != nil {
		merged.Coverage = Coverage(merged.Entities, len(merged.Tokens.Normalized))
	}
	return merged
}

// Clone returns a deep-enough copy: slices are fresh, while the immutable
// token and analysis results stay shared.
func (pc *ProcessingContext) Clone() *ProcessingContext {
	if pc == nil {
		return nil
	}
	cp := *pc
	cp.Entities = append([]entities.Entity(nil), pc.Entities...)
	cp.AvailableComponents = append([]string(nil), pc.AvailableComponents...)
	return &cp
}
