// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/Loom/services/loom/config"
	"github.com/AleutianAI/Loom/services/loom/semantics"
	"github.com/AleutianAI/Loom/services/loom/tokenizer"
)

// =============================================================================
// Refinement Cascade
// =============================================================================

const (
	// resolvedTargetBoost rewards a classifier prediction corroborated by a
	// structurally resolved target or layout relationship.
	resolvedTargetBoost = 0.2

	// combineConfidenceFloor is the minimum confidence after a containment
	// relationship forces a combine intent.
	combineConfidenceFloor = 0.7

	// pageConfidenceFloor is the minimum confidence after a page keyword
	// promotes the intent to create_page.
	pageConfidenceFloor = 0.8
)

// Intent is a classified interpretation of one request, before or after
// refinement.
type Intent struct {
	Type         string        `json:"type"`
	Subtype      string        `json:"subtype,omitempty"`
	Confidence   float64       `json:"confidence"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// RefinementRule is one named step of the cascade. Apply is a pure
// transform: it returns the (possibly unchanged) intent and whether the
// rule's predicate held. Rules never mutate the analysis.
type RefinementRule struct {
	Name  string
	Apply func(r *Refiner, in Intent, a *semantics.Analysis) (Intent, bool)
}

// Rules returns the cascade in evaluation order. The order is load-bearing:
// layout promotion must run before the combine rules see the intent type,
// and page promotion runs last so it wins over everything prior.
//
// Exported so each rule can be exercised on its own in isolation.
func Rules() []RefinementRule {
	return []RefinementRule{
		{Name: "boost_resolved_target", Apply: (*Refiner).boostResolvedTarget},
		{Name: "boost_layout_relationship", Apply: (*Refiner).boostLayoutRelationship},
		{Name: "promote_domain_layout", Apply: (*Refiner).promoteDomainLayout},
		{Name: "contains_implies_combine", Apply: (*Refiner).containsImpliesCombine},
		{Name: "multi_component_combine", Apply: (*Refiner).multiComponentCombine},
		{Name: "page_keyword_promotion", Apply: (*Refiner).pageKeywordPromotion},
	}
}

// Refiner adjusts raw classifier predictions with structural evidence from
// the semantic analysis.
//
// Description:
//
//	The statistical model sees only word co-occurrence; the analyzer sees
//	structure. The cascade reconciles the two: corroborated predictions
//	gain confidence, and structural evidence (containment, multiple
//	components, page keywords) can override the predicted type outright.
//
// Thread Safety:
//
//	Stateless after construction; safe for concurrent use.
type Refiner struct {
	lex   *config.Lexicon
	rules []RefinementRule
}

// NewRefiner creates a refiner backed by the shared lexicon.
func NewRefiner(lex *config.Lexicon) (*Refiner, error) {
	if lex == nil {
		return nil, fmt.Errorf("intent: refiner requires a lexicon")
	}
	return &Refiner{lex: lex, rules: Rules()}, nil
}

// Refine runs the full cascade over one prediction.
//
// Inputs:
//
//	in - The raw classifier prediction mapped to an Intent.
//	analysis - The semantic analysis of the same request. A nil analysis
//	    returns the input unchanged.
//
// Outputs:
//
//	Intent - The refined intent with its subtype derived.
//	[]string - Names of the rules whose predicate held, in cascade order.
func (r *Refiner) Refine(in Intent, analysis *semantics.Analysis) (Intent, []string) {
	if analysis == nil {
		return in, nil
	}
	var applied []string
	for _, rule := range r.rules {
		var held bool
		in, held = rule.Apply(r, in, analysis)
		if held {
			applied = append(applied, rule.Name)
		}
	}
	in.Subtype = r.deriveSubtype(in, analysis)
	return in, applied
}

// boostResolvedTarget: a create_component prediction whose target actually
// resolved against the schema gains confidence, capped at 1.0.
func (r *Refiner) boostResolvedTarget(in Intent, a *semantics.Analysis) (Intent, bool) {
	if in.Type != CreateComponent {
		return in, false
	}
	if a.Roles.Target == nil || a.Roles.Target.Resolved == nil {
		return in, false
	}
	in.Confidence = capConfidence(in.Confidence + resolvedTargetBoost)
	return in, true
}

// boostLayoutRelationship: a create_layout prediction backed by an explicit
// layout relationship gains confidence, capped at 1.0.
func (r *Refiner) boostLayoutRelationship(in Intent, a *semantics.Analysis) (Intent, bool) {
	if in.Type != CreateLayout || !hasRelation(a, semantics.RelationLayout) {
		return in, false
	}
	in.Confidence = capConfidence(in.Confidence + resolvedTargetBoost)
	return in, true
}

// promoteDomainLayout: the request named a component that is also a layout
// template ("cards in a grid"), so building a layout is the better reading.
// Confidence is left untouched.
func (r *Refiner) promoteDomainLayout(in Intent, a *semantics.Analysis) (Intent, bool) {
	if in.Type != CreateComponent || a.Domain.Layout == "" {
		return in, false
	}
	in.Type = CreateLayout
	return in, true
}

// containsImpliesCombine: a containment relationship on a weak or
// single-component prediction means the request composes multiple pieces.
func (r *Refiner) containsImpliesCombine(in Intent, a *semantics.Analysis) (Intent, bool) {
	if !hasRelation(a, semantics.RelationContains) {
		return in, false
	}
	if in.Confidence >= combineConfidenceFloor && in.Type != CreateComponent {
		return in, false
	}
	in.Type = Combine
	if in.Confidence < combineConfidenceFloor {
		in.Confidence = combineConfidenceFloor
	}
	return in, true
}

// multiComponentCombine: more than one domain component under a
// create_component prediction is a composition.
func (r *Refiner) multiComponentCombine(in Intent, a *semantics.Analysis) (Intent, bool) {
	if in.Type != CreateComponent || len(a.Domain.Components) < 2 {
		return in, false
	}
	in.Type = Combine
	return in, true
}

// pageKeywordPromotion: any noun on the page-keyword list promotes the
// request to page scope regardless of the type reached so far.
func (r *Refiner) pageKeywordPromotion(in Intent, a *semantics.Analysis) (Intent, bool) {
	if !r.hasPageNoun(a) {
		return in, false
	}
	in.Type = CreatePage
	if in.Confidence < pageConfidenceFloor {
		in.Confidence = pageConfidenceFloor
	}
	return in, true
}

func (r *Refiner) hasPageNoun(a *semantics.Analysis) bool {
	for _, noun := range a.Grammar.Nouns {
		word := strings.ToLower(noun.Text)
		if r.lex.IsPageKeyword(word) || r.lex.IsPageKeyword(tokenizer.Singularize(word)) {
			return true
		}
	}
	return false
}

func hasRelation(a *semantics.Analysis, typ semantics.RelationType) bool {
	for _, rel := range a.Relationships {
		if rel.Type == typ {
			return true
		}
	}
	return false
}

func capConfidence(c float64) float64 {
	if c > 1.0 {
		return 1.0
	}
	return c
}

// =============================================================================
// Subtype Derivation
// =============================================================================

// layoutFamilies maps surface words onto layout subtypes, checked in fixed
// priority order.
var layoutFamilies = []struct {
	subtype string
	words   []string
}{
	{"grid", []string{"grid", "grids"}},
	{"flex", []string{"flex", "flexbox"}},
	{"columns", []string{"column", "columns"}},
	{"rows", []string{"row", "rows"}},
}

// deriveSubtype fills the intent subtype from the request's surface words.
// create_layout picks the first matching layout family, defaulting to
// "auto"; create_page picks the first page keyword in text order,
// defaulting to "custom". Other intents carry no subtype.
func (r *Refiner) deriveSubtype(in Intent, a *semantics.Analysis) string {
	switch in.Type {
	case CreateLayout:
		present := make(map[string]struct{}, len(a.Trace))
		for _, tag := range a.Trace {
			present[tag.Token] = struct{}{}
		}
		for _, family := range layoutFamilies {
			for _, w := range family.words {
				if _, ok := present[w]; ok {
					return family.subtype
				}
			}
		}
		return "auto"
	case CreatePage:
		for _, tag := range a.Trace {
			if r.lex.IsPageKeyword(tag.Token) {
				return tag.Token
			}
			if singular := tokenizer.Singularize(tag.Token); r.lex.IsPageKeyword(singular) {
				return singular
			}
		}
		return "custom"
	default:
		return ""
	}
}
