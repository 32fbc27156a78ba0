// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package entities flattens a semantic analysis and a refined intent into
// typed, confidence-scored entities with provenance. Extraction is a pure
// transform; all request state arrives through the arguments.
package entities

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/Loom/services/loom/config"
	"github.com/AleutianAI/Loom/services/loom/intent"
	"github.com/AleutianAI/Loom/services/loom/semantics"
	"github.com/AleutianAI/Loom/services/loom/tokenizer"
)

// =============================================================================
// Types
// =============================================================================

// EntityType tags one extracted entity.
type EntityType string

const (
	TypeComponent EntityType = "component"
	TypeModifier  EntityType = "modifier"
	TypeLayout    EntityType = "layout"
	TypeQuantity  EntityType = "quantity"
	TypeProp      EntityType = "prop"
)

// Entity is one typed fragment extracted from a request. Source records
// which stage produced it, for debugging and downstream dedup.
type Entity struct {
	Type       EntityType `json:"type"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Source     string     `json:"source"`
}

// Extraction confidences. Direct lexicon hits are certain; pattern-derived
// entities carry a small discount; an intent subtype is the weakest signal.
const (
	lexicalConfidence  = 1.0
	inferredConfidence = 0.9
	domainOnlyModifier = 0.8
	subtypeConfidence  = 0.7
)

// withPropPattern finds "with <noun>" in the raw text; the captured noun is
// looked up in the lexicon's noun→prop table.
var withPropPattern = regexp.MustCompile(`\bwith\s+(?:(?:a|an|the)\s+)?([a-z0-9-]+)`)

// =============================================================================
// Extractor
// =============================================================================

// Extractor converts (analysis, intent) pairs into entity lists.
//
// Thread Safety:
//
//	Stateless after construction; safe for concurrent use.
type Extractor struct {
	lex *config.Lexicon
}

// New creates an Extractor backed by the shared lexicon.
func New(lex *config.Lexicon) (*Extractor, error) {
	if lex == nil {
		return nil, fmt.Errorf("entities: extractor requires a lexicon")
	}
	return &Extractor{lex: lex}, nil
}

// Extract flattens one analyzed request into entities.
//
// Description:
//
//	Emission order is fixed: components, modifiers, quantity, layout,
//	props. Components merge the domain mapping with the role target,
//	container, and additions, suppressing duplicates by name equality.
//	Modifiers come from the role list, plus a variant or size present
//	only in the domain props. Quantity is emitted only when above one.
//	Layout takes the first source in priority order: explicit layout
//	relationship, then domain layout, then the intent subtype for
//	create_layout. Props come from "with <noun>" phrases matched against
//	the lexicon's noun→prop table.
//
// Inputs:
//
//	a - The semantic analysis. A nil analysis yields no entities.
//	in - The refined intent for the same request.
//
// Outputs:
//
//	[]Entity - Extracted entities; may be empty, never nil.
func (e *Extractor) Extract(a *semantics.Analysis, in intent.Intent) []Entity {
	out := []Entity{}
	if a == nil {
		return out
	}

	out = append(out, e.componentEntities(a)...)
	out = append(out, e.modifierEntities(a)...)
	if a.Roles.Quantity > 1 {
		out = append(out, Entity{
			Type:       TypeQuantity,
			Value:      strconv.Itoa(a.Roles.Quantity),
			Confidence: lexicalConfidence,
			Source:     "roles.quantity",
		})
	}
	if layout, ok := e.layoutEntity(a, in); ok {
		out = append(out, layout)
	}
	out = append(out, e.propEntities(a)...)
	return out
}

// componentEntities merges the domain components with the roles, keeping
// the first occurrence of each name.
func (e *Extractor) componentEntities(a *semantics.Analysis) []Entity {
	var out []Entity
	seen := make(map[string]struct{})
	add := func(name string, confidence float64, source string) {
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, Entity{
			Type:       TypeComponent,
			Value:      name,
			Confidence: confidence,
			Source:     source,
		})
	}

	for _, dc := range a.Domain.Components {
		add(dc.Name, dc.Confidence, "domain.components")
	}
	if t := a.Roles.Target; t != nil && t.Resolved != nil {
		add(t.Resolved.Name, t.Confidence, "roles.target")
	}
	if c := a.Roles.Container; c != nil && c.Resolved != nil {
		add(c.Resolved.Name, c.Confidence, "roles.container")
	}
	for _, addn := range a.Roles.Additions {
		if addn.Resolved != nil {
			add(addn.Resolved.Name, addn.Confidence, "roles.additions")
		}
	}
	return out
}

// modifierEntities emits one entity per role modifier in its canonical
// form, then picks up a variant or size that appears only in the domain
// props (merged in from elsewhere, or collapsed by aliasing).
func (e *Extractor) modifierEntities(a *semantics.Analysis) []Entity {
	var out []Entity
	represented := make(map[string]struct{})

	for _, word := range a.Roles.Modifiers {
		bucket, ok := e.lex.ModifierBucketFor(word)
		if !ok {
			continue
		}
		canonical := e.lex.CanonicalModifier(word)
		represented[canonical] = struct{}{}
		out = append(out, Entity{
			Type:       TypeModifier,
			Value:      canonical,
			Confidence: lexicalConfidence,
			Source:     "roles.modifiers/" + string(bucket),
		})
	}

	for _, bucket := range []string{"variant", "size"} {
		raw, ok := a.Domain.Props[bucket]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok || value == "" {
			continue
		}
		if _, dup := represented[value]; dup {
			continue
		}
		represented[value] = struct{}{}
		out = append(out, Entity{
			Type:       TypeModifier,
			Value:      value,
			Confidence: domainOnlyModifier,
			Source:     "domain.props/" + bucket,
		})
	}
	return out
}

// layoutEntity picks the strongest available layout signal.
func (e *Extractor) layoutEntity(a *semantics.Analysis, in intent.Intent) (Entity, bool) {
	for _, rel := range a.Relationships {
		if rel.Type != semantics.RelationLayout {
			continue
		}
		value := rel.Subject
		if rel.Object != "" {
			value = rel.Subject + "=" + rel.Object
		}
		return Entity{
			Type:       TypeLayout,
			Value:      value,
			Confidence: inferredConfidence,
			Source:     "relationships.layout",
		}, true
	}
	if a.Domain.Layout != "" {
		return Entity{
			Type:       TypeLayout,
			Value:      a.Domain.Layout,
			Confidence: inferredConfidence,
			Source:     "domain.layout",
		}, true
	}
	if in.Type == intent.CreateLayout && in.Subtype != "" {
		return Entity{
			Type:       TypeLayout,
			Value:      in.Subtype,
			Confidence: subtypeConfidence,
			Source:     "intent.subtype",
		}, true
	}
	return Entity{}, false
}

// propEntities maps "with <noun>" phrases onto prop names.
func (e *Extractor) propEntities(a *semantics.Analysis) []Entity {
	var out []Entity
	for _, m := range withPropPattern.FindAllStringSubmatch(a.Raw, -1) {
		noun := strings.ToLower(m[1])
		prop, ok := e.lex.PropForNoun(noun)
		if !ok {
			prop, ok = e.lex.PropForNoun(tokenizer.Singularize(noun))
		}
		if !ok {
			continue
		}
		out = append(out, Entity{
			Type:       TypeProp,
			Value:      prop,
			Confidence: inferredConfidence,
			Source:     "text.with/" + noun,
		})
	}
	return out
}
