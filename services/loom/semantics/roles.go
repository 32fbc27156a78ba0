// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semantics

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/Loom/services/loom/config"
)

// DefaultAction is the action assumed when the request carries no verb.
const DefaultAction = "create"

// leadingQuantityPattern overrides the structurally parsed quantity when the
// request starts with a bare digit ("3 buttons").
var leadingQuantityPattern = regexp.MustCompile(`^\s*(\d+)\s`)

// =============================================================================
// Role Extraction
// =============================================================================

// extractRoles derives semantic roles from the classified grammar.
//
// Description:
//
//	Action is the first verb collapsed through the verb-synonym table,
//	defaulting to "create". Target is the first resolved noun. Each later
//	noun goes to Container when container-capable or to Additions
//	otherwise; only one container is tracked and later container-capable
//	nouns are dropped entirely. Quantity comes from the first captured
//	number word and is overridden by a leading digit in the raw text.
func (a *Analyzer) extractRoles(raw string, g *Grammar) Roles {
	roles := Roles{
		Action:   DefaultAction,
		Quantity: 1,
	}

	if len(g.Verbs) > 0 {
		roles.Action = a.lex.CanonicalVerb(g.Verbs[0])
	}
	roles.Modifiers = append([]string(nil), g.Adjectives...)

	for i := range g.Nouns {
		noun := g.Nouns[i]
		if noun.Resolved == nil {
			// Unresolved nouns (page keywords) hold no role.
			continue
		}
		switch {
		case roles.Target == nil:
			target := noun
			roles.Target = &target
		case noun.IsContainer:
			if roles.Container == nil {
				container := noun
				roles.Container = &container
			}
			// A second container-capable noun is dropped, not demoted
			// to an addition.
		default:
			roles.Additions = append(roles.Additions, noun)
		}
	}

	if len(g.Numbers) > 0 {
		if n, ok := a.lex.Number(g.Numbers[0]); ok {
			roles.Quantity = n
		} else if n, err := strconv.Atoi(g.Numbers[0]); err == nil {
			roles.Quantity = n
		}
	}
	if m := leadingQuantityPattern.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			roles.Quantity = n
		}
	}

	return roles
}

// =============================================================================
// Domain Mapping
// =============================================================================

// mapDomain projects roles onto the UI-kit domain.
//
// Description:
//
//	The resolved target and additions become Components with their
//	resolution confidence carried over; the container is represented
//	through relationships, not Components. Modifiers land in Props by
//	bucket: variant and size under their canonical keys, state modifiers
//	as boolean props keyed by the modifier text, style as the catch-all.
//	Layout is populated when the container (or, failing that, the target)
//	resolves to a component whose name is also a layout template.
func (a *Analyzer) mapDomain(roles *Roles) DomainMeaning {
	dm := DomainMeaning{Props: make(map[string]any)}

	if roles.Target != nil && roles.Target.Resolved != nil {
		dm.Components = append(dm.Components, DomainComponent{
			Name:       roles.Target.Resolved.Name,
			Confidence: roles.Target.Confidence,
		})
	}
	for _, addition := range roles.Additions {
		if addition.Resolved == nil {
			continue
		}
		dm.Components = append(dm.Components, DomainComponent{
			Name:       addition.Resolved.Name,
			Confidence: addition.Confidence,
		})
	}

	for _, word := range roles.Modifiers {
		bucket, ok := a.lex.ModifierBucketFor(word)
		if !ok {
			continue
		}
		canonical := a.lex.CanonicalModifier(word)
		switch bucket {
		case config.BucketVariant:
			dm.Props["variant"] = canonical
		case config.BucketSize:
			dm.Props["size"] = canonical
		case config.BucketState:
			dm.Props[strings.ToLower(word)] = true
		default:
			dm.Props["style"] = canonical
		}
	}

	for _, candidate := range []*ResolvedComponent{roles.Container, roles.Target} {
		if candidate == nil || candidate.Resolved == nil {
			continue
		}
		if _, ok := a.kg.LayoutTemplate(candidate.Resolved.Name); ok {
			dm.Layout = strings.ToLower(candidate.Resolved.Name)
			break
		}
	}

	return dm
}
