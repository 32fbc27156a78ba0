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
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/Loom/services/loom/assemble"
	"github.com/AleutianAI/Loom/services/loom/entities"
	"github.com/AleutianAI/Loom/services/loom/intent"
	"github.com/AleutianAI/Loom/services/loom/schema"
)

// LocalHeuristicName is the built-in plugin's registry name.
const LocalHeuristicName = "local_heuristic"

// heuristicConfidence scores entities the heuristic fills in, well below
// anything derived from the request text itself.
const heuristicConfidence = 0.5

// localHeuristicSource marks entities this plugin contributed.
const localHeuristicSource = "plugin." + LocalHeuristicName

// SchemaProvider returns the current UI-kit schema. A function rather
// than a pointer, so schema reloads reach the plugin without
// re-registration.
type SchemaProvider func() *schema.UIKitSchema

// LocalHeuristic is the built-in offline collaborator.
//
// Description:
//
//	Fills gaps a weak interpretation leaves behind: the target
//	component's schema default props (for anything the request did not
//	specify) and a layout entity for layout intents that resolved none.
//	Enhance never returns an error; with no schema or no target it
//	returns the context unchanged.
type LocalHeuristic struct {
	current SchemaProvider
}

// NewLocalHeuristic builds the plugin around a schema provider. A nil
// provider is tolerated; Enhance then passes contexts through untouched.
func NewLocalHeuristic(provider SchemaProvider) *LocalHeuristic {
	return &LocalHeuristic{current: provider}
}

// Name implements Plugin.
func (lh *LocalHeuristic) Name() string { return LocalHeuristicName }

// Initialize implements Plugin. The heuristic holds no resources.
func (lh *LocalHeuristic) Initialize(_ context.Context) error { return nil }

// Enhance implements Plugin.
func (lh *LocalHeuristic) Enhance(_ context.Context, pc *assemble.ProcessingContext) (*assemble.ProcessingContext, error) {
	if pc == nil || lh.current == nil {
		return pc, nil
	}
	s := lh.current()
	if s == nil {
		return pc, nil
	}

	out := pc.Clone()
	if def := lh.targetComponent(s, out.Entities); def != nil {
		out.Entities = append(out.Entities, defaultPropEntities(def, out.Entities)...)
	}
	if fallback, ok := layoutFallback(out); ok {
		out.Entities = append(out.Entities, fallback)
	}
	return out, nil
}

// targetComponent resolves the first component entity against the schema.
func (lh *LocalHeuristic) targetComponent(s *schema.UIKitSchema, ents []entities.Entity) *schema.ComponentDef {
	for _, e := range ents {
		if e.Type == entities.TypeComponent {
			return s.Component(e.Value)
		}
	}
	return nil
}

// defaultPropEntities turns the component's unspecified defaults into
// prop entities. Per-prop defaults seed the set and component-level
// DefaultProps override them; props the request already covered, whether
// as a prop entity or a bucketed modifier, are skipped.
func defaultPropEntities(def *schema.ComponentDef, existing []entities.Entity) []entities.Entity {
	covered := coveredProps(existing)

	defaults := make(map[string]any)
	for _, p := range def.Props {
		if p.Default != nil {
			defaults[strings.ToLower(p.Name)] = p.Default
		}
	}
	for name, value := range def.DefaultProps {
		defaults[strings.ToLower(name)] = value
	}

	names := make([]string, 0, len(defaults))
	for name := range defaults {
		if _, taken := covered[name]; taken {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]entities.Entity, 0, len(names))
	for _, name := range names {
		out = append(out, entities.Entity{
			Type:       entities.TypeProp,
			Value:      fmt.Sprintf("%s=%v", name, defaults[name]),
			Confidence: heuristicConfidence,
			Source:     localHeuristicSource,
		})
	}
	return out
}

// coveredProps collects prop names the request already pinned down. Prop
// entities name the prop directly; modifier entities cover the bucket
// their provenance suffix names (variant, size).
func coveredProps(ents []entities.Entity) map[string]struct{} {
	covered := make(map[string]struct{})
	for _, e := range ents {
		switch e.Type {
		case entities.TypeProp:
			name := e.Value
			if idx := strings.IndexByte(name, '='); idx >= 0 {
				name = name[:idx]
			}
			covered[name] = struct{}{}
		case entities.TypeModifier:
			if idx := strings.LastIndexByte(e.Source, '/'); idx >= 0 {
				covered[e.Source[idx+1:]] = struct{}{}
			}
		}
	}
	return covered
}

// layoutFallback supplies a layout entity for layout intents that
// resolved none, using the refined subtype when one exists.
func layoutFallback(pc *assemble.ProcessingContext) (entities.Entity, bool) {
	if pc.Intent.Type != intent.CreateLayout {
		return entities.Entity{}, false
	}
	for _, e := range pc.Entities {
		if e.Type == entities.TypeLayout {
			return entities.Entity{}, false
		}
	}
	value := pc.Intent.Subtype
	if value == "" {
		value = "auto"
	}
	return entities.Entity{
		Type:       entities.TypeLayout,
		Value:      value,
		Confidence: heuristicConfidence,
		Source:     localHeuristicSource,
	}, true
}
