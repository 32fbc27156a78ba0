// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema defines the UI kit schema: the closed vocabulary of
// components, variants, sizes, props, containment rules, and layout/page
// templates the Loom engine can reason about. The schema is consumed once
// at engine initialization; changing it requires a full knowledge-graph
// rebuild (see Watcher).
package schema

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaxSchemaFileSize bounds any schema document this package will parse.
const MaxSchemaFileSize = 4 * 1024 * 1024

// WildcardAccepts marks a container that accepts every known component.
const WildcardAccepts = "*"

// =============================================================================
// Schema Types
// =============================================================================

// UIKitSchema describes one UI kit vocabulary.
//
// Description:
//
//	The inbound configuration object: component definitions with aliases,
//	variants, sizes, props and containment rules, plus named layout and
//	page templates. Parsed from YAML or JSON, validated, then handed to
//	the knowledge graph which owns all derived lookup structure.
//
// Thread Safety: Treated as immutable after Parse returns it.
type UIKitSchema struct {
	// Name identifies the UI kit (e.g. "acme-design-system").
	Name string `yaml:"name" json:"name" validate:"required"`

	// Version is the kit version string, free-form.
	Version string `yaml:"version" json:"version"`

	// Components is the closed component vocabulary.
	Components []ComponentDef `yaml:"components" json:"components" validate:"required,min=1,dive"`

	// Layouts holds the named layout templates.
	Layouts []LayoutTemplate `yaml:"layouts" json:"layouts" validate:"dive"`

	// Pages holds the named page templates.
	Pages []PageTemplate `yaml:"pages" json:"pages" validate:"dive"`
}

// ComponentDef declares one component in the vocabulary.
type ComponentDef struct {
	// Name is the canonical component key. Stored lower-cased by the graph.
	Name string `yaml:"name" json:"name" validate:"required"`

	// DisplayName is the human/renderer-facing name (e.g. "Button").
	DisplayName string `yaml:"display_name" json:"displayName"`

	// Category groups components ("form", "layout", "feedback", ...).
	Category string `yaml:"category" json:"category"`

	// Aliases are schema-declared synonyms. They override built-ins.
	Aliases []string `yaml:"aliases" json:"aliases"`

	// Variants lists the visual variants this component supports.
	Variants []string `yaml:"variants" json:"variants"`

	// Sizes lists the size tokens this component supports.
	Sizes []string `yaml:"sizes" json:"sizes"`

	// Props declares the component's configurable properties.
	Props []PropDef `yaml:"props" json:"props" validate:"dive"`

	// IsContainer marks components that can hold children.
	IsContainer bool `yaml:"is_container" json:"isContainer"`

	// Accepts lists child component names this container takes, or the
	// wildcard "*" for any component. Ignored unless IsContainer.
	Accepts []string `yaml:"accepts" json:"accepts"`

	// DefaultProps are prop values applied when the user specifies none.
	DefaultProps map[string]any `yaml:"default_props" json:"defaultProps"`

	// RelatedTo lists components that commonly appear with this one.
	RelatedTo []string `yaml:"related_to" json:"relatedTo"`
}

// PropDef declares one configurable component property.
type PropDef struct {
	// Name is the prop key.
	Name string `yaml:"name" json:"name" validate:"required"`

	// Type is the prop's value type: string, boolean, number or enum.
	Type string `yaml:"type" json:"type" validate:"omitempty,oneof=string boolean number enum"`

	// Required marks props the renderer cannot default.
	Required bool `yaml:"required" json:"required"`

	// Default is the value used when the prop is omitted.
	Default any `yaml:"default" json:"default"`

	// Options enumerates legal values for enum props.
	Options []string `yaml:"options" json:"options"`

	// Description is free-form documentation.
	Description string `yaml:"description" json:"description"`
}

// LayoutTemplate names a reusable layout arrangement.
type LayoutTemplate struct {
	// Name is the template key ("two-column", "grid").
	Name string `yaml:"name" json:"name" validate:"required"`

	// Type is the layout family: grid, flex, columns or rows.
	Type string `yaml:"type" json:"type" validate:"omitempty,oneof=grid flex columns rows"`

	// Columns is the column count for grid/columns layouts, 0 when unset.
	Columns int `yaml:"columns" json:"columns" validate:"min=0"`

	// Description is free-form documentation.
	Description string `yaml:"description" json:"description"`
}

// PageTemplate names a reusable page skeleton.
type PageTemplate struct {
	// Name is the template key ("login", "dashboard").
	Name string `yaml:"name" json:"name" validate:"required"`

	// Sections lists the regions the page is built from, in order.
	Sections []string `yaml:"sections" json:"sections"`

	// Description is free-form documentation.
	Description string `yaml:"description" json:"description"`
}

// =============================================================================
// Loading and Validation
// =============================================================================

// schemaValidator is the shared validator instance. validator.Validate is
// safe for concurrent use and caches struct metadata.
var schemaValidator = validator.New(validator.WithRequiredStructEnabled())

// Load reads and parses a schema file from disk.
//
// Inputs:
//
//	path - File path. YAML and JSON both parse (YAML is a JSON superset).
//
// Outputs:
//
//	*UIKitSchema - The parsed, validated schema.
//	error - Non-nil on read, parse or validation failure.
func Load(path string) (*UIKitSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema.Load: reading %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema.Load: %s: %w", path, err)
	}
	return s, nil
}

// Parse parses and validates a schema document.
//
// Description:
//
//	Unmarshals YAML (or JSON) bytes, runs struct validation, then checks
//	cross-field rules: component, layout and page names must be unique
//	case-insensitively. Aliases pointing at the component's own name are
//	tolerated; accepts-entries naming unknown components are tolerated
//	(logged) because schemas commonly ship ahead of their full kit.
//
// Outputs:
//
//	*UIKitSchema - The validated schema. Never nil on success.
//	error - Non-nil if parsing or validation fails.
func Parse(data []byte) (*UIKitSchema, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("parse: empty schema document")
	}
	if len(data) > MaxSchemaFileSize {
		return nil, fmt.Errorf("parse: schema document exceeds maximum size (%d > %d)", len(data), MaxSchemaFileSize)
	}

	var s UIKitSchema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse: unmarshaling schema: %w", err)
	}

	if err := schemaValidator.Struct(&s); err != nil {
		return nil, fmt.Errorf("parse: schema validation: %w", err)
	}
	if err := validateCrossFields(&s); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	slog.Info("ui kit schema parsed",
		slog.String("kit", s.Name),
		slog.String("version", s.Version),
		slog.Int("components", len(s.Components)),
		slog.Int("layouts", len(s.Layouts)),
		slog.Int("pages", len(s.Pages)),
	)

	return &s, nil
}

// validateCrossFields enforces uniqueness and referential sanity.
func validateCrossFields(s *UIKitSchema) error {
	known := make(map[string]struct{}, len(s.Components))
	for i, c := range s.Components {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" {
			return fmt.Errorf("components[%d]: name must not be blank", i)
		}
		if _, dup := known[key]; dup {
			return fmt.Errorf("components[%d]: duplicate component name %q (names are case-insensitive)", i, key)
		}
		known[key] = struct{}{}
	}

	for i, c := range s.Components {
		if !c.IsContainer && len(c.Accepts) > 0 {
			return fmt.Errorf("components[%d] (%s): accepts declared on a non-container", i, c.Name)
		}
		for _, child := range c.Accepts {
			childKey := strings.ToLower(strings.TrimSpace(child))
			if childKey == WildcardAccepts {
				continue
			}
			if _, ok := known[childKey]; !ok {
				slog.Warn("schema accepts-entry names unknown component",
					slog.String("container", c.Name),
					slog.String("child", childKey),
				)
			}
		}
	}

	layoutNames := make(map[string]struct{}, len(s.Layouts))
	for i, l := range s.Layouts {
		key := strings.ToLower(strings.TrimSpace(l.Name))
		if _, dup := layoutNames[key]; dup {
			return fmt.Errorf("layouts[%d]: duplicate layout name %q", i, key)
		}
		layoutNames[key] = struct{}{}
	}

	pageNames := make(map[string]struct{}, len(s.Pages))
	for i, p := range s.Pages {
		key := strings.ToLower(strings.TrimSpace(p.Name))
		if _, dup := pageNames[key]; dup {
			return fmt.Errorf("pages[%d]: duplicate page name %q", i, key)
		}
		pageNames[key] = struct{}{}
	}

	return nil
}

// Component returns the definition with the given name, case-insensitively,
// or nil when absent. Linear scan; the knowledge graph owns the indexed
// lookup path.
func (s *UIKitSchema) Component(name string) *ComponentDef {
	key := strings.ToLower(strings.TrimSpace(name))
	for i := range s.Components {
		if strings.ToLower(s.Components[i].Name) == key {
			return &s.Components[i]
		}
	}
	return nil
}
