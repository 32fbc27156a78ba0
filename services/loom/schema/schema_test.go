// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"path/filepath"
	"testing"
)

const fixturePath = "../../../test/fixtures/uikit-schema.yaml"

// =============================================================================
// Parsing
// =============================================================================

func TestLoad_Fixture(t *testing.T) {
	s, err := Load(filepath.FromSlash(fixturePath))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.Name != "aleutian-ui" {
		t.Errorf("Name = %q, want aleutian-ui", s.Name)
	}
	if len(s.Components) < 15 {
		t.Errorf("expected a full component set, got %d", len(s.Components))
	}
	if len(s.Layouts) == 0 || len(s.Pages) == 0 {
		t.Error("fixture must declare layouts and pages")
	}

	button := s.Component("button")
	if button == nil {
		t.Fatal("button component missing")
	}
	if len(button.Sizes) != 3 {
		t.Errorf("button sizes = %v, want [sm md lg]", button.Sizes)
	}
	if button.IsContainer {
		t.Error("button must not be a container")
	}

	card := s.Component("card")
	if card == nil || !card.IsContainer {
		t.Fatal("card must be a container")
	}
	if len(card.Accepts) != 1 || card.Accepts[0] != WildcardAccepts {
		t.Errorf("card accepts = %v, want wildcard", card.Accepts)
	}
}

func TestParse_JSONDocument(t *testing.T) {
	doc := []byte(`{"name":"mini-kit","components":[{"name":"button","sizes":["sm","lg"]}]}`)
	s, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse failed on JSON: %v", err)
	}
	if s.Name != "mini-kit" {
		t.Errorf("Name = %q", s.Name)
	}
	if got := s.Component("Button"); got == nil {
		t.Error("case-insensitive Component lookup failed")
	}
}

func TestParse_RejectsEmpty(t *testing.T) {
	if _, err := Parse(nil); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestParse_RejectsMissingName(t *testing.T) {
	doc := []byte(`
components:
  - name: button
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for schema without a name")
	}
}

func TestParse_RejectsNoComponents(t *testing.T) {
	doc := []byte(`
name: empty-kit
components: []
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for schema without components")
	}
}

// =============================================================================
// Cross-field Validation
// =============================================================================

func TestParse_RejectsDuplicateComponentNames(t *testing.T) {
	doc := []byte(`
name: dup-kit
components:
  - name: button
  - name: Button
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for case-insensitive duplicate names")
	}
}

func TestParse_RejectsAcceptsOnNonContainer(t *testing.T) {
	doc := []byte(`
name: bad-kit
components:
  - name: button
    accepts: [badge]
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for accepts on non-container")
	}
}

func TestParse_ToleratesUnknownAcceptsEntry(t *testing.T) {
	doc := []byte(`
name: partial-kit
components:
  - name: card
    is_container: true
    accepts: [ghostcomponent]
`)
	if _, err := Parse(doc); err != nil {
		t.Fatalf("unknown accepts entries must be tolerated: %v", err)
	}
}

func TestParse_RejectsDuplicateLayoutNames(t *testing.T) {
	doc := []byte(`
name: dup-layout
components:
  - name: button
layouts:
  - name: grid
  - name: grid
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for duplicate layout names")
	}
}

func TestParse_RejectsBadPropType(t *testing.T) {
	doc := []byte(`
name: bad-prop
components:
  - name: button
    props:
      - name: size
        type: integer
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for unsupported prop type")
	}
}
