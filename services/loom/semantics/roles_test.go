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
	"reflect"
	"testing"
)

// =============================================================================
// Action
// =============================================================================

func TestRoles_ActionDefaultsToCreate(t *testing.T) {
	an, tok := newTestAnalyzer(t)
	a := analyze(t, an, tok, "a button")

	if a.Roles.Action != "create" {
		t.Errorf("action = %q, want create", a.Roles.Action)
	}
}

func TestRoles_ActionCollapsesSynonyms(t *testing.T) {
	an, tok := newTestAnalyzer(t)

	cases := []struct{ text, want string }{
		{"build a button", "create"},
		{"resize the card", "modify"},
		{"merge the card and the form", "combine"},
		{"find the button", "query"},
		{"delete the badge", "remove"},
	}
	for _, tc := range cases {
		a := analyze(t, an, tok, tc.text)
		if a.Roles.Action != tc.want {
			t.Errorf("%q: action = %q, want %q", tc.text, a.Roles.Action, tc.want)
		}
	}
}

// =============================================================================
// Target, Container, Additions
// =============================================================================

func TestRoles_TargetAndContainer(t *testing.T) {
	an, tok := newTestAnalyzer(t)
	a := analyze(t, an, tok, "button in a card")

	if a.Roles.Target == nil || a.Roles.Target.Resolved.Name != "button" {
		t.Fatalf("target = %+v, want button", a.Roles.Target)
	}
	if a.Roles.Container == nil || a.Roles.Container.Resolved.Name != "card" {
		t.Fatalf("container = %+v, want card", a.Roles.Container)
	}
	if len(a.Roles.Additions) != 0 {
		t.Errorf("additions = %+v, want none", a.Roles.Additions)
	}
}

func TestRoles_SecondContainerIsDropped(t *testing.T) {
	an, tok := newTestAnalyzer(t)
	a := analyze(t, an, tok, "button in a card in a form")

	if a.Roles.Container == nil || a.Roles.Container.Resolved.Name != "card" {
		t.Fatalf("container = %+v, want card (first container wins)", a.Roles.Container)
	}
	// "form" is container-capable but the slot is taken; it is dropped
	// outright rather than demoted to an addition.
	if len(a.Roles.Additions) != 0 {
		t.Errorf("additions = %+v, want none", a.Roles.Additions)
	}
}

func TestRoles_NonContainerNounsBecomeAdditions(t *testing.T) {
	an, tok := newTestAnalyzer(t)
	a := analyze(t, an, tok, "card with a button and a badge")

	if a.Roles.Target == nil || a.Roles.Target.Resolved.Name != "card" {
		t.Fatalf("target = %+v, want card", a.Roles.Target)
	}
	var names []string
	for _, add := range a.Roles.Additions {
		names = append(names, add.Resolved.Name)
	}
	if !reflect.DeepEqual(names, []string{"button", "badge"}) {
		t.Errorf("additions = %v, want [button badge]", names)
	}
}

// =============================================================================
// Quantity
// =============================================================================

func TestRoles_Quantity(t *testing.T) {
	an, tok := newTestAnalyzer(t)

	cases := []struct {
		text string
		want int
	}{
		{"a button", 1},
		{"two buttons", 2},
		{"twelve inputs", 12},
		{"3 buttons", 3},
		{"card with two buttons", 2},
	}
	for _, tc := range cases {
		a := analyze(t, an, tok, tc.text)
		if a.Roles.Quantity != tc.want {
			t.Errorf("%q: quantity = %d, want %d", tc.text, a.Roles.Quantity, tc.want)
		}
	}
}

func TestRoles_LeadingDigitOverridesNumberWord(t *testing.T) {
	an, tok := newTestAnalyzer(t)

	// The leading digit wins over a number word appearing later.
	a := analyze(t, an, tok, "4 cards with two buttons")
	if a.Roles.Quantity != 4 {
		t.Errorf("quantity = %d, want 4", a.Roles.Quantity)
	}
}

// =============================================================================
// Domain Mapping
// =============================================================================

func TestDomain_ContainerExcludedFromComponents(t *testing.T) {
	an, tok := newTestAnalyzer(t)
	a := analyze(t, an, tok, "button in a card")

	if len(a.Domain.Components) != 1 || a.Domain.Components[0].Name != "button" {
		t.Errorf("components = %+v, want [button] (container excluded)", a.Domain.Components)
	}
}

func TestDomain_PropsBucketing(t *testing.T) {
	an, tok := newTestAnalyzer(t)
	a := analyze(t, an, tok, "large primary disabled rounded button")

	want := map[string]any{
		"size":     "lg",
		"variant":  "primary",
		"disabled": true,
		"style":    "rounded",
	}
	if !reflect.DeepEqual(a.Domain.Props, want) {
		t.Errorf("props = %+v, want %+v", a.Domain.Props, want)
	}
}

func TestDomain_LayoutFromContainer(t *testing.T) {
	an, tok := newTestAnalyzer(t)
	a := analyze(t, an, tok, "cards in a grid")

	if a.Roles.Container == nil || a.Roles.Container.Resolved.Name != "grid" {
		t.Fatalf("container = %+v, want grid", a.Roles.Container)
	}
	if a.Domain.Layout != "grid" {
		t.Errorf("layout = %q, want grid", a.Domain.Layout)
	}
}

func TestDomain_LayoutFromTarget(t *testing.T) {
	an, tok := newTestAnalyzer(t)
	a := analyze(t, an, tok, "create a grid")

	if a.Domain.Layout != "grid" {
		t.Errorf("layout = %q, want grid", a.Domain.Layout)
	}
}

func TestDomain_NoLayoutForPlainComponents(t *testing.T) {
	an, tok := newTestAnalyzer(t)
	a := analyze(t, an, tok, "create a button")

	if a.Domain.Layout != "" {
		t.Errorf("layout = %q, want empty", a.Domain.Layout)
	}
}
