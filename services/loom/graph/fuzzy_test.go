// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"testing"
)

// =============================================================================
// Levenshtein Tests
// =============================================================================

func TestLevenshteinDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"button", "", 6},
		{"", "card", 4},
		{"button", "button", 0},
		{"button", "buton", 1},
		{"button", "botton", 1},
		{"kitten", "sitting", 3},
		{"card", "chart", 2},
	}
	for _, tc := range cases {
		if got := levenshteinDistance(tc.a, tc.b); got != tc.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

// =============================================================================
// Similarity Scoring Tests
// =============================================================================

func TestTermSimilarity(t *testing.T) {
	cases := []struct {
		name  string
		query string
		term  string
		want  float64
	}{
		{"exact", "button", "button", 1.0},
		{"prefix floored", "but", "button", prefixFloor},
		{"prefix near full length", "butto", "button", 1.0 - 1.0/6.0},
		{"one edit", "buttn", "button", 1.0 - 1.0/6.0},
		{"transposition counts two edits", "buttno", "button", 1.0 - 2.0/6.0},
		{"too many edits", "zzzzz", "button", 0},
		{"short fragment rejected", "bu", "button", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := termSimilarity(tc.query, tc.term)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("termSimilarity(%q, %q) = %v, want %v", tc.query, tc.term, got, tc.want)
			}
		})
	}
}

func TestTermSimilarity_SubstringFloor(t *testing.T) {
	// "eckb" sits inside "checkbox" but shares no prefix; the substring
	// floor applies because the raw length similarity is 0.5.
	got := termSimilarity("eckb", "checkbox")
	if got != substringFloor {
		t.Errorf("termSimilarity(eckb, checkbox) = %v, want %v", got, substringFloor)
	}
}

// =============================================================================
// FuzzyFindComponent Tests
// =============================================================================

func TestFuzzyFindComponent_Typo(t *testing.T) {
	g := buildTestGraph(t, nil)

	node, score := g.FuzzyFindComponent("buton")
	if node == nil || node.Name != "button" {
		t.Fatalf("FuzzyFindComponent(buton) = %v, %v", node, score)
	}
	want := 1.0 - 1.0/6.0
	if diff := score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %v, want %v", score, want)
	}
	// A one-edit typo must clear the strictest downstream cut-off (0.8).
	if score <= 0.8 {
		t.Errorf("score %v should exceed 0.8 for a one-edit typo", score)
	}
}

func TestFuzzyFindComponent_VariantAndSizeTerms(t *testing.T) {
	g := buildTestGraph(t, nil)

	// "primary" is a button variant: exact term hit scores 1.0.
	node, score := g.FuzzyFindComponent("primary")
	if node == nil || node.Name != "button" || score != 1.0 {
		t.Errorf("FuzzyFindComponent(primary) = %v, %v", node, score)
	}

	// Category terms are indexed too, but a component with that exact
	// name wins via field rank: form the component, not the category.
	node, score = g.FuzzyFindComponent("form")
	if node == nil || node.Name != "form" || score != 1.0 {
		t.Errorf("FuzzyFindComponent(form) = %v, %v", node, score)
	}
}

func TestFuzzyFindComponent_PrefixFragment(t *testing.T) {
	g := buildTestGraph(t, nil)

	// A 3+ character prefix resolves at the prefix floor: above the
	// resolution cut-off (0.5), below the grammar fallback cut-off (0.8).
	node, score := g.FuzzyFindComponent("chec")
	if node == nil || node.Name != "checkbox" {
		t.Fatalf("FuzzyFindComponent(chec) = %v, %v", node, score)
	}
	if score <= 0.5 || score > 0.8 {
		t.Errorf("prefix fragment score = %v, want in (0.5, 0.8]", score)
	}
}

func TestFuzzyFindComponent_Miss(t *testing.T) {
	g := buildTestGraph(t, nil)

	for _, term := range []string{"zzzzzz", "", "  ", "q"} {
		if node, score := g.FuzzyFindComponent(term); node != nil || score != 0 {
			t.Errorf("FuzzyFindComponent(%q) = %v, %v, want miss", term, node, score)
		}
	}
}

func TestFuzzyFindComponent_DeterministicTieBreak(t *testing.T) {
	g := buildTestGraph(t, nil)

	// Run the same ambiguous query repeatedly; the sorted index must give
	// a stable answer regardless of map iteration order at build time.
	first, _ := g.FuzzyFindComponent("bad")
	if first == nil {
		t.Fatal("expected a match for bad")
	}
	for i := 0; i < 20; i++ {
		node, _ := g.FuzzyFindComponent("bad")
		if node.Name != first.Name {
			t.Fatalf("tie-break unstable: %q then %q", first.Name, node.Name)
		}
	}
}

func TestFuzzyThresholdOption(t *testing.T) {
	s := testSchema()
	g, err := Build(context.Background(), s, nil, WithFuzzyThreshold(0.95))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// 0.833 for a one-edit typo falls below the raised threshold.
	if node, score := g.FuzzyFindComponent("buton"); node != nil {
		t.Errorf("expected miss at threshold 0.95, got %v (%v)", node.Name, score)
	}
	// Exact variant hits still pass.
	if node, _ := g.FuzzyFindComponent("primary"); node == nil || node.Name != "button" {
		t.Error("exact term hit should pass any threshold <= 1.0")
	}
}
