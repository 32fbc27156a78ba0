// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tokenizer

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/AleutianAI/Loom/services/loom/config"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	config.ResetLexicon()
	lex, err := config.GetLexicon(context.Background())
	if err != nil {
		t.Fatalf("GetLexicon failed: %v", err)
	}
	tok, err := New(lex)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tok
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_NilLexicon(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil lexicon")
	}
}

// =============================================================================
// Tokenize Tests
// =============================================================================

func TestTokenize_LowercaseAndTrim(t *testing.T) {
	tok := newTestTokenizer(t)

	res := tok.Tokenize("  Create a LARGE Button  ")
	want := []string{"create", "a", "large", "button"}
	if !reflect.DeepEqual(res.Words, want) {
		t.Errorf("Words = %v, want %v", res.Words, want)
	}
	if res.Original != "  Create a LARGE Button  " {
		t.Errorf("Original must be preserved verbatim, got %q", res.Original)
	}
}

func TestTokenize_PunctuationStripped(t *testing.T) {
	tok := newTestTokenizer(t)

	res := tok.Tokenize("button, card! (and a modal?)")
	want := []string{"button", "card", "and", "a", "modal"}
	if !reflect.DeepEqual(res.Words, want) {
		t.Errorf("Words = %v, want %v", res.Words, want)
	}
}

func TestTokenize_HyphensKept(t *testing.T) {
	tok := newTestTokenizer(t)

	res := tok.Tokenize("two-column layout")
	want := []string{"two-column", "layout"}
	if !reflect.DeepEqual(res.Words, want) {
		t.Errorf("Words = %v, want %v", res.Words, want)
	}
}

func TestTokenize_EmptyInput(t *testing.T) {
	tok := newTestTokenizer(t)

	for _, input := range []string{"", "   ", "?!,"} {
		res := tok.Tokenize(input)
		if len(res.Words) != 0 || len(res.Phrases) != 0 || len(res.Normalized) != 0 {
			t.Errorf("Tokenize(%q) = %+v, want empty result", input, res)
		}
	}
}

func TestTokenize_LongestPhraseFirst(t *testing.T) {
	tok := newTestTokenizer(t)
	tok.AddPhrases([]string{"text field", "field"})

	res := tok.Tokenize("a text field")
	if !reflect.DeepEqual(res.Phrases, []string{"text field"}) {
		t.Fatalf("Phrases = %v, want [text field]", res.Phrases)
	}
	for _, w := range res.Words {
		if w == "text" || w == "field" {
			t.Errorf("claimed phrase leaked component token %q: %v", w, res.Words)
		}
	}
}

func TestTokenize_ClaimedSpanNotRematched(t *testing.T) {
	tok := newTestTokenizer(t)
	tok.AddPhrases([]string{"two column layout", "column layout", "column"})

	res := tok.Tokenize("a two column layout")
	if !reflect.DeepEqual(res.Phrases, []string{"two column layout"}) {
		t.Errorf("Phrases = %v, want only the longest match", res.Phrases)
	}
}

func TestTokenize_PhrasesHoisted(t *testing.T) {
	tok := newTestTokenizer(t)
	tok.AddPhrase("search bar")

	res := tok.Tokenize("button in a search bar")
	want := []string{"search bar", "button", "in", "a"}
	if !reflect.DeepEqual(res.Words, want) {
		t.Errorf("Words = %v, want %v (phrase hoisted first)", res.Words, want)
	}
}

func TestTokenize_PhraseRequiresWordBoundary(t *testing.T) {
	tok := newTestTokenizer(t)
	tok.AddPhrase("search bar")

	// "research bar" must not match the "search bar" phrase mid-word.
	res := tok.Tokenize("research bar trends")
	if len(res.Phrases) != 0 {
		t.Errorf("Phrases = %v, want none for mid-word overlap", res.Phrases)
	}
}

func TestTokenize_RepeatedPhraseCountedPerOccurrence(t *testing.T) {
	tok := newTestTokenizer(t)
	tok.AddPhrase("search bar")

	res := tok.Tokenize("search bar next to a search bar")
	if len(res.Phrases) != 2 {
		t.Errorf("Phrases = %v, want two occurrences", res.Phrases)
	}
}

// =============================================================================
// Normalization Tests
// =============================================================================

func TestNormalized_StripsStopWords(t *testing.T) {
	tok := newTestTokenizer(t)

	res := tok.Tokenize("create a large button and the card")
	for _, token := range res.Normalized {
		if token == "a" || token == "the" || token == "and" {
			t.Errorf("stop word %q leaked into Normalized: %v", token, res.Normalized)
		}
	}
}

func TestNormalized_AppliesStemming(t *testing.T) {
	tok := newTestTokenizer(t)

	res := tok.Tokenize("three buttons")
	found := false
	for _, token := range res.Normalized {
		if token == "button" {
			found = true
		}
		if token == "buttons" {
			t.Errorf("unstemmed plural leaked into Normalized: %v", res.Normalized)
		}
	}
	if !found {
		t.Errorf("Normalized = %v, want stemmed button", res.Normalized)
	}
}

func TestNormalized_ShortWordsNeverStemmed(t *testing.T) {
	tok := newTestTokenizer(t)

	res := tok.Tokenize("nav tab")
	want := []string{"nav", "tab"}
	if !reflect.DeepEqual(res.Normalized, want) {
		t.Errorf("Normalized = %v, want %v", res.Normalized, want)
	}
}

func TestNormalized_IdempotentUnderRetokenization(t *testing.T) {
	tok := newTestTokenizer(t)
	tok.AddPhrase("search bar")

	inputs := []string{
		"create three large buttons",
		"a search bar inside the navbar",
		"cards containing images and badges",
		"two-column layout with settings",
	}
	for _, input := range inputs {
		first := tok.Tokenize(input).Normalized
		second := tok.Tokenize(strings.Join(first, " ")).Normalized
		if !reflect.DeepEqual(first, second) {
			t.Errorf("normalization not idempotent for %q: %v then %v", input, first, second)
		}
	}
}

// =============================================================================
// Phrase Registration Tests
// =============================================================================

func TestAddPhrase_IdempotentCaseInsensitive(t *testing.T) {
	tok := newTestTokenizer(t)

	tok.AddPhrase("Search Bar")
	tok.AddPhrase("search bar")
	tok.AddPhrase("  search   bar ")
	if got := tok.Phrases(); len(got) != 1 || got[0] != "search bar" {
		t.Errorf("Phrases() = %v, want single normalized entry", got)
	}
}

func TestAddPhrase_IgnoresEmpty(t *testing.T) {
	tok := newTestTokenizer(t)

	tok.AddPhrase("   ")
	tok.AddPhrase("")
	if got := tok.Phrases(); len(got) != 0 {
		t.Errorf("Phrases() = %v, want empty", got)
	}
}

func TestPhrases_SortedLongestFirst(t *testing.T) {
	tok := newTestTokenizer(t)

	tok.AddPhrases([]string{"field", "text field", "two column layout"})
	want := []string{"two column layout", "text field", "field"}
	if got := tok.Phrases(); !reflect.DeepEqual(got, want) {
		t.Errorf("Phrases() = %v, want %v", got, want)
	}
}

// =============================================================================
// Singularize Tests
// =============================================================================

func TestSingularize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"buttons", "button"},
		{"entries", "entry"},
		{"boxes", "box"},
		{"switches", "switch"},
		{"cards", "card"},
		{"tabs", "tab"},
		{"pages", "page"},
		{"class", "class"},
		{"nav", "nav"},
		{"s", "s"},
		{"Button", "button"},
	}
	for _, tc := range cases {
		if got := Singularize(tc.in); got != tc.want {
			t.Errorf("Singularize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
