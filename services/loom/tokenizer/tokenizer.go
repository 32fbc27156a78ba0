// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tokenizer splits raw request text into words, multi-word phrases,
// and a normalized token stream. Phrase extraction runs longest-phrase-first
// with placeholder substitution so a shorter phrase can never re-match a
// substring of an already claimed one.
package tokenizer

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/AleutianAI/Loom/services/loom/config"
)

// placeholderMark delimits phrase placeholders during extraction. NUL can
// never survive punctuation stripping, so user text cannot collide with it.
const placeholderMark = "\x00"

// Result is the outcome of tokenizing one input string.
//
// Words preserves recognized multi-word phrases ahead of the remaining
// single tokens; order is not guaranteed to match original text position.
// Normalized additionally strips stop words and applies suffix stemming and
// is what coverage accounting consumes.
type Result struct {
	Original   string
	Words      []string
	Phrases    []string
	Normalized []string
}

// Tokenizer tokenizes request text against a runtime-extensible phrase list.
//
// Description:
//
//	The phrase list starts empty; the engine seeds it with multi-word
//	vocabulary terms (component aliases like "search bar") and callers may
//	extend it at any time via AddPhrase. Stop words and stemming rules come
//	from the lexicon and are fixed for the tokenizer's lifetime.
//
// Thread Safety:
//
//	Safe for concurrent use. AddPhrase holds a write lock; Tokenize holds a
//	read lock only while copying the phrase list.
type Tokenizer struct {
	mu      sync.RWMutex
	lex     *config.Lexicon
	phrases []string            // sorted longest first, ties lexicographic
	known   map[string]struct{} // case-insensitive membership for de-dup
	logger  *slog.Logger
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithLogger sets the logger used for phrase registration.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tokenizer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a Tokenizer backed by the given lexicon.
//
// Inputs:
//
//	lex - Lexicon providing stop words and stemming rules. Must not be nil.
//	opts - Optional configuration.
//
// Outputs:
//
//	*Tokenizer - Ready tokenizer with an empty phrase list.
//	error - Non-nil if lex is nil.
func New(lex *config.Lexicon, opts ...Option) (*Tokenizer, error) {
	if lex == nil {
		return nil, fmt.Errorf("tokenizer: lexicon is nil")
	}
	t := &Tokenizer{
		lex:    lex,
		known:  make(map[string]struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// =============================================================================
// Tokenization
// =============================================================================

// Tokenize splits input into words, phrases, and normalized tokens.
//
// Description:
//
//	Lower-cases and trims, strips punctuation (hyphens kept), then scans
//	the phrase list longest-first, replacing each match with a placeholder
//	so shorter phrases cannot claim a substring of a longer one. The final
//	word list is the extracted phrases followed by the remaining single
//	tokens. Normalized removes stop words and applies the lexicon's
//	suffix-stripping rules, which are gated by minimum word length so short
//	names like "tab" or "nav" are never mangled.
//
// Inputs:
//
//	input - Raw request text. Empty input yields empty token slices.
//
// Outputs:
//
//	*Result - Never nil.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (t *Tokenizer) Tokenize(input string) *Result {
	result := &Result{Original: input}

	text := stripPunctuation(strings.ToLower(strings.TrimSpace(input)))
	if text == "" {
		return result
	}

	t.mu.RLock()
	phrases := append([]string(nil), t.phrases...)
	t.mu.RUnlock()

	// Longest phrase first: each hit is replaced by a placeholder so a
	// shorter phrase cannot re-match inside the claimed span.
	padded := " " + text + " "
	for _, phrase := range phrases {
		needle := " " + phrase + " "
		for {
			i := strings.Index(padded, needle)
			if i < 0 {
				break
			}
			result.Phrases = append(result.Phrases, phrase)
			padded = padded[:i] + " " + placeholderMark + " " + padded[i+len(needle):]
		}
	}

	// Phrases are hoisted ahead of the remaining single tokens.
	result.Words = append(result.Words, result.Phrases...)
	for _, token := range strings.Fields(padded) {
		if token == placeholderMark {
			continue
		}
		result.Words = append(result.Words, token)
	}

	for _, word := range result.Words {
		if t.lex.IsStopWord(word) {
			continue
		}
		result.Normalized = append(result.Normalized, t.lex.Stem(word))
	}

	return result
}

// Singularize reduces a plural word to its singular form using a short
// suffix table: "buttons" → "button", "entries" → "entry", "boxes" → "box".
// Words ending in "ss" and words shorter than four characters pass through
// unchanged. Shared with grammar classification for noun resolution.
func Singularize(word string) string {
	w := strings.ToLower(strings.TrimSpace(word))
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 3 && (strings.HasSuffix(w, "ses") ||
		strings.HasSuffix(w, "xes") ||
		strings.HasSuffix(w, "zes") ||
		strings.HasSuffix(w, "ches") ||
		strings.HasSuffix(w, "shes")):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}

// stripPunctuation removes everything except letters, digits, hyphens, and
// whitespace. Apostrophes are deleted ("user's" → "users"); all other
// punctuation becomes a space so "button,card" still splits into two tokens.
func stripPunctuation(s string) string {
	s = strings.ReplaceAll(s, "'", "")
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return r
		case r == '-':
			return r
		default:
			return ' '
		}
	}, s)
}

// =============================================================================
// Phrase Registration
// =============================================================================

// AddPhrase registers a multi-word phrase for extraction. Idempotent and
// case-insensitive: re-adding a known phrase is a no-op. Internal whitespace
// is collapsed to single spaces before registration.
func (t *Tokenizer) AddPhrase(phrase string) {
	normalized := strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
	if normalized == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.known[normalized]; ok {
		return
	}
	t.known[normalized] = struct{}{}
	t.phrases = append(t.phrases, normalized)
	sort.Slice(t.phrases, func(i, j int) bool {
		if len(t.phrases[i]) != len(t.phrases[j]) {
			return len(t.phrases[i]) > len(t.phrases[j])
		}
		return t.phrases[i] < t.phrases[j]
	})

	t.logger.Debug("phrase registered", slog.String("phrase", normalized))
}

// AddPhrases registers multiple phrases. Equivalent to calling AddPhrase for
// each entry.
func (t *Tokenizer) AddPhrases(phrases []string) {
	for _, p := range phrases {
		t.AddPhrase(p)
	}
}

// Phrases returns a copy of the registered phrase list, longest first.
func (t *Tokenizer) Phrases() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.phrases...)
}
