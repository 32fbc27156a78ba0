// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Lexicon
// =============================================================================

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// =============================================================================
// Lexicon Types
// =============================================================================

// ModifierBucket identifies which prop family a modifier word belongs to.
type ModifierBucket string

const (
	// BucketVariant covers visual variants (primary, ghost, outline...).
	BucketVariant ModifierBucket = "variant"

	// BucketSize covers size words (large, sm, xl...).
	BucketSize ModifierBucket = "size"

	// BucketState covers boolean component states (disabled, loading...).
	BucketState ModifierBucket = "state"

	// BucketStyle is the catch-all for adjectives claimed by no other bucket.
	BucketStyle ModifierBucket = "style"
)

// StemRule strips one suffix from words at or above a minimum length.
type StemRule struct {
	// Suffix is the ending this rule matches.
	Suffix string `yaml:"suffix"`

	// Replacement substitutes the suffix; empty means plain removal.
	Replacement string `yaml:"replacement"`

	// MinLength is the shortest original word the rule may touch.
	MinLength int `yaml:"min_length"`
}

// modifierSets mirrors the four fixed modifier word lists in lexicon.yaml.
type modifierSets struct {
	Variant []string `yaml:"variant"`
	Size    []string `yaml:"size"`
	State   []string `yaml:"state"`
	Style   []string `yaml:"style"`
}

// lexiconFile is the raw YAML shape of lexicon.yaml.
type lexiconFile struct {
	StopWords       []string          `yaml:"stop_words"`
	Prepositions    []string          `yaml:"prepositions"`
	Verbs           []string          `yaml:"verbs"`
	VerbSynonyms    map[string]string `yaml:"verb_synonyms"`
	Modifiers       modifierSets      `yaml:"modifiers"`
	ModifierAliases map[string]string `yaml:"modifier_aliases"`
	NumberWords     map[string]int    `yaml:"number_words"`
	PageKeywords    []string          `yaml:"page_keywords"`
	GenericNouns    []string          `yaml:"generic_nouns"`
	PropNouns       map[string]string `yaml:"prop_nouns"`
	Stemming        []StemRule        `yaml:"stemming"`
}

// Lexicon is the parsed, lookup-optimized language table for the pipeline.
//
// Description:
//
//	Holds every fixed word list grammar classification and role extraction
//	depend on, with O(1) membership lookups built once at load time. The
//	component vocabulary is NOT here; that comes from the UI kit schema.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Lexicon struct {
	stopWords    map[string]struct{}
	prepositions map[string]struct{}
	verbs        map[string]struct{}
	verbSynonyms map[string]string
	buckets      map[string]ModifierBucket
	modAliases   map[string]string
	numberWords  map[string]int
	pageKeywords map[string]struct{}
	genericNouns map[string]struct{}
	propNouns    map[string]string
	stemming     []StemRule
}

// =============================================================================
// Singleton Lexicon
// =============================================================================

var (
	lexiconMu      sync.RWMutex
	cachedLexicon  *Lexicon
	lexiconLoadErr error
)

// GetLexicon returns the cached lexicon, loading the embedded default on
// first call.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*Lexicon - The loaded lexicon. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use.
func GetLexicon(ctx context.Context) (*Lexicon, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetLexicon: ctx must not be nil")
	}

	lexiconMu.RLock()
	if cachedLexicon != nil || lexiconLoadErr != nil {
		lex, err := cachedLexicon, lexiconLoadErr
		lexiconMu.RUnlock()
		return lex, err
	}
	lexiconMu.RUnlock()

	lexiconMu.Lock()
	defer lexiconMu.Unlock()

	if cachedLexicon == nil && lexiconLoadErr == nil {
		cachedLexicon, lexiconLoadErr = LoadLexicon(ctx, defaultLexiconYAML)
	}
	return cachedLexicon, lexiconLoadErr
}

// ResetLexicon clears the cached lexicon so tests can reload it.
func ResetLexicon() {
	lexiconMu.Lock()
	defer lexiconMu.Unlock()
	cachedLexicon = nil
	lexiconLoadErr = nil
}

// LoadLexicon parses and validates a Lexicon from YAML bytes.
//
// Description:
//
//	Parses the YAML, lower-cases every word, builds the lookup sets, and
//	validates the table for internal consistency (non-empty lists, verb
//	synonyms resolving to known verbs, stem rules ordered and bounded).
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes to parse.
//
// Outputs:
//
//	*Lexicon - The validated lexicon.
//	error - Non-nil if parsing or validation fails.
func LoadLexicon(ctx context.Context, data []byte) (*Lexicon, error) {
	_, span := configTracer.Start(ctx, "config.LoadLexicon")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadLexicon: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadLexicon: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("LoadLexicon: parsing YAML: %w", err)
	}

	lex := &Lexicon{
		stopWords:    toSet(file.StopWords),
		prepositions: toSet(file.Prepositions),
		verbs:        toSet(file.Verbs),
		verbSynonyms: toLowerMap(file.VerbSynonyms),
		buckets:      make(map[string]ModifierBucket),
		modAliases:   toLowerMap(file.ModifierAliases),
		numberWords:  make(map[string]int, len(file.NumberWords)),
		pageKeywords: toSet(file.PageKeywords),
		genericNouns: toSet(file.GenericNouns),
		propNouns:    toLowerMap(file.PropNouns),
		stemming:     file.Stemming,
	}

	// Bucket membership is first-list-wins: variant, size, state, style.
	for _, set := range []struct {
		words  []string
		bucket ModifierBucket
	}{
		{file.Modifiers.Variant, BucketVariant},
		{file.Modifiers.Size, BucketSize},
		{file.Modifiers.State, BucketState},
		{file.Modifiers.Style, BucketStyle},
	} {
		for _, w := range set.words {
			key := strings.ToLower(strings.TrimSpace(w))
			if key == "" {
				continue
			}
			if _, exists := lex.buckets[key]; !exists {
				lex.buckets[key] = set.bucket
			}
		}
	}

	for word, n := range file.NumberWords {
		lex.numberWords[strings.ToLower(strings.TrimSpace(word))] = n
	}

	if err := validateLexicon(lex); err != nil {
		return nil, fmt.Errorf("LoadLexicon: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Int("stop_words", len(lex.stopWords)),
		attribute.Int("verbs", len(lex.verbs)),
		attribute.Int("modifier_words", len(lex.buckets)),
		attribute.Int("number_words", len(lex.numberWords)),
		attribute.Int("stem_rules", len(lex.stemming)),
	)

	slog.Info("lexicon loaded",
		slog.Int("stop_words", len(lex.stopWords)),
		slog.Int("verbs", len(lex.verbs)),
		slog.Int("modifier_words", len(lex.buckets)),
		slog.Int("stem_rules", len(lex.stemming)),
	)

	return lex, nil
}

// validateLexicon checks the table for internal consistency.
func validateLexicon(lex *Lexicon) error {
	if len(lex.stopWords) == 0 {
		return fmt.Errorf("stop_words must not be empty")
	}
	if len(lex.verbs) == 0 {
		return fmt.Errorf("verbs must not be empty")
	}
	if len(lex.buckets) == 0 {
		return fmt.Errorf("modifiers must not be empty")
	}
	for alias, verb := range lex.verbSynonyms {
		if _, ok := lex.verbs[verb]; !ok {
			return fmt.Errorf("verb_synonyms[%s]: target %q is not a known verb", alias, verb)
		}
	}
	for word, n := range lex.numberWords {
		if n <= 0 {
			return fmt.Errorf("number_words[%s]: value must be positive, got %d", word, n)
		}
	}
	for i, rule := range lex.stemming {
		if rule.Suffix == "" {
			return fmt.Errorf("stemming[%d]: suffix must not be empty", i)
		}
		if rule.MinLength <= len(rule.Suffix) {
			return fmt.Errorf("stemming[%d] (%s): min_length %d must exceed suffix length", i, rule.Suffix, rule.MinLength)
		}
	}
	return nil
}

// =============================================================================
// Lookup API
// =============================================================================

// IsStopWord reports whether word is filtered from normalized streams.
func (l *Lexicon) IsStopWord(word string) bool {
	_, ok := l.stopWords[strings.ToLower(word)]
	return ok
}

// IsPreposition reports whether word carries a prepositional role.
func (l *Lexicon) IsPreposition(word string) bool {
	_, ok := l.prepositions[strings.ToLower(word)]
	return ok
}

// IsVerb reports whether word is a recognized action verb, either exactly
// or after stemming (so "creating" still reads as "create").
func (l *Lexicon) IsVerb(word string) bool {
	_, ok := l.verbs[l.verbForm(word)]
	return ok
}

// CanonicalVerb collapses a verb through the synonym table onto one of the
// canonical actions. Unknown verbs pass through unchanged.
func (l *Lexicon) CanonicalVerb(word string) string {
	w := l.verbForm(word)
	if canonical, ok := l.verbSynonyms[w]; ok {
		return canonical
	}
	return w
}

// verbForm resolves a surface word to its dictionary verb form, trying the
// raw word, its stem, and the stem with a restored trailing "e"
// ("creating" -> "creat" -> "create").
func (l *Lexicon) verbForm(word string) string {
	w := strings.ToLower(word)
	if _, ok := l.verbs[w]; ok {
		return w
	}
	stemmed := l.Stem(w)
	if _, ok := l.verbs[stemmed]; ok {
		return stemmed
	}
	if _, ok := l.verbs[stemmed+"e"]; ok {
		return stemmed + "e"
	}
	return w
}

// ModifierBucketFor returns the bucket a modifier word belongs to.
// The second return is false when the word is not a known modifier.
func (l *Lexicon) ModifierBucketFor(word string) (ModifierBucket, bool) {
	bucket, ok := l.buckets[strings.ToLower(word)]
	return bucket, ok
}

// CanonicalModifier maps a modifier word onto its canonical token
// (large -> lg). Words without an alias pass through unchanged.
func (l *Lexicon) CanonicalModifier(word string) string {
	w := strings.ToLower(word)
	if canonical, ok := l.modAliases[w]; ok {
		return canonical
	}
	return w
}

// Number returns the integer value for a number word (cardinal or ordinal).
func (l *Lexicon) Number(word string) (int, bool) {
	n, ok := l.numberWords[strings.ToLower(word)]
	return n, ok
}

// IsPageKeyword reports whether word names a page-level concept.
func (l *Lexicon) IsPageKeyword(word string) bool {
	_, ok := l.pageKeywords[strings.ToLower(word)]
	return ok
}

// PageKeywords returns the page keyword list in no particular order.
func (l *Lexicon) PageKeywords() []string {
	out := make([]string, 0, len(l.pageKeywords))
	for w := range l.pageKeywords {
		out = append(out, w)
	}
	return out
}

// IsGenericNoun reports whether word is a UI noun with no schema component
// behind it. Generic nouns classify as unresolved nouns so the intent model
// sees them; they never fill semantic roles.
func (l *Lexicon) IsGenericNoun(word string) bool {
	_, ok := l.genericNouns[strings.ToLower(word)]
	return ok
}

// PropForNoun maps a noun that followed "with" onto the prop it implies.
func (l *Lexicon) PropForNoun(word string) (string, bool) {
	prop, ok := l.propNouns[strings.ToLower(word)]
	return prop, ok
}

// Stem applies the suffix table to one lower-cased word, first match wins.
//
// Description:
//
//	Words shorter than a rule's min_length are left alone so short
//	component names like "tab" and "nav" are never mangled. Words ending
//	in a double "s" are not singularized ("class" stays "class"), which
//	keeps stemming idempotent.
func (l *Lexicon) Stem(word string) string {
	w := strings.ToLower(word)
	for _, rule := range l.stemming {
		if len(w) < rule.MinLength {
			continue
		}
		if !strings.HasSuffix(w, rule.Suffix) {
			continue
		}
		if rule.Suffix == "s" && strings.HasSuffix(w, "ss") {
			continue
		}
		return w[:len(w)-len(rule.Suffix)] + rule.Replacement
	}
	return w
}

// StemRules exposes the configured rules for callers that need to reason
// about them (tests, debug output).
func (l *Lexicon) StemRules() []StemRule {
	out := make([]StemRule, len(l.stemming))
	copy(out, l.stemming)
	return out
}

// =============================================================================
// Helpers
// =============================================================================

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		key := strings.ToLower(strings.TrimSpace(w))
		if key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

func toLowerMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.ToLower(strings.TrimSpace(k))
		if key != "" {
			out[key] = strings.ToLower(strings.TrimSpace(v))
		}
	}
	return out
}
