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
	"strings"

	"github.com/AleutianAI/Loom/services/loom/graph"
	"github.com/AleutianAI/Loom/services/loom/tokenizer"
)

// =============================================================================
// Grammar Rule List
// =============================================================================

// Resolution confidence bands.
const (
	confidenceExact   = 1.0
	confidenceSynonym = 0.9
)

// fuzzyGrammarCutoff is the strict fuzzy score required by the article
// fallback rule. Looser resolution elsewhere uses fuzzyResolveCutoff.
const (
	fuzzyGrammarCutoff = 0.8
	fuzzyResolveCutoff = 0.5
)

// RuleDropped tags tokens no grammar rule claimed.
const RuleDropped = "dropped"

// grammarRule is one step of the token classification decision list. A rule
// either claims the token (appending to the grammar) and returns true, or
// leaves it for the next rule.
type grammarRule struct {
	name  string
	apply func(a *Analyzer, st *grammarState, token string) bool
}

// grammarState carries the per-request classification state.
type grammarState struct {
	raw     string
	grammar *Grammar
}

// grammarRules returns the classification decision list in evaluation order.
// The order is load-bearing: a token is tagged by the first rule that claims
// it and never revisited.
func grammarRules() []grammarRule {
	return []grammarRule{
		{name: "stop_word", apply: (*Analyzer).classifyStopWord},
		{name: "number", apply: (*Analyzer).classifyNumber},
		{name: "verb", apply: (*Analyzer).classifyVerb},
		{name: "modifier", apply: (*Analyzer).classifyModifier},
		{name: "noun", apply: (*Analyzer).classifyNoun},
		{name: "preposition", apply: (*Analyzer).classifyPreposition},
		{name: "article_fuzzy_noun", apply: (*Analyzer).classifyArticleFuzzyNoun},
	}
}

// classifyGrammar walks every token through the rule list. Unclaimed tokens
// are dropped silently; their only downstream effect is lower coverage.
func (a *Analyzer) classifyGrammar(raw string, words []string, analysis *Analysis) {
	st := &grammarState{raw: raw, grammar: &analysis.Grammar}

	for _, token := range words {
		claimed := false
		for _, rule := range a.rules {
			if rule.apply(a, st, token) {
				analysis.Trace = append(analysis.Trace, TokenTag{Token: token, Rule: rule.name})
				claimed = true
				break
			}
		}
		if !claimed {
			analysis.Trace = append(analysis.Trace, TokenTag{Token: token, Rule: RuleDropped})
		}
	}
}

func (a *Analyzer) classifyStopWord(_ *grammarState, token string) bool {
	return a.lex.IsStopWord(token)
}

func (a *Analyzer) classifyNumber(st *grammarState, token string) bool {
	if isDigits(token) {
		st.grammar.Numbers = append(st.grammar.Numbers, token)
		return true
	}
	if _, ok := a.lex.Number(token); ok {
		st.grammar.Numbers = append(st.grammar.Numbers, token)
		return true
	}
	return false
}

func (a *Analyzer) classifyVerb(st *grammarState, token string) bool {
	if !a.lex.IsVerb(token) {
		return false
	}
	st.grammar.Verbs = append(st.grammar.Verbs, token)
	return true
}

func (a *Analyzer) classifyModifier(st *grammarState, token string) bool {
	if _, ok := a.lex.ModifierBucketFor(token); !ok {
		return false
	}
	st.grammar.Adjectives = append(st.grammar.Adjectives, token)
	return true
}

func (a *Analyzer) classifyNoun(st *grammarState, token string) bool {
	resolved, ok := a.resolveComponentStrict(token)
	if ok {
		st.grammar.Nouns = append(st.grammar.Nouns, resolved)
		return true
	}
	// Page keywords and generic UI nouns are nouns even without a backing
	// component. They carry Resolved nil and Confidence 0, so they never
	// become a target or an addition; they exist for the page-promotion
	// refinement and the classifier's word stream.
	singular := tokenizer.Singularize(token)
	if a.lex.IsPageKeyword(token) || a.lex.IsPageKeyword(singular) ||
		a.lex.IsGenericNoun(token) || a.lex.IsGenericNoun(singular) {
		st.grammar.Nouns = append(st.grammar.Nouns, ResolvedComponent{Text: token})
		return true
	}
	return false
}

func (a *Analyzer) classifyPreposition(st *grammarState, token string) bool {
	if !a.lex.IsPreposition(token) {
		return false
	}
	st.grammar.Prepositions = append(st.grammar.Prepositions, token)
	return true
}

// classifyArticleFuzzyNoun is the last-resort noun rule: the token must
// appear after an article in the original text AND fuzzy-match a component
// above the strict cut-off. "the buttn" recovers a typo; a bare fragment
// without an article does not.
func (a *Analyzer) classifyArticleFuzzyNoun(st *grammarState, token string) bool {
	if !articleForm(st.raw, token) {
		return false
	}
	node, score := a.kg.FuzzyFindComponent(token)
	if node == nil || score <= fuzzyGrammarCutoff {
		return false
	}
	st.grammar.Nouns = append(st.grammar.Nouns, ResolvedComponent{
		Text:        token,
		Resolved:    node,
		Confidence:  score,
		IsContainer: node.IsContainer,
	})
	return true
}

// =============================================================================
// Component Resolution
// =============================================================================

// resolveComponentStrict resolves a token through exact and singularized
// exact lookup (1.0), then synonym lookup (0.9). No fuzzy matching: the
// grammar cascade reserves fuzzy for the article fallback rule.
func (a *Analyzer) resolveComponentStrict(token string) (ResolvedComponent, bool) {
	node, kind := a.kg.FindComponent(token)
	if kind == graph.MatchNone {
		if singular := tokenizer.Singularize(token); singular != token {
			node, kind = a.kg.FindComponent(singular)
		}
	}

	switch kind {
	case graph.MatchExact:
		return ResolvedComponent{
			Text:        token,
			Resolved:    node,
			Confidence:  confidenceExact,
			IsContainer: node.IsContainer,
		}, true
	case graph.MatchSynonym:
		return ResolvedComponent{
			Text:        token,
			Resolved:    node,
			Confidence:  confidenceSynonym,
			IsContainer: node.IsContainer,
		}, true
	default:
		return ResolvedComponent{}, false
	}
}

// ResolveComponent resolves a term with the full ladder: exact 1.0, synonym
// 0.9, then fuzzy accepted above the loose cut-off (0.5) carrying the match
// engine's own score. A miss returns Resolved nil with Confidence 0; it is
// silent, never an error.
func (a *Analyzer) ResolveComponent(term string) ResolvedComponent {
	if resolved, ok := a.resolveComponentStrict(term); ok {
		return resolved
	}
	if node, score := a.kg.FuzzyFindComponent(term); node != nil && score > fuzzyResolveCutoff {
		return ResolvedComponent{
			Text:        term,
			Resolved:    node,
			Confidence:  score,
			IsContainer: node.IsContainer,
		}
	}
	return ResolvedComponent{Text: term}
}

// =============================================================================
// Helpers
// =============================================================================

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// articleForm reports whether the raw text contains "a|an|the <token>".
func articleForm(raw, token string) bool {
	pattern := `\b(?:a|an|the)\s+` + regexp.QuoteMeta(strings.ToLower(token)) + `\b`
	matched, err := regexp.MatchString(pattern, raw)
	return err == nil && matched
}
