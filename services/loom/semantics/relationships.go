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

	"github.com/AleutianAI/Loom/services/loom/config"
)

// =============================================================================
// Relationship Extraction
// =============================================================================

// relationshipPatterns holds the compiled regex families. They run over the
// raw lower-cased text, independent of tokenization, and may overlap or
// fire twice on the same span; duplicates are never removed.
//
// Containment always stores the container as Subject. The child-first
// family ("button inside card") therefore swaps surface order; the
// container-first family ("card containing button") does not.
type relationshipPatterns struct {
	childFirst     *regexp.Regexp
	containerFirst *regexp.Regexp
	sibling        *regexp.Regexp
	columns        *regexp.Regexp
	gridOf         *regexp.Regexp
	wordLayout     *regexp.Regexp
}

func compileRelationshipPatterns() *relationshipPatterns {
	const (
		word    = `([a-z0-9-]+)`
		article = `(?:(?:a|an|the)\s+)?`
		number  = `(\d+|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)`
	)
	return &relationshipPatterns{
		childFirst:     regexp.MustCompile(word + `\s+(?:inside|within|into|in)\s+` + article + word),
		containerFirst: regexp.MustCompile(word + `\s+(?:containing|with)\s+` + article + word),
		sibling:        regexp.MustCompile(word + `(?:\s+and\s+|\s*,\s*)` + article + word),
		columns:        regexp.MustCompile(number + `[\s-]*columns?`),
		gridOf:         regexp.MustCompile(`grid\s+of\s+` + number),
		wordLayout:     regexp.MustCompile(word + `\s+layout`),
	}
}

// extract runs every pattern family over the raw text and returns the
// relationship tuples in family order: containment, sibling, layout.
func (p *relationshipPatterns) extract(raw string, lex *config.Lexicon) []Relationship {
	var rels []Relationship

	for _, m := range p.childFirst.FindAllStringSubmatch(raw, -1) {
		rels = append(rels, Relationship{Type: RelationContains, Subject: m[2], Object: m[1]})
	}
	for _, m := range p.containerFirst.FindAllStringSubmatch(raw, -1) {
		rels = append(rels, Relationship{Type: RelationContains, Subject: m[1], Object: m[2]})
	}
	for _, m := range p.sibling.FindAllStringSubmatch(raw, -1) {
		rels = append(rels, Relationship{Type: RelationSibling, Subject: m[1], Object: m[2]})
	}
	for _, m := range p.columns.FindAllStringSubmatch(raw, -1) {
		rels = append(rels, Relationship{Type: RelationLayout, Subject: "columns", Object: countString(m[1], lex)})
	}
	for _, m := range p.gridOf.FindAllStringSubmatch(raw, -1) {
		rels = append(rels, Relationship{Type: RelationLayout, Subject: "grid", Object: countString(m[1], lex)})
	}
	for _, m := range p.wordLayout.FindAllStringSubmatch(raw, -1) {
		rels = append(rels, Relationship{Type: RelationLayout, Subject: m[1], Object: ""})
	}

	return rels
}

// countString normalizes a captured count to its digit form ("three" → "3").
func countString(s string, lex *config.Lexicon) string {
	if n, ok := lex.Number(s); ok {
		return strconv.Itoa(n)
	}
	return s
}
