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
	"sort"
	"strings"
)

// =============================================================================
// Fuzzy Component Index
// =============================================================================

// defaultFuzzyThreshold is the minimum similarity FuzzyFindComponent accepts.
// Callers apply stricter cut-offs on top (resolution requires > 0.5, the
// article-form grammar fallback > 0.8).
const defaultFuzzyThreshold = 0.5

// Similarity floors for structural matches. A prefix or substring hit is a
// strong signal even when the edit distance is large ("chec" → "checkbox"),
// but it must stay below the 0.8 grammar fallback cut-off so bare fragments
// never pass the strictest band.
const (
	prefixFloor    = 0.75
	substringFloor = 0.6
)

// fieldRank orders which component field a term came from, for tie-breaks:
// a name hit beats a variant hit at equal similarity.
const (
	fieldName = iota
	fieldDisplayName
	fieldVariant
	fieldSize
	fieldCategory
)

// fuzzyEntry is one searchable surface term in the index.
type fuzzyEntry struct {
	term      string // lower-cased term text
	component string // lower-case canonical component name
	field     int    // fieldRank constant
}

// fuzzyIndex is the immutable fuzzy lookup structure built once per graph.
//
// Description:
//
//	Indexes every component's name, display name, variants, sizes, and
//	category. A query is scored against each entry: exact 1.0, prefix and
//	substring matches floored at prefixFloor/substringFloor, otherwise
//	Levenshtein distance within max(2, len/3) mapped to 1 - dist/maxLen.
//	Entries are sorted at build time so scoring ties resolve
//	deterministically (field rank, then term, then component name).
//
// Thread Safety:
//
//	Immutable after construction; safe for concurrent use.
type fuzzyIndex struct {
	entries   []fuzzyEntry
	threshold float64
}

func newFuzzyIndex(nodes map[string]*ComponentNode, threshold float64) *fuzzyIndex {
	idx := &fuzzyIndex{threshold: threshold}

	for key, node := range nodes {
		idx.add(node.Name, key, fieldName)
		idx.add(node.DisplayName, key, fieldDisplayName)
		for _, v := range node.Variants {
			idx.add(v, key, fieldVariant)
		}
		for _, s := range node.Sizes {
			idx.add(s, key, fieldSize)
		}
		idx.add(node.Category, key, fieldCategory)
	}

	sort.Slice(idx.entries, func(i, j int) bool {
		a, b := idx.entries[i], idx.entries[j]
		if a.field != b.field {
			return a.field < b.field
		}
		if a.term != b.term {
			return a.term < b.term
		}
		return a.component < b.component
	})

	return idx
}

func (idx *fuzzyIndex) add(term, component string, field int) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return
	}
	idx.entries = append(idx.entries, fuzzyEntry{term: term, component: component, field: field})
}

// search returns the best-scoring component for the query and its similarity,
// or ("", 0) when nothing reaches the index threshold.
func (idx *fuzzyIndex) search(query string) (string, float64) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return "", 0
	}

	best := ""
	bestScore := 0.0
	for _, entry := range idx.entries {
		score := termSimilarity(query, entry.term)
		// Strictly greater: the sorted entry order is the tie-break.
		if score > bestScore {
			best = entry.component
			bestScore = score
		}
	}

	if bestScore < idx.threshold {
		return "", 0
	}
	return best, bestScore
}

// termSimilarity scores how well a query matches one indexed term, in [0, 1].
//
// Match ladder, first hit wins:
//
//	1. Exact         → 1.0
//	2. Prefix        → 1 - lenDiff/maxLen, floored at prefixFloor
//	3. Substring     → 1 - lenDiff/maxLen, floored at substringFloor
//	4. Edit distance → 1 - dist/maxLen, only when dist <= max(2, len/3)
//	5. No match      → 0
func termSimilarity(query, term string) float64 {
	if query == term {
		return 1.0
	}

	maxLen := len(query)
	if len(term) > maxLen {
		maxLen = len(term)
	}
	if maxLen == 0 {
		return 0
	}
	lenDiff := len(term) - len(query)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	lengthSim := 1.0 - float64(lenDiff)/float64(maxLen)

	// Structural matches need at least 3 characters; a one- or two-letter
	// fragment prefix-matches half the vocabulary.
	if len(query) >= 3 {
		if strings.HasPrefix(term, query) || strings.HasPrefix(query, term) {
			if lengthSim < prefixFloor {
				return prefixFloor
			}
			return lengthSim
		}
		if strings.Contains(term, query) || strings.Contains(query, term) {
			if lengthSim < substringFloor {
				return substringFloor
			}
			return lengthSim
		}
	}

	// Scale the edit-distance budget with query length: roughly a 30%
	// error rate, never below 2.
	threshold := len(query) / 3
	if threshold < 2 {
		threshold = 2
	}
	dist := levenshteinDistance(query, term)
	if dist > threshold {
		return 0
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// levenshteinDistance calculates the edit distance between two strings using
// two rows instead of the full matrix.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

// =============================================================================
// Public Fuzzy Lookup
// =============================================================================

// FuzzyFindComponent resolves a term that failed exact and synonym lookup.
//
// Description:
//
//	Scores the term against every component's name, display name, variants,
//	sizes, and category. Returns the best match with its similarity score in
//	(0, 1], or (nil, 0) when the best score falls below the index threshold.
//	Ties break deterministically toward name-field hits, then the
//	lexicographically smaller term and component name.
//
// Inputs:
//
//	term - The unresolved surface term.
//
// Outputs:
//
//	*ComponentNode - Best matching node, or nil.
//	float64 - Similarity in (0, 1]; 0 on a miss.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (g *KnowledgeGraph) FuzzyFindComponent(term string) (*ComponentNode, float64) {
	name, score := g.fuzzy.search(term)
	if name == "" {
		return nil, 0
	}

	g.mu.RLock()
	node := g.nodes[name]
	g.mu.RUnlock()
	if node == nil {
		return nil, 0
	}
	return node, score
}
