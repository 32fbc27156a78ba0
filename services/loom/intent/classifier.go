// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package intent classifies analyzed requests into intent labels with a
// multinomial Naive Bayes model and refines the prediction through an
// ordered rule cascade. The classifier is an explicit engine-owned object
// with append-only online learning; there is no module-level state.
package intent

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// Labels
// =============================================================================

// The six trainable intent labels plus the untrained fallback.
const (
	CreateComponent = "create_component"
	CreateLayout    = "create_layout"
	CreatePage      = "create_page"
	Modify          = "modify"
	Combine         = "combine"
	Query           = "query"

	// Unknown is never trainable; it is returned when the classifier has
	// no documents or the input carries no classifiable words.
	Unknown = "unknown"
)

// Labels returns the trainable labels in canonical order.
func Labels() []string {
	return []string{CreateComponent, CreateLayout, CreatePage, Modify, Combine, Query}
}

var trainableLabels = map[string]struct{}{
	CreateComponent: {},
	CreateLayout:    {},
	CreatePage:      {},
	Modify:          {},
	Combine:         {},
	Query:           {},
}

// =============================================================================
// Prediction
// =============================================================================

// Alternative is a non-winning label with its posterior probability.
type Alternative struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Prediction is one classification outcome. Confidence plus the alternative
// confidences always sum to 1 for a trained classifier (softmax-normalized
// posteriors).
type Prediction struct {
	Label        string
	Confidence   float64
	Alternatives []Alternative
}

// =============================================================================
// Classifier
// =============================================================================

// Classifier is a multinomial Naive Bayes intent classifier with Laplace
// add-one smoothing.
//
// Description:
//
//	For label L and input words w1..wn:
//
//	  P(L|words) ∝ P(L) · Π P(wi|L)
//	  P(wi|L) = (count(wi,L) + 1) / (totalWordsIn(L) + vocabularySize)
//	  P(L)    = docCount(L) / totalDocs
//
//	Probabilities accumulate in log space and are normalized with a
//	softmax so posteriors sum to 1. Training is cumulative: AddDocument
//	immediately affects future classifications, with no separate retrain
//	step. A repeated identical example only biases counts further.
//
// Thread Safety:
//
//	Safe for concurrent use. AddDocument and Restore take an exclusive
//	lock; Classify and Snapshot read under a shared lock.
type Classifier struct {
	mu sync.RWMutex

	docCount   map[string]int            // label → document count
	wordCount  map[string]map[string]int // label → word → occurrences
	totalWords map[string]int            // label → total word instances
	vocabulary map[string]struct{}       // distinct words across all labels
	totalDocs  int
}

// NewClassifier creates an empty, untrained classifier.
func NewClassifier() *Classifier {
	return &Classifier{
		docCount:   make(map[string]int),
		wordCount:  make(map[string]map[string]int),
		totalWords: make(map[string]int),
		vocabulary: make(map[string]struct{}),
	}
}

// AddDocument appends one labeled example to the model.
//
// Description:
//
//	The text is lower-cased and split on whitespace; counts update
//	immediately. Append-only: there is no way to remove an example.
//
// Inputs:
//
//	text - The example phrase. Must contain at least one word.
//	label - One of the six trainable labels. "unknown" is rejected.
//
// Outputs:
//
//	error - Non-nil for an unknown label or empty text.
//
// Thread Safety:
//
//	Safe for concurrent use; serialized against Classify.
func (c *Classifier) AddDocument(text, label string) error {
	if _, ok := trainableLabels[label]; !ok {
		return fmt.Errorf("intent: label %q is not trainable", label)
	}
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return fmt.Errorf("intent: empty training text for label %q", label)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.docCount[label]++
	c.totalDocs++
	if c.wordCount[label] == nil {
		c.wordCount[label] = make(map[string]int)
	}
	for _, w := range words {
		c.wordCount[label][w]++
		c.totalWords[label]++
		c.vocabulary[w] = struct{}{}
	}
	return nil
}

// Classify scores the input words against every trained label.
//
// Description:
//
//	The input is the analyzer's verbs + nouns + adjectives, never raw
//	text; words filtered out by the grammar never reach the model.
//	Returns the highest-posterior label with the remaining labels as
//	alternatives, sorted by posterior descending (label ascending on
//	ties). An untrained classifier or empty input yields Unknown with
//	confidence 0 and no alternatives.
//
// Inputs:
//
//	words - Classifiable words. May be empty.
//
// Outputs:
//
//	Prediction - Softmax-normalized posteriors summing to 1.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (c *Classifier) Classify(words []string) Prediction {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.totalDocs == 0 || len(words) == 0 {
		return Prediction{Label: Unknown}
	}

	vocabSize := len(c.vocabulary)

	type scored struct {
		label string
		logP  float64
	}
	scores := make([]scored, 0, len(c.docCount))
	for _, label := range Labels() {
		docs := c.docCount[label]
		if docs == 0 {
			continue
		}
		logP := math.Log(float64(docs) / float64(c.totalDocs))
		denom := float64(c.totalWords[label] + vocabSize)
		for _, w := range words {
			count := c.wordCount[label][strings.ToLower(w)]
			logP += math.Log(float64(count+1) / denom)
		}
		scores = append(scores, scored{label: label, logP: logP})
	}
	if len(scores) == 0 {
		return Prediction{Label: Unknown}
	}

	// Softmax in log space: shift by the max to avoid underflow.
	maxLog := scores[0].logP
	for _, s := range scores[1:] {
		if s.logP > maxLog {
			maxLog = s.logP
		}
	}
	var sum float64
	posterior := make([]float64, len(scores))
	for i, s := range scores {
		posterior[i] = math.Exp(s.logP - maxLog)
		sum += posterior[i]
	}
	for i := range posterior {
		posterior[i] /= sum
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if posterior[order[a]] != posterior[order[b]] {
			return posterior[order[a]] > posterior[order[b]]
		}
		return scores[order[a]].label < scores[order[b]].label
	})

	pred := Prediction{
		Label:      scores[order[0]].label,
		Confidence: posterior[order[0]],
	}
	for _, i := range order[1:] {
		pred.Alternatives = append(pred.Alternatives, Alternative{
			Label:      scores[i].label,
			Confidence: posterior[i],
		})
	}
	return pred
}

// DocCount returns the total number of training documents.
func (c *Classifier) DocCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalDocs
}

// VocabSize returns the number of distinct words seen in training.
func (c *Classifier) VocabSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vocabulary)
}
