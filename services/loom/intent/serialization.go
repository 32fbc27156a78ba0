// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intent

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ClassifierSchemaVersion is the version of the serialization schema.
// Increment when the serialization format changes in a breaking way.
const ClassifierSchemaVersion = "1.0"

// SerializableState is the JSON-serializable representation of a trained
// Classifier.
//
// Description:
//
//	Contains the aggregated counts needed to reconstruct the model:
//	per-label document counts and per-label word counts. Raw training
//	phrases are never part of the state; only counts leave the process.
//	Labels and words are sorted for deterministic output, enabling
//	reliable diffing and content hashing.
//
// Thread Safety: SerializableState is a value type with no internal state.
type SerializableState struct {
	// SchemaVersion identifies the serialization format version.
	SchemaVersion string `json:"schema_version"`

	// TotalDocs is the total number of training documents across labels.
	// Redundant with the per-label counts; kept as an integrity check.
	TotalDocs int `json:"total_docs"`

	// Labels contains one entry per trained label, sorted by label.
	Labels []SerializableLabel `json:"labels"`
}

// SerializableLabel is the aggregated state of one intent label.
type SerializableLabel struct {
	// Label is the intent label name.
	Label string `json:"label"`

	// DocCount is the number of training documents seen for this label.
	DocCount int `json:"doc_count"`

	// Words contains the word occurrence counts, sorted by word.
	Words []SerializableCount `json:"words"`
}

// SerializableCount is one word's occurrence count within a label.
type SerializableCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// ToSerializable converts the classifier to its serializable representation.
//
// Description:
//
//	Emits labels in sorted order and, within each label, words in sorted
//	order, so the same trained state always produces byte-identical JSON.
//
// Outputs:
//
//	*SerializableState - The serializable representation. Never nil.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (c *Classifier) ToSerializable() *SerializableState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	labels := make([]string, 0, len(c.docCount))
	for label := range c.docCount {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	st := &SerializableState{
		SchemaVersion: ClassifierSchemaVersion,
		TotalDocs:     c.totalDocs,
		Labels:        make([]SerializableLabel, 0, len(labels)),
	}
	for _, label := range labels {
		words := make([]string, 0, len(c.wordCount[label]))
		for w := range c.wordCount[label] {
			words = append(words, w)
		}
		sort.Strings(words)

		sl := SerializableLabel{
			Label:    label,
			DocCount: c.docCount[label],
			Words:    make([]SerializableCount, 0, len(words)),
		}
		for _, w := range words {
			sl.Words = append(sl.Words, SerializableCount{Word: w, Count: c.wordCount[label][w]})
		}
		st.Labels = append(st.Labels, sl)
	}
	return st
}

// FromSerializable reconstructs a Classifier from its serializable state.
//
// Description:
//
//	Validates the schema version and every label, then rebuilds the
//	count maps, vocabulary, and totals. The returned classifier is
//	independent of the input state.
//
// Inputs:
//
//	st - The state to reconstruct. Must not be nil.
//
// Outputs:
//
//	*Classifier - The reconstructed classifier.
//	error - Non-nil if st is nil, the version is unsupported, a label is
//	    not trainable, or a count is negative or inconsistent.
func FromSerializable(st *SerializableState) (*Classifier, error) {
	if st == nil {
		return nil, fmt.Errorf("intent: serializable state must not be nil")
	}
	if st.SchemaVersion != ClassifierSchemaVersion {
		return nil, fmt.Errorf("intent: unsupported schema version %q (expected %q)",
			st.SchemaVersion, ClassifierSchemaVersion)
	}

	c := NewClassifier()
	seen := make(map[string]struct{}, len(st.Labels))
	totalDocs := 0
	for _, sl := range st.Labels {
		if _, ok := trainableLabels[sl.Label]; !ok {
			return nil, fmt.Errorf("intent: label %q is not trainable", sl.Label)
		}
		if _, dup := seen[sl.Label]; dup {
			return nil, fmt.Errorf("intent: duplicate label %q", sl.Label)
		}
		seen[sl.Label] = struct{}{}
		if sl.DocCount <= 0 {
			return nil, fmt.Errorf("intent: label %q has non-positive doc count %d", sl.Label, sl.DocCount)
		}

		c.docCount[sl.Label] = sl.DocCount
		totalDocs += sl.DocCount
		c.wordCount[sl.Label] = make(map[string]int, len(sl.Words))
		for _, wc := range sl.Words {
			if wc.Count <= 0 {
				return nil, fmt.Errorf("intent: word %q in label %q has non-positive count %d",
					wc.Word, sl.Label, wc.Count)
			}
			c.wordCount[sl.Label][wc.Word] = wc.Count
			c.totalWords[sl.Label] += wc.Count
			c.vocabulary[wc.Word] = struct{}{}
		}
	}
	if st.TotalDocs != totalDocs {
		return nil, fmt.Errorf("intent: total_docs %d does not match per-label sum %d",
			st.TotalDocs, totalDocs)
	}
	c.totalDocs = totalDocs
	return c, nil
}

// Export serializes the trained state to deterministic JSON.
func (c *Classifier) Export() ([]byte, error) {
	data, err := json.Marshal(c.ToSerializable())
	if err != nil {
		return nil, fmt.Errorf("intent: marshaling classifier state: %w", err)
	}
	return data, nil
}

// Import replaces this classifier's state with one parsed from Export
// output.
//
// Description:
//
//	The incoming state is fully validated before anything is replaced;
//	on error the existing state is untouched.
//
// Thread Safety:
//
//	Safe for concurrent use; serialized against AddDocument and Classify.
func (c *Classifier) Import(data []byte) error {
	var st SerializableState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("intent: parsing classifier state: %w", err)
	}
	restored, err := FromSerializable(&st)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.docCount = restored.docCount
	c.wordCount = restored.wordCount
	c.totalWords = restored.totalWords
	c.vocabulary = restored.vocabulary
	c.totalDocs = restored.totalDocs
	return nil
}
