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
// Embedded Seed Intent Corpus
// =============================================================================

//go:embed intent_corpus.yaml
var defaultIntentCorpusYAML []byte

// IntentLabels lists the six trainable intent categories. The classifier
// additionally reports "unknown" when it has no training data at all, but
// "unknown" is never a training label.
var IntentLabels = []string{
	"create_component",
	"create_layout",
	"create_page",
	"modify",
	"combine",
	"query",
}

// TrainingExample is one labeled phrase in the seed corpus.
type TrainingExample struct {
	// Text is the short natural-language phrase.
	Text string `yaml:"text"`

	// Label is the intent category the phrase belongs to.
	Label string `yaml:"label"`
}

// corpusFile is the raw YAML shape of intent_corpus.yaml.
type corpusFile struct {
	Examples []TrainingExample `yaml:"examples"`
}

var (
	corpusMu      sync.RWMutex
	cachedCorpus  []TrainingExample
	corpusLoadErr error
)

// GetSeedCorpus returns the cached seed corpus, loading the embedded
// default on first call.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	[]TrainingExample - The labeled seed phrases. Never empty on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use.
func GetSeedCorpus(ctx context.Context) ([]TrainingExample, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetSeedCorpus: ctx must not be nil")
	}

	corpusMu.RLock()
	if cachedCorpus != nil || corpusLoadErr != nil {
		corpus, err := cachedCorpus, corpusLoadErr
		corpusMu.RUnlock()
		return corpus, err
	}
	corpusMu.RUnlock()

	corpusMu.Lock()
	defer corpusMu.Unlock()

	if cachedCorpus == nil && corpusLoadErr == nil {
		cachedCorpus, corpusLoadErr = LoadSeedCorpus(ctx, defaultIntentCorpusYAML)
	}
	return cachedCorpus, corpusLoadErr
}

// ResetSeedCorpus clears the cached corpus so tests can reload it.
func ResetSeedCorpus() {
	corpusMu.Lock()
	defer corpusMu.Unlock()
	cachedCorpus = nil
	corpusLoadErr = nil
}

// LoadSeedCorpus parses and validates a seed corpus from YAML bytes.
//
// Description:
//
//	Parses the YAML, trims and lower-cases each phrase, and validates that
//	every example is non-empty, carries a known label, and that every
//	trainable intent label appears at least once.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes to parse.
//
// Outputs:
//
//	[]TrainingExample - The validated examples, in file order.
//	error - Non-nil if parsing or validation fails.
func LoadSeedCorpus(ctx context.Context, data []byte) ([]TrainingExample, error) {
	_, span := configTracer.Start(ctx, "config.LoadSeedCorpus")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadSeedCorpus: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadSeedCorpus: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var file corpusFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("LoadSeedCorpus: parsing YAML: %w", err)
	}
	if len(file.Examples) == 0 {
		return nil, fmt.Errorf("LoadSeedCorpus: corpus has no examples")
	}

	known := make(map[string]struct{}, len(IntentLabels))
	for _, label := range IntentLabels {
		known[label] = struct{}{}
	}

	seen := make(map[string]int, len(IntentLabels))
	examples := make([]TrainingExample, 0, len(file.Examples))
	for i, ex := range file.Examples {
		text := strings.ToLower(strings.TrimSpace(ex.Text))
		label := strings.ToLower(strings.TrimSpace(ex.Label))
		if text == "" {
			return nil, fmt.Errorf("LoadSeedCorpus: example[%d]: text must not be empty", i)
		}
		if _, ok := known[label]; !ok {
			return nil, fmt.Errorf("LoadSeedCorpus: example[%d] (%q): unknown label %q", i, text, label)
		}
		seen[label]++
		examples = append(examples, TrainingExample{Text: text, Label: label})
	}

	for _, label := range IntentLabels {
		if seen[label] == 0 {
			return nil, fmt.Errorf("LoadSeedCorpus: label %q has no examples", label)
		}
	}

	span.SetAttributes(
		attribute.Int("example_count", len(examples)),
		attribute.Int("label_count", len(seen)),
	)

	slog.Info("seed intent corpus loaded",
		slog.Int("example_count", len(examples)),
		slog.Int("label_count", len(seen)),
	)

	return examples, nil
}
