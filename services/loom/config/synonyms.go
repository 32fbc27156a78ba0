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
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Built-in Component Synonyms
// =============================================================================

//go:embed synonyms.yaml
var defaultComponentSynonymsYAML []byte

// ComponentSynonyms maps natural-language aliases to canonical component
// names ("btn" -> "button"). Used by the knowledge graph to seed its synonym
// index; schema-declared aliases override any entry here.
//
// The map is loaded from synonyms.yaml at startup and cached.
//
// # Thread Safety
//
// Safe for concurrent use after initialization (immutable after load).
type ComponentSynonyms map[string]string

var (
	cachedComponentSynonyms ComponentSynonyms
	componentSynonymsOnce   sync.Once
	componentSynonymsErr    error
)

// LoadComponentSynonyms loads and caches the built-in synonym table from
// the embedded YAML. Returns the cached result on subsequent calls.
//
// # Outputs
//
//   - ComponentSynonyms: The loaded mapping, keys and values lower-cased.
//     Never nil on success.
//   - error: Non-nil if YAML parsing fails.
//
// # Thread Safety
//
// Safe for concurrent use (uses sync.Once internally).
func LoadComponentSynonyms() (ComponentSynonyms, error) {
	componentSynonymsOnce.Do(func() {
		var raw map[string]string
		if err := yaml.Unmarshal(defaultComponentSynonymsYAML, &raw); err != nil {
			componentSynonymsErr = fmt.Errorf("parsing synonyms.yaml: %w", err)
			return
		}
		table := make(ComponentSynonyms, len(raw))
		for alias, canonical := range raw {
			a := strings.ToLower(strings.TrimSpace(alias))
			c := strings.ToLower(strings.TrimSpace(canonical))
			if a == "" || c == "" {
				continue
			}
			table[a] = c
		}
		cachedComponentSynonyms = table
		slog.Info("built-in component synonyms loaded",
			slog.Int("alias_count", len(table)),
		)
	})
	return cachedComponentSynonyms, componentSynonymsErr
}

// MustLoadComponentSynonyms loads the synonym table or returns an empty map
// on error. Logs a warning if loading fails but does not panic; resolution
// still works, just without built-in aliases.
//
// # Thread Safety
//
// Safe for concurrent use.
func MustLoadComponentSynonyms() ComponentSynonyms {
	synonyms, err := LoadComponentSynonyms()
	if err != nil {
		slog.Warn("built-in synonym loading failed, continuing without aliases",
			slog.String("error", err.Error()),
		)
		return make(ComponentSynonyms)
	}
	return synonyms
}
