// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the embedded lexical tables the Loom pipeline reads
// at startup: the lexicon (stop words, verbs, modifier buckets, number
// words, stemming rules), the built-in component synonym table, and the
// seed intent corpus. All tables are YAML, embedded at build time, parsed
// once, and immutable afterwards.
package config

import (
	"go.opentelemetry.io/otel"
)

// MaxYAMLFileSize bounds any YAML document this package will parse.
// Guards against accidentally embedding or loading a runaway file.
const MaxYAMLFileSize = 1 * 1024 * 1024

// configTracer is the shared OTel tracer for config loading operations.
var configTracer = otel.Tracer("aleutian.loom.config")
