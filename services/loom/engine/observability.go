// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// engineTracer is the package-level tracer for all engine spans.
var engineTracer = otel.Tracer("aleutian.loom.engine")

// ============================================================================
// Prometheus Metrics
// ============================================================================

var (
	// processTotal counts Process calls.
	//
	// Labels:
	//   - status: "success" or "error"
	processTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "process_total",
			Help:      "Total number of processed requests",
		},
		[]string{"status"},
	)

	// processDuration tracks end-to-end Process latency. The pipeline is
	// in-process and sub-millisecond in the common case, so the buckets
	// start well below the default Prometheus set.
	//
	// Labels:
	//   - status: "success" or "error"
	processDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "process_duration_seconds",
			Help:      "End-to-end request processing duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"status"},
	)

	// confidenceHistogram tracks the blended confidence of successful
	// results. A drift toward the low buckets means the vocabulary or the
	// corpus no longer matches what users ask for.
	confidenceHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "confidence",
			Help:      "Blended confidence of processed requests",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// escalationsTotal counts low-confidence escalations to the active
	// plugin.
	//
	// Labels:
	//   - outcome: "applied" when the plugin's context was merged,
	//     "passthrough" when the plugin was skipped or failed open
	escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "escalations_total",
			Help:      "Total number of low-confidence plugin escalations",
		},
		[]string{"outcome"},
	)

	// trainingTotal counts documents added to the classifier after
	// initialization (Learn and AddTrainingExample).
	trainingTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "training_examples_total",
			Help:      "Total number of training examples added at runtime",
		},
	)

	// errorsTotal counts engine errors by coarse type.
	//
	// Labels:
	//   - error_type: "not_initialized", "schema", "analysis",
	//     "serialization", "training", "snapshot", or "unknown"
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Total number of engine errors by type",
		},
		[]string{"error_type"},
	)
)

// classifyEngineError maps an error to a coarse metric label. Returns ""
// for nil errors.
func classifyEngineError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNotInitialized) {
		return "not_initialized"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "snapshot"):
		return "snapshot"
	case strings.Contains(msg, "schema") || strings.Contains(msg, "graph"):
		return "schema"
	case strings.Contains(msg, "analyz"):
		return "analysis"
	case strings.Contains(msg, "import") || strings.Contains(msg, "export") ||
		strings.Contains(msg, "marshal"):
		return "serialization"
	case strings.Contains(msg, "train") || strings.Contains(msg, "label") ||
		strings.Contains(msg, "corpus"):
		return "training"
	default:
		return "unknown"
	}
}

// recordProcessMetrics records one Process call. Confidence is only
// observed on success.
func recordProcessMetrics(duration time.Duration, confidence float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
		errorsTotal.WithLabelValues(classifyEngineError(err)).Inc()
	}
	processTotal.WithLabelValues(status).Inc()
	processDuration.WithLabelValues(status).Observe(duration.Seconds())
	if err == nil {
		confidenceHistogram.Observe(confidence)
	}
}

// recordEscalation records one escalation attempt and its outcome.
func recordEscalation(applied bool) {
	outcome := "passthrough"
	if applied {
		outcome = "applied"
	}
	escalationsTotal.WithLabelValues(outcome).Inc()
}

// recordEngineError records a non-Process error (training, snapshot,
// serialization paths).
func recordEngineError(err error) {
	if err == nil {
		return
	}
	errorsTotal.WithLabelValues(classifyEngineError(err)).Inc()
}
