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
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Loom/services/loom/intent"
	"github.com/AleutianAI/Loom/services/loom/store"
)

// DefaultLabelInferrer guesses a training label from the shape of the
// output the user expected. It prefers the expected output and falls back
// to the correction text when the expected output is blank. The heuristic
// is deliberately crude: corrections arrive unlabeled, and a rough label
// on real phrasing beats no training at all.
func DefaultLabelInferrer(prompt, correction, expectedOutput string) string {
	text := strings.ToLower(expectedOutput)
	if strings.TrimSpace(text) == "" {
		text = strings.ToLower(correction)
	}
	switch {
	case strings.Contains(text, "page"):
		return intent.CreatePage
	case strings.Contains(text, "layout") || strings.Contains(text, "grid"):
		return intent.CreateLayout
	case strings.Count(text, `"type"`) > 2:
		return intent.Combine
	default:
		return intent.CreateComponent
	}
}

// Learn trains the classifier on a user correction.
//
// Description:
//
//	The original prompt and the correction text are combined into one
//	training document; the label comes from the configured
//	LabelInferrer. The classifier is incremental, so the correction
//	takes effect on the next Process call.
//
// Inputs:
//
//	ctx - Context for tracing.
//	prompt - The request that produced the wrong interpretation.
//	correction - The user's free-text correction. May be empty if
//	expectedOutput is given.
//	expectedOutput - The output the user expected, if known. Drives
//	label inference.
//
// Outputs:
//
//	error - ErrNotInitialized, or a classifier rejection (empty
//	training text).
//
// Thread Safety:
//
//	Safe for concurrent use.
func (e *Engine) Learn(ctx context.Context, prompt, correction, expectedOutput string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return ErrNotInitialized
	}

	_, span := engineTracer.Start(ctx, "engine.Learn")
	defer span.End()

	label := e.cfg.LabelInferrer(prompt, correction, expectedOutput)
	text := strings.TrimSpace(prompt + " " + correction)
	if err := e.classifier.AddDocument(text, label); err != nil {
		err = fmt.Errorf("engine: learning correction: %w", err)
		recordEngineError(err)
		return err
	}
	trainingTotal.Inc()

	span.SetAttributes(attribute.String("label", label))
	e.logger.Debug("correction learned",
		"label", label,
		"doc_count", e.classifier.DocCount(),
	)
	return nil
}

// AddTrainingExample appends one pre-labeled document to the classifier.
// The label must be one of the trainable intent labels.
func (e *Engine) AddTrainingExample(ctx context.Context, text, label string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return ErrNotInitialized
	}

	_, span := engineTracer.Start(ctx, "engine.AddTrainingExample")
	defer span.End()

	if err := e.classifier.AddDocument(text, label); err != nil {
		err = fmt.Errorf("engine: adding training example: %w", err)
		recordEngineError(err)
		return err
	}
	trainingTotal.Inc()
	return nil
}

// ExportTrainingData serializes the classifier state as JSON. The bytes
// round-trip through ImportTrainingData on any engine instance.
func (e *Engine) ExportTrainingData() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return nil, ErrNotInitialized
	}
	data, err := e.classifier.Export()
	if err != nil {
		err = fmt.Errorf("engine: exporting training data: %w", err)
		recordEngineError(err)
		return nil, err
	}
	return data, nil
}

// ImportTrainingData replaces the classifier state with a previously
// exported payload. The current state is only discarded on success.
func (e *Engine) ImportTrainingData(ctx context.Context, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return ErrNotInitialized
	}

	_, span := engineTracer.Start(ctx, "engine.ImportTrainingData")
	defer span.End()

	if err := e.classifier.Import(data); err != nil {
		err = fmt.Errorf("engine: importing training data: %w", err)
		recordEngineError(err)
		return err
	}
	e.logger.Info("training data imported",
		"doc_count", e.classifier.DocCount(),
		"vocab_size", e.classifier.VocabSize(),
	)
	return nil
}

// SaveSnapshot persists the current classifier state to the configured
// snapshot store. Requires WithSnapshotStore.
func (e *Engine) SaveSnapshot(ctx context.Context, label string) (*store.SnapshotMetadata, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return nil, ErrNotInitialized
	}
	if e.snapshots == nil {
		return nil, errors.New("engine: no snapshot store configured")
	}

	meta, err := e.snapshots.Save(ctx, e.classifier, label)
	if err != nil {
		err = fmt.Errorf("engine: saving snapshot: %w", err)
		recordEngineError(err)
		return nil, err
	}
	return meta, nil
}

// RestoreLatest swaps the classifier for the latest saved snapshot.
// Requires WithSnapshotStore. The current classifier survives a failed
// restore.
func (e *Engine) RestoreLatest(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return ErrNotInitialized
	}
	if e.snapshots == nil {
		return errors.New("engine: no snapshot store configured")
	}

	c, meta, err := e.snapshots.LoadLatest(ctx)
	if err != nil {
		err = fmt.Errorf("engine: restoring latest snapshot: %w", err)
		recordEngineError(err)
		return err
	}
	e.classifier = c
	e.logger.Info("classifier restored",
		"snapshot_id", meta.SnapshotID,
		"doc_count", meta.DocCount,
	)
	return nil
}
