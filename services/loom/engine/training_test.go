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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Loom/services/loom/intent"
	"github.com/AleutianAI/Loom/services/loom/store"
)

// =============================================================================
// Label Inference
// =============================================================================

func TestDefaultLabelInferrer(t *testing.T) {
	cases := []struct {
		name           string
		prompt         string
		correction     string
		expectedOutput string
		want           string
	}{
		{
			name:           "page keyword in expected output",
			prompt:         "make a login screen",
			expectedOutput: "a login page with a form",
			want:           intent.CreatePage,
		},
		{
			name:       "layout keyword in correction",
			prompt:     "arrange these",
			correction: "should be a two column layout",
			want:       intent.CreateLayout,
		},
		{
			name:       "grid keyword in correction",
			prompt:     "arrange these",
			correction: "use a grid here",
			want:       intent.CreateLayout,
		},
		{
			name:           "multiple generated elements",
			prompt:         "card with stuff",
			expectedOutput: `{"type":"card","children":[{"type":"button"},{"type":"badge"}]}`,
			want:           intent.Combine,
		},
		{
			name:       "plain component correction",
			prompt:     "make the button red",
			correction: "a danger variant button",
			want:       intent.CreateComponent,
		},
		{
			name:   "everything empty",
			prompt: "x",
			want:   intent.CreateComponent,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DefaultLabelInferrer(tc.prompt, tc.correction, tc.expectedOutput)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestWithConfig_CustomLabelInferrer(t *testing.T) {
	e := newTestEngine(t, WithConfig(Config{
		SkipSeedCorpus: true,
		LabelInferrer: func(string, string, string) string {
			return intent.Query
		},
	}))

	require.NoError(t, e.Learn(context.Background(), "what buttons exist", "list them", ""))
	res := processText(t, e, "what buttons exist")
	require.Equal(t, intent.Query, res.Intent.Type)
}

// =============================================================================
// Learning
// =============================================================================

func TestLearn_TrainsClassifier(t *testing.T) {
	e := newTestEngine(t, WithConfig(Config{SkipSeedCorpus: true}))
	ctx := context.Background()

	before := processText(t, e, "make a button")
	require.Equal(t, intent.Unknown, before.Intent.Type)

	require.NoError(t, e.Learn(ctx, "make a button", "it should create a button component", ""))

	after := processText(t, e, "make a button")
	require.Equal(t, intent.CreateComponent, after.Intent.Type)
	require.Greater(t, after.Confidence, before.Confidence)
}

func TestLearn_RejectsEmptyText(t *testing.T) {
	e := newTestEngine(t)
	err := e.Learn(context.Background(), "", "", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "learning correction")
}

func TestAddTrainingExample_ValidatesLabel(t *testing.T) {
	e := newTestEngine(t, WithConfig(Config{SkipSeedCorpus: true}))
	ctx := context.Background()

	require.NoError(t, e.AddTrainingExample(ctx, "show every component", intent.Query))
	require.Error(t, e.AddTrainingExample(ctx, "some text", "banana"))
	require.Error(t, e.AddTrainingExample(ctx, "some text", intent.Unknown))
}

// =============================================================================
// Export / Import
// =============================================================================

func TestExportImport_TransfersState(t *testing.T) {
	ctx := context.Background()
	trained := newTestEngine(t)
	data, err := trained.ExportTrainingData()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	fresh := newTestEngine(t, WithConfig(Config{SkipSeedCorpus: true}))
	require.Equal(t, intent.Unknown, processText(t, fresh, "create a card").Intent.Type)

	require.NoError(t, fresh.ImportTrainingData(ctx, data))

	want := processText(t, trained, "create a card").Intent.Type
	require.Equal(t, want, processText(t, fresh, "create a card").Intent.Type)
}

func TestImportTrainingData_RejectsGarbage(t *testing.T) {
	e := newTestEngine(t)
	err := e.ImportTrainingData(context.Background(), []byte("{not json"))
	require.Error(t, err)

	// The previous state survives a failed import.
	res := processText(t, e, "create a button")
	require.NotEqual(t, intent.Unknown, res.Intent.Type)
}

// =============================================================================
// Snapshots
// =============================================================================

func TestSnapshot_RequiresStore(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.SaveSnapshot(ctx, "v1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no snapshot store")

	err = e.RestoreLatest(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no snapshot store")
}

func TestSnapshot_SaveAndRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	sm := newTestStore(t)

	e := newTestEngine(t, WithSnapshotStore(sm), WithConfig(Config{SkipSeedCorpus: true}))
	require.NoError(t, e.AddTrainingExample(ctx, "create a button", intent.CreateLayout))

	meta, err := e.SaveSnapshot(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, 1, meta.DocCount)
	require.Equal(t, "v1", meta.Label)

	require.Equal(t, intent.CreateLayout, processText(t, e, "create a button").Intent.Type)

	// Outvote the snapshot state in memory, then restore back to it.
	for i := 0; i < 3; i++ {
		require.NoError(t, e.AddTrainingExample(ctx, "create a button", intent.Modify))
	}
	require.Equal(t, intent.Modify, processText(t, e, "create a button").Intent.Type)

	require.NoError(t, e.RestoreLatest(ctx))
	require.Equal(t, intent.CreateLayout, processText(t, e, "create a button").Intent.Type)
}

func TestRestoreLatest_EmptyStore(t *testing.T) {
	e := newTestEngine(t, WithSnapshotStore(newTestStore(t)), WithConfig(Config{SkipSeedCorpus: true}))

	err := e.RestoreLatest(context.Background())
	require.ErrorIs(t, err, store.ErrSnapshotNotFound)
}
