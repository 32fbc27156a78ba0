// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/Loom/services/loom/intent"
)

// newTestDB creates an in-memory BadgerDB for testing.
func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestManager creates a SnapshotManager with an in-memory DB.
func newTestManager(t *testing.T) *SnapshotManager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgr, err := NewSnapshotManager(newTestDB(t), logger)
	if err != nil {
		t.Fatalf("NewSnapshotManager: %v", err)
	}
	return mgr
}

// trainedClassifier builds a small classifier for snapshot tests.
func trainedClassifier(t *testing.T, docs ...string) *intent.Classifier {
	t.Helper()
	c := intent.NewClassifier()
	labels := []string{intent.CreateComponent, intent.CreateLayout, intent.Query}
	for i, doc := range docs {
		if err := c.AddDocument(doc, labels[i%len(labels)]); err != nil {
			t.Fatalf("AddDocument(%q): %v", doc, err)
		}
	}
	return c
}

func TestNewSnapshotManager_NilDB(t *testing.T) {
	_, err := NewSnapshotManager(nil, slog.Default())
	if err == nil {
		t.Error("expected error for nil DB")
	}
}

func TestSnapshotManager_SaveAndLoad(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()
	c := trainedClassifier(t, "primary button", "grid layout", "what components")

	meta, err := mgr.Save(ctx, c, "nightly")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if meta.SnapshotID == "" {
		t.Error("snapshot ID should not be empty")
	}
	if meta.DocCount != 3 {
		t.Errorf("doc count = %d, want 3", meta.DocCount)
	}
	if meta.VocabSize != c.VocabSize() {
		t.Errorf("vocab size = %d, want %d", meta.VocabSize, c.VocabSize())
	}
	if meta.Label != "nightly" {
		t.Errorf("label = %q, want nightly", meta.Label)
	}
	if meta.CompressedSize <= 0 {
		t.Error("compressed size should be > 0")
	}
	if meta.ContentHash == "" || meta.CorpusHash == "" {
		t.Error("hashes should not be empty")
	}
	if meta.SchemaVersion != intent.ClassifierSchemaVersion {
		t.Errorf("schema version = %q, want %q", meta.SchemaVersion, intent.ClassifierSchemaVersion)
	}

	loaded, loadedMeta, err := mgr.Load(ctx, meta.SnapshotID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DocCount() != c.DocCount() {
		t.Errorf("loaded doc count = %d, want %d", loaded.DocCount(), c.DocCount())
	}
	if loaded.VocabSize() != c.VocabSize() {
		t.Errorf("loaded vocab size = %d, want %d", loaded.VocabSize(), c.VocabSize())
	}
	if loadedMeta.SnapshotID != meta.SnapshotID {
		t.Errorf("loaded snapshot ID = %q, want %q", loadedMeta.SnapshotID, meta.SnapshotID)
	}

	// The restored classifier classifies like the original.
	words := []string{"primary", "button"}
	if got, want := loaded.Classify(words).Label, c.Classify(words).Label; got != want {
		t.Errorf("restored classification = %q, want %q", got, want)
	}
}

func TestSnapshotManager_SaveNilClassifier(t *testing.T) {
	mgr := newTestManager(t)
	if _, err := mgr.Save(context.Background(), nil, ""); err == nil {
		t.Error("expected error for nil classifier")
	}
}

func TestSnapshotManager_SaveNilCtx(t *testing.T) {
	mgr := newTestManager(t)
	c := trainedClassifier(t, "primary button")
	//nolint:staticcheck // testing nil ctx
	if _, err := mgr.Save(nil, c, ""); err == nil {
		t.Error("expected error for nil ctx")
	}
}

func TestSnapshotManager_LoadNonexistent(t *testing.T) {
	mgr := newTestManager(t)
	if _, _, err := mgr.Load(context.Background(), "nonexistent"); err == nil {
		t.Error("expected error for nonexistent snapshot")
	}
	if _, _, err := mgr.Load(context.Background(), ""); err == nil {
		t.Error("expected error for empty snapshot ID")
	}
}

func TestSnapshotManager_LoadLatest(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	first := trainedClassifier(t, "primary button")
	if _, err := mgr.Save(ctx, first, "first"); err != nil {
		t.Fatalf("Save first: %v", err)
	}

	second := trainedClassifier(t, "primary button", "grid layout")
	meta, err := mgr.Save(ctx, second, "second")
	if err != nil {
		t.Fatalf("Save second: %v", err)
	}

	loaded, loadedMeta, err := mgr.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if loadedMeta.SnapshotID != meta.SnapshotID {
		t.Errorf("latest snapshot = %q, want %q", loadedMeta.SnapshotID, meta.SnapshotID)
	}
	if loaded.DocCount() != 2 {
		t.Errorf("latest doc count = %d, want 2", loaded.DocCount())
	}
}

func TestSnapshotManager_LoadLatestEmpty(t *testing.T) {
	mgr := newTestManager(t)
	if _, _, err := mgr.LoadLatest(context.Background()); err == nil {
		t.Error("expected error when no snapshot was ever saved")
	}
}

func TestSnapshotManager_List(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	// Different states so the IDs differ even within one millisecond.
	if _, err := mgr.Save(ctx, trainedClassifier(t, "primary button"), "first"); err != nil {
		t.Fatalf("Save 1: %v", err)
	}
	if _, err := mgr.Save(ctx, trainedClassifier(t, "primary button", "grid layout"), "second"); err != nil {
		t.Fatalf("Save 2: %v", err)
	}

	all, err := mgr.List(ctx, 100)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("list = %d entries, want 2", len(all))
	}
	if all[0].CreatedAtMilli < all[1].CreatedAtMilli {
		t.Error("list should be newest first")
	}

	limited, err := mgr.List(ctx, 1)
	if err != nil {
		t.Fatalf("List limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited list = %d entries, want 1", len(limited))
	}
}

func TestSnapshotManager_Delete(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	meta, err := mgr.Save(ctx, trainedClassifier(t, "primary button"), "to delete")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, _, err := mgr.Load(ctx, meta.SnapshotID); err != nil {
		t.Fatalf("Load before delete: %v", err)
	}

	if err := mgr.Delete(ctx, meta.SnapshotID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, _, err := mgr.Load(ctx, meta.SnapshotID); err == nil {
		t.Error("expected error loading deleted snapshot")
	}
	// The latest pointer pointed at it and must be gone too.
	if _, _, err := mgr.LoadLatest(ctx); err == nil {
		t.Error("expected error loading latest after deleting it")
	}
	list, err := mgr.List(ctx, 100)
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("list after delete = %d entries, want 0", len(list))
	}
}

func TestSnapshotManager_DeleteNonexistent(t *testing.T) {
	mgr := newTestManager(t)
	if err := mgr.Delete(context.Background(), "nonexistent"); err == nil {
		t.Error("expected error deleting nonexistent snapshot")
	}
}

func TestSnapshotManager_SaveEmptyClassifier(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	meta, err := mgr.Save(ctx, intent.NewClassifier(), "empty")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if meta.DocCount != 0 || meta.VocabSize != 0 {
		t.Errorf("empty snapshot counts = %d/%d, want 0/0", meta.DocCount, meta.VocabSize)
	}

	loaded, _, err := mgr.Load(ctx, meta.SnapshotID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := loaded.Classify([]string{"button"}); got.Label != intent.Unknown {
		t.Errorf("empty restored classifier label = %q, want unknown", got.Label)
	}
}
