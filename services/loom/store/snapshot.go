// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists classifier snapshots in BadgerDB. Snapshots hold
// the classifier's aggregated counts only; the raw training examples that
// produced them are never written to disk.
package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/Loom/services/loom/intent"
)

// ErrSnapshotNotFound reports that no snapshot exists for the requested
// ID, or that nothing has been saved yet when loading the latest.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// BadgerDB keys for classifier snapshots.
const (
	keyPrefixSnap  = "intent:snap:"
	keySuffixData  = ":data"
	keySuffixMeta  = ":meta"
	keyLatest      = keyPrefixSnap + "latest"
	defaultListCap = 100
)

// SnapshotMetadata describes one saved classifier snapshot.
type SnapshotMetadata struct {
	// SnapshotID uniquely identifies the snapshot.
	// Derived from SHA256(CorpusHash + CreatedAtMilli)[:16].
	SnapshotID string `json:"snapshot_id"`

	// CorpusHash is SHA256 of the uncompressed export JSON, truncated to
	// 16 hex characters. Two snapshots of identical classifier state
	// share it.
	CorpusHash string `json:"corpus_hash"`

	// DocCount is the number of training documents behind the counts.
	DocCount int `json:"doc_count"`

	// VocabSize is the classifier's vocabulary size at save time.
	VocabSize int `json:"vocab_size"`

	// CreatedAtMilli is when the snapshot was saved (Unix milliseconds UTC).
	CreatedAtMilli int64 `json:"created_at_milli"`

	// CompressedSize is the gzip payload size in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the full SHA256 of the compressed payload, checked
	// on every load.
	ContentHash string `json:"content_hash"`

	// SchemaVersion is the classifier serialization version.
	SchemaVersion string `json:"schema_version"`

	// Label is an optional human-readable label.
	Label string `json:"label,omitempty"`
}

// SnapshotManager saves and loads classifier snapshots in BadgerDB.
//
// Description:
//
//	Snapshots are gzip-compressed classifier export JSON, each stored
//	under its snapshot ID with a metadata record beside it and a single
//	latest pointer for the store.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency
//	control.
type SnapshotManager struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewSnapshotManager creates a manager over an opened BadgerDB instance.
// The caller owns the DB lifecycle.
func NewSnapshotManager(db *badger.DB, logger *slog.Logger) (*SnapshotManager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotManager{db: db, logger: logger}, nil
}

// Save persists the classifier's current state.
//
// Description:
//
//	Exports the classifier, gzip-compresses the JSON, and writes data,
//	metadata, and the latest pointer in one transaction.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	c - The classifier to snapshot. Must not be nil.
//	label - Optional human-readable label.
//
// Outputs:
//
//	*SnapshotMetadata - Metadata for the saved snapshot.
//	error - Non-nil if export, compression, or storage fails.
//
// Key Schema:
//
//	intent:snap:{snapshotID}:data → gzip(JSON(classifier state))
//	intent:snap:{snapshotID}:meta → JSON(SnapshotMetadata)
//	intent:snap:latest            → snapshotID
func (m *SnapshotManager) Save(ctx context.Context, c *intent.Classifier, label string) (*SnapshotMetadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if c == nil {
		return nil, fmt.Errorf("classifier must not be nil")
	}

	jsonData, err := c.Export()
	if err != nil {
		return nil, fmt.Errorf("exporting classifier: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	createdAt := time.Now().UnixMilli()
	corpusHash := hashBytes(jsonData)[:16]
	snapshotID := hashString(fmt.Sprintf("%s:%d", corpusHash, createdAt))[:16]

	meta := &SnapshotMetadata{
		SnapshotID:     snapshotID,
		CorpusHash:     corpusHash,
		DocCount:       c.DocCount(),
		VocabSize:      c.VocabSize(),
		CreatedAtMilli: createdAt,
		CompressedSize: int64(len(compressedData)),
		ContentHash:    hashBytes(compressedData),
		SchemaVersion:  intent.ClassifierSchemaVersion,
		Label:          label,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey(snapshotID)), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey(snapshotID)), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(keyLatest), []byte(snapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot to badger: %w", err)
	}

	m.logger.Info("classifier snapshot saved",
		slog.String("snapshot_id", snapshotID),
		slog.Int("doc_count", meta.DocCount),
		slog.Int("vocab_size", meta.VocabSize),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load reconstructs a classifier from a snapshot by ID.
//
// Outputs:
//
//	*intent.Classifier - A fresh classifier carrying the saved counts.
//	*SnapshotMetadata - The snapshot metadata.
//	error - Non-nil if the snapshot is missing, corrupt, or fails the
//	content-hash check.
func (m *SnapshotManager) Load(ctx context.Context, snapshotID string) (*intent.Classifier, *SnapshotMetadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}
	return m.loadByID(snapshotID)
}

// LoadLatest loads the snapshot the latest pointer names.
func (m *SnapshotManager) LoadLatest(ctx context.Context) (*intent.Classifier, *SnapshotMetadata, error) {
	if ctx == nil {
		return nil, nil, fmt.Errorf("ctx must not be nil")
	}

	var snapshotID string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyLatest))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snapshotID = string(val)
			return nil
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil, ErrSnapshotNotFound
		}
		return nil, nil, fmt.Errorf("reading latest pointer: %w", err)
	}
	return m.loadByID(snapshotID)
}

// List returns snapshot metadata, newest first.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	limit - Maximum results; <= 0 defaults to 100.
func (m *SnapshotManager) List(ctx context.Context, limit int) ([]*SnapshotMetadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if limit <= 0 {
		limit = defaultListCap
	}

	var results []*SnapshotMetadata
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixSnap)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(keyPrefixSnap)); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !isMetaKey(key) {
				continue
			}

			var meta SnapshotMetadata
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				m.logger.Warn("skipping corrupt snapshot metadata",
					slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAtMilli != results[j].CreatedAtMilli {
			return results[i].CreatedAtMilli > results[j].CreatedAtMilli
		}
		return results[i].SnapshotID < results[j].SnapshotID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a snapshot's data and metadata. If the latest pointer
// names it, the pointer is removed too.
func (m *SnapshotManager) Delete(ctx context.Context, snapshotID string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}

	// Existence check so deleting an unknown ID is an error, not a no-op.
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(metaKey(snapshotID)))
		return err
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("snapshot %s: %w", snapshotID, ErrSnapshotNotFound)
		}
		return fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(dataKey(snapshotID))); err != nil && err != badger.ErrKeyNotFound {
			return fmt.Errorf("deleting data: %w", err)
		}
		if err := txn.Delete([]byte(metaKey(snapshotID))); err != nil && err != badger.ErrKeyNotFound {
			return fmt.Errorf("deleting metadata: %w", err)
		}

		item, err := txn.Get([]byte(keyLatest))
		if err == nil {
			var currentLatest string
			_ = item.Value(func(val []byte) error {
				currentLatest = string(val)
				return nil
			})
			if currentLatest == snapshotID {
				if err := txn.Delete([]byte(keyLatest)); err != nil && err != badger.ErrKeyNotFound {
					return fmt.Errorf("deleting latest pointer: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("classifier snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

// loadByID reads, verifies, decompresses, and imports one snapshot.
func (m *SnapshotManager) loadByID(snapshotID string) (*intent.Classifier, *SnapshotMetadata, error) {
	var compressedData, metaJSON []byte
	err := m.db.View(func(txn *badger.Txn) error {
		dataItem, err := txn.Get([]byte(dataKey(snapshotID)))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("snapshot %s: %w", snapshotID, ErrSnapshotNotFound)
		}
		if err != nil {
			return fmt.Errorf("reading data for %s: %w", snapshotID, err)
		}
		compressedData, err = dataItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying data for %s: %w", snapshotID, err)
		}

		metaItem, err := txn.Get([]byte(metaKey(snapshotID)))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("snapshot %s: %w", snapshotID, ErrSnapshotNotFound)
		}
		if err != nil {
			return fmt.Errorf("reading metadata for %s: %w", snapshotID, err)
		}
		metaJSON, err = metaItem.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying metadata for %s: %w", snapshotID, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if actual := hashBytes(compressedData); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, nil, fmt.Errorf("integrity check failed for %s: expected hash %s, got %s",
			snapshotID, meta.ContentHash, actual)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", snapshotID, err)
	}
	defer gr.Close()

	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading decompressed data for %s: %w", snapshotID, err)
	}

	c := intent.NewClassifier()
	if err := c.Import(jsonData); err != nil {
		return nil, nil, fmt.Errorf("importing classifier for %s: %w", snapshotID, err)
	}
	return c, &meta, nil
}

func dataKey(snapshotID string) string { return keyPrefixSnap + snapshotID + keySuffixData }

func metaKey(snapshotID string) string { return keyPrefixSnap + snapshotID + keySuffixMeta }

// isMetaKey reports whether the key ends with the metadata suffix.
func isMetaKey(key string) bool {
	return len(key) > len(keySuffixMeta) && key[len(key)-len(keySuffixMeta):] == keySuffixMeta
}

// hashString returns the hex-encoded SHA256 hash of a string.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// hashBytes returns the hex-encoded SHA256 hash of a byte slice.
func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
