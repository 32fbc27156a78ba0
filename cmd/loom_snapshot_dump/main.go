// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// loom_snapshot_dump inspects the Loom classifier snapshot store.
//
// Snapshots persist the intent classifier's aggregated counts in BadgerDB
// between service restarts. This tool opens the store read-only and prints
// a human-readable summary: snapshot IDs, labels, creation times, document
// and vocabulary counts, and whether each payload still matches its
// recorded content hash. With --verbose it also decompresses each payload
// and prints the per-label training counts.
//
// Usage:
//
//	loom_snapshot_dump [--path /path/to/snapshot/store] [--verbose]
//
// If --path is not given, reads LOOM_SNAPSHOT_DIR from the environment,
// falling back to ~/.aleutian/loom/snapshots/.
//
// Exit codes:
//
//	0 — success (including "empty store" which prints a message and exits 0)
//	1 — error opening or reading the database
package main

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/Loom/services/loom/intent"
	"github.com/AleutianAI/Loom/services/loom/store"
)

// Key layout must match snapshot.go exactly.
const (
	snapKeyPrefix = "intent:snap:"
	snapKeyLatest = snapKeyPrefix + "latest"
	dataSuffix    = ":data"
	metaSuffix    = ":meta"
)

func main() {
	pathFlag := flag.String("path", "", "Path to snapshot BadgerDB directory (overrides LOOM_SNAPSHOT_DIR env var)")
	verbose := flag.Bool("verbose", false, "Decompress payloads and print per-label training counts")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("LOOM_SNAPSHOT_DIR")
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatalf("cannot resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".aleutian", "loom", "snapshots")
	}

	fmt.Printf("Snapshot store path: %s\n", dbPath)

	// Check existence before trying to open — gives a cleaner error message
	// than BadgerDB's "no such file or directory" buried in a long error.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Store directory does not exist. No classifier snapshots have been saved yet.")
		os.Exit(0)
	}

	// Open read-only; the running service may hold the write lock.
	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil). // suppress BadgerDB internal logs
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	type entry struct {
		meta      store.SnapshotMetadata
		data      []byte
		hashOK    bool
		decodeErr error
	}

	var (
		latest    string
		entries   []entry
		dataByID  = make(map[string][]byte)
		metaSeen  = make(map[string]bool)
		parseErrs int
	)

	err = db.View(func(txn *dgbadger.Txn) error {
		iopts := dgbadger.DefaultIteratorOptions
		iopts.PrefetchValues = true
		it := txn.NewIterator(iopts)
		defer it.Close()

		prefix := []byte(snapKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())

			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("copy value for %s: %w", key, err)
			}

			switch {
			case key == snapKeyLatest:
				latest = string(raw)
			case strings.HasSuffix(key, dataSuffix):
				id := strings.TrimSuffix(strings.TrimPrefix(key, snapKeyPrefix), dataSuffix)
				dataByID[id] = raw
			case strings.HasSuffix(key, metaSuffix):
				var e entry
				if err := json.Unmarshal(raw, &e.meta); err != nil {
					parseErrs++
					fmt.Fprintf(os.Stderr, "warning: corrupt metadata at %s: %v\n", key, err)
					continue
				}
				metaSeen[e.meta.SnapshotID] = true
				entries = append(entries, e)
			}
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	for i := range entries {
		entries[i].data = dataByID[entries[i].meta.SnapshotID]
	}

	if len(entries) == 0 && latest == "" {
		fmt.Println("\nNo snapshots found.")
		fmt.Println("Save one with Engine.SaveSnapshot, or train the classifier and let the")
		fmt.Println("service's periodic snapshot job run.")
		os.Exit(0)
	}

	// Verify content hashes now that payloads are attached.
	for i := range entries {
		e := &entries[i]
		if e.data == nil {
			continue
		}
		h := sha256.Sum256(e.data)
		e.hashOK = e.meta.ContentHash == "" || e.meta.ContentHash == hex.EncodeToString(h[:])
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].meta.CreatedAtMilli != entries[j].meta.CreatedAtMilli {
			return entries[i].meta.CreatedAtMilli > entries[j].meta.CreatedAtMilli
		}
		return entries[i].meta.SnapshotID < entries[j].meta.SnapshotID
	})

	fmt.Printf("\nFound %d snapshot%s (newest first):\n", len(entries), plural(len(entries), "", "s"))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		m := e.meta
		created := time.UnixMilli(m.CreatedAtMilli)
		age := time.Since(created).Round(time.Second)

		marker := ""
		if m.SnapshotID == latest {
			marker = "  ← latest"
		}

		fmt.Printf("\n[%d] Snapshot:    %s%s\n", i+1, m.SnapshotID, marker)
		if m.Label != "" {
			fmt.Printf("    Label:       %s\n", m.Label)
		}
		fmt.Printf("    Created:     %s (%s ago)\n", created.Format("2006-01-02 15:04:05 MST"), age)
		fmt.Printf("    Documents:   %d across corpus hash %s\n", m.DocCount, m.CorpusHash)
		fmt.Printf("    Vocabulary:  %d words\n", m.VocabSize)
		fmt.Printf("    Payload:     %s, schema v%s\n", formatBytes(int(m.CompressedSize)), m.SchemaVersion)

		switch {
		case e.data == nil:
			fmt.Printf("    Integrity:   MISSING PAYLOAD (metadata without data record)\n")
		case !e.hashOK:
			fmt.Printf("    Integrity:   HASH MISMATCH (payload was modified after save)\n")
		default:
			fmt.Printf("    Integrity:   ok\n")
		}

		if !*verbose || e.data == nil || !e.hashOK {
			continue
		}

		st, err := decodeState(e.data)
		if err != nil {
			fmt.Printf("    DECODE ERROR: %v\n", err)
			continue
		}
		printLabelTable(st)
	}

	// Payloads whose metadata record is gone are invisible to List and
	// LoadLatest; surface them so an operator can clean up.
	var orphans []string
	for id := range dataByID {
		if !metaSeen[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		fmt.Printf("\nwarning: payload %s (%s) has no metadata record\n", id, formatBytes(len(dataByID[id])))
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d snapshot%s, %d orphaned payload%s, %d corrupt metadata record%s\n",
		len(entries), plural(len(entries), "", "s"),
		len(orphans), plural(len(orphans), "", "s"),
		parseErrs, plural(parseErrs, "", "s"),
	)
}

// decodeState gunzips a snapshot payload and parses the classifier state.
func decodeState(data []byte) (*intent.SerializableState, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	defer gr.Close()

	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed: %w", err)
	}
	var st intent.SerializableState
	if err := json.Unmarshal(jsonData, &st); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return &st, nil
}

// printLabelTable prints per-label document and word counts with a short
// sample of the most frequent words.
func printLabelTable(st *intent.SerializableState) {
	// Determine column width from longest label name.
	maxNameLen := 0
	for _, sl := range st.Labels {
		if len(sl.Label) > maxNameLen {
			maxNameLen = len(sl.Label)
		}
	}
	colWidth := maxNameLen + 2

	fmt.Printf("\n    %-*s  %5s  %6s  %s\n", colWidth, "Intent", "Docs", "Words", "Top words")
	fmt.Printf("    %s  %s  %s  %s\n",
		strings.Repeat("─", colWidth),
		strings.Repeat("─", 5),
		strings.Repeat("─", 6),
		strings.Repeat("─", 40),
	)

	for _, sl := range st.Labels {
		fmt.Printf("    %-*s  %5d  %6d  %s\n",
			colWidth, sl.Label, sl.DocCount, len(sl.Words), topWords(sl.Words, 4))
	}
}

// topWords returns the n highest-count words as "word:count" pairs.
func topWords(words []intent.SerializableCount, n int) string {
	sorted := make([]intent.SerializableCount, len(words))
	copy(sorted, words)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].Word < sorted[j].Word
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%s:%d", sorted[i].Word, sorted[i].Count)
	}
	suffix := ""
	if len(sorted) > n {
		suffix = " ..."
	}
	return strings.Join(parts, ", ") + suffix
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "loom_snapshot_dump: "+format+"\n", args...)
	os.Exit(1)
}
