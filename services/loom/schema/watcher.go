// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var watcherTracer = otel.Tracer("aleutian.loom.schema")

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before reloading. Editors produce bursts of writes and renames.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a schema file when it changes on disk.
//
// Description:
//
//	Watches the schema file's parent directory (editors commonly replace
//	files via rename, which drops a watch on the file itself), debounces
//	event bursts, re-parses the schema, and invokes the OnChange callback
//	with the new document. Parse failures are logged and skipped; the
//	previous schema stays active. The vocabulary's fuzzy index is
//	immutable, so consumers are expected to rebuild wholesale on change.
//
// Thread Safety: Start may be called once. Close is safe to call once
// after Start. The OnChange callback runs on the watcher goroutine.
type Watcher struct {
	path     string
	onChange func(*UIKitSchema)
	debounce time.Duration
	logger   *slog.Logger

	fsw     *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides the default debounce interval.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger. Nil keeps slog.Default().
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher for one schema file.
//
// Inputs:
//
//	path - Schema file to watch. Must exist and parse at creation time.
//	onChange - Invoked with each successfully reloaded schema. Must not be nil.
//	opts - Optional settings.
//
// Outputs:
//
//	*Watcher - The watcher, not yet started.
//	error - Non-nil if the path does not parse or the notifier fails.
func NewWatcher(path string, onChange func(*UIKitSchema), opts ...WatcherOption) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("schema.NewWatcher: onChange must not be nil")
	}
	if _, err := Load(path); err != nil {
		return nil, fmt.Errorf("schema.NewWatcher: initial load: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("schema.NewWatcher: creating notifier: %w", err)
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. The context bounds the watch loop's lifetime;
// cancelling it stops the loop just like Close.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("schema.Watcher: already started")
	}

	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("schema.Watcher: watching %s: %w", dir, err)
	}
	w.started = true

	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("schema watcher started",
		slog.String("path", w.path),
		slog.Duration("debounce", w.debounce),
	)
	return nil
}

// Close stops the watcher and releases the filesystem notifier.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// loop drains filesystem events, debounces, and reloads.
func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("schema watcher error", slog.String("error", err.Error()))
		case <-timerC:
			w.reload(ctx)
		}
	}
}

// reload parses the schema file and invokes the callback on success.
func (w *Watcher) reload(ctx context.Context) {
	_, span := watcherTracer.Start(ctx, "schema.Watcher.reload")
	defer span.End()
	span.SetAttributes(attribute.String("path", w.path))

	s, err := Load(w.path)
	if err != nil {
		span.RecordError(err)
		w.logger.Warn("schema reload failed, keeping previous vocabulary",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}

	w.logger.Info("schema reloaded",
		slog.String("kit", s.Name),
		slog.Int("components", len(s.Components)),
	)
	w.onChange(s)
}
