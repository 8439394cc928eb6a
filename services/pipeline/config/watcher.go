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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives the result of re-reading the config file.
//
// Exactly one of cfg and err is non-nil. On error the previous settings
// should stay in effect.
type ReloadFunc func(cfg *Config, err error)

// Watcher re-loads the config file whenever it changes on disk.
//
// # Description
//
// Watches the file's parent directory rather than the file itself, so
// editors that save through rename-and-replace are still observed. Bursts
// of events for the file are coalesced into one reload after the debounce
// window.
//
// # Thread Safety
//
// Start and Stop may be called from any goroutine. The ReloadFunc runs on
// the watcher's goroutine, one call at a time.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload ReloadFunc
	debounce time.Duration

	done     chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	watching bool
}

// NewWatcher creates a Watcher for the config file at path.
//
// # Inputs
//
//   - path: Config file to watch. Need not exist yet.
//   - onReload: Called after each debounced change. Must not be nil.
//   - debounce: Quiet period before reloading. Zero means DefaultDebounce.
//
// # Outputs
//
//   - *Watcher: Call Start to begin and Stop to release the OS watch.
//   - error: Non-nil if the OS watcher could not be created.
func NewWatcher(path string, onReload ReloadFunc, debounce time.Duration) (*Watcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("config watcher: nil reload func")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		onReload: onReload,
		debounce: debounce,
		done:     make(chan struct{}),
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching. It returns immediately; reloads happen in the
// background until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watching = true

	go w.loop(ctx)
	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			// A file moved away mid-save reappears shortly; keep the
			// current settings until it does.
			if _, err := os.Stat(w.path); errors.Is(err, os.ErrNotExist) {
				continue
			}
			w.onReload(Load(w.path))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.onReload(nil, fmt.Errorf("config watcher: %w", err))
		}
	}
}
