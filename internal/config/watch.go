// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long the file must be quiet before a reload.
const DefaultWatchDebounce = 250 * time.Millisecond

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// Watcher reloads the config file when it changes on disk and delivers each
// successfully loaded config on Updates. A file that fails to load or
// validate is logged and skipped; the previous config stays in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
	updates  chan *Config

	mu      sync.Mutex
	pending time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Watch starts watching path. The parent directory is watched rather than
// the file so editors that replace the file by rename are still seen.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		path:     filepath.Clean(path),
		watcher:  fsw,
		debounce: debounce,
		logger:   logger,
		updates:  make(chan *Config, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

// Updates delivers reloaded configs. Only the newest undelivered config is
// kept. The channel is closed when the watcher stops.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Close stops watching and waits for the goroutine to exit.
func (w *Watcher) Close() error {
	w.cancel()
	<-w.done
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.updates)
	defer w.watcher.Close()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.pending = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("CONFIG_WATCH_ERROR", "error", err)

		case now := <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && now.Sub(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()
			if due {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		w.logger.Warn("CONFIG_RELOAD_FAILED", "path", w.path, "error", err)
		return
	}
	w.logger.Info("CONFIG_RELOADED", "path", w.path)

	// Latest wins: drop an undelivered older config.
	select {
	case <-w.updates:
	default:
	}
	w.updates <- cfg
}
