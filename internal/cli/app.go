// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring of the streaming core shared by tui, ask and chat.
package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/VINKAS7/ragchat/internal/backend"
	"github.com/VINKAS7/ragchat/internal/bootstrap"
	"github.com/VINKAS7/ragchat/internal/config"
	"github.com/VINKAS7/ragchat/internal/conversation"
	"github.com/VINKAS7/ragchat/internal/logging"
	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/notify"
	"github.com/VINKAS7/ragchat/internal/storage"
	"github.com/VINKAS7/ragchat/internal/stream"
	"github.com/VINKAS7/ragchat/internal/telemetry"
)

// transitionBuffer bounds undelivered session transitions. Older ones are
// dropped when the reader falls behind.
const transitionBuffer = 64

// =============================================================================
// CONFIG AND CLIENT
// =============================================================================

// loadConfig loads the configuration and applies command-line overrides.
func loadConfig(args Args) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if args.URL != "" {
		cfg.Backend.URL = args.URL
	}
	if args.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newClient creates a backend client for cfg.
func newClient(cfg *config.Config, logger *slog.Logger) *backend.Client {
	client := backend.NewClientWithConfig(cfg.Backend.ClientConfig())
	if logger != nil {
		client.SetLogger(logger)
	}
	return client
}

// openLogger opens the rotating log file. A failure falls back to a
// discarding logger so the command still runs.
func openLogger(cfg *config.Config) (*slog.Logger, func()) {
	l, err := logging.FromConfig(cfg)
	if err != nil {
		printNotice("logging disabled: %v", err)
		return logging.Discard(), func() {}
	}
	return l.Logger, func() { _ = l.Close() }
}

// selectionFor resolves the model and collection from flags, then defaults.
func selectionFor(cfg *config.Config, args Args) model.Selection {
	sel := model.Selection{Model: cfg.Defaults.Model, Collection: cfg.Defaults.Collection}
	if args.Model != "" {
		sel.Model = args.Model
	}
	if args.Collection != "" {
		sel.Collection = args.Collection
	}
	return sel
}

// openArchive opens the local archive when enabled. Errors disable it.
func openArchive(ctx context.Context, cfg *config.Config, logger *slog.Logger) *storage.Archive {
	if !cfg.Storage.Enabled {
		return nil
	}
	path, err := cfg.ArchivePath()
	if err != nil {
		logger.Warn("ARCHIVE_DISABLED", "error", err)
		return nil
	}
	archive, err := storage.Open(ctx, path)
	if err != nil {
		logger.Warn("ARCHIVE_DISABLED", "path", path, "error", err)
		return nil
	}
	return archive
}

// =============================================================================
// APP
// =============================================================================

// App owns the long-lived components of an interactive run.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Client    *backend.Client
	Telemetry *telemetry.Provider
	Hub       *notify.Hub
	Store     *conversation.Store
	Consumer  *stream.Consumer
	Loader    *bootstrap.Loader

	// Archive is nil when the local archive is disabled or failed to open.
	Archive *storage.Archive

	// Transitions receives every session transition, dropping on overflow.
	Transitions chan stream.Transition

	closers []func()
}

// NewApp wires config, logging, telemetry, the backend client, the store,
// the stream consumer, the bootstrap loader and the archive.
func NewApp(ctx context.Context, args Args) (*App, error) {
	cfg, err := loadConfig(args)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg}
	var closeLog func()
	a.Logger, closeLog = openLogger(cfg)
	a.onClose(closeLog)

	a.Logger.Info("APP_START", "version", Version, "backend", cfg.Backend.URL)

	telemetryDir, err := cfg.TelemetryDir()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Telemetry, err = telemetry.Setup(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Dir:      telemetryDir,
		Interval: time.Duration(cfg.Telemetry.IntervalSecs) * time.Second,
		Version:  Version,
	})
	if err != nil {
		a.Logger.Warn("TELEMETRY_DISABLED", "error", err)
		a.Telemetry = telemetry.Noop()
	}
	a.onClose(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Telemetry.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("TELEMETRY_SHUTDOWN_FAILED", "error", err)
		}
	})

	a.Client = newClient(cfg, a.Logger)

	a.Hub = notify.NewHub(a.Logger)
	a.onClose(a.Hub.Close)

	a.Store = conversation.NewStore(conversation.WithLogger(a.Logger))
	a.onClose(a.Store.Close)

	a.Transitions = make(chan stream.Transition, transitionBuffer)
	a.Consumer = stream.New(a.Store, a.Client, stream.Options{
		Logger:   a.Logger,
		Notifier: a.Hub,
		Metrics:  a.Telemetry.Metrics(),
		Tracer:   a.Telemetry.Tracer(),
		OnTransition: func(tr stream.Transition) {
			select {
			case a.Transitions <- tr:
			default:
			}
		},
	})
	a.onClose(a.Consumer.Close)

	// Sessions for a conversation the user left are abandoned.
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	updates, unsubscribe := a.Store.Subscribe()
	go a.Consumer.Watch(watchCtx, updates)
	a.onClose(func() {
		cancelWatch()
		unsubscribe()
	})

	a.Loader = bootstrap.NewLoader(a.Client, a.Store, a.Consumer,
		bootstrap.WithNotifier(a.Hub),
		bootstrap.WithLogger(a.Logger),
	)

	a.Archive = openArchive(ctx, cfg, a.Logger)
	if a.Archive != nil {
		archive := a.Archive
		a.onClose(func() { _ = archive.Close() })
	}

	return a, nil
}

// onClose registers fn to run on Close, in reverse order.
func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close stops every session and releases resources.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Selection resolves the initial model and collection for args.
func (a *App) Selection(args Args) model.Selection {
	return selectionFor(a.Config, args)
}
