// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tui.go - Full-screen chat interface.
package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/VINKAS7/ragchat/internal/config"
	"github.com/VINKAS7/ragchat/internal/ui/chat"
	"github.com/VINKAS7/ragchat/internal/ui/styles"
)

// HandleTUI runs the bubbletea chat program until the user quits.
func HandleTUI(args Args) error {
	if !IsTTY() || !IsStdoutTTY() {
		return NewValidationErrorWithExample("terminal", "", "the TUI needs an interactive terminal",
			`ragchat ask "question" | ragchat chat`)
	}

	ctx := context.Background()
	app, err := NewApp(ctx, args)
	if err != nil {
		return err
	}
	defer app.Close()

	notifications, unsubscribe := app.Hub.Subscribe()
	defer unsubscribe()

	// Theme and display edits to config.toml apply without a restart.
	var configUpdates <-chan *config.Config
	if path, err := config.ConfigPathTOML(); err == nil && config.EnsureConfigDir() == nil {
		watcher, err := config.Watch(ctx, path, config.DefaultWatchDebounce, app.Logger)
		if err != nil {
			app.Logger.Warn("CONFIG_WATCH_DISABLED", "error", err)
		} else {
			defer watcher.Close()
			configUpdates = watcher.Updates()
		}
	}

	deps := chat.Deps{
		Backend:       app.Client,
		Store:         app.Store,
		Streams:       app.Consumer,
		Loader:        app.Loader,
		Notifier:      app.Hub,
		Notifications: notifications,
		Transitions:   app.Transitions,
		ConfigUpdates: configUpdates,
		Logger:        app.Logger,
		Theme:         styles.NewThemeNamed(app.Config.UI.Theme),
		UI:            app.Config.UI,
		Selection:     app.Selection(args),
		ExportDir:     args.Output,
	}
	// A nil *storage.Archive must not become a non-nil interface.
	if app.Archive != nil {
		deps.Archive = app.Archive
	}

	m := chat.New(deps)
	defer m.Close()

	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}

	// Stop streams before the store closes under them.
	app.Consumer.CancelAll()
	app.Logger.Info("APP_EXIT")
	return nil
}
