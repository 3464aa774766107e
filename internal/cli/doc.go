// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the command line and runs ragchat's commands.
//
// # Key Types
//
//   - Command: the available commands
//   - Args: parsed global and command-specific flags
//   - App: the streaming core (store, stream consumer, loader) shared by
//     the tui, ask and chat commands
//
// # Usage
//
//	cmd, args := cli.Parse()
//	os.Exit(cli.Execute(cmd, args))
//
// # Commands Overview
//
// Conversation commands stream through the same store and stream consumer
// as the TUI:
//   - tui (default): full-screen chat
//   - ask: one question, reply streamed or rendered as Markdown
//   - chat: line-mode REPL
//
// Catalog and storage commands call the backend directly:
//   - history, show, delete, export
//   - models, collections, upload, templates
//   - status, config, version
//
// Every command accepts --json. Errors map to distinct exit codes; see
// GetExitCode.
package cli
