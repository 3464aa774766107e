// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides helpers shared across ragchat packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// Text:
//   - NormalizePrompt: NFC normalization and whitespace cleanup of user input
//   - TruncateWidth, PadRight: display-width aware layout for terminal tables
//   - OneLine: collapse a message to a single line for previews
package util
