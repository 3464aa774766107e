// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations to Markdown, HTML and JSON files.
//
// Model replies are Markdown already; the HTML exporter renders them with
// goldmark while user prompts are escaped as plain text. Fenced code blocks
// are highlighted with chroma using inline colors.
//
// # Usage
//
//	exporter, err := export.ForFormat("html", opts)
//	path, err := export.ExportToFile(conv, exporter, opts)
package export
