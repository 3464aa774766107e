// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// MarkdownRenderer renders model replies with glamour, caching by text.
// Finished replies never change, so each is rendered once per width.
type MarkdownRenderer struct {
	mu    sync.Mutex
	style string
	width int
	term  *glamour.TermRenderer
	cache map[string]string
}

// NewMarkdownRenderer creates a renderer for a glamour standard style
// ("dark", "light", "notty").
func NewMarkdownRenderer(style string) *MarkdownRenderer {
	return &MarkdownRenderer{style: style, width: 80, cache: make(map[string]string)}
}

// SetWidth changes the wrap width and drops the cache when it differs.
func (r *MarkdownRenderer) SetWidth(width int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if width == r.width {
		return
	}
	r.width = width
	r.term = nil
	r.cache = make(map[string]string)
}

// Render returns text as styled terminal output. On a renderer error the
// text is returned unchanged.
func (r *MarkdownRenderer) Render(text string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if out, ok := r.cache[text]; ok {
		return out
	}
	if r.term == nil {
		term, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(r.width),
		)
		if err != nil {
			return text
		}
		r.term = term
	}

	out, err := r.term.Render(text)
	if err != nil {
		return text
	}
	out = strings.Trim(out, "\n")
	r.cache[text] = out
	return out
}
