// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/VINKAS7/ragchat/internal/ui/styles"
	"github.com/VINKAS7/ragchat/internal/util"
)

// NoResultsText is shown when the search matches nothing.
const NoResultsText = "No results"

// Item is one selectable picker row.
type Item struct {
	Label string
	Value string
}

// Items wraps plain strings as items whose label is their value.
func Items(values []string) []Item {
	items := make([]Item, len(values))
	for i, v := range values {
		items[i] = Item{Label: v, Value: v}
	}
	return items
}

// PickerResult is what a key press did to the picker.
type PickerResult int

const (
	// PickerNone means the picker consumed the key and stays open.
	PickerNone PickerResult = iota
	// PickerChosen means Enter picked the highlighted item.
	PickerChosen
	// PickerClosed means the picker was dismissed.
	PickerClosed
)

// =============================================================================
// PICKER
// =============================================================================

// Picker is a searchable single-choice list.
type Picker struct {
	Title string

	// EmptyText is shown when there are no items at all.
	EmptyText string

	// Locked pickers show their items but refuse a choice.
	Locked bool

	// Loading is shown instead of EmptyText while items are fetched.
	Loading bool

	items    []Item
	filtered []Item
	query    string
	cursor   int
	maxRows  int
}

// NewPicker creates an empty picker.
func NewPicker(title, emptyText string) Picker {
	return Picker{Title: title, EmptyText: emptyText, maxRows: 10}
}

// SetItems replaces the item list and reapplies the current query.
func (p *Picker) SetItems(items []Item) {
	p.items = items
	p.Loading = false
	p.refilter()
}

// Items returns every item regardless of the query.
func (p *Picker) Items() []Item {
	return p.items
}

// Values returns the value of every item.
func (p *Picker) Values() []string {
	out := make([]string, len(p.items))
	for i, item := range p.items {
		out[i] = item.Value
	}
	return out
}

// SetQuery sets the search text.
func (p *Picker) SetQuery(q string) {
	p.query = q
	p.refilter()
}

// Query returns the search text.
func (p *Picker) Query() string {
	return p.query
}

// Reset clears the query and cursor.
func (p *Picker) Reset() {
	p.SetQuery("")
}

// Visible returns the items matching the query.
func (p *Picker) Visible() []Item {
	return p.filtered
}

// Move shifts the cursor, clamped to the visible items.
func (p *Picker) Move(delta int) {
	p.cursor += delta
	p.clamp()
}

// Selected returns the highlighted item.
func (p *Picker) Selected() (Item, bool) {
	if len(p.filtered) == 0 {
		return Item{}, false
	}
	return p.filtered[p.cursor], true
}

// Status returns the text shown instead of rows, or "" when rows exist.
func (p *Picker) Status() string {
	switch {
	case p.Loading:
		return "Loading..."
	case len(p.items) == 0:
		return p.EmptyText
	case len(p.filtered) == 0:
		return NoResultsText
	default:
		return ""
	}
}

// HandleKey applies a key press.
func (p *Picker) HandleKey(msg tea.KeyMsg) PickerResult {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		return PickerClosed
	case tea.KeyEnter:
		if _, ok := p.Selected(); ok {
			return PickerChosen
		}
		return PickerNone
	case tea.KeyUp, tea.KeyCtrlP:
		p.Move(-1)
	case tea.KeyDown, tea.KeyCtrlN, tea.KeyTab:
		p.Move(1)
	case tea.KeyPgUp:
		p.Move(-p.maxRows)
	case tea.KeyPgDown:
		p.Move(p.maxRows)
	case tea.KeyBackspace:
		if r := []rune(p.query); len(r) > 0 {
			p.SetQuery(string(r[:len(r)-1]))
		}
	case tea.KeyCtrlU:
		p.SetQuery("")
	case tea.KeySpace:
		p.SetQuery(p.query + " ")
	case tea.KeyRunes:
		p.SetQuery(p.query + string(msg.Runes))
	}
	return PickerNone
}

func (p *Picker) refilter() {
	p.filtered = Filter(p.query, p.items)
	p.clamp()
}

func (p *Picker) clamp() {
	if p.cursor >= len(p.filtered) {
		p.cursor = len(p.filtered) - 1
	}
	if p.cursor < 0 {
		p.cursor = 0
	}
}

// =============================================================================
// RENDERING
// =============================================================================

// View renders the picker box.
func (p *Picker) View(theme *styles.Theme, width int) string {
	if width < 30 {
		width = 30
	}
	inner := width - 4

	var b strings.Builder
	title := p.Title
	if p.Locked {
		title += " (locked)"
	}
	b.WriteString(theme.PickerTitle.Render(title))
	b.WriteString("\n")
	b.WriteString(theme.InputPrompt.Render("> ") + p.query)
	b.WriteString("\n")

	if status := p.Status(); status != "" {
		b.WriteString(theme.PickerEmpty.Render(status))
		return theme.PickerBox.Width(width).Render(b.String())
	}

	start := 0
	if p.cursor >= p.maxRows {
		start = p.cursor - p.maxRows + 1
	}
	end := start + p.maxRows
	if end > len(p.filtered) {
		end = len(p.filtered)
	}

	for i := start; i < end; i++ {
		label := util.TruncateWidth(p.filtered[i].Label, inner-2)
		if i == p.cursor {
			b.WriteString(theme.PickerSelected.Render("> " + label))
		} else {
			b.WriteString(theme.PickerItem.Render("  " + highlight(theme, p.query, label)))
		}
		if i < end-1 {
			b.WriteString("\n")
		}
	}

	if hidden := len(p.filtered) - (end - start); hidden > 0 {
		b.WriteString("\n")
		b.WriteString(theme.PickerEmpty.Render(fmt.Sprintf("... %d more", hidden)))
	}

	return theme.PickerBox.Width(width).Render(b.String())
}

func highlight(theme *styles.Theme, query, label string) string {
	positions := HighlightMatch(query, label)
	if len(positions) == 0 {
		return label
	}
	runes := []rune(label)
	first, last := positions[0], positions[len(positions)-1]+1
	if last > len(runes) {
		return label
	}
	match := lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	return string(runes[:first]) + match.Render(string(runes[first:last])) + string(runes[last:])
}
