// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/stream"
	"github.com/VINKAS7/ragchat/internal/ui/components"
	"github.com/VINKAS7/ragchat/internal/util"
)

// helpHeight is the number of rows the help panel takes.
const helpHeight = 8

// =============================================================================
// VIEW
// =============================================================================

// View renders the screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}

	body := m.viewport.View()
	if m.picker != pickerNone {
		body = lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center,
			m.pickerFor(m.picker).View(m.theme, min(m.width-4, 60)))
	}
	if toasts := components.RenderToastStack(m.theme, m.toasts.Toasts(), m.width); toasts != "" {
		body = overlayBottom(body, toasts)
	}

	parts := []string{m.renderHeader(), body, m.renderInput()}
	if m.showHelp {
		parts = append(parts, m.renderHelp())
	}
	parts = append(parts, m.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// overlayBottom replaces the last lines of body with overlay.
func overlayBottom(body, overlay string) string {
	bodyLines := strings.Split(body, "\n")
	overLines := strings.Split(overlay, "\n")
	if len(overLines) >= len(bodyLines) {
		return overlay
	}
	copy(bodyLines[len(bodyLines)-len(overLines):], overLines)
	return strings.Join(bodyLines, "\n")
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	t := m.theme

	label := func(name, value string, placeholder bool) string {
		style := t.Bound
		if placeholder {
			style = t.Placeholder
		} else if m.selectionLocked(value) {
			style = t.Locked
		}
		return t.HeaderLabel.Render(name+": ") + style.Render(value)
	}

	parts := []string{
		t.HeaderBrand.Render("ragchat"),
		label("Model", m.selection.ModelLabel(), model.IsPlaceholder(m.selection.Model)),
		label("Collection", m.selection.CollectionLabel(), model.IsPlaceholder(m.selection.Collection)),
	}
	if id := m.state.ConversationID; id != "" {
		parts = append(parts, t.HeaderLabel.Render(m.conversationTitle()))
	}

	return t.Header.Width(m.width).MaxWidth(m.width).MaxHeight(1).Render(strings.Join(parts, "  ")) + "\n"
}

func (m Model) conversationTitle() string {
	id := m.state.ConversationID
	for _, h := range m.history {
		if h.ID == id && strings.TrimSpace(h.Name) != "" {
			return h.Name
		}
	}
	if prompt, ok := firstPrompt(m.state.Messages); ok {
		return model.TitleFrom(prompt)
	}
	return util.TruncateRunes(id, 12)
}

func firstPrompt(msgs []model.Message) (string, bool) {
	for _, msg := range msgs {
		if msg.IsUser() {
			return msg.Text, true
		}
	}
	return "", false
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

func (m Model) renderTranscript() string {
	if len(m.state.Messages) == 0 {
		return m.renderWelcome()
	}

	width := m.contentWidth()
	last := len(m.state.Messages) - 1

	var b strings.Builder
	for i, msg := range m.state.Messages {
		open := i == last && m.state.TailOpen
		b.WriteString(m.renderMessage(msg, open, width))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderMessage(msg model.Message, open bool, width int) string {
	t := m.theme
	label := t.RoleLabel.Render(msg.Role.DisplayName())

	if msg.IsUser() {
		body := t.UserBubble.Width(width).Render(msg.Text)
		return lipgloss.JoinVertical(lipgloss.Left, "    "+label, body)
	}

	var body string
	switch {
	case open && msg.Text == "":
		body = t.Thinking.Render(m.spinner.View() + " Thinking...")
	case open:
		// Partial Markdown is shown raw until the reply closes.
		body = lipgloss.NewStyle().Width(width - 2).Render(msg.Text + " " + m.spinner.View())
	case strings.HasPrefix(msg.Text, stream.ErrorText("")):
		body = t.ErrorText.Width(width - 2).Render(msg.Text)
	case m.deps.UI.Markdown:
		body = m.renderer.Render(msg.Text)
	default:
		body = lipgloss.NewStyle().Width(width - 2).Render(msg.Text)
	}
	return lipgloss.JoinVertical(lipgloss.Left, label, t.ModelBubble.Render(body))
}

func (m Model) renderWelcome() string {
	t := m.theme
	lines := []string{
		t.HeaderBrand.Render("Chat with your document collections."),
		"",
	}
	if missing := m.selection.Missing(); len(missing) > 0 {
		lines = append(lines, t.Placeholder.Render("Pick a "+strings.Join(missing, " and ")+" to begin (F2 / F3)."))
	} else {
		lines = append(lines, t.Bound.Render("Ready. Type a prompt and press Enter."))
	}
	lines = append(lines, t.ShortcutDesc.Render("F4 opens a previous conversation. /help lists commands."))
	return lipgloss.NewStyle().Padding(1, 2).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// INPUT, HELP AND STATUS
// =============================================================================

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

func (m Model) renderHelp() string {
	t := m.theme
	var keys []string
	for _, group := range m.keyMap.FullHelp() {
		var row []string
		for _, b := range group {
			h := b.Help()
			row = append(row, t.ShortcutKey.Render(h.Key)+" "+t.ShortcutDesc.Render(h.Desc))
		}
		keys = append(keys, strings.Join(row, "  "))
	}

	var cmds []string
	for _, c := range Commands {
		cmds = append(cmds, t.ShortcutKey.Render(c.Name))
	}
	keys = append(keys, t.ShortcutDesc.Render("Commands: ")+strings.Join(cmds, " "))

	out := strings.Join(keys, "\n")
	return lipgloss.NewStyle().Width(m.width).MaxHeight(helpHeight).Padding(0, 1).Render(out)
}

func (m Model) renderStatusBar() string {
	t := m.theme

	left := m.statusLabel()
	if m.streamState() == stream.StateIdle && m.state.ConversationID != "" {
		left += fmt.Sprintf("  %d messages", len(m.state.Messages))
	}

	var hints []string
	for _, b := range m.keyMap.ShortHelp() {
		h := b.Help()
		hints = append(hints, t.ShortcutKey.Render(h.Key)+" "+t.ShortcutDesc.Render(h.Desc))
	}
	right := strings.Join(hints, "  ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return t.StatusBar.Width(m.width).Render(util.TruncateWidth(left, max(m.width-2, 1)))
	}
	return t.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
