// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/notify"
	"github.com/VINKAS7/ragchat/internal/stream"
	"github.com/VINKAS7/ragchat/internal/ui/components"
	"github.com/VINKAS7/ragchat/internal/util"
)

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keyMap.Quit) {
		return m.quit()
	}
	if m.picker != pickerNone {
		return m.handlePickerKey(msg)
	}

	switch {
	case key.Matches(msg, m.keyMap.Submit):
		return m.submit()

	case key.Matches(msg, m.keyMap.Cancel):
		if m.cancelStream() {
			return m, nil
		}
		if msg.Type == tea.KeyCtrlC {
			return m.quit()
		}
		m.input.Reset()
		return m, nil

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		return m.handleResize(tea.WindowSizeMsg{Width: m.width, Height: m.height})

	case key.Matches(msg, m.keyMap.NewConversation):
		return m.newConversation()

	case key.Matches(msg, m.keyMap.PickModel):
		return m.openPicker(pickerModel)

	case key.Matches(msg, m.keyMap.PickCollection):
		return m.openPicker(pickerCollection)

	case key.Matches(msg, m.keyMap.PickConversation):
		return m.openPicker(pickerHistory)

	case key.Matches(msg, m.keyMap.Copy):
		return m.copyLastReply()

	case key.Matches(msg, m.keyMap.DismissToast):
		m.toasts.Dismiss()
		return m, nil

	case key.Matches(msg, m.keyMap.Up):
		m.viewport.LineUp(1)
		return m, nil

	case key.Matches(msg, m.keyMap.Down):
		m.viewport.LineDown(1)
		return m, nil

	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.ViewDown()
		return m, nil

	case key.Matches(msg, m.keyMap.Home):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keyMap.End):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.Close()
	return m, tea.Quit
}

func (m *Model) cancelStream() bool {
	if !m.inFlight() {
		return false
	}
	return m.deps.Streams.Cancel(m.state.ConversationID)
}

// =============================================================================
// SUBMIT
// =============================================================================

// submit sends the prompt box. Slash commands are handled locally.
func (m Model) submit() (tea.Model, tea.Cmd) {
	raw := m.input.Value()
	if strings.HasPrefix(strings.TrimSpace(raw), "/") {
		m.input.Reset()
		return m.runCommand(strings.TrimSpace(raw))
	}

	prompt := util.NormalizePrompt(raw)
	if prompt == "" || !m.selection.Bound() {
		notify.Error(m.deps.Notifier, SubmitGuardMessage)
		return m, nil
	}
	if m.deps.Store == nil || m.deps.Streams == nil {
		return m, nil
	}

	snap := m.deps.Store.Snapshot()
	id := snap.ConversationID
	if id != "" && (m.loading == id || m.deps.Streams.Hydrating(id)) {
		notify.Info(m.deps.Notifier, LoadingGuardMessage)
		return m, nil
	}
	if id != "" && (snap.TailOpen || m.deps.Streams.InFlight(id)) {
		notify.Info(m.deps.Notifier, "Wait for the current response or press Esc to stop it.")
		return m, nil
	}
	if id == "" {
		id = model.NewConversationID()
		if err := m.deps.Store.Switch(id); err != nil {
			notify.Error(m.deps.Notifier, "Failed to start conversation: "+err.Error())
			return m, nil
		}
		m.logger.Info("CONVERSATION_CREATED", "conversation", id,
			"model", m.selection.Model, "collection", m.selection.Collection)
	}

	if err := m.deps.Store.Append(id, model.UserMessage(prompt)); err != nil {
		notify.Error(m.deps.Notifier, "Failed to send prompt: "+err.Error())
		return m, nil
	}
	m.input.Reset()
	m.state = m.deps.Store.Snapshot()
	m.refresh()

	m.deps.Streams.Reconcile(m.selection)
	return m, m.ensureSpinner()
}

// retry asks for a reply to an unanswered prompt, such as one whose
// request was stopped before the response opened.
func (m Model) retry() (tea.Model, tea.Cmd) {
	if m.deps.Store == nil || m.deps.Streams == nil {
		return m, nil
	}
	if _, pending := m.deps.Store.Snapshot().PendingPrompt(); !pending {
		notify.Info(m.deps.Notifier, "There is no unanswered prompt to retry.")
		return m, nil
	}
	if !m.selection.Bound() {
		notify.Error(m.deps.Notifier, SubmitGuardMessage)
		return m, nil
	}
	m.deps.Streams.Reconcile(m.selection)
	return m, m.ensureSpinner()
}

// newConversation leaves the current conversation. The next prompt
// creates a fresh id and unlocks the selection.
func (m Model) newConversation() (tea.Model, tea.Cmd) {
	if m.deps.Store == nil {
		return m, nil
	}
	if err := m.deps.Store.Switch(""); err != nil {
		notify.Error(m.deps.Notifier, err.Error())
		return m, nil
	}
	if m.deps.Streams != nil {
		m.deps.Streams.CancelExcept("")
	}
	m.loading = ""
	m.state = m.deps.Store.Snapshot()
	m.refresh()
	return m, textinput.Blink
}

// =============================================================================
// SELECTION
// =============================================================================

// selectionLocked reports whether field may no longer change. A
// conversation keeps the model and collection it was started with.
func (m Model) selectionLocked(value string) bool {
	return m.state.ConversationID != "" && !model.IsPlaceholder(value)
}

func (m *Model) setModel(name string) bool {
	if m.selectionLocked(m.selection.Model) && name != m.selection.Model {
		notify.Info(m.deps.Notifier, "The model is fixed for this conversation. Start a new one (Ctrl+N) to change it.")
		return false
	}
	m.selection.Model = name
	return true
}

func (m *Model) setCollection(name string) bool {
	if m.selectionLocked(m.selection.Collection) && name != m.selection.Collection {
		notify.Info(m.deps.Notifier, "The collection is fixed for this conversation. Start a new one (Ctrl+N) to change it.")
		return false
	}
	m.selection.Collection = name
	return true
}

// =============================================================================
// PICKERS
// =============================================================================

func (m *Model) pickerFor(kind pickerKind) *components.Picker {
	switch kind {
	case pickerModel:
		return &m.models
	case pickerCollection:
		return &m.collections
	case pickerHistory:
		return &m.histories
	case pickerTemplates:
		return &m.templates
	}
	return nil
}

func (m Model) openPicker(kind pickerKind) (tea.Model, tea.Cmd) {
	p := m.pickerFor(kind)
	if p == nil {
		return m, nil
	}
	p.Reset()
	m.picker = kind

	var cmd tea.Cmd
	switch kind {
	case pickerModel:
		m.models.Locked = m.selectionLocked(m.selection.Model)
		if m.deps.Backend != nil && len(m.models.Items()) == 0 {
			m.models.Loading = true
			cmd = loadModelsCmd(m.deps.Backend)
		}
	case pickerCollection:
		m.collections.Locked = m.selectionLocked(m.selection.Collection)
		if m.deps.Backend != nil && len(m.collections.Items()) == 0 {
			m.collections.Loading = true
			cmd = loadCollectionsCmd(m.deps.Backend)
		}
	case pickerHistory:
		if m.deps.Backend != nil {
			m.histories.Loading = len(m.histories.Items()) == 0
			cmd = loadHistoryCmd(m.deps.Backend)
		}
	case pickerTemplates:
		if m.deps.Backend != nil {
			m.templates.Loading = true
			cmd = loadTemplatesCmd(m.deps.Backend)
		}
	}
	return m, cmd
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	kind := m.picker
	p := m.pickerFor(kind)

	switch p.HandleKey(msg) {
	case components.PickerClosed:
		m.picker = pickerNone
		return m, nil
	case components.PickerChosen:
		item, _ := p.Selected()
		return m.choose(kind, item)
	}
	return m, nil
}

func (m Model) choose(kind pickerKind, item components.Item) (tea.Model, tea.Cmd) {
	switch kind {
	case pickerModel:
		if !m.setModel(item.Value) {
			return m, nil
		}
	case pickerCollection:
		if !m.setCollection(item.Value) {
			return m, nil
		}
	case pickerHistory:
		m.picker = pickerNone
		return m.openConversation(item.Value)
	case pickerTemplates:
		notify.Info(m.deps.Notifier, item.Label+": "+util.OneLine(item.Value))
	}
	m.picker = pickerNone
	m.refresh()
	return m, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// openConversation switches the store to id and hydrates it.
func (m Model) openConversation(id string) (tea.Model, tea.Cmd) {
	id = strings.TrimSpace(id)
	if id == "" || m.deps.Store == nil || m.deps.Loader == nil {
		return m, nil
	}
	if id == m.state.ConversationID && m.inFlight() {
		notify.Info(m.deps.Notifier, "This conversation is still streaming.")
		return m, nil
	}
	if err := m.deps.Store.Switch(id); err != nil {
		notify.Error(m.deps.Notifier, err.Error())
		return m, nil
	}
	// Stop the old stream now so the load below cannot find it still
	// registered.
	if m.deps.Streams != nil {
		m.deps.Streams.CancelExcept(id)
	}
	m.loading = id
	m.state = m.deps.Store.Snapshot()
	m.refresh()
	return m, openConversationCmd(m.deps.Loader, id)
}

func (m Model) handleConversationLoaded(msg ConversationLoadedMsg) (tea.Model, tea.Cmd) {
	if m.loading == msg.ID {
		m.loading = ""
	}
	if msg.Err != nil {
		// The loader notifies fetch failures itself.
		if errors.Is(msg.Err, stream.ErrSessionActive) {
			notify.Info(m.deps.Notifier, "This conversation is still streaming.")
		}
		m.logger.Debug("TUI_OPEN_FAILED", "conversation", msg.ID, "error", msg.Err)
		return m, nil
	}
	if msg.ID != m.state.ConversationID {
		return m, nil
	}

	// Stored values win; fields the backend did not record stay editable.
	sel := msg.Meta.Selection()
	if !model.IsPlaceholder(sel.Model) {
		m.selection.Model = sel.Model
	}
	if !model.IsPlaceholder(sel.Collection) {
		m.selection.Collection = sel.Collection
	}
	m.state = m.deps.Store.Snapshot()
	m.refresh()

	// A prompt that slipped in while loading is answered now.
	if _, pending := m.state.PendingPrompt(); pending && m.selection.Bound() && m.deps.Streams != nil {
		if m.deps.Streams.Reconcile(m.selection) != nil {
			cmd := m.ensureSpinner()
			return m, cmd
		}
	}
	return m, nil
}

func (m Model) handleHistory(msg HistoryLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.histories.SetItems(historyItems(m.history))
		notify.Error(m.deps.Notifier, "Failed to load history: "+msg.Err.Error())
		return m, nil
	}
	m.history = msg.Conversations
	m.histories.SetItems(historyItems(m.history))
	return m, nil
}

func historyItems(convs []model.ConversationSummary) []components.Item {
	items := make([]components.Item, len(convs))
	for i, c := range convs {
		items[i] = components.Item{Label: c.DisplayName(), Value: c.ID}
	}
	return items
}

func (m Model) handleTemplates(msg TemplatesLoadedMsg) (tea.Model, tea.Cmd) {
	items := make([]components.Item, len(msg.Templates))
	for i, t := range msg.Templates {
		items[i] = components.Item{Label: t.Name, Value: t.Template}
	}
	m.templates.SetItems(items)
	if msg.Err != nil {
		notify.Error(m.deps.Notifier, "Failed to load templates: "+msg.Err.Error())
	}
	return m, nil
}

func (m Model) handleDeleted(msg ConversationDeletedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		notify.Error(m.deps.Notifier, "Failed to delete conversation: "+msg.Err.Error())
		return m, nil
	}
	notify.Success(m.deps.Notifier, "Conversation deleted")

	var cmds []tea.Cmd
	if msg.ID == m.state.ConversationID {
		if m.deps.Streams != nil {
			m.deps.Streams.Cancel(msg.ID)
		}
		next, cmd := m.newConversation()
		m = next.(Model)
		cmds = append(cmds, cmd)
	}
	if m.deps.Backend != nil {
		cmds = append(cmds, loadHistoryCmd(m.deps.Backend))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleCollectionCreated(msg CollectionCreatedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		notify.Error(m.deps.Notifier, "Failed to create collection: "+msg.Err.Error())
		return m, nil
	}
	notify.Success(m.deps.Notifier, "Collection "+msg.Name+" created")
	if m.selectionLocked(m.selection.Collection) {
		notify.Info(m.deps.Notifier, "Start a new conversation (Ctrl+N) to use "+msg.Name+".")
	} else {
		m.selection.Collection = msg.Name
	}
	m.refresh()

	if m.deps.Backend == nil {
		return m, nil
	}
	return m, loadCollectionsCmd(m.deps.Backend)
}

// =============================================================================
// CLIPBOARD
// =============================================================================

func (m Model) copyLastReply() (tea.Model, tea.Cmd) {
	for i := len(m.state.Messages) - 1; i >= 0; i-- {
		msg := m.state.Messages[i]
		if !msg.IsModel() || msg.Text == "" {
			continue
		}
		if err := clipboard.WriteAll(msg.Text); err != nil {
			notify.Error(m.deps.Notifier, "Copy failed: "+err.Error())
		} else {
			notify.Success(m.deps.Notifier, "Copied last reply")
		}
		return m, nil
	}
	notify.Info(m.deps.Notifier, "Nothing to copy yet")
	return m, nil
}

// statusLabel describes the current session for the status bar.
func (m Model) statusLabel() string {
	switch m.streamState() {
	case stream.StateOpening:
		return m.spinner.View() + " Thinking..."
	case stream.StateStreaming:
		return m.spinner.View() + " Streaming..."
	default:
		if m.state.ConversationID == "" {
			return "New conversation"
		}
		return "Ready"
	}
}
