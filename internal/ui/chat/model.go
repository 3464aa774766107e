// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/VINKAS7/ragchat/internal/backend"
	"github.com/VINKAS7/ragchat/internal/bootstrap"
	"github.com/VINKAS7/ragchat/internal/config"
	"github.com/VINKAS7/ragchat/internal/conversation"
	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/notify"
	"github.com/VINKAS7/ragchat/internal/stream"
	"github.com/VINKAS7/ragchat/internal/ui/components"
	"github.com/VINKAS7/ragchat/internal/ui/styles"
)

// SubmitGuardMessage is shown when a prompt cannot be sent yet.
const SubmitGuardMessage = "Please select a model, a collection, and enter a prompt."

// LoadingGuardMessage is shown when a prompt is sent before the open
// conversation has finished loading.
const LoadingGuardMessage = "The conversation is still loading. Send again once it appears."

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Backend is the subset of *backend.Client the TUI calls directly.
type Backend interface {
	ListModels(ctx context.Context) ([]string, error)
	ListCollections(ctx context.Context) ([]string, error)
	GetHistory(ctx context.Context) ([]model.ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) error
	CreateCollection(ctx context.Context, name string, files []backend.UploadFile) (*backend.CreateCollectionResponse, error)
	ListPromptTemplates(ctx context.Context) ([]backend.PromptTemplate, error)
	SavePromptTemplate(ctx context.Context, tmpl backend.PromptTemplate) error
}

// Streamer starts and stops response sessions. *stream.Consumer implements it.
type Streamer interface {
	Reconcile(sel model.Selection) *stream.Session
	Cancel(conversationID string) bool
	CancelExcept(conversationID string) int
	InFlight(conversationID string) bool
	Hydrating(conversationID string) bool
	State(conversationID string) stream.State
}

// Hydrator loads a stored conversation. *bootstrap.Loader implements it.
type Hydrator interface {
	Load(ctx context.Context, id string) (bootstrap.Meta, error)
}

// Archiver keeps finished conversations locally. *storage.Archive implements it.
type Archiver interface {
	Save(ctx context.Context, conv *model.Conversation) error
}

// Deps wires the chat model to the rest of the application.
type Deps struct {
	Backend Backend
	Store   *conversation.Store
	Streams Streamer
	Loader  Hydrator

	// Notifier receives notifications raised by the TUI itself.
	Notifier notify.Notifier

	// Notifications and Transitions are the feeds the TUI renders from.
	Notifications <-chan notify.Notification
	Transitions   <-chan stream.Transition

	// ConfigUpdates delivers the config after it changes on disk. Optional.
	ConfigUpdates <-chan *config.Config

	// Archive is optional.
	Archive Archiver

	Logger    *slog.Logger
	Theme     *styles.Theme
	UI        config.UIConfig
	Selection model.Selection
	ExportDir string
}

// pickerKind identifies the open picker.
type pickerKind int

const (
	pickerNone pickerKind = iota
	pickerModel
	pickerCollection
	pickerHistory
	pickerTemplates
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the bubbletea model for the chat screen. Every mutation of the
// conversation goes through the store; the model only mirrors its state.
type Model struct {
	deps   Deps
	theme  *styles.Theme
	keyMap KeyMap
	logger *slog.Logger

	width  int
	height int

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	renderer *MarkdownRenderer

	// Mirrored store state and the subscription feeding it.
	state       conversation.State
	stateCh     <-chan conversation.State
	unsubscribe func()
	limiter     *rate.Limiter

	selection model.Selection
	history   []model.ConversationSummary

	// loading is the conversation whose history is being fetched.
	loading string

	// Pickers
	picker      pickerKind
	models      components.Picker
	collections components.Picker
	histories   components.Picker
	templates   components.Picker

	toasts       *components.ToastManager
	toastTicking bool
	spinning     bool
	showHelp     bool
	quitting     bool
}

// New creates the chat model.
func New(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	if deps.Theme == nil {
		deps.Theme = styles.NewThemeNamed(deps.UI.Theme)
	}
	if deps.ExportDir == "" {
		deps.ExportDir = "."
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents, or /help"
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 20)

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	limit := rate.Inf
	if deps.UI.RenderFPS > 0 {
		limit = rate.Limit(deps.UI.RenderFPS)
	}

	m := Model{
		deps:        deps,
		theme:       deps.Theme,
		keyMap:      DefaultKeyMap(),
		logger:      deps.Logger,
		viewport:    vp,
		input:       ti,
		spinner:     sp,
		renderer:    NewMarkdownRenderer(deps.Theme.GlamourStyle()),
		limiter:     rate.NewLimiter(limit, 1),
		selection:   deps.Selection,
		models:      components.NewPicker("Model", "No model available"),
		collections: components.NewPicker("Collection", "No collection available"),
		histories:   components.NewPicker("Conversations", "No conversations yet"),
		templates:   components.NewPicker("Prompt templates", "No templates saved"),
		toasts:      components.NewToastManager(),
		showHelp:    deps.UI.ShowHelp,
	}
	m.models.Loading = true
	m.collections.Loading = true

	if deps.Store != nil {
		m.state = deps.Store.Snapshot()
		m.stateCh, m.unsubscribe = deps.Store.Subscribe()
	}
	return m
}

// Close releases the store subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Selection returns the current model and collection.
func (m Model) Selection() model.Selection {
	return m.selection
}

// ConversationID returns the id of the mirrored conversation.
func (m Model) ConversationID() string {
	return m.state.ConversationID
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the feeds and the initial backend fetches.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		waitForState(m.stateCh, m.limiter),
		waitForNotification(m.deps.Notifications),
		waitForTransition(m.deps.Transitions),
		waitForConfig(m.deps.ConfigUpdates),
	}
	if m.deps.Backend != nil {
		cmds = append(cmds,
			loadModelsCmd(m.deps.Backend),
			loadCollectionsCmd(m.deps.Backend),
			loadHistoryCmd(m.deps.Backend),
		)
	}
	return tea.Batch(cmds...)
}

// Update handles a message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		m.state = msg.State
		m.refresh()
		return m, tea.Batch(waitForState(m.stateCh, m.limiter), m.ensureSpinner())

	case NotificationMsg:
		cmd := m.addToast(msg.Notification)
		return m, tea.Batch(cmd, waitForNotification(m.deps.Notifications))

	case TransitionMsg:
		cmd := m.handleTransition(msg.Transition)
		return m, tea.Batch(cmd, waitForTransition(m.deps.Transitions))

	case ConfigReloadedMsg:
		m = m.applyUI(msg.Config.UI)
		notify.Info(m.deps.Notifier, "Settings reloaded")
		return m, waitForConfig(m.deps.ConfigUpdates)

	case feedClosedMsg:
		m.logger.Debug("TUI_FEED_CLOSED", "feed", msg.feed)
		return m, nil

	case components.ToastTickMsg:
		if m.toasts.Tick(msg.Time) {
			return m, components.ToastTickCmd()
		}
		m.toastTicking = false
		return m, nil

	case spinner.TickMsg:
		if !m.inFlight() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case ModelsLoadedMsg:
		m.models.SetItems(components.Items(msg.Models))
		if msg.Err != nil {
			notify.Error(m.deps.Notifier, "Failed to load models: "+msg.Err.Error())
		}
		return m, nil

	case CollectionsLoadedMsg:
		m.collections.SetItems(components.Items(msg.Collections))
		if msg.Err != nil {
			notify.Error(m.deps.Notifier, "Failed to load collections: "+msg.Err.Error())
		}
		return m, nil

	case HistoryLoadedMsg:
		return m.handleHistory(msg)

	case TemplatesLoadedMsg:
		return m.handleTemplates(msg)

	case ConversationLoadedMsg:
		return m.handleConversationLoaded(msg)

	case ConversationDeletedMsg:
		return m.handleDeleted(msg)

	case CollectionCreatedMsg:
		return m.handleCollectionCreated(msg)

	case TemplateSavedMsg:
		if msg.Err != nil {
			notify.Error(m.deps.Notifier, "Failed to save template: "+msg.Err.Error())
		} else {
			notify.Success(m.deps.Notifier, "Template "+msg.Name+" saved")
		}
		return m, nil

	case ExportedMsg:
		if msg.Err != nil {
			notify.Error(m.deps.Notifier, "Export failed: "+msg.Err.Error())
		} else {
			notify.Success(m.deps.Notifier, "Exported to "+msg.Path)
		}
		return m, nil

	case ArchivedMsg:
		if msg.Err != nil {
			m.logger.Warn("ARCHIVE_FAILED", "conversation", msg.ID, "error", msg.Err)
		} else {
			m.logger.Debug("ARCHIVED", "conversation", msg.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// LAYOUT
// =============================================================================

const (
	headerHeight    = 2
	inputAreaHeight = 3
	statusBarHeight = 1
)

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	vpHeight := m.height - headerHeight - inputAreaHeight - statusBarHeight
	if m.showHelp {
		vpHeight -= helpHeight
	}
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = max(m.width, 1)
	m.viewport.Height = vpHeight

	m.input.Width = max(m.width-6, 10)
	m.renderer.SetWidth(m.contentWidth())
	m.refresh()
	return m, nil
}

// applyUI switches to new display settings. The store mirror and the
// pickers are untouched.
func (m Model) applyUI(ui config.UIConfig) Model {
	m.deps.UI = ui
	m.theme = styles.NewThemeNamed(ui.Theme)
	m.renderer = NewMarkdownRenderer(m.theme.GlamourStyle())
	m.showHelp = ui.ShowHelp

	limit := rate.Inf
	if ui.RenderFPS > 0 {
		limit = rate.Limit(ui.RenderFPS)
	}
	m.limiter.SetLimit(limit)

	if m.width > 0 {
		next, _ := m.handleResize(tea.WindowSizeMsg{Width: m.width, Height: m.height})
		return next.(Model)
	}
	m.refresh()
	return m
}

// contentWidth is the wrap width for message bodies.
func (m Model) contentWidth() int {
	w := m.width - 10
	if m.deps.UI.WordWrap > 0 && w > m.deps.UI.WordWrap {
		w = m.deps.UI.WordWrap
	}
	if w < 20 {
		w = 20
	}
	return w
}

// refresh re-renders the transcript, keeping the view pinned to the bottom
// when it already was.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(m.renderTranscript())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// STREAM STATUS
// =============================================================================

func (m Model) inFlight() bool {
	if m.deps.Streams == nil || m.state.ConversationID == "" {
		return false
	}
	return m.deps.Streams.InFlight(m.state.ConversationID)
}

func (m Model) streamState() stream.State {
	if m.deps.Streams == nil || m.state.ConversationID == "" {
		return stream.StateIdle
	}
	return m.deps.Streams.State(m.state.ConversationID)
}

// ensureSpinner starts the spinner when a response is in flight.
func (m *Model) ensureSpinner() tea.Cmd {
	if m.spinning || !m.inFlight() {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m *Model) handleTransition(tr stream.Transition) tea.Cmd {
	m.logger.Debug("TUI_TRANSITION",
		"conversation", tr.ConversationID,
		"from", tr.From.String(),
		"to", tr.To.String(),
	)
	if tr.ConversationID != m.state.ConversationID {
		return nil
	}

	switch tr.To {
	case stream.StateOpening, stream.StateStreaming:
		return m.ensureSpinner()
	case stream.StateCompleted:
		cmds := []tea.Cmd{m.archive()}
		if m.deps.Backend != nil {
			cmds = append(cmds, loadHistoryCmd(m.deps.Backend))
		}
		return tea.Batch(cmds...)
	}
	return nil
}

// archive saves the current conversation locally.
func (m Model) archive() tea.Cmd {
	if m.deps.Archive == nil || m.deps.Store == nil {
		return nil
	}
	conv := m.snapshotConversation()
	if conv == nil {
		return nil
	}
	return archiveCmd(m.deps.Archive, conv)
}

// snapshotConversation builds a conversation from the store's current state.
func (m Model) snapshotConversation() *model.Conversation {
	st := m.deps.Store.Snapshot()
	if st.ConversationID == "" || len(st.Messages) == 0 {
		return nil
	}
	now := time.Now()
	conv := &model.Conversation{
		ID:        st.ConversationID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  model.CloneMessages(st.Messages),
	}
	if !model.IsPlaceholder(m.selection.Model) {
		conv.Model = m.selection.Model
	}
	if !model.IsPlaceholder(m.selection.Collection) {
		conv.Collection = m.selection.Collection
	}
	for _, h := range m.history {
		if h.ID == conv.ID {
			conv.Title = h.Name
		}
	}
	if conv.Title == "" {
		for _, msg := range conv.Messages {
			if msg.IsUser() {
				conv.Title = model.TitleFrom(msg.Text)
				break
			}
		}
	}
	return conv
}

// =============================================================================
// TOASTS
// =============================================================================

func (m *Model) addToast(n notify.Notification) tea.Cmd {
	m.toasts.Add(components.ToastFromNotification(n))
	if m.toastTicking {
		return nil
	}
	m.toastTicking = true
	return components.ToastTickCmd()
}
