// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VINKAS7/ragchat/internal/backend"
	"github.com/VINKAS7/ragchat/internal/bootstrap"
	"github.com/VINKAS7/ragchat/internal/config"
	"github.com/VINKAS7/ragchat/internal/conversation"
	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/notify"
	"github.com/VINKAS7/ragchat/internal/stream"
	"github.com/VINKAS7/ragchat/internal/ui/styles"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type fakeBackend struct {
	models    []string
	modelsErr error
	deleted   []string
	created   string
	templates []backend.PromptTemplate
	saved     []backend.PromptTemplate
}

func (f *fakeBackend) ListModels(context.Context) ([]string, error) {
	return f.models, f.modelsErr
}

func (f *fakeBackend) ListCollections(context.Context) ([]string, error) {
	return []string{"docs", "papers"}, nil
}

func (f *fakeBackend) GetHistory(context.Context) ([]model.ConversationSummary, error) {
	return []model.ConversationSummary{{ID: "c-1", Name: "First chat"}}, nil
}

func (f *fakeBackend) DeleteConversation(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) CreateCollection(_ context.Context, name string, files []backend.UploadFile) (*backend.CreateCollectionResponse, error) {
	f.created = name
	return &backend.CreateCollectionResponse{Status: "success", Collection: name}, nil
}

func (f *fakeBackend) ListPromptTemplates(context.Context) ([]backend.PromptTemplate, error) {
	return f.templates, nil
}

func (f *fakeBackend) SavePromptTemplate(_ context.Context, tmpl backend.PromptTemplate) error {
	f.saved = append(f.saved, tmpl)
	return nil
}

type fakeStreams struct {
	mu         sync.Mutex
	reconciled []model.Selection
	inFlight   map[string]bool
	hydrating  map[string]bool
	canceled   []string
	keptOnly   []string
}

func (f *fakeStreams) Reconcile(sel model.Selection) *stream.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconciled = append(f.reconciled, sel)
	return nil
}

func (f *fakeStreams) Cancel(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	was := f.inFlight[id]
	delete(f.inFlight, id)
	return was
}

func (f *fakeStreams) CancelExcept(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keptOnly = append(f.keptOnly, id)
	n := 0
	for other, live := range f.inFlight {
		if other != id && live {
			f.canceled = append(f.canceled, other)
			delete(f.inFlight, other)
			n++
		}
	}
	return n
}

func (f *fakeStreams) Hydrating(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hydrating[id]
}

func (f *fakeStreams) InFlight(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight[id]
}

func (f *fakeStreams) State(id string) stream.State {
	if f.InFlight(id) {
		return stream.StateStreaming
	}
	return stream.StateIdle
}

type fakeLoader struct {
	meta bootstrap.Meta
	err  error
}

func (f *fakeLoader) Load(_ context.Context, id string) (bootstrap.Meta, error) {
	meta := f.meta
	meta.ConversationID = id
	return meta, f.err
}

type fakeArchive struct {
	saved []*model.Conversation
}

func (f *fakeArchive) Save(_ context.Context, conv *model.Conversation) error {
	f.saved = append(f.saved, conv)
	return nil
}

type notes struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (n *notes) notify(x notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, x)
}

func (n *notes) last(t *testing.T) notify.Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.got, "no notification raised")
	return n.got[len(n.got)-1]
}

func (n *notes) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.got)
}

type harness struct {
	m       Model
	store   *conversation.Store
	backend *fakeBackend
	streams *fakeStreams
	loader  *fakeLoader
	archive *fakeArchive
	notes   *notes
}

func newHarness(t *testing.T, sel model.Selection) *harness {
	t.Helper()
	h := &harness{
		store:   conversation.NewStore(),
		backend: &fakeBackend{models: []string{"llama3", "mistral"}},
		streams: &fakeStreams{inFlight: map[string]bool{}, hydrating: map[string]bool{}},
		loader:  &fakeLoader{},
		archive: &fakeArchive{},
		notes:   &notes{},
	}
	h.m = New(Deps{
		Backend:   h.backend,
		Store:     h.store,
		Streams:   h.streams,
		Loader:    h.loader,
		Notifier:  notify.Func(h.notes.notify),
		Archive:   h.archive,
		Theme:     styles.NewThemeNamed("dark"),
		UI:        config.UIConfig{Markdown: false, WordWrap: 80},
		Selection: sel,
		ExportDir: t.TempDir(),
	})
	t.Cleanup(func() {
		h.m.Close()
		h.store.Close()
	})
	h.send(tea.WindowSizeMsg{Width: 100, Height: 30})
	return h
}

// send feeds msg through Update and returns the command it produced.
func (h *harness) send(msg tea.Msg) tea.Cmd {
	next, cmd := h.m.Update(msg)
	h.m = next.(Model)
	return cmd
}

func (h *harness) typeAndSubmit(text string) tea.Cmd {
	h.m.input.SetValue(text)
	return h.send(tea.KeyMsg{Type: tea.KeyEnter})
}

// run executes cmd and feeds every result message back into the model.
// Only call it on commands that do not wait on a feed.
func (h *harness) run(cmd tea.Cmd) []tea.Msg {
	var out []tea.Msg
	for _, msg := range collect(cmd) {
		out = append(out, msg)
		h.send(msg)
	}
	return out
}

func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func find[T tea.Msg](msgs []tea.Msg) (T, bool) {
	for _, msg := range msgs {
		if v, ok := msg.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

var bound = model.Selection{Model: "llama3", Collection: "docs"}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_Guard(t *testing.T) {
	tests := []struct {
		name   string
		sel    model.Selection
		prompt string
	}{
		{"no selection", model.Selection{}, "hello"},
		{"placeholder model", model.Selection{Model: "Select Model", Collection: "docs"}, "hello"},
		{"placeholder collection", model.Selection{Model: "llama3", Collection: "select collection"}, "hello"},
		{"blank prompt", bound, "  \r\n "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.sel)
			h.typeAndSubmit(tt.prompt)

			n := h.notes.last(t)
			assert.Equal(t, notify.LevelError, n.Level)
			assert.Equal(t, SubmitGuardMessage, n.Message)
			assert.Empty(t, h.store.CurrentID())
			assert.Empty(t, h.streams.reconciled)
		})
	}
}

func TestSubmit_CreatesConversation(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("  What is RAG?\r\n")

	snap := h.store.Snapshot()
	_, err := uuid.Parse(snap.ConversationID)
	require.NoError(t, err, "conversation id should be a uuid")
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, model.UserMessage("What is RAG?"), snap.Messages[0])

	assert.Equal(t, []model.Selection{bound}, h.streams.reconciled)
	assert.Empty(t, h.m.input.Value())
	assert.Equal(t, snap.ConversationID, h.m.ConversationID())
}

func TestSubmit_ReusesConversation(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("first")
	id := h.store.CurrentID()

	require.NoError(t, h.store.Append(id, model.ModelMessage("answer")))
	h.typeAndSubmit("second")

	snap := h.store.Snapshot()
	assert.Equal(t, id, snap.ConversationID)
	assert.Len(t, snap.Messages, 3)
	assert.Len(t, h.streams.reconciled, 2)
}

func TestSubmit_RefusedWhileStreaming(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("first")
	id := h.store.CurrentID()
	h.streams.inFlight[id] = true

	h.typeAndSubmit("second")

	assert.Equal(t, notify.LevelInfo, h.notes.last(t).Level)
	assert.Len(t, h.store.Snapshot().Messages, 1)
	assert.Equal(t, "second", h.m.input.Value(), "prompt should be kept for later")
}

func TestCancelKey_StopsStream(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("first")
	id := h.store.CurrentID()
	h.streams.inFlight[id] = true

	cmd := h.send(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, cmd)
	assert.Equal(t, []string{id}, h.streams.canceled)
	assert.False(t, h.m.quitting)
}

func TestRetry_PendingPrompt(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("first")

	h.typeAndSubmit("/retry")
	assert.Len(t, h.streams.reconciled, 2)

	require.NoError(t, h.store.Append(h.store.CurrentID(), model.ModelMessage("ok")))
	h.typeAndSubmit("/retry")
	assert.Len(t, h.streams.reconciled, 2)
	assert.Equal(t, notify.LevelInfo, h.notes.last(t).Level)
}

// =============================================================================
// SELECTION
// =============================================================================

func TestSelection_LockedOnceConversationExists(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("/model mistral")
	assert.Equal(t, "mistral", h.m.Selection().Model)

	h.typeAndSubmit("hello")
	h.typeAndSubmit("/model llama3")
	assert.Equal(t, "mistral", h.m.Selection().Model)
	assert.Equal(t, notify.LevelInfo, h.notes.last(t).Level)

	h.typeAndSubmit("/collection papers")
	assert.Equal(t, "docs", h.m.Selection().Collection)

	h.send(tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Empty(t, h.store.CurrentID())
	h.typeAndSubmit("/model llama3")
	assert.Equal(t, "llama3", h.m.Selection().Model)
}

func TestSelection_PlaceholderStaysEditable(t *testing.T) {
	h := newHarness(t, model.Selection{Model: "llama3"})
	require.NoError(t, h.store.Switch("c-1"))
	h.send(StateMsg{State: h.store.Snapshot()})

	h.typeAndSubmit("/collection docs")
	assert.Equal(t, "docs", h.m.Selection().Collection)
}

func TestModelPicker_SearchAndChoose(t *testing.T) {
	h := newHarness(t, model.Selection{})
	h.send(ModelsLoadedMsg{Models: []string{"llama3", "Mistral-7B", "phi"}})

	h.send(tea.KeyMsg{Type: tea.KeyF2})
	require.Equal(t, pickerModel, h.m.picker)

	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("MIS")})
	assert.Len(t, h.m.models.Visible(), 1)
	h.send(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, pickerNone, h.m.picker)
	assert.Equal(t, "Mistral-7B", h.m.Selection().Model)
}

func TestModelPicker_EmptyStates(t *testing.T) {
	h := newHarness(t, model.Selection{})
	h.send(ModelsLoadedMsg{Err: errors.New("connection refused")})

	assert.Equal(t, "No model available", h.m.models.Status())
	assert.Contains(t, h.notes.last(t).Message, "Failed to load models")

	h.send(ModelsLoadedMsg{Models: []string{"llama3"}})
	h.m.models.SetQuery("gpt")
	assert.Equal(t, "No results", h.m.models.Status())
}

func TestCollectionPicker_LockedRefusesChoice(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("hello")

	h.send(CollectionsLoadedMsg{Collections: []string{"docs", "papers"}})
	h.send(tea.KeyMsg{Type: tea.KeyF3})
	assert.True(t, h.m.collections.Locked)

	h.send(tea.KeyMsg{Type: tea.KeyDown})
	h.send(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "docs", h.m.Selection().Collection)
	assert.Equal(t, pickerCollection, h.m.picker, "picker stays open after a refused choice")

	h.send(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, pickerNone, h.m.picker)
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestOpenConversation(t *testing.T) {
	h := newHarness(t, model.Selection{})
	h.loader.meta = bootstrap.Meta{ModelName: "llama3", CollectionName: "docs"}

	cmd := h.typeAndSubmit("/open c-9")
	assert.Equal(t, "c-9", h.store.CurrentID())

	msgs := h.run(cmd)
	loaded, ok := find[ConversationLoadedMsg](msgs)
	require.True(t, ok)
	assert.Equal(t, "c-9", loaded.ID)
	assert.Equal(t, bound, h.m.Selection())
}

func TestOpenConversation_RefusedWhileStreaming(t *testing.T) {
	h := newHarness(t, bound)
	h.loader.err = stream.ErrSessionActive
	h.run(h.typeAndSubmit("/open c-9"))
	assert.Equal(t, "This conversation is still streaming.", h.notes.last(t).Message)
}

func TestSubmit_RefusedWhileConversationLoads(t *testing.T) {
	h := newHarness(t, bound)
	cmd := h.typeAndSubmit("/open c-9")
	require.NotNil(t, cmd)

	h.typeAndSubmit("my new question")
	assert.Equal(t, LoadingGuardMessage, h.notes.last(t).Message)
	assert.Empty(t, h.store.Snapshot().Messages)
	assert.Equal(t, "my new question", h.m.input.Value(), "prompt should be kept for later")
	assert.Empty(t, h.streams.reconciled)

	h.run(cmd)
	h.typeAndSubmit("my new question")
	assert.Len(t, h.store.Snapshot().Messages, 1)
	assert.Len(t, h.streams.reconciled, 1)
}

func TestSubmit_RefusedWhileLoaderHoldsConversation(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("first")
	id := h.store.CurrentID()
	require.NoError(t, h.store.Append(id, model.ModelMessage("ok")))
	h.streams.hydrating[id] = true

	h.typeAndSubmit("second")
	assert.Equal(t, LoadingGuardMessage, h.notes.last(t).Message)
	assert.Len(t, h.store.Snapshot().Messages, 2)
}

func TestOpenConversation_AnswersPromptLeftPending(t *testing.T) {
	h := newHarness(t, bound)
	cmd := h.typeAndSubmit("/open c-9")
	require.NoError(t, h.store.Append("c-9", model.UserMessage("asked elsewhere")))

	h.run(cmd)
	assert.Equal(t, []model.Selection{bound}, h.streams.reconciled)
}

func TestOpenConversation_CancelsOtherStreamsAtOnce(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("first")
	a := h.store.CurrentID()
	h.streams.inFlight[a] = true

	h.typeAndSubmit("/open b")
	assert.Equal(t, []string{"b"}, h.streams.keptOnly)
	assert.Contains(t, h.streams.canceled, a)
	assert.False(t, h.streams.InFlight(a))

	h.typeAndSubmit("/new")
	assert.Equal(t, []string{"b", ""}, h.streams.keptOnly)
}

func TestHistoryPickerOpensConversation(t *testing.T) {
	h := newHarness(t, model.Selection{})
	h.run(h.send(tea.KeyMsg{Type: tea.KeyF4}))
	require.Equal(t, pickerHistory, h.m.picker)
	require.Len(t, h.m.histories.Visible(), 1)

	cmd := h.send(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "c-1", h.store.CurrentID())
	assert.NotNil(t, cmd)
}

func TestDeleteCurrentConversation(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("hello")
	id := h.store.CurrentID()

	h.run(h.typeAndSubmit("/delete"))

	assert.Equal(t, []string{id}, h.backend.deleted)
	assert.Empty(t, h.store.CurrentID())
	assert.Contains(t, h.streams.canceled, id)
}

func TestTransitionCompleted_Archives(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("What is RAG?")
	id := h.store.CurrentID()
	require.NoError(t, h.store.Append(id, model.ModelMessage("Retrieval augmented generation.")))

	// Without a backend the completion only archives.
	h.m.deps.Backend = nil
	msgs := h.run(h.send(TransitionMsg{Transition: stream.Transition{
		ConversationID: id, From: stream.StateStreaming, To: stream.StateCompleted,
	}}))

	_, ok := find[ArchivedMsg](msgs)
	require.True(t, ok)
	require.Len(t, h.archive.saved, 1)
	conv := h.archive.saved[0]
	assert.Equal(t, id, conv.ID)
	assert.Equal(t, "llama3", conv.Model)
	assert.Equal(t, "docs", conv.Collection)
	assert.Equal(t, "What is RAG?", conv.Title)
	assert.Len(t, conv.Messages, 2)
}

func TestTransition_OtherConversationIgnored(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("hello")

	cmd := h.send(TransitionMsg{Transition: stream.Transition{
		ConversationID: "someone-else", To: stream.StateCompleted,
	}})
	assert.Empty(t, collect(cmd))
	assert.Empty(t, h.archive.saved)
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestParseCommand(t *testing.T) {
	name, args := ParseCommand("  /Upload  notes a.pdf b.txt ")
	assert.Equal(t, "/upload", name)
	assert.Equal(t, []string{"notes", "a.pdf", "b.txt"}, args)

	name, args = ParseCommand("hello /there")
	assert.Empty(t, name)
	assert.Nil(t, args)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("/frobnicate")
	assert.Contains(t, h.notes.last(t).Message, "Unknown command /frobnicate")
	assert.Empty(t, h.store.CurrentID(), "commands never become prompts")
}

func TestUploadCommand(t *testing.T) {
	h := newHarness(t, model.Selection{Model: "llama3"})

	h.typeAndSubmit("/upload notes")
	assert.Contains(t, h.notes.last(t).Message, "Usage: /upload")

	path := t.TempDir() + "/a.txt"
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	msgs := h.run(h.typeAndSubmit("/upload notes " + path))
	created, ok := find[CollectionCreatedMsg](msgs)
	require.True(t, ok)
	require.NoError(t, created.Err)
	assert.Equal(t, "notes", h.backend.created)
	assert.Equal(t, "notes", h.m.Selection().Collection)
}

func TestUploadCommand_MissingFile(t *testing.T) {
	h := newHarness(t, bound)
	msgs := h.run(h.typeAndSubmit("/upload notes /does/not/exist.pdf"))
	created, ok := find[CollectionCreatedMsg](msgs)
	require.True(t, ok)
	assert.Error(t, created.Err)
	assert.Empty(t, h.backend.created)
	assert.Equal(t, "docs", h.m.Selection().Collection)
}

func TestTemplatesSave(t *testing.T) {
	h := newHarness(t, bound)

	h.typeAndSubmit("/templates save brief Answer shortly.")
	assert.Contains(t, h.notes.last(t).Message, "missing")
	assert.Empty(t, h.backend.saved)

	h.run(h.typeAndSubmit("/templates save brief Use {context} to answer {question}"))
	require.Len(t, h.backend.saved, 1)
	assert.Equal(t, "brief", h.backend.saved[0].Name)
	assert.Equal(t, "Template brief saved", h.notes.last(t).Message)
}

func TestExportCommand(t *testing.T) {
	h := newHarness(t, bound)
	h.typeAndSubmit("/export")
	assert.Equal(t, "Nothing to export yet", h.notes.last(t).Message)

	h.typeAndSubmit("hello")
	require.NoError(t, h.store.Append(h.store.CurrentID(), model.ModelMessage("**hi**")))

	msgs := h.run(h.typeAndSubmit("/export html"))
	exported, ok := find[ExportedMsg](msgs)
	require.True(t, ok)
	require.NoError(t, exported.Err)
	data, err := os.ReadFile(exported.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<strong>hi</strong>")
}

// =============================================================================
// FEEDS AND VIEW
// =============================================================================

func TestWaitForState_DeliversNewest(t *testing.T) {
	store := conversation.NewStore()
	defer store.Close()
	ch, cancel := store.Subscribe()
	defer cancel()

	require.NoError(t, store.Switch("c-1"))
	require.NoError(t, store.Append("c-1", model.UserMessage("a")))
	require.NoError(t, store.Append("c-1", model.UserMessage("b")))

	msg := waitForState(ch, nil)()
	st, ok := msg.(StateMsg)
	require.True(t, ok)
	assert.Equal(t, store.Snapshot().Version, st.State.Version)
	assert.Len(t, st.State.Messages, 2)

	cancel()
	_, closed := waitForState(ch, nil)().(feedClosedMsg)
	assert.True(t, closed)
}

func TestNotificationBecomesToast(t *testing.T) {
	h := newHarness(t, bound)
	cmd := h.send(NotificationMsg{Notification: notify.Notification{Level: notify.LevelError, Message: "boom"}})
	assert.NotNil(t, cmd)
	assert.Len(t, h.m.toasts.Toasts(), 1)
	assert.Contains(t, h.m.View(), "boom")
}

func TestView(t *testing.T) {
	h := newHarness(t, model.Selection{})
	view := h.m.View()
	assert.Contains(t, view, "Select Model")
	assert.Contains(t, view, "Select Collection")
	assert.Contains(t, view, "Pick a model and collection")

	h.m.selection = bound
	h.typeAndSubmit("What is RAG?")
	id := h.store.CurrentID()
	require.NoError(t, h.store.OpenModel(id))
	require.NoError(t, h.store.ReplaceTail(id, "Retrieval"))
	h.send(StateMsg{State: h.store.Snapshot()})

	view = h.m.View()
	assert.Contains(t, view, "What is RAG?")
	assert.Contains(t, view, "Retrieval")
	assert.True(t, strings.Contains(view, "llama3"))
}

func TestQuitKey(t *testing.T) {
	h := newHarness(t, bound)
	cmd := h.send(tea.KeyMsg{Type: tea.KeyCtrlQ})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
	assert.Empty(t, h.m.View())
}

func TestConfigReload_AppliesDisplaySettings(t *testing.T) {
	h := newHarness(t, bound)
	require.False(t, h.m.showHelp)

	ui := config.UIConfig{Theme: "light", Markdown: true, ShowHelp: true, WordWrap: 60, RenderFPS: 10}
	cmd := h.send(ConfigReloadedMsg{Config: &config.Config{UI: ui}})

	assert.Nil(t, cmd, "no config feed to re-arm")
	assert.Equal(t, ui, h.m.deps.UI)
	assert.True(t, h.m.showHelp)
	assert.Equal(t, 60, h.m.contentWidth())
	assert.Equal(t, "Settings reloaded", h.notes.last(t).Message)
}
