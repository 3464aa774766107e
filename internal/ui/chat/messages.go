// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/VINKAS7/ragchat/internal/backend"
	"github.com/VINKAS7/ragchat/internal/bootstrap"
	"github.com/VINKAS7/ragchat/internal/config"
	"github.com/VINKAS7/ragchat/internal/conversation"
	"github.com/VINKAS7/ragchat/internal/export"
	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/notify"
	"github.com/VINKAS7/ragchat/internal/stream"
)

// requestTimeout bounds the management calls made from the TUI.
const requestTimeout = 30 * time.Second

// =============================================================================
// FEED MESSAGES
// =============================================================================

// StateMsg carries the newest conversation state.
type StateMsg struct {
	State conversation.State
}

// NotificationMsg carries one user-facing notification.
type NotificationMsg struct {
	Notification notify.Notification
}

// TransitionMsg carries a stream session state change.
type TransitionMsg struct {
	Transition stream.Transition
}

// ConfigReloadedMsg carries a config reloaded from disk.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// feedClosedMsg reports that a feed channel closed.
type feedClosedMsg struct {
	feed string
}

// =============================================================================
// BACKEND RESULT MESSAGES
// =============================================================================

// ModelsLoadedMsg carries the model list.
type ModelsLoadedMsg struct {
	Models []string
	Err    error
}

// CollectionsLoadedMsg carries the collection list.
type CollectionsLoadedMsg struct {
	Collections []string
	Err         error
}

// HistoryLoadedMsg carries the conversation list.
type HistoryLoadedMsg struct {
	Conversations []model.ConversationSummary
	Err           error
}

// TemplatesLoadedMsg carries the prompt templates.
type TemplatesLoadedMsg struct {
	Templates []backend.PromptTemplate
	Err       error
}

// ConversationLoadedMsg reports the result of opening a stored conversation.
type ConversationLoadedMsg struct {
	ID   string
	Meta bootstrap.Meta
	Err  error
}

// ConversationDeletedMsg reports a delete.
type ConversationDeletedMsg struct {
	ID  string
	Err error
}

// CollectionCreatedMsg reports an upload.
type CollectionCreatedMsg struct {
	Name string
	Err  error
}

// TemplateSavedMsg reports a template save.
type TemplateSavedMsg struct {
	Name string
	Err  error
}

// ExportedMsg reports an export.
type ExportedMsg struct {
	Path string
	Err  error
}

// ArchivedMsg reports a local archive write.
type ArchivedMsg struct {
	ID  string
	Err error
}

// =============================================================================
// FEED COMMANDS
// =============================================================================

// waitForState blocks for the next state, then holds it until the limiter
// allows a frame and returns whatever is newest by then.
func waitForState(ch <-chan conversation.State, limiter *rate.Limiter) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return feedClosedMsg{feed: "state"}
		}
		if limiter != nil {
			_ = limiter.Wait(context.Background())
		}
		for {
			select {
			case next, ok := <-ch:
				if !ok {
					return StateMsg{State: st}
				}
				st = next
			default:
				return StateMsg{State: st}
			}
		}
	}
}

func waitForNotification(ch <-chan notify.Notification) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return feedClosedMsg{feed: "notifications"}
		}
		return NotificationMsg{Notification: n}
	}
}

func waitForConfig(ch <-chan *config.Config) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		cfg, ok := <-ch
		if !ok {
			return feedClosedMsg{feed: "config"}
		}
		return ConfigReloadedMsg{Config: cfg}
	}
}

func waitForTransition(ch <-chan stream.Transition) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		tr, ok := <-ch
		if !ok {
			return feedClosedMsg{feed: "transitions"}
		}
		return TransitionMsg{Transition: tr}
	}
}

// =============================================================================
// BACKEND COMMANDS
// =============================================================================

func loadModelsCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		models, err := b.ListModels(ctx)
		return ModelsLoadedMsg{Models: models, Err: err}
	}
}

func loadCollectionsCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		collections, err := b.ListCollections(ctx)
		return CollectionsLoadedMsg{Collections: collections, Err: err}
	}
}

func loadHistoryCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		convs, err := b.GetHistory(ctx)
		return HistoryLoadedMsg{Conversations: convs, Err: err}
	}
}

func loadTemplatesCmd(b Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		templates, err := b.ListPromptTemplates(ctx)
		return TemplatesLoadedMsg{Templates: templates, Err: err}
	}
}

// openConversationCmd hydrates id. The store must already be switched to id.
func openConversationCmd(l Hydrator, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		meta, err := l.Load(ctx, id)
		return ConversationLoadedMsg{ID: id, Meta: meta, Err: err}
	}
}

func deleteConversationCmd(b Backend, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return ConversationDeletedMsg{ID: id, Err: b.DeleteConversation(ctx, id)}
	}
}

func createCollectionCmd(b Backend, name string, paths []string) tea.Cmd {
	return func() tea.Msg {
		files := make([]backend.UploadFile, 0, len(paths))
		for _, p := range paths {
			f, err := os.Open(p)
			if err != nil {
				closeUploads(files)
				return CollectionCreatedMsg{Name: name, Err: err}
			}
			files = append(files, backend.UploadFile{Name: filepath.Base(p), Reader: f})
		}
		defer closeUploads(files)

		ctx, cancel := context.WithTimeout(context.Background(), 5*requestTimeout)
		defer cancel()
		resp, err := b.CreateCollection(ctx, name, files)
		if err == nil && resp != nil && resp.Collection != "" {
			name = resp.Collection
		}
		return CollectionCreatedMsg{Name: name, Err: err}
	}
}

func closeUploads(files []backend.UploadFile) {
	for _, f := range files {
		if c, ok := f.Reader.(*os.File); ok {
			_ = c.Close()
		}
	}
}

func saveTemplateCmd(b Backend, tmpl backend.PromptTemplate) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return TemplateSavedMsg{Name: tmpl.Name, Err: b.SavePromptTemplate(ctx, tmpl)}
	}
}

func exportCmd(conv *model.Conversation, format, dir string) tea.Cmd {
	return func() tea.Msg {
		opts := export.DefaultOptions()
		opts.OutputDir = dir
		exporter, err := export.ForFormat(format, opts)
		if err != nil {
			return ExportedMsg{Err: err}
		}
		path, err := export.ExportToFile(conv, exporter, opts)
		return ExportedMsg{Path: path, Err: err}
	}
}

func archiveCmd(a Archiver, conv *model.Conversation) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Save(ctx, conv); err != nil {
			return ArchivedMsg{ID: conv.ID, Err: fmt.Errorf("archive %s: %w", conv.ID, err)}
		}
		return ArchivedMsg{ID: conv.ID}
	}
}
