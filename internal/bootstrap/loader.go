// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/VINKAS7/ragchat/internal/backend"
	"github.com/VINKAS7/ragchat/internal/conversation"
	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/notify"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Fetcher retrieves a stored conversation. *backend.Client implements it.
type Fetcher interface {
	GetConversation(ctx context.Context, id string) (*backend.ConversationResponse, error)
}

// Guard reserves a conversation for the duration of a load.
// *stream.Consumer implements it.
type Guard interface {
	BeginHydration(conversationID string) error
	EndHydration(conversationID string)
}

// Store receives the loaded messages. *conversation.Store implements it.
type Store interface {
	Snapshot() conversation.State
	Dispatch(a conversation.Action) error
}

// Meta is what the backend remembered about a conversation besides its
// messages. Either field may be empty.
type Meta struct {
	ConversationID string
	ModelName      string
	CollectionName string
	Messages       int
}

// Selection returns the stored selection. Missing values are placeholders.
func (m Meta) Selection() model.Selection {
	sel := model.Selection{Model: m.ModelName, Collection: m.CollectionName}
	if sel.Model == "" {
		sel.Model = model.PlaceholderModel
	}
	if sel.Collection == "" {
		sel.Collection = model.PlaceholderCollection
	}
	return sel
}

// =============================================================================
// LOADER
// =============================================================================

// Loader performs one-shot conversation hydration.
type Loader struct {
	fetcher  Fetcher
	store    Store
	guard    Guard
	notifier notify.Notifier
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithNotifier sets where load failures are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(l *Loader) {
		if n != nil {
			l.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader. guard may be nil when no consumer shares the
// store.
func NewLoader(fetcher Fetcher, store Store, guard Guard, opts ...Option) *Loader {
	l := &Loader{
		fetcher:  fetcher,
		store:    store,
		guard:    guard,
		notifier: notify.Discard,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches conversation id and replaces the store's messages with it.
//
// id must already be the store's current conversation. Load refuses while a
// response is streaming into id, and leaves the store untouched on any
// failure. A prompt appended while the fetch runs survives the load and is
// still pending afterwards. If the user switches away before the fetch returns the result is
// discarded and conversation.ErrStaleConversation is returned without a
// notification.
func (l *Loader) Load(ctx context.Context, id string) (Meta, error) {
	if id == "" {
		return Meta{}, conversation.ErrNoConversation
	}

	if l.guard != nil {
		if err := l.guard.BeginHydration(id); err != nil {
			l.logger.Warn("BOOTSTRAP_REFUSED", "conversation", id, "error", err)
			return Meta{}, fmt.Errorf("load conversation %s: %w", id, err)
		}
		defer l.guard.EndHydration(id)
	}

	// Messages appended while the fetch runs are kept after the history.
	base := len(l.store.Snapshot().Messages)

	start := time.Now()
	resp, err := l.fetcher.GetConversation(ctx, id)
	if err != nil {
		if ctx.Err() != nil || backend.IsCanceled(err) {
			return Meta{}, err
		}
		l.logger.Error("BOOTSTRAP_FAILED", "conversation", id, "error", err)
		notify.Error(l.notifier, "Failed to load conversation: "+err.Error())
		return Meta{}, fmt.Errorf("load conversation %s: %w", id, err)
	}

	msgs := resp.Messages()
	if err := l.store.Dispatch(conversation.Hydrate{ID: id, Messages: msgs, Base: base}); err != nil {
		if errors.Is(err, conversation.ErrStaleConversation) {
			l.logger.Debug("BOOTSTRAP_STALE", "conversation", id)
			return Meta{}, err
		}
		l.logger.Error("BOOTSTRAP_FAILED", "conversation", id, "error", err)
		notify.Error(l.notifier, "Failed to load conversation: "+err.Error())
		return Meta{}, fmt.Errorf("load conversation %s: %w", id, err)
	}

	l.logger.Info("BOOTSTRAP_LOADED",
		"conversation", id,
		"messages", len(msgs),
		"model", resp.ModelName,
		"collection", resp.CollectionName,
		"duration", time.Since(start))

	return Meta{
		ConversationID: id,
		ModelName:      resp.ModelName,
		CollectionName: resp.CollectionName,
		Messages:       len(msgs),
	}, nil
}
