// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify carries user-facing notifications from background work to
// whatever surface displays them (TUI toast, CLI stderr).
package notify

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// NOTIFICATION TYPES
// =============================================================================

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is one user-facing message.
type Notification struct {
	Level   Level
	Message string
	At      time.Time
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

// Notify calls f.
func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Error sends an error notification.
func Error(n Notifier, msg string) {
	send(n, LevelError, msg)
}

// Success sends a success notification.
func Success(n Notifier, msg string) {
	send(n, LevelSuccess, msg)
}

// Info sends an informational notification.
func Info(n Notifier, msg string) {
	send(n, LevelInfo, msg)
}

func send(n Notifier, level Level, msg string) {
	if n == nil {
		return
	}
	n.Notify(Notification{Level: level, Message: msg, At: time.Now()})
}

// =============================================================================
// HUB
// =============================================================================

// subscriberBuffer is the per-subscriber backlog before notifications drop.
const subscriberBuffer = 32

// Hub fans notifications out to subscribers without ever blocking the
// sender. A subscriber that falls behind loses notifications; each drop is
// logged.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
	closed bool
	logger *slog.Logger
}

// NewHub creates a hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		subs:   make(map[int]chan Notification),
		logger: logger,
	}
}

// Notify delivers n to every subscriber.
func (h *Hub) Notify(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.logger.Info("NOTIFY", "level", n.Level.String(), "message", n.Message)
	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.logger.Warn("NOTIFY_DROPPED", "subscriber", id, "level", n.Level.String())
		}
	}
}

// Subscribe returns a channel of notifications and a func that ends the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Notification, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				close(sub)
				delete(h.subs, id)
			}
		})
	}
}

// Close closes every subscription. Later notifications are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
