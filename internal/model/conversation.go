// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Selection the conversation is locked to
	Model      string `json:"model,omitempty"`
	Collection string `json:"collection,omitempty"`

	Messages []Message `json:"messages"`
}

// NewConversationID returns a fresh random (v4) conversation identifier.
func NewConversationID() string {
	return uuid.NewString()
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        NewConversationID(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message to the end of the conversation.
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.updateTitle()
}

// Tail returns the most recent message.
func (c *Conversation) Tail() (Message, bool) {
	return TailOf(c.Messages)
}

// PendingPrompt returns the prompt awaiting a reply, if any.
func (c *Conversation) PendingPrompt() (string, bool) {
	return PendingPrompt(c.Messages)
}

// LastModelReply returns the text of the most recent model message.
func (c *Conversation) LastModelReply() (string, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].IsModel() {
			return c.Messages[i].Text, true
		}
	}
	return "", false
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = CloneMessages(c.Messages)
	return &clone
}

func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.IsUser() {
			c.Title = TitleFrom(msg.Text)
			return
		}
	}
}

// =============================================================================
// SLICE HELPERS
// =============================================================================

// TailOf returns the last message of msgs.
func TailOf(msgs []Message) (Message, bool) {
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// PendingPrompt reports whether msgs ends with a user message that has no
// paired model reply, returning its text.
func PendingPrompt(msgs []Message) (string, bool) {
	tail, ok := TailOf(msgs)
	if !ok || !tail.IsUser() {
		return "", false
	}
	return tail.Text, true
}

// CloneMessages returns a copy of msgs that shares no backing array.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// TitleFrom derives a conversation title from its first prompt.
func TitleFrom(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	return UserMessage(title).Preview(50)
}

// =============================================================================
// CONVERSATION SUMMARY
// =============================================================================

// ConversationSummary is the history-list entry for a conversation.
type ConversationSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DisplayName returns the name, falling back to the id.
func (s ConversationSummary) DisplayName() string {
	if strings.TrimSpace(s.Name) == "" {
		return s.ID
	}
	return s.Name
}
