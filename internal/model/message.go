// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleModel:
		return "Model"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// ErrInvalidMessage is returned when a wire message carries neither or both
// of the "user" and "model" keys.
var ErrInvalidMessage = errors.New("message must carry exactly one of \"user\" or \"model\"")

// Message is a single turn of a conversation.
//
// On the wire it is an object with exactly one key naming the author:
// {"user": "..."} or {"model": "..."}.
type Message struct {
	Role Role
	Text string
}

// UserMessage creates a message authored by the user.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// ModelMessage creates a message authored by the model.
func ModelMessage(text string) Message {
	return Message{Role: RoleModel, Text: text}
}

// IsUser reports whether the message was authored by the user.
func (m Message) IsUser() bool { return m.Role == RoleUser }

// IsModel reports whether the message was authored by the model.
func (m Message) IsModel() bool { return m.Role == RoleModel }

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Text)
	if len(runes) <= maxLen {
		return m.Text
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// MarshalJSON encodes the message as a single-key object.
func (m Message) MarshalJSON() ([]byte, error) {
	if !m.Role.Valid() {
		return nil, fmt.Errorf("marshal message: unknown role %q", m.Role)
	}
	return json.Marshal(map[string]string{string(m.Role): m.Text})
}

// UnmarshalJSON decodes a single-key object into a message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		User  *string `json:"user"`
		Model *string `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch {
	case raw.User != nil && raw.Model == nil:
		*m = UserMessage(*raw.User)
	case raw.Model != nil && raw.User == nil:
		*m = ModelMessage(*raw.Model)
	default:
		return ErrInvalidMessage
	}
	return nil
}
