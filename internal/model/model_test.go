// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_WireShape(t *testing.T) {
	data, err := json.Marshal([]Message{UserMessage("hi"), ModelMessage("hello")})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"user":"hi"},{"model":"hello"}]`, string(data))
}

func TestMessage_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Message
		wantErr error
	}{
		{"user", `{"user":"q"}`, UserMessage("q"), nil},
		{"model", `{"model":"a"}`, ModelMessage("a"), nil},
		{"empty model text", `{"model":""}`, ModelMessage(""), nil},
		{"both keys", `{"user":"q","model":"a"}`, Message{}, ErrInvalidMessage},
		{"no keys", `{}`, Message{}, ErrInvalidMessage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got Message
			err := json.Unmarshal([]byte(tc.input), &got)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Unmarshal(%s) error = %v, want %v", tc.input, err, tc.wantErr)
				}
				return
			}
			require.NoError(t, err)
			if got != tc.want {
				t.Errorf("Unmarshal(%s) = %+v, want %+v", tc.input, got, tc.want)
			}
		})
	}
}

func TestMessage_MarshalUnknownRole(t *testing.T) {
	_, err := json.Marshal(Message{Role: "system", Text: "x"})
	assert.Error(t, err)
}

func TestMessage_Preview(t *testing.T) {
	msg := UserMessage("héllo wörld")
	if got := msg.Preview(8); got != "héllo..." {
		t.Errorf("Preview(8) = %q", got)
	}
	if got := msg.Preview(100); got != "héllo wörld" {
		t.Errorf("Preview(100) = %q", got)
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestNewConversation(t *testing.T) {
	conv := NewConversation()

	id, err := uuid.Parse(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), id.Version())
	assert.True(t, conv.IsEmpty())
}

func TestConversation_PendingPrompt(t *testing.T) {
	conv := NewConversation()
	if _, ok := conv.PendingPrompt(); ok {
		t.Error("empty conversation should have no pending prompt")
	}

	conv.Append(UserMessage("What is RAG?"))
	prompt, ok := conv.PendingPrompt()
	if !ok || prompt != "What is RAG?" {
		t.Errorf("PendingPrompt() = %q, %v", prompt, ok)
	}
	assert.Equal(t, "What is RAG?", conv.Title)

	conv.Append(ModelMessage("Retrieval augmented generation."))
	if _, ok := conv.PendingPrompt(); ok {
		t.Error("answered prompt should not be pending")
	}

	reply, ok := conv.LastModelReply()
	assert.True(t, ok)
	assert.Equal(t, "Retrieval augmented generation.", reply)
}

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := NewConversation()
	conv.Append(UserMessage("a"))

	clone := conv.Clone()
	clone.Messages[0].Text = "changed"

	assert.Equal(t, "a", conv.Messages[0].Text)
}

// =============================================================================
// SELECTION TESTS
// =============================================================================

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"Select Model", true},
		{"select model", true},
		{"SELECT COLLECTION", true},
		{"select provider", true},
		{"llama3", false},
		{"papers", false},
	}

	for _, tc := range tests {
		if got := IsPlaceholder(tc.value); got != tc.want {
			t.Errorf("IsPlaceholder(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestSelection_Bound(t *testing.T) {
	assert.True(t, Selection{Model: "llama3", Collection: "papers"}.Bound())
	assert.False(t, Selection{Model: "select model", Collection: "papers"}.Bound())
	assert.False(t, Selection{Model: "llama3"}.Bound())

	sel := Selection{Collection: "Select Collection"}
	assert.Equal(t, []string{"model", "collection"}, sel.Missing())
	assert.Equal(t, PlaceholderModel, sel.ModelLabel())
}

func TestConversationSummary_DisplayName(t *testing.T) {
	assert.Equal(t, "abc", ConversationSummary{ID: "abc"}.DisplayName())
	assert.Equal(t, "Notes", ConversationSummary{ID: "abc", Name: "Notes"}.DisplayName())
}
