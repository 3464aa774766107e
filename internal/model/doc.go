// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types shared by the store, the
// stream consumer, the backend client and the UI.
//
// # Key Types
//
//   - Message: one turn of a conversation, authored by the user or the model
//   - Conversation: an ordered message list scoped to a conversation id
//   - Selection: the model and collection a prompt is answered with
//   - ConversationSummary: id and display name of a stored conversation
//
// # Wire Shape
//
// Messages travel as single-key JSON objects, matching the backend:
//
//	{"user": "What is in chapter 2?"}
//	{"model": "Chapter 2 covers..."}
//
// # Usage
//
//	conv := model.NewConversation()
//	conv.Append(model.UserMessage("Hello!"))
//	if prompt, ok := conv.PendingPrompt(); ok {
//	    fmt.Println("awaiting reply to", prompt)
//	}
package model
