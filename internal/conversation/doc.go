// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation holds the message list of the current conversation.
//
// State changes are expressed as Actions and applied by a pure reducer
// (Reduce). A Store owns one State and applies actions from a single
// goroutine, so concurrent writers (a stream session, the bootstrap loader,
// the UI) are serialized without sharing mutable state.
//
// Every action that writes messages is keyed by a conversation id. An action
// whose id is no longer current is rejected with ErrStaleConversation, which
// is how writes deferred by an abandoned stream are discarded after the user
// switches conversations.
//
// # Usage
//
//	store := conversation.NewStore()
//	defer store.Close()
//
//	_ = store.Switch(id)
//	_ = store.Append(id, model.UserMessage("Hello"))
//	updates, cancel := store.Subscribe()
//	defer cancel()
package conversation
