// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the interactive chat screen of the ragchat TUI.

The Model mirrors the conversation store; it never edits messages itself.
Prompts are appended through the store and answered by the stream consumer,
whose writes reach the screen through a store subscription. That
subscription is coalesced with a rate limiter so a fast stream renders at
most UI.RenderFPS frames per second while the newest state always lands.

# Feeds

Three channels drive the model besides key presses:

  - store states (StateMsg), latest-wins
  - notifications from notify.Hub (NotificationMsg), shown as toasts
  - session transitions from the consumer (TransitionMsg); a completed
    reply is archived locally and refreshes the history list

# Selection

A prompt needs a model, a collection and non-empty text, otherwise the
submit guard message is shown. The first prompt creates a conversation id;
from then on the model and collection are fixed for that conversation.

# Commands

Slash commands typed in the prompt box (see Commands): /new, /model,
/collection, /history, /open, /delete, /upload, /templates, /export, /copy,
/retry, /stop, /help and /quit.
*/
package chat
