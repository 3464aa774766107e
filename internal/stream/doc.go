// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns a backend response stream into conversation state.
//
// A Consumer watches for a conversation whose last message is an unanswered
// prompt and, when a real model and collection are selected, opens a stream
// session for it. The session reads events from the response body and
// rewrites the trailing model message with everything received so far, so
// the conversation always shows the full partial answer.
//
// Session lifecycle:
//
//	Idle -> Opening -> Streaming -> Completed -> Idle
//	                      \-------> Failed ----> Idle
//
// Any state can be abandoned (Cancel, Close, or the conversation changing
// underneath the session); an abandoned session returns to Idle, keeps the
// partial text, and raises no notification.
//
// Each session captures the conversation id, model and collection when it
// starts, and every write it makes is keyed by that id, so a session that
// outlives its conversation cannot touch the one that replaced it.
package stream
