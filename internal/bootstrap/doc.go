// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bootstrap hydrates the conversation store from a stored
// conversation.
//
// A load is a single request/response. It reserves the conversation with the
// stream consumer first, so a history fetch can never overwrite a response
// that is still streaming into the same conversation.
package bootstrap
