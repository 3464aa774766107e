// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the RAG chat backend.
//
// The backend exposes two route groups: /conversation for chat streaming,
// history and prompt templates, and /api for model and collection
// management. This package covers both.
//
// # Key Types
//
//   - Client: HTTP client for backend communication
//   - StreamRequest: body of the streaming chat request
//   - ConversationResponse: a stored conversation as returned by the backend
//   - ClientError: typed error with IsX helpers
//
// # Usage
//
//	client := backend.NewClient()
//	body, err := client.OpenStream(ctx, backend.StreamRequest{
//	    ModelName:      "llama3",
//	    Prompt:         "Summarize chapter 2",
//	    ConversationID: id,
//	    CollectionName: "papers",
//	})
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
//	r := sse.NewReader(body)
//
// OpenStream only establishes the response; decoding the body is the job of
// package sse.
package backend
