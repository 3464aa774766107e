// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import "fmt"

// Kind identifies the type of a stream event.
type Kind int

const (
	// KindStreaming carries one incremental chunk of model text.
	KindStreaming Kind = iota
	// KindComplete ends the stream successfully.
	KindComplete
	// KindError ends the stream with a server-reported failure.
	KindError
)

// String returns the wire status for the kind.
func (k Kind) String() string {
	switch k {
	case KindStreaming:
		return "streaming"
	case KindComplete:
		return "complete"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Terminal reports whether the kind ends a stream.
func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindError
}

// Event is one decoded stream record.
type Event struct {
	Kind Kind

	// Chunk is the incremental text of a streaming event.
	Chunk string

	// FullResponse is the authoritative final text of a complete event.
	// HasFullResponse distinguishes an absent field from an empty one.
	FullResponse    string
	HasFullResponse bool

	// Err is the server-supplied reason of an error event.
	Err string
}

// Streaming returns a streaming event carrying chunk.
func Streaming(chunk string) Event {
	return Event{Kind: KindStreaming, Chunk: chunk}
}

// Complete returns a complete event without a full response.
func Complete() Event {
	return Event{Kind: KindComplete}
}

// CompleteWith returns a complete event with an authoritative final text.
func CompleteWith(full string) Event {
	return Event{Kind: KindComplete, FullResponse: full, HasFullResponse: true}
}

// Failure returns an error event with reason.
func Failure(reason string) Event {
	return Event{Kind: KindError, Err: reason}
}

// FinalText returns the text a complete event settles on: the full
// response when present, otherwise buffered.
func (e Event) FinalText(buffered string) string {
	if e.HasFullResponse {
		return e.FullResponse
	}
	return buffered
}
