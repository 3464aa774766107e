// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"time"
)

// State is the lifecycle state of a stream session.
type State int32

const (
	StateIdle State = iota
	StateOpening
	StateStreaming
	StateCompleted
	StateFailed
)

// String returns a readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InFlight reports whether a response is being fetched.
func (s State) InFlight() bool {
	return s == StateOpening || s == StateStreaming
}

// Transition describes one state change of a session.
type Transition struct {
	SessionID      string
	ConversationID string
	From           State
	To             State

	// Reason is set on transitions into StateFailed.
	Reason string

	// Canceled is set when a session was abandoned rather than finished.
	Canceled bool

	At time.Time
}

// Result is how a session ended.
type Result struct {
	// State is StateCompleted, StateFailed, or StateIdle when canceled.
	State    State
	Text     string
	Reason   string
	Canceled bool
}

// Consumer errors.
var (
	ErrSessionActive = errors.New("a response is still streaming for this conversation")
	ErrHydrating     = errors.New("conversation is being loaded")
	ErrClosed        = errors.New("stream consumer closed")
)

// ReasonEmptyStream is the failure reason for a stream that ended with no
// text and no terminal event.
const ReasonEmptyStream = "stream ended without a response"

// ErrorText formats a failure reason for display in the conversation.
func ErrorText(reason string) string {
	return "Error: " + reason
}
