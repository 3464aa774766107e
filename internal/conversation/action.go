// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"errors"
	"fmt"

	"github.com/VINKAS7/ragchat/internal/model"
)

// Reducer errors.
var (
	ErrStaleConversation = errors.New("conversation is no longer current")
	ErrNoConversation    = errors.New("no conversation selected")
	ErrTailOpen          = errors.New("a model response is still open")
	ErrNoModelTail       = errors.New("last message is not a model message")
	ErrChangedDuringLoad = errors.New("conversation changed while loading")
)

// =============================================================================
// STATE
// =============================================================================

// State is the immutable value the store holds.
type State struct {
	// ConversationID is empty until a conversation is started or opened.
	ConversationID string

	Messages []model.Message

	// TailOpen is set while the last message is a model reply being filled.
	TailOpen bool

	// Version increases with every applied action.
	Version uint64
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	s.Messages = model.CloneMessages(s.Messages)
	return s
}

// Tail returns the last message.
func (s State) Tail() (model.Message, bool) {
	return model.TailOf(s.Messages)
}

// PendingPrompt returns the user prompt awaiting a reply, if any.
func (s State) PendingPrompt() (string, bool) {
	return model.PendingPrompt(s.Messages)
}

// =============================================================================
// ACTIONS
// =============================================================================

// Action is a state transition.
type Action interface {
	// Apply returns the next state. It must not modify s.
	Apply(s State) (State, error)
	String() string
}

// Reduce applies a to s. On error s is returned unchanged.
func Reduce(s State, a Action) (State, error) {
	next, err := a.Apply(s)
	if err != nil {
		return s, fmt.Errorf("%s: %w", a, err)
	}
	next.Version = s.Version + 1
	return next, nil
}

func checkKey(s State, id string) error {
	if id == "" {
		return ErrNoConversation
	}
	if id != s.ConversationID {
		return ErrStaleConversation
	}
	return nil
}

// Switch makes ID the current conversation and clears the message list.
// An empty ID leaves no conversation selected.
type Switch struct {
	ID string
}

func (a Switch) Apply(s State) (State, error) {
	return State{ConversationID: a.ID, Version: s.Version}, nil
}

func (a Switch) String() string { return "switch(" + a.ID + ")" }

// Append adds a closed message to the end of the conversation.
type Append struct {
	ID      string
	Message model.Message
}

func (a Append) Apply(s State) (State, error) {
	if err := checkKey(s, a.ID); err != nil {
		return s, err
	}
	if s.TailOpen {
		return s, ErrTailOpen
	}
	if !a.Message.Role.Valid() {
		return s, fmt.Errorf("unknown role %q", a.Message.Role)
	}
	s.Messages = append(model.CloneMessages(s.Messages), a.Message)
	return s, nil
}

func (a Append) String() string { return "append(" + a.ID + ")" }

// OpenModel appends an empty model message and marks it open.
type OpenModel struct {
	ID string
}

func (a OpenModel) Apply(s State) (State, error) {
	if err := checkKey(s, a.ID); err != nil {
		return s, err
	}
	if s.TailOpen {
		return s, ErrTailOpen
	}
	s.Messages = append(model.CloneMessages(s.Messages), model.ModelMessage(""))
	s.TailOpen = true
	return s, nil
}

func (a OpenModel) String() string { return "open_model(" + a.ID + ")" }

// ReplaceTail overwrites the text of the trailing model message.
type ReplaceTail struct {
	ID   string
	Text string
}

func (a ReplaceTail) Apply(s State) (State, error) {
	if err := checkKey(s, a.ID); err != nil {
		return s, err
	}
	tail, ok := s.Tail()
	if !ok || !tail.IsModel() {
		return s, ErrNoModelTail
	}
	s.Messages = model.CloneMessages(s.Messages)
	s.Messages[len(s.Messages)-1].Text = a.Text
	return s, nil
}

func (a ReplaceTail) String() string { return "replace_tail(" + a.ID + ")" }

// CloseTail marks the open model message as finished. Closing a closed
// tail is a no-op.
type CloseTail struct {
	ID string
}

func (a CloseTail) Apply(s State) (State, error) {
	if err := checkKey(s, a.ID); err != nil {
		return s, err
	}
	s.TailOpen = false
	return s, nil
}

func (a CloseTail) String() string { return "close_tail(" + a.ID + ")" }

// SetAll replaces the whole message list. Used when hydrating a stored
// conversation.
type SetAll struct {
	ID       string
	Messages []model.Message
}

func (a SetAll) Apply(s State) (State, error) {
	if err := checkKey(s, a.ID); err != nil {
		return s, err
	}
	if s.TailOpen {
		return s, ErrTailOpen
	}
	for i, msg := range a.Messages {
		if !msg.Role.Valid() {
			return s, fmt.Errorf("message %d: unknown role %q", i, msg.Role)
		}
	}
	s.Messages = model.CloneMessages(a.Messages)
	if s.Messages == nil {
		s.Messages = []model.Message{}
	}
	return s, nil
}

func (a SetAll) String() string { return "set_all(" + a.ID + ")" }

// Hydrate installs a fetched history. Base is the number of messages the
// conversation held when the fetch began; anything appended since, such as
// a prompt typed while loading, is kept after the fetched messages.
type Hydrate struct {
	ID       string
	Messages []model.Message
	Base     int
}

func (a Hydrate) Apply(s State) (State, error) {
	if err := checkKey(s, a.ID); err != nil {
		return s, err
	}
	if s.TailOpen {
		return s, ErrTailOpen
	}
	if a.Base < 0 || a.Base > len(s.Messages) {
		return s, ErrChangedDuringLoad
	}
	for i, msg := range a.Messages {
		if !msg.Role.Valid() {
			return s, fmt.Errorf("message %d: unknown role %q", i, msg.Role)
		}
	}
	since := s.Messages[a.Base:]
	msgs := make([]model.Message, 0, len(a.Messages)+len(since))
	msgs = append(msgs, model.CloneMessages(a.Messages)...)
	msgs = append(msgs, model.CloneMessages(since)...)
	s.Messages = msgs
	return s, nil
}

func (a Hydrate) String() string { return "hydrate(" + a.ID + ")" }
