// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/VINKAS7/ragchat/internal/backend"
)

// Session is one in-flight response. Its identity fields are captured when
// it starts and never change.
type Session struct {
	ID             string
	ConversationID string
	Model          string
	Collection     string
	Prompt         string
	StartedAt      time.Time

	alive   atomic.Bool
	failing atomic.Bool
	state   atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the session goroutine.
	buf      strings.Builder
	tailOpen bool

	// Written once before done is closed.
	result Result
}

func newSession(conversationID, modelName, collection, prompt string) *Session {
	s := &Session{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Model:          modelName,
		Collection:     collection,
		Prompt:         prompt,
		StartedAt:      time.Now(),
		done:           make(chan struct{}),
	}
	s.alive.Store(true)
	return s
}

// request builds the wire request from the captured snapshot.
func (s *Session) request() backend.StreamRequest {
	return backend.StreamRequest{
		ModelName:      s.Model,
		Prompt:         s.Prompt,
		ConversationID: s.ConversationID,
		CollectionName: s.Collection,
	}
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Alive reports whether the session may still write.
func (s *Session) Alive() bool {
	return s.alive.Load()
}

// Failing reports whether the session has started writing its failure
// message into the conversation. Text observed after that point is the
// error, not the answer.
func (s *Session) Failing() bool {
	return s.failing.Load()
}

// Done is closed when the session has ended and released its conversation.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns how the session ended. Valid only after Done is closed.
func (s *Session) Result() Result {
	select {
	case <-s.done:
		return s.result
	default:
		return Result{State: s.State()}
	}
}

// Elapsed returns the time since the session started.
func (s *Session) Elapsed() time.Duration {
	return time.Since(s.StartedAt)
}

// kill marks the session dead and aborts its network read.
func (s *Session) kill() {
	s.alive.Store(false)
	if s.cancel != nil {
		s.cancel()
	}
}
