// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"errors"
	"io"
	"log/slog"

	"github.com/VINKAS7/ragchat/internal/model"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("conversation store closed")

// =============================================================================
// STORE
// =============================================================================

// Store applies actions to a State from a single owner goroutine.
//
// All methods are safe for concurrent use. Dispatch blocks until the action
// has been applied (or rejected), so callers observe their own writes.
type Store struct {
	ops    chan func()
	quit   chan struct{}
	done   chan struct{}
	logger *slog.Logger

	// Owned by the run goroutine.
	state  State
	subs   map[int]chan State
	nextID int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInitialState seeds the store.
func WithInitialState(st State) StoreOption {
	return func(s *Store) {
		s.state = st.Clone()
	}
}

// NewStore creates a store and starts its owner goroutine.
// Call Close to stop it.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		ops:    make(chan func()),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		subs:   make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *Store) run() {
	defer close(s.done)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.quit:
			for id, ch := range s.subs {
				close(ch)
				delete(s.subs, id)
			}
			return
		}
	}
}

// do runs fn on the owner goroutine and waits for it.
func (s *Store) do(fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.ops <- op:
	case <-s.quit:
		return ErrClosed
	}
	<-finished
	return nil
}

// Dispatch applies an action. A rejected action leaves the state unchanged
// and its error is returned.
func (s *Store) Dispatch(a Action) error {
	var result error
	if err := s.do(func() {
		next, err := Reduce(s.state, a)
		if err != nil {
			result = err
			s.logger.Debug("STORE_REJECT", "action", a.String(), "error", err)
			return
		}
		s.state = next
		s.publish()
	}); err != nil {
		return err
	}
	return result
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	var st State
	if err := s.do(func() { st = s.state.Clone() }); err != nil {
		return State{}
	}
	return st
}

// Subscribe returns a channel that receives the newest state after every
// applied action. Delivery is latest-wins: a slow reader skips intermediate
// states but always sees the most recent one. The channel is closed by the
// returned cancel func or when the store closes.
func (s *Store) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	var id int
	if err := s.do(func() {
		id = s.nextID
		s.nextID++
		s.subs[id] = ch
	}); err != nil {
		close(ch)
		return ch, func() {}
	}

	cancel := func() {
		_ = s.do(func() {
			if sub, ok := s.subs[id]; ok {
				close(sub)
				delete(s.subs, id)
			}
		})
	}
	return ch, cancel
}

func (s *Store) publish() {
	for _, ch := range s.subs {
		st := s.state.Clone()
		select {
		case ch <- st:
		default:
			// Replace the stale pending state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

// Close stops the owner goroutine. It is safe to call more than once.
func (s *Store) Close() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	<-s.done
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// Switch makes id the current conversation with an empty message list.
func (s *Store) Switch(id string) error {
	return s.Dispatch(Switch{ID: id})
}

// Append adds a message to conversation id.
func (s *Store) Append(id string, msg model.Message) error {
	return s.Dispatch(Append{ID: id, Message: msg})
}

// OpenModel appends an open empty model message to conversation id.
func (s *Store) OpenModel(id string) error {
	return s.Dispatch(OpenModel{ID: id})
}

// ReplaceTail overwrites the trailing model message of conversation id.
func (s *Store) ReplaceTail(id, text string) error {
	return s.Dispatch(ReplaceTail{ID: id, Text: text})
}

// CloseTail finishes the open model message of conversation id.
func (s *Store) CloseTail(id string) error {
	return s.Dispatch(CloseTail{ID: id})
}

// SetAll replaces the message list of conversation id.
func (s *Store) SetAll(id string, msgs []model.Message) error {
	return s.Dispatch(SetAll{ID: id, Messages: msgs})
}

// Hydrate installs fetched messages ahead of those appended after base.
func (s *Store) Hydrate(id string, msgs []model.Message, base int) error {
	return s.Dispatch(Hydrate{ID: id, Messages: msgs, Base: base})
}

// CurrentID returns the current conversation id.
func (s *Store) CurrentID() string {
	return s.Snapshot().ConversationID
}
