// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/VINKAS7/ragchat/internal/backend"
	"github.com/VINKAS7/ragchat/internal/conversation"
	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/notify"
	"github.com/VINKAS7/ragchat/internal/sse"
	"github.com/VINKAS7/ragchat/internal/telemetry"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Opener starts a response stream. *backend.Client implements it.
type Opener interface {
	OpenStream(ctx context.Context, req backend.StreamRequest) (io.ReadCloser, error)
}

// Store is the conversation state the consumer reads and writes.
// *conversation.Store implements it.
type Store interface {
	Snapshot() conversation.State
	Dispatch(a conversation.Action) error
}

// Options configures a Consumer. Zero values are replaced with no-ops.
type Options struct {
	Logger       *slog.Logger
	Notifier     notify.Notifier
	Metrics      *telemetry.Metrics
	Tracer       trace.Tracer
	OnTransition func(Transition)
}

// errAbandoned is returned internally when a session may no longer write.
var errAbandoned = errors.New("session abandoned")

// =============================================================================
// CONSUMER
// =============================================================================

// Consumer runs at most one stream session per conversation.
//
// All methods are safe for concurrent use.
type Consumer struct {
	store  Store
	opener Opener

	logger       *slog.Logger
	notifier     notify.Notifier
	metrics      *telemetry.Metrics
	tracer       trace.Tracer
	onTransition func(Transition)

	// mu guards the maps and orders session writes against Cancel.
	mu        sync.Mutex
	sessions  map[string]*Session
	hydrating map[string]bool
	closed    bool
	wg        sync.WaitGroup
}

// New creates a consumer.
func New(store Store, opener Opener, opts Options) *Consumer {
	c := &Consumer{
		store:        store,
		opener:       opener,
		logger:       opts.Logger,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		tracer:       opts.Tracer,
		onTransition: opts.OnTransition,
		sessions:     make(map[string]*Session),
		hydrating:    make(map[string]bool),
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.notifier == nil {
		c.notifier = notify.Discard
	}
	if c.metrics == nil {
		c.metrics = telemetry.NopMetrics()
	}
	if c.tracer == nil {
		c.tracer = tracenoop.NewTracerProvider().Tracer(telemetry.ServiceName)
	}
	return c
}

// Reconcile starts a session if the current conversation is waiting for a
// reply and sel names a real model and collection. It returns the new
// session, or nil when nothing was started.
//
// Reconcile never fails: an unmet precondition is a silent no-op.
func (c *Consumer) Reconcile(sel model.Selection) *Session {
	if !sel.Bound() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	// Read the store under mu so a session finishing concurrently is either
	// still registered or has already closed its tail.
	snap := c.store.Snapshot()
	id := snap.ConversationID
	if id == "" || snap.TailOpen {
		return nil
	}
	prompt, ok := snap.PendingPrompt()
	if !ok {
		return nil
	}
	if c.sessions[id] != nil || c.hydrating[id] {
		return nil
	}

	s := newSession(id, sel.Model, sel.Collection, prompt)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	c.sessions[id] = s
	c.wg.Add(1)

	go c.run(ctx, s)
	return s
}

// Cancel abandons the session for conversationID. Partial text is kept and
// the open tail is closed. No write from the session lands after Cancel
// returns. Reports whether a session was found.
func (c *Consumer) Cancel(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessions[conversationID]
	if s == nil || !s.Alive() {
		return false
	}
	c.abandonLocked(s)
	return true
}

// CancelExcept abandons every session not belonging to conversationID.
func (c *Consumer) CancelExcept(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for id, s := range c.sessions {
		if id != conversationID && s.Alive() {
			c.abandonLocked(s)
			n++
		}
	}
	return n
}

// CancelAll abandons every session.
func (c *Consumer) CancelAll() int {
	return c.CancelExcept("")
}

func (c *Consumer) abandonLocked(s *Session) {
	s.kill()
	// Leave the partial answer in place but release the tail. Rejected
	// harmlessly when the conversation has already been switched away.
	_ = c.store.Dispatch(conversation.CloseTail{ID: s.ConversationID})
}

// Close abandons all sessions and waits for their goroutines to exit.
func (c *Consumer) Close() {
	c.mu.Lock()
	c.closed = true
	for _, s := range c.sessions {
		if s.Alive() {
			c.abandonLocked(s)
		}
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// Watch abandons sessions whose conversation stops being current. It runs
// until ctx is done or updates closes. updates is latest-wins, so a quick
// A to B to A switch may never show B; callers that switch conversations
// call CancelExcept themselves and rely on Watch only as a backstop.
func (c *Consumer) Watch(ctx context.Context, updates <-chan conversation.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if n := c.CancelExcept(st.ConversationID); n > 0 {
				c.logger.Info("STREAM_ABANDONED", "count", n, "current", st.ConversationID)
			}
		}
	}
}

// =============================================================================
// HYDRATION GUARD
// =============================================================================

// BeginHydration reserves conversationID for a bulk load. It fails with
// ErrSessionActive while a session is streaming into that conversation.
func (c *Consumer) BeginHydration(conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.sessions[conversationID] != nil {
		return ErrSessionActive
	}
	if c.hydrating[conversationID] {
		return ErrHydrating
	}
	c.hydrating[conversationID] = true
	return nil
}

// EndHydration releases a reservation taken by BeginHydration.
func (c *Consumer) EndHydration(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hydrating, conversationID)
}

// Hydrating reports whether conversationID is being loaded.
func (c *Consumer) Hydrating(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hydrating[conversationID]
}

// =============================================================================
// STATUS
// =============================================================================

// State returns the state of the session for conversationID.
func (c *Consumer) State(conversationID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.sessions[conversationID]; s != nil {
		return s.State()
	}
	return StateIdle
}

// InFlight reports whether a response is being fetched for conversationID.
func (c *Consumer) InFlight(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[conversationID] != nil
}

// Session returns the session for conversationID, or nil.
func (c *Consumer) Session(conversationID string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[conversationID]
}

// Active returns the number of registered sessions.
func (c *Consumer) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// =============================================================================
// SESSION LOOP
// =============================================================================

func (c *Consumer) run(ctx context.Context, s *Session) {
	defer c.wg.Done()

	ctx, span := c.tracer.Start(ctx, "stream.session", trace.WithAttributes(
		attribute.String("conversation.id", s.ConversationID),
		attribute.String("model", s.Model),
		attribute.String("collection", s.Collection),
	))
	defer span.End()

	c.metrics.SessionStarted(ctx, s.Model, s.Collection)
	c.logger.Info("STREAM_OPEN",
		"session", s.ID,
		"conversation", s.ConversationID,
		"model", s.Model,
		"collection", s.Collection)
	c.transition(s, StateOpening, "", false)

	body, err := c.opener.OpenStream(ctx, s.request())
	if err != nil {
		if !s.Alive() || ctx.Err() != nil {
			c.abandoned(ctx, s)
			return
		}
		c.fail(ctx, span, s, err.Error())
		return
	}
	defer body.Close()

	if err := c.write(s, conversation.OpenModel{ID: s.ConversationID}); err != nil {
		c.writeFailed(ctx, span, s, err)
		return
	}
	s.tailOpen = true
	c.transition(s, StateStreaming, "", false)

	reader := sse.NewReader(body,
		sse.WithLogger(c.logger),
		sse.WithDropHook(func(string, error) { c.metrics.LineDropped(ctx) }),
	)

	for {
		if !s.Alive() {
			c.abandoned(ctx, s)
			return
		}

		ev, err := reader.NextContext(ctx)
		if errors.Is(err, io.EOF) {
			// No terminal event: text received so far is the answer.
			if s.buf.Len() > 0 {
				c.complete(ctx, span, s, s.buf.String())
			} else {
				c.fail(ctx, span, s, ReasonEmptyStream)
			}
			return
		}
		if err != nil {
			if !s.Alive() || ctx.Err() != nil {
				c.abandoned(ctx, s)
				return
			}
			c.fail(ctx, span, s, err.Error())
			return
		}

		switch ev.Kind {
		case sse.KindStreaming:
			s.buf.WriteString(ev.Chunk)
			c.metrics.ChunkReceived(ctx)
			if err := c.write(s, conversation.ReplaceTail{ID: s.ConversationID, Text: s.buf.String()}); err != nil {
				c.writeFailed(ctx, span, s, err)
				return
			}
		case sse.KindComplete:
			c.complete(ctx, span, s, ev.FinalText(s.buf.String()))
			return
		case sse.KindError:
			c.fail(ctx, span, s, ev.Err)
			return
		}
	}
}

// write dispatches a keyed action unless the session has been abandoned.
// Holding mu makes the liveness check and the write atomic with Cancel.
func (c *Consumer) write(s *Session, a conversation.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !s.Alive() {
		return errAbandoned
	}
	return c.store.Dispatch(a)
}

func (c *Consumer) complete(ctx context.Context, span trace.Span, s *Session, text string) {
	if err := c.write(s, conversation.ReplaceTail{ID: s.ConversationID, Text: text}); err != nil {
		c.writeFailed(ctx, span, s, err)
		return
	}
	if err := c.write(s, conversation.CloseTail{ID: s.ConversationID}); err != nil {
		c.writeFailed(ctx, span, s, err)
		return
	}

	c.logger.Info("STREAM_COMPLETE",
		"session", s.ID,
		"conversation", s.ConversationID,
		"chars", len(text),
		"duration", s.Elapsed())
	span.SetStatus(codes.Ok, "")
	c.metrics.SessionFinished(ctx, telemetry.OutcomeCompleted, s.Elapsed())
	c.finish(s, Result{State: StateCompleted, Text: text}, StateCompleted, "")
}

// fail writes the error into the conversation and raises a notification.
func (c *Consumer) fail(ctx context.Context, span trace.Span, s *Session, reason string) {
	text := ErrorText(reason)
	s.failing.Store(true)

	if !s.tailOpen {
		if err := c.write(s, conversation.OpenModel{ID: s.ConversationID}); err != nil {
			c.writeFailed(ctx, span, s, err)
			return
		}
		s.tailOpen = true
	}
	if err := c.write(s, conversation.ReplaceTail{ID: s.ConversationID, Text: text}); err != nil {
		c.writeFailed(ctx, span, s, err)
		return
	}
	if err := c.write(s, conversation.CloseTail{ID: s.ConversationID}); err != nil {
		c.writeFailed(ctx, span, s, err)
		return
	}

	c.logger.Warn("STREAM_FAILED",
		"session", s.ID,
		"conversation", s.ConversationID,
		"reason", reason,
		"duration", s.Elapsed())
	span.SetStatus(codes.Error, reason)
	span.RecordError(errors.New(reason))
	c.metrics.SessionFinished(ctx, telemetry.OutcomeFailed, s.Elapsed())

	// Fire and forget: a slow notifier must not hold the session open.
	go notify.Error(c.notifier, reason)

	c.finish(s, Result{State: StateFailed, Text: text, Reason: reason}, StateFailed, reason)
}

// writeFailed handles a rejected store write. A stale or abandoned session
// winds down quietly; anything else is a bug worth logging.
func (c *Consumer) writeFailed(ctx context.Context, span trace.Span, s *Session, err error) {
	if !errors.Is(err, errAbandoned) && !errors.Is(err, conversation.ErrStaleConversation) {
		c.logger.Error("STREAM_WRITE_REJECTED",
			"session", s.ID,
			"conversation", s.ConversationID,
			"error", err)
		span.RecordError(err)
	}
	s.kill()
	c.abandoned(ctx, s)
}

func (c *Consumer) abandoned(ctx context.Context, s *Session) {
	c.logger.Info("STREAM_CANCELED",
		"session", s.ID,
		"conversation", s.ConversationID,
		"received", s.buf.Len(),
		"duration", s.Elapsed())
	c.metrics.SessionFinished(ctx, telemetry.OutcomeCanceled, s.Elapsed())
	c.finish(s, Result{State: StateIdle, Text: s.buf.String(), Canceled: true}, StateIdle, "")
}

// finish records the result, releases the conversation and reports the
// final transitions.
func (c *Consumer) finish(s *Session, res Result, terminal State, reason string) {
	s.result = res
	if s.cancel != nil {
		s.cancel()
	}

	c.mu.Lock()
	if c.sessions[s.ConversationID] == s {
		delete(c.sessions, s.ConversationID)
	}
	c.mu.Unlock()

	if terminal != StateIdle {
		c.transition(s, terminal, reason, false)
	}
	c.transition(s, StateIdle, "", res.Canceled)
	close(s.done)
}

func (c *Consumer) transition(s *Session, to State, reason string, canceled bool) {
	from := State(s.state.Swap(int32(to)))
	c.logger.Debug("STREAM_STATE",
		"session", s.ID,
		"from", from.String(),
		"to", to.String())
	if c.onTransition != nil {
		c.onTransition(Transition{
			SessionID:      s.ID,
			ConversationID: s.ConversationID,
			From:           from,
			To:             to,
			Reason:         reason,
			Canceled:       canceled,
			At:             time.Now(),
		})
	}
}
