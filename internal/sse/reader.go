// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"context"
	"errors"
	"io"
)

const readBufferSize = 4096

// ReaderState reports where a Reader is in its lifecycle.
type ReaderState int

const (
	StateNew       ReaderState = iota // Before Next is first called.
	StateStreaming                    // Yielding events.
	StateDone                         // Next returned io.EOF.
	StateError                        // Next returned a read error.
)

// String returns a readable name for the state.
func (s ReaderState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Reader is a pull-based iterator over the events of an io.Reader.
//
// Events are produced lazily: the underlying reader is only read when no
// decoded event is pending.
type Reader struct {
	src     io.Reader
	dec     *Decoder
	buf     []byte
	pending []Event
	err     error
	state   ReaderState
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	return &Reader{
		src: r,
		dec: NewDecoder(opts...),
		buf: make([]byte, readBufferSize),
	}
}

// Next returns the next event. It returns io.EOF once the source is
// exhausted and every complete line has been yielded. A read error is
// returned after the events decoded before it.
func (r *Reader) Next() (Event, error) {
	return r.NextContext(context.Background())
}

// NextContext is Next with a cancellation check before every underlying read.
func (r *Reader) NextContext(ctx context.Context) (Event, error) {
	if r.state == StateNew {
		r.state = StateStreaming
	}

	for len(r.pending) == 0 {
		if r.err != nil {
			return Event{}, r.err
		}
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.dec.Feed(r.buf[:n])...)
		}
		if err != nil {
			r.dec.Close()
			r.err = err
			if errors.Is(err, io.EOF) {
				r.err = io.EOF
			}
		}
	}

	ev := r.pending[0]
	r.pending = r.pending[1:]
	if len(r.pending) == 0 {
		r.pending = nil
	}
	return ev, nil
}

// State returns the current state, derived from the last Next result.
func (r *Reader) State() ReaderState {
	switch {
	case len(r.pending) > 0:
		return r.state
	case r.err == io.EOF:
		return StateDone
	case r.err != nil:
		return StateError
	default:
		return r.state
	}
}

// Dropped returns the number of malformed records skipped so far.
func (r *Reader) Dropped() int {
	return r.dec.Dropped()
}
