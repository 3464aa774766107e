// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DataPrefix marks a line that carries a JSON record.
const DataPrefix = "data: "

// DefaultMaxLineSize bounds a single line. A complete record repeats the
// whole answer, so the limit is generous.
const DefaultMaxLineSize = 8 << 20

// ErrLineTooLong is reported when a line exceeds the decoder's limit.
var ErrLineTooLong = errors.New("sse: line exceeds maximum size")

// Option configures a Decoder or Reader.
type Option func(*Decoder)

// WithLogger sets the logger used for dropped-line warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMaxLineSize overrides DefaultMaxLineSize.
func WithMaxLineSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// WithDropHook registers a callback invoked for every dropped record.
func WithDropHook(fn func(line string, err error)) Option {
	return func(d *Decoder) {
		d.onDrop = fn
	}
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns arbitrary byte fragments into events.
//
// Any split of the same byte sequence yields the same events, and a line
// longer than the limit is dropped however it arrives. A Decoder is not
// safe for concurrent use.
type Decoder struct {
	buf     []byte
	logger  *slog.Logger
	maxLine int
	onDrop  func(line string, err error)

	dropped  int
	overflow bool
}

// NewDecoder creates a decoder.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxLine: DefaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// record is the wire form of one data line.
type record struct {
	Status       string  `json:"status"`
	Chunk        *string `json:"chunk"`
	FullResponse *string `json:"full_response"`
	Error        *string `json:"error"`
}

// Feed consumes a fragment and returns the events completed by it.
func (d *Decoder) Feed(fragment []byte) []Event {
	var events []Event
	d.buf = append(d.buf, fragment...)

	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		switch {
		case d.overflow:
			// Already reported while it was still partial.
			d.overflow = false
		case len(line) > d.maxLine:
			d.drop(string(line), ErrLineTooLong)
		default:
			if ev, ok := d.decodeLine(line); ok {
				events = append(events, ev)
			}
		}
		d.buf = d.buf[idx+1:]
	}

	switch {
	case d.overflow:
		// Still inside an oversized line; discard until its newline.
		d.buf = d.buf[:0]
	case len(d.buf) > d.maxLine:
		d.drop(string(d.buf), ErrLineTooLong)
		d.buf = d.buf[:0]
		d.overflow = true
	}

	// Compact so the retained partial line does not pin old fragments.
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 2*len(d.buf)+4096 {
		d.buf = append([]byte(nil), d.buf...)
	}

	return events
}

// Close ends the stream. The unterminated remainder, if any, is never
// decoded; it is reported and the decoder is reset.
func (d *Decoder) Close() (residual int) {
	residual = len(d.buf)
	if residual > 0 {
		d.logger.Debug("SSE_RESIDUAL_DROPPED", "bytes", residual)
	}
	d.buf = nil
	d.overflow = false
	return residual
}

// Buffered returns the number of bytes held for an incomplete line.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Dropped returns the number of data lines discarded as malformed.
func (d *Decoder) Dropped() int {
	return d.dropped
}

func (d *Decoder) decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		return Event{}, false
	}
	payload := line[len(DataPrefix):]

	ev, err := parseRecord(payload)
	if err != nil {
		d.drop(string(payload), err)
		return Event{}, false
	}
	return ev, true
}

func (d *Decoder) drop(line string, err error) {
	d.dropped++
	d.logger.Warn("SSE_LINE_DROPPED", "error", err, "line", truncate(line, 120))
	if d.onDrop != nil {
		d.onDrop(line, err)
	}
}

func parseRecord(payload []byte) (Event, error) {
	var rec record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Event{}, fmt.Errorf("invalid JSON: %w", err)
	}

	switch rec.Status {
	case "streaming":
		if rec.Chunk == nil {
			return Event{}, errors.New("streaming record without chunk")
		}
		return Streaming(*rec.Chunk), nil
	case "complete":
		if rec.FullResponse != nil {
			return CompleteWith(*rec.FullResponse), nil
		}
		return Complete(), nil
	case "error":
		reason := "unknown error"
		if rec.Error != nil && *rec.Error != "" {
			reason = *rec.Error
		}
		return Failure(reason), nil
	default:
		return Event{}, fmt.Errorf("unknown status %q", rec.Status)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
