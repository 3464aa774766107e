// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Session outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
)

// =============================================================================
// METRICS
// =============================================================================

// Metrics records stream session activity.
//
// All methods are safe for concurrent use and on a nil receiver.
type Metrics struct {
	sessions     metric.Int64Counter
	outcomes     metric.Int64Counter
	chunks       metric.Int64Counter
	droppedLines metric.Int64Counter
	duration     metric.Float64Histogram

	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	canceled  atomic.Int64
	chunkN    atomic.Int64
	dropped   atomic.Int64
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.sessions, err = meter.Int64Counter("ragchat.stream.sessions",
		metric.WithDescription("Stream sessions started")); err != nil {
		return nil, fmt.Errorf("create sessions counter: %w", err)
	}
	if m.outcomes, err = meter.Int64Counter("ragchat.stream.outcomes",
		metric.WithDescription("Stream sessions finished, by outcome")); err != nil {
		return nil, fmt.Errorf("create outcomes counter: %w", err)
	}
	if m.chunks, err = meter.Int64Counter("ragchat.stream.chunks",
		metric.WithDescription("Streaming chunks received")); err != nil {
		return nil, fmt.Errorf("create chunks counter: %w", err)
	}
	if m.droppedLines, err = meter.Int64Counter("ragchat.stream.dropped_lines",
		metric.WithDescription("Malformed stream lines discarded")); err != nil {
		return nil, fmt.Errorf("create dropped lines counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("ragchat.stream.duration",
		metric.WithDescription("Stream session duration"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return m, nil
}

// NopMetrics returns metrics that only keep the in-memory tally.
func NopMetrics() *Metrics {
	m, err := NewMetrics(noopMeter)
	if err != nil {
		// The no-op meter never fails.
		panic(err)
	}
	return m
}

// SessionStarted records a new session.
func (m *Metrics) SessionStarted(ctx context.Context, model, collection string) {
	if m == nil {
		return
	}
	m.started.Add(1)
	m.sessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("collection", collection),
	))
}

// SessionFinished records how and after how long a session ended.
func (m *Metrics) SessionFinished(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	switch outcome {
	case OutcomeCompleted:
		m.completed.Add(1)
	case OutcomeFailed:
		m.failed.Add(1)
	case OutcomeCanceled:
		m.canceled.Add(1)
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.outcomes.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}

// ChunkReceived records one streaming chunk.
func (m *Metrics) ChunkReceived(ctx context.Context) {
	if m == nil {
		return
	}
	m.chunkN.Add(1)
	m.chunks.Add(ctx, 1)
}

// LineDropped records one malformed stream line.
func (m *Metrics) LineDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.dropped.Add(1)
	m.droppedLines.Add(ctx, 1)
}

// =============================================================================
// STATS
// =============================================================================

// Stats is a snapshot of the in-memory tally.
type Stats struct {
	Started      int64
	Completed    int64
	Failed       int64
	Canceled     int64
	Chunks       int64
	DroppedLines int64
}

// InFlight returns sessions started but not yet finished.
func (s Stats) InFlight() int64 {
	return s.Started - s.Completed - s.Failed - s.Canceled
}

// String formats the stats on one line.
func (s Stats) String() string {
	return fmt.Sprintf("%d started | %d completed | %d failed | %d canceled | %d chunks | %d dropped lines",
		s.Started, s.Completed, s.Failed, s.Canceled, s.Chunks, s.DroppedLines)
}

// Snapshot returns the current tally.
func (m *Metrics) Snapshot() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		Started:      m.started.Load(),
		Completed:    m.completed.Load(),
		Failed:       m.failed.Load(),
		Canceled:     m.canceled.Load(),
		Chunks:       m.chunkN.Load(),
		DroppedLines: m.dropped.Load(),
	}
}
