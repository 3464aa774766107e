// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides stream session metrics and traces for ragchat.
//
// Metrics and spans are produced with OpenTelemetry and exported to rotating
// local files; nothing is sent over the network. When telemetry is disabled
// the package hands out no-op providers, so callers never branch on it.
//
// # Key Types
//
//   - Provider: owns the tracer and meter providers and their files
//   - Metrics: counters and histograms for stream sessions, plus an
//     in-memory tally for display
//   - Stats: point-in-time copy of the tally
//
// # Usage
//
//	prov, err := telemetry.Setup(ctx, telemetry.Config{Enabled: true, Dir: dir})
//	if err != nil {
//	    return err
//	}
//	defer prov.Shutdown(context.Background())
//
//	prov.Metrics().SessionStarted(ctx, "llama3", "papers")
//
// # Privacy
//
// Prompt and response text are never recorded, only counts and durations.
package telemetry
