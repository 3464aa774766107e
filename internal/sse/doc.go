// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sse decodes the backend's response stream into typed events.
//
// The response body is a sequence of lines. Lines beginning with the exact
// prefix "data: " carry one JSON record each; every other line is ignored.
// Network fragments never align with line boundaries, so the decoder buffers
// the trailing partial line until its terminating newline arrives.
//
// # Key Types
//
//   - Event: one decoded record (streaming, complete or error)
//   - Decoder: push-style fragment decoder (Feed / Close)
//   - Reader: pull-style iterator over an io.Reader (Next)
//
// # Usage
//
//	r := sse.NewReader(resp.Body, sse.WithLogger(logger))
//	for {
//	    ev, err := r.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    handle(ev)
//	}
//
// Malformed records are dropped with a warning and decoding continues.
package sse
