// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps a local archive of finished conversations.
//
// The backend owns conversation history; the archive is a private copy in a
// SQLite database (pure Go driver) so transcripts can be listed, searched and
// exported while the backend is unreachable.
//
// # Usage
//
//	archive, err := storage.Open(ctx, path)
//	defer archive.Close()
//
//	err = archive.Save(ctx, conv)
//	metas, err := archive.List(ctx, 20)
//	conv, err := archive.Load(ctx, metas[0].ID)
//	hits, err := archive.Search(ctx, "retrieval")
package storage
