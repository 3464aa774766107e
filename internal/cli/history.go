// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - Stored conversations: list, show, delete and export.
//
// Commands read the backend by default. --local uses the SQLite archive of
// conversations finished on this machine instead.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/VINKAS7/ragchat/internal/backend"
	"github.com/VINKAS7/ragchat/internal/config"
	"github.com/VINKAS7/ragchat/internal/export"
	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/storage"
)

// requestTimeout bounds each non-streaming backend call.
const requestTimeout = 30 * time.Second

// localListLimit caps history --local.
const localListLimit = 50

// withArchive opens the archive for the duration of fn.
func withArchive(ctx context.Context, cfg *config.Config, fn func(*storage.Archive) error) error {
	path, err := cfg.ArchivePath()
	if err != nil {
		return err
	}
	archive, err := storage.Open(ctx, path)
	if err != nil {
		return NewCommandError("archive", "open", path, err)
	}
	defer archive.Close()
	return fn(archive)
}

// =============================================================================
// HISTORY
// =============================================================================

// HandleHistory lists conversations.
func HandleHistory(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return OutputJSON(args.JSON, "history", func() (interface{}, error) {
		if args.Local {
			var metas []storage.ConversationMeta
			err := withArchive(ctx, cfg, func(a *storage.Archive) error {
				var err error
				metas, err = a.List(ctx, localListLimit)
				return err
			})
			if err != nil {
				return nil, err
			}
			if !args.JSON {
				fmt.Fprint(stdout, storage.FormatList(metas))
			}
			return HistoryData{Source: "local", Archived: metas}, nil
		}

		convs, err := newClient(cfg, nil).GetHistory(ctx)
		if err != nil {
			return nil, err
		}
		if !args.JSON {
			printHistory(convs)
		}
		return HistoryData{Source: "backend", Conversations: convs}, nil
	})
}

// =============================================================================
// SHOW
// =============================================================================

// HandleShow prints one conversation.
func HandleShow(args Args) error {
	if args.ConversationID == "" {
		return ErrMissingArgument("conversation id", "ragchat show <id>")
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return OutputJSON(args.JSON, "show", func() (interface{}, error) {
		conv, err := fetchConversation(ctx, cfg, args.ConversationID, args.Local)
		if err != nil {
			return nil, err
		}
		if !args.JSON {
			header := conv.Title
			if header == "" {
				header = conv.ID
			}
			fmt.Fprintln(stdout, render(TitleStyle, header))
			if conv.Model != "" || conv.Collection != "" {
				fmt.Fprintln(stdout, render(DimStyle, conv.Model+" / "+conv.Collection))
			}
			fmt.Fprintln(stdout, RenderSeparator())
			printTranscript(conv.Messages)
		}
		return conv, nil
	})
}

// fetchConversation loads id from the archive or the backend.
func fetchConversation(ctx context.Context, cfg *config.Config, id string, local bool) (*model.Conversation, error) {
	if local {
		var conv *model.Conversation
		err := withArchive(ctx, cfg, func(a *storage.Archive) error {
			var err error
			conv, err = a.Load(ctx, id)
			return err
		})
		if errors.Is(err, storage.ErrConversationNotFound) {
			return nil, &NotFoundError{Resource: "conversation", ID: id}
		}
		return conv, err
	}

	client := newClient(cfg, nil)
	resp, err := client.GetConversation(ctx, id)
	if err != nil {
		if backend.IsNotFound(err) {
			return nil, &NotFoundError{Resource: "conversation", ID: id}
		}
		return nil, err
	}

	conv := &model.Conversation{
		ID:         id,
		Model:      resp.ModelName,
		Collection: resp.CollectionName,
		Messages:   model.CloneMessages(resp.Messages()),
	}
	// The history list carries the display name; a failure only costs the title.
	if convs, err := client.GetHistory(ctx); err == nil {
		for _, c := range convs {
			if c.ID == id {
				conv.Title = c.Name
			}
		}
	}
	if conv.Title == "" {
		for _, msg := range conv.Messages {
			if msg.IsUser() {
				conv.Title = model.TitleFrom(msg.Text)
				break
			}
		}
	}
	return conv, nil
}

// =============================================================================
// DELETE
// =============================================================================

// HandleDelete deletes a conversation from the backend, or from the archive
// with --local. A backend delete also drops the archived copy.
func HandleDelete(args Args) error {
	id := args.ConversationID
	if id == "" {
		return ErrMissingArgument("conversation id", "ragchat delete <id>")
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return OutputJSON(args.JSON, "delete", func() (interface{}, error) {
		result := map[string]interface{}{"id": id, "local": args.Local}

		if !args.Local {
			if err := newClient(cfg, nil).DeleteConversation(ctx, id); err != nil {
				if backend.IsNotFound(err) {
					return nil, &NotFoundError{Resource: "conversation", ID: id}
				}
				return nil, err
			}
		}

		archived := false
		if args.Local || cfg.Storage.Enabled {
			err := withArchive(ctx, cfg, func(a *storage.Archive) error {
				return a.Delete(ctx, id)
			})
			switch {
			case err == nil:
				archived = true
			case errors.Is(err, storage.ErrConversationNotFound):
				if args.Local {
					return nil, &NotFoundError{Resource: "conversation", ID: id}
				}
			case args.Local:
				return nil, err
			}
		}
		result["archived_copy_removed"] = archived

		if !args.JSON {
			printSuccess(args, "Deleted conversation %s", id)
		}
		return result, nil
	})
}

// =============================================================================
// EXPORT
// =============================================================================

// HandleExport writes a conversation to a Markdown, HTML or JSON file.
func HandleExport(args Args) error {
	if args.ConversationID == "" {
		return ErrMissingArgument("conversation id", "ragchat export <id> --format html")
	}
	format := args.Format
	if format == "" {
		format = "markdown"
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	if args.Output != "" {
		opts.OutputDir = args.Output
	}
	if cfg.UI.Theme == "light" {
		opts.Theme = "light"
	}
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return NewValidationErrorWithExample("format", format, err.Error(), "--format markdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return OutputJSON(args.JSON, "export", func() (interface{}, error) {
		conv, err := fetchConversation(ctx, cfg, args.ConversationID, args.Local)
		if err != nil {
			return nil, err
		}
		path, err := export.ExportToFile(conv, exporter, opts)
		if err != nil {
			return nil, NewCommandError("export", "write", args.ConversationID, err)
		}
		if !args.JSON {
			printSuccess(args, "Exported to %s", path)
		}
		return map[string]string{"id": conv.ID, "format": format, "path": path}, nil
	})
}
