// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// catalog.go - Models, collections and prompt templates on the backend.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/VINKAS7/ragchat/internal/backend"
	"github.com/VINKAS7/ragchat/internal/util"
)

// uploadTimeout bounds a collection upload, which includes indexing.
const uploadTimeout = 10 * time.Minute

// =============================================================================
// MODELS AND COLLECTIONS
// =============================================================================

// HandleModels lists the models the backend offers.
func HandleModels(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return OutputJSON(args.JSON, "models", func() (interface{}, error) {
		models, err := newClient(cfg, nil).ListModels(ctx)
		if err != nil {
			return nil, err
		}
		if !args.JSON {
			printList(models, cfg.Defaults.Model, "No model available")
		}
		return map[string]interface{}{"models": models, "default": cfg.Defaults.Model}, nil
	})
}

// HandleCollections lists the document collections.
func HandleCollections(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return OutputJSON(args.JSON, "collections", func() (interface{}, error) {
		collections, err := newClient(cfg, nil).ListCollections(ctx)
		if err != nil {
			return nil, err
		}
		if !args.JSON {
			printList(collections, cfg.Defaults.Collection, "No collection available")
		}
		return map[string]interface{}{"collections": collections, "default": cfg.Defaults.Collection}, nil
	})
}

// =============================================================================
// UPLOAD
// =============================================================================

// HandleUpload creates a collection from local files:
//
//	ragchat upload <collection> <file>...
func HandleUpload(args Args) error {
	const usage = "ragchat upload contracts ./a.pdf ./b.pdf"
	if len(args.Raw) == 0 {
		return ErrMissingArgument("collection name", usage)
	}
	name := args.Raw[0]
	if err := backend.ValidateCollectionName(name); err != nil {
		return NewValidationErrorWithExample("collection name", name, err.Error(), usage)
	}
	paths := args.Raw[1:]
	if len(paths) == 0 {
		return ErrMissingArgument("file", usage)
	}

	files := make([]backend.UploadFile, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeUploads(files)
			return NewCommandError("upload", "open", p, err)
		}
		files = append(files, backend.UploadFile{Name: p, Reader: f})
	}
	defer closeUploads(files)

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	logger, closeLog := openLogger(cfg)
	defer closeLog()

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	return OutputJSON(args.JSON, "upload", func() (interface{}, error) {
		if !args.JSON && !args.Quiet {
			printNotice("uploading %d %s to %s", len(files), util.Plural(len(files), "file", "files"), name)
		}
		resp, err := newClient(cfg, logger).CreateCollection(ctx, name, files)
		if err != nil {
			return nil, err
		}
		logger.Info("COLLECTION_CREATED", "collection", name, "files", len(files))
		if !args.JSON {
			printSuccess(args, "Created collection %s", name)
		}
		return resp, nil
	})
}

func closeUploads(files []backend.UploadFile) {
	for _, f := range files {
		if c, ok := f.Reader.(*os.File); ok {
			_ = c.Close()
		}
	}
}

// =============================================================================
// TEMPLATES
// =============================================================================

// HandleTemplates lists or saves prompt templates:
//
//	ragchat templates [list]
//	ragchat templates save <name> <template...>
func HandleTemplates(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch args.Subcommand {
	case "", "list", "ls":
		return OutputJSON(args.JSON, "templates", func() (interface{}, error) {
			templates, err := newClient(cfg, nil).ListPromptTemplates(ctx)
			if err != nil {
				return nil, err
			}
			if !args.JSON {
				printTemplates(templates)
			}
			return map[string]interface{}{"templates": templates}, nil
		})

	case "save", "add":
		const usage = `ragchat templates save brief "Answer briefly. {context} Q: {question}"`
		if len(args.Raw) < 3 {
			return ErrMissingArgument("template name and text", usage)
		}
		tmpl := backend.PromptTemplate{
			Name:     args.Raw[1],
			Template: strings.Join(args.Raw[2:], " "),
		}
		if err := tmpl.Validate(); err != nil {
			return NewValidationErrorWithExample("template", tmpl.Name, err.Error(), usage)
		}
		return OutputJSON(args.JSON, "templates", func() (interface{}, error) {
			if err := newClient(cfg, nil).SavePromptTemplate(ctx, tmpl); err != nil {
				return nil, err
			}
			if !args.JSON {
				printSuccess(args, "Saved template %s", tmpl.Name)
			}
			return tmpl, nil
		})
	}

	return NewValidationErrorWithExample("subcommand", args.Subcommand, "want list or save", "ragchat templates list")
}

func printTemplates(templates []backend.PromptTemplate) {
	if len(templates) == 0 {
		fmt.Fprintln(stdout, render(DimStyle, "No templates saved"))
		return
	}
	for i, t := range templates {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		fmt.Fprintln(stdout, render(SectionStyle.MarginTop(0), t.Name))
		fmt.Fprintln(stdout, "  "+strings.ReplaceAll(strings.TrimSpace(t.Template), "\n", "\n  "))
	}
}
