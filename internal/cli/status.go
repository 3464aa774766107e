// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Status command implementation.
//
// Command: status
// Short:   Show configuration, backend reachability and the local archive
// Aliases: s
//
// Examples:
//
//	ragchat status
//	ragchat status --json
//
// Status Sections:
//
//	Backend:  URL, reachability, model and collection counts
//	Defaults: model and collection used when no flag is given
//	Local:    config file, log file, archive
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/VINKAS7/ragchat/internal/config"
	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/storage"
)

// statusTimeout bounds the reachability checks.
const statusTimeout = 5 * time.Second

// HandleStatus handles the "status" command.
func HandleStatus(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	data := collectStatus(cfg)

	if args.JSON {
		return NewJSONResponse("status", data).Print()
	}

	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, render(TitleStyle, "ragchat Status"))
	fmt.Fprintln(stdout, RenderSeparator(41))

	fmt.Fprintln(stdout, render(SectionStyle, "Backend"))
	printField("URL", data.BackendURL)
	if data.BackendRunning {
		printField("Status", RenderStatus("ok")+" reachable")
		printField("Models", data.Models)
		printField("Collections", data.Collections)
	} else {
		printField("Status", RenderStatus("fail")+" "+data.BackendError)
	}

	fmt.Fprintln(stdout, render(SectionStyle, "Defaults"))
	printField("Model", labelOrUnset(data.DefaultModel))
	printField("Collection", labelOrUnset(data.DefaultColl))

	fmt.Fprintln(stdout, render(SectionStyle, "Local"))
	printField("Config", data.ConfigPath)
	printField("Log", data.LogPath)
	if data.ArchiveEnabled {
		printField("Archive", fmt.Sprintf("%s (%d archived)", data.ArchivePath, data.Archived))
	} else {
		printField("Archive", render(DimStyle, "disabled"))
	}
	fmt.Fprintln(stdout)
	return nil
}

// collectStatus gathers status fields. Failures are recorded, not returned.
func collectStatus(cfg *config.Config) StatusData {
	data := StatusData{
		Version:        Version,
		BackendURL:     cfg.Backend.URL,
		DefaultModel:   cfg.Defaults.Model,
		DefaultColl:    cfg.Defaults.Collection,
		ArchiveEnabled: cfg.Storage.Enabled,
	}
	data.ConfigPath, _ = config.ConfigPathTOML()
	data.LogPath, _ = cfg.LogPath()

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	client := newClient(cfg, nil)
	if err := client.CheckRunning(ctx); err != nil {
		data.BackendError = err.Error()
	} else {
		data.BackendRunning = true
		if models, err := client.ListModels(ctx); err == nil {
			data.Models = len(models)
		}
		if collections, err := client.ListCollections(ctx); err == nil {
			data.Collections = len(collections)
		}
	}

	if cfg.Storage.Enabled {
		data.ArchivePath, _ = cfg.ArchivePath()
		if data.ArchivePath != "" {
			if archive, err := storage.Open(ctx, data.ArchivePath); err == nil {
				data.Archived, _ = archive.Count(ctx)
				_ = archive.Close()
			}
		}
	}
	return data
}

func labelOrUnset(v string) string {
	if model.IsPlaceholder(v) {
		return render(DimStyle, "(unset)")
	}
	return strings.TrimSpace(v)
}
