// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the structured logger shared by every component.
//
// Records are JSON lines written to a size-rotated file. The terminal is
// owned by the TUI, so nothing is logged to stdout unless a console writer
// is requested explicitly.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/VINKAS7/ragchat/internal/config"
)

// Options configures New.
type Options struct {
	Path       string
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Console, when set, receives a copy of every record.
	Console io.Writer
}

// Logger is a slog.Logger bound to a rotating file.
type Logger struct {
	*slog.Logger
	file *lumberjack.Logger
}

// New creates a logger writing to opts.Path.
func New(opts Options) (*Logger, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}

	var w io.Writer = file
	if opts.Console != nil {
		w = io.MultiWriter(opts.Console, file)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	return &Logger{Logger: slog.New(handler), file: file}, nil
}

// FromConfig creates the application logger described by cfg.
func FromConfig(cfg *config.Config) (*Logger, error) {
	path, err := cfg.LogPath()
	if err != nil {
		return nil, err
	}
	return New(Options{
		Path:       path,
		Level:      ParseLevel(cfg.Logging.Level),
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
