// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output support for scripting.
//
// Every command accepts --json and then writes a single JSONResponse to
// stdout. Human-readable progress goes to stderr.
package cli

import (
	"encoding/json"
	"time"

	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/storage"
)

// JSONResponse is the response envelope for every command.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the RFC3339 time the response was generated
	Timestamp string `json:"timestamp"`

	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print outputs the JSON response to stdout.
func (r *JSONResponse) Print() error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// OutputJSON runs handler and, in JSON mode, prints its data in the
// envelope. Errors are returned for Execute to display.
func OutputJSON(jsonMode bool, command string, handler func() (interface{}, error)) error {
	data, err := handler()
	if err != nil || !jsonMode {
		return err
	}
	return NewJSONResponse(command, data).Print()
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// AskData is returned by ask --json.
type AskData struct {
	ConversationID string `json:"conversation_id"`
	Model          string `json:"model"`
	Collection     string `json:"collection"`
	Response       string `json:"response"`
	State          string `json:"state"`
	DurationMs     int64  `json:"duration_ms"`
}

// HistoryData is returned by history --json.
type HistoryData struct {
	Source        string                      `json:"source"`
	Conversations []model.ConversationSummary `json:"conversations,omitempty"`
	Archived      []storage.ConversationMeta  `json:"archived,omitempty"`
}

// StatusData is returned by status --json.
type StatusData struct {
	Version        string `json:"version"`
	ConfigPath     string `json:"config_path"`
	BackendURL     string `json:"backend_url"`
	BackendRunning bool   `json:"backend_running"`
	BackendError   string `json:"backend_error,omitempty"`
	Models         int    `json:"models"`
	Collections    int    `json:"collections"`
	DefaultModel   string `json:"default_model"`
	DefaultColl    string `json:"default_collection"`
	ArchiveEnabled bool   `json:"archive_enabled"`
	ArchivePath    string `json:"archive_path,omitempty"`
	Archived       int    `json:"archived"`
	LogPath        string `json:"log_path"`
}
