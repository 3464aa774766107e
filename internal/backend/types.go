// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/VINKAS7/ragchat/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// StreamRequest is the body of POST /conversation/get_response_stream.
type StreamRequest struct {
	ModelName      string `json:"modelName"`
	Prompt         string `json:"prompt"`
	ConversationID string `json:"conversation_id"`
	CollectionName string `json:"collectionName"`
}

// Validate checks that every field is set.
func (r StreamRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ModelName) == "" {
		missing = append(missing, "modelName")
	}
	if r.Prompt == "" {
		missing = append(missing, "prompt")
	}
	if r.ConversationID == "" {
		missing = append(missing, "conversation_id")
	}
	if strings.TrimSpace(r.CollectionName) == "" {
		missing = append(missing, "collectionName")
	}
	if len(missing) > 0 {
		return fmt.Errorf("stream request missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// savePromptTemplateRequest is the body of POST /conversation/new_prompt_template.
type savePromptTemplateRequest struct {
	TemplateName string `json:"template_name"`
	Template     string `json:"template"`
}

// UploadFile is one file sent to create_collection.
type UploadFile struct {
	Name   string
	Reader io.Reader
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ConversationResponse is a stored conversation.
//
// The backend names the message list conversation_history for plain chats
// and collection_conversation for collection-scoped chats.
type ConversationResponse struct {
	Status                 string          `json:"status"`
	ConversationHistory    []model.Message `json:"conversation_history"`
	CollectionConversation []model.Message `json:"collection_conversation"`
	ModelName              string          `json:"modelName,omitempty"`
	CollectionName         string          `json:"collectionName,omitempty"`
}

// Messages returns whichever message list the response carries.
func (r *ConversationResponse) Messages() []model.Message {
	if r.ConversationHistory != nil {
		return r.ConversationHistory
	}
	if r.CollectionConversation != nil {
		return r.CollectionConversation
	}
	return []model.Message{}
}

// decodeConversation accepts the object form and a bare message array.
func decodeConversation(data []byte) (*ConversationResponse, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var msgs []model.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, err
		}
		return &ConversationResponse{Status: "success", ConversationHistory: msgs}, nil
	}

	var resp ConversationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && !isSuccess(resp.Status) {
		return nil, fmt.Errorf("backend reported status %q", resp.Status)
	}
	return &resp, nil
}

// CreateCollectionResponse is returned by create_collection.
type CreateCollectionResponse struct {
	Status     string   `json:"status"`
	Collection string   `json:"collection"`
	Files      []string `json:"files"`
}

// PromptTemplate is a named prompt with {context} and {question} slots.
type PromptTemplate struct {
	Name     string `json:"name"`
	Template string `json:"prompt_template"`
}

// Template placeholders filled in by the backend.
const (
	PlaceholderContext  = "{context}"
	PlaceholderQuestion = "{question}"
)

// ErrTemplateName is returned for a blank template name.
var ErrTemplateName = errors.New("template name cannot be empty")

// Validate checks the name and that both placeholders are present.
func (t PromptTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrTemplateName
	}
	var missing []string
	for _, p := range []string{PlaceholderContext, PlaceholderQuestion} {
		if !strings.Contains(t.Template, p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("template %q is missing %s", t.Name, strings.Join(missing, " and "))
	}
	return nil
}

type templatesResponse struct {
	Status    string           `json:"status"`
	Templates []PromptTemplate `json:"templates"`
	Detail    string           `json:"detail,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// APIError is the FastAPI error body. Detail is a string for HTTPException
// and a list for validation failures.
type APIError struct {
	Detail json.RawMessage `json:"detail"`
}

// isSuccess accepts the backend's historical misspelling as well.
func isSuccess(status string) bool {
	return strings.EqualFold(status, "success") || strings.EqualFold(status, "sucess")
}
