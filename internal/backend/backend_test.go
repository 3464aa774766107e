// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VINKAS7/ragchat/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithConfig(&ClientConfig{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		RetryDelay: time.Millisecond,
	})
}

func validStreamRequest() StreamRequest {
	return StreamRequest{
		ModelName:      "llama3",
		Prompt:         "hi",
		ConversationID: "c1",
		CollectionName: "papers",
	}
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestNewClientWithConfig_FillsDefaults(t *testing.T) {
	c := NewClientWithConfig(&ClientConfig{BaseURL: "http://example.test:3000/"})
	cfg := c.GetConfig()

	assert.Equal(t, "http://example.test:3000", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 60*time.Second, cfg.StreamTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)

	assert.Equal(t, DefaultBaseURL, NewClient().BaseURL())
}

// =============================================================================
// STREAM TESTS
// =============================================================================

func TestOpenStream_SendsWireBody(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversation/get_response_stream", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"status\":\"complete\",\"full_response\":\"OK\"}\n")
	}))

	body, err := client.OpenStream(context.Background(), validStreamRequest())
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"full_response":"OK"`)

	assert.Equal(t, map[string]string{
		"modelName":       "llama3",
		"prompt":          "hi",
		"conversation_id": "c1",
		"collectionName":  "papers",
	}, got)
}

func TestOpenStream_StatusError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"collection papers not found"}`)
	}))

	_, err := client.OpenStream(context.Background(), validStreamRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection papers not found")
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestOpenStream_RejectsIncompleteRequest(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	req := validStreamRequest()
	req.CollectionName = ""
	_, err := client.OpenStream(context.Background(), req)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "collectionName")
	assert.Zero(t, calls.Load())
}

func TestOpenStream_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClientWithConfig(&ClientConfig{BaseURL: url})
	_, err := client.OpenStream(context.Background(), validStreamRequest())

	assert.True(t, IsNotRunning(err), "got %v", err)
}

func TestOpenStream_Canceled(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.OpenStream(ctx, validStreamRequest())
	assert.True(t, IsCanceled(err), "got %v", err)
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestGetConversation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []model.Message
	}{
		{
			name: "conversation history",
			body: `{"status":"success","conversation_history":[{"user":"q"},{"model":"a"}],"modelName":"llama3"}`,
			want: []model.Message{model.UserMessage("q"), model.ModelMessage("a")},
		},
		{
			name: "collection conversation",
			body: `{"status":"success","collection_conversation":[{"user":"q"}]}`,
			want: []model.Message{model.UserMessage("q")},
		},
		{
			name: "bare array",
			body: `[{"user":"q"},{"model":"a"}]`,
			want: []model.Message{model.UserMessage("q"), model.ModelMessage("a")},
		},
		{
			name: "empty",
			body: `{"status":"success"}`,
			want: []model.Message{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/conversation/get_conversation/abc-123", r.URL.Path)
				io.WriteString(w, tc.body)
			}))

			resp, err := client.GetConversation(context.Background(), "abc-123")
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.Messages())
		})
	}
}

func TestGetConversation_Errors(t *testing.T) {
	notFound := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Conversation not found"}`, http.StatusNotFound)
	}))
	_, err := notFound.GetConversation(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "Conversation not found")

	badStatus := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"error"}`)
	}))
	_, err = badStatus.GetConversation(context.Background(), "x")
	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, ErrTypeInvalidResponse, clientErr.Type)

	_, err = badStatus.GetConversation(context.Background(), "")
	assert.Error(t, err)
}

func TestGetHistoryAndDelete(t *testing.T) {
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("/conversation/get_history", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":"a","name":"First"},{"id":"b","name":""}]`)
	})
	mux.HandleFunc("/conversation/delete/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		deleted = strings.TrimPrefix(r.URL.Path, "/conversation/delete/")
		io.WriteString(w, `{"status":"success"}`)
	})
	client := newTestClient(t, mux)

	history, err := client.GetHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.ConversationSummary{{ID: "a", Name: "First"}, {ID: "b"}}, history)

	require.NoError(t, client.DeleteConversation(context.Background(), "b"))
	assert.Equal(t, "b", deleted)
}

// =============================================================================
// MODEL / COLLECTION TESTS
// =============================================================================

func TestListModelsAndCollections(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/get_ollama_models", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `["llama3","mistral"]`)
	})
	mux.HandleFunc("/api/get_collections", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `["papers"]`)
	})
	client := newTestClient(t, mux)

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3", "mistral"}, models)

	collections, err := client.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"papers"}, collections)
}

func TestGet_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `["llama3"]`)
	}))

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3"}, models)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := client.ListCollections(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateCollection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/create_collection/papers", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		assert.Equal(t, "a.pdf", files[0].Filename)
		assert.Equal(t, "b.txt", files[1].Filename)

		io.WriteString(w, `{"status":"success","collection":"papers","files":["a.pdf","b.txt"]}`)
	}))

	resp, err := client.CreateCollection(context.Background(), "papers", []UploadFile{
		{Name: "/tmp/docs/a.pdf", Reader: strings.NewReader("%PDF")},
		{Name: "b.txt", Reader: strings.NewReader("text")},
	})
	require.NoError(t, err)
	assert.Equal(t, "papers", resp.Collection)
	assert.Equal(t, []string{"a.pdf", "b.txt"}, resp.Files)
}

func TestCreateCollection_Validation(t *testing.T) {
	client := NewClient()
	ctx := context.Background()

	_, err := client.CreateCollection(ctx, "../etc", []UploadFile{{Name: "a", Reader: strings.NewReader("")}})
	assert.ErrorIs(t, err, ErrCollectionName)

	_, err = client.CreateCollection(ctx, "papers", nil)
	assert.Error(t, err)
}

// =============================================================================
// TEMPLATE TESTS
// =============================================================================

func TestPromptTemplates(t *testing.T) {
	var saved map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/conversation/get_all_prompt_templates", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"success","templates":[{"name":"default","prompt_template":"{context} {question}"}]}`)
	})
	mux.HandleFunc("/conversation/new_prompt_template", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
		io.WriteString(w, `{"status":"success"}`)
	})
	client := newTestClient(t, mux)

	templates, err := client.ListPromptTemplates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []PromptTemplate{{Name: "default", Template: "{context} {question}"}}, templates)

	err = client.SavePromptTemplate(context.Background(), PromptTemplate{
		Name:     " strict ",
		Template: "Use only {context} to answer {question}",
	})
	require.NoError(t, err)
	assert.Equal(t, "strict", saved["template_name"])
	assert.Equal(t, "Use only {context} to answer {question}", saved["template"])
}

func TestPromptTemplate_Validate(t *testing.T) {
	assert.ErrorIs(t, PromptTemplate{Name: " ", Template: "{context}{question}"}.Validate(), ErrTemplateName)

	err := PromptTemplate{Name: "x", Template: "{question}"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{context}")

	assert.NoError(t, PromptTemplate{Name: "x", Template: "{context}{question}"}.Validate())
}

func TestSavePromptTemplate_BackendFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"error","detail":"template exists"}`)
	}))

	err := client.SavePromptTemplate(context.Background(), PromptTemplate{Name: "x", Template: "{context}{question}"})
	require.Error(t, err)
	assert.Equal(t, "template exists", err.Error())
}

func TestCheckRunning(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "null")
	}))
	assert.NoError(t, client.CheckRunning(context.Background()))
}
