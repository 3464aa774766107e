// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VINKAS7/ragchat/internal/backend"
	"github.com/VINKAS7/ragchat/internal/config"
	"github.com/VINKAS7/ragchat/internal/conversation"
	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/storage"
	"github.com/VINKAS7/ragchat/internal/stream"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// captureOutput redirects command output for the duration of the test.
func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	prevOut, prevErr := stdout, stderr
	stdout, stderr = &out, &errOut
	ForceColorsEnabled(false)
	t.Cleanup(func() { stdout, stderr = prevOut, prevErr })
	return &out, &errOut
}

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RAGCHAT_HOME", dir)
	for _, k := range config.EnvKeys() {
		if k == "RAGCHAT_HOME" {
			continue
		}
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	// Keep a stray .env in the working directory out of the test.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

// fakeBackend serves the backend routes the CLI calls.
type fakeBackend struct {
	mu       sync.Mutex
	prompts  []string
	deleted  []string
	uploaded []string
	saved    map[string]string
}

func newFakeBackend(t *testing.T) (*fakeBackend, string) {
	t.Helper()
	fb := &fakeBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("/api/get_ollama_models", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `["llama3","mistral"]`)
	})
	mux.HandleFunc("/api/get_collections", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `["papers"]`)
	})
	mux.HandleFunc("/conversation/get_history", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"id":"c1","name":"Renewal terms"}]`)
	})
	mux.HandleFunc("/conversation/get_conversation/", func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.URL.Path, "/conversation/get_conversation/") != "c1" {
			http.Error(w, `{"detail":"Conversation not found"}`, http.StatusNotFound)
			return
		}
		io.WriteString(w, `{"status":"success","modelName":"llama3","collectionName":"papers",`+
			`"collection_conversation":[{"user":"What about **renewals**?"},{"model":"They renew yearly."}]}`)
	})
	mux.HandleFunc("/conversation/delete/", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.deleted = append(fb.deleted, strings.TrimPrefix(r.URL.Path, "/conversation/delete/"))
		fb.mu.Unlock()
		io.WriteString(w, `{"status":"success"}`)
	})
	mux.HandleFunc("/conversation/get_response_stream", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.prompts = append(fb.prompts, body["prompt"])
		fb.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"status\":\"streaming\",\"chunk\":\"Hello \"}\n\n")
		io.WriteString(w, "data: {\"status\":\"streaming\",\"chunk\":\"there\"}\n\n")
		io.WriteString(w, "data: {\"status\":\"complete\",\"full_response\":\"Hello there\"}\n\n")
	})
	mux.HandleFunc("/api/create_collection/", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		fb.mu.Lock()
		for _, f := range r.MultipartForm.File["files"] {
			fb.uploaded = append(fb.uploaded, f.Filename)
		}
		fb.mu.Unlock()
		name := strings.TrimPrefix(r.URL.Path, "/api/create_collection/")
		fmt.Fprintf(w, `{"status":"success","collection":%q,"files":[]}`, name)
	})
	mux.HandleFunc("/conversation/get_all_prompt_templates", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"success","templates":[{"name":"brief","prompt_template":"{context} {question}"}]}`)
	})
	mux.HandleFunc("/conversation/new_prompt_template", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.saved = body
		fb.mu.Unlock()
		io.WriteString(w, `{"status":"success"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv("RAGCHAT_BACKEND_URL", srv.URL)
	return fb, srv.URL
}

// decodeData unmarshals the data field of a JSON envelope into v.
func decodeData(t *testing.T, out *bytes.Buffer, v interface{}) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &env), out.String())
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

// =============================================================================
// PARSER TESTS
// =============================================================================

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCmd  Command
		validate func(*testing.T, Args)
	}{
		{name: "no args starts the TUI", args: nil, wantCmd: CmdTUI},
		{
			name:    "ask joins the question",
			args:    []string{"ask", "What", "is", "RAG?"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "What is RAG?", a.Query)
			},
		},
		{
			name:    "flags anywhere",
			args:    []string{"ask", "-m", "llama3", "hello", "--collection", "papers", "--json"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "llama3", a.Model)
				assert.Equal(t, "papers", a.Collection)
				assert.True(t, a.JSON)
				assert.Equal(t, "hello", a.Query)
			},
		},
		{
			name:    "equals form",
			args:    []string{"export", "c1", "--format=html", "--output=/tmp/x"},
			wantCmd: CmdExport,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "c1", a.ConversationID)
				assert.Equal(t, "html", a.Format)
				assert.Equal(t, "/tmp/x", a.Output)
			},
		},
		{
			name:    "double dash keeps flags positional",
			args:    []string{"ask", "--", "-m", "is a flag"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "-m is a flag", a.Query)
				assert.Empty(t, a.Model)
			},
		},
		{
			name:    "unknown word is a question",
			args:    []string{"summarize", "section", "4"},
			wantCmd: CmdAsk,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "summarize section 4", a.Query)
			},
		},
		{
			name:    "aliases",
			args:    []string{"rm", "c9", "--local"},
			wantCmd: CmdDelete,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "c9", a.ConversationID)
				assert.True(t, a.Local)
			},
		},
		{
			name:    "config set",
			args:    []string{"config", "set", "defaults.model", "llama3"},
			wantCmd: CmdConfig,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "set", a.Subcommand)
				assert.Equal(t, "defaults.model", a.ConfigKey)
				assert.Equal(t, "llama3", a.ConfigVal)
			},
		},
		{
			name:    "templates save",
			args:    []string{"templates", "save", "brief", "{context}", "{question}"},
			wantCmd: CmdTemplates,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "save", a.Subcommand)
				assert.Equal(t, []string{"save", "brief", "{context}", "{question}"}, a.Raw)
			},
		},
		{name: "help flag", args: []string{"ask", "-h"}, wantCmd: CmdHelp},
		{name: "version flag", args: []string{"--version"}, wantCmd: CmdVersion},
		{
			name:    "conversation flag",
			args:    []string{"chat", "--conversation", "c1", "-y"},
			wantCmd: CmdChat,
			validate: func(t *testing.T, a Args) {
				assert.Equal(t, "c1", a.ConversationID)
				assert.True(t, a.Confirm)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args := ParseArgs(tt.args)
			assert.Equal(t, tt.wantCmd, cmd, "command %s", cmd)
			if tt.validate != nil {
				tt.validate(t, args)
			}
		})
	}
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", ErrMissingArgument("id", "ragchat show <id>"), ExitUsageError},
		{"not found", &NotFoundError{Resource: "conversation", ID: "x"}, ExitNotFoundError},
		{"archive miss", fmt.Errorf("load: %w", storage.ErrConversationNotFound), ExitNotFoundError},
		{"backend down", &backend.ClientError{Type: backend.ErrTypeNotRunning, Message: "down"}, ExitNetworkError},
		{"timeout", context.DeadlineExceeded, ExitTimeoutError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestDisplayError_JSON(t *testing.T) {
	out, _ := captureOutput(t)

	DisplayError(&NotFoundError{Resource: "conversation", ID: "c7"}, true)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, false, got["success"])
	assert.Equal(t, "not_found_error", got["error_type"])
	assert.Equal(t, "c7", got["id"])
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestHandleModels_JSON(t *testing.T) {
	isolate(t)
	newFakeBackend(t)
	out, _ := captureOutput(t)

	require.NoError(t, HandleModels(Args{JSON: true}))

	var data struct {
		Models []string `json:"models"`
	}
	decodeData(t, out, &data)
	assert.Equal(t, []string{"llama3", "mistral"}, data.Models)
}

func TestHandleCollections_MarksDefault(t *testing.T) {
	isolate(t)
	newFakeBackend(t)
	t.Setenv("RAGCHAT_COLLECTION", "papers")
	out, _ := captureOutput(t)

	require.NoError(t, HandleCollections(Args{}))
	assert.Equal(t, "* papers\n", out.String())
}

func TestHandleHistory_Backend(t *testing.T) {
	isolate(t)
	newFakeBackend(t)
	out, _ := captureOutput(t)

	require.NoError(t, HandleHistory(Args{}))
	assert.Contains(t, out.String(), "c1")
	assert.Contains(t, out.String(), "Renewal terms")
}

func TestHandleShow(t *testing.T) {
	isolate(t)
	newFakeBackend(t)

	t.Run("found", func(t *testing.T) {
		out, _ := captureOutput(t)
		require.NoError(t, HandleShow(Args{ConversationID: "c1"}))
		assert.Contains(t, out.String(), "Renewal terms")
		assert.Contains(t, out.String(), "llama3 / papers")
		assert.Contains(t, out.String(), "They renew yearly.")
	})

	t.Run("missing", func(t *testing.T) {
		captureOutput(t)
		err := HandleShow(Args{ConversationID: "nope"})
		require.Error(t, err)
		assert.Equal(t, ExitNotFoundError, GetExitCode(err))
	})

	t.Run("no id", func(t *testing.T) {
		assert.Equal(t, ExitUsageError, GetExitCode(HandleShow(Args{})))
	})
}

func TestHandleDelete(t *testing.T) {
	isolate(t)
	fb, _ := newFakeBackend(t)
	out, _ := captureOutput(t)

	require.NoError(t, HandleDelete(Args{ConversationID: "c1"}))
	assert.Equal(t, []string{"c1"}, fb.deleted)
	assert.Contains(t, out.String(), "Deleted conversation c1")

	// Nothing archived under this id.
	err := HandleDelete(Args{ConversationID: "c1", Local: true})
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestHandleExport(t *testing.T) {
	isolate(t)
	newFakeBackend(t)
	dir := t.TempDir()
	out, _ := captureOutput(t)

	require.NoError(t, HandleExport(Args{ConversationID: "c1", Format: "html", Output: dir, JSON: true}))

	var data map[string]string
	decodeData(t, out, &data)
	assert.Equal(t, dir, filepath.Dir(data["path"]))

	content, err := os.ReadFile(data["path"])
	require.NoError(t, err)
	assert.Contains(t, string(content), "They renew yearly.")

	err = HandleExport(Args{ConversationID: "c1", Format: "pdf", Output: dir})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHandleUpload(t *testing.T) {
	isolate(t)
	fb, _ := newFakeBackend(t)
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(doc, []byte("hello"), 0600))
	out, _ := captureOutput(t)

	require.NoError(t, HandleUpload(Args{Raw: []string{"notes", doc}}))
	assert.Equal(t, []string{"notes.txt"}, fb.uploaded)
	assert.Contains(t, out.String(), "Created collection notes")

	err := HandleUpload(Args{Raw: []string{"notes", filepath.Join(dir, "missing.pdf")}})
	assert.Error(t, err)

	err = HandleUpload(Args{Raw: []string{"../x", doc}})
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	err = HandleUpload(Args{Raw: []string{"notes"}})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHandleTemplates(t *testing.T) {
	isolate(t)
	fb, _ := newFakeBackend(t)
	out, _ := captureOutput(t)

	require.NoError(t, HandleTemplates(Args{}))
	assert.Contains(t, out.String(), "brief")

	require.NoError(t, HandleTemplates(Args{
		Subcommand: "save",
		Raw:        []string{"save", "strict", "Only", "{context}", "answers", "{question}"},
	}))
	assert.Equal(t, "strict", fb.saved["template_name"])
	assert.Equal(t, "Only {context} answers {question}", fb.saved["template"])

	err := HandleTemplates(Args{Subcommand: "save", Raw: []string{"save", "bad", "{question}"}})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHandleStatus_JSON(t *testing.T) {
	isolate(t)
	_, url := newFakeBackend(t)
	out, _ := captureOutput(t)

	require.NoError(t, HandleStatus(Args{JSON: true}))

	var data StatusData
	decodeData(t, out, &data)
	assert.Equal(t, url, data.BackendURL)
	assert.True(t, data.BackendRunning)
	assert.Equal(t, 2, data.Models)
	assert.Equal(t, 1, data.Collections)
	assert.True(t, data.ArchiveEnabled)
}

func TestHandleStatus_BackendDown(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	t.Setenv("RAGCHAT_BACKEND_URL", srv.URL)
	out, _ := captureOutput(t)

	require.NoError(t, HandleStatus(Args{}))
	assert.Contains(t, out.String(), "[FAIL]")
}

func TestHandleConfig_SetGet(t *testing.T) {
	dir := isolate(t)
	out, _ := captureOutput(t)

	require.NoError(t, HandleConfig(Args{Subcommand: "set", ConfigKey: "defaults.model", ConfigVal: "llama3"}))
	_, err := os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, HandleConfig(Args{Subcommand: "get", ConfigKey: "defaults.model"}))
	assert.Equal(t, "llama3\n", out.String())

	err = HandleConfig(Args{Subcommand: "set", ConfigKey: "ui.theme", ConfigVal: "neon"})
	assert.Equal(t, ExitConfigError, GetExitCode(err))

	err = HandleConfig(Args{Subcommand: "set", ConfigKey: "no.such", ConfigVal: "x"})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestHandleConfig_InitReset(t *testing.T) {
	isolate(t)
	captureOutput(t)

	require.NoError(t, HandleConfig(Args{Subcommand: "init"}))
	assert.Equal(t, ExitUsageError, GetExitCode(HandleConfig(Args{Subcommand: "init"})))
	assert.Equal(t, ExitUsageError, GetExitCode(HandleConfig(Args{Subcommand: "reset"})))
	assert.NoError(t, HandleConfig(Args{Subcommand: "reset", Confirm: true}))
}

// =============================================================================
// ASK TESTS
// =============================================================================

func TestHandleAsk_JSONArchivesConversation(t *testing.T) {
	isolate(t)
	fb, _ := newFakeBackend(t)
	out, _ := captureOutput(t)

	require.NoError(t, HandleAsk(Args{Query: "  Say hi  ", Model: "llama3", Collection: "papers", JSON: true}))

	var data AskData
	decodeData(t, out, &data)
	assert.Equal(t, "Hello there", data.Response)
	assert.Equal(t, "completed", data.State)
	assert.Equal(t, "llama3", data.Model)
	assert.NotEmpty(t, data.ConversationID)
	assert.Equal(t, []string{"Say hi"}, fb.prompts)

	out.Reset()
	require.NoError(t, HandleHistory(Args{Local: true, JSON: true}))
	var hist HistoryData
	decodeData(t, out, &hist)
	require.Len(t, hist.Archived, 1)
	assert.Equal(t, data.ConversationID, hist.Archived[0].ID)
	assert.Equal(t, 2, hist.Archived[0].MessageCount)
}

func TestHandleAsk_StreamsWhenPiped(t *testing.T) {
	isolate(t)
	newFakeBackend(t)
	out, errOut := captureOutput(t)

	require.NoError(t, HandleAsk(Args{Query: "hi", Model: "llama3", Collection: "papers"}))
	assert.Equal(t, "Hello there\n", out.String())
	assert.Contains(t, errOut.String(), "conversation ")
}

func TestExchange_RefusedWhileConversationLoads(t *testing.T) {
	store := conversation.NewStore()
	defer store.Close()
	consumer := stream.New(store, nil, stream.Options{})
	defer consumer.Close()

	require.NoError(t, store.Switch("c1"))
	require.NoError(t, consumer.BeginHydration("c1"))
	defer consumer.EndHydration("c1")

	app := &App{Store: store, Consumer: consumer}
	_, err := exchange(context.Background(), app, model.Selection{Model: "llama3", Collection: "papers"}, "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still loading")
	assert.Empty(t, store.Snapshot().Messages, "the prompt must not be queued behind the load")
}

type pipeOpener struct {
	r *io.PipeReader
}

func (p pipeOpener) OpenStream(context.Context, backend.StreamRequest) (io.ReadCloser, error) {
	return p.r, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestExchange_StreamsAnswerThatLooksLikeAnError(t *testing.T) {
	store := conversation.NewStore()
	defer store.Close()
	pr, pw := io.Pipe()
	consumer := stream.New(store, pipeOpener{r: pr}, stream.Options{})
	defer consumer.Close()
	require.NoError(t, store.Switch("c1"))

	app := &App{Store: store, Consumer: consumer}
	live := &syncBuffer{}
	done := make(chan exchangeResult, 1)
	go func() {
		res, err := exchange(context.Background(), app, model.Selection{Model: "llama3", Collection: "papers"}, "what does the log say?", live)
		assert.NoError(t, err)
		done <- res
	}()

	io.WriteString(pw, "data: {\"status\":\"streaming\",\"chunk\":\"Error: disk full was logged\"}\n")
	// Empty chunks republish the same text until the printer has it.
	require.Eventually(t, func() bool {
		io.WriteString(pw, "data: {\"status\":\"streaming\",\"chunk\":\"\"}\n")
		return live.String() == "Error: disk full was logged"
	}, 2*time.Second, 10*time.Millisecond, "answer should stream before it completes")

	io.WriteString(pw, "data: {\"status\":\"complete\"}\n")
	pw.Close()

	res := <-done
	assert.Equal(t, stream.StateCompleted, res.State)
	assert.Equal(t, "Error: disk full was logged", live.String())
}

func TestExchange_FailureIsNotPrintedAsAnswer(t *testing.T) {
	store := conversation.NewStore()
	defer store.Close()
	pr, pw := io.Pipe()
	consumer := stream.New(store, pipeOpener{r: pr}, stream.Options{})
	defer consumer.Close()
	require.NoError(t, store.Switch("c1"))

	app := &App{Store: store, Consumer: consumer}
	live := &syncBuffer{}
	done := make(chan exchangeResult, 1)
	go func() {
		res, err := exchange(context.Background(), app, model.Selection{Model: "llama3", Collection: "papers"}, "hi", live)
		assert.NoError(t, err)
		done <- res
	}()

	io.WriteString(pw, "data: {\"status\":\"error\",\"error\":\"model not loaded\"}\n")
	pw.Close()

	res := <-done
	assert.Equal(t, stream.StateFailed, res.State)
	assert.Equal(t, "model not loaded", res.Reason)
	assert.Empty(t, live.String())
}

func TestHandleAsk_NeedsSelection(t *testing.T) {
	isolate(t)
	fb, _ := newFakeBackend(t)
	captureOutput(t)

	err := HandleAsk(Args{Query: "hi", Model: "llama3"})
	assert.Equal(t, ExitUsageError, GetExitCode(err))
	assert.Empty(t, fb.prompts)

	assert.Equal(t, ExitUsageError, GetExitCode(HandleAsk(Args{Query: "   "})))
}

func TestExecute_UnknownCommandExitCode(t *testing.T) {
	_, errOut := captureOutput(t)
	assert.Equal(t, ExitUsageError, Execute(Command(999), Args{}))
	assert.Contains(t, errOut.String(), "Error:")
}
