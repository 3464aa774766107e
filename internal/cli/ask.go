// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question with a streamed reply.
//
// Usage:
//
//	ragchat ask "What does the contract say about renewals?"
//	ragchat ask -m llama3 -c contracts "Summarize section 4"
//	ragchat ask --conversation <id> "And section 5?"
//
// On a terminal the finished reply is rendered as Markdown. When piped the
// reply streams to stdout as it arrives.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/VINKAS7/ragchat/internal/conversation"
	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/stream"
	"github.com/VINKAS7/ragchat/internal/ui/styles"
	"github.com/VINKAS7/ragchat/internal/util"
)

// guardReason is reported when a prompt cannot be sent yet.
const guardReason = "select a model and a collection and enter a prompt"

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderMarkdown renders content for the terminal. The original content is
// returned when rendering fails.
func renderMarkdown(content, theme string, width int) string {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if theme == styles.ThemeAuto || theme == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(styles.NewThemeNamed(theme).GlamourStyle()))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// =============================================================================
// ASK COMMAND
// =============================================================================

// HandleAsk sends args.Query and prints the reply.
func HandleAsk(args Args) error {
	question := strings.TrimSpace(args.Query)
	if question == "" {
		return ErrMissingArgument("question", `ragchat ask "What is in my documents?"`)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := NewApp(ctx, args)
	if err != nil {
		return err
	}
	defer app.Close()

	sel := app.Selection(args)
	if args.ConversationID != "" {
		if sel, err = resume(ctx, app, args.ConversationID, sel); err != nil {
			return err
		}
	}

	useMarkdown := IsStdoutTTY() && !args.JSON && app.Config.UI.Markdown
	var live io.Writer
	if !args.JSON && !useMarkdown {
		live = stdout
	}
	if useMarkdown && !args.Quiet {
		fmt.Fprintln(stderr, render(DimStyle, "Thinking..."))
	}

	res, err := exchange(ctx, app, sel, question, live)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("ask", AskData{
			ConversationID: res.ConversationID,
			Model:          sel.Model,
			Collection:     sel.Collection,
			Response:       res.Text,
			State:          res.State.String(),
			DurationMs:     res.Elapsed.Milliseconds(),
		}).Print()
	}

	if useMarkdown && res.Text != "" {
		width := GetTerminalWidth() - 4
		if w := app.Config.UI.WordWrap; w > 0 && w < width {
			width = w
		}
		fmt.Fprint(stdout, renderMarkdown(res.Text, app.Config.UI.Theme, width))
	}
	fmt.Fprintln(stdout)

	if res.State == stream.StateFailed {
		return NewCommandError("ask", "stream", res.Reason, nil)
	}
	if res.Canceled {
		return NewCommandError("ask", "stream", "canceled", context.Canceled)
	}
	if !args.Quiet {
		fmt.Fprintf(stderr, "%s\n", render(DimStyle, fmt.Sprintf("conversation %s  %s",
			res.ConversationID, res.Elapsed.Round(time.Millisecond))))
	}
	return nil
}

// resume makes id the current conversation and loads its messages. The
// stored model and collection replace sel where present.
func resume(ctx context.Context, app *App, id string, sel model.Selection) (model.Selection, error) {
	if err := app.Store.Switch(id); err != nil {
		return sel, err
	}
	app.Consumer.CancelExcept(id)
	meta, err := app.Loader.Load(ctx, id)
	if err != nil {
		return sel, fmt.Errorf("load conversation %s: %w", id, err)
	}
	stored := meta.Selection()
	if !model.IsPlaceholder(stored.Model) {
		sel.Model = stored.Model
	}
	if !model.IsPlaceholder(stored.Collection) {
		sel.Collection = stored.Collection
	}
	return sel, nil
}

// =============================================================================
// EXCHANGE
// =============================================================================

// exchangeResult is the outcome of one prompt.
type exchangeResult struct {
	stream.Result
	ConversationID string
	Elapsed        time.Duration
}

// exchange appends prompt to the current conversation (creating one when
// there is none), streams the reply and waits for it. When live is set the
// reply is written there as it grows. ctx cancellation stops the session
// and keeps the partial text.
func exchange(ctx context.Context, app *App, sel model.Selection, prompt string, live io.Writer) (exchangeResult, error) {
	prompt = util.NormalizePrompt(prompt)
	if prompt == "" || !sel.Bound() {
		return exchangeResult{}, NewValidationErrorWithExample("selection", "", guardReason,
			`ragchat ask -m <model> -c <collection> "question"`)
	}

	id := app.Store.CurrentID()
	if id != "" && app.Consumer.Hydrating(id) {
		return exchangeResult{}, errors.New("conversation " + id + " is still loading")
	}
	if id == "" {
		id = model.NewConversationID()
		if err := app.Store.Switch(id); err != nil {
			return exchangeResult{}, err
		}
		app.Logger.Info("CONVERSATION_CREATED", "conversation", id,
			"model", sel.Model, "collection", sel.Collection)
	}
	if err := app.Store.Append(id, model.UserMessage(prompt)); err != nil {
		return exchangeResult{}, err
	}

	index := len(app.Store.Snapshot().Messages)
	sess := app.Consumer.Reconcile(sel)
	if sess == nil {
		return exchangeResult{}, errors.New("could not start a response; another one may still be streaming")
	}

	var printer *livePrinter
	if live != nil {
		printer = startLivePrinter(app.Store, sess, index, live)
	}

	res, err := sess.Wait(ctx)
	if err != nil {
		// Interrupted: stop the session and keep what arrived.
		app.Consumer.Cancel(id)
		<-sess.Done()
		res = sess.Result()
	}

	if printer != nil {
		printer.finish(res)
	}

	out := exchangeResult{Result: res, ConversationID: id, Elapsed: sess.Elapsed()}
	if res.State == stream.StateCompleted {
		archiveCurrent(app, sel)
	}
	return out, nil
}

// archiveCurrent saves the store's conversation when the archive is on.
func archiveCurrent(app *App, sel model.Selection) {
	if app.Archive == nil {
		return
	}
	st := app.Store.Snapshot()
	if st.ConversationID == "" || len(st.Messages) == 0 {
		return
	}
	now := time.Now()
	conv := &model.Conversation{
		ID:         st.ConversationID,
		CreatedAt:  now,
		UpdatedAt:  now,
		Model:      sel.Model,
		Collection: sel.Collection,
		Messages:   model.CloneMessages(st.Messages),
	}
	for _, msg := range conv.Messages {
		if msg.IsUser() {
			conv.Title = model.TitleFrom(msg.Text)
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Archive.Save(ctx, conv); err != nil {
		app.Logger.Warn("ARCHIVE_FAILED", "conversation", conv.ID, "error", err)
	}
}

// =============================================================================
// LIVE OUTPUT
// =============================================================================

// livePrinter writes the reply sess is growing at index of its
// conversation.
type livePrinter struct {
	w       io.Writer
	sess    *stream.Session
	index   int
	cancel  func()
	done    chan struct{}
	mu      sync.Mutex
	printed string
}

func startLivePrinter(store *conversation.Store, sess *stream.Session, index int, w io.Writer) *livePrinter {
	updates, cancel := store.Subscribe()
	p := &livePrinter{w: w, sess: sess, index: index, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for st := range updates {
			if st.ConversationID != sess.ConversationID || len(st.Messages) <= index {
				continue
			}
			if msg := st.Messages[index]; msg.IsModel() {
				p.write(msg.Text)
			}
		}
	}()
	return p
}

// write prints the part of text not yet printed. A reply that was rewritten
// rather than extended is left for finish, and a failure message is left
// for the caller.
func (p *livePrinter) write(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess.Failing() || !strings.HasPrefix(text, p.printed) {
		return
	}
	fmt.Fprint(p.w, text[len(p.printed):])
	p.printed = text
}

func (p *livePrinter) stop() {
	p.cancel()
	<-p.done
}

// finish stops the printer and writes whatever of the final text is
// missing.
func (p *livePrinter) finish(res stream.Result) {
	p.stop()
	if res.State == stream.StateFailed {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.HasPrefix(res.Text, p.printed) {
		fmt.Fprint(p.w, res.Text[len(p.printed):])
	} else {
		// The complete event replaced the streamed text.
		fmt.Fprint(p.w, "\n"+res.Text)
	}
	p.printed = res.Text
}
