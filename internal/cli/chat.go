// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode interactive chat.
//
// A REPL for terminals where the full-screen TUI is unwanted. Input history
// is kept in the config directory and navigated with the arrow keys. Ctrl+C
// while a reply streams stops it; Ctrl+C or Ctrl+D at the prompt exits.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/VINKAS7/ragchat/internal/config"
	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/stream"
	"github.com/VINKAS7/ragchat/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI and loads saved history.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.line.SetCompleter(completeCommand)
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with the given prompt. Non-blank input is added
// to the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists the history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

func completeCommand(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, cmd := range chatCommands {
		if strings.HasPrefix(cmd.name, strings.ToLower(line)) {
			out = append(out, cmd.name+" ")
		}
	}
	return out
}

// =============================================================================
// SESSION
// =============================================================================

// chatSession is the state of one REPL run.
type chatSession struct {
	app       *App
	selection model.Selection
	markdown  bool
	quiet     bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// locked reports whether v can no longer change in the current conversation.
func (s *chatSession) locked(v string) bool {
	return s.app.Store.CurrentID() != "" && !model.IsPlaceholder(v)
}

// interrupt stops the reply in progress. Reports whether there was one.
func (s *chatSession) interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

func (s *chatSession) prompt() string {
	label := s.selection.ModelLabel() + "/" + s.selection.CollectionLabel()
	return "ragchat [" + util.TruncateWidth(label, 40) + "]> "
}

// HandleChat runs the line-mode REPL.
func HandleChat(args Args) error {
	if !IsTTY() {
		return NewValidationErrorWithExample("terminal", "", "chat needs an interactive terminal",
			`ragchat ask "question"`)
	}

	app, err := NewApp(context.Background(), args)
	if err != nil {
		return err
	}
	defer app.Close()

	session := &chatSession{
		app:       app,
		selection: app.Selection(args),
		markdown:  IsStdoutTTY() && app.Config.UI.Markdown,
		quiet:     args.Quiet,
	}
	if args.ConversationID != "" {
		if session.selection, err = resume(context.Background(), app, args.ConversationID, session.selection); err != nil {
			return err
		}
		printTranscript(app.Store.Snapshot().Messages)
	}

	input := NewChatCLI()
	defer input.Close()

	// Ctrl+C during a reply arrives as a signal because liner is not
	// reading the terminal then.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if session.interrupt() {
				fmt.Fprintln(stderr, "\n"+warnMark("[Stopped]"))
			}
		}
	}()

	if !args.Quiet {
		fmt.Fprintln(stdout, render(TitleStyle, "ragchat")+render(DimStyle, "  /help for commands, Ctrl+D to exit"))
		if missing := session.selection.Missing(); len(missing) > 0 {
			printNotice("pick a %s with /model and /collection", strings.Join(missing, " and "))
		}
	}

	for {
		line, err := input.ReadInput(session.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(stdout)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			keepGoing, err := session.command(line)
			if err != nil {
				fmt.Fprintf(stderr, "%s %v\n", errorMark("[Error]"), err)
			}
			if !keepGoing {
				return nil
			}
			continue
		}

		if err := session.send(line); err != nil {
			fmt.Fprintf(stderr, "%s %v\n", errorMark("[Error]"), err)
		}
	}
}

// send runs one exchange and prints the reply.
func (s *chatSession) send(prompt string) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	var live io.Writer
	if !s.markdown {
		live = stdout
	}
	res, err := exchange(ctx, s.app, s.selection, prompt, live)
	if err != nil {
		return err
	}

	if s.markdown && res.Text != "" && res.State != stream.StateFailed {
		fmt.Fprint(stdout, renderMarkdown(res.Text, s.app.Config.UI.Theme, GetTerminalWidth()-4))
	}
	fmt.Fprintln(stdout)

	if res.State == stream.StateFailed {
		return errors.New(res.Reason)
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

var chatCommands = []struct {
	name string
	help string
}{
	{"/help", "show this list"},
	{"/new", "start a new conversation"},
	{"/model", "set the model: /model <name>, or list models"},
	{"/collection", "set the collection: /collection <name>, or list collections"},
	{"/history", "list stored conversations"},
	{"/open", "continue a stored conversation: /open <id>"},
	{"/retry", "ask again for the last unanswered prompt"},
	{"/quit", "exit"},
}

// command runs a slash command. It returns false when the REPL should end.
func (s *chatSession) command(line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	ctx := context.Background()

	switch name {
	case "/help", "/?":
		for _, c := range chatCommands {
			fmt.Fprintf(stdout, "  %s %s\n", util.PadRight(c.name, 12), render(DimStyle, c.help))
		}

	case "/new", "/clear":
		if err := s.app.Store.Switch(""); err != nil {
			return true, err
		}
		s.app.Consumer.CancelExcept("")
		printNotice("new conversation")

	case "/model", "/models":
		if len(args) == 0 {
			models, err := s.app.Client.ListModels(ctx)
			if err != nil {
				return true, err
			}
			printList(models, s.selection.Model, "No model available")
			return true, nil
		}
		if s.locked(s.selection.Model) {
			return true, errors.New("the model is fixed for this conversation; use /new to change it")
		}
		s.selection.Model = strings.Join(args, " ")

	case "/collection", "/collections":
		if len(args) == 0 {
			collections, err := s.app.Client.ListCollections(ctx)
			if err != nil {
				return true, err
			}
			printList(collections, s.selection.Collection, "No collection available")
			return true, nil
		}
		if s.locked(s.selection.Collection) {
			return true, errors.New("the collection is fixed for this conversation; use /new to change it")
		}
		s.selection.Collection = strings.Join(args, " ")

	case "/history":
		convs, err := s.app.Client.GetHistory(ctx)
		if err != nil {
			return true, err
		}
		printHistory(convs)

	case "/open":
		if len(args) != 1 {
			return true, ErrMissingArgument("conversation id", "/open <id>")
		}
		sel, err := resume(ctx, s.app, args[0], s.selection)
		if err != nil {
			return true, err
		}
		s.selection = sel
		printTranscript(s.app.Store.Snapshot().Messages)

	case "/retry":
		prompt, pending := s.app.Store.Snapshot().PendingPrompt()
		if !pending {
			return true, errors.New("there is no unanswered prompt to retry")
		}
		// exchange appends the prompt again; drop the unanswered copy first.
		st := s.app.Store.Snapshot()
		if err := s.app.Store.SetAll(st.ConversationID, st.Messages[:len(st.Messages)-1]); err != nil {
			return true, err
		}
		return true, s.send(prompt)

	case "/quit", "/exit", "/q":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command %s; type /help for the list", name)
	}
	return true, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

// printList prints names one per line, marking current.
func printList(names []string, current, empty string) {
	if len(names) == 0 {
		fmt.Fprintln(stdout, render(DimStyle, empty))
		return
	}
	for _, n := range names {
		mark := "  "
		if n == current {
			mark = okMark("* ")
		}
		fmt.Fprintln(stdout, mark+n)
	}
}

// printHistory prints backend conversation summaries.
func printHistory(convs []model.ConversationSummary) {
	if len(convs) == 0 {
		fmt.Fprintln(stdout, render(DimStyle, "No conversations yet"))
		return
	}
	for _, c := range convs {
		fmt.Fprintf(stdout, "%s  %s\n", util.PadRight(c.ID, 36), util.TruncateWidth(c.DisplayName(), 60))
	}
}

// printTranscript prints messages with role labels.
func printTranscript(msgs []model.Message) {
	for i, msg := range msgs {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		label := render(ModelStyle, msg.Role.DisplayName())
		if msg.IsUser() {
			label = render(UserStyle, msg.Role.DisplayName())
		}
		fmt.Fprintln(stdout, label)
		fmt.Fprintln(stdout, msg.Text)
	}
}
