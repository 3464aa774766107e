// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/VINKAS7/ragchat/internal/backend"
	"github.com/VINKAS7/ragchat/internal/notify"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// Command describes one slash command.
type Command struct {
	Name  string
	Args  string
	Usage string
}

// Commands lists the slash commands in help order.
var Commands = []Command{
	{"/help", "", "show keys and commands"},
	{"/new", "", "start a new conversation"},
	{"/model", "[name]", "pick or set the model"},
	{"/collection", "[name]", "pick or set the collection"},
	{"/history", "", "browse stored conversations"},
	{"/open", "<id>", "open a stored conversation"},
	{"/delete", "[id]", "delete a conversation (default: current)"},
	{"/upload", "<name> <files...>", "create a collection from local files"},
	{"/templates", "[save <name> <template>]", "list or save prompt templates"},
	{"/export", "[md|html|json]", "export the conversation"},
	{"/copy", "", "copy the last reply"},
	{"/retry", "", "ask again for an unanswered prompt"},
	{"/stop", "", "stop the current response"},
	{"/quit", "", "exit"},
}

// ParseCommand splits "/name arg1 arg2" into its name and fields.
func ParseCommand(line string) (name string, args []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// runCommand executes a slash command typed in the prompt box.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	name, args := ParseCommand(line)
	n := m.deps.Notifier

	switch name {
	case "/help", "/?":
		m.showHelp = true
		return m.handleResize(tea.WindowSizeMsg{Width: m.width, Height: m.height})

	case "/new", "/clear":
		return m.newConversation()

	case "/model", "/models":
		if len(args) == 0 {
			return m.openPicker(pickerModel)
		}
		m.setModel(strings.Join(args, " "))
		m.refresh()
		return m, nil

	case "/collection", "/collections":
		if len(args) == 0 {
			return m.openPicker(pickerCollection)
		}
		m.setCollection(strings.Join(args, " "))
		m.refresh()
		return m, nil

	case "/history":
		return m.openPicker(pickerHistory)

	case "/open":
		if len(args) != 1 {
			notify.Error(n, "Usage: /open <conversation id>")
			return m, nil
		}
		return m.openConversation(args[0])

	case "/delete":
		id := m.state.ConversationID
		if len(args) > 0 {
			id = args[0]
		}
		if id == "" {
			notify.Error(n, "Usage: /delete <conversation id>")
			return m, nil
		}
		if m.deps.Backend == nil {
			return m, nil
		}
		return m, deleteConversationCmd(m.deps.Backend, id)

	case "/upload":
		if len(args) < 2 {
			notify.Error(n, "Usage: /upload <collection name> <file> [file...]")
			return m, nil
		}
		if err := backend.ValidateCollectionName(args[0]); err != nil {
			notify.Error(n, err.Error())
			return m, nil
		}
		if m.deps.Backend == nil {
			return m, nil
		}
		notify.Info(n, "Uploading "+args[0]+"...")
		return m, createCollectionCmd(m.deps.Backend, args[0], args[1:])

	case "/templates", "/template":
		return m.templatesCommand(args)

	case "/export":
		format := "markdown"
		if len(args) > 0 {
			format = args[0]
		}
		if m.deps.Store == nil {
			return m, nil
		}
		conv := m.snapshotConversation()
		if conv == nil {
			notify.Info(n, "Nothing to export yet")
			return m, nil
		}
		return m, exportCmd(conv, format, m.deps.ExportDir)

	case "/copy":
		return m.copyLastReply()

	case "/retry":
		return m.retry()

	case "/stop", "/cancel":
		if !m.cancelStream() {
			notify.Info(n, "No response is streaming")
		}
		return m, nil

	case "/quit", "/exit", "/q":
		return m.quit()
	}

	notify.Error(n, "Unknown command "+name+". Type /help for the list.")
	return m, nil
}

func (m Model) templatesCommand(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		return m.openPicker(pickerTemplates)
	}
	if strings.ToLower(args[0]) != "save" || len(args) < 3 {
		notify.Error(m.deps.Notifier, "Usage: /templates save <name> <template with {context} and {question}>")
		return m, nil
	}

	tmpl := backend.PromptTemplate{Name: args[1], Template: strings.Join(args[2:], " ")}
	if err := tmpl.Validate(); err != nil {
		notify.Error(m.deps.Notifier, err.Error())
		return m, nil
	}
	if m.deps.Backend == nil {
		return m, nil
	}
	return m, saveTemplateCmd(m.deps.Backend, tmpl)
}
