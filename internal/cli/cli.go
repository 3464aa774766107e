// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command dispatch for ragchat.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Output destinations. Handlers never write to os.Stdout directly.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdHistory
	CmdShow
	CmdDelete
	CmdModels
	CmdCollections
	CmdUpload
	CmdTemplates
	CmdExport
	CmdStatus
	CmdConfig
	CmdVersion
	CmdHelp
)

var commandNames = map[Command]string{
	CmdTUI:         "tui",
	CmdAsk:         "ask",
	CmdChat:        "chat",
	CmdHistory:     "history",
	CmdShow:        "show",
	CmdDelete:      "delete",
	CmdModels:      "models",
	CmdCollections: "collections",
	CmdUpload:      "upload",
	CmdTemplates:   "templates",
	CmdExport:      "export",
	CmdStatus:      "status",
	CmdConfig:      "config",
	CmdVersion:     "version",
	CmdHelp:        "help",
}

// String returns the command name as typed.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool // Output in JSON format

	// Selection and backend overrides
	Model      string
	Collection string
	URL        string

	// Command-specific
	Query          string
	ConversationID string
	Subcommand     string
	ConfigKey      string
	ConfigVal      string
	Format         string
	Output         string
	Local          bool
	Confirm        bool

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `ragchat - chat with your document collections from the terminal

Usage:
  ragchat                          Start the TUI (default)
  ragchat ask "question"           Ask a single question and print the reply
  ragchat chat                     Line-mode chat with input history
  ragchat history [--local]        List conversations (backend or local archive)
  ragchat show <id>                Print a stored conversation
  ragchat delete <id> [--local]    Delete a conversation
  ragchat models                   List available models
  ragchat collections              List document collections
  ragchat upload <name> <files...> Create a collection from local files
  ragchat templates                List prompt templates
  ragchat templates save <name> <template>
                                   Save a template ({context} and {question} required)
  ragchat export <id> [--format markdown|html|json] [--output DIR] [--local]
                                   Export a conversation to a file
  ragchat status                   Show backend reachability and local state
  ragchat config [show|get|set|keys|init|reset|path]
                                   Configuration
  ragchat version                  Show version information

Ask and chat options:
  -m, --model NAME                 Model to use (default: defaults.model)
  -c, --collection NAME            Collection to query (default: defaults.collection)
  --conversation ID                Continue an existing conversation

Global options:
  --url URL                        Backend URL (overrides backend.url)
  --json                           Output in JSON format
  -q, --quiet                      Minimal output
  -v, --verbose                    Log debug output to the log file

Configuration lives in ~/.ragchat/config.toml (RAGCHAT_HOME overrides the
directory). RAGCHAT_* environment variables and a .env file override it.

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage() {
	fmt.Fprintf(stdout, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Fprintf(stdout, "ragchat version %s\n", Version)
	fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(stdout, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(stdout, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses os.Args and returns the command and args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses args (without the program name).
func ParseArgs(args []string) (Command, Args) {
	remaining, parsed := parseFlags(args)

	// If no remaining args, default to TUI
	if len(remaining) == 0 {
		return CmdTUI, parsed
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsed.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsed

	case "ask":
		parsed.Query = strings.Join(remaining, " ")
		return CmdAsk, parsed

	case "chat":
		return CmdChat, parsed

	case "history", "ls":
		return CmdHistory, parsed

	case "show", "cat":
		parsed.ConversationID = first(remaining)
		return CmdShow, parsed

	case "delete", "rm":
		parsed.ConversationID = first(remaining)
		return CmdDelete, parsed

	case "models":
		return CmdModels, parsed

	case "collections":
		return CmdCollections, parsed

	case "upload":
		return CmdUpload, parsed

	case "templates", "template":
		parsed.Subcommand = strings.ToLower(first(remaining))
		return CmdTemplates, parsed

	case "export":
		parsed.ConversationID = first(remaining)
		return CmdExport, parsed

	case "status", "s":
		return CmdStatus, parsed

	case "config":
		parsed.Subcommand = strings.ToLower(first(remaining))
		if len(remaining) > 1 {
			parsed.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			parsed.ConfigVal = strings.Join(remaining[2:], " ")
		}
		return CmdConfig, parsed

	case "version":
		return CmdVersion, parsed

	case "help":
		return CmdHelp, parsed

	default:
		// Anything else is a question for the default TUI-less path.
		parsed.Raw = append([]string{cmd}, remaining...)
		parsed.Query = strings.Join(parsed.Raw, " ")
		return CmdAsk, parsed
	}
}

// parseFlags extracts flags anywhere on the line and returns the positional
// arguments in order. Arguments after "--" are always positional.
func parseFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	value := func(i *int, name string) string {
		if *i+1 < len(args) {
			*i++
			return args[*i]
		}
		fmt.Fprintf(stderr, "Warning: %s requires a value\n", name)
		return ""
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "--" {
			remaining = append(remaining, args[i+1:]...)
			break
		}

		// --flag=value form
		if name, val, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(name, "--") {
			if setValueFlag(&parsed, name, val) {
				continue
			}
		}

		switch arg {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-v", "--verbose":
			parsed.Verbose = true
		case "--json":
			parsed.JSON = true
		case "--local":
			parsed.Local = true
		case "-y", "--yes", "--confirm":
			parsed.Confirm = true
		case "-h", "--help":
			return []string{"help"}, parsed
		case "--version":
			return []string{"version"}, parsed
		case "-m", "--model", "-c", "--collection", "--url", "--conversation",
			"-f", "--format", "-o", "--output":
			setValueFlag(&parsed, arg, value(&i, arg))
		default:
			remaining = append(remaining, arg)
		}
	}
	return remaining, parsed
}

func setValueFlag(a *Args, name, val string) bool {
	switch name {
	case "-m", "--model":
		a.Model = val
	case "-c", "--collection":
		a.Collection = val
	case "--url":
		a.URL = val
	case "--conversation":
		a.ConversationID = val
	case "-f", "--format":
		a.Format = val
	case "-o", "--output":
		a.Output = val
	default:
		return false
	}
	return true
}

func first(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// =============================================================================
// DISPATCH
// =============================================================================

// Execute runs cmd and returns the process exit code.
func Execute(cmd Command, args Args) int {
	var err error
	switch cmd {
	case CmdTUI:
		err = HandleTUI(args)
	case CmdAsk:
		err = HandleAsk(args)
	case CmdChat:
		err = HandleChat(args)
	case CmdHistory:
		err = HandleHistory(args)
	case CmdShow:
		err = HandleShow(args)
	case CmdDelete:
		err = HandleDelete(args)
	case CmdModels:
		err = HandleModels(args)
	case CmdCollections:
		err = HandleCollections(args)
	case CmdUpload:
		err = HandleUpload(args)
	case CmdTemplates:
		err = HandleTemplates(args)
	case CmdExport:
		err = HandleExport(args)
	case CmdStatus:
		err = HandleStatus(args)
	case CmdConfig:
		err = HandleConfig(args)
	case CmdVersion:
		PrintVersion()
	case CmdHelp:
		PrintUsage()
	default:
		err = NewValidationError("command", cmd.String(), "unknown command")
	}

	if err != nil {
		DisplayError(err, args.JSON)
		return GetExitCode(err)
	}
	return ExitSuccess
}
