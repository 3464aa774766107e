// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styling for CLI commands.
//
// Block layout (titles, labels, separators) uses lipgloss. Inline status
// marks use fatih/color so they degrade cleanly in pipes.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// SectionStyle is used for section headers within commands
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")). // White
			MarginTop(1)

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(16)

	// ValueStyle is used for regular values and text
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")) // Off-white

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim gray

	// SeparatorStyle is used for visual separators
	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // Dark gray

	// UserStyle labels the user's turns in transcripts
	UserStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("81"))

	// ModelStyle labels the model's turns in transcripts
	ModelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("141"))
)

// Inline marks.
var (
	okMark    = color.New(color.FgGreen, color.Bold).SprintFunc()
	errorMark = color.New(color.FgRed, color.Bold).SprintFunc()
	warnMark  = color.New(color.FgYellow).SprintFunc()
	infoMark  = color.New(color.FgCyan).SprintFunc()
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator renders a horizontal separator line. Default width is 60.
func RenderSeparator(width ...int) string {
	w := 60
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return render(SeparatorStyle, strings.Repeat("-", w))
}

// RenderStatus renders a status indicator.
func RenderStatus(status string) string {
	switch strings.ToLower(status) {
	case "ok", "success", "pass":
		return okMark("[OK]")
	case "error", "fail", "failed":
		return errorMark("[FAIL]")
	case "warning", "warn", "pending":
		return warnMark("[WARN]")
	default:
		return infoMark("[" + strings.ToUpper(status) + "]")
	}
}

// RenderLabel renders a label with consistent width.
func RenderLabel(label string) string {
	return render(LabelStyle, label)
}

// render applies style only when colors are enabled.
func render(style lipgloss.Style, text string) string {
	if !ColorsEnabled() {
		return text
	}
	return style.Render(text)
}

// printField prints one "label value" line.
func printField(label string, value interface{}) {
	fmt.Fprintf(stdout, "  %s %v\n", RenderLabel(label), value)
}

// printSuccess prints a success line to stdout unless quiet.
func printSuccess(args Args, format string, a ...interface{}) {
	if args.Quiet {
		return
	}
	fmt.Fprintf(stdout, "%s %s\n", okMark("[OK]"), fmt.Sprintf(format, a...))
}

// printNotice prints an informational line to stderr.
func printNotice(format string, a ...interface{}) {
	fmt.Fprintf(stderr, "%s %s\n", infoMark("[i]"), fmt.Sprintf(format, a...))
}
