// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/VINKAS7/ragchat/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page with embedded CSS.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options: opts,
		// Raw HTML in model output is left escaped (goldmark's default).
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(newCodeRenderer(opts.Theme).nodeRenderer()),
		),
	}
}

// Export converts a conversation to HTML.
func (e *HTMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	name := html.EscapeString(title(conv))
	theme := e.theme()

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", name)
	sb.WriteString("    <meta name=\"generator\" content=\"ragchat\">\n")
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		e.renderHeader(&sb, conv, name)
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, msg := range conv.Messages {
		if err := e.renderMessage(&sb, msg); err != nil {
			return nil, err
		}
	}
	sb.WriteString("        </main>\n")

	fmt.Fprintf(&sb, "        <footer class=\"footer\">Exported from <strong>ragchat</strong> on %s</footer>\n",
		time.Now().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("    </div>\n")
	sb.WriteString(script)
	sb.WriteString("</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

func (e *HTMLExporter) theme() string {
	if e.options.Theme == "light" {
		return "light"
	}
	return "dark"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(sb *strings.Builder, conv *model.Conversation, name string) {
	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(sb, "            <h1>%s</h1>\n", name)
	sb.WriteString("            <div class=\"metadata\">\n")
	if conv.Model != "" {
		fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Model:</strong> %s</span>\n", html.EscapeString(conv.Model))
	}
	if conv.Collection != "" {
		fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Collection:</strong> %s</span>\n", html.EscapeString(conv.Collection))
	}
	fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(conv.CreatedAt))
	fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(conv.Messages))
	sb.WriteString("                <button class=\"theme-toggle\" onclick=\"toggleTheme()\" title=\"Toggle theme\">[Theme]</button>\n")
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")
}

func (e *HTMLExporter) renderMessage(sb *strings.Builder, msg model.Message) error {
	fmt.Fprintf(sb, "            <div class=\"message %s\">\n", msg.Role)
	fmt.Fprintf(sb, "                <div class=\"role\">%s</div>\n", msg.Role.DisplayName())
	sb.WriteString("                <div class=\"content\">")

	if msg.IsUser() {
		sb.WriteString("<p>")
		sb.WriteString(strings.ReplaceAll(html.EscapeString(strings.TrimSpace(msg.Text)), "\n", "<br>\n"))
		sb.WriteString("</p>")
	} else {
		var buf bytes.Buffer
		if err := e.md.Convert([]byte(msg.Text), &buf); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		sb.Write(buf.Bytes())
	}

	sb.WriteString("</div>\n")
	sb.WriteString("            </div>\n")
	return nil
}

// =============================================================================
// CSS AND SCRIPT
// =============================================================================

const css = `    <style>
        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", "Monaco", "Inconsolata", "Fira Code", "Source Code Pro", monospace;
        }
        .dark-theme {
            --bg-primary: #1a1b26;
            --bg-secondary: #24283b;
            --bg-tertiary: #414868;
            --text-primary: #c0caf5;
            --text-muted: #565f89;
            --border-color: #414868;
            --code-bg: #16161e;
            --accent-user: #7aa2f7;
            --accent-model: #9ece6a;
        }
        .light-theme {
            --bg-primary: #ffffff;
            --bg-secondary: #f7f8fa;
            --bg-tertiary: #e1e4e8;
            --text-primary: #24292e;
            --text-muted: #6a737d;
            --border-color: #e1e4e8;
            --code-bg: #f6f8fa;
            --accent-user: #0366d6;
            --accent-model: #22863a;
        }
        body {
            font-family: var(--font-sans);
            line-height: 1.6;
            color: var(--text-primary);
            background: var(--bg-primary);
            margin: 0;
        }
        .container { max-width: 900px; margin: 0 auto; padding: 2rem 1rem; }
        .header { border-bottom: 2px solid var(--border-color); margin-bottom: 1.5rem; }
        .header h1 { margin: 0 0 0.5rem; font-size: 1.6rem; }
        .metadata { display: flex; flex-wrap: wrap; gap: 1rem; color: var(--text-muted); padding-bottom: 1rem; }
        .theme-toggle {
            margin-left: auto;
            background: var(--bg-secondary);
            color: var(--text-primary);
            border: 1px solid var(--border-color);
            border-radius: 4px;
            cursor: pointer;
        }
        .message {
            background: var(--bg-secondary);
            border-left: 4px solid var(--border-color);
            border-radius: 6px;
            padding: 0.75rem 1rem;
            margin-bottom: 1rem;
        }
        .message.user { border-left-color: var(--accent-user); }
        .message.model { border-left-color: var(--accent-model); }
        .role { font-weight: 600; font-size: 0.85rem; color: var(--text-muted); margin-bottom: 0.25rem; }
        .content p { margin: 0.4rem 0; }
        pre, code { font-family: var(--font-mono); background: var(--code-bg); }
        pre { padding: 0.75rem; border-radius: 4px; overflow-x: auto; }
        code { padding: 0.1rem 0.3rem; border-radius: 3px; }
        pre code { padding: 0; }
        table { border-collapse: collapse; }
        th, td { border: 1px solid var(--border-color); padding: 0.3rem 0.6rem; }
        .footer { color: var(--text-muted); font-size: 0.8rem; text-align: center; margin-top: 2rem; }
    </style>
`

const script = `    <script>
        function toggleTheme() {
            const body = document.body;
            if (body.classList.contains('dark-theme')) {
                body.classList.replace('dark-theme', 'light-theme');
            } else {
                body.classList.replace('light-theme', 'dark-theme');
            }
        }
    </script>
`
