// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the ragchat TUI.

All colors use Lip Gloss AdaptiveColor so one palette serves dark and light
terminals. The configured theme ("dark", "light" or "auto") decides which
side of each pair is used; "auto" asks the terminal through termenv.

# Color System (colors.go)

  - Purple - model messages and selections
  - Cyan - brand color, user prompts, pickers
  - Emerald - success notifications, bound selection
  - Amber - placeholders and warnings
  - Rose - errors

# Theme (theme.go)

Theme bundles every lipgloss.Style the chat view renders with:

	theme := styles.NewThemeNamed(cfg.UI.Theme)
	theme.SetSize(width, height)
	theme.UserBubble.Render(text)

# Status Indicators

Status text always carries an ASCII shape next to its color:

	styles.RenderError("backend unreachable")   // [X] backend unreachable
	styles.RenderSuccess("collection created")  // [OK] collection created
*/
package styles
