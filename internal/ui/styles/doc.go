// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the prism TUI.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. A theme name of "dark" or "light" in the configuration pins the
background instead.

# Colors (colors.go)

Each interaction mode has its own accent, used for the active tab:

	ModeColor(model.ModeChat)          - Cyan
	ModeColor(model.ModeGenerateImage) - Purple
	ModeColor(model.ModeEditImage)     - Pink
	ModeColor(model.ModeAnalyze)       - Emerald

Failed responses render with Rose, credential prompts with Amber.

# Theme (theme.go)

	theme := styles.NewTheme(cfg.UI.Theme)
	theme.SetSize(width, height)
	tab := theme.ModeTab(mode, true).Render(mode.DisplayName())

# Animations (animations.go)

Streaming, Waiting and AwaitingKey are Activity values fed to the bubbles
spinner depending on the cycle state. Mark prefixes text with an ASCII
marker so results stay readable without color.
*/
package styles
