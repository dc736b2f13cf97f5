// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/prism/internal/ui/styles"
)

// =============================================================================
// KEY PROMPT OVERLAY
// =============================================================================

// KeyPrompt is the masked input shown when an operation needs the user's
// own API key.
type KeyPrompt struct {
	input  textinput.Model
	active bool
	width  int
	theme  *styles.Theme
}

// NewKeyPrompt creates a hidden key prompt.
func NewKeyPrompt(theme *styles.Theme) *KeyPrompt {
	ti := textinput.New()
	ti.Placeholder = "paste API key"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '*'
	ti.CharLimit = 512
	ti.Width = 48
	ti.Prompt = "key> "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(styles.Amber).Bold(true)
	ti.PlaceholderStyle = lipgloss.NewStyle().Foreground(styles.TextMuted).Italic(true)

	return &KeyPrompt{input: ti, width: 60, theme: theme}
}

// Open shows the overlay with an empty, focused input.
func (k *KeyPrompt) Open() tea.Cmd {
	k.active = true
	k.input.Reset()
	return k.input.Focus()
}

// Close hides the overlay and returns what was typed.
func (k *KeyPrompt) Close() string {
	k.active = false
	k.input.Blur()
	v := strings.TrimSpace(k.input.Value())
	k.input.Reset()
	return v
}

// Active reports whether the overlay is shown.
func (k *KeyPrompt) Active() bool {
	return k.active
}

// SetWidth updates the available width.
func (k *KeyPrompt) SetWidth(width int) {
	k.width = width
	k.input.Width = max(min(width-20, 64), 16)
}

// Update forwards key input to the text field.
func (k *KeyPrompt) Update(msg tea.Msg) tea.Cmd {
	if !k.active {
		return nil
	}
	var cmd tea.Cmd
	k.input, cmd = k.input.Update(msg)
	return cmd
}

// View renders the overlay, or "" when hidden.
func (k *KeyPrompt) View() string {
	if !k.active {
		return ""
	}
	t := k.theme
	body := strings.Join([]string{
		t.OverlayTitle.Render("API key required"),
		"",
		"This operation runs on your own API key.",
		"It is kept in memory for this session only.",
		"",
		k.input.View(),
		"",
		t.HelpKey.Render("enter") + " " + t.HelpDesc.Render("use key") + "   " +
			t.HelpKey.Render("esc") + " " + t.HelpDesc.Render("cancel request"),
	}, "\n")
	return t.Overlay.Render(body)
}
