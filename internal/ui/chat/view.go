// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "\n  Initializing..."
	}
	if m.keyPrompt.Active() {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.keyPrompt.View())
	}

	body := m.viewport.View()
	if m.panel != "" {
		body = lipgloss.NewStyle().
			Width(m.viewport.Width).
			Height(m.viewport.Height).
			MaxHeight(m.viewport.Height).
			Padding(0, 2).
			Render(m.panel)
	}

	inputBox := m.theme.InputBox
	if m.state.InFlight() {
		inputBox = m.theme.InputBoxBusy
	}

	rows := []string{m.header.View(), body}
	if bar := m.attachments.View(); bar != "" {
		rows = append(rows, bar)
	}
	rows = append(rows,
		inputBox.Width(max(m.width-2, 0)).Render(m.input.View()),
		m.status.View(),
	)
	return strings.Join(rows, "\n")
}
