// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/ui/styles"
)

// =============================================================================
// HEADER COMPONENT
// =============================================================================

// Header is the title bar: brand, mode tabs and the settings that apply to
// the active mode.
type Header struct {
	Title    string
	Provider string
	Mode     model.Mode
	Config   model.RequestConfig
	Width    int
	theme    *styles.Theme
}

// NewHeader creates a header with default values.
func NewHeader(theme *styles.Theme) *Header {
	return &Header{
		Title:  "prism",
		Mode:   model.ModeChat,
		Config: model.DefaultRequestConfig(),
		Width:  80,
		theme:  theme,
	}
}

// SetWidth updates the header width.
func (h *Header) SetWidth(width int) {
	h.Width = width
}

// SetMode updates the active mode tab.
func (h *Header) SetMode(m model.Mode) {
	h.Mode = m
}

// SetConfig updates the request flags shown next to the tabs.
func (h *Header) SetConfig(cfg model.RequestConfig) {
	h.Config = cfg
}

// View renders the header.
func (h *Header) View() string {
	t := h.theme

	brand := t.HeaderBrand.Render(h.Title)
	if h.Provider != "" {
		brand += " " + t.HeaderSubtitle.Render(h.Provider)
	}

	tabs := make([]string, 0, len(model.Modes))
	for _, m := range model.Modes {
		tabs = append(tabs, t.ModeTab(m, m == h.Mode).Render(m.DisplayName()))
	}
	tabRow := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	left := brand + "  " + tabRow
	right := h.settings()

	gap := h.Width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return t.Header.Render(left)
	}
	return t.Header.Width(h.Width).Render(left + strings.Repeat(" ", gap) + right)
}

// settings renders the flags relevant to the active mode.
func (h *Header) settings() string {
	t := h.theme
	switch h.Mode {
	case model.ModeChat:
		parts := make([]string, 0, 3)
		for _, f := range []model.Flag{model.FlagThinking, model.FlagSearch, model.FlagFast} {
			if h.Config.Enabled(f) {
				parts = append(parts, t.FlagOn.Render("["+string(f)+"]"))
			} else {
				parts = append(parts, t.FlagOff.Render(string(f)))
			}
		}
		return strings.Join(parts, " ")
	case model.ModeGenerateImage:
		res := h.Config.Resolution
		if res == "" {
			res = model.Resolution1K
		}
		return t.FlagOn.Render(string(res))
	}
	return ""
}
