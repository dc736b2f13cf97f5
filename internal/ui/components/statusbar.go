// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/prism/internal/orchestrator"
	"github.com/jeranaias/prism/internal/router"
	"github.com/jeranaias/prism/internal/ui/styles"
)

// =============================================================================
// STATUS BAR COMPONENT
// =============================================================================

// StatusBar is the bottom line: cycle state on the left, the routing
// preview for the current draft in the middle, shortcuts on the right.
type StatusBar struct {
	State    orchestrator.State
	Frame    string
	Plan     *router.Plan
	ShowPlan bool
	Notice   string
	IsError  bool
	Hint     string
	Width    int
	theme    *styles.Theme
}

// NewStatusBar creates a status bar.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{
		ShowPlan: true,
		Hint:     "? help  ctrl+c quit",
		Width:    80,
		theme:    theme,
	}
}

// SetNotice shows a transient message in place of the routing preview.
func (s *StatusBar) SetNotice(text string, isError bool) {
	s.Notice = text
	s.IsError = isError
}

// ClearNotice removes the transient message.
func (s *StatusBar) ClearNotice() {
	s.Notice = ""
	s.IsError = false
}

// StateLabel returns the human-readable form of a cycle state.
func StateLabel(st orchestrator.State) string {
	switch st {
	case orchestrator.StateIdle, orchestrator.StateSettledSuccess:
		return "Ready"
	case orchestrator.StateDispatched:
		return "Routing..."
	case orchestrator.StateAwaitingCredential:
		return "Waiting for API key"
	case orchestrator.StateRetrying:
		return "Retrying with your key..."
	case orchestrator.StateStreaming:
		return "Streaming..."
	case orchestrator.StateAwaitingResponse:
		return "Working..."
	case orchestrator.StateSettledError:
		return "Failed"
	}
	return st.String()
}

// View renders the status bar.
func (s *StatusBar) View() string {
	t := s.theme

	var left string
	switch {
	case s.State.InFlight():
		left = t.StatusBusy.Render(strings.TrimSpace(s.Frame + " " + StateLabel(s.State)))
	case s.State == orchestrator.StateSettledError:
		left = t.StatusError.Render(styles.MarkFailed + " " + StateLabel(s.State))
	default:
		left = t.StatusValue.Render(StateLabel(s.State))
	}

	var middle string
	switch {
	case s.Notice != "" && s.IsError:
		middle = t.StatusError.Render(s.Notice)
	case s.Notice != "":
		middle = t.StatusValue.Render(s.Notice)
	case s.ShowPlan && s.Plan != nil:
		middle = t.StatusKey.Render("next: ") + t.StatusValue.Render(PlanSummary(*s.Plan))
	}

	right := t.StatusKey.Render(s.Hint)

	inner := s.Width - 2
	used := lipgloss.Width(left) + lipgloss.Width(right)
	if middle != "" && used+lipgloss.Width(middle)+4 <= inner {
		gap := inner - used - lipgloss.Width(middle)
		lg := gap / 2
		return t.StatusBar.Width(s.Width).Render(
			left + strings.Repeat(" ", lg) + middle + strings.Repeat(" ", gap-lg) + right)
	}
	if used+1 <= inner {
		return t.StatusBar.Width(s.Width).Render(left + strings.Repeat(" ", inner-used) + right)
	}
	return t.StatusBar.Width(max(s.Width, 0)).Render(left)
}

// PlanSummary formats a plan as "operation . model", flagging plans that
// need the user's own key.
func PlanSummary(p router.Plan) string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(p.Operation.String(), "_", " "))
	if p.Model != "" {
		b.WriteString(" . ")
		b.WriteString(p.Model)
	}
	if p.Params.Resolution != "" {
		b.WriteString(" ")
		b.WriteString(string(p.Params.Resolution))
	}
	if p.RequiresGrant {
		b.WriteString(" (needs your key)")
	}
	return b.String()
}
