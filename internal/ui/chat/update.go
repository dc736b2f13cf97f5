// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/jeranaias/prism/internal/media"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/orchestrator"
	"github.com/jeranaias/prism/internal/router"
	"github.com/jeranaias/prism/internal/ui/styles"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case RefreshMsg:
		cmd := m.refresh()
		return m, tea.Batch(cmd, m.bridge.Listen())

	case KeyRequestMsg:
		m.panel = ""
		cmd := m.keyPrompt.Open()
		return m, tea.Batch(cmd, m.bridge.Listen())

	case CycleDoneMsg:
		return m.handleCycleDone(msg)

	case AttachmentLoadedMsg:
		return m.handleAttachmentLoaded(msg)

	case spinner.TickMsg:
		if !m.state.InFlight() {
			m.ticking = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.status.Frame = m.spinner.View()
		m.updateViewport()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// RESIZE
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true
	m.theme.SetSize(msg.Width, msg.Height)

	m.header.SetWidth(msg.Width)
	m.status.Width = msg.Width
	m.attachments.SetWidth(msg.Width)
	m.keyPrompt.SetWidth(msg.Width)
	m.messages.SetWidth(msg.Width)
	m.input.Width = max(msg.Width-8, 10)

	m.layout()
	m.updateViewport()
	return m, nil
}

// layout sizes the viewport to what the fixed rows leave over.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	fixed := 1 + 3 + 1 // header, bordered input, status bar
	if m.attachments.Len() > 0 {
		fixed++
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-fixed, 1)
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m.quit()
	}

	if m.keyPrompt.Active() {
		switch msg.Type {
		case tea.KeyEnter:
			k := m.keyPrompt.Close()
			m.bridge.AnswerKey(k)
			if k == "" {
				m.status.SetNotice("No key entered; request cancelled", true)
			}
			return m, nil
		case tea.KeyEsc:
			m.keyPrompt.Close()
			m.bridge.AnswerKey("")
			m.status.SetNotice("Request cancelled", true)
			return m, nil
		}
		return m, m.keyPrompt.Update(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Cancel):
		switch {
		case m.panel != "":
			m.panel = ""
		case m.cancel != nil:
			m.cancel()
			m.status.SetNotice("Cancelling...", false)
		default:
			m.status.ClearNotice()
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		if m.panel != "" {
			m.panel = ""
		} else {
			m.panel = m.helpText()
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.NextMode):
		return m.switchMode(m.adjacentMode(1))

	case key.Matches(msg, m.keys.PrevMode):
		return m.switchMode(m.adjacentMode(-1))

	case key.Matches(msg, m.keys.Thinking):
		return m.toggle(model.FlagThinking)

	case key.Matches(msg, m.keys.Search):
		return m.toggle(model.FlagSearch)

	case key.Matches(msg, m.keys.Fast):
		return m.toggle(model.FlagFast)

	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.LineUp(1)
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.LineDown(1)
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	before := m.input.Value()
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.status.ClearNotice()
		m.updatePreview()
	}
	return m, cmd
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.keyPrompt.Active() {
		m.keyPrompt.Close()
		m.bridge.AnswerKey("")
	}
	if m.cancel != nil {
		m.cancel()
	}
	return m, tea.Quit
}

// =============================================================================
// SUBMIT
// =============================================================================

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if strings.HasPrefix(text, "/") {
		return m.handleCommand(text)
	}

	sub := orchestrator.Submission{Text: text, Attachments: m.attachments.Items()}
	ctx, cancel := context.WithCancel(m.ctx)
	done, err := m.orch.Start(ctx, sub)
	if err != nil {
		cancel()
		switch {
		case errors.Is(err, orchestrator.ErrBusy):
			m.status.SetNotice("Still working on the last request (Esc cancels)", true)
		case errors.Is(err, orchestrator.ErrEmpty):
			m.status.SetNotice("Type a message or /attach a file", true)
		default:
			m.status.SetNotice(err.Error(), true)
		}
		return m, nil
	}

	m.logger.Debug("cycle started", "mode", m.orch.Mode().String(), "attachments", len(sub.Attachments))
	m.cancel = cancel
	m.panel = ""
	m.input.Reset()
	m.attachments.Clear()
	m.status.ClearNotice()
	m.layout()
	m.updatePreview()
	m.viewport.GotoBottom()
	return m, waitForResult(done)
}

// waitForResult delivers the cycle result as a CycleDoneMsg.
func waitForResult(done <-chan *orchestrator.Result) tea.Cmd {
	return func() tea.Msg {
		return CycleDoneMsg{Result: <-done}
	}
}

func (m Model) handleCycleDone(msg CycleDoneMsg) (tea.Model, tea.Cmd) {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.keyPrompt.Active() {
		m.keyPrompt.Close()
	}

	res := msg.Result
	switch {
	case res == nil:
	case res.OK() && res.Retried:
		m.status.SetNotice("Done with your key", false)
	case !res.OK():
		m.status.SetNotice(orchestrator.ErrorText(res.Err), true)
		m.logger.Warn("cycle failed", "cycle", res.CycleID, "error", res.Err)
	}
	return m, m.refresh()
}

// =============================================================================
// MODE AND FLAGS
// =============================================================================

func (m Model) adjacentMode(step int) model.Mode {
	current := m.orch.Mode()
	n := len(model.Modes)
	for i, md := range model.Modes {
		if md == current {
			return model.Modes[((i+step)%n+n)%n]
		}
	}
	return model.ModeChat
}

func (m Model) switchMode(md model.Mode) (tea.Model, tea.Cmd) {
	if err := m.orch.SetMode(md); err != nil {
		if errors.Is(err, orchestrator.ErrBusy) {
			m.status.SetNotice("Cannot switch modes while a request is running", true)
		} else {
			m.status.SetNotice(err.Error(), true)
		}
		return m, nil
	}
	m.header.SetMode(md)
	m.input.Placeholder = md.Placeholder()
	m.messages.Reset()
	m.status.SetNotice("Mode: "+md.DisplayName(), false)
	m.updatePreview()
	m.updateViewport()
	return m, nil
}

func (m Model) toggle(f model.Flag) (tea.Model, tea.Cmd) {
	cfg := m.orch.Toggle(f)
	m.header.SetConfig(cfg)
	state := "off"
	if cfg.Enabled(f) {
		state = "on"
	}
	m.status.SetNotice(string(f)+" "+state, false)
	m.updatePreview()
	return m, nil
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// loadAttachment reads a file off the UI goroutine.
func loadAttachment(path string, limit int64) tea.Cmd {
	return func() tea.Msg {
		a, err := media.Load(path)
		if err == nil && limit > 0 && int64(a.Size()) > limit {
			err = fmt.Errorf("%s exceeds the %s attachment limit", humanize.Bytes(uint64(a.Size())), humanize.Bytes(uint64(limit)))
		}
		return AttachmentLoadedMsg{Attachment: a, Err: err, Path: path}
	}
}

func (m Model) handleAttachmentLoaded(msg AttachmentLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.status.SetNotice("attach "+msg.Path+": "+msg.Err.Error(), true)
		return m, nil
	}
	m.attachments.Add(msg.Attachment)
	m.status.SetNotice("Attached "+msg.Attachment.Name, false)
	m.layout()
	m.updatePreview()
	m.updateViewport()
	return m, nil
}

// =============================================================================
// REFRESH
// =============================================================================

// refresh pulls state from the orchestrator and rebuilds the view.
func (m *Model) refresh() tea.Cmd {
	m.state = m.orch.State()
	m.status.State = m.state
	m.header.SetMode(m.orch.Mode())
	m.header.SetConfig(m.orch.Config())

	var cmds []tea.Cmd
	if m.state.InFlight() {
		cmds = append(cmds, m.setSpinner(spinnerFor(m.state)))
		if !m.ticking {
			m.ticking = true
			cmds = append(cmds, m.spinner.Tick)
		}
		m.status.Frame = m.spinner.View()
	}

	m.updatePreview()
	m.updateViewport()
	return tea.Batch(cmds...)
}

func spinnerFor(st orchestrator.State) styles.Activity {
	switch st {
	case orchestrator.StateStreaming:
		return styles.Streaming
	case orchestrator.StateAwaitingCredential:
		return styles.AwaitingKey
	}
	return styles.Waiting
}

// updatePreview recomputes the routing preview for the current draft.
func (m *Model) updatePreview() {
	text := strings.TrimSpace(m.input.Value())
	if strings.HasPrefix(text, "/") {
		m.status.Plan = nil
		return
	}
	plan := m.orch.Preview(text, m.attachments.Items())
	m.status.Plan = &plan
}

// updateViewport re-renders the conversation, following the tail when the
// view was already at the bottom.
func (m *Model) updateViewport() {
	atBottom := m.viewport.AtBottom()
	frame := ""
	if m.state.InFlight() {
		frame = m.spinner.View()
	}
	m.viewport.SetContent(m.messages.Render(m.orch.Conversation().Snapshot(), frame))
	if atBottom || m.state.InFlight() {
		m.viewport.GotoBottom()
	}
}

// planText describes the routing decision for the current draft.
func planText(p router.Plan) string {
	var b strings.Builder
	b.WriteString("Operation:  " + p.Operation.String() + "\n")
	b.WriteString("Tier:       " + p.Tier.String() + "\n")
	b.WriteString("Model:      " + p.Model + "\n")
	if !p.Params.IsZero() {
		if p.Params.ThinkingBudget != 0 {
			b.WriteString("Thinking:   enabled\n")
		}
		if p.Params.GoogleSearch {
			b.WriteString("Search:     grounded\n")
		}
		if p.Params.Resolution != "" {
			b.WriteString("Resolution: " + string(p.Params.Resolution) + "\n")
		}
		if p.Params.AspectRatio != "" {
			b.WriteString("Aspect:     " + p.Params.AspectRatio + "\n")
		}
	}
	if p.RequiresGrant {
		b.WriteString("Key:        your own API key is required\n")
	}
	b.WriteString("Reason:     " + p.Reason)
	return b.String()
}
