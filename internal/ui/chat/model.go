// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/logging"
	"github.com/jeranaias/prism/internal/media"
	"github.com/jeranaias/prism/internal/orchestrator"
	"github.com/jeranaias/prism/internal/ui/components"
	"github.com/jeranaias/prism/internal/ui/styles"
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	orch   *orchestrator.Orchestrator
	host   *credential.MemoryHost
	bridge *Bridge
	theme  *styles.Theme
	keys   KeyMap
	logger *slog.Logger

	// Components
	header      *components.Header
	messages    *components.MessageList
	attachments *components.AttachmentBar
	status      *components.StatusBar
	keyPrompt   *components.KeyPrompt

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Layout
	width  int
	height int
	ready  bool

	// panel replaces the conversation with help or info text until Esc.
	panel string

	// Cycle
	ctx        context.Context
	cancel     context.CancelFunc
	state      orchestrator.State
	activity   styles.Activity
	ticking    bool

	maxAttachment int64
	quitting      bool
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger. The TUI owns the terminal, so the logger
// should write to a file.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithProvider sets the provider name shown in the header.
func WithProvider(name string) Option {
	return func(m *Model) { m.header.Provider = name }
}

// WithMarkdown toggles markdown rendering of replies.
func WithMarkdown(on bool) Option {
	return func(m *Model) { m.messages.SetMarkdown(on) }
}

// WithShowSources toggles the citation list under grounded replies.
func WithShowSources(on bool) Option {
	return func(m *Model) { m.messages.SetShowSources(on) }
}

// WithShowPlan toggles the routing preview in the status bar.
func WithShowPlan(on bool) Option {
	return func(m *Model) { m.status.ShowPlan = on }
}

// WithMaxAttachmentSize caps the size of files accepted by /attach.
func WithMaxAttachmentSize(n int64) Option {
	return func(m *Model) {
		if n > 0 {
			m.maxAttachment = n
		}
	}
}

// WithContext sets the parent context for cycles started by the model.
func WithContext(ctx context.Context) Option {
	return func(m *Model) {
		if ctx != nil {
			m.ctx = ctx
		}
	}
}

// New creates a chat model driving orch. host, when non-nil, is wired to the
// key prompt overlay.
func New(orch *orchestrator.Orchestrator, host *credential.MemoryHost, theme *styles.Theme, opts ...Option) Model {
	if theme == nil {
		theme = styles.NewTheme(styles.ThemeAuto)
	}

	ti := textinput.New()
	ti.CharLimit = 16384
	ti.Prompt = "> "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.TextPrimary)
	ti.PlaceholderStyle = lipgloss.NewStyle().Foreground(styles.TextMuted).Italic(true)
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(styles.Cyan)
	ti.Placeholder = orch.Mode().Placeholder()
	ti.Focus()

	m := Model{
		orch:          orch,
		host:          host,
		theme:         theme,
		keys:          DefaultKeyMap(),
		logger:        logging.Discard(),
		header:        components.NewHeader(theme),
		messages:      components.NewMessageList(theme),
		attachments:   components.NewAttachmentBar(theme),
		status:        components.NewStatusBar(theme),
		keyPrompt:     components.NewKeyPrompt(theme),
		viewport:      viewport.New(80, 20),
		input:         ti,
		ctx:           context.Background(),
		state:         orch.State(),
		maxAttachment: media.MaxInlineSize,
	}
	m.setSpinner(styles.Streaming)
	for _, opt := range opts {
		opt(&m)
	}

	m.bridge = NewBridge(orch, host)
	m.header.SetMode(orch.Mode())
	m.header.SetConfig(orch.Config())
	m.status.State = m.state
	m.status.Hint = bindingHint(m.keys.Help, m.keys.Quit)
	m.updatePreview()
	return m
}

// Close releases the orchestrator subscriptions and cancels any cycle the
// model started. Call it after the program exits.
func (m Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.bridge.Close()
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.bridge.Listen())
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the last cycle state the model observed.
func (m Model) State() orchestrator.State {
	return m.state
}

// Busy reports whether a cycle started by this model is still running.
func (m Model) Busy() bool {
	return m.cancel != nil
}

// Panel returns the text of the open help or info panel.
func (m Model) Panel() string {
	return m.panel
}

// Input returns the current composer text.
func (m Model) Input() string {
	return m.input.Value()
}

// Notice returns the status bar notice.
func (m Model) Notice() (string, bool) {
	return m.status.Notice, m.status.IsError
}

// Attachments returns the queued attachments.
func (m Model) Attachments() int {
	return m.attachments.Len()
}

// KeyPromptActive reports whether the key overlay is open.
func (m Model) KeyPromptActive() bool {
	return m.keyPrompt.Active()
}

// setSpinner swaps the spinner animation. A fresh spinner.Model is built so
// the frame index starts over; its Tick must be scheduled by the caller.
func (m *Model) setSpinner(a styles.Activity) tea.Cmd {
	if m.activity.Name == a.Name {
		return nil
	}
	m.activity = a
	s := spinner.New()
	s.Spinner = a.Spinner()
	s.Style = lipgloss.NewStyle().Foreground(styles.Amber)
	m.spinner = s
	return m.spinner.Tick
}
