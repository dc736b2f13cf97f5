// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"

	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/ui/styles"
)

// =============================================================================
// MESSAGE LIST COMPONENT
// =============================================================================

// bubbleChrome is the horizontal space a bubble spends on margin, border and
// padding.
const bubbleChrome = 8

// MessageList renders the conversation. Settled messages are cached by ID
// because they never change again; the in-progress message is rendered on
// every call.
type MessageList struct {
	theme       *styles.Theme
	width       int
	markdown    bool
	showSources bool

	renderer *glamour.TermRenderer
	cache    map[string]string
}

// NewMessageList creates a message list with markdown and sources enabled.
func NewMessageList(theme *styles.Theme) *MessageList {
	return &MessageList{
		theme:       theme,
		width:       80,
		markdown:    true,
		showSources: true,
		cache:       make(map[string]string),
	}
}

// SetWidth updates the wrap width. The markdown renderer is rebuilt lazily.
func (l *MessageList) SetWidth(width int) {
	if width == l.width {
		return
	}
	l.width = width
	l.renderer = nil
	l.Reset()
}

// SetMarkdown toggles markdown rendering of model replies.
func (l *MessageList) SetMarkdown(on bool) {
	if on != l.markdown {
		l.markdown = on
		l.Reset()
	}
}

// SetShowSources toggles the citation list under grounded replies.
func (l *MessageList) SetShowSources(on bool) {
	if on != l.showSources {
		l.showSources = on
		l.Reset()
	}
}

// Reset drops every cached rendering.
func (l *MessageList) Reset() {
	clear(l.cache)
}

// Render renders all messages separated by blank lines. frame is the
// spinner frame shown in an empty in-progress placeholder.
func (l *MessageList) Render(msgs []*model.Message, frame string) string {
	if len(msgs) == 0 {
		return l.theme.Muted.Render("No messages yet. Type below, or /help for commands.")
	}
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		parts = append(parts, l.RenderMessage(msg, frame))
	}
	return strings.Join(parts, "\n\n")
}

// RenderMessage renders a single message bubble with its label.
func (l *MessageList) RenderMessage(msg *model.Message, frame string) string {
	if !msg.InProgress {
		if cached, ok := l.cache[msg.ID]; ok {
			return cached
		}
	}

	t := l.theme
	style := t.ModelBubble
	switch {
	case msg.Role == model.RoleUser:
		style = t.UserBubble
	case msg.Role == model.RoleSystem:
		style = t.SystemBubble
	case msg.Failed:
		style = t.ErrorBubble
	}

	inner := max(l.width-bubbleChrome, 10)
	body := style.Width(inner + 2).Render(l.body(msg, inner, frame))
	out := l.label(msg) + "\n" + body

	if !msg.InProgress {
		l.cache[msg.ID] = out
	}
	return out
}

func (l *MessageList) label(msg *model.Message) string {
	t := l.theme
	label := t.RoleLabel.Render(msg.Role.DisplayName()) + " " +
		t.Timestamp.Render(msg.CreatedAt.Format("15:04"))
	if msg.Role == model.RoleModel && msg.Model != "" {
		label += " " + t.Timestamp.Render(msg.Model)
	}
	if msg.Role == model.RoleUser {
		return strings.Repeat(" ", 4) + label
	}
	return label
}

func (l *MessageList) body(msg *model.Message, width int, frame string) string {
	t := l.theme
	var sections []string

	if len(msg.Attachments) > 0 {
		chips := make([]string, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			chips = append(chips, t.MediaTag.Render(AttachmentLabel(a)))
		}
		sections = append(sections, strings.Join(chips, " "))
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "" && msg.InProgress:
		sections = append(sections, t.Muted.Render(strings.TrimSpace(frame+" working...")))
	case text != "":
		if msg.Role == model.RoleModel && !msg.InProgress && !msg.Failed && l.markdown {
			text = l.renderMarkdown(text, width)
		}
		sections = append(sections, text)
	}

	if msg.HasMedia() {
		sections = append(sections, t.MediaTag.Render(MediaLabel(msg.Media)))
	}

	if l.showSources && len(msg.Sources) > 0 {
		lines := []string{t.SourceTitle.Render("Sources:")}
		for i, src := range msg.Sources {
			title := src.Title
			if title == "" {
				title = src.URI
			}
			line := styles.SourcePrefix(i == len(msg.Sources)-1) + t.SourceTitle.Render(title)
			if src.URI != "" && src.URI != title {
				line += " " + t.SourceLink.Render(src.URI)
			}
			lines = append(lines, line)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

// renderMarkdown renders text with glamour, falling back to the raw text
// when the renderer cannot be built or fails.
func (l *MessageList) renderMarkdown(text string, width int) string {
	if l.renderer == nil {
		opt := glamour.WithAutoStyle()
		if name := l.theme.GlamourStyle(); name != "" {
			opt = glamour.WithStandardStyle(name)
		}
		r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(width))
		if err != nil {
			return text
		}
		l.renderer = r
	}
	out, err := l.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// AttachmentLabel formats an attachment as "[kind] name (size)".
func AttachmentLabel(a model.Attachment) string {
	name := a.Name
	if name == "" {
		name = a.MIMEType
	}
	return fmt.Sprintf("[%s] %s (%s)", a.Kind, name, humanize.Bytes(uint64(a.Size())))
}

// MediaLabel formats a generated media reference.
func MediaLabel(m *model.Media) string {
	if m.Empty() {
		return ""
	}
	label := "[image] " + m.MIMEType
	if len(m.Data) > 0 {
		label += " " + humanize.Bytes(uint64(len(m.Data)))
	}
	if m.URI != "" {
		label += " saved to " + m.URI
	}
	return label
}
