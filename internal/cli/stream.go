// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// stream.go - Printing replies as they stream, and markdown rendering.
package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/orchestrator"
)

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter writes the growing text of the in-progress reply to w.
// Chunks carry the full text so far, so only the new suffix is written.
// If a chunk rewrites earlier text, printing pauses and the settled text
// is written in full by finish.
type streamPrinter struct {
	w io.Writer

	mu       sync.Mutex
	id       string
	printed  string
	diverged bool
}

func newStreamPrinter(w io.Writer) *streamPrinter {
	return &streamPrinter{w: w}
}

// Observe is a model.Observer.
func (p *streamPrinter) Observe(ev model.Event) {
	msg := ev.Message
	if ev.Kind != model.EventUpdated || msg == nil || msg.Role != model.RoleModel || !msg.InProgress {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if msg.ID != p.id {
		p.id, p.printed, p.diverged = msg.ID, "", false
	}
	if p.diverged {
		return
	}
	if !strings.HasPrefix(msg.Text, p.printed) {
		p.diverged = true
		return
	}
	fmt.Fprint(p.w, msg.Text[len(p.printed):])
	p.printed = msg.Text
}

// finish writes whatever of the settled text was not streamed and ends the
// line. It reports whether anything was printed for msg. A nil msg only ends
// a partly streamed line.
func (p *streamPrinter) finish(msg *model.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if msg == nil {
		if p.printed != "" {
			fmt.Fprintln(p.w)
		}
		p.id, p.printed, p.diverged = "", "", false
		return false
	}
	streamed := msg.ID == p.id && p.printed != ""
	switch {
	case streamed && !p.diverged && strings.HasPrefix(msg.Text, p.printed):
		fmt.Fprintln(p.w, msg.Text[len(p.printed):])
	case streamed:
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, msg.Text)
	case msg.Text != "":
		fmt.Fprintln(p.w, msg.Text)
	default:
		return false
	}
	p.id, p.printed, p.diverged = "", "", false
	return true
}

// =============================================================================
// MARKDOWN
// =============================================================================

// newMarkdownRenderer builds a glamour renderer for the given glamour style
// name ("dark", "light", or "" for auto) and wrap width.
func newMarkdownRenderer(style string, width int) *glamour.TermRenderer {
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil
	}
	return r
}

// renderMarkdown renders content, returning it unchanged if r is nil or
// rendering fails.
func renderMarkdown(r *glamour.TermRenderer, content string) string {
	if r == nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// =============================================================================
// RESULT OUTPUT
// =============================================================================

// printSources lists grounding citations.
func printSources(w io.Writer, sources []model.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, SectionStyle.Render("Sources"))
	for i, s := range sources {
		title := s.Title
		if title == "" {
			title = s.URI
		}
		fmt.Fprintf(w, "  %d. %s %s\n", i+1, title, DimStyle.Render(s.URI))
	}
}

// printFailure writes the settled error text the way the chat shows it.
func printFailure(w io.Writer, err error) {
	fmt.Fprintln(w, ErrorStyle.Render(orchestrator.ErrorText(err)))
}
