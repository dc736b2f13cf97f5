// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tui.go - Full-screen chat command.
//
// Command: tui (default)
// Short:   Open the interactive chat interface
// Aliases: ui
package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/prism/internal/ui/chat"
	"github.com/jeranaias/prism/internal/ui/styles"
)

// HandleTUI handles the "tui" command. The runtime should log to a file,
// since the program owns the terminal.
func HandleTUI(ctx context.Context, args Args, rt *Runtime) error {
	if err := RequiresTTY("tui"); err != nil {
		return err
	}
	if !isTerminalWriter(args.stdout()) {
		return &TTYRequiredError{Operation: "tui"}
	}
	cfg := rt.Config()

	m := chat.New(rt.Orchestrator, rt.Host, styles.NewTheme(cfg.UI.Theme),
		chat.WithLogger(rt.Logger),
		chat.WithProvider(cfg.Backend.Provider),
		chat.WithMarkdown(cfg.UI.Markdown),
		chat.WithShowSources(cfg.UI.ShowSources),
		chat.WithShowPlan(cfg.UI.ShowPlan),
		chat.WithMaxAttachmentSize(cfg.MaxAttachmentBytes()),
		chat.WithContext(ctx),
	)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if fm, ok := final.(chat.Model); ok {
		fm.Close()
	} else {
		m.Close()
	}
	if err != nil && ctx.Err() == nil {
		return NewCommandError("tui", "run", "interface exited with an error", err)
	}
	return nil
}
