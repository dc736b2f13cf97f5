// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/orchestrator"
	"github.com/jeranaias/prism/internal/router"
)

// =============================================================================
// COMMAND HANDLER REGISTRY
// =============================================================================

// CommandHandler handles one slash command. It receives the model and the
// command arguments and returns the updated model.
type CommandHandler func(m *Model, args []string) (tea.Model, tea.Cmd)

// commandHandlers maps command names to their handler functions.
var commandHandlers = map[string]CommandHandler{
	// Help & Meta
	"help": handleHelpCommand,
	"h":    handleHelpCommand,
	"?":    handleHelpCommand,
	"quit": handleQuitCommand,
	"q":    handleQuitCommand,
	"exit": handleQuitCommand,

	// Modes
	"mode":     handleModeCommand,
	"m":        handleModeCommand,
	"chat":     modeShortcut(model.ModeChat),
	"gen":      modeShortcut(model.ModeGenerateImage),
	"generate": modeShortcut(model.ModeGenerateImage),
	"edit":     modeShortcut(model.ModeEditImage),
	"analyze":  modeShortcut(model.ModeAnalyze),

	// Request flags
	"think":      flagShortcut(model.FlagThinking),
	"thinking":   flagShortcut(model.FlagThinking),
	"search":     flagShortcut(model.FlagSearch),
	"fast":       flagShortcut(model.FlagFast),
	"res":        handleResolutionCommand,
	"resolution": handleResolutionCommand,

	// Attachments
	"attach": handleAttachCommand,
	"a":      handleAttachCommand,
	"detach": handleDetachCommand,

	// Conversation
	"clear":  handleClearCommand,
	"c":      handleClearCommand,
	"cancel": handleCancelCommand,

	// Credentials
	"key":    handleKeyCommand,
	"forget": handleForgetCommand,

	// Routing
	"models": handleModelsCommand,
	"plan":   handlePlanCommand,
}

// commandHelp lists the commands in display order.
var commandHelp = []struct {
	Usage string
	Desc  string
}{
	{"/mode <chat|generate|edit|analyze>", "switch mode (clears the conversation)"},
	{"/chat /gen /edit /analyze", "mode shortcuts"},
	{"/think /search /fast", "toggle a chat flag (one at a time)"},
	{"/res <1K|2K|4K>", "image resolution"},
	{"/attach <path>", "queue a file for the next message"},
	{"/detach [n]", "drop attachment n, or all"},
	{"/clear", "clear the conversation"},
	{"/cancel", "cancel the running request"},
	{"/key [api-key]", "set your personal key, or show its status"},
	{"/forget", "forget your personal key"},
	{"/models", "show the model for each tier"},
	{"/plan [text]", "show how a message would be routed"},
	{"/help", "this help"},
	{"/quit", "exit"},
}

// handleCommand processes slash commands using the command registry pattern.
func (m Model) handleCommand(content string) (tea.Model, tea.Cmd) {
	m.input.Reset()
	m.updatePreview()

	parts := strings.Fields(content)
	if len(parts) == 0 {
		return m, nil
	}

	cmdName := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	args := parts[1:]

	if handler, ok := commandHandlers[cmdName]; ok {
		return handler(&m, args)
	}
	m.status.SetNotice("Unknown command "+parts[0]+" (try /help)", true)
	return m, nil
}

// =============================================================================
// HELP AND META COMMANDS
// =============================================================================

func handleHelpCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	m.panel = m.helpText()
	return *m, nil
}

func handleQuitCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	return m.quit()
}

// helpText renders the key bindings and commands.
func (m Model) helpText() string {
	t := m.theme
	var b strings.Builder
	b.WriteString(t.OverlayTitle.Render("Keys") + "\n")
	for _, group := range m.keys.FullHelp() {
		for _, kb := range group {
			h := kb.Help()
			fmt.Fprintf(&b, "  %s  %s\n", t.HelpKey.Render(fmt.Sprintf("%-12s", h.Key)), t.HelpDesc.Render(h.Desc))
		}
	}
	b.WriteString("\n" + t.OverlayTitle.Render("Commands") + "\n")
	for _, c := range commandHelp {
		fmt.Fprintf(&b, "  %s  %s\n", t.HelpKey.Render(fmt.Sprintf("%-36s", c.Usage)), t.HelpDesc.Render(c.Desc))
	}
	b.WriteString("\n" + t.Muted.Render("Esc closes this panel."))
	return b.String()
}

// =============================================================================
// MODE COMMANDS
// =============================================================================

func handleModeCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		m.status.SetNotice("Mode: "+m.orch.Mode().DisplayName()+" (usage: /mode chat|generate|edit|analyze)", false)
		return *m, nil
	}
	md, err := model.ParseMode(args[0])
	if err != nil {
		m.status.SetNotice(err.Error(), true)
		return *m, nil
	}
	return m.switchMode(md)
}

func modeShortcut(md model.Mode) CommandHandler {
	return func(m *Model, _ []string) (tea.Model, tea.Cmd) {
		return m.switchMode(md)
	}
}

// =============================================================================
// FLAG COMMANDS
// =============================================================================

func flagShortcut(f model.Flag) CommandHandler {
	return func(m *Model, _ []string) (tea.Model, tea.Cmd) {
		return m.toggle(f)
	}
}

func handleResolutionCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		m.status.SetNotice("Resolution: "+string(m.orch.Config().Resolution)+" (usage: /res 1K|2K|4K)", false)
		return *m, nil
	}
	r, err := model.ParseResolution(args[0])
	if err == nil {
		err = m.orch.SetResolution(r)
	}
	if err != nil {
		m.status.SetNotice(err.Error(), true)
		return *m, nil
	}
	m.header.SetConfig(m.orch.Config())
	m.status.SetNotice("Resolution: "+string(r), false)
	m.updatePreview()
	return *m, nil
}

// =============================================================================
// ATTACHMENT COMMANDS
// =============================================================================

func handleAttachCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		m.status.SetNotice("Usage: /attach <path>", true)
		return *m, nil
	}
	path := expandHome(strings.Join(args, " "))
	m.status.SetNotice("Reading "+filepath.Base(path)+"...", false)
	return *m, loadAttachment(path, m.maxAttachment)
}

func handleDetachCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		m.attachments.Clear()
		m.status.SetNotice("Attachments cleared", false)
	} else {
		n, err := strconv.Atoi(args[0])
		if err != nil || !m.attachments.Remove(n-1) {
			m.status.SetNotice("No attachment "+args[0], true)
			return *m, nil
		}
		m.status.SetNotice("Removed attachment "+args[0], false)
	}
	m.layout()
	m.updatePreview()
	m.updateViewport()
	return *m, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// =============================================================================
// CONVERSATION COMMANDS
// =============================================================================

func handleClearCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	if err := m.orch.Clear(); err != nil {
		if errors.Is(err, orchestrator.ErrBusy) {
			m.status.SetNotice("Cannot clear while a request is running", true)
		} else {
			m.status.SetNotice(err.Error(), true)
		}
		return *m, nil
	}
	m.messages.Reset()
	m.status.SetNotice("Conversation cleared", false)
	m.updateViewport()
	return *m, nil
}

func handleCancelCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	if m.cancel == nil {
		m.status.SetNotice("Nothing to cancel", false)
		return *m, nil
	}
	m.cancel()
	m.status.SetNotice("Cancelling...", false)
	return *m, nil
}

// =============================================================================
// CREDENTIAL COMMANDS
// =============================================================================

func handleKeyCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if m.host == nil {
		m.status.SetNotice("Personal keys are not available", true)
		return *m, nil
	}
	if len(args) == 0 {
		if k, ok := m.host.SelectedKey(m.ctx); ok && k != "" {
			fp := credential.Credential{APIKey: k}.Fingerprint()
			m.status.SetNotice("Personal key set ("+fp+")", false)
		} else {
			m.status.SetNotice("No personal key; one is requested when needed", false)
		}
		return *m, nil
	}
	m.host.Set(args[0])
	fp := credential.Credential{APIKey: args[0]}.Fingerprint()
	m.status.SetNotice("Personal key set ("+fp+")", false)
	return *m, nil
}

func handleForgetCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	if m.host == nil {
		m.status.SetNotice("Personal keys are not available", true)
		return *m, nil
	}
	m.host.Forget()
	m.status.SetNotice("Personal key forgotten", false)
	return *m, nil
}

// =============================================================================
// ROUTING COMMANDS
// =============================================================================

func handleModelsCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	models := m.orch.Models()
	var b strings.Builder
	b.WriteString(m.theme.OverlayTitle.Render("Models") + "\n")
	for _, tier := range router.Tiers {
		fmt.Fprintf(&b, "  %-12s %s\n", tier.String(), models.For(tier))
	}
	m.panel = strings.TrimRight(b.String(), "\n")
	return *m, nil
}

func handlePlanCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	plan := m.orch.Preview(strings.Join(args, " "), m.attachments.Items())
	m.panel = m.theme.OverlayTitle.Render("Routing") + "\n" + planText(plan)
	return *m, nil
}
