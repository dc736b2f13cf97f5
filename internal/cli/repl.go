// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Line-based interactive chat.
//
// Command: repl
// Short:   Chat line by line with history
// Aliases: chat
//
// Interactive commands:
//   /help, /h             Show commands
//   /mode NAME            Switch mode (clears the conversation)
//   /chat /gen /edit /analyze
//   /think /search /fast  Toggle request flags
//   /res 1K|2K|4K         Image resolution
//   /attach PATH          Attach a file to the next message
//   /detach               Drop pending attachments
//   /save PATH            Write the last generated image to a file
//   /clear                Clear the conversation
//   /key, /forget         Show or forget the selected API key
//   /models, /plan        Show model tiers or the next route
//   /quit, /q             Exit
//   Ctrl+C                Cancel the running request
//   Ctrl+D                Exit
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/prism/internal/config"
	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/orchestrator"
	"github.com/jeranaias/prism/internal/router"
	"github.com/jeranaias/prism/internal/ui/styles"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineInput wraps liner with a persistent history file.
type lineInput struct {
	line        *liner.State
	historyFile string
}

func newLineInput() *lineInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCommand)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &lineInput{line: line, historyFile: filepath.Join(dir, "repl_history")}
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
	return in
}

func (in *lineInput) read(prompt string) (string, error) {
	s, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) != "" {
		in.line.AppendHistory(s)
	}
	return s, nil
}

func (in *lineInput) close() {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			in.line.WriteHistory(f)
			f.Close()
		}
	}
	in.line.Close()
}

// completeCommand completes slash commands.
func completeCommand(line string) []string {
	if !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for name := range replCommands {
		if strings.HasPrefix("/"+name, line) {
			out = append(out, "/"+name)
		}
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// SESSION
// =============================================================================

// replSession is one interactive session.
type replSession struct {
	rt    *Runtime
	orch  *orchestrator.Orchestrator
	out   io.Writer
	errw  io.Writer
	quiet bool

	input   *lineInput
	printer *streamPrinter
	pending []model.Attachment

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newReplSession(args Args, rt *Runtime) *replSession {
	return &replSession{
		rt:      rt,
		orch:    rt.Orchestrator,
		out:     args.stdout(),
		errw:    args.stderr(),
		quiet:   args.Quiet,
		printer: newStreamPrinter(args.stdout()),
	}
}

// HandleRepl handles the "repl" command.
func HandleRepl(ctx context.Context, args Args, rt *Runtime) error {
	s := newReplSession(args, rt)
	s.input = newLineInput()
	defer s.input.close()

	rt.Host.SetPrompt(s.promptKey)
	unsub := s.orch.Conversation().Subscribe(s.printer.Observe)
	defer unsub()

	// Ctrl+C outside the prompt cancels the running request.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		for range sig {
			if s.cancelRunning() {
				fmt.Fprintln(s.errw, "\n"+WarningStyle.Render("[Cancelled]"))
			}
		}
	}()

	if !s.quiet {
		s.printWelcome()
	}

	for {
		line, err := s.input.read(s.prompt())
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or closed stdin.
			fmt.Fprintln(s.out)
			return nil
		}
		cont, err := s.dispatch(ctx, line)
		if err != nil {
			DisplayError(s.errw, err, false)
		}
		if !cont || ctx.Err() != nil {
			return nil
		}
	}
}

func (s *replSession) prompt() string {
	return fmt.Sprintf("prism %s> ", s.orch.Mode())
}

// dispatch handles one input line. It returns false when the session
// should end.
func (s *replSession) dispatch(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return true, nil
	case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
		return false, nil
	case strings.HasPrefix(line, "/"):
		fields := strings.Fields(line[1:])
		if len(fields) == 0 {
			return true, nil
		}
		handler, ok := replCommands[strings.ToLower(fields[0])]
		if !ok {
			return true, fmt.Errorf("unknown command /%s (try /help)", fields[0])
		}
		return handler(s, fields[1:])
	}
	return true, s.send(ctx, line)
}

// send runs one request and prints the reply.
func (s *replSession) send(ctx context.Context, text string) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	sub := orchestrator.Submission{Text: text, Attachments: s.pending}
	if !s.quiet {
		fmt.Fprintln(s.errw, DimStyle.Render(routingLine(s.orch.Preview(sub.Text, sub.Attachments))))
	}

	res, err := s.orch.Submit(ctx, sub)
	if err != nil {
		return err
	}
	s.pending = nil

	if !res.OK() {
		s.printer.finish(nil)
		printFailure(s.errw, res.Err)
		return nil
	}
	msg := res.Message
	s.printer.finish(msg)
	if msg.HasMedia() {
		fmt.Fprintln(s.errw, InfoStyle.Render(mediaSummary(msg.Media)))
		if msg.Media.URI == "" {
			fmt.Fprintln(s.errw, DimStyle.Render("Use /save PATH to keep it."))
		}
	}
	printSources(s.out, msg.Sources)
	if res.Retried && !s.quiet {
		fmt.Fprintln(s.errw, styles.Mark(styles.MarkKey, "Done with your key.", styles.Amber))
	}
	return nil
}

func (s *replSession) cancelRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

// promptKey asks for a key on the terminal without echo.
func (s *replSession) promptKey(ctx context.Context) (string, error) {
	fmt.Fprintln(s.errw, WarningStyle.Render("This request needs your own API key. Leave empty to cancel."))
	if s.input == nil {
		return "", credential.ErrAbandoned
	}
	key, err := s.input.line.PasswordPrompt("API key: ")
	if err != nil || strings.TrimSpace(key) == "" {
		return "", credential.ErrAbandoned
	}
	return strings.TrimSpace(key), ctx.Err()
}

func (s *replSession) printWelcome() {
	cfg := s.rt.Config()
	fmt.Fprintln(s.out, TitleStyle.Render("prism "+Version))
	fmt.Fprintln(s.out, RenderField("Provider", cfg.Backend.Provider))
	fmt.Fprintln(s.out, RenderField("Mode", RenderMode(s.orch.Mode())))
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(s.out)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// replCommand handles one slash command.
type replCommand func(s *replSession, args []string) (bool, error)

var replCommands map[string]replCommand

func init() {
	replCommands = map[string]replCommand{
		"help": replHelp, "h": replHelp, "?": replHelp,
		"quit": replQuit, "q": replQuit, "exit": replQuit,

		"mode":    replMode,
		"m":       replMode,
		"chat":    replModeShortcut(model.ModeChat),
		"gen":     replModeShortcut(model.ModeGenerateImage),
		"edit":    replModeShortcut(model.ModeEditImage),
		"analyze": replModeShortcut(model.ModeAnalyze),

		"think":  replFlag(model.FlagThinking),
		"search": replFlag(model.FlagSearch),
		"fast":   replFlag(model.FlagFast),
		"res":    replResolution,

		"attach": replAttach,
		"a":      replAttach,
		"detach": replDetach,
		"save":   replSave,

		"clear":  replClear,
		"c":      replClear,
		"key":    replKey,
		"forget": replForget,
		"models": replModels,
		"plan":   replPlan,
	}
}

var replHelpText = []struct{ usage, desc string }{
	{"/mode NAME", "switch mode: chat, generate_image, edit_image, analyze"},
	{"/chat /gen /edit /analyze", "mode shortcuts"},
	{"/think /search /fast", "toggle a request flag (one at a time)"},
	{"/res 1K|2K|4K", "image resolution"},
	{"/attach PATH", "attach a file to the next message"},
	{"/detach", "drop pending attachments"},
	{"/save PATH", "write the last generated image to a file"},
	{"/clear", "clear the conversation"},
	{"/key, /forget", "show or forget the selected API key"},
	{"/models, /plan", "show model tiers or the next route"},
	{"/quit", "exit"},
}

func replHelp(s *replSession, _ []string) (bool, error) {
	fmt.Fprintln(s.out, SectionStyle.Render("Commands"))
	for _, h := range replHelpText {
		fmt.Fprintf(s.out, "  %-28s %s\n", h.usage, DimStyle.Render(h.desc))
	}
	return true, nil
}

func replQuit(*replSession, []string) (bool, error) {
	return false, nil
}

func replMode(s *replSession, args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, RenderField("Mode", RenderMode(s.orch.Mode())))
		return true, nil
	}
	m, err := model.ParseMode(args[0])
	if err != nil {
		return true, err
	}
	return replSetMode(s, m)
}

func replModeShortcut(m model.Mode) replCommand {
	return func(s *replSession, _ []string) (bool, error) {
		return replSetMode(s, m)
	}
}

func replSetMode(s *replSession, m model.Mode) (bool, error) {
	if err := s.orch.SetMode(m); err != nil {
		return true, err
	}
	s.pending = nil
	fmt.Fprintln(s.out, "Mode: "+RenderMode(m))
	return true, nil
}

func replFlag(f model.Flag) replCommand {
	return func(s *replSession, _ []string) (bool, error) {
		cfg := s.orch.Toggle(f)
		state := "off"
		if cfg.Enabled(f) {
			state = "on"
		}
		fmt.Fprintf(s.out, "%s %s\n", string(f), RenderStatus(state))
		return true, nil
	}
}

func replResolution(s *replSession, args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, RenderField("Resolution", string(s.orch.Config().Resolution)))
		return true, nil
	}
	r, err := model.ParseResolution(args[0])
	if err != nil {
		return true, err
	}
	if err := s.orch.SetResolution(r); err != nil {
		return true, err
	}
	fmt.Fprintln(s.out, RenderField("Resolution", string(r)))
	return true, nil
}

func replAttach(s *replSession, args []string) (bool, error) {
	if len(args) == 0 {
		for i, a := range s.pending {
			fmt.Fprintf(s.out, "  %d. %s (%s)\n", i+1, a.Name, a.MIMEType)
		}
		if len(s.pending) == 0 {
			fmt.Fprintln(s.out, DimStyle.Render("No attachments. Usage: /attach PATH"))
		}
		return true, nil
	}
	atts, err := loadAttachments([]string{strings.Join(args, " ")}, s.rt.Config().MaxAttachmentBytes())
	if err != nil {
		return true, err
	}
	s.pending = append(s.pending, atts...)
	for _, a := range atts {
		fmt.Fprintf(s.out, "Attached %s (%s)\n", a.Name, a.Kind)
	}
	return true, nil
}

func replDetach(s *replSession, _ []string) (bool, error) {
	s.pending = nil
	fmt.Fprintln(s.out, "Attachments cleared")
	return true, nil
}

func replSave(s *replSession, args []string) (bool, error) {
	if len(args) == 0 {
		return true, errors.New("usage: /save PATH")
	}
	var last *model.Media
	for _, m := range s.orch.Conversation().Snapshot() {
		if m.HasMedia() {
			last = m.Media
		}
	}
	if last == nil {
		return true, errors.New("no generated image in this conversation")
	}
	path, err := writeMedia(strings.Join(args, " "), last)
	if err != nil {
		return true, err
	}
	fmt.Fprintln(s.out, SuccessStyle.Render("Saved image to "+path))
	return true, nil
}

func replClear(s *replSession, _ []string) (bool, error) {
	if err := s.orch.Clear(); err != nil {
		return true, err
	}
	s.pending = nil
	fmt.Fprintln(s.out, "Conversation cleared")
	return true, nil
}

func replKey(s *replSession, _ []string) (bool, error) {
	key, ok := s.rt.Host.SelectedKey(context.Background())
	if !ok {
		fmt.Fprintln(s.out, DimStyle.Render("No key selected. You will be asked when a request needs one."))
		return true, nil
	}
	cred := credential.Credential{Provider: s.rt.Config().Backend.Provider, APIKey: key, Granted: true}
	fmt.Fprintln(s.out, RenderField("Selected key", cred.Fingerprint()))
	return true, nil
}

func replForget(s *replSession, _ []string) (bool, error) {
	s.rt.Host.Forget()
	fmt.Fprintln(s.out, "Selected key forgotten")
	return true, nil
}

func replModels(s *replSession, _ []string) (bool, error) {
	models := s.orch.Models()
	for _, t := range router.Tiers {
		fmt.Fprintln(s.out, RenderField(t.String(), models.For(t)))
	}
	return true, nil
}

func replPlan(s *replSession, args []string) (bool, error) {
	plan := s.orch.Preview(strings.Join(args, " "), s.pending)
	fmt.Fprintln(s.out, routingLine(plan))
	fmt.Fprintln(s.out, DimStyle.Render(plan.Reason))
	return true, nil
}
