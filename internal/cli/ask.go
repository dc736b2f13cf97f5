// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot request command.
//
// Command: ask [prompt]
// Short:   Run one request and print the reply
//
// Examples:
//   prism ask "What is the capital of France?"
//   prism ask --search "latest Go release"
//   prism ask --think "Prove there are infinitely many primes"
//   prism ask -m generate_image --res 4K -o poster.png "a retro travel poster"
//   prism ask -f photo.jpg "what is in this picture?"
//   cat notes.md | prism ask - --json
//
// Flags:
//   -f, --file PATH     Attach a file (repeatable)
//   -m, --mode MODE     chat, generate_image, edit_image, or analyze
//   --think             Extended thinking
//   --search            Web search grounding
//   --fast              Low-latency model
//   --res RES           1K, 2K, or 4K
//   -o, --out PATH      Write generated media here
//   --plain             Do not render markdown
//   --json              Print the result as JSON
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/orchestrator"
	"github.com/jeranaias/prism/internal/router"
	"github.com/jeranaias/prism/internal/ui/styles"
)

// askBoolFlags never take a value.
var askBoolFlags = []string{"think", "thinking", "search", "fast", "plain"}

// AskResult is the JSON form of a settled request.
type AskResult struct {
	CycleID   string         `json:"cycle_id"`
	Operation string         `json:"operation"`
	Model     string         `json:"model"`
	Retried   bool           `json:"retried"`
	Text      string         `json:"text"`
	Sources   []model.Source `json:"sources,omitempty"`
	Media     *AskMedia      `json:"media,omitempty"`
	Duration  string         `json:"duration"`
}

// AskMedia describes generated media in JSON output.
type AskMedia struct {
	MIMEType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
	URI      string `json:"uri,omitempty"`
	Path     string `json:"path,omitempty"`
}

// HandleAsk handles the "ask" command.
func HandleAsk(ctx context.Context, args Args, rt *Runtime) error {
	p := NewArgParser(args.Raw, askBoolFlags...)
	out, errw := args.stdout(), args.stderr()
	cfg := rt.Config()

	prompt := JoinPositionalArgs(p, 0)
	if prompt == "-" {
		data, err := io.ReadAll(args.stdin())
		if err != nil {
			return NewCommandError("ask", "read", "could not read stdin", err)
		}
		prompt = strings.TrimSpace(string(data))
	}

	attachments, err := loadAttachments(p.Values("f", "file"), cfg.MaxAttachmentBytes())
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" && len(attachments) == 0 {
		return ErrMissingArgument("prompt", `prism ask "your question"`)
	}

	orch := rt.Orchestrator
	if err := applyAskSettings(orch, p); err != nil {
		return err
	}

	if !args.Quiet && !args.JSON {
		plan := orch.Preview(prompt, attachments)
		fmt.Fprintln(errw, DimStyle.Render(routingLine(plan)))
	}

	// Stream plain text as it arrives. Markdown needs the whole reply.
	markdown := cfg.UI.Markdown && !p.BoolFlag("plain") && !args.JSON && isTerminalWriter(out)
	var printer *streamPrinter
	if !args.JSON && !markdown {
		printer = newStreamPrinter(out)
		unsub := orch.Conversation().Subscribe(printer.Observe)
		defer unsub()
	}

	start := time.Now()
	res, err := orch.Submit(ctx, orchestrator.Submission{Text: prompt, Attachments: attachments})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	var savedPath string
	if path := p.Flag("o", "out"); path != "" && res.OK() && res.Message.HasMedia() {
		if savedPath, err = writeMedia(path, res.Message.Media); err != nil {
			return NewCommandError("ask", "save", "could not write media", err)
		}
	}

	if args.JSON {
		return writeAskJSON(out, res, savedPath, elapsed)
	}

	if !res.OK() {
		if printer != nil {
			printer.finish(nil)
		}
		printFailure(errw, res.Err)
		return reported(res.Err)
	}

	msg := res.Message
	switch {
	case printer != nil:
		printer.finish(msg)
	case msg.Text != "":
		theme := styles.NewTheme(cfg.UI.Theme)
		fmt.Fprint(out, renderMarkdown(newMarkdownRenderer(theme.GlamourStyle(), renderWidth(out)), msg.Text))
	}
	if msg.HasMedia() {
		switch {
		case savedPath != "":
			fmt.Fprintln(errw, SuccessStyle.Render("Saved image to "+savedPath))
		default:
			fmt.Fprintln(errw, InfoStyle.Render(mediaSummary(msg.Media)))
			if msg.Media.URI == "" {
				fmt.Fprintln(errw, DimStyle.Render("Use --out PATH to save the image."))
			}
		}
	}
	printSources(out, msg.Sources)

	if !args.Quiet {
		note := ""
		if res.Retried {
			note = " | used your key"
		}
		fmt.Fprintln(errw, DimStyle.Render(fmt.Sprintf("[Done] %s | %s%s",
			res.Plan.Model, formatDurationShort(elapsed), note)))
	}
	return nil
}

// applyAskSettings sets mode, resolution and flags from the command line.
func applyAskSettings(orch *orchestrator.Orchestrator, p *ArgParser) error {
	if v := p.Flag("m", "mode"); v != "" {
		mode, err := model.ParseMode(v)
		if err != nil {
			return NewValidationErrorWithExample("mode", v, err.Error(), "--mode generate_image")
		}
		if err := orch.SetMode(mode); err != nil {
			return err
		}
	}
	if v := p.Flag("res", "resolution"); v != "" {
		r, err := model.ParseResolution(v)
		if err != nil {
			return NewValidationErrorWithExample("resolution", v, err.Error(), "--res 2K")
		}
		if err := orch.SetResolution(r); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		flag  model.Flag
		names []string
	}{
		{model.FlagThinking, []string{"think", "thinking"}},
		{model.FlagSearch, []string{"search"}},
		{model.FlagFast, []string{"fast"}},
	} {
		if p.BoolFlag(f.names...) && !orch.Config().Enabled(f.flag) {
			orch.Toggle(f.flag)
		}
	}
	return nil
}

// routingLine describes a plan on one line.
func routingLine(plan router.Plan) string {
	s := fmt.Sprintf("[Routing] %s . %s", plan.Operation, plan.Model)
	if plan.Params.Resolution != "" {
		s += " " + string(plan.Params.Resolution)
	}
	if plan.RequiresGrant {
		s += " (needs your key)"
	}
	return s
}

func writeAskJSON(w io.Writer, res *orchestrator.Result, savedPath string, elapsed time.Duration) error {
	data := AskResult{
		CycleID:   res.CycleID,
		Operation: string(res.Plan.Operation),
		Model:     res.Plan.Model,
		Retried:   res.Retried,
		Duration:  elapsed.Round(time.Millisecond).String(),
	}
	if msg := res.Message; msg != nil {
		data.Text = msg.Text
		data.Sources = msg.Sources
		if msg.HasMedia() {
			data.Media = &AskMedia{
				MIMEType: msg.Media.MIMEType,
				Bytes:    len(msg.Media.Data),
				URI:      msg.Media.URI,
				Path:     savedPath,
			}
		}
	}
	if !res.OK() {
		if err := NewJSONErrorResponse("ask", res.Err, data).Write(w); err != nil {
			return err
		}
		return reported(res.Err)
	}
	return NewJSONResponse("ask", data).Write(w)
}
