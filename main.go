// prism - Multimodal chat for Gemini and OpenAI in the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/prism/internal/cli"
	"github.com/jeranaias/prism/internal/credential"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()
	if err := run(cmd, args); err != nil {
		cli.DisplayError(os.Stderr, err, args.JSON)
		os.Exit(cli.GetExitCode(err))
	}
}

func run(cmd cli.Command, args cli.Args) error {
	// Commands that need no runtime.
	switch cmd {
	case cli.CmdVersion:
		return cli.HandleVersion(args)
	case cli.CmdHelp:
		return cli.HandleHelp(args)
	case cli.CmdConfig:
		return cli.HandleConfig(args)
	}

	cfg, path, err := cli.LoadConfig(args)
	if err != nil {
		return err
	}

	opts := cli.RuntimeOptions{}
	switch cmd {
	case cli.CmdTUI:
		// The TUI owns the terminal; logs go to a file and the key prompt
		// is the in-app overlay.
		opts.LogPath = cfg.Log.Path
	case cli.CmdAsk:
		if cli.IsTTY() {
			opts.Prompt = credential.TerminalPrompt(os.Stdin, os.Stderr)
		}
	}

	rt, err := cli.NewRuntime(cfg, path, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	// The REPL handles Ctrl+C itself; everywhere else it ends the command.
	ctx := context.Background()
	if cmd != cli.CmdRepl {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cmd == cli.CmdTUI || cmd == cli.CmdRepl || cmd == cli.CmdServe {
		if err := rt.Watch(ctx); err != nil {
			rt.Logger.Warn("config watch unavailable", "error", err)
		}
	}

	switch cmd {
	case cli.CmdTUI:
		return cli.HandleTUI(ctx, args, rt)
	case cli.CmdAsk:
		return cli.HandleAsk(ctx, args, rt)
	case cli.CmdRepl:
		return cli.HandleRepl(ctx, args, rt)
	case cli.CmdServe:
		return cli.HandleServe(ctx, args, rt)
	case cli.CmdStatus:
		return cli.HandleStatus(ctx, args, rt)
	case cli.CmdLedger:
		return cli.HandleLedger(ctx, args, rt)
	default:
		return fmt.Errorf("unhandled command %s", cmd)
	}
}
