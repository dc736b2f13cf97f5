// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the command handlers for
// prism.
//
// # Key Types
//
//   - Command: the available commands
//   - Args: parsed global flags plus the raw command arguments
//   - ArgParser: per-command flag parsing
//   - Runtime: the orchestrator and its collaborators, built from config
//   - JSONResponse: the envelope every --json output uses
//
// # Usage
//
//	cmd, args := cli.Parse()
//	cfg, path, err := cli.LoadConfig(args)
//	rt, err := cli.NewRuntime(cfg, path, cli.RuntimeOptions{})
//	defer rt.Close()
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(ctx, args, rt)
//	// ...
//	}
//
// # Commands
//
//   - tui: full-screen chat (default)
//   - ask: one request, streamed to stdout
//   - repl: line-based chat with history
//   - serve: HTTP API with server-sent events
//   - status: provider, models, storage and ledger
//   - config: show, get, set and initialize configuration
//   - ledger: recorded request cycles
//
// Handlers return errors. main displays them with DisplayError and exits
// with GetExitCode.
package cli
