// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - HTTP API command.
//
// Command: serve
// Short:   Serve the orchestrator over HTTP with server-sent events
// Aliases: server, api
//
// Flags:
//   --addr HOST:PORT    Listen address (default from config, 127.0.0.1:8787)
//   --token TOKEN       Bearer token clients must send
//
// Examples:
//   prism serve
//   prism serve --addr 0.0.0.0:9000 --token s3cret
package cli

import (
	"context"
	"fmt"
	"net"

	"github.com/jeranaias/prism/internal/server"
)

// HandleServe handles the "serve" command. It blocks until ctx is cancelled.
func HandleServe(ctx context.Context, args Args, rt *Runtime) error {
	p := NewArgParser(args.Raw)
	cfg := rt.Config()

	addr := p.FlagOrDefault("addr", cfg.Server.Addr)
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return NewValidationErrorWithExample("addr", addr, err.Error(), "--addr 127.0.0.1:8787")
	}
	token := p.FlagOrDefault("token", cfg.Server.Token)

	host, _, _ := net.SplitHostPort(addr)
	if token == "" && !isLoopback(host) {
		rt.Logger.Warn("serving on a non-loopback address without a token", "addr", addr)
	}

	opts := []server.Option{
		server.WithToken(token),
		server.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		server.WithHost(rt.Host),
		server.WithLogger(rt.Logger),
		server.WithProvider(cfg.Backend.Provider),
		server.WithMaxAttachmentSize(int(cfg.MaxAttachmentBytes())),
	}
	if rt.Ledger != nil {
		opts = append(opts, server.WithLedger(rt.Ledger))
	}
	srv := server.New(rt.Orchestrator, opts...)

	if !args.Quiet {
		fmt.Fprintln(args.stderr(), InfoStyle.Render(fmt.Sprintf("prism API listening on http://%s", addr)))
		fmt.Fprintln(args.stderr(), DimStyle.Render("Press Ctrl+C to stop."))
	}
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return NewCommandError("serve", "listen", addr, err)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
