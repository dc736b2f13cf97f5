// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ledger.go - Cycle ledger command.
//
// Command: ledger [subcommand]
// Short:   Show recorded request cycles
// Aliases: history
//
// Subcommands:
//   recent (default)    List the latest cycles
//   stats               Aggregate counts
//
// Flags:
//   -n, --limit N       Number of cycles to list (default 20)
//
// Examples:
//   prism ledger
//   prism ledger recent -n 50 --json
//   prism ledger stats
//
// The ledger stores metadata only. Prompts and replies are never recorded.
package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/prism/internal/ledger"
	"github.com/jeranaias/prism/internal/util"
)

const defaultLedgerLimit = 20

// HandleLedger handles the "ledger" command.
func HandleLedger(ctx context.Context, args Args, rt *Runtime) error {
	if rt.Ledger == nil {
		return NewCommandError("ledger", "open", "the ledger is disabled or unavailable (ledger.enabled)", nil)
	}
	p := NewArgParser(args.Raw)

	switch sub := p.Subcommand(); sub {
	case "", "recent", "list":
		limit := defaultLedgerLimit
		if v := p.Flag("n", "limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return NewValidationErrorWithExample("limit", v, "must be a positive integer", "prism ledger -n 50")
			}
			limit = n
		}
		entries, err := rt.Ledger.Recent(ctx, limit)
		if err != nil {
			return NewCommandError("ledger", "read", "could not query the ledger", err)
		}
		if args.JSON {
			if entries == nil {
				entries = []ledger.Entry{}
			}
			return NewJSONResponse("ledger recent", entries).Write(args.stdout())
		}
		printLedger(args.stdout(), entries, time.Now())
		return nil

	case "stats":
		stats, err := rt.Ledger.Stats(ctx)
		if err != nil {
			return NewCommandError("ledger", "read", "could not query the ledger", err)
		}
		if args.JSON {
			return NewJSONResponse("ledger stats", stats).Write(args.stdout())
		}
		printLedgerStats(args.stdout(), stats)
		return nil

	default:
		return NewValidationErrorWithExample("ledger subcommand", sub, "expected recent or stats", "prism ledger stats")
	}
}

// =============================================================================
// RENDERING
// =============================================================================

// printLedger lists entries as a table, newest first.
func printLedger(w io.Writer, entries []ledger.Entry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No cycles recorded yet."))
		return
	}

	header := []string{"WHEN", "OPERATION", "MODEL", "TIME", "STATUS"}
	widths := []int{16, 16, 28, 8, 0}
	fmt.Fprintln(w, DimStyle.Render(ledgerRow(header, widths)))

	for _, e := range entries {
		status := SuccessStyle.Render("ok")
		if e.Status != ledger.StatusSuccess {
			status = ErrorStyle.Render("error")
			if e.Error != "" {
				status += " " + DimStyle.Render(util.TruncateWidth(util.FirstLine(e.Error), 40))
			}
		}
		if e.Retried {
			status += DimStyle.Render(" (own key)")
		}
		row := []string{
			humanize.RelTime(e.StartedAt, now, "ago", "from now"),
			e.Operation,
			e.Model,
			formatDurationShort(e.Duration),
			status,
		}
		fmt.Fprintln(w, ledgerRow(row, widths))
	}
}

// ledgerRow pads each cell to its column width. A zero width leaves the
// cell as is.
func ledgerRow(cells []string, widths []int) string {
	var b strings.Builder
	for i, c := range cells {
		if widths[i] == 0 {
			b.WriteString(c)
			continue
		}
		c = runewidth.Truncate(c, widths[i]-1, "~")
		b.WriteString(runewidth.FillRight(c, widths[i]))
	}
	return strings.TrimRight(b.String(), " ")
}

func printLedgerStats(w io.Writer, s ledger.Stats) {
	fmt.Fprintln(w, TitleStyle.Render("Ledger"))
	fmt.Fprintln(w, RenderField("Cycles", humanize.Comma(int64(s.Total))))
	if s.Total == 0 {
		return
	}
	fmt.Fprintln(w, RenderField("Succeeded", fmt.Sprintf("%s (%.0f%%)",
		humanize.Comma(int64(s.Succeeded)), 100*float64(s.Succeeded)/float64(s.Total))))
	fmt.Fprintln(w, RenderField("Failed", humanize.Comma(int64(s.Failed))))
	fmt.Fprintln(w, RenderField("Used own key", humanize.Comma(int64(s.Retried))))
	fmt.Fprintln(w, RenderField("Avg time", formatDurationShort(time.Duration(s.AvgMillis*float64(time.Millisecond)))))
}
