// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Status command implementation.
//
// Command: status
// Short:   Display provider, models, storage and ledger status
// Aliases: s
//
// Examples:
//   prism status
//   prism s
//   prism status --json
//
// Status Sections:
//   Backend:  Provider, endpoint, API key
//   Models:   Model per routing tier
//   Session:  Initial mode, resolution and flag
//   Storage:  Media store and attachment limit
//   Ledger:   Cycle counts and average duration
//
// The status command never contacts the provider.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/prism/internal/config"
	"github.com/jeranaias/prism/internal/ledger"
	"github.com/jeranaias/prism/internal/router"
)

// =============================================================================
// STATUS DATA
// =============================================================================

// StatusData is the JSON form of the status command.
type StatusData struct {
	Version    string            `json:"version"`
	ConfigPath string            `json:"config_path,omitempty"`
	Provider   string            `json:"provider"`
	BaseURL    string            `json:"base_url,omitempty"`
	KeySet     bool              `json:"api_key_set"`
	KeyID      string            `json:"api_key_id,omitempty"`
	Models     map[string]string `json:"models"`
	Mode       string            `json:"mode"`
	Resolution string            `json:"resolution"`
	Flag       string            `json:"flag,omitempty"`
	MediaStore string            `json:"media_store"`
	MediaAt    string            `json:"media_location,omitempty"`
	MaxAttach  int64             `json:"max_attachment_bytes"`
	Server     string            `json:"server_addr"`
	Ledger     *LedgerStatus     `json:"ledger,omitempty"`
}

// LedgerStatus summarizes the ledger.
type LedgerStatus struct {
	Path      string        `json:"path"`
	Stats     ledger.Stats  `json:"stats"`
	LastCycle *time.Time    `json:"last_cycle,omitempty"`
	AvgTime   time.Duration `json:"avg_duration"`
}

// HandleStatus handles the "status" command.
func HandleStatus(ctx context.Context, args Args, rt *Runtime) error {
	data := collectStatus(ctx, rt)
	if args.JSON {
		return NewJSONResponse("status", data).Write(args.stdout())
	}
	printStatus(args.stdout(), data)
	return nil
}

func collectStatus(ctx context.Context, rt *Runtime) StatusData {
	cfg := rt.Config()
	cred := cfg.Credential()
	mode, rc := cfg.InitialRequest()

	data := StatusData{
		Version:    Version,
		ConfigPath: rt.ConfigPath,
		Provider:   cfg.Backend.Provider,
		BaseURL:    cred.BaseURL,
		KeySet:     cred.APIKey != "",
		Models:     make(map[string]string, len(router.Tiers)),
		Mode:       string(mode),
		Resolution: string(rc.Resolution),
		Flag:       string(rc.ActiveFlag()),
		MediaStore: cfg.Media.Store,
		MaxAttach:  cfg.MaxAttachmentBytes(),
		Server:     cfg.Server.Addr,
	}
	if data.KeySet {
		data.KeyID = maskAPIKey(cred.APIKey)
	}
	models := rt.Orchestrator.Models()
	for _, t := range router.Tiers {
		data.Models[t.String()] = models.For(t)
	}

	switch cfg.Media.Store {
	case config.StoreFile:
		data.MediaAt = expandPath(cfg.Media.Dir)
	case config.StoreS3:
		data.MediaAt = fmt.Sprintf("s3://%s/%s", cfg.Media.S3.Bucket, cfg.Media.S3.Prefix)
	}

	if rt.Ledger != nil {
		ls := &LedgerStatus{Path: rt.Ledger.Path()}
		if stats, err := rt.Ledger.Stats(ctx); err == nil {
			ls.Stats = stats
			ls.AvgTime = time.Duration(stats.AvgMillis * float64(time.Millisecond))
		}
		if recent, err := rt.Ledger.Recent(ctx, 1); err == nil && len(recent) > 0 {
			t := recent[0].StartedAt
			ls.LastCycle = &t
		}
		data.Ledger = ls
	}
	return data
}

// =============================================================================
// RENDERING
// =============================================================================

func printStatus(w io.Writer, d StatusData) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("prism Status"))
	fmt.Fprintln(w, RenderSeparator(41))

	fmt.Fprintln(w, SectionStyle.Render("Backend"))
	fmt.Fprintln(w, RenderField("Provider", d.Provider))
	if d.BaseURL != "" {
		fmt.Fprintln(w, RenderField("Endpoint", d.BaseURL))
	}
	if d.KeySet {
		fmt.Fprintln(w, RenderField("API key", RenderStatus("set")+" "+DimStyle.Render(d.KeyID)))
	} else {
		fmt.Fprintln(w, RenderField("API key", RenderStatus("missing")+" "+
			DimStyle.Render("set GEMINI_API_KEY or OPENAI_API_KEY, or enter one when asked")))
	}

	fmt.Fprintln(w, SectionStyle.Render("Models"))
	for _, t := range router.Tiers {
		fmt.Fprintln(w, RenderField(t.String(), d.Models[t.String()]))
	}

	fmt.Fprintln(w, SectionStyle.Render("Session defaults"))
	fmt.Fprintln(w, RenderField("Mode", d.Mode))
	fmt.Fprintln(w, RenderField("Resolution", d.Resolution))
	flag := d.Flag
	if flag == "" {
		flag = DimStyle.Render("(none)")
	}
	fmt.Fprintln(w, RenderField("Flag", flag))

	fmt.Fprintln(w, SectionStyle.Render("Storage"))
	store := d.MediaStore
	if d.MediaAt != "" {
		store += " " + DimStyle.Render(d.MediaAt)
	}
	fmt.Fprintln(w, RenderField("Media", store))
	fmt.Fprintln(w, RenderField("Max attach", humanize.IBytes(uint64(d.MaxAttach))))
	fmt.Fprintln(w, RenderField("Server", d.Server))

	fmt.Fprintln(w, SectionStyle.Render("Ledger"))
	if d.Ledger == nil {
		fmt.Fprintln(w, RenderField("Ledger", RenderStatus("off")))
	} else {
		s := d.Ledger.Stats
		fmt.Fprintln(w, RenderField("Cycles", humanize.Comma(int64(s.Total))))
		if s.Total > 0 {
			fmt.Fprintln(w, RenderField("Succeeded", fmt.Sprintf("%s (%.0f%%)",
				humanize.Comma(int64(s.Succeeded)), 100*float64(s.Succeeded)/float64(s.Total))))
			fmt.Fprintln(w, RenderField("Failed", humanize.Comma(int64(s.Failed))))
			fmt.Fprintln(w, RenderField("Used own key", humanize.Comma(int64(s.Retried))))
			fmt.Fprintln(w, RenderField("Avg time", formatDurationShort(d.Ledger.AvgTime)))
		}
		if d.Ledger.LastCycle != nil {
			fmt.Fprintln(w, RenderField("Last cycle", humanize.Time(*d.Ledger.LastCycle)))
		}
		fmt.Fprintln(w, RenderField("Path", DimStyle.Render(d.Ledger.Path)))
	}

	fmt.Fprintln(w)
	if d.ConfigPath != "" {
		fmt.Fprintf(w, "Config file: %s\n", DimStyle.Render(d.ConfigPath))
	} else {
		fmt.Fprintf(w, "Config file: %s\n", DimStyle.Render("(none, using defaults)"))
	}
}
