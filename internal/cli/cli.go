// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and top-level help for prism.
package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdRepl
	CmdServe
	CmdStatus
	CmdConfig
	CmdLedger
	CmdVersion
	CmdHelp
)

// String returns the command name used in JSON output.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdAsk:
		return "ask"
	case CmdRepl:
		return "repl"
	case CmdServe:
		return "serve"
	case CmdStatus:
		return "status"
	case CmdConfig:
		return "config"
	case CmdLedger:
		return "ledger"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Provider   string
	LogLevel   string
	Theme      string
	JSON       bool
	Quiet      bool
	Verbose    bool

	// Subcommand is the first argument after the command, if any.
	Subcommand string

	// Raw holds the arguments after the command with global flags removed.
	Raw []string

	// Unknown is set when the command word was not recognized.
	Unknown string

	// Streams default to the process's stdio.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func (a Args) stdin() io.Reader {
	if a.Stdin == nil {
		return os.Stdin
	}
	return a.Stdin
}

func (a Args) stdout() io.Writer {
	if a.Stdout == nil {
		return os.Stdout
	}
	return a.Stdout
}

func (a Args) stderr() io.Writer {
	if a.Stderr == nil {
		return os.Stderr
	}
	return a.Stderr
}

const usageText = `prism - multimodal chat for Gemini and OpenAI

Prism routes each request to the right operation and model: chat with
streaming, web search and extended thinking; image generation and editing;
image, video and audio analysis; and audio transcription.

Usage:
  prism                        Start the full-screen chat (default)
  prism ask "prompt"           Run one request and print the reply
  prism repl                   Line-based chat with history
  prism serve                  Run the local HTTP API
  prism status                 Show provider, models and storage
  prism config [subcommand]    View and modify configuration
  prism ledger [recent|stats]  Inspect the request ledger
  prism version                Show version information
  prism help                   Show this help

Global flags:
  --config PATH       Use a specific config file
  --provider NAME     Override the provider (gemini or openai)
  --log-level LEVEL   debug, info, warn, or error
  --theme NAME        dark, light, or auto
  --json              Machine-readable output
  -q, --quiet         Minimal output
  -v, --verbose       Verbose output

Ask flags:
  -f, --file PATH     Attach a file (repeatable)
  -m, --mode MODE     chat, generate_image, edit_image, or analyze
  --think             Enable extended thinking
  --search            Ground the reply with web search
  --fast              Use the low-latency model
  --res 1K|2K|4K      Image resolution
  -o, --out PATH      Write generated media to a file

Examples:
  prism ask "Summarize the plot of Hamlet"
  prism ask --search "Who won the match last night?"
  prism ask -m generate_image --res 2K -o cat.png "a cat in a spacesuit"
  prism ask -m edit_image -f cat.png -o hat.png "give the cat a hat"
  prism ask -f meeting.mp3 "transcribe this"
  prism serve --addr 127.0.0.1:8787
  prism config set backend.provider openai

Version: %s
`

// PrintUsage writes the top-level help.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// VersionData is the JSON form of the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// HandleVersion prints version information.
func HandleVersion(args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Write(args.stdout())
	}
	w := args.stdout()
	fmt.Fprintf(w, "prism version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	return nil
}

// HandleHelp prints usage, with a suggestion when the command was a typo.
func HandleHelp(args Args) error {
	if args.Unknown != "" {
		msg := fmt.Sprintf("unknown command %q", args.Unknown)
		if s := SuggestCommand(args.Unknown); s != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", s)
		}
		return NewValidationErrorWithExample("command", args.Unknown, msg, "prism help")
	}
	PrintUsage(args.stdout())
	return nil
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses argv (without the program name).
func ParseArgs(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, args
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	args.Raw = remaining
	if len(remaining) > 0 && !strings.HasPrefix(remaining[0], "-") {
		args.Subcommand = remaining[0]
	}

	switch cmd {
	case "tui", "ui":
		return CmdTUI, args
	case "ask", "a":
		return CmdAsk, args
	case "repl", "chat":
		return CmdRepl, args
	case "serve", "server", "api":
		return CmdServe, args
	case "status", "s":
		return CmdStatus, args
	case "config", "cfg":
		return CmdConfig, args
	case "ledger", "history":
		return CmdLedger, args
	case "version", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	default:
		args.Unknown = cmd
		return CmdHelp, args
	}
}

// parseGlobalFlags removes global flags from args wherever they appear.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var remaining []string
	var args Args

	value := func(i *int) string {
		if *i+1 < len(argv) {
			*i++
			return argv[*i]
		}
		return ""
	}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch arg {
		case "--config":
			args.ConfigPath = value(&i)
		case "--provider":
			args.Provider = value(&i)
		case "--log-level":
			args.LogLevel = value(&i)
		case "--theme":
			args.Theme = value(&i)
		case "--json":
			args.JSON = true
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		default:
			k, v, ok := strings.Cut(arg, "=")
			switch {
			case ok && k == "--config":
				args.ConfigPath = v
			case ok && k == "--provider":
				args.Provider = v
			case ok && k == "--log-level":
				args.LogLevel = v
			case ok && k == "--theme":
				args.Theme = v
			default:
				remaining = append(remaining, arg)
			}
		}
	}
	if args.Verbose && args.LogLevel == "" {
		args.LogLevel = "debug"
	}
	return remaining, args
}
