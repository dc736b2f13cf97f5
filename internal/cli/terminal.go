// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - What the attached terminal can do.
//
// Replies are rendered as markdown and keys are prompted for only when a
// human is at a terminal. Pipes and redirects get plain text, and a missing
// key there is an error instead of a prompt.

package cli

import (
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	// DefaultTerminalWidth is assumed when w is not a terminal.
	DefaultTerminalWidth = 80

	// minRenderWidth keeps glamour from wrapping replies into a column.
	minRenderWidth = 40
)

// IsTTY reports whether stdin is a terminal, which is what key prompts need.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// isTerminalWriter reports whether w is a terminal file.
func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderWidth returns the width markdown should wrap at when written to w.
func renderWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return DefaultTerminalWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	return max(width-4, minRenderWidth)
}

// colorProfile picks the profile for w. termenv honors NO_COLOR and
// CLICOLOR_FORCE. FORCE_COLOR is accepted as well.
func colorProfile(w io.Writer) termenv.Profile {
	p := termenv.NewOutput(w).EnvColorProfile()
	if p == termenv.Ascii && os.Getenv("NO_COLOR") == "" && os.Getenv("FORCE_COLOR") != "" {
		return termenv.ANSI256
	}
	return p
}

// RequiresTTY returns a TTYRequiredError if stdin is not a terminal.
func RequiresTTY(operation string) error {
	if !IsTTY() {
		return &TTYRequiredError{Operation: operation}
	}
	return nil
}

// TTYRequiredError is returned when an operation needs a terminal.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	if e.Operation != "" {
		return "stdin is not a terminal; " + e.Operation + " needs an interactive session"
	}
	return "stdin is not a terminal"
}
