// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - Suggestions for mistyped commands.
package cli

import (
	"strings"
)

// validCommands lists every command word and alias ParseArgs accepts.
var validCommands = []string{
	"tui",
	"ask",
	"repl",
	"serve",
	"status",
	"config",
	"ledger",
	"version",
	"help",
	// Aliases
	"ui",
	"chat",
	"server",
	"api",
	"cfg",
	"history",
}

// SuggestCommand returns the closest valid command within a small edit
// distance of input, or "" when nothing is close or input is already valid.
func SuggestCommand(input string) string {
	input = strings.ToLower(input)
	if len(input) < 2 {
		return ""
	}

	// One edit for short words, two from four letters (catches "sevre"),
	// three for long ones.
	maxDistance := 1
	switch {
	case len(input) > 8:
		maxDistance = 3
	case len(input) >= 4:
		maxDistance = 2
	}

	best, bestDistance := "", maxDistance+1
	for _, cmd := range validCommands {
		d := levenshteinDistance(input, cmd)
		if d == 0 {
			return ""
		}
		if d < bestDistance {
			best, bestDistance = cmd, d
		}
	}
	return best
}

// levenshteinDistance is the number of single-rune insertions, deletions or
// substitutions that turn a into b.
func levenshteinDistance(a, b string) int {
	s, t := []rune(a), []rune(b)
	if len(s) == 0 {
		return len(t)
	}
	if len(t) == 0 {
		return len(s)
	}

	prev := make([]int, len(t)+1)
	curr := make([]int, len(t)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s); i++ {
		curr[0] = i
		for j := 1; j <= len(t); j++ {
			cost := 1
			if s[i-1] == t[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(t)]
}
