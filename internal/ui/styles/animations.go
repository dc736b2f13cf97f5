// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// =============================================================================
// ACTIVITY SPINNERS
// =============================================================================

// Activity is a spinner animation tied to what the assistant is doing.
type Activity struct {
	Name   string
	Frames []string
	FPS    int
}

var (
	// Streaming turns while reply text arrives.
	Streaming = Activity{Name: "streaming", Frames: []string{"|", "/", "-", "\\"}, FPS: 10}

	// Waiting is shown between dispatch and the first chunk.
	Waiting = Activity{Name: "waiting", Frames: []string{".  ", ".. ", "...", " ..", "  .", "   "}, FPS: 6}

	// AwaitingKey pulses while the key overlay is open.
	AwaitingKey = Activity{Name: "key", Frames: []string{"( )", "(.)", "(o)", "(O)", "(o)", "(.)"}, FPS: 8}
)

// Interval is the time each frame stays on screen.
func (a Activity) Interval() time.Duration {
	if a.FPS <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(a.FPS)
}

// Spinner converts the activity for bubbles/spinner.
func (a Activity) Spinner() spinner.Spinner {
	return spinner.Spinner{Frames: a.Frames, FPS: a.Interval()}
}

// =============================================================================
// SOURCE LISTS
// =============================================================================

// SourcePrefix returns the connector drawn before a grounding source.
func SourcePrefix(last bool) string {
	if last {
		return "`- "
	}
	return "+- "
}
