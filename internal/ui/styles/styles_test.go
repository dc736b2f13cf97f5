// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/prism/internal/model"
)

func TestNewTheme_Names(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		glamour string
	}{
		{"dark", ThemeDark, "dark"},
		{" LIGHT ", ThemeLight, "light"},
		{"auto", ThemeAuto, ""},
		{"neon", ThemeAuto, ""},
		{"", ThemeAuto, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			theme := NewTheme(tt.in)
			assert.Equal(t, tt.name, theme.Name)
			assert.Equal(t, tt.glamour, theme.GlamourStyle())
		})
	}
}

func TestNewTheme_PinnedBackground(t *testing.T) {
	assert.True(t, NewTheme(ThemeDark).IsDark)
	assert.False(t, NewTheme(ThemeLight).IsDark)
}

func TestThemeStylesRender(t *testing.T) {
	theme := NewTheme(ThemeDark)
	for name, out := range map[string]string{
		"user":   theme.UserBubble.Render("hello"),
		"model":  theme.ModelBubble.Render("hello"),
		"error":  theme.ErrorBubble.Render("hello"),
		"system": theme.SystemBubble.Render("hello"),
		"status": theme.StatusBar.Render("hello"),
		"input":  theme.InputBox.Render("hello"),
	} {
		assert.Contains(t, out, "hello", name)
	}
}

func TestModeColor(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range model.Modes {
		c := ModeColor(m)
		assert.NotEmpty(t, c.Dark)
		seen[c.Dark] = true
	}
	assert.Len(t, seen, len(model.Modes), "each mode has its own accent")
	assert.Equal(t, Cyan, ModeColor(model.Mode("unknown")))
}

func TestModeTab(t *testing.T) {
	theme := NewTheme(ThemeDark)
	assert.Contains(t, theme.ModeTab(model.ModeChat, true).Render("Chat"), "Chat")
	assert.Contains(t, theme.ModeTab(model.ModeChat, false).Render("Chat"), "Chat")
}

func TestLayoutMode(t *testing.T) {
	theme := NewTheme(ThemeDark)
	tests := []struct {
		width int
		want  LayoutMode
	}{
		{40, LayoutNarrow},
		{59, LayoutNarrow},
		{60, LayoutMedium},
		{99, LayoutMedium},
		{100, LayoutWide},
	}
	for _, tt := range tests {
		theme.SetSize(tt.width, 30)
		assert.Equal(t, tt.want, theme.GetLayoutMode(), "width %d", tt.width)
	}
}

func TestActivity(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, Streaming.Interval())
	assert.Equal(t, time.Second, Activity{}.Interval())

	s := AwaitingKey.Spinner()
	assert.Equal(t, AwaitingKey.Frames, s.Frames)
	assert.Equal(t, 125*time.Millisecond, s.FPS)

	names := map[string]bool{}
	for _, a := range []Activity{Streaming, Waiting, AwaitingKey} {
		assert.False(t, names[a.Name], "duplicate activity %q", a.Name)
		names[a.Name] = true
	}
}

func TestSourcePrefix(t *testing.T) {
	assert.Equal(t, "+- ", SourcePrefix(false))
	assert.Equal(t, "`- ", SourcePrefix(true))
}

func TestMark(t *testing.T) {
	assert.Contains(t, Mark(MarkFailed, "quota exceeded", Rose), "[X] quota exceeded")
	assert.Contains(t, Mark(MarkKey, "using your key", Amber), "[key] using your key")
}
