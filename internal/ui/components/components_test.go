// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/orchestrator"
	"github.com/jeranaias/prism/internal/router"
	"github.com/jeranaias/prism/internal/ui/styles"
)

func theme() *styles.Theme {
	return styles.NewTheme(styles.ThemeDark)
}

// =============================================================================
// HEADER TESTS
// =============================================================================

func TestHeader_ShowsTabsAndChatFlags(t *testing.T) {
	h := NewHeader(theme())
	h.SetWidth(120)
	h.SetConfig(model.DefaultRequestConfig().Toggle(model.FlagSearch))

	out := h.View()
	for _, m := range model.Modes {
		assert.Contains(t, out, m.DisplayName())
	}
	assert.Contains(t, out, "[search]")
	assert.Contains(t, out, "thinking")
	assert.NotContains(t, out, "[thinking]")
}

func TestHeader_ShowsResolutionInGenerateMode(t *testing.T) {
	h := NewHeader(theme())
	h.SetWidth(120)
	h.SetMode(model.ModeGenerateImage)
	h.SetConfig(model.RequestConfig{Resolution: model.Resolution4K})

	out := h.View()
	assert.Contains(t, out, "4K")
	assert.NotContains(t, out, "search")
}

func TestHeader_NarrowDropsSettings(t *testing.T) {
	h := NewHeader(theme())
	h.SetWidth(30)
	assert.NotContains(t, h.View(), "thinking")
}

// =============================================================================
// MESSAGE LIST TESTS
// =============================================================================

func plainList() *MessageList {
	l := NewMessageList(theme())
	l.SetMarkdown(false)
	l.SetWidth(80)
	return l
}

func TestMessageList_Empty(t *testing.T) {
	assert.Contains(t, plainList().Render(nil, ""), "No messages yet")
}

func TestMessageList_RendersRolesAndText(t *testing.T) {
	l := plainList()
	user := model.NewUserMessage("draw a cat", nil)
	reply := model.NewMessage(model.RoleModel, "Here is your generated image.")
	reply.Model = "imagen"

	out := l.Render([]*model.Message{user, reply}, "")
	assert.Contains(t, out, "You")
	assert.Contains(t, out, "draw a cat")
	assert.Contains(t, out, "Model")
	assert.Contains(t, out, "imagen")
	assert.Contains(t, out, "generated image")
}

func TestMessageList_PlaceholderShowsFrame(t *testing.T) {
	l := plainList()
	out := l.RenderMessage(model.NewPlaceholder(), "(o)")
	assert.Contains(t, out, "(o) working...")
}

func TestMessageList_MediaAndSources(t *testing.T) {
	l := plainList()
	msg := model.NewMessage(model.RoleModel, "answer")
	msg.Media = &model.Media{MIMEType: "image/png", Data: make([]byte, 2048), URI: "file:///tmp/a.png"}
	msg.Sources = []model.Source{
		{URI: "https://a.example", Title: "A"},
		{URI: "https://b.example"},
	}

	out := l.RenderMessage(msg, "")
	assert.Contains(t, out, "[image] image/png")
	assert.Contains(t, out, "file:///tmp/a.png")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "+- A")
	assert.Contains(t, out, "`- https://b.example")

	l.SetShowSources(false)
	assert.NotContains(t, l.RenderMessage(msg, ""), "Sources:")
}

func TestMessageList_CachesSettledOnly(t *testing.T) {
	l := plainList()
	msg := model.NewMessage(model.RoleModel, "first")
	first := l.RenderMessage(msg, "")

	msg.Text = "second"
	assert.Equal(t, first, l.RenderMessage(msg, ""), "settled renders are cached")

	l.Reset()
	assert.Contains(t, l.RenderMessage(msg, ""), "second")

	live := model.NewPlaceholder()
	live.Text = "partial"
	assert.Contains(t, l.RenderMessage(live, ""), "partial")
	live.Text = "partial more"
	assert.Contains(t, l.RenderMessage(live, ""), "partial more")
}

func TestMessageList_Markdown(t *testing.T) {
	l := NewMessageList(theme())
	l.SetWidth(80)
	msg := model.NewMessage(model.RoleModel, "# Title\n\nsome **bold** text")
	out := l.RenderMessage(msg, "")
	assert.Contains(t, out, "Title")
	assert.NotContains(t, out, "**bold**")
}

func TestAttachmentLabel(t *testing.T) {
	a := model.Attachment{Name: "cat.png", MIMEType: "image/png", Kind: model.KindImage, Data: make([]byte, 1500)}
	assert.Equal(t, "[image] cat.png (1.5 kB)", AttachmentLabel(a))

	a.Name = ""
	assert.True(t, strings.HasPrefix(AttachmentLabel(a), "[image] image/png"))
}

func TestMediaLabel(t *testing.T) {
	assert.Equal(t, "", MediaLabel(nil))
	assert.Equal(t, "[image] image/png saved to s3://b/k",
		MediaLabel(&model.Media{MIMEType: "image/png", URI: "s3://b/k"}))
}

// =============================================================================
// ATTACHMENT BAR TESTS
// =============================================================================

func TestAttachmentBar(t *testing.T) {
	b := NewAttachmentBar(theme())
	assert.Equal(t, "", b.View())

	b.Add(model.Attachment{Name: "a.png", Kind: model.KindImage})
	b.Add(model.Attachment{Name: "b.mp3", Kind: model.KindAudio})
	assert.Equal(t, 2, b.Len())
	assert.Contains(t, b.View(), "1. [image] a.png")
	assert.Contains(t, b.View(), "2. [audio] b.mp3")

	items := b.Items()
	items[0].Name = "mutated"
	assert.Equal(t, "a.png", b.Items()[0].Name)

	assert.False(t, b.Remove(5))
	assert.True(t, b.Remove(0))
	assert.Equal(t, "b.mp3", b.Items()[0].Name)

	b.Clear()
	assert.Nil(t, b.Items())
}

// =============================================================================
// STATUS BAR TESTS
// =============================================================================

func TestStatusBar_States(t *testing.T) {
	s := NewStatusBar(theme())
	s.Width = 120

	s.State = orchestrator.StateIdle
	assert.Contains(t, s.View(), "Ready")

	s.State = orchestrator.StateStreaming
	s.Frame = "|"
	assert.Contains(t, s.View(), "| Streaming...")

	s.State = orchestrator.StateSettledError
	assert.Contains(t, s.View(), "[X] Failed")
}

func TestStatusBar_PlanAndNotice(t *testing.T) {
	s := NewStatusBar(theme())
	s.Width = 140
	s.Plan = &router.Plan{Operation: router.OpGenerateImage, Model: "imagen", RequiresGrant: true,
		Params: router.Params{Resolution: model.Resolution2K}}

	out := s.View()
	assert.Contains(t, out, "next: generate image . imagen 2K (needs your key)")

	s.SetNotice("mode set to Edit", false)
	assert.Contains(t, s.View(), "mode set to Edit")
	assert.NotContains(t, s.View(), "next:")

	s.ClearNotice()
	s.ShowPlan = false
	assert.NotContains(t, s.View(), "next:")
}

func TestStateLabel(t *testing.T) {
	assert.Equal(t, "Waiting for API key", StateLabel(orchestrator.StateAwaitingCredential))
	assert.Equal(t, "Retrying with your key...", StateLabel(orchestrator.StateRetrying))
	assert.Equal(t, "Ready", StateLabel(orchestrator.StateSettledSuccess))
}

// =============================================================================
// KEY PROMPT TESTS
// =============================================================================

func TestKeyPrompt(t *testing.T) {
	k := NewKeyPrompt(theme())
	assert.False(t, k.Active())
	assert.Equal(t, "", k.View())
	assert.Nil(t, k.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}))

	k.Open()
	require.True(t, k.Active())
	for _, r := range "sk-secret" {
		k.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	view := k.View()
	assert.Contains(t, view, "API key required")
	assert.NotContains(t, view, "sk-secret", "input is masked")

	assert.Equal(t, "sk-secret", k.Close())
	assert.False(t, k.Active())

	k.Open()
	assert.Equal(t, "", k.Close(), "reopening starts empty")
}
