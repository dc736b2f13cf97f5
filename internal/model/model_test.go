// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// REQUEST CONFIG TESTS
// =============================================================================

func TestRequestConfig_ToggleExclusive(t *testing.T) {
	flags := []Flag{FlagThinking, FlagSearch, FlagFast}

	for _, first := range flags {
		for _, second := range flags {
			if first == second {
				continue
			}
			t.Run(string(first)+"_then_"+string(second), func(t *testing.T) {
				cfg := DefaultRequestConfig().Toggle(first).Toggle(second)

				if !cfg.Enabled(second) {
					t.Errorf("last toggled flag %s should be enabled", second)
				}
				for _, f := range flags {
					if f != second && cfg.Enabled(f) {
						t.Errorf("flag %s should be forced off after toggling %s", f, second)
					}
				}
				if cfg.ActiveFlag() != second {
					t.Errorf("ActiveFlag() = %q, want %q", cfg.ActiveFlag(), second)
				}
			})
		}
	}
}

func TestRequestConfig_ToggleOff(t *testing.T) {
	cfg := DefaultRequestConfig().Toggle(FlagSearch).Toggle(FlagSearch)
	assert.False(t, cfg.EnableSearch)
	assert.Equal(t, Flag(""), cfg.ActiveFlag())
}

func TestRequestConfig_TogglePreservesResolution(t *testing.T) {
	cfg := RequestConfig{Resolution: Resolution4K}.Toggle(FlagFast)
	assert.Equal(t, Resolution4K, cfg.Resolution)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"chat", ModeChat},
		{"generate", ModeGenerateImage},
		{"GENERATE_IMAGE", ModeGenerateImage},
		{"edit", ModeEditImage},
		{" analyze ", ModeAnalyze},
	}
	for _, tc := range tests {
		got, err := ParseMode(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseMode("paint")
	assert.Error(t, err)
}

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution("2k")
	require.NoError(t, err)
	assert.Equal(t, Resolution2K, r)

	_, err = ParseResolution("8K")
	assert.Error(t, err)
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_PlaceholderLifecycle(t *testing.T) {
	conv := NewConversation()
	conv.AppendUser("Hello", nil)

	ph, err := conv.AppendPlaceholder()
	require.NoError(t, err)
	assert.True(t, ph.InProgress)
	assert.Equal(t, RoleModel, ph.Role)
	assert.Equal(t, ph.ID, conv.InProgressID())

	require.NoError(t, conv.UpdateInProgress(ph.ID, func(m *Message) {
		m.Text = "Hi"
		m.InProgress = false
	}))
	got, ok := conv.Get(ph.ID)
	require.True(t, ok)
	assert.True(t, got.InProgress, "update must not clear the in-progress marker")

	require.NoError(t, conv.Settle(ph.ID, func(m *Message) { m.Text = "Hi there!" }))
	got, _ = conv.Get(ph.ID)
	assert.False(t, got.InProgress)
	assert.Equal(t, "Hi there!", got.Text)
	assert.Empty(t, conv.InProgressID())

	err = conv.UpdateInProgress(ph.ID, func(m *Message) { m.Text = "late" })
	assert.True(t, errors.Is(err, ErrNotInProgress))
}

func TestConversation_SinglePlaceholder(t *testing.T) {
	conv := NewConversation()
	_, err := conv.AppendPlaceholder()
	require.NoError(t, err)

	_, err = conv.AppendPlaceholder()
	assert.ErrorIs(t, err, ErrInProgress)
	assert.Equal(t, 1, conv.Len())
}

func TestConversation_SnapshotIsolation(t *testing.T) {
	conv := NewConversation()
	conv.AppendUser("one", []Attachment{{Name: "a.png", Kind: KindImage, MIMEType: "image/png"}})

	snap := conv.Snapshot()
	snap[0].Text = "mutated"
	snap[0].Attachments[0].Name = "b.png"

	again := conv.Snapshot()
	assert.Equal(t, "one", again[0].Text)
	assert.Equal(t, "a.png", again[0].Attachments[0].Name)
}

func TestConversation_ObserverOrder(t *testing.T) {
	conv := NewConversation()

	var kinds []EventKind
	var texts []string
	unsubscribe := conv.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		if ev.Message != nil {
			texts = append(texts, ev.Message.Text)
		}
		// Observers may read the store.
		_ = conv.Snapshot()
	})

	conv.AppendUser("q", nil)
	ph, err := conv.AppendPlaceholder()
	require.NoError(t, err)
	for _, s := range []string{"a", "ab", "abc"} {
		text := s
		require.NoError(t, conv.UpdateInProgress(ph.ID, func(m *Message) { m.Text = text }))
	}
	require.NoError(t, conv.Settle(ph.ID, nil))
	conv.Clear()

	assert.Equal(t, []EventKind{
		EventAppended, EventAppended,
		EventUpdated, EventUpdated, EventUpdated,
		EventSettled, EventCleared,
	}, kinds)
	assert.Equal(t, []string{"q", "", "a", "ab", "abc", "abc"}, texts)

	unsubscribe()
	conv.AppendUser("after", nil)
	assert.Len(t, kinds, 7)
}

func TestConversation_History(t *testing.T) {
	conv := NewConversation()
	conv.AppendUser("first", nil)
	ph, _ := conv.AppendPlaceholder()
	require.NoError(t, conv.Settle(ph.ID, func(m *Message) { m.Text = "answer" }))

	conv.AppendUser("second", nil)
	ph, _ = conv.AppendPlaceholder()
	require.NoError(t, conv.Settle(ph.ID, func(m *Message) {
		m.Text = "Error: boom"
		m.Failed = true
	}))

	conv.AppendUser("third", nil)
	_, _ = conv.AppendPlaceholder()

	var texts []string
	for _, m := range conv.History() {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"first", "answer", "second", "third"}, texts)
}

func TestConversation_ConcurrentReaders(t *testing.T) {
	conv := NewConversation()
	conv.AppendUser("hello", nil)
	ph, err := conv.AppendPlaceholder()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = conv.Snapshot()
				_ = conv.Last()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		require.NoError(t, conv.UpdateInProgress(ph.ID, func(m *Message) { m.Text += "x" }))
	}
	wg.Wait()

	last := conv.Last()
	assert.Len(t, last.Text, 100)
}

func TestMedia_Empty(t *testing.T) {
	var m *Media
	assert.True(t, m.Empty())
	assert.True(t, (&Media{MIMEType: "image/png"}).Empty())
	assert.False(t, (&Media{Data: []byte{1}}).Empty())
	assert.False(t, (&Media{URI: "file:///x.png"}).Empty())
}
