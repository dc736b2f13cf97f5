// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndRecent(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	require.NoError(t, l.Record(ctx, Entry{
		ID: "c1", ConversationID: "conv", MessageID: "m1", Mode: "chat",
		Operation: "stream_chat", Model: "gemini-2.5-pro", Status: StatusSuccess,
		Chunks: 3, StartedAt: base, Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, l.Record(ctx, Entry{
		ID: "c2", ConversationID: "conv", MessageID: "m2", Mode: "generate_image",
		Operation: "generate_image", Status: StatusError, Error: "quota exceeded",
		Granted: true, Retried: true, StartedAt: base.Add(time.Minute), Duration: time.Second,
	}))

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "c2", entries[0].ID)
	assert.True(t, entries[0].Granted)
	assert.True(t, entries[0].Retried)
	assert.Equal(t, "quota exceeded", entries[0].Error)

	assert.Equal(t, "c1", entries[1].ID)
	assert.Equal(t, 3, entries[1].Chunks)
	assert.Equal(t, 1500*time.Millisecond, entries[1].Duration)
	assert.True(t, base.Equal(entries[1].StartedAt))
}

func TestRecentLimit(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.Record(ctx, Entry{ID: id, Mode: "chat", Operation: "stream_chat", Status: StatusSuccess}))
	}
	entries, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStats(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()

	s, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.Total)

	require.NoError(t, l.Record(ctx, Entry{ID: "1", Status: StatusSuccess, Duration: 100 * time.Millisecond}))
	require.NoError(t, l.Record(ctx, Entry{ID: "2", Status: StatusError, Retried: true, Duration: 300 * time.Millisecond}))

	s, err = l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Retried)
	assert.InDelta(t, 200, s.AvgMillis, 0.01)
}

func TestDuplicateIDRejected(t *testing.T) {
	l := openTemp(t)
	ctx := context.Background()
	require.NoError(t, l.Record(ctx, Entry{ID: "dup", Status: StatusSuccess}))
	assert.Error(t, l.Record(ctx, Entry{ID: "dup", Status: StatusSuccess}))
}

func TestClosed(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Record(context.Background(), Entry{ID: "x"}), ErrClosed)
	_, err = l.Recent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}
