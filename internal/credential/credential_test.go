// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_ResolveWithoutGrant(t *testing.T) {
	p := NewProvider(Config{Provider: "gemini", APIKey: "env-key"}, nil)

	cred, err := p.Resolve(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cred.APIKey)
	assert.False(t, cred.Granted)

	p.SetConfig(Config{Provider: "gemini"})
	_, err = p.Resolve(context.Background(), false)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestProvider_ResolveRequiresGrant(t *testing.T) {
	host := NewMemoryHost(nil)
	p := NewProvider(Config{Provider: "gemini", APIKey: "env-key"}, host)

	_, err := p.Resolve(context.Background(), true)
	assert.True(t, IsNotGranted(err))

	// Resolve has no side effects: still not granted.
	_, ok := host.SelectedKey(context.Background())
	assert.False(t, ok)

	host.Set("user-key")
	cred, err := p.Resolve(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "user-key", cred.APIKey)
	assert.True(t, cred.Granted)

	host.Forget()
	_, err = p.Resolve(context.Background(), true)
	assert.ErrorIs(t, err, ErrNotGranted)
}

func TestProvider_NoHost(t *testing.T) {
	p := NewProvider(Config{APIKey: "k"}, nil)

	_, err := p.Resolve(context.Background(), true)
	assert.ErrorIs(t, err, ErrNotGranted)
	assert.ErrorIs(t, p.Grant(context.Background()), ErrNoHost)
}

func TestProvider_GrantThroughPrompt(t *testing.T) {
	calls := 0
	host := NewMemoryHost(func(ctx context.Context) (string, error) {
		calls++
		return "  granted  ", nil
	})
	p := NewProvider(Config{Provider: "gemini"}, host)

	require.NoError(t, p.Grant(context.Background()))
	assert.Equal(t, 1, calls)

	cred, err := p.Resolve(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "granted", cred.APIKey)
}

func TestMemoryHost_Abandon(t *testing.T) {
	host := NewMemoryHost(func(ctx context.Context) (string, error) { return "", nil })
	assert.ErrorIs(t, host.SelectKey(context.Background()), ErrAbandoned)

	host.SetPrompt(func(ctx context.Context) (string, error) { return "", errors.New("tty gone") })
	assert.EqualError(t, host.SelectKey(context.Background()), "tty gone")

	_, ok := host.SelectedKey(context.Background())
	assert.False(t, ok)
}

func TestChannelPrompt(t *testing.T) {
	keys := make(chan string, 1)
	notified := make(chan struct{}, 1)
	prompt := ChannelPrompt(func() { notified <- struct{}{} }, keys)

	keys <- "abc"
	key, err := prompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", key)
	require.Len(t, notified, 1)
	<-notified

	keys <- ""
	_, err = prompt(context.Background())
	assert.ErrorIs(t, err, ErrAbandoned)
	require.Len(t, notified, 1)
	<-notified

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = prompt(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, notified, 1, "every request is announced")
}

func TestTerminalPrompt_NonTTY(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in")
	require.NoError(t, os.WriteFile(path, []byte("piped-key\n"), 0o600))
	in, err := os.Open(path)
	require.NoError(t, err)
	defer in.Close()

	var out nopWriter
	key, err := TerminalPrompt(in, &out)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "piped-key\n", key)
}

func TestCredential_Fingerprint(t *testing.T) {
	c := Credential{Provider: "openai", APIKey: "sk-secret"}
	assert.Len(t, c.Fingerprint(), 8)
	assert.NotContains(t, c.String(), "secret")
	assert.Equal(t, "none", Credential{}.Fingerprint())
}

func TestCredential_CacheKeyUsesFullDigest(t *testing.T) {
	a := Credential{APIKey: "key-one"}
	b := Credential{APIKey: "key-two"}

	key := a.CacheKey("https://api.example")
	digest, base, ok := strings.Cut(key, "@")
	require.True(t, ok)
	assert.Len(t, digest, 64)
	assert.Equal(t, "https://api.example", base)
	assert.True(t, strings.HasPrefix(digest, a.Fingerprint()))
	assert.NotContains(t, key, "key-one")

	assert.NotEqual(t, key, b.CacheKey("https://api.example"))
	assert.NotEqual(t, key, a.CacheKey("https://other.example"))
	assert.Equal(t, key, a.CacheKey("https://api.example"))
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
