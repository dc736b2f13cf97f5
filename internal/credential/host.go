// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package credential

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// PromptFunc asks the user for a key. Returning ErrAbandoned (or an empty
// key) cancels the selection.
type PromptFunc func(ctx context.Context) (string, error)

// MemoryHost keeps the selected key in memory for the life of the process.
// The prompt is supplied by whichever surface is in front of the user.
type MemoryHost struct {
	mu       sync.Mutex
	key      string
	selected bool
	prompt   PromptFunc
}

// NewMemoryHost creates a host that asks for keys with prompt. A nil
// prompt makes every selection attempt fail with ErrAbandoned.
func NewMemoryHost(prompt PromptFunc) *MemoryHost {
	return &MemoryHost{prompt: prompt}
}

// SetPrompt replaces the prompt function.
func (h *MemoryHost) SetPrompt(prompt PromptFunc) {
	h.mu.Lock()
	h.prompt = prompt
	h.mu.Unlock()
}

// SelectedKey implements Host.
func (h *MemoryHost) SelectedKey(context.Context) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.key, h.selected
}

// SelectKey implements Host.
func (h *MemoryHost) SelectKey(ctx context.Context) error {
	h.mu.Lock()
	prompt := h.prompt
	h.mu.Unlock()

	if prompt == nil {
		return ErrAbandoned
	}
	key, err := prompt(ctx)
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrAbandoned
	}
	h.Set(key)
	return nil
}

// Set records a selected key directly, e.g. from an HTTP request.
func (h *MemoryHost) Set(key string) {
	h.mu.Lock()
	h.key = strings.TrimSpace(key)
	h.selected = h.key != ""
	h.mu.Unlock()
}

// Forget clears the selection.
func (h *MemoryHost) Forget() {
	h.mu.Lock()
	h.key = ""
	h.selected = false
	h.mu.Unlock()
}

// =============================================================================
// TERMINAL PROMPT
// =============================================================================

// TerminalPrompt returns a PromptFunc that reads a key from in without echo
// when in is a terminal, and as a plain line otherwise.
func TerminalPrompt(in *os.File, out io.Writer) PromptFunc {
	return func(ctx context.Context) (string, error) {
		fmt.Fprint(out, "This operation needs your own API key. Paste it (empty to cancel): ")

		type result struct {
			key string
			err error
		}
		done := make(chan result, 1)
		go func() {
			if term.IsTerminal(int(in.Fd())) {
				b, err := term.ReadPassword(int(in.Fd()))
				fmt.Fprintln(out)
				done <- result{string(b), err}
				return
			}
			line, err := bufio.NewReader(in).ReadString('\n')
			if err == io.EOF && line != "" {
				err = nil
			}
			done <- result{line, err}
		}()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r := <-done:
			if r.err != nil {
				return "", fmt.Errorf("read key: %w", r.err)
			}
			if strings.TrimSpace(r.key) == "" {
				return "", ErrAbandoned
			}
			return r.key, nil
		}
	}
}

// ChannelPrompt returns a PromptFunc that announces the request through
// notify and then waits for a key on keys. Closing keys or sending an empty
// string abandons the selection. It serves surfaces that collect the key
// asynchronously, such as the TUI overlay or the HTTP API.
func ChannelPrompt(notify func(), keys <-chan string) PromptFunc {
	return func(ctx context.Context) (string, error) {
		if notify != nil {
			notify()
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case key, ok := <-keys:
			if !ok || strings.TrimSpace(key) == "" {
				return "", ErrAbandoned
			}
			return key, nil
		}
	}
}
