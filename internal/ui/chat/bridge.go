// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/orchestrator"
)

// Bridge turns orchestrator callbacks into Bubble Tea messages.
//
// Observers run on the cycle goroutine while the conversation is locked for
// writing, so the bridge never blocks them: change notifications collapse
// into a single pending RefreshMsg and the view reads a fresh snapshot.
type Bridge struct {
	changed chan struct{}
	keyReq  chan struct{}
	keys    chan string
	done    chan struct{}

	closeOnce sync.Once
	unsubs    []func()
}

// NewBridge subscribes to o and, when host is non-nil, installs a prompt
// that is answered through AnswerKey.
func NewBridge(o *orchestrator.Orchestrator, host *credential.MemoryHost) *Bridge {
	b := &Bridge{
		changed: make(chan struct{}, 1),
		keyReq:  make(chan struct{}, 1),
		keys:    make(chan string, 1),
		done:    make(chan struct{}),
	}
	b.unsubs = append(b.unsubs,
		o.Conversation().Subscribe(func(model.Event) { b.notify() }),
		o.OnState(func(orchestrator.Transition) { b.notify() }),
	)
	if host != nil {
		host.SetPrompt(credential.ChannelPrompt(b.requestKey, b.keys))
	}
	return b
}

func (b *Bridge) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

func (b *Bridge) requestKey() {
	// Drop a key left over from an earlier, abandoned prompt.
	select {
	case <-b.keys:
	default:
	}
	select {
	case b.keyReq <- struct{}{}:
	default:
	}
}

// Listen returns a command that waits for the next change. The model
// re-issues it after handling each message. It returns nil once the bridge
// is closed.
func (b *Bridge) Listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.keyReq:
			return KeyRequestMsg{}
		case <-b.changed:
			return RefreshMsg{}
		case <-b.done:
			return nil
		}
	}
}

// AnswerKey hands a key to the waiting prompt. An empty key abandons it.
func (b *Bridge) AnswerKey(key string) {
	select {
	case b.keys <- key:
	default:
	}
}

// Close unsubscribes from the orchestrator and releases Listen.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		for _, unsub := range b.unsubs {
			unsub()
		}
	})
}
