// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"sync"

	"github.com/jeranaias/prism/internal/model"
)

// Event types sent on the /v1/events stream.
const (
	EventMessage    = "message"
	EventCleared    = "cleared"
	EventState      = "state"
	EventCredential = "credential"
)

// StreamEvent is one server-sent event.
type StreamEvent struct {
	ID   uint64 `json:"id"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// MessageEvent carries a conversation mutation.
type MessageEvent struct {
	Kind    string         `json:"kind"`
	Seq     uint64         `json:"seq"`
	Message *model.Message `json:"message,omitempty"`
}

// StateEvent carries a cycle state transition.
type StateEvent struct {
	Cycle string `json:"cycle"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// CredentialEvent announces that a cycle is waiting for a user key.
type CredentialEvent struct {
	Awaiting bool `json:"awaiting"`
}

// subscriberBuffer bounds each client's backlog. A client that falls this
// far behind is disconnected.
const subscriberBuffer = 256

// hub fans events out to SSE subscribers.
type hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[chan StreamEvent]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan StreamEvent]struct{})}
}

// subscribe registers a subscriber. The channel is closed when the
// subscriber is dropped or cancel is called.
func (h *hub) subscribe() (<-chan StreamEvent, func()) {
	ch := make(chan StreamEvent, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *hub) publish(typ string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	ev := StreamEvent{ID: h.nextID, Type: typ, Data: data}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
