// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInProgress is returned when a placeholder is appended while another
	// message is still in progress.
	ErrInProgress = errors.New("a response is already in progress")

	// ErrNotInProgress is returned when updating a message that is not the
	// current in-progress message.
	ErrNotInProgress = errors.New("message is not in progress")
)

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies the store mutation that produced an event.
type EventKind int

const (
	EventAppended EventKind = iota
	EventUpdated
	EventSettled
	EventCleared
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventAppended:
		return "appended"
	case EventUpdated:
		return "updated"
	case EventSettled:
		return "settled"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event describes one mutation of the conversation. Message is a snapshot
// taken at the time of the mutation and is nil for EventCleared.
type Event struct {
	Seq     uint64    `json:"seq"`
	Kind    EventKind `json:"-"`
	Message *Message  `json:"message,omitempty"`
}

// Observer receives conversation events. Observers are called synchronously,
// one event at a time, in mutation order. They may read the conversation but
// must not mutate it.
type Observer func(Event)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered message store for one session. It is
// append-only apart from in-place updates to the single in-progress message,
// which is tracked by ID.
type Conversation struct {
	ID        string
	CreatedAt time.Time

	// writeMu serializes mutations together with their event delivery, so
	// observers see events in mutation order. mu guards the data and may be
	// taken by observers through the query methods.
	writeMu sync.Mutex
	mu      sync.Mutex

	messages   []*Message
	index      map[string]int
	inProgress string
	seq        uint64

	observers []observerEntry
	nextObs   int
}

type observerEntry struct {
	id int
	fn Observer
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{
		ID:        "conv_" + uuid.NewString(),
		CreatedAt: time.Now(),
		index:     make(map[string]int),
	}
}

// Subscribe registers an observer and returns a function that removes it.
func (c *Conversation) Subscribe(fn Observer) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers = append(c.observers, observerEntry{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, o := range c.observers {
			if o.id == id {
				c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AppendUser appends a settled user message and returns a snapshot of it.
func (c *Conversation) AppendUser(text string, attachments []Attachment) *Message {
	msg := NewUserMessage(text, attachments)
	_ = c.mutate(func() (EventKind, *Message, error) {
		c.append(msg)
		return EventAppended, msg, nil
	})
	return msg.Clone()
}

// AppendPlaceholder appends an empty in-progress model message. It fails with
// ErrInProgress if another message is still in progress.
func (c *Conversation) AppendPlaceholder() (*Message, error) {
	msg := NewPlaceholder()
	err := c.mutate(func() (EventKind, *Message, error) {
		if c.inProgress != "" {
			return 0, nil, ErrInProgress
		}
		c.append(msg)
		c.inProgress = msg.ID
		return EventAppended, msg, nil
	})
	if err != nil {
		return nil, err
	}
	return msg.Clone(), nil
}

// UpdateInProgress applies fn to the in-progress message with the given ID.
// The message stays in progress regardless of what fn does.
func (c *Conversation) UpdateInProgress(id string, fn func(*Message)) error {
	return c.mutate(func() (EventKind, *Message, error) {
		msg, err := c.inProgressLocked(id)
		if err != nil {
			return 0, nil, err
		}
		fn(msg)
		msg.ID = id
		msg.InProgress = true
		return EventUpdated, msg, nil
	})
}

// Settle applies fn to the in-progress message and then clears its
// in-progress marker. After Settle the message is immutable.
func (c *Conversation) Settle(id string, fn func(*Message)) error {
	return c.mutate(func() (EventKind, *Message, error) {
		msg, err := c.inProgressLocked(id)
		if err != nil {
			return 0, nil, err
		}
		if fn != nil {
			fn(msg)
		}
		msg.ID = id
		msg.InProgress = false
		c.inProgress = ""
		return EventSettled, msg, nil
	})
}

// Clear removes every message. An in-progress message is dropped as well.
func (c *Conversation) Clear() {
	_ = c.mutate(func() (EventKind, *Message, error) {
		c.messages = nil
		c.index = make(map[string]int)
		c.inProgress = ""
		return EventCleared, nil, nil
	})
}

// mutate runs fn under mu and then delivers the resulting event with mu
// released. Observers must not call mutating methods.
func (c *Conversation) mutate(fn func() (EventKind, *Message, error)) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	kind, msg, err := fn()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.seq++
	ev := Event{Seq: c.seq, Kind: kind}
	if msg != nil {
		ev.Message = msg.Clone()
	}
	observers := append([]observerEntry(nil), c.observers...)
	c.mu.Unlock()

	for _, o := range observers {
		o.fn(ev)
	}
	return nil
}

func (c *Conversation) append(msg *Message) {
	c.index[msg.ID] = len(c.messages)
	c.messages = append(c.messages, msg)
}

func (c *Conversation) inProgressLocked(id string) (*Message, error) {
	if id == "" || id != c.inProgress {
		return nil, fmt.Errorf("%w: %s", ErrNotInProgress, id)
	}
	i, ok := c.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotInProgress, id)
	}
	return c.messages[i], nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Snapshot returns copies of all messages in insertion order.
func (c *Conversation) Snapshot() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// Get returns a copy of the message with the given ID.
func (c *Conversation) Get(id string) (*Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.messages[i].Clone(), true
}

// Last returns a copy of the most recent message, or nil.
func (c *Conversation) Last() *Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1].Clone()
}

// InProgressID returns the ID of the in-progress message, or "".
func (c *Conversation) InProgressID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inProgress
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// IsEmpty returns true if the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return c.Len() == 0
}

// History returns the settled user and model turns suitable for sending to a
// chat backend. In-progress, failed, and empty messages are skipped.
func (c *Conversation) History() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := make([]*Message, 0, len(c.messages))
	for _, m := range c.messages {
		if m.InProgress || m.Failed || m.Role == RoleSystem {
			continue
		}
		if m.Text == "" && len(m.Attachments) == 0 {
			continue
		}
		history = append(history, m.Clone())
	}
	return history
}
