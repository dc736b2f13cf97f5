// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/prism/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleModel:
		return "Model"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// ATTACHMENT TYPES
// =============================================================================

// Kind is the coarse media classification of an attachment.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Attachment is a user-supplied file. It is immutable once created and owned
// by the message it was submitted with.
type Attachment struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type"`
	Kind     Kind   `json:"kind"`

	// Data holds the raw bytes; Base64 is the encoded copy sent to backends.
	Data   []byte `json:"-"`
	Base64 string `json:"data"`
}

// IsImage reports whether the attachment is an image.
func (a Attachment) IsImage() bool { return a.Kind == KindImage }

// IsAudio reports whether the attachment is audio.
func (a Attachment) IsAudio() bool { return a.Kind == KindAudio }

// Size returns the raw payload size in bytes.
func (a Attachment) Size() int { return len(a.Data) }

// Media is a reference to generated binary output (an image).
type Media struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`

	// URI is set when the media was persisted by a media store.
	URI string `json:"uri,omitempty"`
}

// Empty reports whether the reference carries neither data nor a location.
func (m *Media) Empty() bool {
	return m == nil || (len(m.Data) == 0 && m.URI == "")
}

// Source is a grounding citation attached to a response.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single entry in the conversation.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Content
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Media       *Media       `json:"media,omitempty"`
	Sources     []Source     `json:"sources,omitempty"`

	// InProgress marks the placeholder being filled by an active cycle.
	InProgress bool `json:"in_progress"`

	// Failed is set when the cycle that owned this message settled with an error.
	Failed bool `json:"failed,omitempty"`

	// Cycle metadata (model messages only)
	Operation string `json:"operation,omitempty"`
	Model     string `json:"model,omitempty"`
}

// NewMessage creates a new message with the given role and text.
func NewMessage(role Role, text string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      role,
		CreatedAt: time.Now(),
		Text:      text,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(text string, attachments []Attachment) *Message {
	msg := NewMessage(RoleUser, text)
	if len(attachments) > 0 {
		msg.Attachments = append([]Attachment(nil), attachments...)
	}
	return msg
}

// NewPlaceholder creates an empty model message marked in-progress.
func NewPlaceholder() *Message {
	msg := NewMessage(RoleModel, "")
	msg.InProgress = true
	return msg
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(text string) *Message {
	return NewMessage(RoleSystem, text)
}

// HasMedia reports whether the message carries a generated-media reference.
func (m *Message) HasMedia() bool {
	return !m.Media.Empty()
}

// Preview returns a truncated single-line preview of the text.
func (m *Message) Preview(maxLen int) string {
	text := strings.ReplaceAll(m.Text, "\n", " ")
	return util.TruncateRunes(text, maxLen)
}

// IsEmpty returns true if the message has no text, attachments, or media.
func (m *Message) IsEmpty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0 && !m.HasMedia()
}

// Clone returns a copy that shares no mutable slices with the original.
// Attachment and media byte payloads are treated as immutable and shared.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Attachments != nil {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Sources != nil {
		c.Sources = append([]Source(nil), m.Sources...)
	}
	if m.Media != nil {
		media := *m.Media
		c.Media = &media
	}
	return &c
}

func generateID() string {
	return uuid.NewString()
}
