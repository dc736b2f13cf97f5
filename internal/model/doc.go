// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: ordered, observable message store for one session
//   - Message: a user or model entry with text, attachments, generated media and sources
//   - Attachment: an encoded user file with a coarse media kind
//   - Mode: interaction mode (chat, generate_image, edit_image, analyze)
//   - RequestConfig: chat feature flags and the image resolution tier
//
// # Usage
//
//	conv := model.NewConversation()
//	unsubscribe := conv.Subscribe(func(ev model.Event) {
//	    render(conv.Snapshot())
//	})
//	defer unsubscribe()
//
//	conv.AppendUser("Hello", nil)
//	ph, _ := conv.AppendPlaceholder()
//	conv.UpdateInProgress(ph.ID, func(m *model.Message) { m.Text = "Hi" })
//	conv.Settle(ph.ID, nil)
package model
