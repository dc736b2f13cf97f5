// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the reusable pieces of the prism TUI.

Each component is a plain struct with setters and a View (or Render)
method; the chat model owns them and feeds them state.

# Components

	Header (header.go)         - Brand, mode tabs, chat flags and resolution.
	MessageList (message.go)   - Conversation rendering with markdown, media and sources.
	StatusBar (statusbar.go)   - Cycle state, routing preview and shortcuts.
	AttachmentBar (attach.go)  - Pending attachments as chips.
	KeyPrompt (keyprompt.go)   - Masked overlay for entering a personal API key.
*/
package components
